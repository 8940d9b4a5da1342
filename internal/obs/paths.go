package obs

import "strings"

// CanonicalPath collapses per-resource path segments into placeholders so that
// metric label cardinality stays bounded.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	switch {
	case strings.HasPrefix(path, "/v1/docs/key/"):
		return "/v1/docs/key/:hash"
	case strings.HasPrefix(path, "/v1/docs/ipfs/"):
		return "/v1/docs/ipfs/:cid"
	}
	return path
}
