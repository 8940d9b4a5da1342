package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                              "/",
		"/metrics":                      "/metrics",
		"/v1/docs/key/0xabc":            "/v1/docs/key/:hash",
		"/v1/docs/ipfs/QmXyz":           "/v1/docs/ipfs/:cid",
		"/v1/docs/pending":              "/v1/docs/pending",
		"/v1/docs/exists?rootHash=0x01": "/v1/docs/exists",
		"/v1/auth/request-nonce":        "/v1/auth/request-nonce",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
