// Package blob adapts the content-addressable pinning service. Objects are
// pinned through the Pinata API and read back through a public gateway;
// there is no mutation or delete surface.
package blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

const (
	defaultPinEndpoint = "https://api.pinata.cloud/pinning/pinFileToIPFS"
	defaultGateway     = "https://gateway.pinata.cloud"
)

var ErrUnavailable = errors.New("blob: pinning service unavailable")

// Store is the narrow surface the document service consumes.
type Store interface {
	Pin(ctx context.Context, content []byte, filename, contentType string) (cid string, err error)
	Fetch(ctx context.Context, cid string) (body io.ReadCloser, contentType string, err error)
}

// Pinata pins content through the Pinata REST API.
type Pinata struct {
	token       string
	pinEndpoint string
	gateway     string
	client      *http.Client
}

var _ Store = (*Pinata)(nil)

// Option configures the client.
type Option func(*Pinata)

// WithGateway overrides the public read gateway.
func WithGateway(url string) Option {
	return func(p *Pinata) {
		if url = strings.TrimRight(strings.TrimSpace(url), "/"); url != "" {
			p.gateway = url
		}
	}
}

// WithHTTPClient overrides the HTTP client (useful for tests).
func WithHTTPClient(c *http.Client) Option {
	return func(p *Pinata) {
		if c != nil {
			p.client = c
		}
	}
}

// WithPinEndpoint overrides the pinning endpoint (useful for tests).
func WithPinEndpoint(url string) Option {
	return func(p *Pinata) {
		if url = strings.TrimSpace(url); url != "" {
			p.pinEndpoint = url
		}
	}
}

// NewPinata constructs a client authenticated by the given API JWT.
func NewPinata(token string, opts ...Option) (*Pinata, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("blob: pinata token is required")
	}
	p := &Pinata{
		token:       token,
		pinEndpoint: defaultPinEndpoint,
		gateway:     defaultGateway,
		client:      &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Pin stores the content and returns its content id. Pinning is not
// idempotent on the billing side, so callers check for duplicates first.
func (p *Pinata) Pin(ctx context.Context, content []byte, filename, contentType string) (string, error) {
	if filename == "" {
		filename = "file.bin"
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(content); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.pinEndpoint, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+p.token)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var result struct {
		IpfsHash string `json:"IpfsHash"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if result.IpfsHash == "" {
		return "", fmt.Errorf("%w: empty content id in response", ErrUnavailable)
	}
	return result.IpfsHash, nil
}

// Fetch streams an object back through the public gateway. The caller owns
// the returned body.
func (p *Pinata) Fetch(ctx context.Context, cid string) (io.ReadCloser, string, error) {
	cid = strings.TrimSpace(cid)
	if cid == "" || strings.ContainsAny(cid, "/?#") {
		return nil, "", fmt.Errorf("blob: invalid content id %q", cid)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.gateway+"/ipfs/"+cid, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, "", fmt.Errorf("%w: gateway status %d for %s", ErrUnavailable, resp.StatusCode, cid)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return resp.Body, contentType, nil
}
