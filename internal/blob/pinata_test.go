package blob

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPinataPin(t *testing.T) {
	var gotAuth, gotFilename string
	var gotContent []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer file.Close()
		gotFilename = header.Filename
		gotContent, _ = io.ReadAll(file)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"IpfsHash":"QmTestCid123"}`))
	}))
	defer srv.Close()

	p, err := NewPinata("secret-jwt", WithPinEndpoint(srv.URL), WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewPinata: %v", err)
	}

	cid, err := p.Pin(context.Background(), []byte("encrypted-bytes"), "doc.pdf.enc", "application/octet-stream")
	if err != nil {
		t.Fatalf("Pin: %v", err)
	}
	if cid != "QmTestCid123" {
		t.Fatalf("unexpected cid: %s", cid)
	}
	if gotAuth != "Bearer secret-jwt" {
		t.Fatalf("unexpected auth header: %s", gotAuth)
	}
	if gotFilename != "doc.pdf.enc" {
		t.Fatalf("unexpected filename: %s", gotFilename)
	}
	if !bytes.Equal(gotContent, []byte("encrypted-bytes")) {
		t.Fatalf("content mangled in transit: %q", gotContent)
	}
}

func TestPinataPinUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusPaymentRequired)
	}))
	defer srv.Close()

	p, err := NewPinata("secret-jwt", WithPinEndpoint(srv.URL), WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewPinata: %v", err)
	}
	if _, err := p.Pin(context.Background(), []byte("x"), "", ""); err == nil {
		t.Fatal("expected error on upstream failure")
	}
}

func TestPinataFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ipfs/QmTestCid123" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"rootHash":"0x01"}`))
	}))
	defer srv.Close()

	p, err := NewPinata("secret-jwt", WithGateway(srv.URL), WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewPinata: %v", err)
	}

	body, contentType, err := p.Fetch(context.Background(), "QmTestCid123")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	defer body.Close()
	if contentType != "application/json" {
		t.Fatalf("unexpected content type: %s", contentType)
	}
	data, _ := io.ReadAll(body)
	if string(data) != `{"rootHash":"0x01"}` {
		t.Fatalf("unexpected body: %s", data)
	}
}

func TestPinataFetchRejectsTraversal(t *testing.T) {
	p, err := NewPinata("secret-jwt")
	if err != nil {
		t.Fatalf("NewPinata: %v", err)
	}
	if _, _, err := p.Fetch(context.Background(), "abc/../../admin"); err == nil {
		t.Fatal("expected invalid cid error")
	}
}
