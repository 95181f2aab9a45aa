package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mrmarble/xiinoproxy/internal/cookiejar"
)

func TestFetchReturnsBodyAndContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html>hi</html>"))
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.TryHTTPSFirst = false
	f := New(cfg, nil)

	data, ct, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if ct != "text/html" {
		t.Errorf("got content-type %q, want text/html", ct)
	}
	if string(data) != "<html>hi</html>" {
		t.Errorf("got body %q", data)
	}
}

func TestFetchEnforcesSizeCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 1024))
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.TryHTTPSFirst = false
	cfg.MaxBodyBytes = 16
	f := New(cfg, nil)

	_, _, err := f.Fetch(context.Background(), srv.URL)
	if err != ErrTooLarge {
		t.Fatalf("got %v, want ErrTooLarge", err)
	}
}

func TestFetchRecordsAndForwardsCookies(t *testing.T) {
	var sawCookie string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("session"); err == nil {
			sawCookie = c.Value
		}
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc123"})
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	jar := cookiejar.New()
	cfg := DefaultConfig()
	cfg.TryHTTPSFirst = false
	f := New(cfg, jar)

	if _, _, err := f.Fetch(context.Background(), srv.URL); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if sawCookie != "" {
		t.Errorf("expected no cookie on first request, saw %q", sawCookie)
	}

	if _, _, err := f.Fetch(context.Background(), srv.URL); err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if sawCookie != "abc123" {
		t.Errorf("expected cookie forwarded on second request, got %q", sawCookie)
	}
}

func TestCheckRedirectCapsChainLength(t *testing.T) {
	f := New(Config{MaxRedirects: 1}, nil)
	req, _ := http.NewRequest(http.MethodGet, "http://example.com/b", nil)
	via := []*http.Request{
		mustRequest("http://example.com/a"),
		mustRequest("http://example.com/a2"),
	}
	if err := f.checkRedirect(req, via); err != ErrTooManyRedirects {
		t.Fatalf("got %v, want ErrTooManyRedirects", err)
	}
}

func mustRequest(u string) *http.Request {
	req, _ := http.NewRequest(http.MethodGet, u, nil)
	return req
}

// TestDoForwardsMethodHeadersAndBody covers the FORM method="post" case
// the allow-list accepts: spec §4.E's fetch(url, method, headers, body,
// session) contract must actually reach the upstream request.
func TestDoForwardsMethodHeadersAndBody(t *testing.T) {
	var gotMethod, gotBody, gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotHeader = r.Header.Get("X-Test")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.TryHTTPSFirst = false
	f := New(cfg, nil)

	headers := http.Header{"X-Test": []string{"yes"}}
	_, _, err := f.Do(context.Background(), http.MethodPost, srv.URL, headers, strings.NewReader("name=value"))
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if gotMethod != http.MethodPost {
		t.Errorf("got method %q, want POST", gotMethod)
	}
	if gotHeader != "yes" {
		t.Errorf("got X-Test header %q, want yes", gotHeader)
	}
	if gotBody != "name=value" {
		t.Errorf("got body %q, want name=value", gotBody)
	}
}

// TestDoReturnsUpstreamStatusError covers spec §7's UpstreamStatus kind:
// a non-2xx/3xx response must be surfaced as a typed error, not silently
// returned as a success.
func TestDoReturnsUpstreamStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.TryHTTPSFirst = false
	f := New(cfg, nil)

	_, _, err := f.Fetch(context.Background(), srv.URL)
	var upstreamErr *UpstreamStatusError
	if !errors.As(err, &upstreamErr) {
		t.Fatalf("got %v, want *UpstreamStatusError", err)
	}
	if upstreamErr.StatusCode != http.StatusNotFound {
		t.Errorf("got status %d, want 404", upstreamErr.StatusCode)
	}
}

// TestFetchFallsBackToHTTPOnFailedUpgrade covers spec §4.E: "On any failure
// (connect, TLS, 5xx), fall back to the original http URL."
func TestFetchFallsBackToHTTPOnFailedUpgrade(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("plain http ok"))
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	// TryHTTPSFirst stays true; there is no https listener on this
	// plain httptest server, so the upgrade attempt fails and Do must
	// fall back to the original http URL rather than surfacing the
	// connect failure.
	f := New(cfg, nil)

	data, _, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(data) != "plain http ok" {
		t.Errorf("got %q, want fallback response body", data)
	}
}
