package orchestrator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/mrmarble/xiinoproxy/internal/fetch"
	"github.com/mrmarble/xiinoproxy/internal/imageproc"
)

func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	fetchCfg := fetch.DefaultConfig()
	fetchCfg.TryHTTPSFirst = false
	f := fetch.New(fetchCfg, nil)
	proc := imageproc.New(imageproc.DefaultConfig(), nil)
	return New(DefaultConfig(), proc, f, zerolog.Nop())
}

func TestHandlePageRendersTranscodedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><script>bad()</script><p>hello world</p></body></html>`))
	}))
	defer srv.Close()

	o := newTestOrchestrator(t)
	defer o.Close()

	res := o.HandlePage(context.Background(), Request{
		ClientIP:  "10.0.0.1",
		UserAgent: "Xiino/7.1",
		URL:       srv.URL,
		Query:     url.Values{},
	})
	if res.Err != nil {
		t.Fatalf("HandlePage: %v", res.Err)
	}
	if strings.Contains(res.HTML, "script") {
		t.Errorf("expected script stripped, got %s", res.HTML)
	}
	if !strings.Contains(res.HTML, "hello world") {
		t.Errorf("expected body text preserved, got %s", res.HTML)
	}
}

// TestHandlePageDotXiinoNeverFetches covers the about-page scenario: a `.xiino` host
// is served entirely from the built-in pages component, with no outbound
// fetch attempted.
func TestHandlePageDotXiinoNeverFetches(t *testing.T) {
	fetched := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetched = true
		_, _ = w.Write([]byte("should never be hit"))
	}))
	defer srv.Close()

	o := newTestOrchestrator(t)
	defer o.Close()

	res := o.HandlePage(context.Background(), Request{
		ClientIP:  "10.0.0.1",
		UserAgent: "Xiino/7.1",
		URL:       "http://about.xiino/",
		Query:     url.Values{},
	})
	if res.Err != nil {
		t.Fatalf("HandlePage: %v", res.Err)
	}
	if !strings.Contains(res.HTML, "xiinoproxy") {
		t.Errorf("expected about page body, got %s", res.HTML)
	}
	if fetched {
		t.Errorf("expected no outbound fetch for a .xiino host")
	}
	_ = srv.URL
}

// TestSessionKeyDistinguishesClients covers spec §3: two devices sharing
// an upstream site must not be keyed to the same cookie jar.
func TestSessionKeyDistinguishesClients(t *testing.T) {
	a := SessionKey("1.2.3.4", "Xiino/7.1")
	b := SessionKey("1.2.3.5", "Xiino/7.1")
	c := SessionKey("1.2.3.4", "Palmscape/3.0")
	if a == b || a == c || b == c {
		t.Fatalf("expected distinct session keys, got %q %q %q", a, b, c)
	}
}

// TestHandlePagePerSessionCookieIsolation covers spec §3/§5: a cookie set
// for one session's jar must not leak into a different session's request
// to the same upstream host.
func TestHandlePagePerSessionCookieIsolation(t *testing.T) {
	var sawCookieForSecondClient string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("session"); err == nil && r.Header.Get("X-Client") == "second" {
			sawCookieForSecondClient = c.Value
		}
		if r.Header.Get("X-Client") == "first" {
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "first-session"})
		}
		_, _ = w.Write([]byte("<html><body>ok</body></html>"))
	}))
	defer srv.Close()

	o := newTestOrchestrator(t)
	defer o.Close()

	if res := o.HandlePage(context.Background(), Request{
		ClientIP: "10.0.0.1", UserAgent: "Xiino/7.1", URL: srv.URL,
		Headers: http.Header{"X-Client": []string{"first"}}, Query: url.Values{},
	}); res.Err != nil {
		t.Fatalf("first HandlePage: %v", res.Err)
	}

	if res := o.HandlePage(context.Background(), Request{
		ClientIP: "10.0.0.2", UserAgent: "Xiino/7.1", URL: srv.URL,
		Headers: http.Header{"X-Client": []string{"second"}}, Query: url.Values{},
	}); res.Err != nil {
		t.Fatalf("second HandlePage: %v", res.Err)
	}

	if sawCookieForSecondClient != "" {
		t.Errorf("expected second client's session to carry no cookie, got %q", sawCookieForSecondClient)
	}
}

func TestAllowEnforcesPerClientBucket(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BurstPerClient = 1
	cfg.RequestsPerSecond = 0
	fetchCfg := fetch.DefaultConfig()
	f := fetch.New(fetchCfg, nil)
	proc := imageproc.New(imageproc.DefaultConfig(), nil)
	o := New(cfg, proc, f, zerolog.Nop())
	defer o.Close()

	if !o.Allow("1.2.3.4") {
		t.Fatal("expected first request allowed")
	}
	if o.Allow("1.2.3.4") {
		t.Fatal("expected second immediate request to be rate limited")
	}
}
