// Package fetch retrieves upstream HTTP(S) resources on behalf of a
// client request: the initial page and every image the transcoder
// inlines (spec §4.E).
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mrmarble/xiinoproxy/internal/cookiejar"
)

var (
	// ErrTooLarge is returned when the upstream response exceeds the
	// configured byte cap before it finishes streaming.
	ErrTooLarge = errors.New("fetch: response exceeds size cap")
	// ErrTooManyRedirects is returned when a chain exceeds MaxRedirects.
	ErrTooManyRedirects = errors.New("fetch: too many redirects")
)

const defaultUserAgent = "xiinoproxy/1.0 (+compat; Xiino)"

// httpsUpgradeTimeout bounds the opportunistic HTTPS-upgrade attempt
// (spec §4.E: "attempt the same URL with https first with a short
// timeout (≤2 s)"), independent of the full request's Config.Timeout.
const httpsUpgradeTimeout = 2 * time.Second

// UpstreamStatusError reports a non-2xx/3xx upstream response (spec §7
// error kind UpstreamStatus: "Propagate as Xiino-rendered error").
type UpstreamStatusError struct {
	StatusCode int
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("fetch: upstream returned status %d", e.StatusCode)
}

// Config controls one Fetcher's behavior.
type Config struct {
	MaxRedirects  int
	MaxBodyBytes  int64
	Timeout       time.Duration
	UserAgent     string
	TryHTTPSFirst bool
	// Dial, if set, overrides outbound connection establishment - the
	// seam a SOCKS4/5 proxy dialer plugs into without xiinoproxy itself
	// depending on a SOCKS client library.
	Dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

// DefaultConfig returns the proxy's default fetch policy (spec §4.E).
func DefaultConfig() Config {
	return Config{
		MaxRedirects:  5,
		MaxBodyBytes:  8 << 20,
		Timeout:       15 * time.Second,
		UserAgent:     defaultUserAgent,
		TryHTTPSFirst: true,
	}
}

// Fetcher performs outbound requests, owning redirect policy, the cookie
// jar bridge, and the response size cap.
type Fetcher struct {
	cfg    Config
	client *http.Client
	jar    *cookiejar.Jar
}

// New builds a Fetcher. jar may be nil to disable cookie forwarding.
func New(cfg Config, jar *cookiejar.Jar) *Fetcher {
	f := &Fetcher{cfg: cfg, jar: jar}
	transport := &http.Transport{}
	if cfg.Dial != nil {
		transport.DialContext = cfg.Dial
	}
	f.client = &http.Client{
		Timeout:       cfg.Timeout,
		CheckRedirect: f.checkRedirect,
		Transport:     transport,
	}
	return f
}

// WithJar returns a shallow copy of f bound to a different cookie jar,
// sharing the same underlying http.Client (and its connection pool). The
// orchestrator uses this to give each client session its own jar (spec
// §3: "the jar is per session") without paying for a new transport per
// request.
func (f *Fetcher) WithJar(jar *cookiejar.Jar) *Fetcher {
	clone := *f
	clone.jar = jar
	return &clone
}

// checkRedirect enforces the redirect cap and strips the Authorization
// header on any cross-origin hop (spec §4.E: "redirect cap... stripping
// Authorization across origin changes").
func (f *Fetcher) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= f.cfg.MaxRedirects {
		return ErrTooManyRedirects
	}
	last := via[len(via)-1]
	if last.URL.Host != req.URL.Host || last.URL.Scheme != req.URL.Scheme {
		req.Header.Del("Authorization")
	}
	return nil
}

// Fetch retrieves rawURL with a plain GET and no extra headers/body - the
// shape internal/transcode's ImageFetcher and the common page-fetch path
// need.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	return f.Do(ctx, http.MethodGet, rawURL, nil, nil)
}

// FetchImage is the narrow ImageFetcher contract internal/transcode
// depends on.
func (f *Fetcher) FetchImage(ctx context.Context, rawURL string) ([]byte, string, error) {
	return f.Fetch(ctx, rawURL)
}

// Do is the full fetch contract from spec §4.E: fetch(url, method,
// headers, body, session) → Response | Error (session is threaded in via
// WithJar rather than as a parameter here). It tries an HTTPS upgrade
// first when configured, trying the original URL on any attempt failure
// including a 5xx response, then checks the final response's status
// code, surfacing UpstreamStatusError on 4xx/5xx.
func (f *Fetcher) Do(ctx context.Context, method, rawURL string, headers http.Header, body io.Reader) ([]byte, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("fetch: parse url: %w", err)
	}

	var bodyBytes []byte
	if body != nil {
		bodyBytes, err = io.ReadAll(body)
		if err != nil {
			return nil, "", fmt.Errorf("fetch: read request body: %w", err)
		}
	}

	if f.cfg.TryHTTPSFirst && u.Scheme == "http" {
		upgraded := *u
		upgraded.Scheme = "https"

		upgradeCtx, cancel := context.WithTimeout(ctx, httpsUpgradeTimeout)
		data, ct, status, uerr := f.do(upgradeCtx, method, &upgraded, headers, bodyReader(bodyBytes))
		cancel()

		// Any connect/TLS failure or 5xx response is an upgrade failure
		// per spec §4.E; fall through to the plain http attempt below.
		if uerr == nil && status < 500 {
			if status >= 400 {
				return nil, "", &UpstreamStatusError{StatusCode: status}
			}
			return data, ct, nil
		}
	}

	data, ct, status, err := f.do(ctx, method, u, headers, bodyReader(bodyBytes))
	if err != nil {
		return nil, "", err
	}
	if status >= 400 {
		return nil, "", &UpstreamStatusError{StatusCode: status}
	}
	return data, ct, nil
}

func bodyReader(b []byte) io.Reader {
	if b == nil {
		return nil
	}
	return bytes.NewReader(b)
}

func (f *Fetcher) do(ctx context.Context, method string, u *url.URL, headers http.Header, body io.Reader) ([]byte, string, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, "", 0, fmt.Errorf("fetch: build request: %w", err)
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}

	site := u.Hostname()
	if f.jar != nil {
		if cookies := f.jar.CookieHeader(site, u.Scheme, u.Path); cookies != "" {
			req.Header.Set("Cookie", cookies)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", 0, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if f.jar != nil {
		for _, c := range resp.Cookies() {
			f.jar.Set(site, c)
		}
	}

	limited := io.LimitReader(resp.Body, f.cfg.MaxBodyBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, "", 0, fmt.Errorf("fetch: read body: %w", err)
	}
	if int64(len(data)) > f.cfg.MaxBodyBytes {
		return nil, "", 0, ErrTooLarge
	}

	contentType := resp.Header.Get("Content-Type")
	contentType = strings.SplitN(contentType, ";", 2)[0]
	contentType = strings.TrimSpace(contentType)

	return data, contentType, resp.StatusCode, nil
}
