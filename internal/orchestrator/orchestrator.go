// Package orchestrator assembles one request's full pipeline: rate
// limiting, `.xiino` dispatch, per-session cookie jars, budget
// construction, fetch, transcode, and response, plus the bounded worker
// pool that keeps CPU-heavy image work off request goroutines (spec
// §4.G, §5).
package orchestrator

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"github.com/mrmarble/xiinoproxy/internal/budget"
	"github.com/mrmarble/xiinoproxy/internal/cookiejar"
	"github.com/mrmarble/xiinoproxy/internal/device"
	"github.com/mrmarble/xiinoproxy/internal/fetch"
	"github.com/mrmarble/xiinoproxy/internal/imageproc"
	"github.com/mrmarble/xiinoproxy/internal/pages"
	"github.com/mrmarble/xiinoproxy/internal/reqid"
	"github.com/mrmarble/xiinoproxy/internal/telemetry"
	"github.com/mrmarble/xiinoproxy/internal/transcode"

	"github.com/rs/zerolog"
)

// Config controls request-wide limits (spec §4.G).
type Config struct {
	RequestsPerSecond rate.Limit
	BurstPerClient    int
	MaxPageWeight     int64
	MaxImages         int
	PageDeadline      time.Duration
}

// DefaultConfig returns the orchestrator's default policy.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 2,
		BurstPerClient:    5,
		MaxPageWeight:     int64(device.DefaultMaxPageWeight),
		MaxImages:         40,
		PageDeadline:      20 * time.Second,
	}
}

// Orchestrator wires together an image processor, a base fetcher,
// per-client rate limiters, per-session cookie jars, and a bounded CPU
// worker pool (grounded on the teacher's pkg/raster worker-pool shape: a
// fixed-size job channel drained by runtime.NumCPU() goroutines under
// one sync.WaitGroup).
type Orchestrator struct {
	cfg      Config
	images   *imageproc.Processor
	fetcher  *fetch.Fetcher
	ids      *reqid.Minter
	reporter *telemetry.Reporter
	updates  chan<- telemetry.Update
	log      zerolog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	jars     map[string]*cookiejar.Jar

	jobs chan func()
	wg   sync.WaitGroup
}

// New builds an Orchestrator and starts its worker pool and telemetry
// reporter; call Close to drain both on shutdown. images and fetcher are
// shared, stateless collaborators - per-session state (cookie jars) and
// per-request state (the transcoder bound to a session's jar) are built
// fresh inside HandlePage.
func New(cfg Config, images *imageproc.Processor, fetcher *fetch.Fetcher, log zerolog.Logger) *Orchestrator {
	reporter, updates := telemetry.NewReporter(log)
	reporter.Start()

	o := &Orchestrator{
		cfg:      cfg,
		images:   images,
		fetcher:  fetcher,
		ids:      reqid.NewMinter(),
		reporter: reporter,
		updates:  updates,
		log:      log,
		limiters: make(map[string]*rate.Limiter),
		jars:     make(map[string]*cookiejar.Jar),
		jobs:     make(chan func(), runtime.NumCPU()*4),
	}

	numWorkers := runtime.NumCPU()
	for w := 0; w < numWorkers; w++ {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			for job := range o.jobs {
				job()
			}
		}()
	}

	return o
}

// Close stops accepting new work and waits for the worker pool and
// telemetry reporter to drain.
func (o *Orchestrator) Close() {
	close(o.jobs)
	o.wg.Wait()
	close(o.updates)
	o.reporter.Wait()
}

// Allow reports whether clientIP may proceed under its token bucket,
// creating a fresh bucket on first sight (spec §4.G per-client rate
// limiting).
func (o *Orchestrator) Allow(clientIP string) bool {
	o.mu.Lock()
	lim, ok := o.limiters[clientIP]
	if !ok {
		lim = rate.NewLimiter(o.cfg.RequestsPerSecond, o.cfg.BurstPerClient)
		o.limiters[clientIP] = lim
	}
	o.mu.Unlock()
	return lim.Allow()
}

// jarFor returns the cookie jar for sessionKey, creating one on first
// sight (spec §3: "the jar is per session"), the same lazily-created,
// mutex-guarded per-key map shape Allow already uses for rate limiters.
func (o *Orchestrator) jarFor(sessionKey string) *cookiejar.Jar {
	o.mu.Lock()
	defer o.mu.Unlock()
	jar, ok := o.jars[sessionKey]
	if !ok {
		jar = cookiejar.New()
		o.jars[sessionKey] = jar
	}
	return jar
}

// SessionKey derives a stable per-session token from a client's IP and
// user-agent (spec §3: "session identity is derived from a stable client
// token e.g. device IP+UA hash").
func SessionKey(clientIP, userAgent string) string {
	sum := sha256.Sum256([]byte(clientIP + "|" + userAgent))
	return hex.EncodeToString(sum[:])
}

// xiinoPage reports whether rawURL's host ends in ".xiino" and, if so,
// which built-in page (component H) it maps to (spec §4.G: "Hosts ending
// in .xiino are routed to the built-in pages component H; no outbound
// fetch").
func xiinoPage(rawURL string) (pages.Kind, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	host := strings.ToLower(u.Hostname())
	if !strings.HasSuffix(host, ".xiino") {
		return "", false
	}
	switch strings.TrimSuffix(host, ".xiino") {
	case "about":
		return pages.About, true
	case "palette":
		return pages.PaletteDemo, true
	default:
		return pages.NotFound, true
	}
}

// paletteSwatches renders up to 32 of dev's palette entries as #rrggbb
// strings for the palette-test built-in page.
func paletteSwatches(dev device.Profile) []string {
	p := dev.Palette()
	n := p.Len()
	if n > 32 {
		n = 32
	}
	swatches := make([]string, n)
	for i := 0; i < n; i++ {
		c := p.At(i)
		swatches[i] = fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
	}
	return swatches
}

// Result is the final outcome of handling one page request.
type Result struct {
	RequestID string
	HTML      string
	Err       error
}

// Request describes one client call into the orchestrator (spec §4.G
// assembly): the session identity (for rate limiting and the cookie
// jar), the upstream request to issue, and the device-detection inputs.
type Request struct {
	ClientIP  string
	UserAgent string
	Method    string
	Headers   http.Header
	Body      io.Reader
	URL       string
	Query     url.Values
}

// HandlePage runs `.xiino` dispatch or fetch -> parse -> transcode for
// one page request, dispatching the CPU-bound transcode stage onto the
// worker pool so many concurrent requests never starve each other on
// image processing.
func (o *Orchestrator) HandlePage(ctx context.Context, req Request) Result {
	id := o.ids.Next()
	dev := device.FromRequest(req.UserAgent, req.Query)

	if kind, ok := xiinoPage(req.URL); ok {
		o.emit(id, "builtin_page", 0, nil)
		return Result{RequestID: id, HTML: pages.Render(kind, pages.Data{RequestID: id, Swatches: paletteSwatches(dev)})}
	}

	b := budget.New(o.cfg.MaxPageWeight, o.cfg.MaxImages, timeNow().Add(o.cfg.PageDeadline))

	ctx, cancel := b.Context(ctx)
	defer cancel()

	jar := o.jarFor(SessionKey(req.ClientIP, req.UserAgent))
	sessionFetcher := o.fetcher.WithJar(jar)
	transcoder := transcode.New(o.images, sessionFetcher)

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	fetchStart := timeNow()
	raw, _, err := sessionFetcher.Do(ctx, method, req.URL, req.Headers, req.Body)
	o.emit(id, "fetch", timeNow().Sub(fetchStart), err)
	if err != nil {
		var upstreamErr *fetch.UpstreamStatusError
		if errors.As(err, &upstreamErr) {
			return Result{RequestID: id, Err: err, HTML: pages.Render(pages.UpstreamError, pages.Data{RequestID: id, Message: upstreamErr.Error()})}
		}
		return Result{RequestID: id, Err: err, HTML: pages.Render(pages.ServerError, pages.Data{RequestID: id})}
	}

	base, _ := url.Parse(req.URL)

	type transcodeOutcome struct {
		html string
		err  error
	}
	outcome := make(chan transcodeOutcome, 1)

	o.jobs <- func() {
		start := timeNow()
		root, perr := html.Parse(bytesReader(raw))
		if perr != nil {
			o.emit(id, "transcode", timeNow().Sub(start), perr)
			outcome <- transcodeOutcome{html: transcode.PlaintextFallback(raw), err: nil}
			return
		}
		transcoder.Transcode(ctx, root, base, dev, b)
		rendered, rerr := renderHTML(root)
		o.emit(id, "transcode", timeNow().Sub(start), rerr)
		outcome <- transcodeOutcome{html: rendered, err: rerr}
	}

	select {
	case res := <-outcome:
		if res.err != nil {
			return Result{RequestID: id, Err: res.err, HTML: pages.Render(pages.ServerError, pages.Data{RequestID: id})}
		}
		return Result{RequestID: id, HTML: res.html}
	case <-ctx.Done():
		return Result{RequestID: id, Err: ctx.Err(), HTML: pages.Render(pages.Timeout, pages.Data{RequestID: id})}
	}
}

func (o *Orchestrator) emit(id, stage string, d time.Duration, err error) {
	select {
	case o.updates <- telemetry.Update{RequestID: id, Stage: stage, Duration: d, Err: err}:
	default:
	}
}

// timeNow is a seam so deadline math stays testable without depending on
// wall-clock scheduling between calls.
var timeNow = time.Now

func bytesReader(b []byte) io.Reader {
	return bytes.NewReader(b)
}

func renderHTML(n *html.Node) (string, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return "", err
	}
	return buf.String(), nil
}
