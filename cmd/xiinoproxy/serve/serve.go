// Package serve implements the `serve` subcommand: it builds the
// orchestrator from config and hands requests to it. The HTTP listener
// itself is a thin net/http.Server wrapper; TLS cert loading and
// connection tuning are the out-of-scope listener-plumbing collaborator
// named in spec §1.
package serve

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"

	"github.com/mrmarble/xiinoproxy/internal/config"
	"github.com/mrmarble/xiinoproxy/internal/fetch"
	"github.com/mrmarble/xiinoproxy/internal/imageproc"
	"github.com/mrmarble/xiinoproxy/internal/orchestrator"
	"github.com/mrmarble/xiinoproxy/internal/pages"
)

// Cmd starts the HTTP listener.
type Cmd struct {
	Addr string `short:"a" help:"Address to listen on" default:""`
}

func (cmd *Cmd) Run() error {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	cfg := config.Load(logger)
	if cmd.Addr != "" {
		cfg.ListenAddr = cmd.Addr
	}

	// The base fetcher carries no jar of its own - cookie state is
	// per-session (spec §3) and supplied per request via
	// Fetcher.WithJar inside the orchestrator.
	fetchCfg := fetch.DefaultConfig()
	fetchCfg.Timeout = cfg.FetchTimeout
	fetchCfg.MaxRedirects = cfg.MaxRedirects
	fetcher := fetch.New(fetchCfg, nil)

	proc := imageproc.New(imageproc.DefaultConfig(), nil)

	orchCfg := orchestrator.DefaultConfig()
	orchCfg.RequestsPerSecond = cfg.RequestsPerSecond
	orchCfg.BurstPerClient = cfg.BurstPerClient
	orchCfg.MaxPageWeight = cfg.MaxPageWeight
	orchCfg.MaxImages = cfg.MaxImages
	orchCfg.PageDeadline = cfg.PageDeadline

	orch := orchestrator.New(orchCfg, proc, fetcher, logger)
	defer orch.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		clientIP := clientIPFrom(r.RemoteAddr)
		if !orch.Allow(clientIP) {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(pages.Render(pages.RateLimited, pages.Data{RequestID: "-"})))
			return
		}

		target := r.URL.Query().Get("url")
		if target == "" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(pages.Render(pages.BadRequest, pages.Data{Message: "missing url parameter"})))
			return
		}

		body, ok := readLimitedBody(w, r, cfg.MaxRequestSize)
		if !ok {
			return
		}

		result := orch.HandlePage(r.Context(), orchestrator.Request{
			ClientIP:  clientIP,
			UserAgent: r.UserAgent(),
			Method:    r.Method,
			Headers:   r.Header,
			Body:      body,
			URL:       target,
			Query:     r.URL.Query(),
		})
		logger.Info().Str("request_id", result.RequestID).Str("url", target).Err(result.Err).Msg("page served")
		_, _ = w.Write([]byte(result.HTML))
	})

	fmt.Println(color.GreenString("xiinoproxy listening on %s", cfg.ListenAddr))
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

// clientIPFrom strips the port from a RemoteAddr so per-client rate
// limiting and session keys bucket by host, not by ephemeral port.
func clientIPFrom(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

// readLimitedBody enforces spec §4.G's request-size cap: bodies over
// maxBytes are rejected with RequestTooLarge before any of it reaches the
// fetcher. It writes the error response itself and returns ok=false when
// the request should stop here.
func readLimitedBody(w http.ResponseWriter, r *http.Request, maxBytes int64) (io.Reader, bool) {
	if r.ContentLength > maxBytes {
		writeRequestTooLarge(w, maxBytes)
		return nil, false
	}
	if r.Body == nil {
		return nil, true
	}
	defer r.Body.Close()

	limited := io.LimitReader(r.Body, maxBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(pages.Render(pages.BadRequest, pages.Data{Message: "could not read request body"})))
		return nil, false
	}
	if int64(len(data)) > maxBytes {
		writeRequestTooLarge(w, maxBytes)
		return nil, false
	}
	if len(data) == 0 {
		return nil, true
	}
	return bytes.NewReader(data), true
}

func writeRequestTooLarge(w http.ResponseWriter, maxBytes int64) {
	w.WriteHeader(http.StatusRequestEntityTooLarge)
	_, _ = w.Write([]byte(pages.Render(pages.RequestTooLarge, pages.Data{
		Message: fmt.Sprintf("request body exceeds the %d byte limit", maxBytes),
	})))
}
