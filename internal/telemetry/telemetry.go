// Package telemetry reports per-request stage timing to the structured
// logger. It keeps the teacher's channel-of-updates shape (pkg/progress)
// but swaps the terminal progress bar for a zerolog line per stage, since
// a server process has no foreground progress to draw.
package telemetry

import (
	"time"

	"github.com/rs/zerolog"
)

// Update reports that a named pipeline stage finished for one request.
type Update struct {
	RequestID string
	Stage     string // "builtin_page", "fetch", "transcode"
	Duration  time.Duration
	Err       error
}

// Reporter drains a channel of Updates and logs each one.
type Reporter struct {
	updates <-chan Update
	done    chan struct{}
	log     zerolog.Logger
}

// NewReporter creates a Reporter bound to log and returns the send-only
// channel callers publish Updates on.
func NewReporter(log zerolog.Logger) (*Reporter, chan<- Update) {
	ch := make(chan Update, 64)
	return &Reporter{
		updates: ch,
		done:    make(chan struct{}),
		log:     log,
	}, ch
}

// Start begins draining updates in the background.
func (r *Reporter) Start() {
	go func() {
		for u := range r.updates {
			ev := r.log.Debug()
			if u.Err != nil {
				ev = r.log.Warn()
			}
			ev.Str("request_id", u.RequestID).
				Str("stage", u.Stage).
				Dur("duration", u.Duration).
				AnErr("error", u.Err).
				Msg("stage complete")
		}
		close(r.done)
	}()
}

// Wait blocks until the update channel is closed and draining finishes.
func (r *Reporter) Wait() {
	<-r.done
}
