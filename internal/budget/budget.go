// Package budget tracks the request-scoped resource tally that is threaded
// through one request: bytes emitted so far, images emitted so far, and the
// deadline. Every producer (the HTML transcoder, the image processor)
// checks and decrements it; exhaustion causes graceful truncation rather
// than a hard failure.
package budget

import (
	"context"
	"sync"
	"time"
)

// Budget is guarded by a mutex and is safe for concurrent use. Within one
// page, internal/transcode inlines images one after another, so a single
// request's producers decrement it sequentially.
type Budget struct {
	mu              sync.Mutex
	bytesRemaining  int64
	imagesRemaining int
	deadline        time.Time
}

// New creates a Budget with the given page weight cap, max image count,
// and absolute deadline.
func New(maxPageWeight int64, maxImages int, deadline time.Time) *Budget {
	return &Budget{
		bytesRemaining:  maxPageWeight,
		imagesRemaining: maxImages,
		deadline:        deadline,
	}
}

// BytesRemaining returns the current byte allowance.
func (b *Budget) BytesRemaining() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bytesRemaining
}

// ImagesRemaining returns the current image allowance.
func (b *Budget) ImagesRemaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.imagesRemaining
}

// TryConsumeBytes deducts n bytes if enough remain, returning false
// (without deducting) if it would exceed the remaining allowance. Callers
// use the false case to trigger graceful truncation or ALT-text fallback
// rather than an error.
func (b *Budget) TryConsumeBytes(n int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n > b.bytesRemaining {
		return false
	}
	b.bytesRemaining -= n
	return true
}

// ConsumeImage deducts one image slot if any remain.
func (b *Budget) ConsumeImage() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.imagesRemaining <= 0 {
		return false
	}
	b.imagesRemaining--
	return true
}

// Exhausted reports whether the page byte budget has been fully consumed.
func (b *Budget) Exhausted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bytesRemaining <= 0
}

// Deadline returns the absolute request deadline.
func (b *Budget) Deadline() time.Time { return b.deadline }

// Context returns ctx bounded by the budget's deadline. Cancellation is
// the sole mechanism by which pending stages observe timeout (spec §5):
// every suspension point in E/C/D should be derived from this context.
func (b *Budget) Context(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithDeadline(ctx, b.deadline)
}
