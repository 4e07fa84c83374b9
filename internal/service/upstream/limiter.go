package upstream

import (
	"context"
	"sync/atomic"
)

// maxSlots caps the per-backend concurrency bound.
const maxSlots = 1024

// slots bounds concurrent calls to one backend. A nil *slots is unbounded.
type slots struct {
	sem chan struct{}
}

// newSlots returns nil for size <= 0 and clamps size to maxSlots.
func newSlots(size int) *slots {
	if size <= 0 {
		return nil
	}
	if size > maxSlots {
		size = maxSlots
	}
	return &slots{sem: make(chan struct{}, size)}
}

// acquire reserves one slot, blocking until one is free or ctx is done.
// It returns ctx.Err() if acquisition is aborted.
func (s *slots) acquire(ctx context.Context) error {
	if s == nil {
		return nil
	}
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// release frees a previously acquired slot.
func (s *slots) release() {
	if s == nil {
		return
	}
	<-s.sem
}

// tracker counts running calls and reports every change to onChange.
type tracker struct {
	running  atomic.Int64
	onChange func(n int64)
}

func (t *tracker) inc() { t.report(t.running.Add(1)) }

func (t *tracker) dec() { t.report(t.running.Add(-1)) }

func (t *tracker) load() int64 { return t.running.Load() }

func (t *tracker) report(n int64) {
	if t.onChange != nil {
		t.onChange(n)
	}
}
