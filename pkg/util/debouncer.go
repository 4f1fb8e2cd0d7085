package util

import (
	"sync"
	"time"
)

// Debouncer fires once when Reset has not been called for its duration.
// It is safe for concurrent use. A fire that races with Reset is discarded.
//
// Example usage:
//
//	stale := NewDebouncer(500 * time.Millisecond)
//	defer stale.Stop()
//
//	for range ticker.C {
//	    if gotData() {
//	        stale.Reset()
//	    } else if stale.Fired() {
//	        log("no data for 500ms")
//	    }
//	}
type Debouncer struct {
	duration time.Duration
	fired    chan struct{}

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	stopped bool
}

// NewDebouncer creates a debouncer that is already running.
func NewDebouncer(duration time.Duration) *Debouncer {
	d := &Debouncer{
		duration: duration,
		fired:    make(chan struct{}, 1),
	}
	d.timer = time.AfterFunc(duration, d.fireFunc(0))
	return d
}

func (d *Debouncer) fireFunc(gen uint64) func() {
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.stopped || gen != d.gen {
			return
		}
		select {
		case d.fired <- struct{}{}:
		default:
		}
	}
}

// Reset restarts the countdown and clears a pending fire.
// After Stop it is a no-op.
func (d *Debouncer) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	d.timer.Stop()
	d.gen++
	select {
	case <-d.fired:
	default:
	}
	d.timer = time.AfterFunc(d.duration, d.fireFunc(d.gen))
}

// C delivers one value per expiry.
func (d *Debouncer) C() <-chan struct{} {
	return d.fired
}

// Fired reports whether the debouncer expired since the last Reset, consuming
// the expiry. It never blocks.
func (d *Debouncer) Fired() bool {
	select {
	case <-d.fired:
		return true
	default:
		return false
	}
}

// Duration returns the quiet period.
func (d *Debouncer) Duration() time.Duration {
	return d.duration
}

// Stop cancels the debouncer permanently. It's safe to call Stop multiple times.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.stopped {
		d.timer.Stop()
		d.stopped = true
	}
}
