// Package playback provides a live audio stream that accepts appended
// samples without blocking and hands them to an output consumer.
package playback

import (
	"sync"
)

// Sink accepts normalized mono samples for playback.
type Sink interface {
	// AppendSamples queues samples in order and returns how many were
	// accepted. It never blocks.
	AppendSamples(samples []float32) int
}

// Stream is a fixed-capacity FIFO of float32 samples at a fixed rate.
// Samples that do not fit are dropped; queued audio is never overwritten.
type Stream struct {
	rate int

	mu      sync.Mutex
	buf     []float32
	head    int // index of the oldest sample
	size    int
	dropped uint64
}

var _ Sink = (*Stream)(nil)

// NewStream creates a stream at rate holding up to capacity samples.
// Capacity is at least one sample.
func NewStream(rate, capacity int) *Stream {
	capacity = max(capacity, 1)
	return &Stream{
		rate: rate,
		buf:  make([]float32, capacity),
	}
}

// Rate returns the playback sample rate.
func (s *Stream) Rate() int { return s.rate }

// Cap returns the maximum number of queued samples.
func (s *Stream) Cap() int { return len(s.buf) }

// AppendSamples implements Sink.
func (s *Stream) AppendSamples(samples []float32) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := min(len(samples), len(s.buf)-s.size)
	tail := (s.head + s.size) % len(s.buf)
	first := copy(s.buf[tail:], samples[:n])
	copy(s.buf, samples[first:n])

	s.size += n
	s.dropped += uint64(len(samples) - n)
	return n
}

// Read dequeues up to len(dst) samples, oldest first.
func (s *Stream) Read(dst []float32) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := min(len(dst), s.size)
	first := copy(dst[:n], s.buf[s.head:])
	copy(dst[first:n], s.buf)

	s.head = (s.head + n) % len(s.buf)
	s.size -= n
	return n
}

// Len returns the number of queued samples.
func (s *Stream) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Dropped returns how many appended samples did not fit.
func (s *Stream) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}
