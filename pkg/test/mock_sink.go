package test

import (
	"sync"

	"github.com/Raikerian/go-voicerelay/pkg/voice/playback"
)

// RecordingSink is a playback.Sink that keeps every appended batch.
// Limit caps accepted samples per call when positive.
type RecordingSink struct {
	Limit int

	mu      sync.Mutex
	batches [][]float32
}

var _ playback.Sink = (*RecordingSink)(nil)

// AppendSamples implements playback.Sink.
func (s *RecordingSink) AppendSamples(samples []float32) int {
	n := len(samples)
	if s.Limit > 0 {
		n = min(n, s.Limit)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]float32(nil), samples[:n]...))
	return n
}

// Batches returns copies of all appended batches.
func (s *RecordingSink) Batches() [][]float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]float32(nil), s.batches...)
}

// Samples returns all accepted samples in order.
func (s *RecordingSink) Samples() []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []float32
	for _, b := range s.batches {
		out = append(out, b...)
	}
	return out
}
