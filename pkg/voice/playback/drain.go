package playback

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"
)

// Drain consumes the stream in real time, writing one period of audio per
// tick to w as little-endian float32. Underruns are filled with silence so
// the output keeps its clock. It returns when ctx is done.
func Drain(ctx context.Context, s *Stream, w io.Writer, period time.Duration) error {
	if period <= 0 {
		return fmt.Errorf("drain period must be positive, got %s", period)
	}

	chunk := int(int64(s.Rate()) * int64(period) / int64(time.Second))
	if chunk == 0 {
		return fmt.Errorf("drain period %s is shorter than one sample at %d Hz", period, s.Rate())
	}

	samples := make([]float32, chunk)
	out := make([]byte, chunk*4)

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n := s.Read(samples)
			clear(samples[n:])

			for i, v := range samples {
				binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
			}
			if _, err := w.Write(out); err != nil {
				return fmt.Errorf("write playback output: %w", err)
			}
		}
	}
}
