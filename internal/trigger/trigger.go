// Package trigger delivers push-to-talk press and release edges.
package trigger

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Edge is a discrete transition of the recording control.
type Edge int

const (
	Pressed Edge = iota + 1
	Released
)

// String returns the edge name.
func (e Edge) String() string {
	switch e {
	case Pressed:
		return "pressed"
	case Released:
		return "released"
	default:
		return "unknown"
	}
}

// Source produces edges until ctx is done. Implementations close the
// returned channel when they stop, and emit at most one edge per physical
// transition.
type Source interface {
	Edges(ctx context.Context) <-chan Edge
}

// Schedule presses after a delay and releases after holding.
type Schedule struct {
	logger     *zap.Logger
	pressAfter time.Duration
	holdFor    time.Duration
}

// NewSchedule returns a scripted trigger for headless runs.
func NewSchedule(logger *zap.Logger, pressAfter, holdFor time.Duration) *Schedule {
	return &Schedule{logger: logger, pressAfter: pressAfter, holdFor: holdFor}
}

// Edges implements Source.
func (s *Schedule) Edges(ctx context.Context) <-chan Edge {
	out := make(chan Edge)
	go func() {
		defer close(out)

		for _, step := range []struct {
			wait time.Duration
			edge Edge
		}{
			{s.pressAfter, Pressed},
			{s.holdFor, Released},
		} {
			t := time.NewTimer(step.wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}

			s.logger.Debug("Scheduled trigger edge", zap.Stringer("edge", step.edge))
			select {
			case out <- step.edge:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
