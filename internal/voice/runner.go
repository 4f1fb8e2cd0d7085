package voice

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Raikerian/go-voicerelay/internal/trigger"
)

// Runner drives the controller and the pipeline from a single goroutine, so
// edge handling and ticks never overlap.
type Runner struct {
	logger     *zap.Logger
	controller *CaptureController
	pipeline   *Pipeline
	trigger    trigger.Source
	interval   time.Duration
}

// NewRunner creates a runner that ticks every interval.
func NewRunner(logger *zap.Logger, controller *CaptureController, pipeline *Pipeline, src trigger.Source, interval time.Duration) *Runner {
	return &Runner{
		logger:     logger,
		controller: controller,
		pipeline:   pipeline,
		trigger:    src,
		interval:   interval,
	}
}

// Run handles edges and ticks until ctx is done or the trigger source closes.
// Recording is stopped before returning.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	defer func() {
		if r.controller.State() == Recording {
			r.controller.OnTriggerReleased()
		}
	}()

	edges := r.trigger.Edges(ctx)
	r.logger.Info("Voice relay running", zap.Duration("tick_interval", r.interval))

	for {
		select {
		case <-ctx.Done():
			return nil
		case edge, ok := <-edges:
			if !ok {
				r.logger.Info("Trigger source closed")
				return nil
			}
			r.controller.Handle(edge)
		case <-ticker.C:
			r.pipeline.Tick(ctx)
		}
	}
}
