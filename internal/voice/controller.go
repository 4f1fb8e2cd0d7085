package voice

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/Raikerian/go-voicerelay/internal/observe"
	"github.com/Raikerian/go-voicerelay/internal/trigger"
	"github.com/Raikerian/go-voicerelay/pkg/voice/capture"
)

// RecordingState is whether push-to-talk is currently held.
type RecordingState int32

const (
	Idle RecordingState = iota
	Recording
)

// String returns the state name.
func (s RecordingState) String() string {
	if s == Recording {
		return "recording"
	}
	return "idle"
}

// StateReader exposes the current recording state.
type StateReader interface {
	State() RecordingState
}

// CaptureController turns trigger edges into capture service calls and owns
// the recording state the pipeline is gated on.
type CaptureController struct {
	logger  *zap.Logger
	service capture.Service
	metrics *observe.Metrics

	state atomic.Int32
}

var _ StateReader = (*CaptureController)(nil)

// NewCaptureController creates a controller in the Idle state. metrics may be nil.
func NewCaptureController(logger *zap.Logger, service capture.Service, metrics *observe.Metrics) *CaptureController {
	return &CaptureController{
		logger:  logger,
		service: service,
		metrics: metrics,
	}
}

// OnTriggerPressed starts recording. The capture service is relied upon to
// tolerate repeated starts.
func (c *CaptureController) OnTriggerPressed() {
	if err := c.service.StartRecording(); err != nil {
		c.logger.Debug("Start recording failed", zap.Error(err))
	}
	c.setState(Recording)
}

// OnTriggerReleased stops recording.
func (c *CaptureController) OnTriggerReleased() {
	if err := c.service.StopRecording(); err != nil {
		c.logger.Debug("Stop recording failed", zap.Error(err))
	}
	c.setState(Idle)
}

// Handle dispatches a trigger edge.
func (c *CaptureController) Handle(edge trigger.Edge) {
	switch edge {
	case trigger.Pressed:
		c.OnTriggerPressed()
	case trigger.Released:
		c.OnTriggerReleased()
	default:
		c.logger.Debug("Ignoring unknown trigger edge", zap.Int("edge", int(edge)))
	}
}

// State implements StateReader.
func (c *CaptureController) State() RecordingState {
	return RecordingState(c.state.Load())
}

func (c *CaptureController) setState(s RecordingState) {
	prev := RecordingState(c.state.Swap(int32(s)))
	if prev == s {
		return
	}
	c.logger.Info("Recording state changed", zap.Stringer("state", s))
	c.metrics.RecordRecording(context.Background(), s == Recording)
}
