package voice

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Raikerian/go-voicerelay/internal/observe"
	"github.com/Raikerian/go-voicerelay/pkg/util"
	"github.com/Raikerian/go-voicerelay/pkg/voice/capture"
	"github.com/Raikerian/go-voicerelay/pkg/voice/playback"
)

// Stage is how far a tick progressed.
type Stage int

const (
	// StageIdle means the tick ran while not recording and did nothing.
	StageIdle Stage = iota
	StageAvailability
	StageFetch
	StageDecode
	// StageStreamed means samples were handed to the sink.
	StageStreamed
)

var stageNames = [...]string{
	StageIdle:         "idle",
	StageAvailability: "availability",
	StageFetch:        "fetch",
	StageDecode:       "decode",
	StageStreamed:     "streamed",
}

// String returns the stage name.
func (s Stage) String() string {
	if s >= 0 && int(s) < len(stageNames) {
		return stageNames[s]
	}
	return "unknown"
}

// TickResult describes one tick. Stage is the last stage reached; when the
// tick stopped early Err holds the capture error, if any.
type TickResult struct {
	Stage     Stage
	Err       error
	Available uint32
	Fetched   int // compressed bytes
	Decoded   int // decoded bytes
	Samples   int // samples converted
	Accepted  int // samples the sink took
}

// Status is a point-in-time view of the pipeline for operators.
type Status struct {
	Recording       bool
	Restricted      bool
	Ticks           uint64
	DecodeFailures  uint64
	SamplesStreamed uint64
	LastSampleAt    time.Time
}

// PipelineOptions configures a Pipeline.
type PipelineOptions struct {
	Logger  *zap.Logger
	Service capture.Service
	State   StateReader
	Sink    playback.Sink
	Metrics *observe.Metrics // optional

	SampleRate           int
	BytesPerSample       int
	CompressedBufferSize int
	Format               SampleFormat

	// StaleAfter enables a notice when recording yields no samples for this
	// long. Zero disables it.
	StaleAfter time.Duration
}

// Pipeline moves audio from the capture service to the playback sink, one
// tick at a time. Tick must not be called concurrently.
type Pipeline struct {
	logger     *zap.Logger
	service    capture.Service
	state      StateReader
	sink       playback.Sink
	metrics    *observe.Metrics
	sampleRate int
	format     SampleFormat

	compressed []byte
	decoded    []byte
	samples    []float32

	stale            *util.Debouncer
	inSession        bool
	restrictedLogged bool

	restricted      atomic.Bool
	ticks           atomic.Uint64
	decodeFailures  atomic.Uint64
	samplesStreamed atomic.Uint64
	lastSampleAt    atomic.Int64 // unix nanos
}

// NewPipeline validates opts and allocates the tick buffers.
func NewPipeline(opts PipelineOptions) (*Pipeline, error) {
	var errs []error
	if opts.Service == nil {
		errs = append(errs, errors.New("capture service is required"))
	}
	if opts.State == nil {
		errs = append(errs, errors.New("state reader is required"))
	}
	if opts.Sink == nil {
		errs = append(errs, errors.New("playback sink is required"))
	}
	if opts.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sample rate must be positive, got %d", opts.SampleRate))
	}
	if opts.BytesPerSample <= 0 {
		errs = append(errs, fmt.Errorf("bytes per sample must be positive, got %d", opts.BytesPerSample))
	}
	if opts.CompressedBufferSize <= 0 {
		errs = append(errs, fmt.Errorf("compressed buffer size must be positive, got %d", opts.CompressedBufferSize))
	}
	if opts.StaleAfter < 0 {
		errs = append(errs, fmt.Errorf("stale-after must not be negative, got %s", opts.StaleAfter))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	decodedSize := opts.SampleRate * opts.BytesPerSample
	p := &Pipeline{
		logger:     logger,
		service:    opts.Service,
		state:      opts.State,
		sink:       opts.Sink,
		metrics:    opts.Metrics,
		sampleRate: opts.SampleRate,
		format:     opts.Format,
		compressed: make([]byte, opts.CompressedBufferSize),
		decoded:    make([]byte, decodedSize),
		samples:    make([]float32, 0, opts.Format.SampleCount(decodedSize)),
	}
	if opts.StaleAfter > 0 {
		p.stale = util.NewDebouncer(opts.StaleAfter)
	}
	return p, nil
}

// Tick runs one capture, decode, convert and stream cycle. It does nothing
// unless recording. Transient capture codes end the tick quietly and a decode
// failure abandons it with a warning; nothing is retried.
func (p *Pipeline) Tick(ctx context.Context) TickResult {
	if p.state.State() != Recording {
		p.inSession = false
		return TickResult{Stage: StageIdle}
	}
	if !p.inSession {
		p.beginSession()
	}
	p.ticks.Add(1)

	res := TickResult{Stage: StageAvailability}

	available, err := p.service.AvailableBytes()
	res.Available = available
	if err == nil {
		p.restricted.Store(false)
	}
	if err != nil || available == 0 {
		return p.skip(ctx, res, err)
	}

	res.Stage = StageFetch
	fetched, err := p.service.FetchBytes(p.compressed)
	res.Fetched = clamp(fetched, len(p.compressed))
	if err != nil || res.Fetched == 0 {
		return p.skip(ctx, res, err)
	}

	res.Stage = StageDecode
	decoded, err := p.service.Decode(p.compressed[:res.Fetched], p.decoded, p.sampleRate)
	if err != nil {
		res.Err = err
		p.decodeFailures.Add(1)
		p.logger.Warn("Decode failed",
			zap.Int("compressed_bytes", res.Fetched),
			zap.Error(err))
		p.metrics.RecordTick(ctx, "decode_failed")
		return res
	}
	res.Decoded = clamp(decoded, len(p.decoded))
	if res.Decoded == 0 {
		return p.skip(ctx, res, nil)
	}

	p.samples = p.format.AppendSamples(p.samples[:0], p.decoded[:res.Decoded])
	res.Samples = len(p.samples)
	if res.Samples == 0 {
		return p.skip(ctx, res, nil)
	}

	res.Stage = StageStreamed
	res.Accepted = p.sink.AppendSamples(p.samples)

	p.samplesStreamed.Add(uint64(res.Accepted))
	p.lastSampleAt.Store(time.Now().UnixNano())
	if p.stale != nil {
		p.stale.Reset()
	}

	p.logger.Debug("Streamed voice samples",
		zap.Int("compressed_bytes", res.Fetched),
		zap.Int("decoded_bytes", res.Decoded),
		zap.Int("samples", res.Samples),
		zap.Int("accepted", res.Accepted))
	p.metrics.RecordTick(ctx, "streamed")
	p.metrics.RecordStream(ctx, res.Decoded, res.Accepted, res.Samples-res.Accepted)

	return res
}

func (p *Pipeline) beginSession() {
	p.inSession = true
	p.restrictedLogged = false
	p.restricted.Store(false)
	if p.stale != nil {
		p.stale.Reset()
	}
}

// skip ends a tick that produced nothing. err is nil for empty results.
func (p *Pipeline) skip(ctx context.Context, res TickResult, err error) TickResult {
	res.Err = err

	reason := "empty"
	if err != nil {
		reason = "error"
		if code, ok := capture.CodeOf(err); ok {
			reason = code.String()
			if code == capture.Restricted {
				p.noteRestricted()
			}
		}
	}

	p.logger.Debug("Voice tick skipped",
		zap.Stringer("stage", res.Stage),
		zap.String("reason", reason))
	p.metrics.RecordTick(ctx, "skipped")
	p.metrics.RecordSkip(ctx, res.Stage.String(), reason)

	if p.stale != nil && p.stale.Fired() {
		p.logger.Debug("No voice data received while recording",
			zap.Duration("stale_after", p.stale.Duration()))
	}
	return res
}

func (p *Pipeline) noteRestricted() {
	p.restricted.Store(true)
	if p.restrictedLogged {
		return
	}
	p.restrictedLogged = true
	p.logger.Info("Voice capture is restricted by the platform; no audio will be relayed")
}

// Restricted reports whether the capture service said it is restricted
// during the current recording.
func (p *Pipeline) Restricted() bool {
	return p.restricted.Load()
}

// Status returns a snapshot safe to call from any goroutine.
func (p *Pipeline) Status() Status {
	st := Status{
		Recording:       p.state.State() == Recording,
		Restricted:      p.restricted.Load(),
		Ticks:           p.ticks.Load(),
		DecodeFailures:  p.decodeFailures.Load(),
		SamplesStreamed: p.samplesStreamed.Load(),
	}
	if ns := p.lastSampleAt.Load(); ns != 0 {
		st.LastSampleAt = time.Unix(0, ns)
	}
	return st
}

// Close stops the stale-data watchdog.
func (p *Pipeline) Close() {
	if p.stale != nil {
		p.stale.Stop()
	}
}

// clamp bounds a reported byte count to [0, capacity].
func clamp(n, capacity int) int {
	return max(0, min(n, capacity))
}
