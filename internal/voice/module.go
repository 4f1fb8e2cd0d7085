package voice

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Raikerian/go-voicerelay/internal/config"
	"github.com/Raikerian/go-voicerelay/internal/observe"
	"github.com/Raikerian/go-voicerelay/internal/trigger"
	"github.com/Raikerian/go-voicerelay/pkg/voice/capture"
	"github.com/Raikerian/go-voicerelay/pkg/voice/capture/opus"
	"github.com/Raikerian/go-voicerelay/pkg/voice/playback"
	"github.com/Raikerian/go-voicerelay/pkg/voice/source"
)

var Module = fx.Module("voice",
	fx.Provide(
		NewSource,
		NewOpusService,
		func(s *opus.Service) capture.Service { return s },
		NewPlaybackStream,
		func(s *playback.Stream) playback.Sink { return s },
		NewCaptureController,
		func(c *CaptureController) StateReader { return c },
		NewPipelineFromConfig,
		NewRunnerFromConfig,
	),
)

// NewSourceParams holds dependencies for NewSource.
type NewSourceParams struct {
	fx.In
	Cfg    *config.Config
	Logger *zap.Logger
	LC     fx.Lifecycle
}

// NewSource builds the microphone stand-in selected by capture.source.
func NewSource(params NewSourceParams) (source.Source, error) {
	cp := params.Cfg.Capture
	switch cp.Source {
	case config.CaptureSourceFile:
		f, err := os.Open(cp.FilePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open capture file: %w", err)
		}
		params.LC.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return f.Close()
			},
		})
		params.Logger.Info("Capturing from file", zap.String("path", cp.FilePath))
		return source.NewReader(f, cp.SampleRate), nil
	default:
		params.Logger.Info("Capturing test tone", zap.Float64("frequency", cp.ToneFrequency))
		return source.NewTone(cp.SampleRate, cp.ToneFrequency), nil
	}
}

// NewOpusService creates the capture service. It is started by the app.
func NewOpusService(cfg *config.Config, logger *zap.Logger, src source.Source) (*opus.Service, error) {
	cp := cfg.Capture
	svc, err := opus.New(logger.Named("capture"), src, opus.Options{
		SampleRate:       cp.SampleRate,
		Bitrate:          cp.Bitrate,
		MaxBufferedBytes: cp.MaxBufferedBytes,
		Restricted:       cp.Restricted,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create capture service: %w", err)
	}
	return svc, nil
}

// NewPlaybackStream creates the live stream at the pipeline's sample rate.
func NewPlaybackStream(cfg *config.Config) *playback.Stream {
	return playback.NewStream(cfg.Voice.SampleRate, cfg.Playback.BufferSize)
}

// NewPipelineParams holds dependencies for NewPipelineFromConfig.
type NewPipelineParams struct {
	fx.In
	Cfg     *config.Config
	Logger  *zap.Logger
	Service capture.Service
	State   StateReader
	Sink    playback.Sink
	Metrics *observe.Metrics `optional:"true"`
	LC      fx.Lifecycle
}

// NewPipelineFromConfig creates the pipeline from the voice settings.
func NewPipelineFromConfig(params NewPipelineParams) (*Pipeline, error) {
	v := params.Cfg.Voice
	format, err := ParseSampleFormat(v.SampleFormat)
	if err != nil {
		return nil, err
	}

	p, err := NewPipeline(PipelineOptions{
		Logger:               params.Logger.Named("pipeline"),
		Service:              params.Service,
		State:                params.State,
		Sink:                 params.Sink,
		Metrics:              params.Metrics,
		SampleRate:           v.SampleRate,
		BytesPerSample:       v.BytesPerSample,
		CompressedBufferSize: v.CompressedBufferSize,
		Format:               format,
		StaleAfter:           v.StaleAfter,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create voice pipeline: %w", err)
	}
	params.Logger.Info("Voice pipeline configured",
		zap.Int("sample_rate", v.SampleRate),
		zap.Stringer("sample_format", format),
		zap.Int("compressed_buffer_bytes", v.CompressedBufferSize),
		zap.Int("decoded_buffer_bytes", v.DecodedBufferSize()))

	params.LC.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			st := p.Status()
			params.Logger.Info("Voice pipeline stopped",
				zap.Uint64("ticks", st.Ticks),
				zap.Uint64("samples_streamed", st.SamplesStreamed),
				zap.Uint64("decode_failures", st.DecodeFailures))
			p.Close()
			return nil
		},
	})

	return p, nil
}

// NewRunnerFromConfig creates the runner ticking at voice.tick_interval.
func NewRunnerFromConfig(cfg *config.Config, logger *zap.Logger, controller *CaptureController, pipeline *Pipeline, src trigger.Source) *Runner {
	return NewRunner(logger, controller, pipeline, src, cfg.Voice.TickInterval)
}
