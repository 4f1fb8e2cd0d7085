package voice_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Raikerian/go-voicerelay/internal/observe"
	"github.com/Raikerian/go-voicerelay/internal/voice"
	"github.com/Raikerian/go-voicerelay/pkg/test"
	"github.com/Raikerian/go-voicerelay/pkg/voice/capture"
)

const (
	testSampleRate     = 11025
	testBytesPerSample = 2
	testCompressedSize = 1024
	testDecodedSize    = testSampleRate * testBytesPerSample
)

type fixedState struct{ state voice.RecordingState }

func (f *fixedState) State() voice.RecordingState { return f.state }

type pipelineFixture struct {
	svc      *test.MockCaptureService
	state    *fixedState
	sink     *test.RecordingSink
	pipeline *voice.Pipeline
	logs     *observer.ObservedLogs
}

func newFixture(t *testing.T, format voice.SampleFormat, mutate ...func(*voice.PipelineOptions)) *pipelineFixture {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)

	f := &pipelineFixture{
		svc:   test.NewMockCaptureService(t),
		state: &fixedState{state: voice.Recording},
		sink:  &test.RecordingSink{},
		logs:  logs,
	}
	opts := voice.PipelineOptions{
		Logger:               zap.New(core),
		Service:              f.svc,
		State:                f.state,
		Sink:                 f.sink,
		SampleRate:           testSampleRate,
		BytesPerSample:       testBytesPerSample,
		CompressedBufferSize: testCompressedSize,
		Format:               format,
	}
	for _, m := range mutate {
		m(&opts)
	}

	p, err := voice.NewPipeline(opts)
	require.NoError(t, err)
	t.Cleanup(p.Close)
	f.pipeline = p
	return f
}

// ramp returns n bytes counting up from 0.
func ramp(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}

func lenIs(n int) any {
	return mock.MatchedBy(func(b []byte) bool { return len(b) == n })
}

func TestPipeline_IdleNeverCallsService(t *testing.T) {
	f := newFixture(t, voice.FormatU8)
	f.state.state = voice.Idle

	for range 10 {
		res := f.pipeline.Tick(context.Background())
		assert.Equal(t, voice.StageIdle, res.Stage)
	}

	f.svc.AssertNotCalled(t, "AvailableBytes")
	assert.Empty(t, f.sink.Batches())
	assert.Zero(t, f.pipeline.Status().Ticks)
}

func TestPipeline_ZeroAvailableStopsTick(t *testing.T) {
	f := newFixture(t, voice.FormatU8)
	f.svc.On("AvailableBytes").Return(uint32(0), nil).Once()

	res := f.pipeline.Tick(context.Background())

	assert.Equal(t, voice.StageAvailability, res.Stage)
	assert.NoError(t, res.Err)
	f.svc.AssertNotCalled(t, "FetchBytes", mock.Anything)
	f.svc.AssertNotCalled(t, "Decode", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, f.sink.Batches())
}

func TestPipeline_CaptureCodesAreSilent(t *testing.T) {
	codes := []capture.Code{
		capture.NotInitialized,
		capture.NotRecording,
		capture.NoData,
		capture.BufferTooSmall,
		capture.DataCorrupted,
		capture.Restricted,
	}

	for _, code := range codes {
		t.Run("availability_"+code.String(), func(t *testing.T) {
			f := newFixture(t, voice.FormatU8)
			f.svc.On("AvailableBytes").Return(uint32(0), code).Once()

			res := f.pipeline.Tick(context.Background())

			assert.Equal(t, voice.StageAvailability, res.Stage)
			assert.ErrorIs(t, res.Err, code)
			f.svc.AssertNotCalled(t, "FetchBytes", mock.Anything)
			assert.Empty(t, f.sink.Batches())
			assert.Zero(t, f.logs.FilterLevelExact(zapcore.WarnLevel).Len())
		})

		t.Run("fetch_"+code.String(), func(t *testing.T) {
			f := newFixture(t, voice.FormatU8)
			f.svc.On("AvailableBytes").Return(uint32(10), nil).Once()
			f.svc.On("FetchBytes", lenIs(testCompressedSize)).Return(0, code).Once()

			res := f.pipeline.Tick(context.Background())

			assert.Equal(t, voice.StageFetch, res.Stage)
			assert.ErrorIs(t, res.Err, code)
			f.svc.AssertNotCalled(t, "Decode", mock.Anything, mock.Anything, mock.Anything)
			assert.Empty(t, f.sink.Batches())
			assert.Zero(t, f.logs.FilterLevelExact(zapcore.WarnLevel).Len())
		})
	}
}

func TestPipeline_ZeroFetchedStopsTick(t *testing.T) {
	f := newFixture(t, voice.FormatU8)
	f.svc.On("AvailableBytes").Return(uint32(10), nil).Once()
	f.svc.On("FetchBytes", mock.Anything).Return(0, nil).Once()

	res := f.pipeline.Tick(context.Background())

	assert.Equal(t, voice.StageFetch, res.Stage)
	f.svc.AssertNotCalled(t, "Decode", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, f.sink.Batches())
}

// Fifty compressed bytes decoding to 200 bytes yield exactly 200 samples in
// order.
func TestPipeline_StreamsDecodedSamples(t *testing.T) {
	f := newFixture(t, voice.FormatU8)
	compressed := ramp(50)
	decoded := ramp(200)

	f.svc.On("AvailableBytes").Return(uint32(50), nil).Once()
	f.svc.On("FetchBytes", lenIs(testCompressedSize)).
		Run(test.FillArg(0, compressed)).Return(50, nil).Once()
	f.svc.On("Decode", compressed, lenIs(testDecodedSize), testSampleRate).
		Run(test.FillArg(1, decoded)).Return(200, nil).Once()

	res := f.pipeline.Tick(context.Background())

	assert.Equal(t, voice.StageStreamed, res.Stage)
	assert.Equal(t, 50, res.Fetched)
	assert.Equal(t, 200, res.Decoded)
	assert.Equal(t, 200, res.Samples)
	assert.Equal(t, 200, res.Accepted)

	batches := f.sink.Batches()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 200)
	for i, s := range batches[0] {
		assert.Equal(t, voice.U8ToSample(byte(i)), s, "sample %d", i)
	}
}

func TestPipeline_S16LEHalvesSampleCount(t *testing.T) {
	f := newFixture(t, voice.FormatS16LE)

	f.svc.On("AvailableBytes").Return(uint32(8), nil).Once()
	f.svc.On("FetchBytes", mock.Anything).Return(8, nil).Once()
	f.svc.On("Decode", lenIs(8), lenIs(testDecodedSize), testSampleRate).
		Run(test.FillArg(1, ramp(201))).Return(201, nil).Once()

	res := f.pipeline.Tick(context.Background())

	assert.Equal(t, voice.StageStreamed, res.Stage)
	assert.Equal(t, 100, res.Samples)
	assert.Len(t, f.sink.Samples(), 100)
}

func TestPipeline_UsesOnlyBytesWritten(t *testing.T) {
	f := newFixture(t, voice.FormatU8)
	full := make([]byte, 300)
	for i := range full {
		full[i] = 255
	}

	f.svc.On("AvailableBytes").Return(uint32(20), nil).Twice()
	f.svc.On("FetchBytes", mock.Anything).
		Run(test.FillArg(0, ramp(20))).Return(20, nil).Once()
	f.svc.On("Decode", lenIs(20), mock.Anything, testSampleRate).
		Run(test.FillArg(1, full)).Return(300, nil).Once()
	f.svc.On("FetchBytes", mock.Anything).Return(3, nil).Once()
	f.svc.On("Decode", lenIs(3), mock.Anything, testSampleRate).
		Run(test.FillArg(1, []byte{0, 0})).Return(2, nil).Once()

	f.pipeline.Tick(context.Background())
	res := f.pipeline.Tick(context.Background())

	assert.Equal(t, 2, res.Samples)
	batches := f.sink.Batches()
	require.Len(t, batches, 2)
	assert.Len(t, batches[0], 300)
	assert.Equal(t, []float32{-1, -1}, batches[1], "stale decoded bytes must not be streamed")
}

func TestPipeline_ClampsOverReportedCounts(t *testing.T) {
	f := newFixture(t, voice.FormatU8)

	f.svc.On("AvailableBytes").Return(uint32(5000), nil).Once()
	f.svc.On("FetchBytes", mock.Anything).Return(5000, nil).Once()
	f.svc.On("Decode", lenIs(testCompressedSize), mock.Anything, testSampleRate).
		Return(testDecodedSize+10, nil).Once()

	res := f.pipeline.Tick(context.Background())

	assert.Equal(t, testCompressedSize, res.Fetched)
	assert.Equal(t, testDecodedSize, res.Decoded)
	assert.Equal(t, testDecodedSize, res.Samples)
}

func TestPipeline_DecodeFailureWarns(t *testing.T) {
	f := newFixture(t, voice.FormatU8)

	f.svc.On("AvailableBytes").Return(uint32(10), nil).Once()
	f.svc.On("FetchBytes", mock.Anything).Return(10, nil).Once()
	f.svc.On("Decode", lenIs(10), mock.Anything, testSampleRate).
		Return(40, capture.DataCorrupted).Once()

	res := f.pipeline.Tick(context.Background())

	assert.Equal(t, voice.StageDecode, res.Stage)
	assert.ErrorIs(t, res.Err, capture.DataCorrupted)
	assert.Empty(t, f.sink.Batches())

	warns := f.logs.FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, warns, 1)
	assert.Equal(t, "Decode failed", warns[0].Message)
	assert.Equal(t, uint64(1), f.pipeline.Status().DecodeFailures)
}

func TestPipeline_ZeroDecodedStopsTick(t *testing.T) {
	f := newFixture(t, voice.FormatU8)

	f.svc.On("AvailableBytes").Return(uint32(10), nil).Once()
	f.svc.On("FetchBytes", mock.Anything).Return(10, nil).Once()
	f.svc.On("Decode", mock.Anything, mock.Anything, testSampleRate).Return(0, nil).Once()

	res := f.pipeline.Tick(context.Background())

	assert.Equal(t, voice.StageDecode, res.Stage)
	assert.NoError(t, res.Err)
	assert.Empty(t, f.sink.Batches())
}

func TestPipeline_SinkBackpressure(t *testing.T) {
	f := newFixture(t, voice.FormatU8)
	f.sink.Limit = 30

	f.svc.On("AvailableBytes").Return(uint32(10), nil).Once()
	f.svc.On("FetchBytes", mock.Anything).Return(10, nil).Once()
	f.svc.On("Decode", mock.Anything, mock.Anything, testSampleRate).Return(100, nil).Once()

	res := f.pipeline.Tick(context.Background())

	assert.Equal(t, 100, res.Samples)
	assert.Equal(t, 30, res.Accepted)
	assert.Equal(t, uint64(30), f.pipeline.Status().SamplesStreamed)
}

func TestPipeline_RestrictedNoticeOncePerRecording(t *testing.T) {
	f := newFixture(t, voice.FormatU8)
	f.svc.On("AvailableBytes").Return(uint32(0), capture.Restricted)

	notices := func() int {
		return f.logs.FilterMessageSnippet("restricted").FilterLevelExact(zapcore.InfoLevel).Len()
	}

	for range 5 {
		f.pipeline.Tick(context.Background())
	}
	assert.Equal(t, 1, notices())
	assert.True(t, f.pipeline.Restricted())
	assert.True(t, f.pipeline.Status().Restricted)

	f.state.state = voice.Idle
	f.pipeline.Tick(context.Background())
	f.state.state = voice.Recording
	f.pipeline.Tick(context.Background())

	assert.Equal(t, 2, notices())
}

func TestPipeline_RestrictedClearsWhenDataFlows(t *testing.T) {
	f := newFixture(t, voice.FormatU8)
	f.svc.On("AvailableBytes").Return(uint32(0), capture.Restricted).Once()
	f.svc.On("AvailableBytes").Return(uint32(0), nil).Once()

	f.pipeline.Tick(context.Background())
	require.True(t, f.pipeline.Restricted())

	f.pipeline.Tick(context.Background())
	assert.False(t, f.pipeline.Restricted())
}

func TestPipeline_StaleNotice(t *testing.T) {
	f := newFixture(t, voice.FormatU8, func(o *voice.PipelineOptions) {
		o.StaleAfter = 20 * time.Millisecond
	})
	f.svc.On("AvailableBytes").Return(uint32(0), capture.NoData)

	stale := func() int {
		return f.logs.FilterMessage("No voice data received while recording").Len()
	}

	require.Eventually(t, func() bool {
		f.pipeline.Tick(context.Background())
		return stale() == 1
	}, time.Second, 5*time.Millisecond)

	for range 5 {
		f.pipeline.Tick(context.Background())
	}
	assert.Equal(t, 1, stale())
}

func TestPipeline_Status(t *testing.T) {
	f := newFixture(t, voice.FormatU8)

	f.svc.On("AvailableBytes").Return(uint32(10), nil).Once()
	f.svc.On("FetchBytes", mock.Anything).Return(10, nil).Once()
	f.svc.On("Decode", mock.Anything, mock.Anything, testSampleRate).Return(64, nil).Once()

	before := time.Now()
	f.pipeline.Tick(context.Background())

	st := f.pipeline.Status()
	assert.True(t, st.Recording)
	assert.False(t, st.Restricted)
	assert.Equal(t, uint64(1), st.Ticks)
	assert.Equal(t, uint64(64), st.SamplesStreamed)
	assert.False(t, st.LastSampleAt.Before(before))
}

func TestPipeline_RecordsMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	metrics, err := observe.NewMetrics(mp)
	require.NoError(t, err)

	f := newFixture(t, voice.FormatU8, func(o *voice.PipelineOptions) { o.Metrics = metrics })
	f.svc.On("AvailableBytes").Return(uint32(0), capture.NoData).Once()
	f.svc.On("AvailableBytes").Return(uint32(10), nil).Once()
	f.svc.On("FetchBytes", mock.Anything).Return(10, nil).Once()
	f.svc.On("Decode", mock.Anything, mock.Anything, testSampleRate).Return(16, nil).Once()

	f.pipeline.Tick(context.Background())
	f.pipeline.Tick(context.Background())

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	outcomes := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "voicerelay.pipeline.ticks" {
				continue
			}
			for _, dp := range m.Data.(metricdata.Sum[int64]).DataPoints {
				v, _ := dp.Attributes.Value(attribute.Key("outcome"))
				outcomes[v.AsString()] += dp.Value
			}
		}
	}
	assert.Equal(t, map[string]int64{"skipped": 1, "streamed": 1}, outcomes)
}

func TestNewPipeline_Validation(t *testing.T) {
	svc := test.NewMockCaptureService(t)

	tests := map[string]func(*voice.PipelineOptions){
		"nil_service":        func(o *voice.PipelineOptions) { o.Service = nil },
		"nil_state":          func(o *voice.PipelineOptions) { o.State = nil },
		"nil_sink":           func(o *voice.PipelineOptions) { o.Sink = nil },
		"zero_sample_rate":   func(o *voice.PipelineOptions) { o.SampleRate = 0 },
		"zero_bytes":         func(o *voice.PipelineOptions) { o.BytesPerSample = 0 },
		"zero_compressed":    func(o *voice.PipelineOptions) { o.CompressedBufferSize = 0 },
		"negative_stale_for": func(o *voice.PipelineOptions) { o.StaleAfter = -time.Second },
	}

	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			opts := voice.PipelineOptions{
				Logger:               zaptest.NewLogger(t),
				Service:              svc,
				State:                &fixedState{},
				Sink:                 &test.RecordingSink{},
				SampleRate:           testSampleRate,
				BytesPerSample:       testBytesPerSample,
				CompressedBufferSize: testCompressedSize,
			}
			mutate(&opts)

			_, err := voice.NewPipeline(opts)
			assert.Error(t, err)
		})
	}
}

func TestStage_String(t *testing.T) {
	assert.Equal(t, "idle", voice.StageIdle.String())
	assert.Equal(t, "streamed", voice.StageStreamed.String())
	assert.Equal(t, "unknown", voice.Stage(99).String())
}
