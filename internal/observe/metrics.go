// Package observe provides OpenTelemetry metrics for the voice relay and an
// optional Prometheus scrape endpoint.
//
// Tests should build [Metrics] with [NewMetrics] over a provider backed by a
// ManualReader; a nil *Metrics is valid and records nothing.
package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/Raikerian/go-voicerelay"

// Metrics holds the voice pipeline instruments.
type Metrics struct {
	// Ticks counts pipeline ticks while recording. Attribute "outcome":
	// streamed, skipped or decode_failed.
	Ticks metric.Int64Counter

	// SkippedTicks counts ticks that ended early. Attributes "stage" and
	// "reason".
	SkippedTicks metric.Int64Counter

	// SamplesStreamed counts samples accepted by the playback sink.
	SamplesStreamed metric.Int64Counter

	// SamplesDropped counts samples the playback sink could not accept.
	SamplesDropped metric.Int64Counter

	// DecodedBytes records decoder output per streamed tick.
	DecodedBytes metric.Int64Histogram

	// Recording is 1 while recording and 0 otherwise.
	Recording metric.Int64UpDownCounter
}

// NewMetrics creates all instruments from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Ticks, err = m.Int64Counter("voicerelay.pipeline.ticks",
		metric.WithDescription("Pipeline ticks executed while recording, by outcome."),
	); err != nil {
		return nil, err
	}
	if met.SkippedTicks, err = m.Int64Counter("voicerelay.pipeline.skipped_ticks",
		metric.WithDescription("Ticks that ended before streaming, by stage and reason."),
	); err != nil {
		return nil, err
	}
	if met.SamplesStreamed, err = m.Int64Counter("voicerelay.playback.samples_streamed",
		metric.WithDescription("Samples accepted by the playback stream."),
	); err != nil {
		return nil, err
	}
	if met.SamplesDropped, err = m.Int64Counter("voicerelay.playback.samples_dropped",
		metric.WithDescription("Samples rejected because the playback stream was full."),
	); err != nil {
		return nil, err
	}
	if met.DecodedBytes, err = m.Int64Histogram("voicerelay.decoder.bytes",
		metric.WithDescription("Decoder output size per tick."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.Recording, err = m.Int64UpDownCounter("voicerelay.recording",
		metric.WithDescription("1 while the push-to-talk trigger is held."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RecordTick counts one tick with its outcome.
func (m *Metrics) RecordTick(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.Ticks.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordSkip counts a tick that stopped at stage for reason.
func (m *Metrics) RecordSkip(ctx context.Context, stage, reason string) {
	if m == nil {
		return
	}
	m.SkippedTicks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("reason", reason),
	))
}

// RecordStream records a streamed tick.
func (m *Metrics) RecordStream(ctx context.Context, decodedBytes, accepted, dropped int) {
	if m == nil {
		return
	}
	m.DecodedBytes.Record(ctx, int64(decodedBytes))
	m.SamplesStreamed.Add(ctx, int64(accepted))
	if dropped > 0 {
		m.SamplesDropped.Add(ctx, int64(dropped))
	}
}

// RecordRecording tracks recording transitions.
func (m *Metrics) RecordRecording(ctx context.Context, recording bool) {
	if m == nil {
		return
	}
	delta := int64(-1)
	if recording {
		delta = 1
	}
	m.Recording.Add(ctx, delta)
}
