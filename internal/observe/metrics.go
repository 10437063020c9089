// Package observe holds the OpenTelemetry instruments, tracer helpers and HTTP
// middleware shared by the web server and the transcription service.
//
// Metrics go through the OTel Metrics API. [InitProvider] bridges them to a
// Prometheus registry so they can be scraped from /metrics. Tests should build
// their own [Metrics] with [NewMetrics] and a manual reader.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/fmueller/voxscribe"

// Metrics holds every instrument the application records.
type Metrics struct {
	// Transcriptions counts finished requests. Attributes: model, source, status.
	Transcriptions metric.Int64Counter

	// RecognitionDuration is the time spent inside the engine per request.
	RecognitionDuration metric.Float64Histogram

	// ModelLoads counts engine model loads, i.e. cache misses.
	ModelLoads metric.Int64Counter

	// ActiveTranscriptions is the number of requests currently holding or
	// waiting for the engine.
	ActiveTranscriptions metric.Int64UpDownCounter

	// HTTPRequestDuration is recorded by Middleware. Attributes: method, path.
	HTTPRequestDuration metric.Float64Histogram
}

// recognitionBuckets are in seconds. Recognition on CPU takes from a couple of
// seconds for short clips to many minutes for long recordings.
var recognitionBuckets = []float64{
	0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600,
}

func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Transcriptions, err = m.Int64Counter("voxscribe.transcriptions",
		metric.WithDescription("Finished transcription requests by model, source and status."),
	); err != nil {
		return nil, err
	}
	if met.RecognitionDuration, err = m.Float64Histogram("voxscribe.recognition.duration",
		metric.WithDescription("Time spent in speech recognition."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(recognitionBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ModelLoads, err = m.Int64Counter("voxscribe.model.loads",
		metric.WithDescription("Recognition model loads by model."),
	); err != nil {
		return nil, err
	}
	if met.ActiveTranscriptions, err = m.Int64UpDownCounter("voxscribe.active_transcriptions",
		metric.WithDescription("Transcription requests in flight."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxscribe.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns a process-wide instance built from the global meter
// provider. Call it after InitProvider so the instruments are exported.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Discard returns instruments that record nothing.
func Discard() *Metrics {
	m, err := NewMetrics(noop.NewMeterProvider())
	if err != nil {
		panic("observe: noop metrics: " + err.Error())
	}
	return m
}

func (m *Metrics) RecordTranscription(ctx context.Context, model, source, status string) {
	m.Transcriptions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("model", model),
			attribute.String("source", source),
			attribute.String("status", status),
		),
	)
}

func (m *Metrics) RecordModelLoad(ctx context.Context, model string) {
	m.ModelLoads.Add(ctx, 1, metric.WithAttributes(attribute.String("model", model)))
}

func (m *Metrics) RecordRecognition(ctx context.Context, model string, seconds float64) {
	m.RecognitionDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("model", model)))
}
