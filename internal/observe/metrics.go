// Package observe provides observability for vozbraille: OpenTelemetry
// metrics and tracing, trace-aware logging, and HTTP middleware.
//
// Metrics are recorded through the OpenTelemetry Metrics API and scraped
// through the Prometheus registry built by [Setup]. [DefaultMetrics] uses the
// global meter provider; tests should call [NewMetrics] with their own
// provider.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope for every vozbraille metric.
const meterName = "github.com/MrWong99/vozbraille"

// Metrics holds the metric instruments of the voice engine. All fields are
// safe for concurrent use.
type Metrics struct {
	// VADEvents counts detector events by "type" and, for stops, "reason".
	VADEvents metric.Int64Counter

	// Recordings counts finished recordings by stop "reason".
	Recordings metric.Int64Counter

	// RecordingDuration is the length of finished recordings.
	RecordingDuration metric.Float64Histogram

	// TranscriptionDuration is the latency of a batch transcription.
	TranscriptionDuration metric.Float64Histogram

	// SynthesisDuration is the latency of prompt speech synthesis.
	SynthesisDuration metric.Float64Histogram

	// CredentialExtractions counts interpreter results by "hint" and "kind".
	CredentialExtractions metric.Int64Counter

	// BrailleOperations counts password machine results by "signal".
	BrailleOperations metric.Int64Counter

	// PromptsPlayed counts prompt playback outcomes by "prompt_id" and
	// "outcome" (finished, fell_back, failed, interrupted).
	PromptsPlayed metric.Int64Counter

	// PromptsSuppressed counts enqueues dropped by the replay cooldown.
	PromptsSuppressed metric.Int64Counter

	// DialogueOutcomes counts finished dialogues by "action" and "result".
	DialogueOutcomes metric.Int64Counter

	// ProviderRequests counts backend calls by "provider", "kind" and
	// "status".
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts backend errors by "provider" and "kind".
	ProviderErrors metric.Int64Counter

	// BreakerTransitions counts circuit breaker changes by "name" and "to".
	BreakerTransitions metric.Int64Counter

	// ActiveSessions is the number of running dialogues.
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration is HTTP handler latency by "method" and "route".
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram boundaries in seconds for provider calls.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30,
}

// recordingBuckets are histogram boundaries in seconds for utterances.
var recordingBuckets = []float64{
	0.5, 1, 2, 3, 5, 8, 10, 15, 30,
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.VADEvents, "vozbraille.vad.events", "Voice activity detector events by type and reason."},
		{&met.Recordings, "vozbraille.recordings", "Finished recordings by stop reason."},
		{&met.CredentialExtractions, "vozbraille.credential.extractions", "Credential interpreter results by hint and kind."},
		{&met.BrailleOperations, "vozbraille.braille.operations", "Braille password machine results by signal."},
		{&met.PromptsPlayed, "vozbraille.prompts.played", "Prompt playback outcomes by prompt id and outcome."},
		{&met.PromptsSuppressed, "vozbraille.prompts.suppressed", "Prompts dropped by the replay cooldown."},
		{&met.DialogueOutcomes, "vozbraille.dialogue.outcomes", "Finished dialogues by action and result."},
		{&met.ProviderRequests, "vozbraille.provider.requests", "Backend requests by provider, kind and status."},
		{&met.ProviderErrors, "vozbraille.provider.errors", "Backend errors by provider and kind."},
		{&met.BreakerTransitions, "vozbraille.breaker.transitions", "Circuit breaker state changes by name and target state."},
	}
	for _, c := range counters {
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	if met.RecordingDuration, err = m.Float64Histogram("vozbraille.recording.duration",
		metric.WithDescription("Length of finished recordings."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(recordingBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranscriptionDuration, err = m.Float64Histogram("vozbraille.transcription.duration",
		metric.WithDescription("Latency of batch transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SynthesisDuration, err = m.Float64Histogram("vozbraille.synthesis.duration",
		metric.WithDescription("Latency of prompt speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("vozbraille.sessions.active",
		metric.WithDescription("Number of running voice dialogues."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("vozbraille.http.request.duration",
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

// DefaultMetrics returns the package-level [Metrics] built on
// [otel.GetMeterProvider] at first use. It panics if an instrument cannot be
// created.
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

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordVADEvent counts one detector event. reason may be empty.
func (m *Metrics) RecordVADEvent(ctx context.Context, eventType, reason string) {
	m.VADEvents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", eventType),
		attribute.String("reason", reason),
	))
}

// RecordRecording counts a finished recording and observes its length.
func (m *Metrics) RecordRecording(ctx context.Context, reason string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("reason", reason))
	m.Recordings.Add(ctx, 1, attrs)
	m.RecordingDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordExtraction counts one interpreter result.
func (m *Metrics) RecordExtraction(ctx context.Context, hint, kind string) {
	m.CredentialExtractions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("hint", hint),
		attribute.String("kind", kind),
	))
}

// RecordBrailleOperation counts one password machine result.
func (m *Metrics) RecordBrailleOperation(ctx context.Context, signal string) {
	m.BrailleOperations.Add(ctx, 1, metric.WithAttributes(attribute.String("signal", signal)))
}

// RecordPrompt counts one prompt playback outcome.
func (m *Metrics) RecordPrompt(ctx context.Context, promptID, outcome string) {
	m.PromptsPlayed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("prompt_id", promptID),
		attribute.String("outcome", outcome),
	))
}

// RecordSuppressed counts one prompt dropped by the replay cooldown.
func (m *Metrics) RecordSuppressed(ctx context.Context, promptID string) {
	m.PromptsSuppressed.Add(ctx, 1, metric.WithAttributes(attribute.String("prompt_id", promptID)))
}

// RecordDialogue counts one finished dialogue.
func (m *Metrics) RecordDialogue(ctx context.Context, action, result string) {
	m.DialogueOutcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("result", result),
	))
}

// RecordProviderRequest counts one backend call.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError counts one backend error.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordBreakerTransition counts a circuit breaker moving to state to.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, name, to string) {
	m.BreakerTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("name", name),
		attribute.String("to", to),
	))
}
