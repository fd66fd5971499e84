package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// BackendMetrics counts outbound calls to system-of-record backends.
type BackendMetrics struct {
	requests *Counter
	duration *Histogram
	inFlight *UpDownCounter
}

// NewBackendMetrics registers the backend instruments on meter.
func NewBackendMetrics(meter metric.Meter) (*BackendMetrics, error) {
	requests, err := NewCounter(meter, "backend_requests_total",
		"Outbound requests to connector backends", "{request}")
	if err != nil {
		return nil, err
	}
	duration, err := NewHistogram(meter, HistogramOpts{
		Name:        "backend_request_duration_seconds",
		Description: "Outbound request latency to connector backends",
		Unit:        "s",
		Boundaries:  BackendDurationBuckets,
	})
	if err != nil {
		return nil, err
	}
	inFlight, err := NewUpDownCounter(meter, "backend_requests_in_flight",
		"Outbound requests currently awaiting a backend response", "{request}")
	if err != nil {
		return nil, err
	}
	return &BackendMetrics{requests: requests, duration: duration, inFlight: inFlight}, nil
}

// Start marks a call in flight and returns the function that records its end.
// A nil receiver is a no-op so clients can run without metrics.
func (m *BackendMetrics) Start(ctx context.Context, connector, operation string) func(status int, outcome string) {
	if m == nil {
		return func(int, string) {}
	}
	base := []attribute.KeyValue{AttrConnector.String(connector), AttrOperation.String(operation)}
	m.inFlight.Add(ctx, 1, base...)
	start := time.Now()

	return func(status int, outcome string) {
		m.inFlight.Add(ctx, -1, base...)
		attrs := append(base, AttrHTTPStatusCode.Int(status), AttrOutcome.String(outcome))
		m.requests.Inc(ctx, attrs...)
		m.duration.RecordDuration(ctx, time.Since(start), attrs...)
	}
}

// OutcomeFor classifies a backend status code. Zero means no response.
func OutcomeFor(status int) string {
	switch {
	case status == 0:
		return OutcomeTransportErr
	case status >= 500:
		return OutcomeServerError
	case status >= 400:
		return OutcomeClientError
	default:
		return OutcomeSuccess
	}
}

// ConnectorMetrics counts hub-level events that are not plain HTTP traffic.
type ConnectorMetrics struct {
	cards          *Counter
	replaySkipped  *Counter
	actionsApplied *Counter
}

// NewConnectorMetrics registers the connector instruments on meter.
func NewConnectorMetrics(meter metric.Meter) (*ConnectorMetrics, error) {
	cards, err := NewCounter(meter, "hub_cards_emitted_total",
		"Cards returned to the hub", "{card}")
	if err != nil {
		return nil, err
	}
	replay, err := NewCounter(meter, "hub_actions_replayed_total",
		"Approval actions acknowledged without contacting the backend", "{action}")
	if err != nil {
		return nil, err
	}
	applied, err := NewCounter(meter, "hub_actions_applied_total",
		"Actions forwarded to a backend", "{action}")
	if err != nil {
		return nil, err
	}
	return &ConnectorMetrics{cards: cards, replaySkipped: replay, actionsApplied: applied}, nil
}

// CardsEmitted records n cards produced by connector.
func (m *ConnectorMetrics) CardsEmitted(ctx context.Context, connector string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.cards.Add(ctx, int64(n), AttrConnector.String(connector))
}

// ActionReplayed records a duplicate action swallowed by the replay guard.
func (m *ConnectorMetrics) ActionReplayed(ctx context.Context, connector, action string) {
	if m == nil {
		return
	}
	m.replaySkipped.Inc(ctx, AttrConnector.String(connector), AttrOperation.String(action))
}

// ActionApplied records an action that reached the backend.
func (m *ConnectorMetrics) ActionApplied(ctx context.Context, connector, action string) {
	if m == nil {
		return
	}
	m.actionsApplied.Inc(ctx, AttrConnector.String(connector), AttrOperation.String(action))
}
