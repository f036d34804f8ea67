package otel

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/metric/noop"
)

func TestNewMetricsCreatesAllInstruments(t *testing.T) {
	meter := noop.NewMeterProvider().Meter("test")
	m, err := NewMetrics(meter)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	if m.DialogsSubmitted == nil {
		t.Error("DialogsSubmitted is nil")
	}
	if m.DialogsResolved == nil {
		t.Error("DialogsResolved is nil")
	}
	if m.DialogsPending == nil {
		t.Error("DialogsPending is nil")
	}
	if m.RPCDuration == nil {
		t.Error("RPCDuration is nil")
	}
	if m.PollTicks == nil {
		t.Error("PollTicks is nil")
	}
	if m.PollErrors == nil {
		t.Error("PollErrors is nil")
	}
	if m.StreamSubscribers == nil {
		t.Error("StreamSubscribers is nil")
	}
	if m.StreamEvents == nil {
		t.Error("StreamEvents is nil")
	}

	// Noop instruments accept records without panicking.
	m.DialogsSubmitted.Add(context.Background(), 1)
	m.DialogsPending.Add(context.Background(), -1)
	m.RPCDuration.Record(context.Background(), 0.25)
}
