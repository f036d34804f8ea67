package otel

import "go.opentelemetry.io/otel/metric"

// Metrics holds all HITL metrics instruments.
type Metrics struct {
	DialogsSubmitted  metric.Int64Counter
	DialogsResolved   metric.Int64Counter
	DialogsPending    metric.Int64UpDownCounter
	RPCDuration       metric.Float64Histogram
	PollTicks         metric.Int64Counter
	PollErrors        metric.Int64Counter
	StreamSubscribers metric.Int64UpDownCounter
	StreamEvents      metric.Int64Counter
}

// NewMetrics creates all metric instruments from the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.DialogsSubmitted, err = meter.Int64Counter("hitl.dialogs.submitted",
		metric.WithDescription("Dialog requests accepted into the pending registry"),
	)
	if err != nil {
		return nil, err
	}

	m.DialogsResolved, err = meter.Int64Counter("hitl.dialogs.resolved",
		metric.WithDescription("Dialog requests resolved by a human decision"),
	)
	if err != nil {
		return nil, err
	}

	m.DialogsPending, err = meter.Int64UpDownCounter("hitl.dialogs.pending",
		metric.WithDescription("Dialog requests currently awaiting a decision"),
	)
	if err != nil {
		return nil, err
	}

	m.RPCDuration, err = meter.Float64Histogram("hitl.rpc.duration",
		metric.WithDescription("Tool protocol request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.PollTicks, err = meter.Int64Counter("hitl.poll.ticks",
		metric.WithDescription("Follower poll cycles against the leader endpoint"),
	)
	if err != nil {
		return nil, err
	}

	m.PollErrors, err = meter.Int64Counter("hitl.poll.errors",
		metric.WithDescription("Follower poll cycles that failed"),
	)
	if err != nil {
		return nil, err
	}

	m.StreamSubscribers, err = meter.Int64UpDownCounter("hitl.stream.subscribers",
		metric.WithDescription("Connected push-stream subscribers"),
	)
	if err != nil {
		return nil, err
	}

	m.StreamEvents, err = meter.Int64Counter("hitl.stream.events",
		metric.WithDescription("Events fanned out to push-stream subscribers"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}
