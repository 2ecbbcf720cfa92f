package internaltelemetry

import (
	"go.opentelemetry.io/otel/metric"
)

// RemoteMetrics holds the metric instruments of the remote gRPC service.
type RemoteMetrics struct {
	RpcsStartedCounter      metric.Int64Counter
	RpcsHandledCounter      metric.Int64Counter
	RpcLatencyHistogram     metric.Int64Histogram
	ActiveRpcsUpDownCounter metric.Int64UpDownCounter
	// EngineErrorsCounter counts calls answered with a non-zero engine status.
	EngineErrorsCounter metric.Int64Counter
	// OpenHandlesUpDownCounter tracks environment, database and transaction
	// handles held by clients.
	OpenHandlesUpDownCounter metric.Int64UpDownCounter
}

// NewRemoteMetrics creates and registers the metrics of the remote gRPC service.
func NewRemoteMetrics(meter metric.Meter) (*RemoteMetrics, error) {
	m := &RemoteMetrics{}
	var err error

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.RpcsStartedCounter, "stratadb.grpc.server.started_total", "Total number of RPCs started."},
		{&m.RpcsHandledCounter, "stratadb.grpc.server.handled_total", "Total number of RPCs completed."},
		{&m.EngineErrorsCounter, "stratadb.grpc.server.engine_errors_total", "RPCs answered with an engine error status."},
	}
	for _, c := range counters {
		if *c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit("1")); err != nil {
			return nil, err
		}
	}

	m.RpcLatencyHistogram, err = meter.Int64Histogram(
		"stratadb.grpc.server.duration",
		metric.WithDescription("The latency of RPCs."),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	m.ActiveRpcsUpDownCounter, err = meter.Int64UpDownCounter(
		"stratadb.grpc.server.active_rpcs",
		metric.WithDescription("Number of active RPCs."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	m.OpenHandlesUpDownCounter, err = meter.Int64UpDownCounter(
		"stratadb.grpc.server.open_handles",
		metric.WithDescription("Handles held by remote clients."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}
