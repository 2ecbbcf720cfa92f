package internaltelemetry

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// CacheSnapshot is what the cache instruments observe on each collection.
type CacheSnapshot struct {
	Hits, Misses, Evictions, Flushes int64
	Resident, Dirty                  int64
}

// EngineMetrics holds the metric instruments of a storage environment.
type EngineMetrics struct {
	meter metric.Meter

	CommitsCounter        metric.Int64Counter
	AbortsCounter         metric.Int64Counter
	WALBytesCounter       metric.Int64Counter
	CheckpointsCounter    metric.Int64Counter
	CheckpointLatency     metric.Float64Histogram
	RecoveriesCounter     metric.Int64Counter
	ReplayedGroupsCounter metric.Int64Counter

	cacheHits      metric.Int64ObservableCounter
	cacheMisses    metric.Int64ObservableCounter
	cacheEvictions metric.Int64ObservableCounter
	cacheFlushes   metric.Int64ObservableCounter
	cacheResident  metric.Int64ObservableGauge
	cacheDirty     metric.Int64ObservableGauge
}

// NoopEngineMetrics returns instruments that record nothing.
func NoopEngineMetrics() *EngineMetrics {
	m, _ := NewEngineMetrics(noop.NewMeterProvider().Meter(""))
	return m
}

// NewEngineMetrics creates and registers the metrics of a storage environment.
func NewEngineMetrics(meter metric.Meter) (*EngineMetrics, error) {
	m := &EngineMetrics{meter: meter}
	var err error

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&m.CommitsCounter, "stratadb.txn.commits_total", "Total number of committed transactions.", "1"},
		{&m.AbortsCounter, "stratadb.txn.aborts_total", "Total number of aborted transactions.", "1"},
		{&m.WALBytesCounter, "stratadb.wal.bytes_total", "Bytes appended to the write-ahead log.", "By"},
		{&m.CheckpointsCounter, "stratadb.checkpoint.total", "Total number of completed checkpoints.", "1"},
		{&m.RecoveriesCounter, "stratadb.recovery.total", "Total number of recoveries run on open.", "1"},
		{&m.ReplayedGroupsCounter, "stratadb.recovery.replayed_groups_total", "Commit groups replayed by recovery.", "1"},
	}
	for _, c := range counters {
		if *c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit)); err != nil {
			return nil, err
		}
	}

	m.CheckpointLatency, err = meter.Float64Histogram(
		"stratadb.checkpoint.duration",
		metric.WithDescription("The latency of checkpoints."),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	observables := []struct {
		dst  *metric.Int64ObservableCounter
		name string
		desc string
	}{
		{&m.cacheHits, "stratadb.cache.hits_total", "Page cache lookups served from memory."},
		{&m.cacheMisses, "stratadb.cache.misses_total", "Page cache lookups that read the device."},
		{&m.cacheEvictions, "stratadb.cache.evictions_total", "Pages evicted from the page cache."},
		{&m.cacheFlushes, "stratadb.cache.flushes_total", "Pages written back to the device."},
	}
	for _, o := range observables {
		if *o.dst, err = meter.Int64ObservableCounter(o.name, metric.WithDescription(o.desc), metric.WithUnit("1")); err != nil {
			return nil, err
		}
	}
	if m.cacheResident, err = meter.Int64ObservableGauge("stratadb.cache.resident_pages",
		metric.WithDescription("Pages resident in the page cache.")); err != nil {
		return nil, err
	}
	if m.cacheDirty, err = meter.Int64ObservableGauge("stratadb.cache.dirty_pages",
		metric.WithDescription("Dirty pages waiting for a checkpoint.")); err != nil {
		return nil, err
	}
	return m, nil
}

// ObserveCache reports snapshot on every collection until the returned
// function is called.
func (m *EngineMetrics) ObserveCache(snapshot func() CacheSnapshot, attrs ...metric.ObserveOption) (func() error, error) {
	reg, err := m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := snapshot()
		o.ObserveInt64(m.cacheHits, s.Hits, attrs...)
		o.ObserveInt64(m.cacheMisses, s.Misses, attrs...)
		o.ObserveInt64(m.cacheEvictions, s.Evictions, attrs...)
		o.ObserveInt64(m.cacheFlushes, s.Flushes, attrs...)
		o.ObserveInt64(m.cacheResident, s.Resident, attrs...)
		o.ObserveInt64(m.cacheDirty, s.Dirty, attrs...)
		return nil
	}, m.cacheHits, m.cacheMisses, m.cacheEvictions, m.cacheFlushes, m.cacheResident, m.cacheDirty)
	if err != nil {
		return nil, err
	}
	return reg.Unregister, nil
}
