package main

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/datacore/datacore/core"
	"github.com/datacore/datacore/metrics"
)

// logReportBackend logs every reported metric snapshot at debug level.
// It is the teacher's "log file" backend from the reporter's doc comment,
// made concrete.
type logReportBackend struct{}

func (logReportBackend) Report(snapshot map[string]float64) error {
	log.Debug("periodic metrics report", "metrics", snapshot)
	return nil
}

// statusTracker bundles the ambient per-process metrics a running
// datacored instance exposes: peer count, local core length, connection
// rate, and periodic export of the named counters/gauges/histograms in
// metrics.DefaultRegistry.
type statusTracker struct {
	activePeers   atomic.Int64
	connectRate   *metrics.Meter
	systemMetrics *metrics.SystemMetrics
	reporter      *metrics.MetricsReporter
	collector     *metrics.MetricsCollector
}

func newStatusTracker(localCore *core.Core) *statusTracker {
	st := &statusTracker{
		connectRate:   metrics.NewMeter(),
		systemMetrics: metrics.NewSystemMetrics(),
		reporter:      metrics.NewMetricsReporter(30 * time.Second),
		collector: metrics.NewMetricsCollector(metrics.CollectorConfig{
			EnableHistograms: true,
		}),
	}
	st.systemMetrics.SetPeerCountFunc(func() int { return int(st.activePeers.Load()) })
	st.systemMetrics.SetCoreLengthFunc(localCore.Len)
	st.reporter.RegisterBackend("log", logReportBackend{})
	return st
}

// connectionOpened records a new peer connection, tagged by direction and
// remote address, and returns the matching close callback.
func (st *statusTracker) connectionOpened(remoteAddr, direction string) func() {
	st.activePeers.Add(1)
	st.connectRate.Mark(1)
	st.collector.Record("replication.connection_opened", 1, map[string]string{
		"peer":      remoteAddr,
		"direction": direction,
	})
	return func() {
		st.activePeers.Add(-1)
		st.collector.Record("replication.connection_closed", 1, map[string]string{
			"peer":      remoteAddr,
			"direction": direction,
		})
	}
}

// start begins periodic status logging: every interval it copies
// metrics.DefaultRegistry's named metrics into the reporter and logs the
// peer count, core length, connection rate meter, goroutine count and the
// process's CPU time.
func (st *statusTracker) start(ctx context.Context, interval time.Duration) {
	st.reporter.Start()
	go st.loop(ctx, interval)
}

func (st *statusTracker) stop() {
	st.reporter.Stop()
}

func (st *statusTracker) loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st.feedReporter()
			cpu := metrics.ReadCPUStats()
			log.Info("status",
				"peers", st.activePeers.Load(),
				"coreLength", st.systemMetrics.CoreLength(),
				"connectRate1m", st.connectRate.Rate1(),
				"goroutines", st.systemMetrics.GoRoutineCount(),
				"cpuLocalTime", cpu.LocalTime,
			)
		}
	}
}

// feedReporter copies every named metric in metrics.DefaultRegistry into
// the reporter so its next periodic export reflects current values.
func (st *statusTracker) feedReporter() {
	for name, v := range metrics.DefaultRegistry.Snapshot() {
		switch val := v.(type) {
		case int64:
			st.reporter.RecordMetric(name, float64(val))
		case map[string]interface{}:
			if mean, ok := val["mean"].(float64); ok {
				st.reporter.RecordMetric(name+".mean", mean)
			}
		}
	}
}
