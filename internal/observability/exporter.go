// Package observability renders the trading core's metrics for external
// consumers: Prometheus text for scraping and a CloudWatch-style datum
// list for push-based pipelines. It is read-only over the Registry and
// safe to poll at any frequency.
package observability

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/prometheus/common/expfmt"

	"moltapp-trading/internal/breaker"
	"moltapp-trading/internal/domain"
	"moltapp-trading/internal/lock"
	"moltapp-trading/internal/metrics"
)

// MetricsSnapshot aggregates every observable surface of the trading core
// at one instant.
type MetricsSnapshot struct {
	Timestamp time.Time                              `json:"timestamp"`
	Counters  map[string]uint64                      `json:"counters"`
	Latencies map[string]metrics.Stats               `json:"latencies"`
	Breakers  map[string]*domain.CircuitBreakerState `json:"breakers,omitempty"`
	Lock      *domain.LockRecord                     `json:"lock,omitempty"`
}

// MetricDatum is one entry of the CloudWatch-style export.
type MetricDatum struct {
	MetricName string            `json:"metric_name"`
	Value      float64           `json:"value"`
	Unit       string            `json:"unit"` // "Count" or "Milliseconds"
	Timestamp  time.Time         `json:"timestamp"`
	Dimensions map[string]string `json:"dimensions,omitempty"`
}

// Exporter reads from the Registry, Breaker and Lease. Breaker and lease
// may be nil; their sections are simply omitted.
type Exporter struct {
	registry *metrics.Registry
	breaker  *breaker.Breaker
	lease    *lock.Lease
	now      func() time.Time
}

// NewExporter creates an Exporter.
func NewExporter(registry *metrics.Registry, b *breaker.Breaker, l *lock.Lease) *Exporter {
	return &Exporter{registry: registry, breaker: b, lease: l, now: time.Now}
}

// CollectAll assembles one snapshot of counters, latency percentiles,
// breaker states and the lock record.
func (e *Exporter) CollectAll(ctx context.Context) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		Timestamp: e.now().UTC(),
		Counters:  e.registry.Counters(),
		Latencies: make(map[string]metrics.Stats),
	}

	for _, op := range e.registry.LatencyOperations() {
		snap.Latencies[op] = e.registry.LatencyStats(op)
	}

	if e.breaker != nil {
		states, err := e.breaker.Status(ctx)
		if err != nil {
			return nil, fmt.Errorf("collect breaker states: %w", err)
		}
		snap.Breakers = states
	}

	if e.lease != nil {
		rec, err := e.lease.Status(ctx)
		if err != nil {
			return nil, fmt.Errorf("collect lock status: %w", err)
		}
		snap.Lock = rec
	}

	return snap, nil
}

// TakeSnapshot records the current counters into the registry's bounded
// ring buffer.
func (e *Exporter) TakeSnapshot() {
	e.registry.TakeSnapshot(e.now().UTC())
}

// RecentSnapshots returns up to n retained counter snapshots, oldest
// first.
func (e *Exporter) RecentSnapshots(n int) []metrics.MetricSample {
	return e.registry.RecentSnapshots(n)
}

// PrometheusText renders the Prometheus exposition-format view of the
// underlying registry.
func (e *Exporter) PrometheusText() (string, error) {
	families, err := e.registry.Gatherer().Gather()
	if err != nil {
		return "", fmt.Errorf("gather metrics: %w", err)
	}

	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return "", fmt.Errorf("encode metric family %s: %w", mf.GetName(), err)
		}
	}
	return buf.String(), nil
}

// CloudWatchList flattens a snapshot into a deterministic, sorted datum
// list: one Count datum per counter, p50/p95/p99 Milliseconds per
// operation, and per-agent breaker losses.
func (e *Exporter) CloudWatchList(ctx context.Context) ([]MetricDatum, error) {
	snap, err := e.CollectAll(ctx)
	if err != nil {
		return nil, err
	}

	var data []MetricDatum
	for name, value := range snap.Counters {
		data = append(data, MetricDatum{
			MetricName: name,
			Value:      float64(value),
			Unit:       "Count",
			Timestamp:  snap.Timestamp,
		})
	}

	for op, stats := range snap.Latencies {
		dims := map[string]string{"operation": op}
		for suffix, value := range map[string]float64{
			"latency_p50": stats.P50,
			"latency_p95": stats.P95,
			"latency_p99": stats.P99,
		} {
			data = append(data, MetricDatum{
				MetricName: suffix,
				Value:      value,
				Unit:       "Milliseconds",
				Timestamp:  snap.Timestamp,
				Dimensions: dims,
			})
		}
	}

	for agentID, state := range snap.Breakers {
		data = append(data, MetricDatum{
			MetricName: "realized_loss_usd",
			Value:      state.RealizedLossUSD,
			Unit:       "Count",
			Timestamp:  snap.Timestamp,
			Dimensions: map[string]string{"agent": agentID},
		})
	}

	sort.Slice(data, func(i, j int) bool {
		if data[i].MetricName != data[j].MetricName {
			return data[i].MetricName < data[j].MetricName
		}
		return fmt.Sprint(data[i].Dimensions) < fmt.Sprint(data[j].Dimensions)
	})
	return data, nil
}
