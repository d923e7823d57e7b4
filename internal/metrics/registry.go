// Package metrics holds the process-wide counters and latency samples of
// the trading core. The Registry is injected, never a package-level
// singleton, so tests construct an isolated instance per test while
// production wiring creates one for the process lifetime.
package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counter names used in snapshots and exports.
const (
	CounterOrdersConfirmed    = "orders_confirmed"
	CounterOrdersRejected     = "orders_rejected"
	CounterOrdersFailed       = "orders_failed"
	CounterAttempts           = "execution_attempts"
	CounterRetries            = "execution_retries"
	CounterSlippageRejections = "slippage_rejections"
	CounterGateRuns           = "gate_runs"
	CounterGatesOpened        = "gates_opened"
	CounterGatesBlocked       = "gates_blocked"
	CounterGateChecks         = "gate_checks"
	CounterBreakerTrips       = "breaker_trips"
	CounterBreakerDenials     = "breaker_denials"
	CounterLockContention     = "lock_contention"
	CounterPriceFeedErrors    = "price_feed_errors"
)

// Latency operation names.
const (
	OpQuote   = "quote"
	OpExecute = "execute"
	OpOrder   = "order_total"
	OpGate    = "gate_run"
)

// maxLatencySamples bounds the per-operation sample window. Older samples
// are overwritten once the window is full.
const maxLatencySamples = 1024

// Registry is the shared mutable metrics state. All methods are safe for
// concurrent use; a single mutex guards the whole registry since every
// update is a cheap in-memory write.
type Registry struct {
	mu        sync.Mutex
	counters  map[string]uint64
	latencies map[string]*latencyWindow
	snapshots *snapshotRing

	promReg *prometheus.Registry

	ordersTotal        *prometheus.CounterVec
	attemptsTotal      prometheus.Counter
	retriesTotal       prometheus.Counter
	slippageRejections prometheus.Counter
	gateRunsTotal      *prometheus.CounterVec
	gateChecksTotal    prometheus.Counter
	breakerTrips       prometheus.Counter
	breakerDenials     prometheus.Counter
	lockContention     prometheus.Counter
	priceFeedErrors    prometheus.Counter
	opLatency          *prometheus.HistogramVec
}

// NewRegistry creates an empty Registry with its own Prometheus registry
// and a snapshot ring of the given capacity.
func NewRegistry(snapshotCapacity int) *Registry {
	promReg := prometheus.NewRegistry()
	factory := promauto.With(promReg)

	return &Registry{
		counters:  make(map[string]uint64),
		latencies: make(map[string]*latencyWindow),
		snapshots: newSnapshotRing(snapshotCapacity),
		promReg:   promReg,

		ordersTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: "execution",
			Name:      "orders_total",
			Help:      "Total number of terminal orders by final status",
		}, []string{"status"}),
		attemptsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: "execution",
			Name:      "attempts_total",
			Help:      "Total number of submission attempts across all orders",
		}),
		retriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: "execution",
			Name:      "retries_total",
			Help:      "Total number of retried submission attempts",
		}),
		slippageRejections: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: "execution",
			Name:      "slippage_rejections_total",
			Help:      "Total number of orders rejected by the slippage guard",
		}),
		gateRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: "gate",
			Name:      "runs_total",
			Help:      "Total number of health gate runs by result",
		}, []string{"result"}),
		gateChecksTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: "gate",
			Name:      "checks_total",
			Help:      "Total number of individual health checks executed",
		}),
		breakerTrips: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: "breaker",
			Name:      "trips_total",
			Help:      "Total number of circuit breaker trips",
		}),
		breakerDenials: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: "breaker",
			Name:      "denials_total",
			Help:      "Total number of trades denied by a tripped breaker",
		}),
		lockContention: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: "lock",
			Name:      "contention_total",
			Help:      "Total number of failed trading lock acquisitions",
		}),
		priceFeedErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "trading",
			Subsystem: "pricefeed",
			Name:      "errors_total",
			Help:      "Total number of price feed lookup failures",
		}),
		opLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "trading",
			Subsystem: "latency",
			Name:      "operation_seconds",
			Help:      "Latency of venue and gate operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}

// Gatherer exposes the underlying Prometheus registry for export handlers.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.promReg
}

func (r *Registry) inc(name string) {
	r.mu.Lock()
	r.counters[name]++
	r.mu.Unlock()
}

// IncOrderConfirmed records a confirmed terminal order.
func (r *Registry) IncOrderConfirmed() {
	r.inc(CounterOrdersConfirmed)
	r.ordersTotal.WithLabelValues("confirmed").Inc()
}

// IncOrderRejected records an order rejected before submission.
func (r *Registry) IncOrderRejected() {
	r.inc(CounterOrdersRejected)
	r.ordersTotal.WithLabelValues("rejected").Inc()
}

// IncOrderFailed records an order that exhausted its attempts.
func (r *Registry) IncOrderFailed() {
	r.inc(CounterOrdersFailed)
	r.ordersTotal.WithLabelValues("failed").Inc()
}

// IncAttempt records one submission attempt, retried or not.
func (r *Registry) IncAttempt() {
	r.inc(CounterAttempts)
	r.attemptsTotal.Inc()
}

// IncRetry records a submission attempt past the first.
func (r *Registry) IncRetry() {
	r.inc(CounterRetries)
	r.retriesTotal.Inc()
}

// IncSlippageRejection records a slippage guard rejection.
func (r *Registry) IncSlippageRejection() {
	r.inc(CounterSlippageRejections)
	r.slippageRejections.Inc()
}

// IncGateRun records one gate run and its outcome.
func (r *Registry) IncGateRun(opened bool) {
	r.mu.Lock()
	r.counters[CounterGateRuns]++
	if opened {
		r.counters[CounterGatesOpened]++
	} else {
		r.counters[CounterGatesBlocked]++
	}
	r.mu.Unlock()

	if opened {
		r.gateRunsTotal.WithLabelValues("opened").Inc()
	} else {
		r.gateRunsTotal.WithLabelValues("blocked").Inc()
	}
}

// AddGateChecks records n executed health checks.
func (r *Registry) AddGateChecks(n int) {
	if n <= 0 {
		return
	}
	r.mu.Lock()
	r.counters[CounterGateChecks] += uint64(n)
	r.mu.Unlock()
	r.gateChecksTotal.Add(float64(n))
}

// IncBreakerTrip records a circuit breaker trip.
func (r *Registry) IncBreakerTrip() {
	r.inc(CounterBreakerTrips)
	r.breakerTrips.Inc()
}

// IncBreakerDenial records a trade denied by a tripped breaker.
func (r *Registry) IncBreakerDenial() {
	r.inc(CounterBreakerDenials)
	r.breakerDenials.Inc()
}

// IncLockContention records a failed trading lock acquisition.
func (r *Registry) IncLockContention() {
	r.inc(CounterLockContention)
	r.lockContention.Inc()
}

// IncPriceFeedError records a failed price feed lookup.
func (r *Registry) IncPriceFeedError() {
	r.inc(CounterPriceFeedErrors)
	r.priceFeedErrors.Inc()
}

// ObserveLatency records one latency sample for an operation.
func (r *Registry) ObserveLatency(operation string, d time.Duration) {
	ms := float64(d) / float64(time.Millisecond)

	r.mu.Lock()
	w, ok := r.latencies[operation]
	if !ok {
		w = newLatencyWindow(maxLatencySamples)
		r.latencies[operation] = w
	}
	w.add(ms)
	r.mu.Unlock()

	r.opLatency.WithLabelValues(operation).Observe(d.Seconds())
}

// Counters returns a copy of all counter values.
func (r *Registry) Counters() map[string]uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return copyCounters(r.counters)
}

// LatencyStats computes percentile statistics over the retained sample
// window of one operation. Returns zero stats when no samples exist.
func (r *Registry) LatencyStats(operation string) Stats {
	r.mu.Lock()
	var samples []float64
	if w, ok := r.latencies[operation]; ok {
		samples = w.values()
	}
	r.mu.Unlock()

	return ComputeStats(samples)
}

// LatencyOperations lists the operations with at least one sample, sorted.
func (r *Registry) LatencyOperations() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ops := make([]string, 0, len(r.latencies))
	for op := range r.latencies {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

// TakeSnapshot records the current counter values into the ring buffer.
func (r *Registry) TakeSnapshot(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots.push(MetricSample{
		Timestamp: now,
		Counters:  copyCounters(r.counters),
	})
}

// RecentSnapshots returns up to n snapshots, oldest first.
func (r *Registry) RecentSnapshots(n int) []MetricSample {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshots.recent(n)
}

func copyCounters(src map[string]uint64) map[string]uint64 {
	dst := make(map[string]uint64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// latencyWindow is a fixed-capacity sample buffer. Once full, new samples
// overwrite the oldest.
type latencyWindow struct {
	buf    []float64
	cursor int
	filled bool
}

func newLatencyWindow(capacity int) *latencyWindow {
	return &latencyWindow{buf: make([]float64, capacity)}
}

func (w *latencyWindow) add(v float64) {
	w.buf[w.cursor] = v
	w.cursor++
	if w.cursor == len(w.buf) {
		w.cursor = 0
		w.filled = true
	}
}

// values returns a copy of the retained samples in insertion order.
func (w *latencyWindow) values() []float64 {
	if !w.filled {
		return append([]float64(nil), w.buf[:w.cursor]...)
	}
	out := make([]float64, 0, len(w.buf))
	out = append(out, w.buf[w.cursor:]...)
	out = append(out, w.buf[:w.cursor]...)
	return out
}
