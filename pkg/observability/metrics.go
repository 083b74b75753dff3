package observability

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Metrics records engine counters, gauges and timings.
type Metrics interface {
	Counter(name string, value int64, tags ...Tag)
	Gauge(name string, value float64, tags ...Tag)
	Timing(name string, duration time.Duration, tags ...Tag)
}

// Tag is a metric label.
type Tag struct {
	Key   string
	Value string
}

// T creates a Tag.
func T(key, value string) Tag {
	return Tag{Key: key, Value: value}
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) Counter(string, int64, ...Tag)        {}
func (NoopMetrics) Gauge(string, float64, ...Tag)        {}
func (NoopMetrics) Timing(string, time.Duration, ...Tag) {}

// InMemoryMetrics keeps metrics in maps. It backs the /metrics read
// endpoint in local mode and is what tests assert against.
type InMemoryMetrics struct {
	mu       sync.RWMutex
	counters map[string]int64
	gauges   map[string]float64
	timings  map[string][]time.Duration
}

// NewInMemoryMetrics creates an empty collector.
func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{
		counters: make(map[string]int64),
		gauges:   make(map[string]float64),
		timings:  make(map[string][]time.Duration),
	}
}

func (m *InMemoryMetrics) Counter(name string, value int64, tags ...Tag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[formatKey(name, tags)] += value
}

func (m *InMemoryMetrics) Gauge(name string, value float64, tags ...Tag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[formatKey(name, tags)] = value
}

func (m *InMemoryMetrics) Timing(name string, duration time.Duration, tags ...Tag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := formatKey(name, tags)
	m.timings[key] = append(m.timings[key], duration)
}

// GetCounter returns the current value of a counter.
func (m *InMemoryMetrics) GetCounter(name string, tags ...Tag) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counters[formatKey(name, tags)]
}

// GetGauge returns the current value of a gauge.
func (m *InMemoryMetrics) GetGauge(name string, tags ...Tag) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gauges[formatKey(name, tags)]
}

// GetTimings returns all recorded timings.
func (m *InMemoryMetrics) GetTimings(name string, tags ...Tag) []time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]time.Duration(nil), m.timings[formatKey(name, tags)]...)
}

// Snapshot copies counters and gauges into one map keyed like formatKey.
func (m *InMemoryMetrics) Snapshot() map[string]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]float64, len(m.counters)+len(m.gauges))
	for k, v := range m.counters {
		out[k] = float64(v)
	}
	for k, v := range m.gauges {
		out[k] = v
	}
	return out
}

// formatKey renders name plus tags sorted by key, so tag order never
// produces two series.
func formatKey(name string, tags []Tag) string {
	if len(tags) == 0 {
		return name
	}
	sorted := append([]Tag(nil), tags...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })

	var b strings.Builder
	b.WriteString(name)
	for _, t := range sorted {
		b.WriteString(":")
		b.WriteString(t.Key)
		b.WriteString("=")
		b.WriteString(t.Value)
	}
	return b.String()
}

const (
	MetricOperationTotal    = "gadfly.operation.total"
	MetricOperationDuration = "gadfly.operation.duration"
	MetricOperationErrors   = "gadfly.operation.errors"

	MetricNagFired      = "gadfly.nag.fired"
	MetricNagCancelled  = "gadfly.nag.cancelled"
	MetricNagSuppressed = "gadfly.nag.suppressed"
	MetricNagDelivery   = "gadfly.nag.delivery"
	MetricNagActive     = "gadfly.nag.active"

	MetricTierChanges = "gadfly.aging.tier_changes"

	MetricEscalationLevel = "gadfly.escalation.level"

	MetricLedgerCredited = "gadfly.ledger.credited"
	MetricLedgerRedeemed = "gadfly.ledger.redeemed"
	MetricLedgerBalance  = "gadfly.ledger.balance"

	MetricChallengesCompleted = "gadfly.challenges.completed"

	MetricEventsPublished = "gadfly.events.published"
	MetricEventsConsumed  = "gadfly.events.consumed"

	MetricOutboxPublish = "gadfly.outbox.publish"
	MetricOutboxRetried = "gadfly.outbox.retried"
	MetricOutboxDead    = "gadfly.outbox.dead"
	MetricOutboxLag     = "gadfly.outbox.lag_seconds"
)
