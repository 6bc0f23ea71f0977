package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/KanavDutta/keyfence/gate"
	"github.com/KanavDutta/keyfence/store"
	"github.com/KanavDutta/keyfence/usage"
)

// maxTopKeys bounds the per-key list in a Snapshot.
const maxTopKeys = 10

// Metrics tracks admission statistics in process and mirrors them to Prometheus.
type Metrics struct {
	totalRequests       atomic.Int64
	allowedRequests     atomic.Int64
	rateLimitedRequests atomic.Int64
	unauthorized        atomic.Int64
	errors              atomic.Int64
	degraded            atomic.Int64
	droppedEvents       atomic.Int64
	aggregatedEvents    atomic.Int64

	// Per-key stats
	mu        sync.RWMutex
	keyStats  map[string]*KeyStats
	startTime time.Time
	now       func() time.Time

	prom *promCollectors
}

var (
	_ gate.Recorder  = (*Metrics)(nil)
	_ store.Observer = (*Metrics)(nil)
	_ usage.Observer = (*Metrics)(nil)
)

// KeyStats tracks admissions of a specific API key
type KeyStats struct {
	KeyID               string    `json:"key_id"`
	TotalRequests       int64     `json:"total_requests"`
	AllowedRequests     int64     `json:"allowed_requests"`
	RateLimitedRequests int64     `json:"rate_limited_requests"`
	FailedRequests      int64     `json:"failed_requests"`
	FirstRequestAt      time.Time `json:"first_request_at"`
	LastRequestAt       time.Time `json:"last_request_at"`
}

// NewMetrics creates a new metrics tracker with its own Prometheus registry.
func NewMetrics() *Metrics {
	return &Metrics{
		keyStats:  make(map[string]*KeyStats),
		startTime: time.Now(),
		now:       time.Now,
		prom:      newPromCollectors(),
	}
}

// RecordAdmission records one admission outcome.
// keyID may be empty when the credential named no stored key.
func (m *Metrics) RecordAdmission(keyID, outcome string, degraded bool) {
	m.totalRequests.Add(1)
	switch outcome {
	case gate.OutcomeAllowed:
		m.allowedRequests.Add(1)
	case gate.OutcomeRateLimited:
		m.rateLimitedRequests.Add(1)
	case gate.OutcomeUnauthorized:
		m.unauthorized.Add(1)
	default:
		m.errors.Add(1)
	}
	m.prom.admissions.WithLabelValues(outcome).Inc()

	if keyID == "" {
		return
	}

	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	stats, exists := m.keyStats[keyID]
	if !exists {
		stats = &KeyStats{
			KeyID:          keyID,
			FirstRequestAt: now,
		}
		m.keyStats[keyID] = stats
	}

	stats.TotalRequests++
	switch outcome {
	case gate.OutcomeAllowed:
		stats.AllowedRequests++
	case gate.OutcomeRateLimited:
		stats.RateLimitedRequests++
	default:
		stats.FailedRequests++
	}
	stats.LastRequestAt = now
}

// ObserveStoreCall records the latency of one bucket store call.
func (m *Metrics) ObserveStoreCall(elapsed time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.prom.storeDuration.WithLabelValues(result).Observe(elapsed.Seconds())
}

// RecordDegraded records a decision made by the failure policy.
func (m *Metrics) RecordDegraded(policy string) {
	m.degraded.Add(1)
	m.prom.degraded.WithLabelValues(policy).Inc()
}

// RecordDropped records a usage event that never reached the queue.
func (m *Metrics) RecordDropped(reason string) {
	m.droppedEvents.Add(1)
	m.prom.dropped.WithLabelValues(reason).Inc()
}

// RecordAggregated records the fate of one consumed usage event.
func (m *Metrics) RecordAggregated(outcome string) {
	if outcome == usage.AggregatedOK {
		m.aggregatedEvents.Add(1)
	}
	m.prom.aggregated.WithLabelValues(outcome).Inc()
}

// RecordRetry records a retried analytics write.
func (m *Metrics) RecordRetry() {
	m.prom.retries.Inc()
}

// GetSnapshot returns a snapshot of current metrics
func (m *Metrics) GetSnapshot() *Snapshot {
	m.mu.RLock()
	topKeys := make([]*KeyStats, 0, len(m.keyStats))
	for _, stats := range m.keyStats {
		copied := *stats
		topKeys = append(topKeys, &copied)
	}
	uniqueKeys := int64(len(m.keyStats))
	m.mu.RUnlock()

	sort.Slice(topKeys, func(i, j int) bool {
		if topKeys[i].TotalRequests == topKeys[j].TotalRequests {
			return topKeys[i].KeyID < topKeys[j].KeyID
		}
		return topKeys[i].TotalRequests > topKeys[j].TotalRequests
	})
	if len(topKeys) > maxTopKeys {
		topKeys = topKeys[:maxTopKeys]
	}

	return &Snapshot{
		TotalRequests:        m.totalRequests.Load(),
		AllowedRequests:      m.allowedRequests.Load(),
		RateLimitedRequests:  m.rateLimitedRequests.Load(),
		UnauthorizedRequests: m.unauthorized.Load(),
		ErroredRequests:      m.errors.Load(),
		DegradedDecisions:    m.degraded.Load(),
		DroppedUsageEvents:   m.droppedEvents.Load(),
		AggregatedEvents:     m.aggregatedEvents.Load(),
		UniqueKeys:           uniqueKeys,
		TopKeys:              topKeys,
		UptimeSeconds:        int64(m.now().Sub(m.startTime).Seconds()),
		StartTime:            m.startTime,
	}
}

// Snapshot represents a point-in-time view of metrics
type Snapshot struct {
	TotalRequests        int64       `json:"total_requests"`
	AllowedRequests      int64       `json:"allowed_requests"`
	RateLimitedRequests  int64       `json:"rate_limited_requests"`
	UnauthorizedRequests int64       `json:"unauthorized_requests"`
	ErroredRequests      int64       `json:"errored_requests"`
	DegradedDecisions    int64       `json:"degraded_decisions"`
	DroppedUsageEvents   int64       `json:"dropped_usage_events"`
	AggregatedEvents     int64       `json:"aggregated_events"`
	UniqueKeys           int64       `json:"unique_keys"`
	TopKeys              []*KeyStats `json:"top_keys"`
	UptimeSeconds        int64       `json:"uptime_seconds"`
	StartTime            time.Time   `json:"start_time"`
}
