package metrics

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ksu-assistant/backend/internal/storage/models"
	"github.com/ksu-assistant/backend/pkg/logger"
	"github.com/ksu-assistant/backend/pkg/utils"
)

const (
	DefaultWindowSize = 1000
	DefaultQueueSize  = 256

	sinkTimeout = 5 * time.Second
)

// Sink persists request records. It is called from the collector's consumer
// goroutine only.
type Sink interface {
	SaveRequestMetric(ctx context.Context, m *models.RequestMetric) error
}

// Snapshot is a copy of the collector's counters and rolling windows.
type Snapshot struct {
	TotalRequests      int
	CacheHits          int
	ValidationFailures int
	Regenerations      int
	ResponseTimes      []time.Duration
	ResponseLengths    []int
	Intents            map[string]int
}

// Statistics are the aggregates reported by the stats endpoint. Rates are percentages.
type Statistics struct {
	TotalRequests             int            `json:"total_requests"`
	CacheHitRate              float64        `json:"cache_hit_rate"`
	ValidationFailureRate     float64        `json:"validation_failure_rate"`
	AvgResponseTime           float64        `json:"avg_response_time"`
	AvgResponseLength         float64        `json:"avg_response_length"`
	QuestionTypesDistribution map[string]int `json:"question_types_distribution"`
	Regenerations             int            `json:"regenerations"`
	Dropped                   int            `json:"dropped_records"`
}

// Collector aggregates per-request outcomes in memory and hands each record
// to a Sink in the background. Recording never blocks: when the queue is
// full the oldest pending record is dropped.
type Collector struct {
	mu                 sync.Mutex
	total              int
	cacheHits          int
	validationFailures int
	regenerations      int
	dropped            int
	times              *window[time.Duration]
	lengths            *window[int]
	intents            map[string]int

	queue chan *models.RequestMetric
	sink  Sink
}

func NewCollector(windowSize, queueSize int, sink Sink) *Collector {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Collector{
		times:   newWindow[time.Duration](windowSize),
		lengths: newWindow[int](windowSize),
		intents: make(map[string]int),
		queue:   make(chan *models.RequestMetric, queueSize),
		sink:    sink,
	}
}

func (c *Collector) RecordRequest(m models.RequestMetric) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}

	c.mu.Lock()
	c.total++
	if m.FromCache {
		c.cacheHits++
	}
	if !m.Valid {
		c.validationFailures++
	}
	if m.Intent != "" {
		c.intents[m.Intent]++
	}
	c.times.add(m.ResponseTime)
	c.lengths.add(utils.RuneLen(m.Response))
	c.mu.Unlock()

	QueryDuration.WithLabelValues(m.Intent).Observe(m.ResponseTime.Seconds())
	QueryTotal.WithLabelValues(status(m)).Inc()

	if c.sink != nil {
		c.enqueue(&m)
	}
}

func (c *Collector) RecordRegeneration() {
	c.mu.Lock()
	c.regenerations++
	c.mu.Unlock()
	Regenerations.Inc()
}

func (c *Collector) enqueue(m *models.RequestMetric) {
	for {
		select {
		case c.queue <- m:
			return
		default:
		}

		select {
		case <-c.queue:
			c.mu.Lock()
			c.dropped++
			c.mu.Unlock()
			MetricsDropped.Inc()
		default:
		}
	}
}

// Run delivers queued records to the sink until ctx is cancelled. Sink
// failures are logged and discarded.
func (c *Collector) Run(ctx context.Context) {
	if c.sink == nil {
		<-ctx.Done()
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-c.queue:
			c.persist(ctx, m)
		}
	}
}

func (c *Collector) persist(ctx context.Context, m *models.RequestMetric) {
	saveCtx, cancel := context.WithTimeout(ctx, sinkTimeout)
	defer cancel()

	if err := c.sink.SaveRequestMetric(saveCtx, m); err != nil {
		logger.Error("Failed to persist request metric",
			zap.String("query_id", m.QueryID),
			zap.Error(err),
		)
	}
}

// Pending is the number of records waiting for the sink.
func (c *Collector) Pending() int {
	return len(c.queue)
}

func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	intents := make(map[string]int, len(c.intents))
	for k, v := range c.intents {
		intents[k] = v
	}
	return Snapshot{
		TotalRequests:      c.total,
		CacheHits:          c.cacheHits,
		ValidationFailures: c.validationFailures,
		Regenerations:      c.regenerations,
		ResponseTimes:      c.times.values(),
		ResponseLengths:    c.lengths.values(),
		Intents:            intents,
	}
}

func (c *Collector) Statistics() Statistics {
	snap := c.Snapshot()

	c.mu.Lock()
	dropped := c.dropped
	c.mu.Unlock()

	stats := Statistics{
		TotalRequests:             snap.TotalRequests,
		QuestionTypesDistribution: snap.Intents,
		Regenerations:             snap.Regenerations,
		Dropped:                   dropped,
	}
	if snap.TotalRequests == 0 {
		return stats
	}

	total := float64(snap.TotalRequests)
	stats.CacheHitRate = float64(snap.CacheHits) / total * 100
	stats.ValidationFailureRate = float64(snap.ValidationFailures) / total * 100

	if len(snap.ResponseTimes) > 0 {
		var sum time.Duration
		for _, d := range snap.ResponseTimes {
			sum += d
		}
		stats.AvgResponseTime = sum.Seconds() / float64(len(snap.ResponseTimes))
	}
	if len(snap.ResponseLengths) > 0 {
		sum := 0
		for _, n := range snap.ResponseLengths {
			sum += n
		}
		stats.AvgResponseLength = float64(sum) / float64(len(snap.ResponseLengths))
	}
	return stats
}

func status(m models.RequestMetric) string {
	switch {
	case m.FromCache:
		return "cache_hit"
	case !m.Valid:
		return "invalid"
	case m.Regenerated > 0:
		return "regenerated"
	default:
		return "generated"
	}
}

// window keeps the most recent values up to a fixed capacity.
type window[T any] struct {
	buf  []T
	next int
	full bool
}

func newWindow[T any](size int) *window[T] {
	return &window[T]{buf: make([]T, size)}
}

func (w *window[T]) add(v T) {
	w.buf[w.next] = v
	w.next = (w.next + 1) % len(w.buf)
	if w.next == 0 {
		w.full = true
	}
}

// values returns the stored values oldest first.
func (w *window[T]) values() []T {
	if !w.full {
		return append([]T(nil), w.buf[:w.next]...)
	}
	out := make([]T, 0, len(w.buf))
	out = append(out, w.buf[w.next:]...)
	return append(out, w.buf[:w.next]...)
}
