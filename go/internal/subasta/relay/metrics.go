package relay

import (
	"context"
	"sync"
	"time"

	"github.com/subastafrutas/console/go/internal/subasta/events"
)

// EventPublisher is anything that forwards bus events.
type EventPublisher interface {
	Publish(ctx context.Context, ev events.Event) error
}

// MetricsCollector records relay outcomes.
type MetricsCollector interface {
	RecordPublish(eventType events.Type, success bool, duration time.Duration)
}

// NoOpMetricsCollector is a no-op implementation for when metrics aren't needed
type NoOpMetricsCollector struct{}

func (NoOpMetricsCollector) RecordPublish(events.Type, bool, time.Duration) {}

// Stats is a point-in-time copy of Counters.
type Stats struct {
	Published     uint64                 `json:"publicados"`
	Failed        uint64                 `json:"fallidos"`
	ByType        map[events.Type]uint64 `json:"por_tipo"`
	LastPublished time.Time              `json:"ultimo_publicado"`
	LastDuration  time.Duration          `json:"ultima_duracion"`
}

// Counters is an in-memory MetricsCollector read by the status server.
type Counters struct {
	mu    sync.Mutex
	stats Stats
}

func NewCounters() *Counters {
	return &Counters{stats: Stats{ByType: make(map[events.Type]uint64)}}
}

func (c *Counters) RecordPublish(eventType events.Type, success bool, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.LastDuration = duration
	if !success {
		c.stats.Failed++
		return
	}
	c.stats.Published++
	c.stats.ByType[eventType]++
	c.stats.LastPublished = time.Now()
}

func (c *Counters) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := c.stats
	out.ByType = make(map[events.Type]uint64, len(c.stats.ByType))
	for k, v := range c.stats.ByType {
		out.ByType[k] = v
	}
	return out
}

// MetricPublisher wraps an EventPublisher with metrics collection
type MetricPublisher struct {
	publisher EventPublisher
	metrics   MetricsCollector
}

func NewMetricPublisher(publisher EventPublisher, metrics MetricsCollector) *MetricPublisher {
	if metrics == nil {
		metrics = NoOpMetricsCollector{}
	}
	return &MetricPublisher{
		publisher: publisher,
		metrics:   metrics,
	}
}

func (p *MetricPublisher) Publish(ctx context.Context, ev events.Event) error {
	start := time.Now()

	err := p.publisher.Publish(ctx, ev)

	p.metrics.RecordPublish(ev.Type, err == nil, time.Since(start))
	return err
}
