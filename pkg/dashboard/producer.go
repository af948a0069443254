package dashboard

import (
	"context"
	"sync"
	"time"

	"github.com/mayhemchaos/mayhem-go/pkg/log"
	"github.com/mayhemchaos/mayhem-go/pkg/math"
	"github.com/mayhemchaos/mayhem-go/pkg/monitoring"
	"github.com/mayhemchaos/mayhem-go/pkg/types"
)

const (
	// DefaultPollInterval between metric snapshots
	DefaultPollInterval = 2 * time.Second
	// DefaultErrorBackoff replaces the poll interval after a failed fetch
	DefaultErrorBackoff = 5 * time.Second

	maxHistoryPoints = 100
)

// MetricsSource is the metric retrieval capability the producer polls
type MetricsSource interface {
	CurrentMetrics(service string) map[string]float64
}

// StatusSource is the read-only experiment status the producer attaches
// to every update
type StatusSource interface {
	Status() types.StatusSnapshot
}

// HistoryPoint is one archived metrics sample
type HistoryPoint struct {
	Timestamp time.Time          `json:"timestamp"`
	Metrics   map[string]float64 `json:"metrics"`
}

// Producer is the single background loop that polls the metrics source
// and fans snapshots out to the hub. It shares no mutable state with the
// experiment lifecycle beyond the status snapshot.
type Producer struct {
	source   MetricsSource
	status   StatusSource
	hub      *Hub
	interval time.Duration
	backoff  time.Duration

	mu       sync.Mutex
	service  string
	baseline map[string]float64
	history  []HistoryPoint
}

func NewProducer(source MetricsSource, status StatusSource, hub *Hub, interval, backoff time.Duration) *Producer {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if backoff <= 0 {
		backoff = DefaultErrorBackoff
	}
	return &Producer{
		source:   source,
		status:   status,
		hub:      hub,
		interval: interval,
		backoff:  backoff,
	}
}

// SetService switches the polled target service
func (p *Producer) SetService(service string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.service = service
}

// CaptureBaseline snapshots the current metrics as the comparison
// baseline and announces it to the clients
func (p *Producer) CaptureBaseline(service string) {
	baseline := p.source.CurrentMetrics(service)

	p.mu.Lock()
	p.baseline = baseline
	p.mu.Unlock()

	p.hub.Broadcast(Message{
		Type: "baseline_captured",
		Data: map[string]interface{}{
			"service":   service,
			"baseline":  baseline,
			"timestamp": time.Now().UTC(),
		},
	})
}

// History returns the most recent archived samples, newest last
func (p *Producer) History(limit int) []HistoryPoint {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := math.Maximum(0, len(p.history)-limit)
	return append([]HistoryPoint{}, p.history[start:]...)
}

// Run polls until the context is cancelled. A fetch failure backs off
// and resumes, it never terminates the stream.
func (p *Producer) Run(ctx context.Context) {
	log.Infof("[Dashboard]: Metrics producer started, polling every %v", p.interval)

	for {
		wait := p.interval
		if !p.collect() {
			wait = p.backoff
		}

		select {
		case <-ctx.Done():
			log.Info("[Dashboard]: Metrics producer stopped")
			return
		case <-time.After(wait):
		}
	}
}

// collect fetches one sample and broadcasts it, reporting whether the
// fetch produced data
func (p *Producer) collect() bool {
	p.mu.Lock()
	service := p.service
	baseline := p.baseline
	p.mu.Unlock()

	if service == "" {
		return true
	}

	metrics := p.source.CurrentMetrics(service)
	metricsUpdatesTotal.Inc()
	if len(metrics) == 0 {
		log.Debugf("[Dashboard]: no metrics for %v, backing off", service)
		return false
	}

	point := HistoryPoint{Timestamp: time.Now().UTC(), Metrics: metrics}
	p.mu.Lock()
	p.history = append(p.history, point)
	if len(p.history) > maxHistoryPoints {
		p.history = p.history[len(p.history)-maxHistoryPoints:]
	}
	p.mu.Unlock()

	p.hub.Broadcast(Message{
		Type: "metrics_update",
		Data: map[string]interface{}{
			"timestamp": point.Timestamp,
			"metrics":   metrics,
			"changes":   monitoring.Compare(baseline, metrics),
			"status":    p.status.Status(),
		},
	})
	return true
}
