package dashboard

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/mayhemchaos/mayhem-go/pkg/types"
)

// scriptedSource returns a fixed metric set per service
type scriptedSource struct {
	metrics map[string]float64
	calls   int
}

func (s *scriptedSource) CurrentMetrics(service string) map[string]float64 {
	s.calls++
	return s.metrics
}

// idleStatus reports no running experiment
type idleStatus struct{}

func (idleStatus) Status() types.StatusSnapshot { return types.StatusSnapshot{} }

func TestProducerCollect(t *testing.T) {
	source := &scriptedSource{metrics: map[string]float64{"requests": 100}}
	producer := NewProducer(source, idleStatus{}, NewHub(), DefaultPollInterval, DefaultErrorBackoff)

	// without a target service the producer idles without backing off
	if !producer.collect() {
		t.Error("collect() without a service must not back off")
	}
	if source.calls != 0 {
		t.Error("collect() without a service must not query the source")
	}

	producer.SetService("web-server")
	if !producer.collect() {
		t.Error("collect() with data must not back off")
	}
	if got := len(producer.History(10)); got != 1 {
		t.Errorf("history has %v points, want 1", got)
	}

	// an empty fetch signals backoff and archives nothing
	source.metrics = map[string]float64{}
	if producer.collect() {
		t.Error("collect() with no data must back off")
	}
	if got := len(producer.History(10)); got != 1 {
		t.Errorf("failed fetch changed the history, %v points", got)
	}
}

func TestProducerHistoryLimit(t *testing.T) {
	source := &scriptedSource{}
	producer := NewProducer(source, idleStatus{}, NewHub(), DefaultPollInterval, DefaultErrorBackoff)

	for i := 0; i < maxHistoryPoints+20; i++ {
		source.metrics = map[string]float64{"requests": float64(i)}
		producer.SetService("web-server")
		producer.collect()
	}

	full := producer.History(maxHistoryPoints * 2)
	if len(full) != maxHistoryPoints {
		t.Fatalf("history holds %v points, want at most %v", len(full), maxHistoryPoints)
	}
	// the oldest points were discarded, the newest kept
	if full[len(full)-1].Metrics["requests"] != float64(maxHistoryPoints+19) {
		t.Errorf("newest point = %v", full[len(full)-1].Metrics)
	}

	limited := producer.History(5)
	if len(limited) != 5 {
		t.Fatalf("History(5) returned %v points", len(limited))
	}
	for i := 1; i < len(limited); i++ {
		if limited[i].Metrics["requests"] < limited[i-1].Metrics["requests"] {
			t.Fatal("history not ordered newest last")
		}
	}
}

func TestProducerDefaults(t *testing.T) {
	producer := NewProducer(&scriptedSource{}, idleStatus{}, NewHub(), 0, 0)
	if producer.interval != DefaultPollInterval {
		t.Errorf("interval = %v, want %v", producer.interval, DefaultPollInterval)
	}
	if producer.backoff != DefaultErrorBackoff {
		t.Errorf("backoff = %v, want %v", producer.backoff, DefaultErrorBackoff)
	}
}

func TestProducerCaptureBaseline(t *testing.T) {
	source := &scriptedSource{metrics: map[string]float64{"requests": 100}}
	producer := NewProducer(source, idleStatus{}, NewHub(), DefaultPollInterval, DefaultErrorBackoff)

	producer.SetService("web-server")
	producer.CaptureBaseline("web-server")
	if fmt.Sprint(producer.baseline) != fmt.Sprint(map[string]float64{"requests": 100}) {
		t.Errorf("baseline = %v", producer.baseline)
	}
}

func TestProducerRunStopsOnCancel(t *testing.T) {
	producer := NewProducer(&scriptedSource{}, idleStatus{}, NewHub(), 10*time.Millisecond, 10*time.Millisecond)

	done := make(chan struct{})
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	go func() {
		producer.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("producer did not stop on context cancellation")
	}
}
