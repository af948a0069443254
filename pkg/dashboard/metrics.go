package dashboard

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// exposition counters for the dashboard's own /metrics endpoint
var (
	connectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chaos_dashboard_connected_clients",
		Help: "Number of websocket clients currently connected",
	})

	metricsUpdatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chaos_dashboard_metrics_updates_total",
		Help: "Number of metric polls attempted by the producer",
	})

	experimentRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chaos_experiment_running",
		Help: "Whether an experiment is currently running (0 or 1)",
	})
)
