package monitoring

import (
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCurrentMetrics(t *testing.T) {
	var gotAuth, gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.Query().Get("query")
		w.Write([]byte(`{
			"status": "success",
			"data": {
				"result": [
					{"metric": {"__name__": "http_requests_total", "service": "web-server"}, "value": [1693000000, "42.5"]},
					{"metric": {"service": "web-server"}, "value": [1693000000, "7"]},
					{"metric": {"__name__": "bad_sample"}, "value": [1693000000, "not-a-number"]}
				]
			}
		}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret-token")
	metrics := client.CurrentMetrics("web-server")

	if gotAuth != "Bearer secret-token" {
		t.Errorf("authorization header = %q", gotAuth)
	}
	if gotQuery != `rate(http_requests_total{service="web-server"}[5m])` {
		t.Errorf("query = %q", gotQuery)
	}
	if len(metrics) != 2 {
		t.Fatalf("parsed %v metrics (%v), want 2", len(metrics), metrics)
	}
	if metrics["http_requests_total"] != 42.5 {
		t.Errorf("http_requests_total = %v, want 42.5", metrics["http_requests_total"])
	}
	// samples without a __name__ label fall back to unknown
	if metrics["unknown"] != 7 {
		t.Errorf("unknown = %v, want 7", metrics["unknown"])
	}
}

func TestCurrentMetricsFailuresYieldEmpty(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"Server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"Invalid json", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("not json"))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			metrics := NewClient(server.URL, "").CurrentMetrics("web-server")
			if len(metrics) != 0 {
				t.Errorf("expected empty metrics, got %v", metrics)
			}
		})
	}
}

func TestCompare(t *testing.T) {
	baseline := map[string]float64{
		"requests": 100,
		"errors":   0,
		"gone":     5,
	}
	current := map[string]float64{
		"requests": 150,
		"errors":   10,
		"new":      3,
	}

	comparison := Compare(baseline, current)

	if len(comparison) != 1 {
		t.Fatalf("Compare() produced %v entries (%v), want 1", len(comparison), comparison)
	}
	requests := comparison["requests"]
	if requests.Baseline != 100 || requests.Current != 150 {
		t.Errorf("requests comparison = %+v", requests)
	}
	if math.Abs(requests.ChangePercent-50) > 1e-9 {
		t.Errorf("change percent = %v, want 50", requests.ChangePercent)
	}
}

func TestCaptureAndCompareBaseline(t *testing.T) {
	value := "100"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": {"result": [{"metric": {"__name__": "requests"}, "value": [1693000000, "` + value + `"]}]}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	client.CaptureBaseline("web-server")

	value = "80"
	comparison := client.CompareWithBaseline("web-server")
	requests, ok := comparison["requests"]
	if !ok {
		t.Fatalf("comparison missing requests metric: %v", comparison)
	}
	if math.Abs(requests.ChangePercent+20) > 1e-9 {
		t.Errorf("change percent = %v, want -20", requests.ChangePercent)
	}
}
