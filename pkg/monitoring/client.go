// Package monitoring retrieves service metrics around an experiment for
// before/after comparison. The transport contract is deliberately soft:
// a fetch failure yields an empty metric set, never an error, so a
// monitoring outage can't fail an experiment run.
package monitoring

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mayhemchaos/mayhem-go/pkg/log"
)

// Comparison is the before/after delta of one metric
type Comparison struct {
	Baseline      float64 `json:"baseline"`
	Current       float64 `json:"current"`
	ChangePercent float64 `json:"change_percent"`
}

// Client queries a prometheus-compatible HTTP api for service metrics
type Client struct {
	monitoringURL string
	apiKey        string
	client        *http.Client
	baseline      map[string]float64
}

func NewClient(monitoringURL, apiKey string) *Client {
	return &Client{
		monitoringURL: monitoringURL,
		apiKey:        apiKey,
		client:        &http.Client{Timeout: 10 * time.Second},
	}
}

// CurrentMetrics fetches the current request-rate metrics of a service.
// It returns an empty map on any transport or decode failure.
func (c *Client) CurrentMetrics(service string) map[string]float64 {
	query := fmt.Sprintf(`rate(http_requests_total{service="%v"}[5m])`, service)

	endpoint := fmt.Sprintf("%v/api/v1/query?query=%v", c.monitoringURL, url.QueryEscape(query))
	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		log.Errorf("unable to build metrics request, err: %v", err)
		return map[string]float64{}
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		log.Errorf("unable to fetch metrics, err: %v", err)
		return map[string]float64{}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Errorf("metrics query returned status code %v", resp.StatusCode)
		return map[string]float64{}
	}

	var payload promResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		log.Errorf("unable to decode metrics response, err: %v", err)
		return map[string]float64{}
	}

	return payload.metrics()
}

// CaptureBaseline snapshots the current metrics as the baseline for
// later comparison
func (c *Client) CaptureBaseline(service string) map[string]float64 {
	c.baseline = c.CurrentMetrics(service)
	return c.baseline
}

// CompareWithBaseline computes the percentage change of every metric
// present in both the current set and the baseline. Metrics with a zero
// baseline are omitted rather than producing an infinite change.
func (c *Client) CompareWithBaseline(service string) map[string]Comparison {
	return Compare(c.baseline, c.CurrentMetrics(service))
}

// Compare is the pure comparison over two metric sets
func Compare(baseline, current map[string]float64) map[string]Comparison {
	comparison := map[string]Comparison{}
	for metric, value := range current {
		base, ok := baseline[metric]
		if !ok || base == 0 {
			continue
		}
		comparison[metric] = Comparison{
			Baseline:      base,
			Current:       value,
			ChangePercent: (value - base) / base * 100,
		}
	}
	return comparison
}

// promResponse is the subset of the prometheus query response the client
// consumes
type promResponse struct {
	Data struct {
		Result []struct {
			Metric map[string]string `json:"metric"`
			Value  []interface{}     `json:"value"`
		} `json:"result"`
	} `json:"data"`
}

// metrics flattens the response into metric name -> sample value.
// Prometheus encodes samples as [timestamp, "value"].
func (r promResponse) metrics() map[string]float64 {
	metrics := map[string]float64{}
	for _, result := range r.Data.Result {
		name := result.Metric["__name__"]
		if name == "" {
			name = "unknown"
		}
		if len(result.Value) != 2 {
			continue
		}
		raw, ok := result.Value[1].(string)
		if !ok {
			continue
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		metrics[name] = value
	}
	return metrics
}
