package metrics

import (
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
)

// Metrics tracks iteration execution statistics across the job queue,
// evaluator, and budget engine.
type Metrics struct {
	JobsTotal       int64
	JobsSucceeded   int64
	JobsFailed      int64
	OutputsTotal    int64
	OutputsBlocked  int64
	JudgmentsTotal  int64
	JudgmentsInvalid int64
	TokensConsumed  int64
	CostUSDCentis   int64 // USD cost in hundredths of a cent, for atomic accumulation
}

// AddCostUSD atomically accumulates a USD amount.
func (m *Metrics) AddCostUSD(amount float64) {
	atomic.AddInt64(&m.CostUSDCentis, int64(amount*10000))
}

// PrometheusExporter exports metrics in Prometheus text format.
type PrometheusExporter struct {
	metrics *Metrics
}

// NewPrometheusExporter creates a new Prometheus exporter.
func NewPrometheusExporter(m *Metrics) *PrometheusExporter {
	return &PrometheusExporter{
		metrics: m,
	}
}

// Export returns metrics in Prometheus text format.
func (e *PrometheusExporter) Export() string {
	var b strings.Builder

	jobsTotal := atomic.LoadInt64(&e.metrics.JobsTotal)
	jobsSucceeded := atomic.LoadInt64(&e.metrics.JobsSucceeded)
	jobsFailed := atomic.LoadInt64(&e.metrics.JobsFailed)
	outputsTotal := atomic.LoadInt64(&e.metrics.OutputsTotal)
	outputsBlocked := atomic.LoadInt64(&e.metrics.OutputsBlocked)
	judgmentsTotal := atomic.LoadInt64(&e.metrics.JudgmentsTotal)
	judgmentsInvalid := atomic.LoadInt64(&e.metrics.JudgmentsInvalid)
	costUSD := float64(atomic.LoadInt64(&e.metrics.CostUSDCentis)) / 10000

	fmt.Fprintf(&b, "edison_jobs_total{status=\"success\"} %d\n", jobsSucceeded)
	fmt.Fprintf(&b, "edison_jobs_total{status=\"failed\"} %d\n", jobsFailed)
	fmt.Fprintf(&b, "edison_jobs_total %d\n", jobsTotal)

	fmt.Fprintf(&b, "edison_outputs_total %d\n", outputsTotal)
	fmt.Fprintf(&b, "edison_outputs_blocked %d\n", outputsBlocked)

	fmt.Fprintf(&b, "edison_judgments_total %d\n", judgmentsTotal)
	fmt.Fprintf(&b, "edison_judgments_invalid %d\n", judgmentsInvalid)

	var invalidRate float64
	if judgmentsTotal > 0 {
		invalidRate = float64(judgmentsInvalid) / float64(judgmentsTotal)
	}
	fmt.Fprintf(&b, "edison_judgments_invalid_rate %s\n", formatFloat(invalidRate))

	fmt.Fprintf(&b, "edison_cost_usd_total %s\n", formatFloat(costUSD))

	return b.String()
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (e *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, e.Export())
	})
}

// formatFloat formats a float64 for Prometheus (removes trailing zeros).
func formatFloat(f float64) string {
	if f == 0.0 {
		return "0"
	}
	s := fmt.Sprintf("%.4f", f)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	return s
}
