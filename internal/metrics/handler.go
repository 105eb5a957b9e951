package metrics

import (
	"encoding/json"
	"math"
	"net/http"
	"sort"
	"time"

	dto "github.com/prometheus/client_model/go"
)

// Summary is the JSON response for the admin metrics endpoint.
type Summary struct {
	HTTP      httpSummary                `json:"http"`
	Dispatch  dispatchSummary            `json:"dispatch"`
	Functions map[string]functionSummary `json:"functions"`
	Points    pointsSummary              `json:"points"`
	RateLimit rateLimitInfo              `json:"rateLimit"`
	Audit     auditInfo                  `json:"audit"`
	Auth      authInfo                   `json:"auth"`
	DB        dbInfo                     `json:"db"`
	Server    serverInfo                 `json:"server"`
}

type httpSummary struct {
	TotalRequests float64 `json:"totalRequests"`
	ErrorRate     float64 `json:"errorRate"`
	P50Latency    float64 `json:"p50Latency"`
	P95Latency    float64 `json:"p95Latency"`
	P99Latency    float64 `json:"p99Latency"`
}

type dispatchSummary struct {
	Total          float64            `json:"total"`
	Succeeded      float64            `json:"succeeded"`
	Failed         float64            `json:"failed"`
	P50Processing  float64            `json:"p50Processing"`
	P95Processing  float64            `json:"p95Processing"`
	ProviderErrors map[string]float64 `json:"providerErrors"`
}

type functionSummary struct {
	Invocations    float64 `json:"invocations"`
	PointsDeducted float64 `json:"pointsDeducted"`
	Insufficient   float64 `json:"insufficient"`
}

type pointsSummary struct {
	Deducted float64            `json:"deducted"`
	Credited map[string]float64 `json:"credited"`
}

type rateLimitInfo struct {
	Rejections float64 `json:"rejections"`
}

type auditInfo struct {
	BufferSize    float64 `json:"bufferSize"`
	WriteFailures float64 `json:"writeFailures"`
}

type authInfo struct {
	Failures  float64 `json:"failures"`
	Successes float64 `json:"successes"`
}

type serverInfo struct {
	StartTime     float64 `json:"startTime"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
}

type dbInfo struct {
	TotalConns    float64 `json:"totalConns"`
	IdleConns     float64 `json:"idleConns"`
	AcquiredConns float64 `json:"acquiredConns"`
	MaxConns      float64 `json:"maxConns"`
	Waits         float64 `json:"waits"`
	WaitSeconds   float64 `json:"waitSeconds"`
}

// Handler returns an http.HandlerFunc that serves live metrics in JSON format.
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := m.Summarize()
		if err != nil {
			http.Error(w, "failed to gather metrics", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache, no-store")
		_ = json.NewEncoder(w).Encode(summary)
	}
}

// Summarize gathers the registry into a Summary.
func (m *Metrics) Summarize() (*Summary, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return nil, err
	}

	fam := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		fam[f.GetName()] = f
	}

	dispatch := fam["jeton_dispatch_total"]
	processing := fam["jeton_processor_duration_seconds"]
	requests := fam["jeton_http_requests_total"]
	latency := fam["jeton_http_request_duration_seconds"]
	start := gaugeValue(fam["jeton_server_start_time_seconds"])

	s := &Summary{
		HTTP: httpSummary{
			TotalRequests: sumCounter(requests, nil),
			ErrorRate:     errorRate(requests),
			P50Latency:    histogramPercentile(latency, 0.50, nil),
			P95Latency:    histogramPercentile(latency, 0.95, nil),
			P99Latency:    histogramPercentile(latency, 0.99, nil),
		},
		Dispatch: dispatchSummary{
			Total:          sumCounter(dispatch, nil),
			Succeeded:      sumCounter(dispatch, labelIs("outcome", "success")),
			Failed:         sumCounter(dispatch, labelIs("outcome", "processing_failed")),
			P50Processing:  histogramPercentile(processing, 0.50, nil),
			P95Processing:  histogramPercentile(processing, 0.95, nil),
			ProviderErrors: byLabel(fam["jeton_provider_errors_total"], "class"),
		},
		Functions: make(map[string]functionSummary),
		Points: pointsSummary{
			Deducted: sumCounter(fam["jeton_points_deducted_total"], nil),
			Credited: byLabel(fam["jeton_points_credited_total"], "type"),
		},
		RateLimit: rateLimitInfo{
			Rejections: sumCounter(fam["jeton_ratelimit_rejections_total"], nil),
		},
		Audit: auditInfo{
			BufferSize:    gaugeValue(fam["jeton_audit_buffer_size"]),
			WriteFailures: sumCounter(fam["jeton_audit_write_failures_total"], nil),
		},
		Auth: authInfo{
			Failures:  sumCounter(fam["jeton_auth_failures_total"], nil),
			Successes: sumCounter(fam["jeton_auth_successes_total"], nil),
		},
		DB: dbInfo{
			TotalConns:    gaugeValue(fam["jeton_db_pool_total_conns"]),
			IdleConns:     gaugeValue(fam["jeton_db_pool_idle_conns"]),
			AcquiredConns: gaugeValue(fam["jeton_db_pool_acquired_conns"]),
			MaxConns:      gaugeValue(fam["jeton_db_pool_max_conns"]),
			Waits:         sumCounter(fam["jeton_db_pool_waits_total"], nil),
			WaitSeconds:   sumCounter(fam["jeton_db_pool_wait_seconds_total"], nil),
		},
		Server: serverInfo{
			StartTime:     start,
			UptimeSeconds: float64(time.Now().Unix()) - start,
		},
	}

	invocations := byLabel(dispatch, "function")
	deducted := byLabel(fam["jeton_points_deducted_total"], "function")
	insufficient := byLabel(fam["jeton_insufficient_points_total"], "function")
	for fn, n := range invocations {
		s.Functions[fn] = functionSummary{
			Invocations:    n,
			PointsDeducted: deducted[fn],
			Insufficient:   insufficient[fn],
		}
	}
	return s, nil
}

// --- Prometheus metric helpers ---

type metricFilter func(*dto.Metric) bool

func labelIs(name, value string) metricFilter {
	return func(m *dto.Metric) bool {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == name && lp.GetValue() == value {
				return true
			}
		}
		return false
	}
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func sumCounter(f *dto.MetricFamily, keep metricFilter) float64 {
	if f == nil {
		return 0
	}
	var total float64
	for _, m := range f.GetMetric() {
		if keep != nil && !keep(m) {
			continue
		}
		if m.GetCounter() != nil {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

// byLabel sums counter values grouped by the value of label.
func byLabel(f *dto.MetricFamily, label string) map[string]float64 {
	out := make(map[string]float64)
	if f == nil {
		return out
	}
	for _, m := range f.GetMetric() {
		if m.GetCounter() != nil {
			out[labelValue(m, label)] += m.GetCounter().GetValue()
		}
	}
	return out
}

func gaugeValue(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	ms := f.GetMetric()
	if len(ms) == 0 {
		return 0
	}
	if ms[0].GetGauge() != nil {
		return ms[0].GetGauge().GetValue()
	}
	return 0
}

// errorRate is the share of requests answered with a 5xx status. Client
// errors such as 402 are expected business outcomes here.
func errorRate(f *dto.MetricFamily) float64 {
	total := sumCounter(f, nil)
	if total == 0 {
		return 0
	}
	failed := sumCounter(f, func(m *dto.Metric) bool {
		code := labelValue(m, "status_code")
		return len(code) > 0 && code[0] == '5'
	})
	return failed / total
}

// histogramPercentile computes a percentile from aggregated histogram buckets
// using linear interpolation.
func histogramPercentile(f *dto.MetricFamily, q float64, keep metricFilter) float64 {
	if f == nil {
		return 0
	}

	type bucket struct {
		upperBound      float64
		cumulativeCount uint64
	}
	var totalCount uint64
	bucketMap := make(map[float64]uint64)

	for _, m := range f.GetMetric() {
		if keep != nil && !keep(m) {
			continue
		}
		h := m.GetHistogram()
		if h == nil {
			continue
		}
		totalCount += h.GetSampleCount()
		for _, b := range h.GetBucket() {
			bucketMap[b.GetUpperBound()] += b.GetCumulativeCount()
		}
	}

	if totalCount == 0 {
		return 0
	}

	buckets := make([]bucket, 0, len(bucketMap))
	for ub, count := range bucketMap {
		buckets = append(buckets, bucket{upperBound: ub, cumulativeCount: count})
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].upperBound < buckets[j].upperBound
	})

	rank := q * float64(totalCount)

	var prevBound float64
	var prevCount uint64
	for _, b := range buckets {
		if math.IsInf(b.upperBound, 1) {
			break
		}
		if float64(b.cumulativeCount) >= rank {
			bucketCount := b.cumulativeCount - prevCount
			if bucketCount == 0 {
				return b.upperBound
			}
			fraction := (rank - float64(prevCount)) / float64(bucketCount)
			return prevBound + fraction*(b.upperBound-prevBound)
		}
		prevBound = b.upperBound
		prevCount = b.cumulativeCount
	}

	// Every sample landed in +Inf; report the last finite bound.
	for i := len(buckets) - 1; i >= 0; i-- {
		if !math.IsInf(buckets[i].upperBound, 1) {
			return buckets[i].upperBound
		}
	}
	return 0
}
