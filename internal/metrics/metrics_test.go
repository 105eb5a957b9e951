package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/alecgard/jeton/internal/audit"
	"github.com/alecgard/jeton/internal/auth"
	"github.com/alecgard/jeton/internal/dispatch"
	"github.com/alecgard/jeton/internal/ledger"
	"github.com/alecgard/jeton/internal/ratelimit"
)

var (
	_ ledger.MetricsRecorder    = (*Metrics)(nil)
	_ audit.MetricsRecorder     = (*Metrics)(nil)
	_ dispatch.MetricsRecorder  = (*Metrics)(nil)
	_ auth.MetricsRecorder      = (*Metrics)(nil)
	_ ratelimit.MetricsRecorder = (*Metrics)(nil)
)

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Post("/api/v1/ai/{function}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
	})

	for _, fn := range []string{"chat", "movie-clip", "chat"} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/ai/"+fn, nil)
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	s, err := m.Summarize()
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if s.HTTP.TotalRequests != 3 {
		t.Fatalf("expected 3 requests, got %v", s.HTTP.TotalRequests)
	}
	if s.HTTP.ErrorRate != 0 {
		t.Fatalf("402 should not count as an error, got rate %v", s.HTTP.ErrorRate)
	}

	rec := httptest.NewRecorder()
	m.PrometheusHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	if !strings.Contains(body, `path_pattern="/api/v1/ai/{function}"`) {
		t.Fatalf("expected route pattern label in exposition, got:\n%s", body)
	}
	if strings.Contains(body, `path_pattern="/api/v1/ai/chat"`) {
		t.Fatal("raw paths must not be used as labels")
	}
}

func TestSummarize(t *testing.T) {
	m := New()
	m.IncDispatch("chat", dispatch.OutcomeSuccess)
	m.IncDispatch("chat", dispatch.OutcomeSuccess)
	m.IncDispatch("movie-clip", dispatch.OutcomeProcessingFailed)
	m.IncDispatch("code-generation", dispatch.OutcomeInsufficientPoints)
	m.AddPointsDeducted("chat", 20)
	m.AddPointsDeducted("movie-clip", 50)
	m.IncInsufficientPoints("code-generation")
	m.AddPointsCredited("BONUS", 100)
	m.AddPointsCredited("RECHARGE", 30)
	m.AddAuditWriteFailures(2)
	m.SetAuditBufferSize(7)
	m.IncRateLimitRejection()
	m.IncAuthFailure("user")
	m.IncAuthSuccess("admin")
	m.ObserveProcessorDuration("chat", 0.2)
	m.IncProviderError("openai", "quota")
	m.IncProviderError("ollama", "quota")
	m.IncProviderError("openai", "timeout")

	s, err := m.Summarize()
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}

	if s.Dispatch.Total != 4 || s.Dispatch.Succeeded != 2 || s.Dispatch.Failed != 1 {
		t.Errorf("unexpected dispatch summary: %+v", s.Dispatch)
	}
	if s.Dispatch.P50Processing <= 0 {
		t.Errorf("expected a processing percentile, got %v", s.Dispatch.P50Processing)
	}
	if s.Dispatch.ProviderErrors["quota"] != 2 || s.Dispatch.ProviderErrors["timeout"] != 1 {
		t.Errorf("unexpected provider errors: %+v", s.Dispatch.ProviderErrors)
	}
	if got := s.Functions["chat"]; got.Invocations != 2 || got.PointsDeducted != 20 {
		t.Errorf("unexpected chat summary: %+v", got)
	}
	if got := s.Functions["code-generation"]; got.Insufficient != 1 {
		t.Errorf("unexpected code-generation summary: %+v", got)
	}
	if s.Points.Deducted != 70 || s.Points.Credited["BONUS"] != 100 || s.Points.Credited["RECHARGE"] != 30 {
		t.Errorf("unexpected points summary: %+v", s.Points)
	}
	if s.Audit.WriteFailures != 2 || s.Audit.BufferSize != 7 {
		t.Errorf("unexpected audit summary: %+v", s.Audit)
	}
	if s.RateLimit.Rejections != 1 || s.Auth.Failures != 1 || s.Auth.Successes != 1 {
		t.Errorf("unexpected rate limit or auth summary: %+v %+v", s.RateLimit, s.Auth)
	}
	if s.Server.StartTime == 0 {
		t.Error("expected server start time")
	}
}

func TestHandlerJSON(t *testing.T) {
	m := New()
	m.RegisterDBPoolCollector("postgres", func() DBStats {
		return DBStats{TotalConns: 10, IdleConns: 7, AcquiredConns: 3, MaxConns: 20, WaitCount: 4, WaitDuration: 1500 * time.Millisecond}
	})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("unexpected content type %q", ct)
	}

	var s Summary
	if err := json.NewDecoder(rec.Body).Decode(&s); err != nil {
		t.Fatalf("decoding summary: %v", err)
	}
	if s.DB.TotalConns != 10 || s.DB.IdleConns != 7 || s.DB.AcquiredConns != 3 {
		t.Errorf("unexpected db summary: %+v", s.DB)
	}
	if s.DB.MaxConns != 20 || s.DB.Waits != 4 || s.DB.WaitSeconds != 1.5 {
		t.Errorf("unexpected db wait summary: %+v", s.DB)
	}
}

func TestSQLStatsCollector(t *testing.T) {
	stats := sql.DBStats{
		MaxOpenConnections: 1,
		OpenConnections:    1,
		InUse:              1,
		WaitCount:          3,
		WaitDuration:       2 * time.Second,
	}
	m := New()
	m.RegisterDBPoolCollector("sqlite", func() DBStats { return SQLStats(stats) })

	rec := httptest.NewRecorder()
	m.PrometheusHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		`jeton_db_pool_max_conns{driver="sqlite"} 1`,
		`jeton_db_pool_acquired_conns{driver="sqlite"} 1`,
		`jeton_db_pool_waits_total{driver="sqlite"} 3`,
		`jeton_db_pool_wait_seconds_total{driver="sqlite"} 2`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in exposition, got:\n%s", want, body)
		}
	}
}
