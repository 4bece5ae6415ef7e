//go:build integration

// Package integration wires the full jobmap HTTP stack against an httptest
// upstream: HTTP record source, file snapshots, engine, handlers, health and
// the middleware chain.
//
// Run with:
//
//	go test -v -tags=integration ./test/integration/...
package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/jobmap/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/jobmap/internal/api/handler"
	"github.com/Adithya-Monish-Kumar-K/jobmap/internal/app"
	"github.com/Adithya-Monish-Kumar-K/jobmap/internal/auth/adminkey"
	"github.com/Adithya-Monish-Kumar-K/jobmap/internal/refresh"
	"github.com/Adithya-Monish-Kumar-K/jobmap/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/jobmap/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/jobmap/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/jobmap/pkg/middleware"
)

const adminKey = "integration-admin"

// upstream serves a mutable record payload.
type upstream struct {
	mu      sync.Mutex
	payload string
	fail    bool
}

func (u *upstream) set(payload string, fail bool) {
	u.mu.Lock()
	u.payload, u.fail = payload, fail
	u.mu.Unlock()
}

func (u *upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.fail {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, u.payload)
}

func records(titles ...string) string {
	var parts []string
	for i, title := range titles {
		parts = append(parts, fmt.Sprintf(
			`{"id":"j%d","title":%q,"company":"Acme","locations":[{"city":"Bern","latitude":46.95,"longitude":7.44},{"city":"Zurich","latitude":47.37,"longitude":8.54}]}`,
			i, title))
	}
	return `{"jobs":[` + strings.Join(parts, ",") + `]}`
}

type server struct {
	*httptest.Server
	up *upstream
}

func newServer(t *testing.T, rps float64) *server {
	t.Helper()
	up := &upstream{payload: records("Welder", "Nurse", "Senior Welder")}
	upSrv := httptest.NewServer(up)
	t.Cleanup(upSrv.Close)

	cfg := config.Default()
	cfg.Source.Kind = "http"
	cfg.Source.URL = upSrv.URL
	cfg.Source.Retries = 1
	cfg.Snapshot.Dir = filepath.Join(t.TempDir(), "snapshots")
	cfg.Search.DefaultLimit = 2

	m := metrics.New(nil)
	stack, err := app.Build(cfg, m)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { stack.Close() })
	if err := stack.Init(context.Background()); err != nil {
		t.Fatal(err)
	}

	aggregator := analytics.NewAggregator()
	h := handler.New(stack.Engine, stack.Cache, refresh.New(stack.Store, stack.Engine, m), aggregator, handler.Options{
		DefaultLimit: cfg.Search.DefaultLimit,
		MaxLimit:     cfg.Search.MaxLimit,
		Admin:        adminkey.Require(adminkey.NewStatic([]string{adminkey.HashKey(adminKey)})),
	})
	checker := health.NewChecker()
	checker.Register("records", func(ctx context.Context) health.ComponentHealth {
		if !stack.Store.Loaded() {
			return health.ComponentHealth{Status: health.StatusDown}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /api/v1/analytics/stats", analytics.NewHandler(aggregator).Stats)
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	chain := middleware.Chain(mux,
		middleware.RequestID,
		middleware.Metrics(m),
		middleware.CORS(middleware.DefaultCORSConfig()),
		middleware.RateLimit(middleware.NewRateLimiter(rps, 2), m),
		middleware.Timeout(5*time.Second),
	)
	srv := httptest.NewServer(chain)
	t.Cleanup(srv.Close)
	return &server{Server: srv, up: up}
}

func (s *server) do(t *testing.T, method, path string, key string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, s.URL+path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body map[string]any
	json.NewDecoder(resp.Body).Decode(&body)
	return resp, body
}

func TestQueryAndPaging(t *testing.T) {
	s := newServer(t, 0)

	resp, body := s.do(t, http.MethodGet, "/api/v1/jobs?q=welder", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing request id")
	}
	// Two welder records, each expanded per location.
	if body["total"].(float64) != 4 || body["hasMore"] != true {
		t.Errorf("body = %v", body)
	}

	_, body = s.do(t, http.MethodGet, "/api/v1/jobs?location=zurich&limit=10", "")
	if body["total"].(float64) != 3 {
		t.Errorf("zurich total = %v", body["total"])
	}

	_, stats := s.do(t, http.MethodGet, "/api/v1/analytics/stats", "")
	if stats["total_searches"].(float64) != 2 {
		t.Errorf("analytics = %v", stats)
	}
}

func TestRefreshPicksUpNewRecordsAndSurvivesOutage(t *testing.T) {
	s := newServer(t, 0)

	if resp, _ := s.do(t, http.MethodPost, "/api/v1/refresh", ""); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("refresh without key = %d", resp.StatusCode)
	}

	s.up.set(records("Welder", "Nurse", "Senior Welder", "Pilot"), false)
	if resp, _ := s.do(t, http.MethodPost, "/api/v1/refresh", adminKey); resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh = %d", resp.StatusCode)
	}
	if _, body := s.do(t, http.MethodGet, "/api/v1/jobs?q=pilot", ""); body["total"].(float64) != 2 {
		t.Errorf("pilot total = %v", body["total"])
	}

	s.up.set("", true)
	if resp, _ := s.do(t, http.MethodPost, "/api/v1/refresh", adminKey); resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("refresh during outage = %d", resp.StatusCode)
	}
	if _, body := s.do(t, http.MethodGet, "/api/v1/jobs?q=pilot", ""); body["total"].(float64) != 2 {
		t.Errorf("records lost after failed refresh: %v", body)
	}
	if resp, _ := s.do(t, http.MethodGet, "/health/ready", ""); resp.StatusCode != http.StatusOK {
		t.Errorf("ready = %d", resp.StatusCode)
	}
}

func TestRateLimitExemptsHealth(t *testing.T) {
	s := newServer(t, 1)

	limited := false
	for i := 0; i < 5; i++ {
		resp, _ := s.do(t, http.MethodGet, "/api/v1/jobs", "")
		if resp.StatusCode == http.StatusTooManyRequests {
			limited = true
			if resp.Header.Get("Retry-After") == "" {
				t.Error("missing Retry-After")
			}
		}
	}
	if !limited {
		t.Error("burst of 5 was never limited")
	}
	if resp, _ := s.do(t, http.MethodGet, "/health/ready", ""); resp.StatusCode != http.StatusOK {
		t.Errorf("health while limited = %d", resp.StatusCode)
	}
}
