package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("%s body: %v", path, err)
	}
	return rec, body
}

func TestHealthzReportsBuildAndStats(t *testing.T) {
	r := NewRouter(nil, func() map[string]any { return map[string]any{"lanes": 3} })
	rec, body := get(t, r, "/healthz")
	if rec.Code != http.StatusOK || body["status"] != "ok" || body["version"] == nil {
		t.Fatalf("healthz = %d %v", rec.Code, body)
	}
	if body["lanes"] != float64(3) {
		t.Fatalf("stats missing: %v", body)
	}
}

func TestReadyzFollowsStore(t *testing.T) {
	var down error
	r := NewRouter(pingFunc(func(context.Context) error { return down }), nil)
	if rec, _ := get(t, r, "/readyz"); rec.Code != http.StatusOK {
		t.Fatalf("ready store: %d", rec.Code)
	}
	down = errors.New("redis: connection refused")
	rec, body := get(t, r, "/readyz")
	if rec.Code != http.StatusServiceUnavailable || body["error"] != "redis: connection refused" {
		t.Fatalf("down store: %d %v", rec.Code, body)
	}
}

func TestServerStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewServer("127.0.0.1:0", NewRouter(nil, nil))
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}
