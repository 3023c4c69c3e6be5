package healthcheck

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHealthHandlerHealthy(t *testing.T) {
	tracker := NewTracker()
	tracker.RecordRun(150*time.Millisecond, 2)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	handler := HealthHandler(tracker, 5*time.Second)
	handler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var payload Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.LastRunTime == nil {
		t.Fatalf("expected last run time to be set")
	}
	if payload.AlertsRaised != 2 {
		t.Fatalf("expected alerts raised 2, got %d", payload.AlertsRaised)
	}
	if payload.RunDurationMS != 150 {
		t.Fatalf("expected duration 150ms, got %d", payload.RunDurationMS)
	}
}

func TestHealthHandlerUnhealthyWhenStale(t *testing.T) {
	tracker := NewTracker()
	tracker.RecordRun(10*time.Millisecond, 0)
	tracker.lastRun = time.Now().Add(-10 * time.Second)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	handler := HealthHandler(tracker, 3*time.Second)
	handler(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestReadyHandler(t *testing.T) {
	tracker := NewTracker()

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()

	handler := ReadyHandler(tracker)
	handler(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before ready, got %d", rec.Code)
	}

	tracker.RecordRun(5*time.Millisecond, 0)
	rec = httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 after ready, got %d", rec.Code)
	}
}
