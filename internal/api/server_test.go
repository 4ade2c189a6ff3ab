package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"coolgate/internal/config"
	"coolgate/internal/events"
	"coolgate/internal/metrics"
	"coolgate/internal/model"
)

type fakeGate struct {
	initialized bool
	interval    uint32
	expiries    map[string]uint64
	root        string
}

func (f *fakeGate) IsInitialized() bool { return f.initialized }
func (f *fakeGate) Interval() uint32    { return f.interval }
func (f *fakeGate) Expiry(identity string) (uint64, bool) {
	exp, ok := f.expiries[identity]
	return exp, ok
}
func (f *fakeGate) RootCaller() (string, bool) {
	return f.root, f.root != ""
}

func newServerForTest(t *testing.T) *Server {
	t.Helper()
	path := filepath.Join(t.TempDir(), "coolgate.yaml")
	if err := os.WriteFile(path, []byte("gate:\n  interval_seconds: 60\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	m, err := config.NewManager(path)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	eventsStore := events.NewStore(10)
	eventsStore.Add(model.GateEvent{
		Timestamp: time.Now().UTC(),
		Type:      model.EventTriggered,
		Identity:  "alice",
		Expiry:    1060,
	})
	statsStore := metrics.NewStore(10)
	statsStore.RecordTrigger("alice", 1060)
	return &Server{
		cfg:     m,
		gate:    &fakeGate{initialized: true, interval: 60, expiries: map[string]uint64{"alice": 1060}},
		events:  eventsStore,
		stats:   statsStore,
		version: "test",
	}
}

func TestHandleStatus(t *testing.T) {
	s := newServerForTest(t)
	rec := httptest.NewRecorder()
	s.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status code %d", rec.Code)
	}
	var resp statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" || !resp.Gate.Initialized || resp.Gate.IntervalSec != 60 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestHandleExpiry(t *testing.T) {
	s := newServerForTest(t)
	rec := httptest.NewRecorder()
	s.handleExpiry(rec, httptest.NewRequest(http.MethodGet, "/gate/expiry/alice", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status code %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "1060") {
		t.Fatalf("expiry missing from body: %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	s.handleExpiry(rec, httptest.NewRequest(http.MethodGet, "/gate/expiry/nobody", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown identity, got %d", rec.Code)
	}
}

func TestHandleEvents(t *testing.T) {
	s := newServerForTest(t)
	rec := httptest.NewRecorder()
	s.handleEvents(rec, httptest.NewRequest(http.MethodGet, "/events?limit=5", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status code %d", rec.Code)
	}
	var resp struct {
		Events []model.GateEvent `json:"events"`
		Count  int               `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 1 || resp.Events[0].Identity != "alice" {
		t.Fatalf("unexpected events %+v", resp)
	}

	rec = httptest.NewRecorder()
	s.handleEvents(rec, httptest.NewRequest(http.MethodGet, "/events?since=notatime", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad since, got %d", rec.Code)
	}
}

func TestHandleClear(t *testing.T) {
	s := newServerForTest(t)
	rec := httptest.NewRecorder()
	s.handleClear(rec, httptest.NewRequest(http.MethodPost, "/admin/clear", strings.NewReader(`{"target":"events"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status code %d", rec.Code)
	}
	if len(s.events.List(0)) != 0 {
		t.Fatalf("events not cleared")
	}
	if _, _, ok := s.stats.Get("alice"); !ok {
		t.Fatalf("stats should be untouched")
	}

	rec = httptest.NewRecorder()
	s.handleClear(rec, httptest.NewRequest(http.MethodGet, "/admin/clear", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
