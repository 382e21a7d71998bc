package gateway

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dohr-michael/loom/internal/events"
	"github.com/dohr-michael/loom/internal/flows"
	"github.com/dohr-michael/loom/internal/storage"
)

func newTestServer(t *testing.T) (*Server, *storage.FileStore, *events.Bus) {
	t.Helper()
	bus := events.NewBus(16)
	t.Cleanup(bus.Close)
	store := storage.NewFileStore(t.TempDir())
	costs := storage.NewCostTracker(bus)
	t.Cleanup(costs.Close)
	return NewServer(bus, store, costs, "127.0.0.1", 0), store, bus
}

func TestHandleHealth(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/health", nil))

	if rec.Code != 200 {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestHandleThreads(t *testing.T) {
	s, store, _ := newTestServer(t)

	e := events.NewTypedEventWithThread(events.SourceUser, events.UserMessagePayload{Content: "hi"}, "thr_x")
	if err := store.Append(context.Background(), "thr_x", e); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/threads", nil))
	if rec.Code != 200 {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var metas []flows.ThreadMeta
	if err := json.NewDecoder(rec.Body).Decode(&metas); err != nil {
		t.Fatal(err)
	}
	if len(metas) != 1 || metas[0].ThreadID != "thr_x" {
		t.Errorf("unexpected threads: %v", metas)
	}

	rec = httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/threads/thr_x/events", nil))
	if rec.Code != 200 {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var evts []events.Event
	if err := json.NewDecoder(rec.Body).Decode(&evts); err != nil {
		t.Fatal(err)
	}
	if len(evts) != 1 || evts[0].Type != events.EventUserMessage {
		t.Errorf("unexpected events: %v", evts)
	}
}

func TestHandleThreadEvents_NotFound(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/threads/thr_missing/events", nil))
	if rec.Code != 404 {
		t.Errorf("unexpected status: %d", rec.Code)
	}
}

func TestHandleThreadUsage(t *testing.T) {
	s, _, bus := newTestServer(t)

	bus.Publish(events.NewTypedEventWithThread(events.SourceOrchestrator, events.LLMCallPayload{
		Phase:        "response",
		TokensInput:  10,
		TokensOutput: 5,
	}, "thr_u"))

	deadline := time.After(2 * time.Second)
	for {
		rec := httptest.NewRecorder()
		s.httpServer.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/threads/thr_u/usage", nil))
		var usage storage.TokenUsage
		if err := json.NewDecoder(rec.Body).Decode(&usage); err != nil {
			t.Fatal(err)
		}
		if usage.Calls == 1 {
			if usage.Input != 10 || usage.Output != 5 {
				t.Fatalf("unexpected usage: %+v", usage)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("usage never recorded")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
