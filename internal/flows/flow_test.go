package flows

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/dohr-michael/loom/internal/events"
)

// memStore is an in-memory HistoryStore for tests.
type memStore struct {
	threads map[string][]events.Event
}

func newMemStore() *memStore {
	return &memStore{threads: make(map[string][]events.Event)}
}

func (s *memStore) Append(_ context.Context, threadID string, evts ...events.Event) error {
	s.threads[threadID] = append(s.threads[threadID], evts...)
	return nil
}

func (s *memStore) Load(_ context.Context, threadID string) ([]events.Event, error) {
	return s.threads[threadID], nil
}

func (s *memStore) Threads(_ context.Context) ([]ThreadMeta, error) {
	var metas []ThreadMeta
	for id, evts := range s.threads {
		metas = append(metas, ThreadMeta{ThreadID: id, Events: len(evts)})
	}
	return metas, nil
}

func event(id, typ string) events.Event {
	return events.Event{ID: id, Type: events.EventType(typ), Timestamp: time.Now()}
}

func TestNew_GeneratesThreadID(t *testing.T) {
	f := New(Config{Name: "research"})
	if !strings.HasPrefix(f.ThreadID, "thr_") {
		t.Errorf("unexpected thread id %q", f.ThreadID)
	}

	g := New(Config{ThreadID: "thr_fixed"})
	if g.ThreadID != "thr_fixed" {
		t.Errorf("given thread id must be kept, got %q", g.ThreadID)
	}
}

func TestContext_ChildSnapshotAndShadowing(t *testing.T) {
	parent := New(Config{Context: map[string]any{"topic": "go", "depth": 1}})
	child := parent.Child(Config{Context: map[string]any{"depth": 2}})

	ctx := child.Context()
	if ctx["topic"] != "go" {
		t.Error("child must see parent context")
	}
	if ctx["depth"] != 2 {
		t.Error("child keys must shadow parent keys")
	}

	// Parent changes after child creation are not visible: snapshot semantics.
	parent.Set("topic", "rust")
	if child.Context()["topic"] != "go" {
		t.Error("child context is a snapshot taken at creation")
	}

	if _, ok := parent.Context()["depth2"]; ok {
		t.Error("parent must not see child keys")
	}
}

func TestEvents_AsymmetricVisibility(t *testing.T) {
	parent := New(Config{})
	child := parent.Child(Config{})

	if err := parent.Append(context.Background(), event("1", "user.message")); err != nil {
		t.Fatal(err)
	}
	if err := child.Append(context.Background(), event("2", "agent.message")); err != nil {
		t.Fatal(err)
	}

	got := child.Events()
	if len(got) != 2 || got[0].ID != "1" || got[1].ID != "2" {
		t.Fatalf("child must see parent events first, got %v", got)
	}

	if len(parent.Events()) != 1 {
		t.Error("parent must never see child events")
	}

	// Parent events appended after child creation are still visible: live view.
	if err := parent.Append(context.Background(), event("3", "user.message")); err != nil {
		t.Fatal(err)
	}
	got = child.Events()
	if len(got) != 3 {
		t.Errorf("child view of parent events is live, got %d events", len(got))
	}
}

func TestOpen_ReloadsHistoryVerbatim(t *testing.T) {
	store := newMemStore()

	f := New(Config{ThreadID: "thr_abc", Store: store})
	for i := 0; i < 3; i++ {
		if err := f.Append(context.Background(), event(fmt.Sprint(i), "agent.message")); err != nil {
			t.Fatal(err)
		}
	}

	reopened, err := Open(context.Background(), store, "thr_abc", Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := reopened.Events()
	if len(got) != 3 {
		t.Fatalf("expected 3 reloaded events, got %d", len(got))
	}
	for i, e := range got {
		if e.ID != fmt.Sprint(i) {
			t.Errorf("event %d out of order: %s", i, e.ID)
		}
	}

	// Appending after reopen extends, never rewrites.
	if err := reopened.Append(context.Background(), event("3", "user.message")); err != nil {
		t.Fatal(err)
	}
	if len(store.threads["thr_abc"]) != 4 {
		t.Errorf("expected 4 stored events, got %d", len(store.threads["thr_abc"]))
	}
}

func TestOpen_RequiresStore(t *testing.T) {
	if _, err := Open(context.Background(), nil, "thr_x", Config{}); err == nil {
		t.Fatal("expected error for nil store")
	}
}
