package events

import (
	"sync"
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus(16)
	defer bus.Close()

	received := make(chan Event, 1)
	unsub := bus.Subscribe(func(e Event) {
		received <- e
	}, EventTaskStarted)
	defer unsub()

	bus.Publish(NewTypedEventWithThread(SourceOrchestrator, TaskStartedPayload{
		TaskID:    "t1",
		Objective: "do something",
	}, "thr_abc"))

	select {
	case e := <-received:
		if e.Type != EventTaskStarted {
			t.Errorf("expected task.started, got %s", e.Type)
		}
		if e.ThreadID != "thr_abc" {
			t.Errorf("expected thread thr_abc, got %q", e.ThreadID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBus_TypeFilter(t *testing.T) {
	bus := NewBus(16)
	defer bus.Close()

	received := make(chan Event, 4)
	unsub := bus.Subscribe(func(e Event) {
		received <- e
	}, EventTaskFailed)
	defer unsub()

	bus.Publish(NewTypedEvent(SourceOrchestrator, TaskStartedPayload{TaskID: "t1"}))
	bus.Publish(NewTypedEvent(SourceOrchestrator, TaskFailedPayload{TaskID: "t1", Error: "boom"}))

	select {
	case e := <-received:
		if e.Type != EventTaskFailed {
			t.Errorf("filter leaked event type %s", e.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for filtered event")
	}
}

func TestBus_PublishAfterClose(t *testing.T) {
	bus := NewBus(4)
	bus.Close()

	// Must not panic.
	bus.Publish(NewTypedEvent(SourceAgent, UserMessagePayload{Content: "hi"}))
}

func TestBus_ConcurrentPublishAndClose(t *testing.T) {
	bus := NewBus(4)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				bus.Publish(NewTypedEvent(SourceAgent, UserMessagePayload{Content: "x"}))
			}
		}()
	}

	// Closing mid-publish must never panic a publisher.
	bus.Close()
	wg.Wait()
}

func TestExtractPayload(t *testing.T) {
	e := NewTypedEvent(SourceAgent, AgentMessagePayload{
		AgentID:   "a1",
		AgentName: "Marvin",
		Content:   "hello",
		ToolCalls: []ToolCallRef{{ID: "c1", Name: "web_search", Arguments: `{"query":"go"}`}},
	})

	p, ok := ExtractPayload[AgentMessagePayload](e)
	if !ok {
		t.Fatal("expected payload to decode")
	}
	if p.AgentName != "Marvin" || p.Content != "hello" {
		t.Errorf("unexpected payload: %+v", p)
	}
	if len(p.ToolCalls) != 1 || p.ToolCalls[0].Name != "web_search" {
		t.Errorf("tool calls not preserved: %+v", p.ToolCalls)
	}

	// Wrong type must not decode.
	if _, ok := ExtractPayload[TaskFailedPayload](e); ok {
		t.Error("expected mismatch for wrong payload type")
	}
}

func TestRingBuffer_Wraparound(t *testing.T) {
	rb := NewRingBuffer(3)
	for i := 0; i < 5; i++ {
		rb.Add(NewTypedEvent(SourceFlow, UserMessagePayload{Content: string(rune('a' + i))}))
	}

	got := rb.Get(3)
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	// Oldest two must have been evicted.
	if got[0].Payload["content"] != "c" || got[2].Payload["content"] != "e" {
		t.Errorf("unexpected ring contents: %v, %v", got[0].Payload, got[2].Payload)
	}
}
