package flows

import (
	"context"
	"time"

	"github.com/dohr-michael/loom/internal/events"
)

// ThreadMeta summarizes a stored thread.
type ThreadMeta struct {
	ThreadID  string    `json:"thread_id"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Events    int       `json:"events"`
}

// HistoryStore persists thread histories. Implementations live in
// internal/storage. Append never rewrites prior events; Load returns them
// verbatim, in order.
type HistoryStore interface {
	Append(ctx context.Context, threadID string, evts ...events.Event) error
	Load(ctx context.Context, threadID string) ([]events.Event, error)
	Threads(ctx context.Context) ([]ThreadMeta, error)
}
