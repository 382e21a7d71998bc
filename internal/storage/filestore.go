// Package storage provides the persistent history backends and the cost
// tracker. All backends implement flows.HistoryStore.
package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/dohr-michael/loom/internal/events"
	"github.com/dohr-michael/loom/internal/flows"
)

// FileStore persists threads as directories with meta.json + events.jsonl.
type FileStore struct {
	mu      sync.RWMutex
	baseDir string
}

// NewFileStore creates a FileStore rooted at baseDir.
func NewFileStore(baseDir string) *FileStore {
	return &FileStore{baseDir: baseDir}
}

func (fs *FileStore) threadDir(id string) string {
	return filepath.Join(fs.baseDir, id)
}

func (fs *FileStore) metaPath(id string) string {
	return filepath.Join(fs.threadDir(id), "meta.json")
}

func (fs *FileStore) eventsPath(id string) string {
	return filepath.Join(fs.threadDir(id), "events.jsonl")
}

// Append writes events to the thread's JSONL file and updates meta.
func (fs *FileStore) Append(_ context.Context, threadID string, evts ...events.Event) error {
	if len(evts) == 0 {
		return nil
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := os.MkdirAll(fs.threadDir(threadID), 0o755); err != nil {
		return fmt.Errorf("create thread dir: %w", err)
	}

	f, err := os.OpenFile(fs.eventsPath(threadID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open events file: %w", err)
	}
	defer f.Close()

	for _, e := range evts {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		if _, err := f.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("write event: %w", err)
		}
	}

	meta, err := fs.readMeta(threadID)
	if err != nil {
		now := time.Now()
		meta = &flows.ThreadMeta{ThreadID: threadID, CreatedAt: now}
	}
	meta.Events += len(evts)
	meta.UpdatedAt = time.Now()
	return fs.writeMeta(meta)
}

// Load reads all events from a thread's JSONL file, in order.
func (fs *FileStore) Load(_ context.Context, threadID string) ([]events.Event, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	f, err := os.Open(fs.eventsPath(threadID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open events file: %w", err)
	}
	defer f.Close()

	var result []events.Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e events.Event
		if err := json.Unmarshal(line, &e); err != nil {
			continue // skip corrupted lines
		}
		result = append(result, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan events: %w", err)
	}

	return result, nil
}

// Threads returns metadata for all stored threads, most recent first.
func (fs *FileStore) Threads(_ context.Context) ([]flows.ThreadMeta, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	entries, err := os.ReadDir(fs.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list threads dir: %w", err)
	}

	var metas []flows.ThreadMeta
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := fs.readMeta(entry.Name())
		if err != nil {
			continue // skip corrupted threads
		}
		metas = append(metas, *meta)
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].UpdatedAt.After(metas[j].UpdatedAt)
	})

	return metas, nil
}

// writeMeta atomically writes meta.json using a temp file + rename.
func (fs *FileStore) writeMeta(meta *flows.ThreadMeta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}

	path := fs.metaPath(meta.ThreadID)
	tmp := path + ".tmp"

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write meta tmp: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename meta: %w", err)
	}

	return nil
}

func (fs *FileStore) readMeta(id string) (*flows.ThreadMeta, error) {
	data, err := os.ReadFile(fs.metaPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("thread not found: %s", id)
		}
		return nil, fmt.Errorf("read meta: %w", err)
	}

	var meta flows.ThreadMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("unmarshal meta: %w", err)
	}

	return &meta, nil
}

var _ flows.HistoryStore = (*FileStore)(nil)
