package feedback

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/MarcoPoloResearchLab/satisfaction/internal/localstore"
	"go.uber.org/zap"
)

const queueKey = "feedback_queue_v1"

// Queue is the durable list of taps that could not be sent yet, in tap order.
// Missing or corrupt content loads as an empty queue. A store read failure makes
// Load and Len report empty, but Append and Commit return it without writing.
type Queue struct {
	mu     sync.Mutex
	store  localstore.Store
	logger *zap.Logger
}

func NewQueue(store localstore.Store, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{store: store, logger: logger}
}

// Load returns a copy of the pending entries.
func (q *Queue) Load(ctx context.Context) []QueuedEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	entries, err := q.load(ctx)
	if err != nil {
		q.logger.Warn("pending queue unreadable", zap.Error(err))
		return []QueuedEvent{}
	}
	return entries
}

func (q *Queue) Len(ctx context.Context) int {
	return len(q.Load(ctx))
}

// Append adds entry at the tail and returns the new length.
func (q *Queue) Append(ctx context.Context, entry QueuedEvent) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	entries, err := q.load(ctx)
	if err != nil {
		return 0, err
	}
	entries = append(entries, entry)
	if err := q.save(ctx, entries); err != nil {
		return 0, err
	}
	return len(entries), nil
}

// Commit removes the entries of snapshot marked as sent. Entries appended after the
// snapshot was loaded are kept behind the unsent ones. Only one committer may hold a
// snapshot at a time.
func (q *Queue) Commit(ctx context.Context, snapshot []QueuedEvent, sent []bool) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	current, err := q.load(ctx)
	if err != nil {
		return 0, err
	}
	remaining := make([]QueuedEvent, 0, len(current))
	for index, entry := range snapshot {
		if index < len(sent) && sent[index] {
			continue
		}
		remaining = append(remaining, entry)
	}
	if len(current) > len(snapshot) {
		remaining = append(remaining, current[len(snapshot):]...)
	}
	if err := q.save(ctx, remaining); err != nil {
		return 0, err
	}
	return len(remaining), nil
}

func (q *Queue) load(ctx context.Context) ([]QueuedEvent, error) {
	raw, ok, err := q.store.Get(ctx, queueKey)
	if err != nil {
		return nil, err
	}
	if !ok || raw == "" {
		return []QueuedEvent{}, nil
	}
	var entries []QueuedEvent
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		q.logger.Warn("pending queue corrupt, treating as empty", zap.Error(err))
		return []QueuedEvent{}, nil
	}
	valid := entries[:0]
	for _, entry := range entries {
		if !entry.Grade.Valid() {
			q.logger.Warn("dropping pending entry with unknown grade", zap.String("grade", string(entry.Grade)))
			continue
		}
		valid = append(valid, entry)
	}
	if valid == nil {
		return []QueuedEvent{}, nil
	}
	return valid, nil
}

func (q *Queue) save(ctx context.Context, entries []QueuedEvent) error {
	encoded, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return q.store.Set(ctx, queueKey, string(encoded))
}
