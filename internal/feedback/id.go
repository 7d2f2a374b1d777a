package feedback

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/satisfaction/internal/localstore"
	"go.uber.org/zap"
)

const (
	idStateKey  = "feedback_id_ms_v1"
	suffixRange = 1000
)

type suffixState struct {
	MS *int64 `json:"ms"`
	N  *int   `json:"n"`
}

// IDMinter issues ms*1000+suffix identifiers. The suffix counts up within one
// millisecond and wraps after 999, so a burst of more than 1000 taps in the same
// millisecond repeats ids. A clock moved backwards can also repeat or reorder ids.
type IDMinter struct {
	mu     sync.Mutex
	store  localstore.Store
	logger *zap.Logger
}

func NewIDMinter(store localstore.Store, logger *zap.Logger) *IDMinter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IDMinter{store: store, logger: logger}
}

// Mint returns the identifier for an event created at now and records the suffix it used.
// Unreadable state restarts the suffix at zero; a failed write is logged and ignored.
func (m *IDMinter) Mint(ctx context.Context, now time.Time) int64 {
	ms := now.UnixMilli()

	m.mu.Lock()
	defer m.mu.Unlock()

	suffix := 0
	state := m.load(ctx)
	if state.MS != nil && *state.MS == ms && state.N != nil {
		suffix = (*state.N + 1) % suffixRange
	}

	encoded, err := json.Marshal(suffixState{MS: &ms, N: &suffix})
	if err == nil {
		err = m.store.Set(ctx, idStateKey, string(encoded))
	}
	if err != nil {
		m.logger.Warn("id suffix state not persisted", zap.Error(err))
	}

	return ms*suffixRange + int64(suffix)
}

func (m *IDMinter) load(ctx context.Context) suffixState {
	raw, ok, err := m.store.Get(ctx, idStateKey)
	if err != nil {
		m.logger.Warn("id suffix state unreadable", zap.Error(err))
		return suffixState{}
	}
	if !ok || raw == "" {
		return suffixState{}
	}
	var state suffixState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		m.logger.Warn("id suffix state corrupt, resetting", zap.Error(err))
		return suffixState{}
	}
	return state
}
