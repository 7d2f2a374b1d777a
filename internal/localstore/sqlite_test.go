package localstore

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// traceRecorder keeps every statement error gorm reports.
type traceRecorder struct {
	mu     sync.Mutex
	errors []error
}

func (r *traceRecorder) LogMode(gormlogger.LogLevel) gormlogger.Interface { return r }

func (r *traceRecorder) Info(context.Context, string, ...interface{}) {}

func (r *traceRecorder) Warn(context.Context, string, ...interface{}) {}

func (r *traceRecorder) Error(context.Context, string, ...interface{}) {}

func (r *traceRecorder) Trace(_ context.Context, _ time.Time, _ func() (string, int64), err error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, err)
}

func TestSQLiteStoreSurvivesReopen(testContext *testing.T) {
	databasePath := filepath.Join(testContext.TempDir(), "kiosk.db")
	ctx := context.Background()

	store, err := OpenSQLite(databasePath, zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open store: %v", err)
	}
	if err := store.Set(ctx, "feedback_queue_v1", `[{"grau_satisfacao":"satisfeito"}]`); err != nil {
		testContext.Fatalf("failed to set value: %v", err)
	}
	if err := store.Set(ctx, "feedback_queue_v1", `[]`); err != nil {
		testContext.Fatalf("failed to overwrite value: %v", err)
	}
	if err := store.Close(); err != nil {
		testContext.Fatalf("failed to close store: %v", err)
	}

	reopened, err := OpenSQLite(databasePath, zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to reopen store: %v", err)
	}
	defer reopened.Close()

	value, ok, err := reopened.Get(ctx, "feedback_queue_v1")
	if err != nil {
		testContext.Fatalf("unexpected get error: %v", err)
	}
	if !ok || value != `[]` {
		testContext.Fatalf("expected overwritten value to persist, got %q (found=%v)", value, ok)
	}

	_, ok, err = reopened.Get(ctx, "missing")
	if err != nil || ok {
		testContext.Fatalf("expected missing key to report not found, got ok=%v err=%v", ok, err)
	}
}

func TestStoresRejectEmptyKeys(testContext *testing.T) {
	sqliteStore, err := OpenSQLite(filepath.Join(testContext.TempDir(), "kiosk.db"), nil)
	if err != nil {
		testContext.Fatalf("failed to open store: %v", err)
	}
	defer sqliteStore.Close()

	stores := map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqliteStore,
	}
	for name, store := range stores {
		if err := store.Set(context.Background(), "", "x"); err != ErrEmptyKey {
			testContext.Fatalf("%s: expected ErrEmptyKey from Set, got %v", name, err)
		}
		if _, _, err := store.Get(context.Background(), ""); err != ErrEmptyKey {
			testContext.Fatalf("%s: expected ErrEmptyKey from Get, got %v", name, err)
		}
	}
}

func TestSQLiteStoreMissingKeyIsNotAnError(testContext *testing.T) {
	recorder := &traceRecorder{}
	db, err := gorm.Open(sqlite.Open(filepath.Join(testContext.TempDir(), "kiosk.db")), &gorm.Config{Logger: recorder})
	if err != nil {
		testContext.Fatalf("failed to open database: %v", err)
	}
	store, err := NewSQLiteStore(db)
	if err != nil {
		testContext.Fatalf("failed to create store: %v", err)
	}
	defer store.Close()

	value, ok, err := store.Get(context.Background(), "feedback_id_ms_v1")
	if err != nil || ok || value != "" {
		testContext.Fatalf("expected not found, got %q ok=%v err=%v", value, ok, err)
	}
	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	if len(recorder.errors) != 0 {
		testContext.Fatalf("expected no statement errors for a missing key, got %v", recorder.errors)
	}
}
