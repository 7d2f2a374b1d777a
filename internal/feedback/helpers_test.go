package feedback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/satisfaction/internal/calendar"
	"github.com/MarcoPoloResearchLab/satisfaction/internal/events"
	"github.com/MarcoPoloResearchLab/satisfaction/internal/localstore"
	"github.com/MarcoPoloResearchLab/satisfaction/internal/remote/remotetest"
)

var errStoreDown = errors.New("disk full")

type staticConnectivity bool

func (c staticConnectivity) Online() bool { return bool(c) }

type published struct {
	topic   events.Topic
	payload any
}

type recordingPublisher struct {
	mu       sync.Mutex
	messages []published
}

func (p *recordingPublisher) Publish(topic events.Topic, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, published{topic: topic, payload: payload})
}

func (p *recordingPublisher) lastPending(t *testing.T) int {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	for index := len(p.messages) - 1; index >= 0; index-- {
		if p.messages[index].topic == events.TopicPendingCount {
			return p.messages[index].payload.(int)
		}
	}
	t.Fatalf("no pending-count message published")
	return -1
}

// flakyStore wraps a MemoryStore and fails the next failGets reads.
type flakyStore struct {
	*localstore.MemoryStore
	mu       sync.Mutex
	failGets int
}

func (s *flakyStore) failNextGet() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failGets++
}

func (s *flakyStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	if s.failGets > 0 {
		s.failGets--
		s.mu.Unlock()
		return "", false, errStoreDown
	}
	s.mu.Unlock()
	return s.MemoryStore.Get(ctx, key)
}

// failingStore reads like an empty store and refuses every write.
type failingStore struct{}

func (failingStore) Get(context.Context, string) (string, bool, error) { return "", false, nil }

func (failingStore) Set(context.Context, string, string) error { return errStoreDown }

type serviceFixture struct {
	service   *Service
	remote    *remotetest.Fake
	store     *localstore.MemoryStore
	publisher *recordingPublisher
	now       time.Time
}

func newServiceFixture(t *testing.T, online bool) *serviceFixture {
	t.Helper()
	fixture := &serviceFixture{
		remote:    remotetest.NewFake(),
		store:     localstore.NewMemoryStore(),
		publisher: &recordingPublisher{},
		now:       time.Date(2024, time.May, 6, 10, 15, 30, 0, time.UTC),
	}
	service, err := NewService(ServiceConfig{
		Remote:       fixture.remote,
		Table:        "feedback",
		Store:        fixture.store,
		Connectivity: staticConnectivity(online),
		Publisher:    fixture.publisher,
		Clock:        func() time.Time { return fixture.now },
		Location:     time.UTC,
	})
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	fixture.service = service
	return fixture
}

func mustSubmit(t *testing.T, service *Service, grade Grade, clickTime time.Time) Result {
	t.Helper()
	result, err := service.Submit(context.Background(), grade, clickTime)
	if err != nil {
		t.Fatalf("unexpected submit error: %v", err)
	}
	return result
}

func seedQueue(t *testing.T, queue *Queue, entries ...QueuedEvent) {
	t.Helper()
	for _, entry := range entries {
		if _, err := queue.Append(context.Background(), entry); err != nil {
			t.Fatalf("failed to seed queue: %v", err)
		}
	}
}


func mustParseISO(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := calendar.ParseISO(value)
	if err != nil {
		t.Fatalf("failed to parse %q: %v", value, err)
	}
	return parsed
}
