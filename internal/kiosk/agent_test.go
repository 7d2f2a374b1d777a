package kiosk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/satisfaction/internal/analytics"
	"github.com/MarcoPoloResearchLab/satisfaction/internal/connectivity"
	"github.com/MarcoPoloResearchLab/satisfaction/internal/events"
	"github.com/MarcoPoloResearchLab/satisfaction/internal/feedback"
	"github.com/MarcoPoloResearchLab/satisfaction/internal/localstore"
	"github.com/MarcoPoloResearchLab/satisfaction/internal/remote/remotetest"
)

type kioskFixture struct {
	remote     *remotetest.Fake
	monitor    *connectivity.Monitor
	feedback   *feedback.Service
	agent      *Agent
	dispatcher *events.Dispatcher
}

func newKioskFixture(t *testing.T, online bool, flushInterval time.Duration) *kioskFixture {
	t.Helper()
	fake := remotetest.NewFake()
	dispatcher := events.NewDispatcher()
	monitor := connectivity.NewMonitor(connectivity.Config{Initial: online, Publisher: dispatcher})

	service, err := feedback.NewService(feedback.ServiceConfig{
		Remote:       fake,
		Table:        "feedback",
		Store:        localstore.NewMemoryStore(),
		Connectivity: monitor,
		Publisher:    dispatcher,
		Location:     time.UTC,
	})
	if err != nil {
		t.Fatalf("unexpected feedback service error: %v", err)
	}
	summaries, err := analytics.NewService(analytics.Config{Querier: fake, Table: "feedback", Location: time.UTC})
	if err != nil {
		t.Fatalf("unexpected analytics service error: %v", err)
	}
	agent, err := NewAgent(AgentConfig{
		Feedback:        service,
		Connectivity:    monitor,
		Summaries:       summaries,
		Publisher:       dispatcher,
		FlushInterval:   flushInterval,
		SummaryInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("unexpected agent error: %v", err)
	}
	return &kioskFixture{remote: fake, monitor: monitor, feedback: service, agent: agent, dispatcher: dispatcher}
}

func (f *kioskFixture) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = f.agent.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func waitFor(t *testing.T, description string, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !condition() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", description)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStatusLabel(t *testing.T) {
	tests := []struct {
		online   bool
		pending  int
		expected string
	}{
		{online: true, pending: 0, expected: "Online"},
		{online: true, pending: 3, expected: "Online • 3 pendentes"},
		{online: false, pending: 0, expected: "Offline"},
		{online: false, pending: 1, expected: "Offline • 1 em fila"},
	}
	for _, testCase := range tests {
		if got := StatusLabel(testCase.online, testCase.pending); got != testCase.expected {
			t.Fatalf("StatusLabel(%v, %d) = %q, expected %q", testCase.online, testCase.pending, got, testCase.expected)
		}
	}
}

func TestNewAgentRequiresDependencies(t *testing.T) {
	if _, err := NewAgent(AgentConfig{}); !errors.Is(err, errMissingFeedback) {
		t.Fatalf("expected missing feedback error, got %v", err)
	}
}

func TestAgentFlushesWhenConnectivityReturns(t *testing.T) {
	fixture := newKioskFixture(t, false, 0)
	fixture.remote.FailNextInserts(remotetest.ErrNetwork, remotetest.ErrNetwork)

	ctx := context.Background()
	for _, grade := range []feedback.Grade{feedback.GradeSatisfied, feedback.GradeUnsatisfied} {
		result, err := fixture.feedback.Submit(ctx, grade, time.Now())
		if err != nil || result.Outcome != feedback.OutcomeQueued {
			t.Fatalf("expected tap to be queued, got %#v %v", result, err)
		}
	}

	fixture.start(t)
	if fixture.feedback.PendingCount(ctx) != 2 {
		t.Fatalf("expected queue to be left alone while offline")
	}

	fixture.monitor.Set(true)
	waitFor(t, "queue to drain", func() bool { return fixture.feedback.PendingCount(ctx) == 0 })

	rows := fixture.remote.Rows()
	if len(rows) != 2 || rows[0].Grade != "satisfeito" || rows[1].Grade != "insatisfeito" {
		t.Fatalf("unexpected delivered rows %#v", rows)
	}
	waitFor(t, "summary refresh", func() bool {
		summary, ok := fixture.agent.Summary()
		return ok && summary.Total == 2
	})
}

func TestAgentFlushesOnInterval(t *testing.T) {
	fixture := newKioskFixture(t, true, 20*time.Millisecond)
	fixture.remote.FailNextInserts(remotetest.ErrUnavailable)

	ctx := context.Background()
	result, err := fixture.feedback.Submit(ctx, feedback.GradeVerySatisfied, time.Now())
	if err != nil || result.Outcome != feedback.OutcomeQueued {
		t.Fatalf("expected tap to be queued, got %#v %v", result, err)
	}

	fixture.start(t)
	waitFor(t, "interval flush", func() bool { return fixture.feedback.PendingCount(ctx) == 0 })
}

func TestAgentSyncRunsOnTheLoop(t *testing.T) {
	fixture := newKioskFixture(t, true, 0)
	fixture.start(t)

	ctx := context.Background()
	fixture.remote.FailNextInserts(remotetest.ErrNetwork)
	if _, err := fixture.feedback.Submit(ctx, feedback.GradeSatisfied, time.Now()); err != nil {
		t.Fatalf("unexpected submit error: %v", err)
	}

	syncCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	report, err := fixture.agent.Sync(syncCtx)
	if err != nil {
		t.Fatalf("unexpected sync error: %v", err)
	}
	if report.Sent != 1 || report.Remaining != 0 {
		t.Fatalf("unexpected sync report %#v", report)
	}
}

func TestAgentSyncHonoursContextWhenNotRunning(t *testing.T) {
	fixture := newKioskFixture(t, true, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := fixture.agent.Sync(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestAgentKeepsLastSummaryOnFailure(t *testing.T) {
	fixture := newKioskFixture(t, true, 0)
	fixture.start(t)
	waitFor(t, "initial summary", func() bool {
		_, ok := fixture.agent.Summary()
		return ok
	})

	fixture.remote.SetQueryError(remotetest.ErrUnavailable)
	fixture.agent.refreshSummary(context.Background())
	if _, ok := fixture.agent.Summary(); !ok {
		t.Fatalf("expected previous summary to survive a failed refresh")
	}
}
