package connectivity

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/satisfaction/internal/events"
	"github.com/MarcoPoloResearchLab/satisfaction/internal/remote/remotetest"
)

func TestSetNotifiesOnlyOnTransitions(t *testing.T) {
	dispatcher := events.NewDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream, unsubscribeStream := dispatcher.Subscribe(ctx, events.TopicConnectivity)
	defer unsubscribeStream()

	monitor := NewMonitor(Config{Initial: false, Publisher: dispatcher})
	var changes []bool
	unsubscribe := monitor.OnChange(func(online bool) { changes = append(changes, online) })

	if monitor.Set(false) {
		t.Fatalf("expected no change when state is unchanged")
	}
	if !monitor.Set(true) || !monitor.Online() {
		t.Fatalf("expected transition to online")
	}
	monitor.Set(true)
	unsubscribe()
	monitor.Set(false)

	if len(changes) != 1 || !changes[0] {
		t.Fatalf("unexpected notifications %#v", changes)
	}

	select {
	case message := <-stream:
		if message.Payload != true {
			t.Fatalf("unexpected payload %#v", message.Payload)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected connectivity message")
	}
}

func TestProbeFollowsPingResult(t *testing.T) {
	fake := remotetest.NewFake()
	monitor := NewMonitor(Config{Pinger: fake, Initial: false})

	if !monitor.Probe(context.Background()) || !monitor.Online() {
		t.Fatalf("expected successful ping to mark online")
	}

	fake.SetPingError(remotetest.ErrNetwork)
	if monitor.Probe(context.Background()) || monitor.Online() {
		t.Fatalf("expected failed ping to mark offline")
	}
}

func TestProbeIgnoresCancelledContext(t *testing.T) {
	fake := remotetest.NewFake()
	fake.SetPingError(context.Canceled)
	monitor := NewMonitor(Config{Pinger: fake, Initial: true})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if !monitor.Probe(ctx) {
		t.Fatalf("expected shutdown to keep the last known state")
	}
}

func TestRunProbesUntilCancelled(t *testing.T) {
	fake := remotetest.NewFake()
	monitor := NewMonitor(Config{Pinger: fake, ProbeInterval: 10 * time.Millisecond})

	var (
		mu     sync.Mutex
		states []bool
	)
	monitor.OnChange(func(online bool) {
		mu.Lock()
		states = append(states, online)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		monitor.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !monitor.Online() {
		if time.Now().After(deadline) {
			t.Fatalf("expected monitor to come online")
		}
		time.Sleep(5 * time.Millisecond)
	}
	fake.SetPingError(remotetest.ErrUnavailable)
	for monitor.Online() {
		if time.Now().After(deadline) {
			t.Fatalf("expected monitor to go offline")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("expected Run to stop after cancel")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(states) < 2 || !states[0] || states[1] {
		t.Fatalf("unexpected transitions %#v", states)
	}
}

func TestConcurrentSetsNotifyInTransitionOrder(t *testing.T) {
	monitor := NewMonitor(Config{Initial: false})
	var (
		mu      sync.Mutex
		changes []bool
	)
	monitor.OnChange(func(online bool) {
		mu.Lock()
		defer mu.Unlock()
		changes = append(changes, online)
	})

	var wg sync.WaitGroup
	for index := 0; index < 200; index++ {
		wg.Add(1)
		go func(online bool) {
			defer wg.Done()
			monitor.Set(online)
		}(index%2 == 0)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(changes) == 0 {
		t.Fatalf("expected at least one transition")
	}
	previous := false
	for position, online := range changes {
		if online == previous {
			t.Fatalf("notification %d repeats state %v: %v", position, online, changes)
		}
		previous = online
	}
	if changes[len(changes)-1] != monitor.Online() {
		t.Fatalf("last notification %v disagrees with final state %v", changes[len(changes)-1], monitor.Online())
	}
}
