package events

import (
	"context"
	"testing"
	"time"
)

func TestDispatcherPublishesToSubscriber(t *testing.T) {
	dispatcher := NewDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := dispatcher.Subscribe(ctx, TopicPendingCount, TopicConnectivity)
	defer cleanup()

	dispatcher.Publish(TopicPendingCount, 3)

	select {
	case received := <-stream:
		if received.Topic != TopicPendingCount {
			t.Fatalf("expected topic %s, got %s", TopicPendingCount, received.Topic)
		}
		if received.Payload.(int) != 3 {
			t.Fatalf("expected payload 3, got %v", received.Payload)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected message within deadline")
	}
}

func TestDispatcherIsolatesTopics(t *testing.T) {
	dispatcher := NewDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	noticeStream, cleanup := dispatcher.Subscribe(ctx, TopicNotice)
	defer cleanup()

	dispatcher.Publish(TopicConnectivity, true)

	select {
	case <-noticeStream:
		t.Fatal("did not expect a message for an unrelated topic")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDispatcherCleanupStopsDelivery(t *testing.T) {
	dispatcher := NewDispatcher()
	stream, cleanup := dispatcher.Subscribe(context.Background(), TopicSummary)
	cleanup()
	cleanup()

	dispatcher.Publish(TopicSummary, "snapshot")

	select {
	case <-stream:
		t.Fatal("did not expect delivery after cleanup")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestObserversNotifyInOrderAndUnsubscribe(t *testing.T) {
	var observers Observers[bool]
	var calls []string

	removeFirst := observers.Add(func(online bool) { calls = append(calls, "first") })
	observers.Add(func(online bool) { calls = append(calls, "second") })

	observers.Notify(true)
	removeFirst()
	removeFirst()
	observers.Notify(false)

	expected := []string{"first", "second", "second"}
	if len(calls) != len(expected) {
		t.Fatalf("unexpected calls %v", calls)
	}
	for index := range expected {
		if calls[index] != expected[index] {
			t.Fatalf("unexpected calls %v", calls)
		}
	}
	if observers.Len() != 1 {
		t.Fatalf("expected one remaining observer, got %d", observers.Len())
	}
}
