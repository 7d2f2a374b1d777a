package events

import (
	"context"
	"sync"
	"time"
)

// Topic names a stream of kiosk events.
type Topic string

const (
	TopicPendingCount Topic = "pending-count"
	TopicConnectivity Topic = "connectivity"
	TopicNotice       Topic = "notice"
	TopicSummary      Topic = "summary"
)

type Message struct {
	Topic     Topic
	Payload   any
	Timestamp time.Time
}

// Dispatcher fans messages out to per-topic subscribers. Slow subscribers drop
// messages instead of blocking publishers.
type Dispatcher struct {
	mu          sync.RWMutex
	subscribers map[Topic]map[int64]*subscriber
	nextID      int64
	bufferSize  int
	clock       func() time.Time
}

type subscriber struct {
	id     int64
	stream chan Message
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		subscribers: make(map[Topic]map[int64]*subscriber),
		bufferSize:  16,
		clock:       time.Now,
	}
}

// Subscribe registers for the given topics until ctx ends or the returned cancel is called.
func (d *Dispatcher) Subscribe(ctx context.Context, topics ...Topic) (<-chan Message, func()) {
	if len(topics) == 0 {
		ch := make(chan Message)
		close(ch)
		return ch, func() {}
	}
	sub := &subscriber{
		id:     d.nextSequence(),
		stream: make(chan Message, d.bufferSize),
	}
	d.register(topics, sub)

	var once sync.Once
	cleanup := func() {
		once.Do(func() { d.unregister(topics, sub.id) })
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return sub.stream, cleanup
}

// Publish delivers payload to the topic's current subscribers.
func (d *Dispatcher) Publish(topic Topic, payload any) {
	if topic == "" {
		return
	}
	message := Message{Topic: topic, Payload: payload, Timestamp: d.clock().UTC()}

	d.mu.RLock()
	subscribers := d.subscribers[topic]
	if len(subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*subscriber, 0, len(subscribers))
	for _, sub := range subscribers {
		copies = append(copies, sub)
	}
	d.mu.RUnlock()

	for _, sub := range copies {
		select {
		case sub.stream <- message:
		default:
		}
	}
}

func (d *Dispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *Dispatcher) register(topics []Topic, sub *subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, topic := range topics {
		if _, ok := d.subscribers[topic]; !ok {
			d.subscribers[topic] = make(map[int64]*subscriber)
		}
		d.subscribers[topic][sub.id] = sub
	}
}

func (d *Dispatcher) unregister(topics []Topic, subscriberID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, topic := range topics {
		subscribers := d.subscribers[topic]
		if subscribers == nil {
			continue
		}
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, topic)
		}
	}
}
