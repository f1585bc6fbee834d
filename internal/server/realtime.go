package server

import (
	"context"
	"sync"
	"time"
)

const (
	RealtimeEventQuestionChanged = "question-change"
	RealtimeEventAnswerChanged   = "answer-change"
	realtimeEventHeartbeat       = "heartbeat"
	realtimeSourceBackend        = "askroom-backend"

	// RealtimeTopicAll receives every message regardless of the questions it names.
	RealtimeTopicAll = "*"
)

type RealtimeMessage struct {
	EventType   string
	QuestionIDs []string
	Reason      string
	Timestamp   time.Time
}

type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher(bufferSize int) *RealtimeDispatcher {
	if bufferSize <= 0 {
		bufferSize = defaultRealtimeBufferSize
	}
	return &RealtimeDispatcher{
		subscribers: make(map[string]map[int64]*realtimeSubscriber),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers a stream for one question, or for every question when topic is empty.
// The subscription ends when ctx is cancelled or cleanup is called.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context, topic string) (<-chan RealtimeMessage, func()) {
	if topic == "" {
		topic = RealtimeTopicAll
	}
	subscriber := &realtimeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(topic, subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregisterSubscriber(topic, subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Publish fans a message out to the catch-all topic and to every question it names.
// Slow subscribers drop messages instead of blocking the publisher.
func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.EventType == "" || len(message.QuestionIDs) == 0 {
		return
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now().UTC()
	}

	d.mu.RLock()
	recipients := make(map[int64]*realtimeSubscriber)
	topics := append([]string{RealtimeTopicAll}, message.QuestionIDs...)
	for _, topic := range topics {
		for id, subscriber := range d.subscribers[topic] {
			recipients[id] = subscriber
		}
	}
	d.mu.RUnlock()

	for _, subscriber := range recipients {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

func (d *RealtimeDispatcher) subscriberCount(topic string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers[topic])
}

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(topic string, subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[topic]; !ok {
		d.subscribers[topic] = make(map[int64]*realtimeSubscriber)
	}
	d.subscribers[topic][subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(topic string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[topic]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, topic)
		}
	}
	d.mu.Unlock()
}
