package service

import (
	"sync"
	"time"
)

type EventKind string

const (
	EventLog              EventKind = "log"
	EventStatusText       EventKind = "statusText"
	EventInstancesChanged EventKind = "instanceListChanged"
	EventDirectoryChanged EventKind = "directoryChanged"
)

type Event struct {
	Kind    EventKind
	Message string
	Level   string
	At      time.Time
}

// EventBridge is the only path by which background work may request a
// presentation change. Any goroutine publishes; exactly one consumer
// drains. Changed-kind events carry no payload: consumers wake up and
// re-read the registry, which may already be ahead of the event that
// woke them.
type EventBridge struct {
	mu     sync.Mutex
	events []Event
}

func NewEventBridge() *EventBridge {
	return &EventBridge{}
}

func (b *EventBridge) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	b.mu.Lock()
	b.events = append(b.events, e)
	b.mu.Unlock()
}

func (b *EventBridge) PublishLog(level, message string) {
	b.Publish(Event{Kind: EventLog, Level: level, Message: message})
}

func (b *EventBridge) PublishStatus(message string) {
	b.Publish(Event{Kind: EventStatusText, Message: message})
}

func (b *EventBridge) PublishInstancesChanged() {
	b.Publish(Event{Kind: EventInstancesChanged})
}

func (b *EventBridge) PublishDirectoryChanged() {
	b.Publish(Event{Kind: EventDirectoryChanged})
}

// Drain removes and returns all queued events in publish order. The
// queue is unbounded; events accumulate until the consumer's next tick.
func (b *EventBridge) Drain() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.events) == 0 {
		return nil
	}
	out := b.events
	b.events = nil
	return out
}

// Len reports the current backlog size.
func (b *EventBridge) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}
