package memory

import (
	"context"
	"encoding/json"
	"sync"
)

// Event is a recorded broadcast.
type Event struct {
	Name string
	Data json.RawMessage
}

// Broadcaster is an in-memory implementation of app.Broadcaster. Subscribers
// are in-process; tests also read back everything published.
type Broadcaster struct {
	mu          sync.Mutex
	events      []Event
	subscribers []func(event string, data json.RawMessage)
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{}
}

func (b *Broadcaster) Publish(_ context.Context, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.events = append(b.events, Event{Name: event, Data: data})
	subscribers := make([]func(string, json.RawMessage), len(b.subscribers))
	copy(subscribers, b.subscribers)
	b.mu.Unlock()

	for _, handle := range subscribers {
		handle(event, data)
	}
	return nil
}

// OnEvent registers an in-process subscriber.
func (b *Broadcaster) OnEvent(handle func(event string, data json.RawMessage)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, handle)
}

// Events returns everything published so far.
func (b *Broadcaster) Events() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}

// EventsNamed filters recorded events by name.
func (b *Broadcaster) EventsNamed(name string) []Event {
	var out []Event
	for _, event := range b.Events() {
		if event.Name == name {
			out = append(out, event)
		}
	}
	return out
}
