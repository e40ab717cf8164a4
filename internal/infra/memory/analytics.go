package memory

import (
	"context"
	"encoding/json"
	"sync"
)

// Analytics records forwarded facts for assertions in tests.
type Analytics struct {
	mu    sync.Mutex
	facts []Event
}

func NewAnalytics() *Analytics {
	return &Analytics{}
}

func (a *Analytics) Publish(_ context.Context, fact string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.facts = append(a.facts, Event{Name: fact, Data: data})
	return nil
}

// Facts returns everything forwarded so far.
func (a *Analytics) Facts() []Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Event, len(a.facts))
	copy(out, a.facts)
	return out
}
