package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// SubjectPrefix namespaces every forwarded fact.
const SubjectPrefix = "quiz.events."

// Analytics forwards lifecycle facts to NATS, best effort. A nil *Analytics
// is a valid disabled publisher, matching the contract that the event bus is
// silently skipped when unconfigured.
type Analytics struct {
	conn *nats.Conn
}

// Connect dials NATS. An empty URL returns a disabled (nil) publisher.
func Connect(url string) (*Analytics, error) {
	if url == "" {
		return nil, nil
	}
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Analytics{conn: conn}, nil
}

func (a *Analytics) Publish(_ context.Context, fact string, payload any) error {
	if a == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal fact: %w", err)
	}
	if err := a.conn.Publish(SubjectPrefix+fact, data); err != nil {
		return fmt.Errorf("publish fact: %w", err)
	}
	return nil
}

func (a *Analytics) Close() {
	if a != nil && a.conn != nil {
		a.conn.Close()
	}
}
