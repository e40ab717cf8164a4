package memory

import (
	"context"
	"sync"
	"time"
)

type userRecord struct {
	name      string
	wins      int64
	lastWinAt time.Time
}

// UserStore is an in-memory implementation of app.UserStore with the same
// idempotency contract as the Postgres one: repeating RecordWin with the same
// timestamp does not double-count.
type UserStore struct {
	mu    sync.Mutex
	users map[string]*userRecord
}

func NewUserStore() *UserStore {
	return &UserStore{users: make(map[string]*userRecord)}
}

func (s *UserStore) UpsertUser(_ context.Context, userID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user, ok := s.users[userID]; ok {
		user.name = name
		return nil
	}
	s.users[userID] = &userRecord{name: name}
	return nil
}

func (s *UserStore) RecordWin(_ context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		user = &userRecord{}
		s.users[userID] = user
	}
	if user.lastWinAt.Equal(at) {
		return nil
	}
	user.wins++
	user.lastWinAt = at
	return nil
}

func (s *UserStore) WinTotals(_ context.Context) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	totals := make(map[string]int64, len(s.users))
	for userID, user := range s.users {
		if user.wins > 0 {
			totals[userID] = user.wins
		}
	}
	return totals, nil
}

// Wins reports a user's durable win count, for tests.
func (s *UserStore) Wins(userID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user, ok := s.users[userID]; ok {
		return user.wins
	}
	return 0
}
