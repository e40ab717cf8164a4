package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"quiz-round-service/internal/domain"
)

// RoundStore is an in-memory implementation of app.RoundStore. It backs unit
// tests and single-process local runs; the set-if-absent semantics match the
// Redis implementation, including marker expiry.
type RoundStore struct {
	clock clockwork.Clock

	mu         sync.Mutex
	current    *domain.Question
	next       *domain.Question
	markers    map[string]time.Time // key -> expiry (zero = no expiry)
	winners    map[string]string
	candidates map[string][]domain.Candidate
	wins       map[string]int64
	names      map[string]string
}

func NewRoundStore(clock clockwork.Clock) *RoundStore {
	return &RoundStore{
		clock:      clock,
		markers:    make(map[string]time.Time),
		winners:    make(map[string]string),
		candidates: make(map[string][]domain.Candidate),
		wins:       make(map[string]int64),
		names:      make(map[string]string),
	}
}

func (s *RoundStore) GetCurrent(_ context.Context) (domain.Question, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return domain.Question{}, false, nil
	}
	return *s.current, true, nil
}

func (s *RoundStore) SetCurrent(_ context.Context, q domain.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = &q
	return nil
}

func (s *RoundStore) GetNext(_ context.Context) (domain.Question, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next == nil {
		return domain.Question{}, false, nil
	}
	return *s.next, true, nil
}

func (s *RoundStore) SetNext(_ context.Context, q domain.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next = &q
	return nil
}

func (s *RoundStore) ClearNext(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next = nil
	return nil
}

func (s *RoundStore) MarkSubmitted(_ context.Context, questionID, userID string, ttl time.Duration) (bool, error) {
	return s.setMarker("submitted:"+questionID+":"+userID, ttl), nil
}

func (s *RoundStore) ArmGrace(_ context.Context, questionID string, ttl time.Duration) (bool, error) {
	return s.setMarker("winner:pending:"+questionID, ttl), nil
}

func (s *RoundStore) ArmIntermission(_ context.Context, questionID string) (bool, error) {
	return s.setMarker("intermission:"+questionID, 0), nil
}

func (s *RoundStore) setMarker(key string, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	if expiry, ok := s.markers[key]; ok {
		if expiry.IsZero() || expiry.After(now) {
			return false
		}
	}
	var expiry time.Time
	if ttl > 0 {
		expiry = now.Add(ttl)
	}
	s.markers[key] = expiry
	return true
}

func (s *RoundStore) ClaimWinner(_ context.Context, questionID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.winners[questionID]; ok {
		return false, nil
	}
	s.winners[questionID] = userID
	return true, nil
}

func (s *RoundStore) GetWinner(_ context.Context, questionID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	userID, ok := s.winners[questionID]
	return userID, ok, nil
}

func (s *RoundStore) RecordCandidate(_ context.Context, questionID, userID string, receivedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candidates[questionID] = append(s.candidates[questionID], domain.Candidate{
		UserID:     userID,
		ReceivedAt: domain.UnixMs(receivedAt),
	})
	sort.SliceStable(s.candidates[questionID], func(i, j int) bool {
		return s.candidates[questionID][i].ReceivedAt < s.candidates[questionID][j].ReceivedAt
	})
	return nil
}

func (s *RoundStore) CandidatesByArrival(_ context.Context, questionID string) ([]domain.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Candidate, len(s.candidates[questionID]))
	copy(out, s.candidates[questionID])
	return out, nil
}

func (s *RoundStore) IncrementWins(_ context.Context, userID string, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wins[userID] += delta
	return nil
}

func (s *RoundStore) SetWins(_ context.Context, userID string, wins int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wins[userID] = wins
	return nil
}

func (s *RoundStore) TopWins(_ context.Context, n int) ([]domain.LeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]domain.LeaderboardEntry, 0, len(s.wins))
	for userID, wins := range s.wins {
		entries = append(entries, domain.LeaderboardEntry{UserID: userID, Wins: wins})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Wins != entries[j].Wins {
			return entries[i].Wins > entries[j].Wins
		}
		return entries[i].UserID < entries[j].UserID
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries, nil
}

func (s *RoundStore) SetUserName(_ context.Context, userID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names[userID] = name
	return nil
}

func (s *RoundStore) UserNames(_ context.Context, userIDs []string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make(map[string]string, len(userIDs))
	for _, id := range userIDs {
		if name, ok := s.names[id]; ok {
			names[id] = name
		}
	}
	return names, nil
}

func (s *RoundStore) ClearRound(_ context.Context, questionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.candidates, questionID)
	delete(s.winners, questionID)
	delete(s.markers, "winner:pending:"+questionID)
	delete(s.markers, "intermission:"+questionID)
	s.next = nil
	return nil
}
