package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-round-service/internal/domain"
)

// Key schema shared with every interoperating process. Do not change shapes
// without migrating store contents.
const (
	keyCurrentQuestion = "current:question"
	keyNextQuestion    = "next:question"
	keyLeaderboard     = "leaderboard"
	keyUserNames       = "user:names"
)

func keyCandidates(questionID string) string   { return "candidates:" + questionID }
func keyWinner(questionID string) string       { return "winner:" + questionID }
func keyGracePending(questionID string) string { return "winner:pending:" + questionID }
func keySubmitted(questionID, userID string) string {
	return "submitted:" + questionID + ":" + userID
}
func keyIntermission(questionID string) string { return "intermission:" + questionID }

// RoundStore implements app.RoundStore on Redis. All armed markers and the
// winner record use SET NX so concurrent processes race on the store's own
// atomicity, never on client-side reads.
type RoundStore struct {
	client *redis.Client
}

func NewRoundStore(client *redis.Client) *RoundStore {
	return &RoundStore{client: client}
}

func (s *RoundStore) GetCurrent(ctx context.Context) (domain.Question, bool, error) {
	return s.getQuestion(ctx, keyCurrentQuestion)
}

func (s *RoundStore) SetCurrent(ctx context.Context, q domain.Question) error {
	return s.setQuestion(ctx, keyCurrentQuestion, q)
}

func (s *RoundStore) GetNext(ctx context.Context) (domain.Question, bool, error) {
	return s.getQuestion(ctx, keyNextQuestion)
}

func (s *RoundStore) SetNext(ctx context.Context, q domain.Question) error {
	return s.setQuestion(ctx, keyNextQuestion, q)
}

func (s *RoundStore) ClearNext(ctx context.Context) error {
	if err := s.client.Del(ctx, keyNextQuestion).Err(); err != nil {
		return fmt.Errorf("clear next question: %w", err)
	}
	return nil
}

func (s *RoundStore) getQuestion(ctx context.Context, key string) (domain.Question, bool, error) {
	raw, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return domain.Question{}, false, nil
	}
	if err != nil {
		return domain.Question{}, false, fmt.Errorf("get %s: %w", key, err)
	}
	var q domain.Question
	if err := json.Unmarshal([]byte(raw), &q); err != nil {
		return domain.Question{}, false, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return q, true, nil
}

func (s *RoundStore) setQuestion(ctx context.Context, key string, q domain.Question) error {
	data, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *RoundStore) MarkSubmitted(ctx context.Context, questionID, userID string, ttl time.Duration) (bool, error) {
	created, err := s.client.SetNX(ctx, keySubmitted(questionID, userID), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark submitted: %w", err)
	}
	return created, nil
}

func (s *RoundStore) ArmGrace(ctx context.Context, questionID string, ttl time.Duration) (bool, error) {
	created, err := s.client.SetNX(ctx, keyGracePending(questionID), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("arm grace: %w", err)
	}
	return created, nil
}

func (s *RoundStore) ArmIntermission(ctx context.Context, questionID string) (bool, error) {
	created, err := s.client.SetNX(ctx, keyIntermission(questionID), "1", 0).Result()
	if err != nil {
		return false, fmt.Errorf("arm intermission: %w", err)
	}
	return created, nil
}

func (s *RoundStore) ClaimWinner(ctx context.Context, questionID, userID string) (bool, error) {
	created, err := s.client.SetNX(ctx, keyWinner(questionID), userID, 0).Result()
	if err != nil {
		return false, fmt.Errorf("claim winner: %w", err)
	}
	return created, nil
}

func (s *RoundStore) GetWinner(ctx context.Context, questionID string) (string, bool, error) {
	userID, err := s.client.Get(ctx, keyWinner(questionID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get winner: %w", err)
	}
	return userID, true, nil
}

func (s *RoundStore) RecordCandidate(ctx context.Context, questionID, userID string, receivedAt time.Time) error {
	candidate := domain.Candidate{UserID: userID, ReceivedAt: domain.UnixMs(receivedAt)}
	member, err := json.Marshal(candidate)
	if err != nil {
		return fmt.Errorf("marshal candidate: %w", err)
	}
	err = s.client.ZAdd(ctx, keyCandidates(questionID), redis.Z{
		Score:  float64(candidate.ReceivedAt),
		Member: string(member),
	}).Err()
	if err != nil {
		return fmt.Errorf("record candidate: %w", err)
	}
	return nil
}

func (s *RoundStore) CandidatesByArrival(ctx context.Context, questionID string) ([]domain.Candidate, error) {
	members, err := s.client.ZRange(ctx, keyCandidates(questionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	candidates := make([]domain.Candidate, 0, len(members))
	for _, member := range members {
		var c domain.Candidate
		if err := json.Unmarshal([]byte(member), &c); err != nil {
			return nil, fmt.Errorf("unmarshal candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

func (s *RoundStore) IncrementWins(ctx context.Context, userID string, delta int64) error {
	if err := s.client.ZIncrBy(ctx, keyLeaderboard, float64(delta), userID).Err(); err != nil {
		return fmt.Errorf("increment wins: %w", err)
	}
	return nil
}

func (s *RoundStore) SetWins(ctx context.Context, userID string, wins int64) error {
	err := s.client.ZAdd(ctx, keyLeaderboard, redis.Z{Score: float64(wins), Member: userID}).Err()
	if err != nil {
		return fmt.Errorf("set wins: %w", err)
	}
	return nil
}

func (s *RoundStore) TopWins(ctx context.Context, n int) ([]domain.LeaderboardEntry, error) {
	rows, err := s.client.ZRevRangeWithScores(ctx, keyLeaderboard, 0, int64(n)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("top wins: %w", err)
	}
	entries := make([]domain.LeaderboardEntry, 0, len(rows))
	for _, row := range rows {
		userID, _ := row.Member.(string)
		entries = append(entries, domain.LeaderboardEntry{
			UserID: userID,
			Wins:   int64(row.Score),
		})
	}
	return entries, nil
}

func (s *RoundStore) SetUserName(ctx context.Context, userID, name string) error {
	if err := s.client.HSet(ctx, keyUserNames, userID, name).Err(); err != nil {
		return fmt.Errorf("set user name: %w", err)
	}
	return nil
}

func (s *RoundStore) UserNames(ctx context.Context, userIDs []string) (map[string]string, error) {
	if len(userIDs) == 0 {
		return map[string]string{}, nil
	}
	values, err := s.client.HMGet(ctx, keyUserNames, userIDs...).Result()
	if err != nil {
		return nil, fmt.Errorf("user names: %w", err)
	}
	names := make(map[string]string, len(userIDs))
	for i, value := range values {
		if name, ok := value.(string); ok && name != "" {
			names[userIDs[i]] = name
		}
	}
	return names, nil
}

func (s *RoundStore) ClearRound(ctx context.Context, questionID string) error {
	err := s.client.Del(ctx,
		keyCandidates(questionID),
		keyGracePending(questionID),
		keyWinner(questionID),
		keyIntermission(questionID),
		keyNextQuestion,
	).Err()
	if err != nil {
		return fmt.Errorf("clear round: %w", err)
	}
	return nil
}
