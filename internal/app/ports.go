package app

import (
	"context"
	"time"

	"quiz-round-service/internal/domain"
)

// RoundStore is the shared remote state all processes coordinate through.
// Every guard (dedupe, grace arm, winner claim, intermission arm) must be a
// single atomic set-if-absent round trip on the store.
type RoundStore interface {
	GetCurrent(ctx context.Context) (domain.Question, bool, error)
	SetCurrent(ctx context.Context, q domain.Question) error
	GetNext(ctx context.Context) (domain.Question, bool, error)
	SetNext(ctx context.Context, q domain.Question) error
	ClearNext(ctx context.Context) error

	// MarkSubmitted claims the per-(question,user) dedupe marker.
	MarkSubmitted(ctx context.Context, questionID, userID string, ttl time.Duration) (bool, error)
	// ArmGrace claims the one-shot grace-period marker for a question.
	ArmGrace(ctx context.Context, questionID string, ttl time.Duration) (bool, error)
	// ArmIntermission claims the one-shot intermission marker for a question.
	ArmIntermission(ctx context.Context, questionID string) (bool, error)
	// ClaimWinner writes the winner record if and only if none exists yet.
	ClaimWinner(ctx context.Context, questionID, userID string) (bool, error)
	GetWinner(ctx context.Context, questionID string) (string, bool, error)

	RecordCandidate(ctx context.Context, questionID, userID string, receivedAt time.Time) error
	CandidatesByArrival(ctx context.Context, questionID string) ([]domain.Candidate, error)

	IncrementWins(ctx context.Context, userID string, delta int64) error
	SetWins(ctx context.Context, userID string, wins int64) error
	TopWins(ctx context.Context, n int) ([]domain.LeaderboardEntry, error)

	SetUserName(ctx context.Context, userID, name string) error
	UserNames(ctx context.Context, userIDs []string) (map[string]string, error)

	// ClearRound deletes all per-question keys plus the pending next slot.
	ClearRound(ctx context.Context, questionID string) error
}

// Job names dispatched through the scheduler.
const (
	JobFinalizeWinner   = "finalize-winner"
	JobRotateQuestion   = "rotate-question"
	JobGenerateQuestion = "generate-question"
)

// Job is a delayed lifecycle action. Delivery is at-least-once; every handler
// re-validates its target question before mutating anything.
type Job struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	QuestionID   string `json:"questionId,omitempty"`
	FromPrefetch bool   `json:"fromPrefetch,omitempty"`
}

// Scheduler enqueues a job to run once after the given delay.
type Scheduler interface {
	Schedule(ctx context.Context, job Job, delay time.Duration) error
}

// Broadcaster fans lifecycle notifications out to every subscribed process.
type Broadcaster interface {
	Publish(ctx context.Context, event string, payload any) error
}

// UserStore is the durable persistence collaborator. Both operations are
// idempotent under retry.
type UserStore interface {
	UpsertUser(ctx context.Context, userID, name string) error
	RecordWin(ctx context.Context, userID string, at time.Time) error
	// WinTotals returns the durable win counts, used to rebuild the ranked set.
	WinTotals(ctx context.Context) (map[string]int64, error)
}

// Analytics forwards facts to the external event bus, best effort.
type Analytics interface {
	Publish(ctx context.Context, fact string, payload any) error
}
