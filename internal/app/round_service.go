package app

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"

	"quiz-round-service/internal/domain"
)

// Timings holds the tunable durations of the submission path.
type Timings struct {
	// GraceWindow is how long after the first correct submission the winner
	// decision is deferred, so near-simultaneous submissions can be collected.
	GraceWindow time.Duration
	// LateSlack absorbs network and client clock lag past expiresAt.
	LateSlack time.Duration
	// DedupeTTL bounds the lifetime of per-(question,user) markers.
	DedupeTTL time.Duration
	// LeaderboardSize is the number of entries exposed to clients.
	LeaderboardSize int
}

// DefaultTimings mirror the production defaults of the round protocol.
func DefaultTimings() Timings {
	return Timings{
		GraceWindow:     250 * time.Millisecond,
		LateSlack:       0,
		DedupeTTL:       60 * time.Second,
		LeaderboardSize: 10,
	}
}

// RoundService handles the synchronous request surface: answer submissions,
// the sanitized current-question read, the leaderboard read, and user
// registration. All cross-process coordination goes through the RoundStore.
type RoundService struct {
	store   RoundStore
	users   UserStore
	sched   Scheduler
	clock   clockwork.Clock
	timings Timings
}

func NewRoundService(store RoundStore, users UserStore, sched Scheduler, clock clockwork.Clock, timings Timings) *RoundService {
	if timings.LeaderboardSize <= 0 {
		timings.LeaderboardSize = 10
	}
	return &RoundService{store: store, users: users, sched: sched, clock: clock, timings: timings}
}

// Register stores a display name for a user, both in the hot store and
// durably.
func (s *RoundService) Register(ctx context.Context, userID, name string) error {
	if userID == "" || name == "" {
		return domain.ErrMissingFields
	}
	if err := s.store.SetUserName(ctx, userID, name); err != nil {
		return err
	}
	return s.users.UpsertUser(ctx, userID, name)
}

// CurrentQuestion returns the sanitized snapshot of the running round.
func (s *RoundService) CurrentQuestion(ctx context.Context) (domain.SanitizedQuestion, error) {
	current, ok, err := s.store.GetCurrent(ctx)
	if err != nil {
		return domain.SanitizedQuestion{}, err
	}
	if !ok {
		return domain.SanitizedQuestion{}, domain.ErrNoActiveQuestion
	}
	return domain.Sanitize(current, s.clock.Now()), nil
}

// Submit validates an answer against the current round and records a
// candidate when it is the user's first correct submission. The first
// qualifying submission of a question arms the grace-period finalize job;
// the armed marker guarantees that happens once no matter how many correct
// submissions race here.
func (s *RoundService) Submit(ctx context.Context, questionID, userID, answer string) (domain.SubmitResult, error) {
	if questionID == "" || userID == "" || answer == "" {
		return domain.SubmitResult{}, domain.ErrMissingFields
	}

	current, ok, err := s.store.GetCurrent(ctx)
	if err != nil {
		return domain.SubmitResult{}, err
	}
	if !ok {
		return domain.SubmitResult{}, domain.ErrNoActiveQuestion
	}
	if current.ID != questionID {
		return domain.SubmitResult{}, domain.ErrStaleQuestion
	}
	if current.Status != domain.StatusActive {
		return domain.SubmitResult{}, domain.ErrQuestionClosed
	}

	now := s.clock.Now()
	deadline := domain.FromUnixMs(current.ExpiresAt).Add(s.timings.LateSlack)
	if now.After(deadline) {
		return domain.SubmitResult{}, domain.ErrQuestionExpired
	}

	parsed, err := strconv.ParseFloat(answer, 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return domain.SubmitResult{}, domain.ErrInvalidAnswer
	}
	if parsed != float64(current.Answer) {
		return domain.SubmitResult{Status: domain.StatusIncorrect}, nil
	}

	first, err := s.store.MarkSubmitted(ctx, questionID, userID, s.timings.DedupeTTL)
	if err != nil {
		return domain.SubmitResult{}, err
	}
	if !first {
		return domain.SubmitResult{Status: domain.StatusDuplicate}, nil
	}

	if err := s.store.RecordCandidate(ctx, questionID, userID, now); err != nil {
		return domain.SubmitResult{}, err
	}

	armed, err := s.store.ArmGrace(ctx, questionID, s.timings.GraceWindow)
	if err != nil {
		return domain.SubmitResult{}, err
	}
	if armed {
		job := Job{Name: JobFinalizeWinner, QuestionID: questionID}
		if err := s.sched.Schedule(ctx, job, s.timings.GraceWindow); err != nil {
			return domain.SubmitResult{}, err
		}
	}

	return domain.SubmitResult{Status: domain.StatusCorrectPending}, nil
}

// Leaderboard returns the top-N ranked entries with display names filled in.
func (s *RoundService) Leaderboard(ctx context.Context) (domain.Leaderboard, error) {
	entries, err := s.store.TopWins(ctx, s.timings.LeaderboardSize)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	if len(entries) == 0 {
		return domain.Leaderboard{Items: []domain.LeaderboardEntry{}}, nil
	}

	ids := make([]string, len(entries))
	for i := range entries {
		ids[i] = entries[i].UserID
	}
	names, err := s.store.UserNames(ctx, ids)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	for i := range entries {
		entries[i].UserName = domain.DisplayName(entries[i].UserID, names[entries[i].UserID])
	}
	return domain.Leaderboard{Items: entries}, nil
}
