package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"quiz-round-service/internal/domain"
)

// LifecycleTimings holds the tunable durations of the round state machine.
type LifecycleTimings struct {
	QuestionTTL  time.Duration
	Intermission time.Duration
	TopN         int
}

// DefaultLifecycleTimings mirror the production defaults.
func DefaultLifecycleTimings() LifecycleTimings {
	return LifecycleTimings{
		QuestionTTL:  domain.DefaultQuestionTTL,
		Intermission: 5 * time.Second,
		TopN:         10,
	}
}

// RoundLifecycle executes the scheduled side of the protocol: winner
// resolution after the grace window, the TTL rotation fallback, the
// intermission transition, and next-question activation. Every handler is an
// idempotent state transition: it re-validates that its question is still
// current and claims an atomic marker before mutating shared state, so
// at-least-once job delivery can never double-resolve a round.
type RoundLifecycle struct {
	store     RoundStore
	users     UserStore
	sched     Scheduler
	events    Broadcaster
	analytics Analytics
	clock     clockwork.Clock
	timings   LifecycleTimings
}

func NewRoundLifecycle(store RoundStore, users UserStore, sched Scheduler, events Broadcaster, analytics Analytics, clock clockwork.Clock, timings LifecycleTimings) *RoundLifecycle {
	if timings.QuestionTTL <= 0 {
		timings.QuestionTTL = domain.DefaultQuestionTTL
	}
	if timings.Intermission <= 0 {
		timings.Intermission = 5 * time.Second
	}
	if timings.TopN <= 0 {
		timings.TopN = 10
	}
	return &RoundLifecycle{
		store:     store,
		users:     users,
		sched:     sched,
		events:    events,
		analytics: analytics,
		clock:     clock,
		timings:   timings,
	}
}

// HandleJob dispatches a delivered job to its handler.
func (l *RoundLifecycle) HandleJob(ctx context.Context, job Job) error {
	switch job.Name {
	case JobFinalizeWinner:
		return l.FinalizeWinner(ctx, job.QuestionID)
	case JobRotateQuestion:
		return l.RotateQuestion(ctx, job.QuestionID)
	case JobGenerateQuestion:
		return l.GenerateQuestion(ctx, job.FromPrefetch)
	default:
		return fmt.Errorf("unknown job %q", job.Name)
	}
}

// Bootstrap kicks off the first round when the store holds no current
// question. The grace arm on a synthetic id keeps N replicas from enqueueing
// N generate jobs at boot.
func (l *RoundLifecycle) Bootstrap(ctx context.Context) error {
	_, ok, err := l.store.GetCurrent(ctx)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	claimed, err := l.store.ArmGrace(ctx, "bootstrap", 5*time.Second)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}
	log.Info().Msg("no current question, scheduling generation")
	return l.sched.Schedule(ctx, Job{Name: JobGenerateQuestion}, 0)
}

// FinalizeWinner picks the earliest-arrival candidate once the grace window
// has elapsed. Safe to run any number of times for the same question.
func (l *RoundLifecycle) FinalizeWinner(ctx context.Context, questionID string) error {
	current, ok, err := l.store.GetCurrent(ctx)
	if err != nil {
		return err
	}
	if !ok || current.ID != questionID {
		// The round already moved on; a stale finalize is expected under
		// races with TTL rotation.
		return nil
	}

	if _, exists, err := l.store.GetWinner(ctx, questionID); err != nil {
		return err
	} else if exists {
		return nil
	}

	candidates, err := l.store.CandidatesByArrival(ctx, questionID)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return nil
	}

	winner := candidates[0]
	claimed, err := l.store.ClaimWinner(ctx, questionID, winner.UserID)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}

	if err := l.store.IncrementWins(ctx, winner.UserID, 1); err != nil {
		return err
	}
	if err := l.users.RecordWin(ctx, winner.UserID, domain.FromUnixMs(winner.ReceivedAt)); err != nil {
		return err
	}

	names, err := l.store.UserNames(ctx, []string{winner.UserID})
	if err != nil {
		return err
	}
	winnerEvent := domain.WinnerEvent{
		QuestionID: questionID,
		UserID:     winner.UserID,
		UserName:   domain.DisplayName(winner.UserID, names[winner.UserID]),
	}

	board, err := l.topLeaderboard(ctx)
	if err != nil {
		return err
	}

	log.Info().Str("question_id", questionID).Str("user_id", winner.UserID).Msg("winner resolved")
	if err := l.events.Publish(ctx, domain.EventWinner, winnerEvent); err != nil {
		return err
	}
	if err := l.events.Publish(ctx, domain.EventLeaderboard, board); err != nil {
		return err
	}
	if err := l.analytics.Publish(ctx, domain.FactWinnerDeclared, winnerEvent); err != nil {
		log.Warn().Err(err).Msg("analytics publish failed")
	}

	return l.StartIntermission(ctx, questionID)
}

// RotateQuestion is the TTL-expiry fallback: it closes a round no one won.
func (l *RoundLifecycle) RotateQuestion(ctx context.Context, questionID string) error {
	current, ok, err := l.store.GetCurrent(ctx)
	if err != nil {
		return err
	}
	if !ok || current.ID != questionID {
		return nil
	}
	if current.Status == domain.StatusIntermission {
		return nil
	}
	if _, exists, err := l.store.GetWinner(ctx, questionID); err != nil {
		return err
	} else if exists {
		// The grace path owns the transition once a winner exists.
		return nil
	}
	return l.StartIntermission(ctx, questionID)
}

// StartIntermission flips the current question into intermission, attaching
// the resolved winner when present, pre-generates the next question, and
// schedules its activation. Both the grace path and the TTL fallback call
// this; the armed marker makes whichever arrives second a no-op.
func (l *RoundLifecycle) StartIntermission(ctx context.Context, questionID string) error {
	current, ok, err := l.store.GetCurrent(ctx)
	if err != nil {
		return err
	}
	if !ok || current.ID != questionID {
		return nil
	}

	armed, err := l.store.ArmIntermission(ctx, questionID)
	if err != nil {
		return err
	}
	if !armed {
		return nil
	}

	now := l.clock.Now()
	var winner *domain.Winner
	if userID, exists, err := l.store.GetWinner(ctx, questionID); err != nil {
		return err
	} else if exists {
		names, err := l.store.UserNames(ctx, []string{userID})
		if err != nil {
			return err
		}
		winner = &domain.Winner{UserID: userID, UserName: domain.DisplayName(userID, names[userID])}
	}

	next := domain.NewQuestion(now, l.timings.QuestionTTL)
	if err := l.store.SetNext(ctx, next); err != nil {
		return err
	}

	current.Status = domain.StatusIntermission
	current.ExpiresAt = domain.UnixMs(now.Add(l.timings.Intermission))
	current.Winner = winner
	if err := l.store.SetCurrent(ctx, current); err != nil {
		return err
	}

	log.Info().Str("question_id", questionID).Bool("has_winner", winner != nil).Msg("round entered intermission")
	if err := l.events.Publish(ctx, domain.EventQuestion, domain.Sanitize(current, now)); err != nil {
		return err
	}
	return l.sched.Schedule(ctx, Job{Name: JobGenerateQuestion, FromPrefetch: true}, l.timings.Intermission)
}

// GenerateQuestion activates the pending next question when one exists,
// otherwise generates a fresh one after clearing the previous round's keys.
func (l *RoundLifecycle) GenerateQuestion(ctx context.Context, fromPrefetch bool) error {
	now := l.clock.Now()

	if fromPrefetch {
		next, ok, err := l.store.GetNext(ctx)
		if err != nil {
			return err
		}
		if ok {
			next.CreatedAt = domain.UnixMs(now)
			next.ExpiresAt = next.CreatedAt + next.TTLMs
			next.Status = domain.StatusActive
			return l.activate(ctx, next, now)
		}
	}

	// No pending question: clear any residue from the superseded round so
	// per-question keys do not accumulate.
	if prev, ok, err := l.store.GetCurrent(ctx); err != nil {
		return err
	} else if ok {
		if err := l.store.ClearRound(ctx, prev.ID); err != nil {
			return err
		}
	}

	question := domain.NewQuestion(now, l.timings.QuestionTTL)
	return l.activate(ctx, question, now)
}

func (l *RoundLifecycle) activate(ctx context.Context, q domain.Question, now time.Time) error {
	if err := l.store.SetCurrent(ctx, q); err != nil {
		return err
	}
	if err := l.store.ClearNext(ctx); err != nil {
		return err
	}

	sanitized := domain.Sanitize(q, now)
	log.Info().Str("question_id", q.ID).Int64("expires_at", q.ExpiresAt).Msg("question activated")
	if err := l.events.Publish(ctx, domain.EventQuestion, sanitized); err != nil {
		return err
	}
	if err := l.analytics.Publish(ctx, domain.FactQuestionCreated, sanitized); err != nil {
		log.Warn().Err(err).Msg("analytics publish failed")
	}
	return l.sched.Schedule(ctx, Job{Name: JobRotateQuestion, QuestionID: q.ID}, q.TTL())
}

// ReconcileLeaderboard reloads durable win totals into the ranked set. Run
// periodically by the worker so the leaderboard survives a store flush.
func (l *RoundLifecycle) ReconcileLeaderboard(ctx context.Context) error {
	totals, err := l.users.WinTotals(ctx)
	if err != nil {
		return err
	}
	for userID, wins := range totals {
		if err := l.store.SetWins(ctx, userID, wins); err != nil {
			return err
		}
	}
	log.Debug().Int("users", len(totals)).Msg("leaderboard reconciled")
	return nil
}

func (l *RoundLifecycle) topLeaderboard(ctx context.Context) (domain.Leaderboard, error) {
	entries, err := l.store.TopWins(ctx, l.timings.TopN)
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
	names, err := l.store.UserNames(ctx, ids)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	for i := range entries {
		entries[i].UserName = domain.DisplayName(entries[i].UserID, names[entries[i].UserID])
	}
	return domain.Leaderboard{Items: entries}, nil
}
