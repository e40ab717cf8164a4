package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"quiz-round-service/internal/app"
	"quiz-round-service/internal/domain"
	"quiz-round-service/internal/infra/memory"
)

type serviceFixture struct {
	clock   *clockwork.FakeClock
	store   *memory.RoundStore
	users   *memory.UserStore
	sched   *memory.Scheduler
	service *app.RoundService
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.UnixMilli(1700000000000))
	store := memory.NewRoundStore(clock)
	users := memory.NewUserStore()
	sched := memory.NewScheduler(clock)
	service := app.NewRoundService(store, users, sched, clock, app.DefaultTimings())
	return &serviceFixture{clock: clock, store: store, users: users, sched: sched, service: service}
}

func (f *serviceFixture) activeQuestion(t *testing.T, answer int64) domain.Question {
	t.Helper()
	q := domain.NewQuestion(f.clock.Now(), 20*time.Second)
	q.Answer = answer
	if err := f.store.SetCurrent(context.Background(), q); err != nil {
		t.Fatalf("set current: %v", err)
	}
	return q
}

func countJobs(jobs []app.Job, name string) int {
	n := 0
	for _, job := range jobs {
		if job.Name == name {
			n++
		}
	}
	return n
}

func TestSubmitWithoutQuestion(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.service.Submit(context.Background(), "q1", "u1", "42")
	if !errors.Is(err, domain.ErrNoActiveQuestion) {
		t.Fatalf("expected ErrNoActiveQuestion, got %v", err)
	}
}

func TestSubmitStaleQuestion(t *testing.T) {
	f := newServiceFixture(t)
	f.activeQuestion(t, 42)
	_, err := f.service.Submit(context.Background(), "someone-elses-question", "u1", "42")
	if !errors.Is(err, domain.ErrStaleQuestion) {
		t.Fatalf("expected ErrStaleQuestion, got %v", err)
	}
}

func TestSubmitDuringIntermission(t *testing.T) {
	f := newServiceFixture(t)
	q := f.activeQuestion(t, 42)
	q.Status = domain.StatusIntermission
	_ = f.store.SetCurrent(context.Background(), q)

	_, err := f.service.Submit(context.Background(), q.ID, "u1", "42")
	if !errors.Is(err, domain.ErrQuestionClosed) {
		t.Fatalf("expected ErrQuestionClosed, got %v", err)
	}
}

func TestSubmitAfterExpiry(t *testing.T) {
	f := newServiceFixture(t)
	q := f.activeQuestion(t, 42)

	f.clock.Advance(20*time.Second + time.Millisecond)
	_, err := f.service.Submit(context.Background(), q.ID, "u1", "42")
	if !errors.Is(err, domain.ErrQuestionExpired) {
		t.Fatalf("expected ErrQuestionExpired, got %v", err)
	}
}

func TestSubmitLateSlackAbsorbsLag(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.UnixMilli(1700000000000))
	store := memory.NewRoundStore(clock)
	timings := app.DefaultTimings()
	timings.LateSlack = 500 * time.Millisecond
	service := app.NewRoundService(store, memory.NewUserStore(), memory.NewScheduler(clock), clock, timings)

	q := domain.NewQuestion(clock.Now(), 20*time.Second)
	q.Answer = 42
	_ = store.SetCurrent(context.Background(), q)

	clock.Advance(20*time.Second + 400*time.Millisecond)
	result, err := service.Submit(context.Background(), q.ID, "u1", "42")
	if err != nil {
		t.Fatalf("expected slack to absorb lag, got %v", err)
	}
	if result.Status != domain.StatusCorrectPending {
		t.Fatalf("expected correct_pending, got %s", result.Status)
	}
}

func TestSubmitInvalidAnswer(t *testing.T) {
	f := newServiceFixture(t)
	q := f.activeQuestion(t, 42)

	for _, answer := range []string{"abc", "NaN", "Inf", "4 2"} {
		_, err := f.service.Submit(context.Background(), q.ID, "u1", answer)
		if !errors.Is(err, domain.ErrInvalidAnswer) {
			t.Fatalf("answer %q: expected ErrInvalidAnswer, got %v", answer, err)
		}
	}
}

func TestSubmitIncorrectAnswer(t *testing.T) {
	f := newServiceFixture(t)
	q := f.activeQuestion(t, 42)

	result, err := f.service.Submit(context.Background(), q.ID, "u1", "41")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Status != domain.StatusIncorrect {
		t.Fatalf("expected incorrect, got %s", result.Status)
	}
	if candidates, _ := f.store.CandidatesByArrival(context.Background(), q.ID); len(candidates) != 0 {
		t.Fatalf("incorrect answer must not record a candidate")
	}
}

func TestSubmitCorrectThenDuplicate(t *testing.T) {
	f := newServiceFixture(t)
	q := f.activeQuestion(t, 42)

	first, err := f.service.Submit(context.Background(), q.ID, "u1", "42")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if first.Status != domain.StatusCorrectPending {
		t.Fatalf("expected correct_pending, got %s", first.Status)
	}

	second, err := f.service.Submit(context.Background(), q.ID, "u1", "42")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if second.Status != domain.StatusDuplicate {
		t.Fatalf("expected duplicate, got %s", second.Status)
	}

	candidates, _ := f.store.CandidatesByArrival(context.Background(), q.ID)
	if len(candidates) != 1 || candidates[0].UserID != "u1" {
		t.Fatalf("expected exactly one candidate for u1, got %+v", candidates)
	}
}

func TestSubmitAcceptsFloatFormOfAnswer(t *testing.T) {
	f := newServiceFixture(t)
	q := f.activeQuestion(t, 42)

	result, err := f.service.Submit(context.Background(), q.ID, "u1", "42.0")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Status != domain.StatusCorrectPending {
		t.Fatalf("expected correct_pending, got %s", result.Status)
	}
}

func TestGraceArmedOncePerQuestion(t *testing.T) {
	f := newServiceFixture(t)
	q := f.activeQuestion(t, 42)

	for _, user := range []string{"u1", "u2", "u3", "u4"} {
		if _, err := f.service.Submit(context.Background(), q.ID, user, "42"); err != nil {
			t.Fatalf("submit %s: %v", user, err)
		}
		f.clock.Advance(10 * time.Millisecond)
	}

	if n := countJobs(f.sched.Pending(), app.JobFinalizeWinner); n != 1 {
		t.Fatalf("expected exactly one finalize job, got %d", n)
	}
	candidates, _ := f.store.CandidatesByArrival(context.Background(), q.ID)
	if len(candidates) != 4 {
		t.Fatalf("expected 4 candidates, got %d", len(candidates))
	}
	if candidates[0].UserID != "u1" {
		t.Fatalf("expected earliest candidate first, got %+v", candidates[0])
	}
}

func TestRegisterRequiresFields(t *testing.T) {
	f := newServiceFixture(t)
	if err := f.service.Register(context.Background(), "", "Alice"); !errors.Is(err, domain.ErrMissingFields) {
		t.Fatalf("expected ErrMissingFields, got %v", err)
	}
	if err := f.service.Register(context.Background(), "u1", ""); !errors.Is(err, domain.ErrMissingFields) {
		t.Fatalf("expected ErrMissingFields, got %v", err)
	}
}

func TestCurrentQuestionSanitized(t *testing.T) {
	f := newServiceFixture(t)

	if _, err := f.service.CurrentQuestion(context.Background()); !errors.Is(err, domain.ErrNoActiveQuestion) {
		t.Fatalf("expected ErrNoActiveQuestion, got %v", err)
	}

	q := f.activeQuestion(t, 42)
	snapshot, err := f.service.CurrentQuestion(context.Background())
	if err != nil {
		t.Fatalf("current question: %v", err)
	}
	if snapshot.ID != q.ID || snapshot.Prompt != q.Prompt {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}
}

func TestLeaderboardFillsNames(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	if err := f.service.Register(ctx, "u1", "Alice"); err != nil {
		t.Fatalf("register: %v", err)
	}
	_ = f.store.IncrementWins(ctx, "u1", 3)
	_ = f.store.IncrementWins(ctx, "anonymous-user", 1)

	board, err := f.service.Leaderboard(ctx)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(board.Items) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(board.Items))
	}
	if board.Items[0].UserID != "u1" || board.Items[0].UserName != "Alice" || board.Items[0].Wins != 3 {
		t.Fatalf("expected Alice leading with 3, got %+v", board.Items[0])
	}
	if board.Items[1].UserName != "anonym" {
		t.Fatalf("expected id-prefix fallback name, got %+v", board.Items[1])
	}
}
