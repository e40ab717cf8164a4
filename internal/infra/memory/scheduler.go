package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"quiz-round-service/internal/app"
)

type scheduledJob struct {
	job     app.Job
	readyAt time.Time
}

// Scheduler is an in-memory implementation of app.Scheduler. Jobs are held
// until RunDue drains the ones whose delay has elapsed, which lets tests walk
// a fake clock through the round lifecycle deterministically.
type Scheduler struct {
	clock clockwork.Clock

	mu      sync.Mutex
	pending []scheduledJob
}

func NewScheduler(clock clockwork.Clock) *Scheduler {
	return &Scheduler{clock: clock}
}

func (s *Scheduler) Schedule(_ context.Context, job app.Job, delay time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, scheduledJob{job: job, readyAt: s.clock.Now().Add(delay)})
	return nil
}

// Pending returns the jobs not yet due or drained, soonest first.
func (s *Scheduler) Pending() []app.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	sorted := make([]scheduledJob, len(s.pending))
	copy(sorted, s.pending)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].readyAt.Before(sorted[j].readyAt) })
	jobs := make([]app.Job, len(sorted))
	for i := range sorted {
		jobs[i] = sorted[i].job
	}
	return jobs
}

// Run polls for due jobs until the context is cancelled. Lets a single
// process host both the API and the lifecycle worker.
func (s *Scheduler) Run(ctx context.Context, poll time.Duration, handle func(context.Context, app.Job) error) error {
	ticker := s.clock.NewTicker(poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			if err := s.RunDue(ctx, handle); err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}
}

// RunDue hands every due job to handle, in ready order. Jobs scheduled by the
// handlers themselves stay pending until they come due on a later call.
func (s *Scheduler) RunDue(ctx context.Context, handle func(context.Context, app.Job) error) error {
	now := s.clock.Now()

	s.mu.Lock()
	var due, rest []scheduledJob
	for _, entry := range s.pending {
		if !entry.readyAt.After(now) {
			due = append(due, entry)
		} else {
			rest = append(rest, entry)
		}
	}
	s.pending = rest
	s.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].readyAt.Before(due[j].readyAt) })
	for _, entry := range due {
		if err := handle(ctx, entry.job); err != nil {
			return err
		}
	}
	return nil
}
