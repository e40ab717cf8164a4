package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"quiz-round-service/internal/app"
)

const keyScheduledJobs = "jobs:scheduled"

// Scheduler is a delayed job queue on a Redis sorted set. Jobs are stored as
// JSON members scored by their ready time in Unix milliseconds. Any number of
// worker processes may poll; ZREM is the claim, so each due job is handed to
// exactly one worker per delivery. A failed handler re-schedules the job,
// which makes overall delivery at-least-once.
type Scheduler struct {
	client *redis.Client
	clock  clockwork.Clock

	// PollInterval is how often a worker looks for due jobs.
	PollInterval time.Duration
	// RetryDelay spaces out redeliveries of failed jobs.
	RetryDelay time.Duration
}

func NewScheduler(client *redis.Client, clock clockwork.Clock) *Scheduler {
	return &Scheduler{
		client:       client,
		clock:        clock,
		PollInterval: 50 * time.Millisecond,
		RetryDelay:   time.Second,
	}
}

// Schedule enqueues a job to become due after delay.
func (s *Scheduler) Schedule(ctx context.Context, job app.Job, delay time.Duration) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	member, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	readyAt := s.clock.Now().Add(delay).UnixMilli()
	err = s.client.ZAdd(ctx, keyScheduledJobs, redis.Z{
		Score:  float64(readyAt),
		Member: string(member),
	}).Err()
	if err != nil {
		return fmt.Errorf("schedule job: %w", err)
	}
	return nil
}

// Run polls for due jobs until the context is cancelled, passing each claimed
// job to handle. Handler errors are logged and the job is re-scheduled.
func (s *Scheduler) Run(ctx context.Context, handle func(context.Context, app.Job) error) error {
	ticker := s.clock.NewTicker(s.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			if err := s.drainDue(ctx, handle); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Error().Err(err).Msg("job poll failed")
			}
		}
	}
}

func (s *Scheduler) drainDue(ctx context.Context, handle func(context.Context, app.Job) error) error {
	now := s.clock.Now().UnixMilli()
	members, err := s.client.ZRangeByScore(ctx, keyScheduledJobs, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%d", now),
		Count: 16,
	}).Result()
	if err != nil {
		return fmt.Errorf("poll due jobs: %w", err)
	}

	for _, member := range members {
		removed, err := s.client.ZRem(ctx, keyScheduledJobs, member).Result()
		if err != nil {
			return fmt.Errorf("claim job: %w", err)
		}
		if removed == 0 {
			// Another worker claimed it first.
			continue
		}

		var job app.Job
		if err := json.Unmarshal([]byte(member), &job); err != nil {
			log.Error().Err(err).Str("member", member).Msg("dropping malformed job")
			continue
		}

		if err := handle(ctx, job); err != nil {
			log.Error().Err(err).Str("job", job.Name).Str("question_id", job.QuestionID).Msg("job failed, re-scheduling")
			if scheduleErr := s.Schedule(ctx, job, s.RetryDelay); scheduleErr != nil {
				return fmt.Errorf("re-schedule failed job: %w", scheduleErr)
			}
		}
	}
	return nil
}
