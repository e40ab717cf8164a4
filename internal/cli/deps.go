package cli

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"quiz-round-service/internal/app"
	"quiz-round-service/internal/config"
	"quiz-round-service/internal/infra/memory"
	natsinfra "quiz-round-service/internal/infra/nats"
	pginfra "quiz-round-service/internal/infra/postgres"
	redisinfra "quiz-round-service/internal/infra/redis"
)

// deps holds the process-wide client handles, constructed once at start and
// passed into components by injection.
type deps struct {
	cfg   config.Config
	clock clockwork.Clock

	redisClient *goredis.Client
	pool        *pgxpool.Pool
	analytics   *natsinfra.Analytics

	store  app.RoundStore
	users  app.UserStore
	events app.Broadcaster
	sched  app.Scheduler

	// Exactly one of these is set, depending on whether Redis is configured.
	redisSched  *redisinfra.Scheduler
	memSched    *memory.Scheduler
	redisEvents *redisinfra.Broadcaster
	memEvents   *memory.Broadcaster

	timings     app.Timings
	lifeTimings app.LifecycleTimings
}

func buildDeps(ctx context.Context, configPath string) (*deps, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	d := &deps{cfg: cfg, clock: clockwork.NewRealClock()}

	d.timings = app.Timings{
		GraceWindow:     config.Duration(cfg.Quiz.Grace, 250*time.Millisecond),
		LateSlack:       config.Duration(cfg.Quiz.LateSlack, 0),
		DedupeTTL:       config.Duration(cfg.Quiz.DedupeTTL, 60*time.Second),
		LeaderboardSize: cfg.Quiz.LeaderboardSize,
	}
	d.lifeTimings = app.LifecycleTimings{
		QuestionTTL:  config.Duration(cfg.Quiz.TTL, 20*time.Second),
		Intermission: config.Duration(cfg.Quiz.Intermission, 5*time.Second),
		TopN:         cfg.Quiz.LeaderboardSize,
	}

	redisAddr := cfg.Redis.Addr
	if redisAddr == "" {
		redisAddr = config.Env("REDIS_ADDR", "")
	}
	if redisAddr != "" {
		d.redisClient = goredis.NewClient(&goredis.Options{
			Addr:     redisAddr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := d.redisClient.Ping(ctx).Err(); err != nil {
			return nil, err
		}
		d.store = redisinfra.NewRoundStore(d.redisClient)
		d.redisSched = redisinfra.NewScheduler(d.redisClient, d.clock)
		d.redisSched.PollInterval = config.Duration(cfg.Worker.Poll, 50*time.Millisecond)
		d.redisSched.RetryDelay = config.Duration(cfg.Worker.Retry, time.Second)
		d.sched = d.redisSched
		d.redisEvents = redisinfra.NewBroadcaster(d.redisClient)
		d.events = d.redisEvents
	} else {
		log.Warn().Msg("redis not configured, using in-memory state (single process only)")
		d.store = memory.NewRoundStore(d.clock)
		d.memSched = memory.NewScheduler(d.clock)
		d.sched = d.memSched
		d.memEvents = memory.NewBroadcaster()
		d.events = d.memEvents
	}

	pgURL := cfg.Postgres.URL
	if pgURL == "" {
		pgURL = config.Env("POSTGRES_URL", "")
	}
	if pgURL != "" {
		d.pool, err = pgxpool.Connect(ctx, pgURL)
		if err != nil {
			return nil, err
		}
		d.users = pginfra.NewUserStore(d.pool)
	} else {
		log.Warn().Msg("postgres not configured, win history will not survive restarts")
		d.users = memory.NewUserStore()
	}

	natsURL := cfg.NATS.URL
	if natsURL == "" {
		natsURL = config.Env("NATS_URL", "")
	}
	d.analytics, err = natsinfra.Connect(natsURL)
	if err != nil {
		return nil, err
	}

	return d, nil
}

func (d *deps) Close() {
	d.analytics.Close()
	if d.pool != nil {
		d.pool.Close()
	}
	if d.redisClient != nil {
		_ = d.redisClient.Close()
	}
}

func (d *deps) newService() *app.RoundService {
	return app.NewRoundService(d.store, d.users, d.sched, d.clock, d.timings)
}

func (d *deps) newLifecycle() *app.RoundLifecycle {
	return app.NewRoundLifecycle(d.store, d.users, d.sched, d.events, d.analytics, d.clock, d.lifeTimings)
}
