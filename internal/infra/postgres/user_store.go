package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
)

// UserStore persists users and their win history in Postgres.
type UserStore struct {
	pool *pgxpool.Pool
}

func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

func (s *UserStore) UpsertUser(ctx context.Context, userID, name string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (user_id, name) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET name = EXCLUDED.name, updated_at = now()`,
		userID, name)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// RecordWin increments the durable win count. The last_win_at guard makes a
// retried call with the same timestamp a no-op.
func (s *UserStore) RecordWin(ctx context.Context, userID string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (user_id, name, wins, last_win_at) VALUES ($1, '', 1, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET wins = users.wins + 1, last_win_at = EXCLUDED.last_win_at, updated_at = now()
		WHERE users.last_win_at IS DISTINCT FROM EXCLUDED.last_win_at`,
		userID, at)
	if err != nil {
		return fmt.Errorf("record win: %w", err)
	}
	return nil
}

func (s *UserStore) WinTotals(ctx context.Context) (map[string]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT user_id, wins FROM users WHERE wins > 0`)
	if err != nil {
		return nil, fmt.Errorf("win totals: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]int64)
	for rows.Next() {
		var userID string
		var wins int64
		if err := rows.Scan(&userID, &wins); err != nil {
			return nil, fmt.Errorf("scan win totals: %w", err)
		}
		totals[userID] = wins
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("win totals rows: %w", err)
	}
	return totals, nil
}
