package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"quiz-round-service/internal/domain"
)

func newTestStore(t *testing.T) (*RoundStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRoundStore(client), mr
}

func TestRoundStoreQuestionRoundtrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if _, ok, err := store.GetCurrent(ctx); err != nil || ok {
		t.Fatalf("expected empty store, got ok=%v err=%v", ok, err)
	}

	q := domain.NewQuestion(time.UnixMilli(1700000000000), 20*time.Second)
	if err := store.SetCurrent(ctx, q); err != nil {
		t.Fatalf("set current: %v", err)
	}
	got, ok, err := store.GetCurrent(ctx)
	if err != nil || !ok {
		t.Fatalf("get current: ok=%v err=%v", ok, err)
	}
	if got.ID != q.ID || got.Answer != q.Answer || got.ExpiresAt != q.ExpiresAt {
		t.Fatalf("roundtrip mismatch: %+v vs %+v", got, q)
	}

	if err := store.SetNext(ctx, q); err != nil {
		t.Fatalf("set next: %v", err)
	}
	if err := store.ClearNext(ctx); err != nil {
		t.Fatalf("clear next: %v", err)
	}
	if _, ok, _ := store.GetNext(ctx); ok {
		t.Fatalf("expected next slot cleared")
	}
}

func TestRoundStoreDedupeMarkerExpires(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	created, err := store.MarkSubmitted(ctx, "q1", "u1", time.Minute)
	if err != nil || !created {
		t.Fatalf("first mark: created=%v err=%v", created, err)
	}
	created, err = store.MarkSubmitted(ctx, "q1", "u1", time.Minute)
	if err != nil || created {
		t.Fatalf("duplicate mark must not claim: created=%v err=%v", created, err)
	}

	// Markers are per (question, user).
	if created, _ := store.MarkSubmitted(ctx, "q1", "u2", time.Minute); !created {
		t.Fatalf("different user must claim its own marker")
	}

	mr.FastForward(time.Minute + time.Second)
	if created, _ := store.MarkSubmitted(ctx, "q1", "u1", time.Minute); !created {
		t.Fatalf("expired marker must be claimable again")
	}
}

func TestRoundStoreGraceArmsOnce(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if armed, _ := store.ArmGrace(ctx, "q1", 5*time.Second); !armed {
		t.Fatalf("first arm must claim")
	}
	if armed, _ := store.ArmGrace(ctx, "q1", 5*time.Second); armed {
		t.Fatalf("second arm must lose the race")
	}
	if armed, _ := store.ArmGrace(ctx, "q2", 5*time.Second); !armed {
		t.Fatalf("a different question has its own marker")
	}
}

func TestRoundStoreWinnerClaimedOnce(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if claimed, _ := store.ClaimWinner(ctx, "q1", "u1"); !claimed {
		t.Fatalf("first claim must win")
	}
	if claimed, _ := store.ClaimWinner(ctx, "q1", "u2"); claimed {
		t.Fatalf("second claim must lose")
	}
	winner, ok, err := store.GetWinner(ctx, "q1")
	if err != nil || !ok || winner != "u1" {
		t.Fatalf("expected u1 as winner, got %q ok=%v err=%v", winner, ok, err)
	}
}

func TestRoundStoreCandidatesOrderedByArrival(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	base := time.UnixMilli(1700000000000)

	_ = store.RecordCandidate(ctx, "q1", "u-third", base.Add(20*time.Millisecond))
	_ = store.RecordCandidate(ctx, "q1", "u-first", base)
	_ = store.RecordCandidate(ctx, "q1", "u-second", base.Add(5*time.Millisecond))

	candidates, err := store.CandidatesByArrival(ctx, "q1")
	if err != nil {
		t.Fatalf("list candidates: %v", err)
	}
	if len(candidates) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(candidates))
	}
	want := []string{"u-first", "u-second", "u-third"}
	for i, userID := range want {
		if candidates[i].UserID != userID {
			t.Fatalf("position %d: expected %s, got %s", i, userID, candidates[i].UserID)
		}
	}
}

func TestRoundStoreTopWins(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = store.IncrementWins(ctx, "u-top", 1)
	}
	_ = store.IncrementWins(ctx, "u-mid", 1)
	_ = store.IncrementWins(ctx, "u-mid", 1)
	_ = store.SetWins(ctx, "u-low", 1)

	entries, err := store.TopWins(ctx, 2)
	if err != nil {
		t.Fatalf("top wins: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected top 2, got %d", len(entries))
	}
	if entries[0].UserID != "u-top" || entries[0].Wins != 3 {
		t.Fatalf("expected u-top with 3 wins first, got %+v", entries[0])
	}
	if entries[1].UserID != "u-mid" || entries[1].Wins != 2 {
		t.Fatalf("expected u-mid with 2 wins second, got %+v", entries[1])
	}
}

func TestRoundStoreUserNames(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_ = store.SetUserName(ctx, "u1", "Alice")
	names, err := store.UserNames(ctx, []string{"u1", "u-unknown"})
	if err != nil {
		t.Fatalf("user names: %v", err)
	}
	if names["u1"] != "Alice" {
		t.Fatalf("expected Alice, got %q", names["u1"])
	}
	if _, ok := names["u-unknown"]; ok {
		t.Fatalf("unknown users must be absent from the map")
	}

	if names, _ := store.UserNames(ctx, nil); len(names) != 0 {
		t.Fatalf("empty lookup must not hit the store")
	}
}

func TestRoundStoreClearRound(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	q := domain.NewQuestion(time.UnixMilli(1700000000000), 20*time.Second)
	_ = store.SetNext(ctx, q)
	_ = store.RecordCandidate(ctx, "q1", "u1", time.UnixMilli(1700000000000))
	_, _ = store.ArmGrace(ctx, "q1", time.Minute)
	_, _ = store.ArmIntermission(ctx, "q1")
	_, _ = store.ClaimWinner(ctx, "q1", "u1")

	if err := store.ClearRound(ctx, "q1"); err != nil {
		t.Fatalf("clear round: %v", err)
	}
	for _, key := range []string{"candidates:q1", "winner:pending:q1", "intermission:q1", "winner:q1", "next:question"} {
		if mr.Exists(key) {
			t.Fatalf("expected %s removed", key)
		}
	}
}
