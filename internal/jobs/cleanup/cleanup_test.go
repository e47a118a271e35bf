package cleanup

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	redrepo "github.com/emberlabs/ember/backend/internal/repo/redis"
)

func TestSweepRemovesOnlyStaleIndicators(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	repo := redrepo.NewTypingRepo(client)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := repo.Set(ctx, "1_2", 1, now.Add(-10*time.Second), 5*time.Second); err != nil {
		t.Fatalf("set stale: %v", err)
	}
	if err := repo.Set(ctx, "1_2", 2, now.Add(-time.Second), 5*time.Second); err != nil {
		t.Fatalf("set fresh: %v", err)
	}
	if err := repo.Set(ctx, "3_4", 3, now.Add(-time.Minute), 5*time.Second); err != nil {
		t.Fatalf("set stale other match: %v", err)
	}

	sweeper := NewTypingSweeper(repo, Config{
		Interval:     time.Second,
		TypingWindow: 5 * time.Second,
	}, nil)
	sweeper.now = func() time.Time { return now }

	sweeper.sweep(ctx)

	records, err := repo.List(ctx, "1_2")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 || records[0].UserID != 2 {
		t.Fatalf("expected only the fresh indicator to survive, got %+v", records)
	}

	other, err := repo.List(ctx, "3_4")
	if err != nil {
		t.Fatalf("list other: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("stale indicator in other match must be swept, got %+v", other)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	sweeper := NewTypingSweeper(redrepo.NewTypingRepo(client), Config{
		Interval:     10 * time.Millisecond,
		TypingWindow: 5 * time.Second,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}
