package cron

import (
	"context"
	"testing"
	"time"

	"github.com/agentbridge/core/internal/sessionstore"
)

func TestNewCleanupSweeperDefaultsExpr(t *testing.T) {
	s := NewCleanupSweeper(sessionstore.NewMemoryStore(), "", time.Hour, nil)
	if s.expr != "*/15 * * * *" {
		t.Fatalf("expected default cron expression, got %q", s.expr)
	}
}

func TestCleanupSweeperSweepsExpiredSessions(t *testing.T) {
	store := sessionstore.NewMemoryStore()
	store.GetOrCreate(1, "/work", "")

	s := NewCleanupSweeper(store, "* * * * *", -time.Second, nil)
	s.sweep()

	remaining, err := store.ListUserSessions(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected the negative-maxAge sweep to remove the session, got %d remaining", len(remaining))
	}
}

func TestCleanupSweeperRunStopsOnContextCancel(t *testing.T) {
	s := NewCleanupSweeper(sessionstore.NewMemoryStore(), "* * * * *", time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected Run to return promptly after context cancellation")
	}
}
