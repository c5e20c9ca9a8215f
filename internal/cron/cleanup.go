// Package cron schedules the Session Store's expired-session sweep
// (§4.5 cleanup_expired) on a cron expression instead of a bare ticker.
package cron

import (
	"context"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"

	"github.com/agentbridge/core/internal/sessionstore"
)

// pollInterval is how often the cron expression is checked for a due
// tick; one minute is the finest granularity a standard 5-field
// expression can express anyway.
const pollInterval = time.Minute

// CleanupSweeper runs sessionstore.Store.CleanupExpired on the schedule
// named by a cron expression (default every 15 minutes).
type CleanupSweeper struct {
	store   sessionstore.Store
	expr    string
	maxAge  time.Duration
	log     *slog.Logger
	gron    gronx.Gronx
}

// NewCleanupSweeper builds a sweeper for store, expiring sessions older
// than maxAge, ticking according to cronExpr (a standard 5-field
// expression; "" defaults to every 15 minutes).
func NewCleanupSweeper(store sessionstore.Store, cronExpr string, maxAge time.Duration, logger *slog.Logger) *CleanupSweeper {
	if cronExpr == "" {
		cronExpr = "*/15 * * * *"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupSweeper{store: store, expr: cronExpr, maxAge: maxAge, log: logger, gron: gronx.New()}
}

// Run blocks, sweeping expired sessions each time the cron expression
// comes due, until ctx is cancelled.
func (s *CleanupSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			due, err := s.gron.IsDue(s.expr, now)
			if err != nil {
				s.log.Error("invalid cron expression for session cleanup", "expr", s.expr, "error", err)
				continue
			}
			if !due {
				continue
			}
			s.sweep()
		}
	}
}

func (s *CleanupSweeper) sweep() {
	n, err := s.store.CleanupExpired(s.maxAge)
	if err != nil {
		s.log.Error("session cleanup sweep failed", "error", err)
		return
	}
	if n > 0 {
		s.log.Info("session cleanup swept expired sessions", "count", n)
	}
}
