package scheduler

import (
	"context"
	"time"
)

//go:generate mockgen -destination=mocks/mock_scheduler.go -package=mocks github.com/mattjoyce/folio/internal/scheduler SessionSweeper,JournalPruner

// SessionSweeper expires and reaps overdue sessions.
type SessionSweeper interface {
	Sweep(ctx context.Context) int
}

// JournalPruner trims operation history older than a retention window.
type JournalPruner interface {
	Prune(ctx context.Context, retention time.Duration) (int64, error)
}
