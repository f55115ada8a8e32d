package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/profitwave/support-chat-api/databases"
)

// Scheduler handles periodic background jobs for the chat store
type Scheduler struct {
	cron      *cron.Cron
	ChatDB    databases.ChatDatabase
	retention time.Duration
}

// NewScheduler creates a new scheduler instance. retention is how long chat
// messages are kept before the daily prune removes them.
func NewScheduler(chatDB databases.ChatDatabase, retention time.Duration) *Scheduler {
	return &Scheduler{
		cron:      cron.New(cron.WithLocation(time.UTC)),
		ChatDB:    chatDB,
		retention: retention,
	}
}

// Start begins the scheduler with all registered jobs
func (s *Scheduler) Start() {
	// Prune stale chat messages daily at 4 AM UTC
	_, err := s.cron.AddFunc("0 4 * * *", s.pruneStaleMessages)
	if err != nil {
		zap.S().Errorw("failed to register chat prune job", "error", err)
	}

	s.cron.Start()
	zap.S().Info("Chat cleanup scheduler started")
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	zap.S().Info("Chat cleanup scheduler stopped")
}

// pruneStaleMessages removes chat messages older than the retention window.
// The admin cleanup endpoint runs the same deletion on demand.
func (s *Scheduler) pruneStaleMessages() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cutoff := time.Now().UTC().Add(-s.retention)
	deleted, err := s.ChatDB.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		zap.S().Errorw("failed to prune stale chat messages", "error", err)
		return
	}

	zap.S().Infow("Chat prune job complete",
		"deleted", deleted,
		"cutoff", cutoff,
	)
}
