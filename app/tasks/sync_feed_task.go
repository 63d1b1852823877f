package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/feed-sync/app/syncer"
)

type SyncFeedTask struct {
	Task
	Request syncer.Request
	Result  syncer.Result
	syncer  FeedSyncer
}

func NewSyncFeedTask(feedName string, req syncer.Request, feedSyncer FeedSyncer) *SyncFeedTask {
	return &SyncFeedTask{
		Task:    NewTask(TaskTypeSyncFeed, feedName),
		Request: req,
		syncer:  feedSyncer,
	}
}

// Execute runs one sync through the orchestrator. Only transient failures
// are returned, so the scheduler retries a probe or fetch outage but not a
// bad feed config.
func (t *SyncFeedTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	result := t.syncer.Sync(ctx, t.FeedName, t.Request)
	t.Result = result

	if result.Err != nil {
		if syncer.IsTransient(result.Err) {
			return fmt.Errorf("failed to sync feed (%s): %w", result.Mode, result.Err)
		}
		slog.Error("Task failed", "type", t.GetType(), "feed", t.FeedName, "mode", result.Mode, "error", result.Err)
		return nil
	}

	slog.Info("Task completed",
		"type", t.GetType(),
		"feed", t.FeedName,
		"mode", result.Mode,
		"state", result.State,
		"duration", t.GetDuration())

	return nil
}
