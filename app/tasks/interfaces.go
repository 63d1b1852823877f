package tasks

import (
	"context"

	"github.com/lysyi3m/feed-sync/app/feed"
	"github.com/lysyi3m/feed-sync/app/syncer"
)

// TaskSchedulerInterface defines the interface for task scheduling operations.
// Used by the main application to run periodic feed syncs and tag list
// refreshes in the background.
//
//	scheduler := NewScheduler(configCache, orchestrator, tagStore, metadataStore, collector, options)
//	scheduler.Start()
//	defer scheduler.Stop()
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
}

type FeedSyncer interface {
	Sync(ctx context.Context, feedName string, req syncer.Request) syncer.Result
}

type TagListRefresher interface {
	Refresh(ctx context.Context) (version string, changed bool, err error)
}

type ConfigSource interface {
	GetConfigs() map[string]*feed.Config
	GetEnabledConfigs() map[string]*feed.Config
}

type MetadataStore interface {
	Get(key, defaultValue string) (string, error)
	PutMany(values map[string]string) error
}

type RefreshRecorder interface {
	ObserveTagListRefresh(changed bool, err error)
}
