package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/feed-sync/app/syncer"
	"github.com/lysyi3m/feed-sync/app/tags"
)

type RefreshTagListTask struct {
	Task
	tagList  TagListRefresher
	configs  ConfigSource
	metadata MetadataStore
	recorder RefreshRecorder

	// version of a changed list whose post feeds are not invalidated yet
	pendingVersion string
}

func NewRefreshTagListTask(tagList TagListRefresher, configs ConfigSource, metadata MetadataStore, recorder RefreshRecorder) *RefreshTagListTask {
	return &RefreshTagListTask{
		Task:     NewTask(TaskTypeRefreshTagList, ""),
		tagList:  tagList,
		configs:  configs,
		metadata: metadata,
		recorder: recorder,
	}
}

// Execute refreshes the tag list. When its version changed, every post
// feed's stored version is replaced with the update-required sentinel so
// the next post sync rebuilds the cache with the new criteria. The new tag
// list version is stored in the same write, so a failed invalidation is
// seen as a change again by the next refresh. Event feeds are never touched.
func (t *RefreshTagListTask) Execute(ctx context.Context) error {

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if t.pendingVersion == "" {
		version, changed, err := t.tagList.Refresh(ctx)
		if t.recorder != nil {
			t.recorder.ObserveTagListRefresh(changed, err)
		}
		if err != nil {
			return fmt.Errorf("failed to refresh tag list: %w", err)
		}
		if !changed {
			slog.Debug("Tag list unchanged")
			return nil
		}
		t.pendingVersion = version
	}

	invalidated, err := t.invalidatePostFeeds(t.pendingVersion)
	if err != nil {
		return err
	}
	version := t.pendingVersion
	t.pendingVersion = ""

	slog.Info("Task completed",
		"type", t.GetType(),
		"changed", true,
		"version", version,
		"invalidated", invalidated,
		"duration", t.GetDuration())

	return nil
}

func (t *RefreshTagListTask) invalidatePostFeeds(tagListVersion string) (int, error) {
	values := map[string]string{tags.VersionKey: tagListVersion}
	invalidated := 0
	for name, feedConfig := range t.configs.GetConfigs() {
		if feedConfig.IsPosts() {
			values[syncer.VersionKey(name)] = syncer.VersionUpdateRequired
			invalidated++
		}
	}

	if err := t.metadata.PutMany(values); err != nil {
		return 0, fmt.Errorf("failed to invalidate post feed versions: %w", err)
	}

	return invalidated, nil
}
