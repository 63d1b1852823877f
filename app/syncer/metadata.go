package syncer

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/feed-sync/app/feed"
)

// VersionUpdateRequired is stored as a post feed's version to force its
// next gated sync to replace the cache.
const VersionUpdateRequired = "update required"

func VersionKey(feedName string) string {
	return feedName + "-version"
}

func LastSyncKey(feedName string) string {
	return feedName + "-last-sync-time"
}

// writePostVersion persists the observed version and sync time only while
// the stored version still equals lastKnownGood. A tag list change can
// invalidate the version while a sync is running; the invalidation wins.
func writePostVersion(metadata MetadataStore, feedName, lastKnownGood, version string, now time.Time) error {
	written, err := metadata.PutManyIf(VersionKey(feedName), lastKnownGood, map[string]string{
		VersionKey(feedName):  version,
		LastSyncKey(feedName): feed.FormatCursor(now),
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMetadataFailed, err)
	}
	if !written {
		slog.Info("Stored version changed during sync, keeping it", "feed", feedName, "fetched_version", version)
	}
	return nil
}

// writeVersion persists the observed version and sync time together.
func writeVersion(metadata MetadataStore, feedName, version string, now time.Time) error {
	err := metadata.PutMany(map[string]string{
		VersionKey(feedName):  version,
		LastSyncKey(feedName): feed.FormatCursor(now),
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMetadataFailed, err)
	}
	return nil
}
