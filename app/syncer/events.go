package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/feed-sync/app/feed"
)

// EventEngine reconciles cached calendar events. Calendar data is mutable,
// so merges replace a time range instead of appending.
type EventEngine struct {
	gate     *Gate
	fetcher  Fetcher
	parser   *feed.Parser
	cache    EventCache
	metadata MetadataStore
	now      func() time.Time
}

func NewEventEngine(gate *Gate, fetcher Fetcher, parser *feed.Parser, cache EventCache, metadata MetadataStore) *EventEngine {
	return &EventEngine{
		gate:     gate,
		fetcher:  fetcher,
		parser:   parser,
		cache:    cache,
		metadata: metadata,
		now:      time.Now,
	}
}

// FullResync replaces every cached event of the feed with the current
// remote window. It is not version gated.
func (e *EventEngine) FullResync(ctx context.Context, feedConfig *feed.Config) Result {
	result := Result{Feed: feedConfig.Name, Mode: ModeFull}

	window, err := e.fetchWindow(ctx, feedConfig, nil)
	if err != nil {
		return result.failed(err)
	}

	result.Version = window.Version
	result.Fetched = len(window.Events)

	previous, err := e.cache.Count(feedConfig.Name)
	if err != nil {
		return result.failed(fmt.Errorf("%w: %w", ErrReconcileFailed, err))
	}

	if err := e.cache.ReplaceAll(feedConfig.Name, window.Events); err != nil {
		return result.failed(fmt.Errorf("%w: %w", ErrReconcileFailed, err))
	}
	result.Deleted = previous
	result.Inserted = len(window.Events)

	if err := writeVersion(e.metadata, feedConfig.Name, window.Version, e.now()); err != nil {
		return result.failed(err)
	}

	result.State = StateUpdated
	return result
}

// SelectiveResync replaces cached events starting at or after timeMin when
// the remote version differs from lastKnownGood. Fetched events that start
// before timeMin or have no start are dropped, since the cursor delete
// cannot remove them on the next run.
func (e *EventEngine) SelectiveResync(ctx context.Context, feedConfig *feed.Config, lastKnownGood string, timeMin time.Time) Result {
	result := Result{Feed: feedConfig.Name, Mode: ModeSelective}

	version, err := e.gate.ProbeEvents(ctx, feedConfig)
	if err != nil {
		return result.failed(err)
	}

	if version == lastKnownGood {
		result.State = StateNoChange
		result.Version = version
		return result
	}

	window, err := e.fetchWindow(ctx, feedConfig, &timeMin)
	if err != nil {
		return result.failed(err)
	}

	result.Version = window.Version
	result.Fetched = len(window.Events)

	events := startingFrom(window.Events, timeMin)
	result.Dropped = len(window.Events) - len(events)

	deleted, err := e.cache.ReplaceFrom(feedConfig.Name, timeMin, events)
	if err != nil {
		return result.failed(fmt.Errorf("%w: %w", ErrReconcileFailed, err))
	}
	result.Deleted = deleted
	result.Inserted = len(events)

	if deleted != len(events) {
		result.Inconsistency = &Inconsistency{
			From:     timeMin,
			Deleted:  deleted,
			Inserted: len(events),
		}
		slog.Warn("Event count changed across selective resync",
			"feed", feedConfig.Name,
			"from", feed.FormatCursor(timeMin),
			"deleted", deleted,
			"inserted", len(events))
	}

	if err := writeVersion(e.metadata, feedConfig.Name, window.Version, e.now()); err != nil {
		return result.failed(err)
	}

	result.State = StateUpdated
	return result
}

func (e *EventEngine) fetchWindow(ctx context.Context, feedConfig *feed.Config, timeMin *time.Time) (feed.EventWindow, error) {
	root, err := fetch(ctx, e.fetcher, feedConfig, feed.EventWindowURL(feedConfig, timeMin))
	if err != nil {
		return feed.EventWindow{}, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}

	window, err := e.parser.EventWindow(root)
	if err != nil {
		return feed.EventWindow{}, fmt.Errorf("%w: %w", ErrParseFailed, err)
	}

	return window, nil
}

func startingFrom(events []feed.Event, from time.Time) []feed.Event {
	kept := make([]feed.Event, 0, len(events))
	for _, event := range events {
		if event.StartAt == nil || event.StartAt.Before(from) {
			continue
		}
		kept = append(kept, event)
	}
	return kept
}
