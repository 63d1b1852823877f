package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/lysyi3m/feed-sync/app/feed"
)

type Request struct {
	Mode    Mode
	TimeMin *time.Time // selective resync cursor; start of today when nil
}

// Orchestrator runs syncs on demand. At most one sync per feed is in
// flight; concurrent callers for the same feed share its result.
type Orchestrator struct {
	configs  ConfigSource
	posts    *PostEngine
	events   *EventEngine
	metadata MetadataStore
	recorder Recorder
	location *time.Location
	now      func() time.Time

	group singleflight.Group

	mu   sync.RWMutex
	last map[string]Result
}

func NewOrchestrator(configs ConfigSource, posts *PostEngine, events *EventEngine, metadata MetadataStore, recorder Recorder, location *time.Location) *Orchestrator {
	if location == nil {
		location = time.Local
	}
	return &Orchestrator{
		configs:  configs,
		posts:    posts,
		events:   events,
		metadata: metadata,
		recorder: recorder,
		location: location,
		now:      time.Now,
		last:     make(map[string]Result),
	}
}

// DefaultMode is the steady-state mode of a feed: gated full sync for
// posts and selective resync for events.
func DefaultMode(feedConfig *feed.Config) Mode {
	if feedConfig.IsEvents() {
		return ModeSelective
	}
	return ModeFull
}

// Sync runs one sync of feedName. Once started, the run is not cancelled
// by ctx; a caller whose ctx ends gets a failed result while the run
// completes in the background. A caller that joins a run of another mode
// gets ErrSyncInProgress instead of that run's result.
func (o *Orchestrator) Sync(ctx context.Context, feedName string, req Request) Result {
	ch := o.group.DoChan(feedName, func() (any, error) {
		return o.run(context.WithoutCancel(ctx), feedName, req), nil
	})

	select {
	case res := <-ch:
		result := res.Val.(Result)
		if req.Mode != "" && result.Mode != req.Mode {
			slog.Debug("Sync of another mode was in flight", "feed", feedName, "requested", req.Mode, "running", result.Mode)
			return Result{Feed: feedName, Mode: req.Mode, State: StateFailed,
				Err: fmt.Errorf("%w: %s sync of %s is running", ErrSyncInProgress, result.Mode, feedName)}
		}
		if res.Shared {
			slog.Debug("Joined in-flight sync", "feed", feedName, "mode", result.Mode)
		}
		return result
	case <-ctx.Done():
		return Result{Feed: feedName, Mode: req.Mode, State: StateFailed, Err: ctx.Err()}
	}
}

// LastResult returns the most recent finished result for feedName.
func (o *Orchestrator) LastResult(feedName string) (Result, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	result, ok := o.last[feedName]
	return result, ok
}

func (o *Orchestrator) run(ctx context.Context, feedName string, req Request) Result {
	start := time.Now()

	result := o.dispatch(ctx, feedName, req)
	duration := time.Since(start)

	o.mu.Lock()
	o.last[feedName] = result
	o.mu.Unlock()

	if o.recorder != nil {
		o.recorder.ObserveSync(result, duration)
	}

	if result.Err != nil {
		slog.Warn("Sync failed",
			"feed", result.Feed,
			"mode", result.Mode,
			"state", result.State,
			"duration", duration,
			"error", result.Err)
		return result
	}

	slog.Info("Sync completed",
		"feed", result.Feed,
		"mode", result.Mode,
		"state", result.State,
		"version", result.Version,
		"fetched", result.Fetched,
		"inserted", result.Inserted,
		"deleted", result.Deleted,
		"dropped", result.Dropped,
		"inconsistent", result.Inconsistency != nil,
		"duration", duration)

	return result
}

func (o *Orchestrator) dispatch(ctx context.Context, feedName string, req Request) Result {
	result := Result{Feed: feedName, Mode: req.Mode}

	feedConfig, err := o.configs.GetConfig(feedName)
	if err != nil {
		return result.failed(fmt.Errorf("%w: %w", ErrUnknownFeed, err))
	}

	mode := req.Mode
	if mode == "" {
		mode = DefaultMode(feedConfig)
	}
	result.Mode = mode

	lastKnownGood, err := o.metadata.Get(VersionKey(feedName), "")
	if err != nil {
		return result.failed(fmt.Errorf("failed to read stored version: %w", err))
	}

	switch {
	case feedConfig.IsPosts() && mode == ModeFull:
		return o.posts.Sync(ctx, feedConfig, lastKnownGood)
	case feedConfig.IsPosts() && mode == ModeBackfill:
		return o.posts.Backfill(ctx, feedConfig, lastKnownGood)
	case feedConfig.IsEvents() && mode == ModeFull:
		return o.events.FullResync(ctx, feedConfig)
	case feedConfig.IsEvents() && mode == ModeSelective:
		timeMin := feed.StartOfDay(o.now().In(o.location))
		if req.TimeMin != nil {
			timeMin = *req.TimeMin
		}
		return o.events.SelectiveResync(ctx, feedConfig, lastKnownGood, timeMin)
	}

	return result.failed(fmt.Errorf("%w: %s for %s feed", ErrUnsupportedMode, mode, feedConfig.Type))
}

// IsTransient reports whether a failed result may succeed on retry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrProbeFailed) || errors.Is(err, ErrFetchFailed) ||
		errors.Is(err, ErrReconcileFailed) || errors.Is(err, ErrMetadataFailed) ||
		errors.Is(err, ErrSyncInProgress)
}
