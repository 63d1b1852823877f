package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/feed-sync/app/feed"
)

// PostEngine keeps the cached posts of a feed in step with the remote blog.
type PostEngine struct {
	gate       *Gate
	fetcher    Fetcher
	parser     *feed.Parser
	cache      PostCache
	metadata   MetadataStore
	classifier Classifier
	now        func() time.Time
}

func NewPostEngine(gate *Gate, fetcher Fetcher, parser *feed.Parser, cache PostCache, metadata MetadataStore, classifier Classifier) *PostEngine {
	return &PostEngine{
		gate:       gate,
		fetcher:    fetcher,
		parser:     parser,
		cache:      cache,
		metadata:   metadata,
		classifier: classifier,
		now:        time.Now,
	}
}

// Sync probes the feed and runs FullSync only when the remote version
// differs from lastKnownGood.
func (e *PostEngine) Sync(ctx context.Context, feedConfig *feed.Config, lastKnownGood string) Result {
	result := Result{Feed: feedConfig.Name, Mode: ModeFull}

	info, err := e.gate.ProbePosts(ctx, feedConfig)
	if err != nil {
		return result.failed(err)
	}

	if info.Version == lastKnownGood {
		result.State = StateNoChange
		result.Version = info.Version
		return result
	}

	return e.FullSync(ctx, feedConfig, lastKnownGood)
}

// FullSync fetches the newest window and replaces the cached posts with it,
// unless the fetched version equals lastKnownGood. The version metadata is
// advanced after every successful fetch.
func (e *PostEngine) FullSync(ctx context.Context, feedConfig *feed.Config, lastKnownGood string) Result {
	result := Result{Feed: feedConfig.Name, Mode: ModeFull}

	window, err := e.fetchWindow(ctx, feedConfig, nil)
	if err != nil {
		return result.failed(err)
	}

	result.Version = window.Version
	result.Fetched = len(window.Entries)
	result.Dropped = window.Skipped

	if window.Version != lastKnownGood {
		posts := e.classify(window.Entries)

		previous, err := e.cache.Count(feedConfig.Name)
		if err != nil {
			return result.failed(fmt.Errorf("%w: %w", ErrReconcileFailed, err))
		}

		if err := e.cache.ReplaceAll(feedConfig.Name, posts); err != nil {
			return result.failed(fmt.Errorf("%w: %w", ErrReconcileFailed, err))
		}

		result.Deleted = previous
		result.Inserted = len(posts)
	} else {
		slog.Debug("Fetched content matches cache, keeping posts", "feed", feedConfig.Name, "version", window.Version)
	}

	if err := writePostVersion(e.metadata, feedConfig.Name, lastKnownGood, window.Version, e.now()); err != nil {
		return result.failed(err)
	}

	result.State = StateUpdated
	return result
}

// Backfill appends the page of posts published strictly before the oldest
// cached post. Nothing is fetched unless the remote feed holds more posts
// than the cache. lastKnownGood is the stored version the run started from.
func (e *PostEngine) Backfill(ctx context.Context, feedConfig *feed.Config, lastKnownGood string) Result {
	result := Result{Feed: feedConfig.Name, Mode: ModeBackfill}

	info, err := e.gate.ProbePosts(ctx, feedConfig)
	if err != nil {
		return result.failed(err)
	}

	cached, err := e.cache.Count(feedConfig.Name)
	if err != nil {
		return result.failed(fmt.Errorf("%w: %w", ErrReconcileFailed, err))
	}

	if info.TotalResults <= cached {
		result.State = StateNoChange
		result.Version = info.Version
		return result
	}

	oldest, err := e.cache.OldestPublishedAt(feedConfig.Name, "")
	if err != nil {
		return result.failed(fmt.Errorf("%w: %w", ErrReconcileFailed, err))
	}

	window, err := e.fetchWindow(ctx, feedConfig, oldest)
	if err != nil {
		return result.failed(err)
	}

	result.Version = window.Version
	result.Fetched = len(window.Entries)

	entries := olderThan(window.Entries, oldest)
	result.Dropped = window.Skipped + len(window.Entries) - len(entries)

	posts := e.classify(entries)
	if err := e.cache.InsertMany(feedConfig.Name, posts); err != nil {
		return result.failed(fmt.Errorf("%w: %w", ErrReconcileFailed, err))
	}
	result.Inserted = len(posts)

	if err := writePostVersion(e.metadata, feedConfig.Name, lastKnownGood, window.Version, e.now()); err != nil {
		return result.failed(err)
	}

	result.State = StateUpdated
	return result
}

func (e *PostEngine) fetchWindow(ctx context.Context, feedConfig *feed.Config, publishedMax *time.Time) (feed.PostWindow, error) {
	root, err := fetch(ctx, e.fetcher, feedConfig, feed.PostWindowURL(feedConfig, publishedMax))
	if err != nil {
		return feed.PostWindow{}, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}

	window, err := e.parser.PostWindow(root)
	if err != nil {
		return feed.PostWindow{}, fmt.Errorf("%w: %w", ErrParseFailed, err)
	}

	return window, nil
}

func (e *PostEngine) classify(entries []feed.PostEntry) []feed.Post {
	posts := make([]feed.Post, 0, len(entries))
	for _, entry := range entries {
		classification := e.classifier.Classify(entry.Categories, entry.Authors)
		posts = append(posts, feed.Post{
			PublishedAt: entry.PublishedAt,
			Title:       entry.Title,
			BodyHTML:    entry.BodyHTML,
			Excerpt:     entry.Excerpt,
			Tags:        classification.Tags,
			LeadIcon:    classification.LeadIcon,
			URL:         entry.URL,
		})
	}
	return posts
}

// olderThan keeps entries published strictly before cursor, dropping
// repeats of the same (published, url) pair. A nil cursor keeps all.
func olderThan(entries []feed.PostEntry, cursor *time.Time) []feed.PostEntry {
	type key struct {
		publishedAt int64
		url         string
	}

	seen := make(map[key]struct{}, len(entries))
	kept := make([]feed.PostEntry, 0, len(entries))
	for _, entry := range entries {
		if cursor != nil && !entry.PublishedAt.Before(*cursor) {
			continue
		}
		k := key{publishedAt: entry.PublishedAt.UnixMilli(), url: entry.URL}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		kept = append(kept, entry)
	}
	return kept
}
