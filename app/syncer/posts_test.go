package syncer

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/feed-sync/app/feed"
)

func frontRoute(version string, total int, entries ...testEntry) func(u *url.URL) (string, error) {
	return func(u *url.URL) (string, error) {
		if isPostProbe(u) {
			return postFeedJSON(version, total), nil
		}
		return postFeedJSON(version, total, entries...), nil
	}
}

func TestPostSyncVersionGatingIsIdempotent(t *testing.T) {
	h := newHarness(frontRoute("v1", 2,
		testEntry{published: day(2, 9), url: "http://blog/2", categories: []string{"sports"}},
		testEntry{published: day(1, 9), url: "http://blog/1"},
	))
	ctx := context.Background()

	first := h.orch.Sync(ctx, "posts", Request{Mode: ModeFull})
	require.NoError(t, first.Err)
	require.Equal(t, StateUpdated, first.State)
	require.Equal(t, 2, first.Inserted)
	require.Equal(t, "v1", h.metadata.get("posts-version"))
	require.Equal(t, "2015-01-02T15:30:00.000Z", h.metadata.get("posts-last-sync-time"))

	mutations := h.posts.mutations
	puts := h.metadata.puts
	windowFetches := h.fetcher.count(isPostWindow)

	second := h.orch.Sync(ctx, "posts", Request{Mode: ModeFull})
	require.NoError(t, second.Err)
	require.Equal(t, StateNoChange, second.State)
	require.Equal(t, first.Version, second.Version)

	require.Equal(t, mutations, h.posts.mutations)
	require.Equal(t, puts, h.metadata.puts)
	require.Equal(t, windowFetches, h.fetcher.count(isPostWindow))
	require.Equal(t, 2, h.fetcher.count(isPostProbe))
}

func TestPostSyncClassifiesPosts(t *testing.T) {
	h := newHarness(frontRoute("v1", 2,
		testEntry{published: day(2, 9), url: "http://blog/2", categories: []string{"sports"}},
		testEntry{published: day(1, 9), url: "http://blog/1"},
	))

	result := h.orch.Sync(context.Background(), "posts", Request{})
	require.NoError(t, result.Err)
	require.Equal(t, ModeFull, result.Mode)

	posts := h.posts.snapshot("posts")
	require.Len(t, posts, 2)
	require.Equal(t, []string{"Sports"}, posts[0].Tags)
	require.Equal(t, "sports.png", posts[0].LeadIcon)
	require.Equal(t, []string{}, posts[1].Tags)
	require.Equal(t, "no image", posts[1].LeadIcon)
	require.Equal(t, "http://blog/2", posts[0].Excerpt)
}

func TestPostFullSyncFailureLeavesCacheUntouched(t *testing.T) {
	h := newHarness(frontRoute("v1", 1, testEntry{published: day(1, 9), url: "http://blog/1"}))
	ctx := context.Background()

	require.NoError(t, h.orch.Sync(ctx, "posts", Request{Mode: ModeFull}).Err)
	before := h.posts.snapshot("posts")
	metadataBefore := map[string]string{
		"posts-version":        h.metadata.get("posts-version"),
		"posts-last-sync-time": h.metadata.get("posts-last-sync-time"),
	}

	h.now = h.now.Add(time.Hour)
	h.setRoute(func(u *url.URL) (string, error) {
		if isPostProbe(u) {
			return postFeedJSON("v2", 2), nil
		}
		return "", errOffline
	})

	result := h.orch.Sync(ctx, "posts", Request{Mode: ModeFull})
	require.Equal(t, StateFailed, result.State)
	require.True(t, errors.Is(result.Err, ErrFetchFailed))
	require.True(t, errors.Is(result.Err, errOffline))

	if diff := cmp.Diff(before, h.posts.snapshot("posts")); diff != "" {
		t.Errorf("cache changed after failed fetch (-before +after):\n%s", diff)
	}
	require.Equal(t, metadataBefore["posts-version"], h.metadata.get("posts-version"))
	require.Equal(t, metadataBefore["posts-last-sync-time"], h.metadata.get("posts-last-sync-time"))
}

func TestPostSyncProbeFailureSkipsCycle(t *testing.T) {
	h := newHarness(func(u *url.URL) (string, error) {
		return "", &feed.HTTPError{StatusCode: 503, URL: u.String()}
	})

	result := h.orch.Sync(context.Background(), "posts", Request{Mode: ModeFull})
	require.Equal(t, StateFailed, result.State)
	require.True(t, errors.Is(result.Err, ErrProbeFailed))

	var httpErr *feed.HTTPError
	require.True(t, errors.As(result.Err, &httpErr))
	require.Equal(t, 0, h.fetcher.count(isPostWindow))
	require.Equal(t, 0, h.metadata.puts)
}

func TestPostSyncReconcileFailureKeepsMetadata(t *testing.T) {
	h := newHarness(frontRoute("v1", 1, testEntry{published: day(1, 9), url: "http://blog/1"}))
	h.posts.replaceErr = errors.New("disk full")

	result := h.orch.Sync(context.Background(), "posts", Request{Mode: ModeFull})
	require.True(t, errors.Is(result.Err, ErrReconcileFailed))
	require.Equal(t, "", h.metadata.get("posts-version"))
}

func TestPostSyncMalformedWindowIsParseFailure(t *testing.T) {
	h := newHarness(func(u *url.URL) (string, error) {
		if isPostProbe(u) {
			return postFeedJSON("v1", 1), nil
		}
		return `{"feed": null}`, nil
	})

	result := h.orch.Sync(context.Background(), "posts", Request{Mode: ModeFull})
	require.True(t, errors.Is(result.Err, ErrParseFailed))
	require.Equal(t, 0, h.posts.mutations)
}

func TestPostFullSyncKeepsCacheWhenFetchedVersionIsKnown(t *testing.T) {
	h := newHarness(frontRoute("v1", 1, testEntry{published: day(3, 9), url: "http://blog/3"}))
	engine := h.orch.posts

	require.NoError(t, h.posts.ReplaceAll("posts", []feed.Post{{PublishedAt: day(1, 9), URL: "http://blog/1"}}))
	require.NoError(t, h.metadata.PutMany(map[string]string{"posts-version": "v1"}))
	mutations := h.posts.mutations

	result := engine.FullSync(context.Background(), postsConfig(), "v1")
	require.NoError(t, result.Err)
	require.Equal(t, StateUpdated, result.State)
	require.Equal(t, 0, result.Inserted)
	require.Equal(t, mutations, h.posts.mutations)

	require.Equal(t, "v1", h.metadata.get("posts-version"))
	require.Equal(t, "2015-01-02T15:30:00.000Z", h.metadata.get("posts-last-sync-time"))
}

func TestPostSyncUpdateRequiredForcesReplace(t *testing.T) {
	h := newHarness(frontRoute("v1", 1, testEntry{published: day(3, 9), url: "http://blog/3"}))
	require.NoError(t, h.posts.ReplaceAll("posts", []feed.Post{{PublishedAt: day(1, 9)}, {PublishedAt: day(2, 9)}}))
	require.NoError(t, h.metadata.PutMany(map[string]string{"posts-version": VersionUpdateRequired}))

	result := h.orch.Sync(context.Background(), "posts", Request{Mode: ModeFull})
	require.NoError(t, result.Err)
	require.Equal(t, 2, result.Deleted)
	require.Equal(t, 1, result.Inserted)
	require.Equal(t, []time.Time{day(3, 9)}, publishedTimes(h.posts.snapshot("posts")))
	require.Equal(t, "v1", h.metadata.get("posts-version"))
}

func TestPostSyncKeepsInvalidationMadeDuringRun(t *testing.T) {
	var h *harness
	h = newHarness(func(u *url.URL) (string, error) {
		if isPostProbe(u) {
			return postFeedJSON("v2", 1), nil
		}
		// The tag list changes while the window is being fetched.
		_ = h.metadata.PutMany(map[string]string{"posts-version": VersionUpdateRequired})
		return postFeedJSON("v2", 1, testEntry{published: day(3, 9), url: "http://blog/3"}), nil
	})
	require.NoError(t, h.metadata.PutMany(map[string]string{"posts-version": "v1"}))

	result := h.orch.Sync(context.Background(), "posts", Request{Mode: ModeFull})
	require.NoError(t, result.Err)
	require.Equal(t, StateUpdated, result.State)
	require.Equal(t, VersionUpdateRequired, h.metadata.get("posts-version"))
	require.Equal(t, "", h.metadata.get("posts-last-sync-time"))
}

func TestPostBackfillAppendsOnlyOlderPosts(t *testing.T) {
	cachedOldest := day(3, 9)
	h := newHarness(func(u *url.URL) (string, error) {
		if isPostProbe(u) {
			return postFeedJSON("v1", 10), nil
		}
		return postFeedJSON("v1", 10,
			testEntry{published: cachedOldest, url: "http://blog/3"},
			testEntry{published: day(2, 9), url: "http://blog/2"},
			testEntry{published: day(1, 9), url: "http://blog/1"},
			testEntry{published: day(1, 9), url: "http://blog/1"},
		), nil
	})
	require.NoError(t, h.posts.ReplaceAll("posts", []feed.Post{
		{PublishedAt: day(4, 9), URL: "http://blog/4"},
		{PublishedAt: cachedOldest, URL: "http://blog/3"},
	}))

	result := h.orch.Sync(context.Background(), "posts", Request{Mode: ModeBackfill})
	require.NoError(t, result.Err)
	require.Equal(t, StateUpdated, result.State)
	require.Equal(t, 4, result.Fetched)
	require.Equal(t, 2, result.Inserted)
	require.Equal(t, 2, result.Dropped)

	window := h.fetcher.last(isPostWindow)
	require.NotNil(t, window)
	require.Equal(t, "2015-01-03T09:00:00.000Z", window.Query().Get("published-max"))

	posts := h.posts.snapshot("posts")
	seen := map[string]bool{}
	for _, p := range posts {
		key := feed.FormatCursor(p.PublishedAt) + " " + p.URL
		require.False(t, seen[key], "duplicate post %s", key)
		seen[key] = true
	}
	for _, p := range posts[2:] {
		require.True(t, p.PublishedAt.Before(cachedOldest))
	}
	require.Len(t, posts, 4)
	require.Equal(t, "v1", h.metadata.get("posts-version"))
}

func TestPostBackfillNoOpWhenCacheIsComplete(t *testing.T) {
	h := newHarness(frontRoute("v1", 2))
	require.NoError(t, h.posts.ReplaceAll("posts", []feed.Post{{PublishedAt: day(1, 9)}, {PublishedAt: day(2, 9)}}))

	result := h.orch.Sync(context.Background(), "posts", Request{Mode: ModeBackfill})
	require.NoError(t, result.Err)
	require.Equal(t, StateNoChange, result.State)
	require.Equal(t, 1, h.fetcher.count(isPostProbe))
	require.Equal(t, 0, h.fetcher.count(isPostWindow))
	require.Equal(t, 0, h.metadata.puts)
}

func TestPostBackfillEmptyCacheFetchesWithoutCursor(t *testing.T) {
	h := newHarness(frontRoute("v1", 5, testEntry{published: day(1, 9), url: "http://blog/1"}))

	result := h.orch.Sync(context.Background(), "posts", Request{Mode: ModeBackfill})
	require.NoError(t, result.Err)
	require.Equal(t, 1, result.Inserted)

	window := h.fetcher.last(isPostWindow)
	require.False(t, window.Query().Has("published-max"))
}

func TestOlderThan(t *testing.T) {
	entries := []feed.PostEntry{
		{PublishedAt: day(3, 0), URL: "a"},
		{PublishedAt: day(2, 0), URL: "b"},
		{PublishedAt: day(2, 0), URL: "b"},
		{PublishedAt: day(2, 0), URL: "c"},
	}

	require.Len(t, olderThan(entries, nil), 3)
	require.Len(t, olderThan(entries, ptr(day(3, 0))), 2)
	require.Empty(t, olderThan(entries, ptr(day(1, 0))))
}
