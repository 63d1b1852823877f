package syncer

import (
	"context"
	"time"

	"github.com/tidwall/gjson"

	"github.com/lysyi3m/feed-sync/app/feed"
	"github.com/lysyi3m/feed-sync/app/tags"
)

type Fetcher interface {
	FetchJSON(ctx context.Context, url string) (gjson.Result, error)
}

type PostCache interface {
	ReplaceAll(feedName string, posts []feed.Post) error
	InsertMany(feedName string, posts []feed.Post) error
	Count(feedName string) (int, error)
	OldestPublishedAt(feedName, tag string) (*time.Time, error)
}

type EventCache interface {
	ReplaceAll(feedName string, events []feed.Event) error
	ReplaceFrom(feedName string, from time.Time, events []feed.Event) (int, error)
	Count(feedName string) (int, error)
}

type MetadataStore interface {
	Get(key, defaultValue string) (string, error)
	PutMany(values map[string]string) error
	PutManyIf(key, expected string, values map[string]string) (bool, error)
}

type Classifier interface {
	Classify(categories, authors []string) tags.Classification
}

type ConfigSource interface {
	GetConfig(feedName string) (*feed.Config, error)
}

// Recorder observes finished sync runs.
type Recorder interface {
	ObserveSync(result Result, duration time.Duration)
}
