package database

import (
	"time"

	"github.com/lysyi3m/feed-sync/app/feed"
)

type PostRepository interface {
	ReplaceAll(feedName string, posts []feed.Post) error
	InsertMany(feedName string, posts []feed.Post) error
	DeleteAll(feedName string) error
	Count(feedName string) (int, error)
	OldestPublishedAt(feedName, tag string) (*time.Time, error)
	List(feedName, tag string, limit int) ([]feed.Post, error)
}

type EventRepository interface {
	ReplaceAll(feedName string, events []feed.Event) error
	ReplaceFrom(feedName string, from time.Time, events []feed.Event) (int, error)
	DeleteFrom(feedName string, from time.Time) (int, error)
	InsertMany(feedName string, events []feed.Event) error
	DeleteAll(feedName string) error
	Count(feedName string) (int, error)
	List(feedName string, from *time.Time, limit int) ([]feed.Event, error)
}

type MetadataRepository interface {
	Get(key, defaultValue string) (string, error)
	Put(key, value string) error
	PutMany(values map[string]string) error
	PutManyIf(key, expected string, values map[string]string) (bool, error)
}

var (
	_ PostRepository     = (*PostStore)(nil)
	_ EventRepository    = (*EventStore)(nil)
	_ MetadataRepository = (*MetadataStore)(nil)
)
