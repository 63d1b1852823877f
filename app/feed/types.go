package feed

import (
	"time"
)

// Feed types

const (
	TypePosts  = "posts"
	TypeEvents = "events"
)

// Post is one cached blog entry. PublishedAt is always set; entries
// without a parsable published date never become a Post.
type Post struct {
	PublishedAt time.Time
	Title       string
	BodyHTML    string
	Excerpt     string
	Tags        []string
	LeadIcon    string
	URL         string
}

// Event is one cached calendar entry. Every field may be absent.
type Event struct {
	Title       *string
	Description *string
	Location    *string
	StartAt     *time.Time
	EndAt       *time.Time
}

// PostInfo is the header probe result of a post feed.
type PostInfo struct {
	Version      string
	TotalResults int
}

// PostWindow is one fetched page of a post feed.
type PostWindow struct {
	Version string
	Entries []PostEntry
	Skipped int // entries dropped for lacking a published date
}

// PostEntry is a parsed post before classification.
type PostEntry struct {
	PublishedAt time.Time
	Title       string
	BodyHTML    string
	Excerpt     string
	URL         string
	Categories  []string
	Authors     []string
}

// EventWindow is one fetched page of a calendar feed.
type EventWindow struct {
	Version string
	Events  []Event
}

// Configuration types

type Config struct {
	Name       string         // Derived from filename (without .yml extension)
	Type       string         `yaml:"type"`
	BlogID     string         `yaml:"blog_id"`
	BaseURL    string         `yaml:"base_url"`
	CalendarID string         `yaml:"calendar_id"`
	APIKey     string         `yaml:"api_key"`
	Title      string         `yaml:"title"`
	Settings   ConfigSettings `yaml:"settings"`
}

type ConfigSettings struct {
	Enabled         bool `yaml:"enabled"`
	RefreshInterval int  `yaml:"refresh_interval"` // seconds
	PageSize        int  `yaml:"page_size"`
	Timeout         int  `yaml:"timeout"` // seconds
}

func (c *Config) IsPosts() bool {
	return c.Type == TypePosts
}

func (c *Config) IsEvents() bool {
	return c.Type == TypeEvents
}

func (c *Config) GetRefreshInterval() time.Duration {
	return time.Duration(c.Settings.RefreshInterval) * time.Second
}

func (c *Config) GetTimeout() time.Duration {
	return time.Duration(c.Settings.Timeout) * time.Second
}
