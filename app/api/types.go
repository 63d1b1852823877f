package api

import (
	"context"
	"time"

	"github.com/lysyi3m/feed-sync/app/feed"
	"github.com/lysyi3m/feed-sync/app/syncer"
	"github.com/lysyi3m/feed-sync/app/tasks"
)

type GeneratorInterface interface {
	Run(feedConfig *feed.Config, posts []feed.Post) (string, error)
}

var _ GeneratorInterface = (*feed.Generator)(nil)

type ConfigSource interface {
	GetConfig(feedName string) (*feed.Config, error)
	GetConfigs() map[string]*feed.Config
	GetEnabledConfigs() map[string]*feed.Config
	GetConfigCount() int
}

type PostReader interface {
	List(feedName, tag string, limit int) ([]feed.Post, error)
	Count(feedName string) (int, error)
}

type EventReader interface {
	List(feedName string, from *time.Time, limit int) ([]feed.Event, error)
	Count(feedName string) (int, error)
}

type TagCatalog interface {
	Refresh(ctx context.Context) (version string, changed bool, err error)
	KnownTagNames() []string
	SubscribedTags(selected []string) []string
	Version() string
}

type FeedSyncer interface {
	Sync(ctx context.Context, feedName string, req syncer.Request) syncer.Result
	LastResult(feedName string) (syncer.Result, bool)
}

type HandlerDeps struct {
	Configs   ConfigSource
	Posts     PostReader
	Events    EventReader
	Metadata  tasks.MetadataStore
	Tags      TagCatalog
	Syncer    FeedSyncer
	Scheduler tasks.TaskSchedulerInterface
	Generator GeneratorInterface
	Recorder  tasks.RefreshRecorder
	Location  *time.Location
}

type Handler struct {
	configs   ConfigSource
	posts     PostReader
	events    EventReader
	metadata  tasks.MetadataStore
	tags      TagCatalog
	syncer    FeedSyncer
	scheduler tasks.TaskSchedulerInterface
	generator GeneratorInterface
	recorder  tasks.RefreshRecorder
	location  *time.Location
	now       func() time.Time
}

type PostResponse struct {
	PublishedAt time.Time `json:"published_at"`
	Title       string    `json:"title"`
	BodyHTML    string    `json:"body_html"`
	Excerpt     string    `json:"excerpt"`
	Tags        []string  `json:"tags"`
	LeadIcon    string    `json:"lead_icon"`
	URL         string    `json:"url"`
}

type EventResponse struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Location    *string    `json:"location"`
	StartAt     *time.Time `json:"start_at"`
	EndAt       *time.Time `json:"end_at"`
}

type InconsistencyResponse struct {
	From     time.Time `json:"from"`
	Deleted  int       `json:"deleted"`
	Inserted int       `json:"inserted"`
}

type SyncResponse struct {
	Feed          string                 `json:"feed"`
	Mode          syncer.Mode            `json:"mode"`
	State         syncer.State           `json:"state"`
	Fetched       int                    `json:"fetched"`
	Inserted      int                    `json:"inserted"`
	Deleted       int                    `json:"deleted"`
	Dropped       int                    `json:"dropped"`
	Version       string                 `json:"version,omitempty"`
	Inconsistency *InconsistencyResponse `json:"inconsistency,omitempty"`
	Error         string                 `json:"error,omitempty"`
}

func newPostResponse(post feed.Post) PostResponse {
	tags := post.Tags
	if tags == nil {
		tags = []string{}
	}
	return PostResponse{
		PublishedAt: post.PublishedAt,
		Title:       post.Title,
		BodyHTML:    post.BodyHTML,
		Excerpt:     post.Excerpt,
		Tags:        tags,
		LeadIcon:    post.LeadIcon,
		URL:         post.URL,
	}
}

func newEventResponse(event feed.Event) EventResponse {
	return EventResponse{
		Title:       event.Title,
		Description: event.Description,
		Location:    event.Location,
		StartAt:     event.StartAt,
		EndAt:       event.EndAt,
	}
}

func newSyncResponse(result syncer.Result) SyncResponse {
	response := SyncResponse{
		Feed:     result.Feed,
		Mode:     result.Mode,
		State:    result.State,
		Fetched:  result.Fetched,
		Inserted: result.Inserted,
		Deleted:  result.Deleted,
		Dropped:  result.Dropped,
		Version:  result.Version,
	}
	if result.Inconsistency != nil {
		response.Inconsistency = &InconsistencyResponse{
			From:     result.Inconsistency.From,
			Deleted:  result.Inconsistency.Deleted,
			Inserted: result.Inconsistency.Inserted,
		}
	}
	if result.Err != nil {
		response.Error = result.Err.Error()
	}
	return response
}
