package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/lysyi3m/feed-sync/app/feed"
	"github.com/lysyi3m/feed-sync/app/tags"
)

var errOffline = errors.New("offline")

type fakeFetcher struct {
	mu    sync.Mutex
	calls []*url.URL
	route func(u *url.URL) (string, error)
}

func (f *fakeFetcher) FetchJSON(ctx context.Context, raw string) (gjson.Result, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return gjson.Result{}, err
	}

	f.mu.Lock()
	f.calls = append(f.calls, u)
	route := f.route
	f.mu.Unlock()

	body, err := route(u)
	if err != nil {
		return gjson.Result{}, err
	}
	return gjson.Parse(body), nil
}

func (f *fakeFetcher) count(match func(u *url.URL) bool) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, u := range f.calls {
		if match(u) {
			n++
		}
	}
	return n
}

func (f *fakeFetcher) last(match func(u *url.URL) bool) *url.URL {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := len(f.calls) - 1; i >= 0; i-- {
		if match(f.calls[i]) {
			return f.calls[i]
		}
	}
	return nil
}

func isPostProbe(u *url.URL) bool {
	return u.Query().Get("max-results") == "0"
}

func isPostWindow(u *url.URL) bool {
	return u.Query().Has("max-results") && !isPostProbe(u)
}

func isEventProbe(u *url.URL) bool {
	return u.Query().Has("timeMax")
}

func isEventWindow(u *url.URL) bool {
	return u.Query().Get("singleEvents") == "true"
}

type testEntry struct {
	published  time.Time
	url        string
	categories []string
}

func postFeedJSON(version string, total int, entries ...testEntry) string {
	items := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		categories := make([]map[string]any, 0, len(e.categories))
		for _, c := range e.categories {
			categories = append(categories, map[string]any{"term": c})
		}
		items = append(items, map[string]any{
			"published": map[string]any{"$t": e.published.Format(time.RFC3339Nano)},
			"title":     map[string]any{"$t": e.url},
			"content":   map[string]any{"$t": "<p>" + e.url + "</p>"},
			"link":      []map[string]any{{"rel": "alternate", "href": e.url}},
			"category":  categories,
		})
	}

	doc := map[string]any{
		"feed": map[string]any{
			"updated":                 map[string]any{"$t": version},
			"openSearch$totalResults": map[string]any{"$t": strconv.Itoa(total)},
			"entry":                   items,
		},
	}
	data, _ := json.Marshal(doc)
	return string(data)
}

type testEvent struct {
	summary string
	start   *time.Time
}

func calendarJSON(version string, events ...testEvent) string {
	items := make([]map[string]any, 0, len(events))
	for _, e := range events {
		item := map[string]any{"summary": e.summary}
		if e.start != nil {
			item["start"] = map[string]any{"dateTime": e.start.Format(time.RFC3339)}
			item["end"] = map[string]any{"dateTime": e.start.Add(time.Hour).Format(time.RFC3339)}
		}
		items = append(items, item)
	}
	data, _ := json.Marshal(map[string]any{"updated": version, "items": items})
	return string(data)
}

type memoryPosts struct {
	mu         sync.Mutex
	posts      map[string][]feed.Post
	mutations  int
	replaceErr error
	insertErr  error
}

func newMemoryPosts() *memoryPosts {
	return &memoryPosts{posts: map[string][]feed.Post{}}
}

func (m *memoryPosts) ReplaceAll(feedName string, posts []feed.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.replaceErr != nil {
		return m.replaceErr
	}
	m.mutations++
	m.posts[feedName] = append([]feed.Post(nil), posts...)
	return nil
}

func (m *memoryPosts) InsertMany(feedName string, posts []feed.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	m.mutations++
	m.posts[feedName] = append(m.posts[feedName], posts...)
	return nil
}

func (m *memoryPosts) Count(feedName string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.posts[feedName]), nil
}

func (m *memoryPosts) OldestPublishedAt(feedName, tag string) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var oldest *time.Time
	for _, p := range m.posts[feedName] {
		if oldest == nil || p.PublishedAt.Before(*oldest) {
			t := p.PublishedAt
			oldest = &t
		}
	}
	return oldest, nil
}

func (m *memoryPosts) snapshot(feedName string) []feed.Post {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]feed.Post(nil), m.posts[feedName]...)
}

type memoryEvents struct {
	mu     sync.Mutex
	events map[string][]feed.Event
	calls  int
}

func newMemoryEvents() *memoryEvents {
	return &memoryEvents{events: map[string][]feed.Event{}}
}

func (m *memoryEvents) ReplaceAll(feedName string, events []feed.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.events[feedName] = append([]feed.Event(nil), events...)
	return nil
}

func (m *memoryEvents) ReplaceFrom(feedName string, from time.Time, events []feed.Event) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	kept := []feed.Event{}
	deleted := 0
	for _, e := range m.events[feedName] {
		if e.StartAt != nil && !e.StartAt.Before(from) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	m.events[feedName] = append(kept, events...)
	return deleted, nil
}

func (m *memoryEvents) Count(feedName string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events[feedName]), nil
}

type memoryMetadata struct {
	mu     sync.Mutex
	values map[string]string
	puts   int
	putErr error
}

func newMemoryMetadata() *memoryMetadata {
	return &memoryMetadata{values: map[string]string{}}
}

func (m *memoryMetadata) Get(key, defaultValue string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.values[key]; ok {
		return v, nil
	}
	return defaultValue, nil
}

func (m *memoryMetadata) PutMany(values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.puts++
	for k, v := range values {
		m.values[k] = v
	}
	return nil
}

func (m *memoryMetadata) PutManyIf(key, expected string, values map[string]string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return false, m.putErr
	}
	if m.values[key] != expected {
		return false, nil
	}
	m.puts++
	for k, v := range values {
		m.values[k] = v
	}
	return true, nil
}

func (m *memoryMetadata) get(key string) string {
	v, _ := m.Get(key, "")
	return v
}

type criteriaClassifier struct {
	criteria []tags.Criterion
}

func (c criteriaClassifier) Classify(categories, authors []string) tags.Classification {
	return tags.Classify(categories, authors, c.criteria)
}

type configMap map[string]*feed.Config

func (c configMap) GetConfig(feedName string) (*feed.Config, error) {
	if cfg, ok := c[feedName]; ok {
		return cfg, nil
	}
	return nil, errors.New("feed config not found")
}

type recordingRecorder struct {
	mu      sync.Mutex
	results []Result
}

func (r *recordingRecorder) ObserveSync(result Result, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
}

func postsConfig() *feed.Config {
	return &feed.Config{
		Name:     "posts",
		Type:     feed.TypePosts,
		BaseURL:  "http://blog.example.com",
		Settings: feed.ConfigSettings{PageSize: 25, Timeout: 5},
	}
}

func eventsConfig() *feed.Config {
	return &feed.Config{
		Name:       "events",
		Type:       feed.TypeEvents,
		BaseURL:    "http://calendar.example.com",
		CalendarID: "school",
		APIKey:     "key",
		Settings:   feed.ConfigSettings{PageSize: 1000, Timeout: 5},
	}
}

func day(d, hour int) time.Time {
	return time.Date(2015, 1, d, hour, 0, 0, 0, time.UTC)
}

func ptr(t time.Time) *time.Time {
	return &t
}

func publishedTimes(posts []feed.Post) []time.Time {
	times := make([]time.Time, 0, len(posts))
	for _, p := range posts {
		times = append(times, p.PublishedAt)
	}
	sort.Slice(times, func(i, j int) bool { return times[i].After(times[j]) })
	return times
}

type harness struct {
	fetcher  *fakeFetcher
	posts    *memoryPosts
	events   *memoryEvents
	metadata *memoryMetadata
	recorder *recordingRecorder
	orch     *Orchestrator
	now      time.Time
}

func newHarness(route func(u *url.URL) (string, error)) *harness {
	h := &harness{
		fetcher:  &fakeFetcher{route: route},
		posts:    newMemoryPosts(),
		events:   newMemoryEvents(),
		metadata: newMemoryMetadata(),
		recorder: &recordingRecorder{},
		now:      time.Date(2015, 1, 2, 15, 30, 0, 0, time.UTC),
	}

	parser := feed.NewParser(time.UTC)
	gate := NewGate(h.fetcher, parser)
	gate.now = func() time.Time { return h.now }

	classifier := criteriaClassifier{criteria: []tags.Criterion{
		{Name: "Sports", Category: strPtr("sports"), Icon: strPtr("sports.png")},
	}}

	postEngine := NewPostEngine(gate, h.fetcher, parser, h.posts, h.metadata, classifier)
	postEngine.now = func() time.Time { return h.now }
	eventEngine := NewEventEngine(gate, h.fetcher, parser, h.events, h.metadata)
	eventEngine.now = func() time.Time { return h.now }

	configs := configMap{"posts": postsConfig(), "events": eventsConfig()}
	h.orch = NewOrchestrator(configs, postEngine, eventEngine, h.metadata, h.recorder, time.UTC)
	h.orch.now = func() time.Time { return h.now }

	return h
}

func (h *harness) setRoute(route func(u *url.URL) (string, error)) {
	h.fetcher.mu.Lock()
	h.fetcher.route = route
	h.fetcher.mu.Unlock()
}

func strPtr(s string) *string {
	return &s
}
