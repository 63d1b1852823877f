package tasks

import (
	"context"
	"errors"
	"sync"

	"github.com/lysyi3m/feed-sync/app/feed"
	"github.com/lysyi3m/feed-sync/app/syncer"
)

type syncCall struct {
	Feed string
	Mode syncer.Mode
}

type fakeSyncer struct {
	mu     sync.Mutex
	calls  []syncCall
	errs   []error // consumed in order, nil once exhausted
	events *[]string
}

func (f *fakeSyncer) Sync(ctx context.Context, feedName string, req syncer.Request) syncer.Result {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, syncCall{Feed: feedName, Mode: req.Mode})
	if f.events != nil {
		*f.events = append(*f.events, "sync:"+feedName)
	}

	result := syncer.Result{Feed: feedName, Mode: req.Mode, State: syncer.StateUpdated}
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			result.State = syncer.StateFailed
			result.Err = err
		}
	}
	return result
}

func (f *fakeSyncer) Calls() []syncCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]syncCall(nil), f.calls...)
}

type fakeRefresher struct {
	mu      sync.Mutex
	version string
	changed bool
	err     error
	calls   int
	events  *[]string
}

func (f *fakeRefresher) Refresh(ctx context.Context) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.events != nil {
		*f.events = append(*f.events, "refresh")
	}
	if f.err != nil {
		return "", false, f.err
	}
	return f.version, f.changed, nil
}

func (f *fakeRefresher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type memoryMetadata struct {
	mu      sync.Mutex
	values  map[string]string
	failPut bool
}

func newMemoryMetadata() *memoryMetadata {
	return &memoryMetadata{values: make(map[string]string)}
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
	if m.failPut {
		return errors.New("disk full")
	}
	for k, v := range values {
		m.values[k] = v
	}
	return nil
}

type recordedRefresh struct {
	Changed bool
	Err     error
}

type refreshRecorder struct {
	mu      sync.Mutex
	records []recordedRefresh
}

func (r *refreshRecorder) ObserveTagListRefresh(changed bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, recordedRefresh{Changed: changed, Err: err})
}

type staticConfigs map[string]*feed.Config

func (c staticConfigs) GetConfigs() map[string]*feed.Config {
	return c
}

func (c staticConfigs) GetEnabledConfigs() map[string]*feed.Config {
	enabled := make(map[string]*feed.Config)
	for name, feedConfig := range c {
		if feedConfig.Settings.Enabled {
			enabled[name] = feedConfig
		}
	}
	return enabled
}

func testConfigs() staticConfigs {
	return staticConfigs{
		"posts": {
			Name:     "posts",
			Type:     feed.TypePosts,
			Settings: feed.ConfigSettings{Enabled: true, RefreshInterval: 3600},
		},
		"bulletin": {
			Name:     "bulletin",
			Type:     feed.TypePosts,
			Settings: feed.ConfigSettings{Enabled: false, RefreshInterval: 3600},
		},
		"events": {
			Name:     "events",
			Type:     feed.TypeEvents,
			Settings: feed.ConfigSettings{Enabled: true, RefreshInterval: 600},
		},
	}
}
