package tasks

import (
	"context"
	"errors"
	"testing"

	"github.com/lysyi3m/feed-sync/app/syncer"
	"github.com/lysyi3m/feed-sync/app/tags"
)

func TestRefreshTagListTaskInvalidatesPostFeeds(t *testing.T) {
	metadata := newMemoryMetadata()
	metadata.values[syncer.VersionKey("events")] = "events-v1"
	metadata.values[syncer.VersionKey("posts")] = "posts-v1"
	recorder := &refreshRecorder{}

	task := NewRefreshTagListTask(&fakeRefresher{version: "v2", changed: true}, testConfigs(), metadata, recorder)
	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	for _, name := range []string{"posts", "bulletin"} {
		if got := metadata.values[syncer.VersionKey(name)]; got != syncer.VersionUpdateRequired {
			t.Errorf("Expected %s version %q, got %q", name, syncer.VersionUpdateRequired, got)
		}
	}
	if got := metadata.values[syncer.VersionKey("events")]; got != "events-v1" {
		t.Errorf("Expected events version untouched, got %q", got)
	}
	if got := metadata.values[tags.VersionKey]; got != "v2" {
		t.Errorf("Expected tag list version %q, got %q", "v2", got)
	}
	if len(recorder.records) != 1 || !recorder.records[0].Changed {
		t.Errorf("Expected one changed refresh recorded, got %v", recorder.records)
	}
}

func TestRefreshTagListTaskUnchanged(t *testing.T) {
	metadata := newMemoryMetadata()
	metadata.values[syncer.VersionKey("posts")] = "posts-v1"

	task := NewRefreshTagListTask(&fakeRefresher{version: "v1"}, testConfigs(), metadata, nil)
	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if got := metadata.values[syncer.VersionKey("posts")]; got != "posts-v1" {
		t.Errorf("Expected posts version untouched, got %q", got)
	}
}

func TestRefreshTagListTaskDownloadFailure(t *testing.T) {
	recorder := &refreshRecorder{}
	task := NewRefreshTagListTask(&fakeRefresher{err: errors.New("offline")}, testConfigs(), newMemoryMetadata(), recorder)

	if err := task.Execute(context.Background()); err == nil {
		t.Fatal("Expected refresh error")
	}
	if len(recorder.records) != 1 || recorder.records[0].Err == nil {
		t.Errorf("Expected failed refresh recorded, got %v", recorder.records)
	}
}

func TestRefreshTagListTaskRetriesInvalidation(t *testing.T) {
	refresher := &fakeRefresher{version: "v2", changed: true}
	metadata := newMemoryMetadata()
	metadata.failPut = true

	task := NewRefreshTagListTask(refresher, testConfigs(), metadata, nil)
	if err := task.Execute(context.Background()); err == nil {
		t.Fatal("Expected invalidation error")
	}
	if _, ok := metadata.values[tags.VersionKey]; ok {
		t.Error("Expected tag list version not stored before invalidation")
	}

	// The retry invalidates without refreshing again.
	metadata.failPut = false

	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Expected retry to succeed, got %v", err)
	}
	if refresher.Calls() != 1 {
		t.Errorf("Expected a single refresh, got %d", refresher.Calls())
	}
	if got := metadata.values[syncer.VersionKey("posts")]; got != syncer.VersionUpdateRequired {
		t.Errorf("Expected posts version %q, got %q", syncer.VersionUpdateRequired, got)
	}
	if got := metadata.values[tags.VersionKey]; got != "v2" {
		t.Errorf("Expected tag list version %q, got %q", "v2", got)
	}
}

func TestRefreshTagListTaskFailedInvalidationIsSeenAgain(t *testing.T) {
	metadata := newMemoryMetadata()
	metadata.values[syncer.VersionKey("posts")] = "posts-v1"
	metadata.failPut = true

	refresher := &fakeRefresher{version: "v2", changed: true}
	first := NewRefreshTagListTask(refresher, testConfigs(), metadata, nil)
	if err := first.Execute(context.Background()); err == nil {
		t.Fatal("Expected invalidation error")
	}

	// A later scheduled refresh still reports the change because the tag
	// list version was never stored.
	metadata.failPut = false
	next := NewRefreshTagListTask(refresher, testConfigs(), metadata, nil)
	if err := next.Execute(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if got := metadata.values[syncer.VersionKey("posts")]; got != syncer.VersionUpdateRequired {
		t.Errorf("Expected posts version %q, got %q", syncer.VersionUpdateRequired, got)
	}
}
