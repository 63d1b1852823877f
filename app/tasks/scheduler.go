package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/lysyi3m/feed-sync/app/feed"
	"github.com/lysyi3m/feed-sync/app/syncer"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

const (
	queueSize    = 300
	taskTimeout  = 5 * time.Minute
	maxRetryWait = 30 * time.Second
)

type Options struct {
	WorkerCount     int
	Interval        time.Duration
	TagListInterval time.Duration
}

type Scheduler struct {
	configs         ConfigSource
	syncer          FeedSyncer
	tagList         TagListRefresher
	metadata        MetadataStore
	recorder        RefreshRecorder
	interval        time.Duration
	tagListInterval time.Duration
	workerCount     int
	retryBase       time.Duration
	now             func() time.Time
	lastTagRefresh  time.Time
	// next scheduled sync per feed, owned by the scheduling goroutine
	nextDue         map[string]time.Time
	ctx             context.Context
	cancel          context.CancelFunc
	wg              sync.WaitGroup
	taskQueue       chan TaskInterface
}

func NewScheduler(configs ConfigSource, feedSyncer FeedSyncer, tagList TagListRefresher,
	metadata MetadataStore, recorder RefreshRecorder, opts Options) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		configs:         configs,
		syncer:          feedSyncer,
		tagList:         tagList,
		metadata:        metadata,
		recorder:        recorder,
		interval:        opts.Interval,
		tagListInterval: opts.TagListInterval,
		workerCount:     max(opts.WorkerCount, 1),
		retryBase:       time.Second,
		now:             time.Now,
		nextDue:         make(map[string]time.Time),
		ctx:             ctx,
		cancel:          cancel,
		taskQueue:       make(chan TaskInterface, queueSize),
	}
}

func (s *Scheduler) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.enqueueStartupTasks()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.enqueueTasks()
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	if err := s.ctx.Err(); err != nil {
		return err
	}

	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

// enqueueStartupTasks refreshes the tag list inline, so the first post
// syncs classify with the current criteria, then queues one sync per
// enabled feed. Event feeds without a stored version get a full resync.
func (s *Scheduler) enqueueStartupTasks() {
	s.executeTask(-1, s.newRefreshTagListTask())
	s.lastTagRefresh = s.now()

	feedConfigs := s.configs.GetEnabledConfigs()
	if len(feedConfigs) == 0 {
		slog.Debug("No enabled feed configurations found")
		return
	}

	now := s.now()
	for _, name := range slices.Sorted(maps.Keys(feedConfigs)) {
		feedConfig := feedConfigs[name]

		mode := syncer.ModeFull
		if feedConfig.IsEvents() {
			version, err := s.metadata.Get(syncer.VersionKey(name), "")
			if err != nil {
				slog.Warn("Failed to read stored version", "feed", name, "error", err)
			}
			if version != "" {
				mode = syncer.ModeSelective
			}
		}

		s.enqueueSync(feedConfig, mode, now)
	}
}

func (s *Scheduler) enqueueTasks() {
	now := s.now()

	if s.tagListInterval > 0 && now.Sub(s.lastTagRefresh) >= s.tagListInterval {
		if err := s.EnqueueTask(s.newRefreshTagListTask()); err != nil {
			slog.Warn("Failed to enqueue RefreshTagListTask", "error", err)
		} else {
			s.lastTagRefresh = now
		}
	}

	feedConfigs := s.configs.GetEnabledConfigs()
	if len(feedConfigs) == 0 {
		slog.Debug("No enabled feed configurations found")
		return
	}

	slog.Debug("Processing enabled feed configurations for task scheduling", "count", len(feedConfigs))

	for _, name := range slices.Sorted(maps.Keys(feedConfigs)) {
		feedConfig := feedConfigs[name]

		due, nextSyncAt := s.isDue(feedConfig, now)
		if !due {
			slog.Debug("Feed not due for sync yet", "feed", name, "next_sync_at", nextSyncAt)
			continue
		}

		s.enqueueSync(feedConfig, syncer.DefaultMode(feedConfig), now)
	}
}

// isDue reports whether a refresh interval has passed since the feed was
// last queued and since its last successful sync. The stored sync time only
// advances when content is fetched, so after a restart it is the only guide.
// A missing or unreadable timestamp counts as due.
func (s *Scheduler) isDue(feedConfig *feed.Config, now time.Time) (bool, time.Time) {
	if next, ok := s.nextDue[feedConfig.Name]; ok && now.Before(next) {
		return false, next
	}

	value, err := s.metadata.Get(syncer.LastSyncKey(feedConfig.Name), "")
	if err != nil {
		slog.Warn("Failed to read last sync time", "feed", feedConfig.Name, "error", err)
		return true, now
	}
	if value == "" {
		return true, now
	}

	lastSync, err := time.Parse(feed.CursorLayout, value)
	if err != nil {
		slog.Warn("Invalid last sync time", "feed", feedConfig.Name, "value", value, "error", err)
		return true, now
	}

	nextSyncAt := lastSync.Add(feedConfig.GetRefreshInterval())
	return !now.Before(nextSyncAt), nextSyncAt
}

func (s *Scheduler) enqueueSync(feedConfig *feed.Config, mode syncer.Mode, now time.Time) {
	task := NewSyncFeedTask(feedConfig.Name, syncer.Request{Mode: mode}, s.syncer)
	if err := s.EnqueueTask(task); err != nil {
		slog.Warn("Failed to enqueue SyncFeedTask", "feed", feedConfig.Name, "mode", mode, "error", err)
		return
	}
	s.nextDue[feedConfig.Name] = now.Add(feedConfig.GetRefreshInterval())
}

func (s *Scheduler) newRefreshTagListTask() *RefreshTagListTask {
	return NewRefreshTagListTask(s.tagList, s.configs, s.metadata, s.recorder)
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task := <-s.taskQueue:
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, taskTimeout)
	defer cancel()

	err := task.Execute(taskCtx)
	if err == nil {
		return
	}

	slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "feed", task.GetFeedName(), "retry_count", task.GetRetryCount(), "error", err)

	if !task.CanRetry() {
		slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
		return
	}

	task.IncrementRetryCount()
	retryDelay := s.retryDelay(task.GetRetryCount())

	slog.Warn("Task retry scheduled", "type", string(task.GetType()), "feed", task.GetFeedName(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", retryDelay.String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		timer := time.NewTimer(retryDelay)
		defer timer.Stop()

		select {
		case <-s.ctx.Done():
			slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
		case <-timer.C:
			if retryErr := s.EnqueueTask(task); retryErr != nil {
				slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
			}
		}
	}()
}

// retryDelay doubles per attempt, starting at retryBase and capped at maxRetryWait.
func (s *Scheduler) retryDelay(retryCount int) time.Duration {
	delay := s.retryBase << uint(retryCount-1)
	return min(delay, maxRetryWait)
}
