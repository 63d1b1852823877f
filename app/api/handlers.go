package api

import (
	"errors"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/feed-sync/app/feed"
	"github.com/lysyi3m/feed-sync/app/syncer"
	"github.com/lysyi3m/feed-sync/app/tasks"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000
)

func NewHandler(deps HandlerDeps) *Handler {
	location := deps.Location
	if location == nil {
		location = time.Local
	}
	return &Handler{
		configs:   deps.Configs,
		posts:     deps.Posts,
		events:    deps.Events,
		metadata:  deps.Metadata,
		tags:      deps.Tags,
		syncer:    deps.Syncer,
		scheduler: deps.Scheduler,
		generator: deps.Generator,
		recorder:  deps.Recorder,
		location:  location,
		now:       time.Now,
	}
}

func (h *Handler) GetFeed(c *gin.Context) {
	feedConfig, ok := h.requireConfig(c, feed.TypePosts, false)
	if !ok {
		return
	}
	name := feedConfig.Name

	limit, err := parseLimit(c.Query("limit"), feedConfig.Settings.PageSize)
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	posts, err := h.posts.List(name, c.Query("tag"), limit)
	if err != nil {
		slog.Error("Database error", "operation", "list_posts", "feed", name, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	rss, err := h.generator.Run(feedConfig, posts)
	if err != nil {
		slog.Error("RSS generation error", "feed", name, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("Content-Type", "application/xml; charset=utf-8")
	c.Header("X-Feed-Items", strconv.Itoa(len(posts)))
	c.Header("X-Feed-Name", name)
	if lastSync, err := h.metadata.Get(syncer.LastSyncKey(name), ""); err == nil && lastSync != "" {
		c.Header("X-Last-Updated", lastSync)
	}

	c.String(http.StatusOK, rss)
}

func (h *Handler) GetPosts(c *gin.Context) {
	feedConfig, ok := h.requireConfig(c, feed.TypePosts, true)
	if !ok {
		return
	}

	limit, err := parseLimit(c.Query("limit"), defaultListLimit)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tag := c.Query("tag")
	posts, err := h.posts.List(feedConfig.Name, tag, limit)
	if err != nil {
		slog.Error("Database error", "operation", "list_posts", "feed", feedConfig.Name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	response := make([]PostResponse, 0, len(posts))
	for _, post := range posts {
		response = append(response, newPostResponse(post))
	}

	c.JSON(http.StatusOK, gin.H{
		"feed":  feedConfig.Name,
		"tag":   tag,
		"posts": response,
		"total": len(response),
	})
}

func (h *Handler) GetEvents(c *gin.Context) {
	feedConfig, ok := h.requireConfig(c, feed.TypeEvents, true)
	if !ok {
		return
	}

	limit, err := parseLimit(c.Query("limit"), defaultListLimit)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var from *time.Time
	if value := c.Query("from"); value != "" {
		t, err := h.parseTime(value)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid from parameter", "details": err.Error()})
			return
		}
		from = &t
	}

	events, err := h.events.List(feedConfig.Name, from, limit)
	if err != nil {
		slog.Error("Database error", "operation", "list_events", "feed", feedConfig.Name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	response := make([]EventResponse, 0, len(events))
	for _, event := range events {
		response = append(response, newEventResponse(event))
	}

	c.JSON(http.StatusOK, gin.H{
		"feed":   feedConfig.Name,
		"events": response,
		"total":  len(response),
	})
}

func (h *Handler) GetTags(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version": h.tags.Version(),
		"tags":    nonNil(h.tags.KnownTagNames()),
	})
}

func (h *Handler) GetSubscribedTags(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"tags": nonNil(h.tags.SubscribedTags(c.QueryArray("tag"))),
	})
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp":             h.now().In(h.location).Format(time.RFC3339),
		"loaded_configurations": h.configs.GetConfigCount(),
		"tag_list_version":      h.tags.Version(),
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	configs := h.configs.GetConfigs()
	feeds := make([]map[string]interface{}, 0, len(configs))

	for _, name := range slices.Sorted(maps.Keys(configs)) {
		feeds = append(feeds, h.feedStats(configs[name]))
	}

	c.JSON(http.StatusOK, gin.H{
		"feeds": feeds,
		"total": len(feeds),
	})
}

func (h *Handler) APIListFeeds(c *gin.Context) {
	configs := h.configs.GetConfigs()
	feeds := make([]map[string]interface{}, 0, len(configs))

	for _, name := range slices.Sorted(maps.Keys(configs)) {
		feedConfig := configs[name]
		feedInfo := h.feedStats(feedConfig)
		feedInfo["title"] = feedConfig.Title
		feedInfo["refresh_interval"] = feedConfig.GetRefreshInterval().String()
		feedInfo["timeout"] = feedConfig.GetTimeout().String()
		feedInfo["page_size"] = feedConfig.Settings.PageSize
		if feedConfig.IsPosts() {
			feedInfo["base_url"] = feedConfig.BaseURL
		} else {
			feedInfo["calendar_id"] = feedConfig.CalendarID
		}
		feeds = append(feeds, feedInfo)
	}

	c.JSON(http.StatusOK, gin.H{
		"feeds": feeds,
		"total": len(feeds),
	})
}

// APISyncFeed runs a sync and reports its result. With async=true the sync
// is queued on the scheduler instead and only the task id is returned.
func (h *Handler) APISyncFeed(c *gin.Context) {
	name := c.Param("name")

	if _, err := h.configs.GetConfig(name); err != nil {
		slog.Error("Feed configuration not found", "feed", name, "error", err)
		c.JSON(http.StatusNotFound, gin.H{"error": "Feed configuration not found"})
		return
	}

	req := syncer.Request{}
	if value := c.Query("mode"); value != "" {
		mode, ok := syncer.ParseMode(value)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid mode", "details": "mode must be full, backfill or selective"})
			return
		}
		req.Mode = mode
	}
	if value := c.Query("time_min"); value != "" {
		t, err := h.parseTime(value)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid time_min parameter", "details": err.Error()})
			return
		}
		req.TimeMin = &t
	}

	if async, _ := strconv.ParseBool(c.Query("async")); async {
		task := tasks.NewSyncFeedTask(name, req, h.syncer)
		if err := h.scheduler.EnqueueTask(task); err != nil {
			slog.Error("Error enqueueing sync task", "feed", name, "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":   "Failed to enqueue sync task",
				"details": err.Error(),
			})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{
			"success": true,
			"task": gin.H{
				"id":   task.ID,
				"type": task.Type,
			},
		})
		return
	}

	result := h.syncer.Sync(c.Request.Context(), name, req)
	c.JSON(syncStatus(result), newSyncResponse(result))
}

func (h *Handler) APIRefreshTagList(c *gin.Context) {
	task := tasks.NewRefreshTagListTask(h.tags, h.configs, h.metadata, h.recorder)
	task.Start()

	if err := task.Execute(c.Request.Context()); err != nil {
		slog.Error("Error refreshing tag list", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "Failed to refresh tag list",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"version": h.tags.Version(),
		"tags":    nonNil(h.tags.KnownTagNames()),
	})
}

// requireConfig resolves the :name route parameter to a feed config of the
// given type and writes a 404 otherwise.
func (h *Handler) requireConfig(c *gin.Context, feedType string, jsonResponse bool) (*feed.Config, bool) {
	name := c.Param("name")

	feedConfig, err := h.configs.GetConfig(name)
	if err == nil && feedConfig.Type != feedType {
		err = errors.New("feed is not of type " + feedType)
	}
	if err != nil {
		slog.Debug("Feed configuration not found", "feed", name, "error", err)
		if jsonResponse {
			c.JSON(http.StatusNotFound, gin.H{"error": "Feed configuration not found"})
		} else {
			c.Status(http.StatusNotFound)
		}
		return nil, false
	}

	return feedConfig, true
}

func (h *Handler) feedStats(feedConfig *feed.Config) map[string]interface{} {
	name := feedConfig.Name
	stats := map[string]interface{}{
		"name":    name,
		"type":    feedConfig.Type,
		"enabled": feedConfig.Settings.Enabled,
	}

	var count int
	var err error
	if feedConfig.IsPosts() {
		count, err = h.posts.Count(name)
	} else {
		count, err = h.events.Count(name)
	}
	if err == nil {
		stats["item_count"] = count
	} else {
		slog.Error("Database error", "operation", "count", "feed", name, "error", err)
	}

	if version, err := h.metadata.Get(syncer.VersionKey(name), ""); err == nil && version != "" {
		stats["version"] = version
	}
	if lastSync, err := h.metadata.Get(syncer.LastSyncKey(name), ""); err == nil && lastSync != "" {
		stats["last_sync_time"] = lastSync
	}
	if result, ok := h.syncer.LastResult(name); ok {
		stats["last_result"] = newSyncResponse(result)
	}

	return stats
}

// parseTime accepts an RFC 3339 timestamp or a local date.
func (h *Handler) parseTime(value string) (time.Time, error) {
	if t, err := feed.ParseTimestamp(value); err == nil {
		return t, nil
	}
	return feed.ParseDate(value, h.location)
}

func parseLimit(value string, defaultLimit int) (int, error) {
	if value == "" {
		return min(max(defaultLimit, 1), maxListLimit), nil
	}
	limit, err := strconv.Atoi(value)
	if err != nil || limit <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	return min(limit, maxListLimit), nil
}

func syncStatus(result syncer.Result) int {
	switch {
	case result.Err == nil:
		return http.StatusOK
	case errors.Is(result.Err, syncer.ErrUnknownFeed):
		return http.StatusNotFound
	case errors.Is(result.Err, syncer.ErrUnsupportedMode):
		return http.StatusBadRequest
	case errors.Is(result.Err, syncer.ErrSyncInProgress):
		return http.StatusConflict
	case syncer.IsTransient(result.Err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
