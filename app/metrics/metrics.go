package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lysyi3m/feed-sync/app/syncer"
)

type Collector struct {
	syncRuns          *prometheus.CounterVec
	syncDuration      *prometheus.HistogramVec
	syncItems         *prometheus.CounterVec
	reconcileMismatch *prometheus.CounterVec
	lastSuccess       *prometheus.GaugeVec
	tagListRefresh    *prometheus.CounterVec
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		syncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedsync_sync_runs_total",
			Help: "Finished sync runs by feed, mode and terminal state.",
		}, []string{"feed", "mode", "state"}),
		syncDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "feedsync_sync_duration_seconds",
			Help:    "Duration of sync runs.",
			Buckets: prometheus.DefBuckets,
		}, []string{"feed", "mode"}),
		syncItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedsync_sync_items_total",
			Help: "Cached items changed by sync runs, by operation.",
		}, []string{"feed", "op"}),
		reconcileMismatch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedsync_reconcile_mismatch_total",
			Help: "Selective resyncs that deleted a different number of events than they inserted.",
		}, []string{"feed"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "feedsync_last_success_timestamp_seconds",
			Help: "Unix time of the last successful sync run.",
		}, []string{"feed"}),
		tagListRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedsync_tag_list_refresh_total",
			Help: "Tag list refresh attempts by outcome.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		c.syncRuns,
		c.syncDuration,
		c.syncItems,
		c.reconcileMismatch,
		c.lastSuccess,
		c.tagListRefresh,
	)

	return c
}

// ObserveSync records one finished sync run.
func (c *Collector) ObserveSync(result syncer.Result, duration time.Duration) {
	mode := string(result.Mode)
	c.syncRuns.WithLabelValues(result.Feed, mode, string(result.State)).Inc()
	c.syncDuration.WithLabelValues(result.Feed, mode).Observe(duration.Seconds())

	if result.Err != nil {
		return
	}

	c.syncItems.WithLabelValues(result.Feed, "inserted").Add(float64(result.Inserted))
	c.syncItems.WithLabelValues(result.Feed, "deleted").Add(float64(result.Deleted))
	c.syncItems.WithLabelValues(result.Feed, "dropped").Add(float64(result.Dropped))
	c.lastSuccess.WithLabelValues(result.Feed).SetToCurrentTime()

	if result.Inconsistency != nil {
		c.reconcileMismatch.WithLabelValues(result.Feed).Inc()
	}
}

// ObserveTagListRefresh records a tag list refresh: "changed", "unchanged" or "failed".
func (c *Collector) ObserveTagListRefresh(changed bool, err error) {
	switch {
	case err != nil:
		c.tagListRefresh.WithLabelValues("failed").Inc()
	case changed:
		c.tagListRefresh.WithLabelValues("changed").Inc()
	default:
		c.tagListRefresh.WithLabelValues("unchanged").Inc()
	}
}

func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
