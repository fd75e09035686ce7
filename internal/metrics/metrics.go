package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "code"},
	)

	PostsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "posts_created_total",
			Help: "Total number of posts created, shares included",
		},
	)

	EngagementTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engagement_actions_total",
			Help: "Engagement actions applied, by counter and direction",
		},
		[]string{"counter", "direction"},
	)

	PartialFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engagement_partial_failures_total",
			Help: "Record mutations whose counter adjustment failed",
		},
		[]string{"step"},
	)

	ReconciliationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "counter_reconciliations_total",
			Help: "Total number of posts whose counters were recomputed",
		},
	)

	FeedPagesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feed_pages_total",
			Help: "Total number of feed pages composed",
		},
	)

	StoriesCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stories_created_total",
			Help: "Total number of stories created",
		},
	)

	StoryViewsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "story_views_total",
			Help: "Total number of first-time story views",
		},
	)

	StoriesExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stories_expired_total",
			Help: "Total number of stories expired by worker",
		},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Notification attempts by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	WorkerLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "worker_latency_seconds",
			Help:    "Worker execution latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job"},
	)
)
