package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	SessionsResolved   *prometheus.CounterVec
	NavigationIntents  *prometheus.CounterVec
	SnapshotsDelivered prometheus.Counter
	CacheHits          prometheus.Counter
	CacheMisses        prometheus.Counter
	ListingsCreated    prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		SessionsResolved: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "nestfeed_sessions_resolved_total",
			Help: "Credential events processed, labeled by resulting session status",
		}, []string{"status"}),
		NavigationIntents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "nestfeed_navigation_intents_total",
			Help: "Navigation intents emitted by the session controller, labeled by route",
		}, []string{"route"}),
		SnapshotsDelivered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "nestfeed_snapshots_delivered_total",
			Help: "Listing result-set snapshots delivered to subscribers",
		}),
		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "nestfeed_cache_hits_total",
			Help: "Detail reads served from the local cache",
		}),
		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "nestfeed_cache_misses_total",
			Help: "Detail reads that fell through to the remote store",
		}),
		ListingsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "nestfeed_listings_created_total",
			Help: "Listings successfully created",
		}),
	}
}
