// Package metrics holds the Prometheus collectors exported by vinewatch.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ItemsIngestedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vinewatch_items_ingested_total",
		Help: "Items that reached the item store, by origin (live, catchup, relay) and outcome (insert, update).",
	}, []string{"origin", "outcome"})

	PipelineDropsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vinewatch_pipeline_drops_total",
		Help: "Items dropped by a filter pipeline stage.",
	}, []string{"stage"})

	StageFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vinewatch_pipeline_stage_failures_total",
		Help: "Recoverable filter stage failures.",
	}, []string{"stage"})

	EvictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vinewatch_store_evictions_total",
		Help: "Items evicted by the capacity bound.",
	})

	StoredItems = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vinewatch_store_items",
		Help: "Items retained in the item store.",
	})

	VisibleItems = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vinewatch_visible_items",
		Help: "Items currently visible in the feed.",
	})

	LiveState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vinewatch_live_state",
		Help: "Live channel state: 0 disconnected, 1 connecting, 2 connected.",
	})

	LiveConnectAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vinewatch_live_connect_attempts_total",
		Help: "Live channel connect attempts by result.",
	}, []string{"result"})

	RelayMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vinewatch_relay_messages_total",
		Help: "Cross-tab relay messages by direction (in, out) and type.",
	}, []string{"direction", "type"})

	Role = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vinewatch_role",
		Help: "Tab role: 0 undetermined, 1 master, 2 slave.",
	})

	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vinewatch_notifications_total",
		Help: "Notification side effects by kind (notify, sound) and result (sent, suppressed, dropped, error).",
	}, []string{"kind", "result"})

	CatchupDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vinewatch_catchup_duration_seconds",
		Help:    "Duration of catch-up fetches.",
		Buckets: prometheus.DefBuckets,
	})

	CatchupErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vinewatch_catchup_errors_total",
		Help: "Failed catch-up fetches.",
	})

	JournalDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vinewatch_journal_dropped_total",
		Help: "Status journal events lost to a full queue or a failed write.",
	})
)
