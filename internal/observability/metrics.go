package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/gorm"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scribe_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scribe_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// AuthEvents counts login, registration and reset outcomes.
	AuthEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scribe_auth_events_total",
		Help: "Authentication events by type and outcome",
	}, []string{"event", "outcome"})

	// AttachmentBytes counts bytes accepted by the attachment store.
	AttachmentBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scribe_attachment_bytes_total",
		Help: "Total bytes written to the attachment store",
	})

	// AttachmentRejections counts uploads refused before or during the write.
	AttachmentRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scribe_attachment_rejections_total",
		Help: "Uploads rejected by reason",
	}, []string{"reason"})

	// NotificationSockets is the gauge of open notification websockets.
	NotificationSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scribe_notification_sockets",
		Help: "Number of open notification websocket connections",
	})

	// NotificationDrops counts events not delivered to a socket, by reason.
	NotificationDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scribe_notification_drops_total",
		Help: "Notification events dropped before reaching a websocket",
	}, []string{"reason"})

	// OrphanBlobsRemoved counts blobs deleted by the orphan sweep.
	OrphanBlobsRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scribe_orphan_blobs_removed_total",
		Help: "Attachment blobs removed because no row references them",
	})
)

// RecordAuthEvent increments AuthEvents.
func RecordAuthEvent(event, outcome string) {
	AuthEvents.WithLabelValues(event, outcome).Inc()
}

const startKey = "observability:start"

// RegisterGormMetrics installs callbacks that feed DatabaseQueryLatency.
func RegisterGormMetrics(db *gorm.DB) error {
	before := func(tx *gorm.DB) {
		tx.InstanceSet(startKey, time.Now())
	}
	after := func(operation string) func(*gorm.DB) {
		return func(tx *gorm.DB) {
			v, ok := tx.InstanceGet(startKey)
			if !ok {
				return
			}
			start, ok := v.(time.Time)
			if !ok {
				return
			}
			table := tx.Statement.Table
			if table == "" {
				table = "raw"
			}
			DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
		}
	}

	cb := db.Callback()
	if err := cb.Query().Before("gorm:query").Register("metrics:before_query", before); err != nil {
		return err
	}
	if err := cb.Query().After("gorm:query").Register("metrics:after_query", after("query")); err != nil {
		return err
	}
	if err := cb.Create().Before("gorm:create").Register("metrics:before_create", before); err != nil {
		return err
	}
	if err := cb.Create().After("gorm:create").Register("metrics:after_create", after("create")); err != nil {
		return err
	}
	if err := cb.Update().Before("gorm:update").Register("metrics:before_update", before); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:update").Register("metrics:after_update", after("update")); err != nil {
		return err
	}
	if err := cb.Delete().Before("gorm:delete").Register("metrics:before_delete", before); err != nil {
		return err
	}
	return cb.Delete().After("gorm:delete").Register("metrics:after_delete", after("delete"))
}
