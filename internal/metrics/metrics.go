package metrics

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pendingDesc = prometheus.NewDesc(
		"wikimod_moderation_pending",
		"Number of changes waiting for review",
		nil,
		nil,
	)

	actionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wikimod_moderation_actions_total",
			Help: "Moderation actions by action and outcome",
		},
		[]string{"action", "outcome"},
	)

	approvalPathsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wikimod_moderation_approval_paths_total",
			Help: "Approved changes by the way they were applied",
		},
		[]string{"path"},
	)

	queuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wikimod_moderation_queued_total",
			Help: "Changes sent to the moderation queue by kind",
		},
		[]string{"kind"},
	)
)

// PendingCounter reports how many changes wait for review.
type PendingCounter interface {
	CountPendingEntries(ctx context.Context) (int, error)
}

// QueueCollector is a custom Prometheus collector that reads the size of the
// moderation queue from the database on each scrape.
type QueueCollector struct {
	queue PendingCounter
}

// Describe sends the metric descriptor to the channel.
func (c *QueueCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- pendingDesc
}

// Collect queries the database for the number of pending changes.
func (c *QueueCollector) Collect(ch chan<- prometheus.Metric) {
	count, err := c.queue.CountPendingEntries(context.Background())
	if err != nil {
		slog.Error("failed to collect moderation queue metrics", "error", err)
		return
	}
	ch <- prometheus.MustNewConstMetric(pendingDesc, prometheus.GaugeValue, float64(count))
}

var initOnce sync.Once

// Init registers the queue collector. Must be called once at startup.
func Init(queue PendingCounter) {
	initOnce.Do(func() {
		prometheus.MustRegister(&QueueCollector{queue: queue})
	})
}

// RecordAction counts a moderation action, e.g. ("approve", "ok").
func RecordAction(action, outcome string) {
	actionsTotal.WithLabelValues(action, outcome).Inc()
}

// RecordApprovalPath counts how an approved change was applied: "create",
// "fast", "merge", "upload" or "move".
func RecordApprovalPath(path string) {
	approvalPathsTotal.WithLabelValues(path).Inc()
}

// RecordQueued counts a change that was held for review.
func RecordQueued(kind string) {
	queuedTotal.WithLabelValues(kind).Inc()
}
