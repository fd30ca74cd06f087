package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder exports metrics through a Prometheus registry.
type PrometheusRecorder struct {
	mergeCodesIssued   prometheus.Counter
	mergeCodesRedeemed *prometheus.CounterVec
	mergesCompleted    *prometheus.CounterVec
	mergeDuration      prometheus.Histogram
	mergedResources    *prometheus.CounterVec
	mergeItemsFailed   *prometheus.CounterVec
	collisionChecks    *prometheus.CounterVec
	conversions        *prometheus.CounterVec
	eventsPublished    *prometheus.CounterVec
}

// NewPrometheus creates the collectors and registers them with reg.
func NewPrometheus(reg prometheus.Registerer) *PrometheusRecorder {
	p := &PrometheusRecorder{
		mergeCodesIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fileforge_merge_codes_issued_total",
			Help: "Merge codes generated.",
		}),
		mergeCodesRedeemed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fileforge_merge_codes_redeemed_total",
			Help: "Merge code redemption attempts by outcome.",
		}, []string{"outcome"}),
		mergesCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fileforge_merges_total",
			Help: "Merge runs by resulting job status.",
		}, []string{"status"}),
		mergeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fileforge_merge_duration_seconds",
			Help:    "Wall time of a merge run.",
			Buckets: prometheus.DefBuckets,
		}),
		mergedResources: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fileforge_merged_resources_total",
			Help: "Uploads and conversions reassigned by merges.",
		}, []string{"kind"}),
		mergeItemsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fileforge_merge_items_failed_total",
			Help: "Merge ledger items that failed, by kind and status.",
		}, []string{"kind", "status"}),
		collisionChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fileforge_collision_checks_total",
			Help: "Identity collision lookups by result.",
		}, []string{"found"}),
		conversions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fileforge_conversions_total",
			Help: "Conversions by final status.",
		}, []string{"status"}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fileforge_account_events_published_total",
			Help: "Account events appended to the stream.",
		}, []string{"status"}),
	}

	reg.MustRegister(
		p.mergeCodesIssued,
		p.mergeCodesRedeemed,
		p.mergesCompleted,
		p.mergeDuration,
		p.mergedResources,
		p.mergeItemsFailed,
		p.collisionChecks,
		p.conversions,
		p.eventsPublished,
	)

	return p
}

func (p *PrometheusRecorder) IncMergeCodeIssued() {
	p.mergeCodesIssued.Inc()
}

func (p *PrometheusRecorder) IncMergeCodeRedeemed(outcome string) {
	p.mergeCodesRedeemed.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) IncMergeCompleted(status string) {
	p.mergesCompleted.WithLabelValues(status).Inc()
}

func (p *PrometheusRecorder) ObserveMergeDuration(duration time.Duration) {
	p.mergeDuration.Observe(duration.Seconds())
}

func (p *PrometheusRecorder) AddMergedResources(kind string, n int) {
	p.mergedResources.WithLabelValues(kind).Add(float64(n))
}

func (p *PrometheusRecorder) IncMergeItemFailed(kind, status string) {
	p.mergeItemsFailed.WithLabelValues(kind, status).Inc()
}

func (p *PrometheusRecorder) IncCollisionCheck(found bool) {
	p.collisionChecks.WithLabelValues(strconv.FormatBool(found)).Inc()
}

func (p *PrometheusRecorder) IncConversion(status string) {
	p.conversions.WithLabelValues(status).Inc()
}

func (p *PrometheusRecorder) IncEventPublished(status string) {
	p.eventsPublished.WithLabelValues(status).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
