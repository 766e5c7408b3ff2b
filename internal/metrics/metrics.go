// Package metrics holds the Prometheus collectors evalview exports on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "evalview_query_duration_seconds",
		Help:    "Duration of filtered evaluation queries",
		Buckets: prometheus.DefBuckets,
	}, []string{"view"})

	QueryErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evalview_query_errors_total",
		Help: "Queries rejected or failed, by error code",
	}, []string{"code"})

	ReconcileRowsUpdated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evalview_reconcile_rows_updated_total",
		Help: "Rows changed by reconciliation apply runs",
	}, []string{"operation"})

	ReconcileExcluded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evalview_reconcile_excluded_total",
		Help: "Slugs, pairs or files excluded from a reconciliation plan",
	}, []string{"operation", "reason"})

	BackupDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "evalview_backup_duration_seconds",
		Help:    "Duration of verified store backups",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evalview_http_requests_total",
		Help: "HTTP requests served, by route and status code",
	}, []string{"route", "status"})

	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "evalview_http_rate_limited_total",
		Help: "HTTP requests rejected by the rate limiter",
	})
)
