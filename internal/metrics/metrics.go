package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SyncRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xls2jobs_sync_runs_total",
		Help: "Sync runs by trigger and result (ok|error|busy|unchanged).",
	}, []string{"trigger", "result"})

	SyncRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xls2jobs_sync_rows_total",
		Help: "Spreadsheet rows by outcome (saved|skipped).",
	}, []string{"outcome"})

	SyncDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "xls2jobs_sync_duration_seconds",
		Help:    "Duration of a sync run.",
		Buckets: prometheus.DefBuckets,
	}, []string{"mode"})

	EndpointRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xls2jobs_sync_endpoint_requests_total",
		Help: "Requests to POST /api/sync/jobs by status code class.",
	}, []string{"code"})

	EndpointRows = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xls2jobs_sync_endpoint_rows_saved_total",
		Help: "Rows saved through the sync endpoint.",
	})
)
