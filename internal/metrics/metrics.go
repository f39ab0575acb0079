// Package metrics provides Prometheus instruments for WAPI traffic.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	wapiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tahoegrid_wapi_requests_total",
			Help: "Total number of WAPI requests",
		},
		[]string{"op", "status"},
	)

	wapiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tahoegrid_wapi_request_duration_seconds",
			Help:    "WAPI request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	bytesDownloaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tahoegrid_wapi_bytes_downloaded_total",
			Help: "Total content bytes read from the grid",
		},
	)

	bytesUploaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tahoegrid_wapi_bytes_uploaded_total",
			Help: "Total content bytes uploaded to the grid",
		},
	)
)

// ObserveRequest records one completed WAPI request. A status of 0 means the
// request never produced an HTTP response.
func ObserveRequest(op string, status int, duration time.Duration) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	wapiRequestsTotal.WithLabelValues(op, label).Inc()
	wapiRequestDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// AddBytesDownloaded accumulates content bytes received from the grid.
func AddBytesDownloaded(n int64) {
	if n > 0 {
		bytesDownloaded.Add(float64(n))
	}
}

// AddBytesUploaded accumulates content bytes sent to the grid.
func AddBytesUploaded(n int64) {
	if n > 0 {
		bytesUploaded.Add(float64(n))
	}
}
