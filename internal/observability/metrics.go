package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	apiRequestsTotal  *prometheus.CounterVec
	apiLatencySeconds *prometheus.HistogramVec
	apiErrorsTotal    *prometheus.CounterVec

	statisticsDetailFetchesTotal *prometheus.CounterVec
	statisticsDurationSeconds    prometheus.Histogram

	submissionsRejectedTotal *prometheus.CounterVec
	gradesRecordedTotal      *prometheus.CounterVec

	notificationsPublishedTotal *prometheus.CounterVec
	sseClientsActive            prometheus.Gauge
)

// RegisterMetrics initialises the Prometheus collectors used by the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edunexa_api_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "edunexa_api_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edunexa_api_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		statisticsDetailFetchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edunexa_statistics_detail_fetches_total",
			Help: "Assignment detail fetches made while computing statistics, by outcome.",
		}, []string{"outcome"})

		statisticsDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "edunexa_statistics_duration_seconds",
			Help:    "Time spent computing an assignment statistics report.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		})

		submissionsRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edunexa_submissions_rejected_total",
			Help: "Submission attempts rejected by the gate, by reason.",
		}, []string{"reason"})

		gradesRecordedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edunexa_grades_recorded_total",
			Help: "Grades written to submissions, split into first grades and re-grades.",
		}, []string{"kind"})

		notificationsPublishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edunexa_notifications_published_total",
			Help: "Notifications delivered to live subscribers, by type.",
		}, []string{"type"})

		sseClientsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "edunexa_sse_clients_active",
			Help: "Currently connected notification stream clients.",
		})

		prometheus.MustRegister(
			apiRequestsTotal,
			apiLatencySeconds,
			apiErrorsTotal,
			statisticsDetailFetchesTotal,
			statisticsDurationSeconds,
			submissionsRejectedTotal,
			gradesRecordedTotal,
			notificationsPublishedTotal,
			sseClientsActive,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// StatisticsDetailFetches counts detail fetches labelled ok, failed, timeout or invalid.
func StatisticsDetailFetches() *prometheus.CounterVec {
	RegisterMetrics()
	return statisticsDetailFetchesTotal
}

// StatisticsDuration observes full report computations.
func StatisticsDuration() prometheus.Histogram {
	RegisterMetrics()
	return statisticsDurationSeconds
}

// SubmissionsRejected counts gate rejections.
func SubmissionsRejected() *prometheus.CounterVec {
	RegisterMetrics()
	return submissionsRejectedTotal
}

// GradesRecorded counts grading writes.
func GradesRecorded() *prometheus.CounterVec {
	RegisterMetrics()
	return gradesRecordedTotal
}

// NotificationsPublishedTotal counts delivered notifications.
func NotificationsPublishedTotal() *prometheus.CounterVec {
	RegisterMetrics()
	return notificationsPublishedTotal
}

// SSEClientsActive tracks open notification streams.
func SSEClientsActive() prometheus.Gauge {
	RegisterMetrics()
	return sseClientsActive
}
