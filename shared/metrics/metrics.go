package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intranet_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"service", "method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "intranet_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"service", "method", "path", "status"})

	mailsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intranet_mails_sent_total",
		Help: "Count of outgoing mails by result",
	}, []string{"result"})

	documentRenders = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "intranet_document_render_duration_seconds",
		Help:    "Duration of document generation by kind and result",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"kind", "result"})

	activityDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "intranet_activity_events_dropped_total",
		Help: "Activity events dropped because the publish queue was full",
	})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(service, method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(service, method, path, status).Inc()
	httpRequestDuration.WithLabelValues(service, method, path, status).Observe(duration.Seconds())
}

// ObserveMail counts a delivery attempt
func ObserveMail(result string) {
	mailsSent.WithLabelValues(result).Inc()
}

// ObserveDocumentRender records how long a docx or pdf rendering took
func ObserveDocumentRender(kind, result string, duration time.Duration) {
	documentRenders.WithLabelValues(kind, result).Observe(duration.Seconds())
}

// IncActivityDropped counts an activity event lost to back pressure
func IncActivityDropped() {
	activityDropped.Inc()
}

// Result maps an error to the result label
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
