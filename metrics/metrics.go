// metrics/metrics.go
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Submission outcomes recorded by RecordSubmission.
const (
	OutcomeSent       = "sent"
	OutcomeInvalid    = "invalid"
	OutcomeSpam       = "spam"
	OutcomeHoneypot   = "honeypot"
	OutcomeSendFailed = "send_failed"
	OutcomeBadRequest = "bad_request"
	OutcomeBadSig     = "bad_signature"
)

var (
	reqDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: []float64{0.01, 0.1, 0.3, 1.2, 5},
		},
		[]string{"path", "method", "status"},
	)

	submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formrelay_submissions_total",
			Help: "Form submissions by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	spamSignals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formrelay_spam_signals_total",
			Help: "Spam heuristic hits by field and rule.",
		},
		[]string{"field", "rule"},
	)

	sendDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "formrelay_email_send_duration_seconds",
			Help:    "Duration of notification delivery attempts.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"kind", "result"},
	)
)

// RegisterDefault registers the Go and process collectors plus the HTTP and
// formrelay collectors on the default registry. Calling it again is a no-op.
func RegisterDefault(logger *zap.Logger) {
	mustRegister(logger, "Go collector", collectors.NewGoCollector())
	mustRegister(logger, "process collector", collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mustRegister(logger, "HTTP request histogram", reqDuration)
	mustRegister(logger, "submission counter", submissions)
	mustRegister(logger, "spam signal counter", spamSignals)
	mustRegister(logger, "email send histogram", sendDuration)
}

func mustRegister(logger *zap.Logger, name string, c prometheus.Collector) {
	err := prometheus.Register(c)
	if err == nil {
		return
	}
	if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
		return
	}
	if logger != nil {
		logger.Fatal("failed to register "+name, zap.Error(err))
	}
	panic("metrics: failed to register " + name + ": " + err.Error())
}

// RecordSubmission counts one submission outcome.
func RecordSubmission(kind, outcome string) {
	submissions.WithLabelValues(kind, outcome).Inc()
}

// RecordSpamSignal counts one heuristic hit.
func RecordSpamSignal(field, rule string) {
	spamSignals.WithLabelValues(field, rule).Inc()
}

// ObserveSend records how long a delivery attempt took.
func ObserveSend(kind string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	sendDuration.WithLabelValues(kind, result).Observe(d.Seconds())
}

// HTTPMetrics records request durations labeled by chi route pattern, so
// unmatched paths all land under a single "unmatched" label.
func HTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		protoMajor := r.ProtoMajor
		if protoMajor < 1 {
			protoMajor = 1
		}
		ww := middleware.NewWrapResponseWriter(w, protoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		if status < 100 || status > 599 {
			status = http.StatusInternalServerError
		}

		path := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				path = p
			}
		}

		reqDuration.WithLabelValues(path, r.Method, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
	})
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
