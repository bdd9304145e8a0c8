// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	PollsTotal        prometheus.Counter
	PollFailures      prometheus.Counter
	MessagesFetched   prometheus.Counter
	MessagesRelayed   *prometheus.CounterVec // label: sink
	RelayFailures     *prometheus.CounterVec // label: sink
	AuthCaptures      prometheus.Counter
	RejectedCallbacks prometheus.Counter
	StreamReconnects  prometheus.Counter

	// Histograms (seconds)
	PollDuration prometheus.Observer

	// Gauges
	CursorGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		PollsTotal = promauto.NewCounter(prometheus.CounterOpts{Name: "max_polls_total", Help: "Number of Max message polls issued"})
		PollFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "max_poll_failures_total", Help: "Number of Max polls that failed (transport, status or parse)"})
		MessagesFetched = promauto.NewCounter(prometheus.CounterOpts{Name: "max_messages_fetched_total", Help: "Number of new Max messages accepted past the cursor"})
		MessagesRelayed = promauto.NewCounterVec(prometheus.CounterOpts{Name: "bridge_messages_relayed_total", Help: "Messages delivered to a destination sink"}, []string{"sink"})
		RelayFailures = promauto.NewCounterVec(prometheus.CounterOpts{Name: "bridge_relay_failures_total", Help: "Messages a destination sink failed to accept"}, []string{"sink"})
		AuthCaptures = promauto.NewCounter(prometheus.CounterOpts{Name: "auth_captures_total", Help: "Successful credential captures via the local callback"})
		RejectedCallbacks = promauto.NewCounter(prometheus.CounterOpts{Name: "auth_callbacks_rejected_total", Help: "Callbacks rejected for missing token or user_id"})
		StreamReconnects = promauto.NewCounter(prometheus.CounterOpts{Name: "max_stream_reconnects_total", Help: "Max WebSocket stream reconnect attempts"})
		PollDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "max_poll_duration_seconds", Help: "Max poll round-trip seconds", Buckets: prometheus.DefBuckets})
		CursorGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "max_poll_cursor", Help: "Highest Max message id delivered"})
	})
}

// inc increments c if metrics are initialized.
func inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// IncPoll records one poll and whether it failed.
func IncPoll(failed bool) {
	inc(PollsTotal)
	if failed {
		inc(PollFailures)
	}
}

// AddFetched records n newly accepted messages.
func AddFetched(n int) {
	if MessagesFetched != nil && n > 0 {
		MessagesFetched.Add(float64(n))
	}
}

// IncRelay records a delivery attempt to sink.
func IncRelay(sink string, err error) {
	vec := MessagesRelayed
	if err != nil {
		vec = RelayFailures
	}
	if vec != nil {
		vec.WithLabelValues(sink).Inc()
	}
}

// IncAuthCapture records a successful capture.
func IncAuthCapture() { inc(AuthCaptures) }

// IncRejectedCallback records a rejected /save.
func IncRejectedCallback() { inc(RejectedCallbacks) }

// IncStreamReconnect records a stream reconnect.
func IncStreamReconnect() { inc(StreamReconnects) }

// SetCursor records the current cursor value.
func SetCursor(id int64) {
	if CursorGauge != nil {
		CursorGauge.Set(float64(id))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context carrying the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
