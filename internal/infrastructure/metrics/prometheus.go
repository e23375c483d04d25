package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements the service and sweeper metric hooks using Prometheus.
type Recorder struct {
	transitions  *prometheus.CounterVec
	settlements  *prometheus.CounterVec
	trades       *prometheus.CounterVec
	sweeps       *prometheus.CounterVec
	sweepLatency *prometheus.HistogramVec
	published    *prometheus.CounterVec
	requests     *prometheus.CounterVec
	reqLatency   *prometheus.HistogramVec
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer in production.
func New(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradeduel_challenge_transitions_total",
				Help: "Committed challenge status transitions",
			},
			[]string{"status"},
		),
		settlements: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradeduel_settlements_total",
				Help: "Completed challenges by outcome",
			},
			[]string{"outcome"},
		),
		trades: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradeduel_trades_recorded_total",
				Help: "Trades appended to the trade ledger",
			},
			[]string{"source"},
		),
		sweeps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradeduel_sweeper_items_total",
				Help: "Challenges visited by the expiration sweeper",
			},
			[]string{"job", "result"},
		),
		sweepLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tradeduel_sweeper_run_duration_seconds",
				Help:    "Duration of one sweeper pass",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"job"},
		),
		published: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradeduel_events_published_total",
				Help: "Lifecycle events handed to publishers",
			},
			[]string{"publisher", "result"},
		),
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradeduel_http_requests_total",
				Help: "HTTP requests by route and status",
			},
			[]string{"method", "route", "status"},
		),
		reqLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tradeduel_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

// RecordTransition counts a committed transition into status.
func (r *Recorder) RecordTransition(status string) {
	r.transitions.WithLabelValues(status).Inc()
}

// RecordSettlement counts a settlement outcome (win, tie, forfeit).
func (r *Recorder) RecordSettlement(outcome string) {
	r.settlements.WithLabelValues(outcome).Inc()
}

// RecordTrade counts a recorded trade.
func (r *Recorder) RecordTrade(source string) {
	r.trades.WithLabelValues(source).Inc()
}

// RecordSweep counts one sweeper item result.
func (r *Recorder) RecordSweep(job, result string) {
	r.sweeps.WithLabelValues(job, result).Inc()
}

// RecordSweepDuration records how long a sweeper pass took.
func (r *Recorder) RecordSweepDuration(job string, seconds float64) {
	r.sweepLatency.WithLabelValues(job).Observe(seconds)
}

// RecordPublish counts an event delivery attempt.
func (r *Recorder) RecordPublish(publisher, result string) {
	r.published.WithLabelValues(publisher, result).Inc()
}

// RecordRequest records one served HTTP request.
func (r *Recorder) RecordRequest(method, route, status string, seconds float64) {
	r.requests.WithLabelValues(method, route, status).Inc()
	r.reqLatency.WithLabelValues(method, route).Observe(seconds)
}
