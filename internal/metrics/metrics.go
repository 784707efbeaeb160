// Package metrics provides Prometheus instrumentation for a chat session.
//
// Each Recorder owns its registry, so a process (or a test) can hold several
// without colliding on the default registerer. A nil *Recorder is valid and
// records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	attemptsName  = "telchat_http_attempts_total"
	retriesName   = "telchat_http_retries_total"
	exchangesName = "telchat_exchanges_total"
	latencyName   = "telchat_exchange_duration_seconds"
)

type Recorder struct {
	registry *prometheus.Registry

	// Attempts counts every HTTP attempt by status code ("error" for
	// attempts that never produced a response).
	Attempts *prometheus.CounterVec

	// Retries counts attempts that were repeated because of a retryable status.
	Retries prometheus.Counter

	// Exchanges counts finished exchanges by outcome.
	Exchanges *prometheus.CounterVec

	// Latency tracks end-to-end exchange latency in seconds, retries included.
	Latency prometheus.Histogram
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		Attempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: attemptsName,
				Help: "HTTP attempts sent to the completion endpoint by status code.",
			},
			[]string{"code"},
		),
		Retries: factory.NewCounter(
			prometheus.CounterOpts{
				Name: retriesName,
				Help: "HTTP attempts repeated after a transient server error.",
			},
		),
		Exchanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: exchangesName,
				Help: "Chat exchanges by outcome.",
			},
			[]string{"outcome"},
		),
		Latency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    latencyName,
				Help:    "End-to-end chat exchange latency in seconds.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 3, 5, 10},
			},
		),
	}
}

// ObserveAttempt records one HTTP attempt. status is ignored when err is set.
func (r *Recorder) ObserveAttempt(status int, err error) {
	if r == nil {
		return
	}
	code := "error"
	if err == nil {
		code = strconv.Itoa(status)
	}
	r.Attempts.WithLabelValues(code).Inc()
}

func (r *Recorder) ObserveRetry() {
	if r == nil {
		return
	}
	r.Retries.Inc()
}

func (r *Recorder) ObserveExchange(outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.Exchanges.WithLabelValues(outcome).Inc()
	r.Latency.Observe(elapsed.Seconds())
}

// Snapshot is a point-in-time summary of the recorder's counters.
type Snapshot struct {
	Exchanges map[string]float64
	Attempts  float64
	Retries   float64

	// LatencySum and LatencyCount come from the exchange latency histogram.
	LatencySum   time.Duration
	LatencyCount uint64
}

// MeanLatency is zero until an exchange has been observed.
func (s Snapshot) MeanLatency() time.Duration {
	if s.LatencyCount == 0 {
		return 0
	}
	return s.LatencySum / time.Duration(s.LatencyCount)
}

// Total returns the number of finished exchanges across all outcomes.
func (s Snapshot) Total() float64 {
	var total float64
	for _, n := range s.Exchanges {
		total += n
	}
	return total
}

func (r *Recorder) Snapshot() (Snapshot, error) {
	snap := Snapshot{Exchanges: map[string]float64{}}
	if r == nil {
		return snap, nil
	}
	families, err := r.registry.Gather()
	if err != nil {
		return snap, err
	}
	for _, family := range families {
		switch family.GetName() {
		case attemptsName:
			for _, m := range family.GetMetric() {
				snap.Attempts += m.GetCounter().GetValue()
			}
		case retriesName:
			for _, m := range family.GetMetric() {
				snap.Retries += m.GetCounter().GetValue()
			}
		case latencyName:
			for _, m := range family.GetMetric() {
				h := m.GetHistogram()
				snap.LatencySum += time.Duration(h.GetSampleSum() * float64(time.Second))
				snap.LatencyCount += h.GetSampleCount()
			}
		case exchangesName:
			for _, m := range family.GetMetric() {
				for _, label := range m.GetLabel() {
					if label.GetName() == "outcome" {
						snap.Exchanges[label.GetValue()] += m.GetCounter().GetValue()
					}
				}
			}
		}
	}
	return snap, nil
}
