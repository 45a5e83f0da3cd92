// Package metrics exposes Prometheus collectors for estimation runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder holds the estimator's collectors. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	steps        *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	runCost      *prometheus.GaugeVec
	priceFetches *prometheus.CounterVec
}

// New creates the collectors and registers them on reg
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		steps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tco_steps_total",
				Help: "Total number of estimation steps by outcome",
			},
			[]string{"chain", "action", "status"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tco_step_duration_seconds",
				Help:    "Step duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"chain", "action", "step"},
		),
		runCost: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tco_run_cost_usd",
				Help: "Total USD cost of the last run",
			},
			[]string{"chain", "action"},
		),
		priceFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tco_price_fetch_total",
				Help: "Total number of price lookups by outcome",
			},
			[]string{"coin", "status"},
		),
	}

	reg.MustRegister(r.steps, r.stepDuration, r.runCost, r.priceFetches)
	return r
}

// ObserveStep records the outcome and duration of one step
func (r *Recorder) ObserveStep(chain, action, step, status string, d time.Duration) {
	if r == nil {
		return
	}
	r.steps.WithLabelValues(chain, action, status).Inc()
	r.stepDuration.WithLabelValues(chain, action, step).Observe(d.Seconds())
}

// SetRunCost records the total USD cost of a finished run
func (r *Recorder) SetRunCost(chain, action string, usd float64) {
	if r == nil {
		return
	}
	r.runCost.WithLabelValues(chain, action).Set(usd)
}

// PriceFetch counts a price lookup
func (r *Recorder) PriceFetch(coin string, err error) {
	if r == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.priceFetches.WithLabelValues(coin, status).Inc()
}

// Handler serves the collectors of g in the Prometheus text format
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
