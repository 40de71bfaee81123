package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder exposes the orchestrator's Prometheus metrics. Construct it once;
// promauto registers the collectors with the default registry.
type Recorder struct {
	candidatesTotal *prometheus.CounterVec
	rejectionsTotal *prometheus.CounterVec
	tradesTotal     *prometheus.CounterVec
	exitsTotal      *prometheus.CounterVec

	openPositions prometheus.Gauge
	exposureSOL   prometheus.Gauge
	realizedPL    prometheus.Gauge
	breakerOpen   *prometheus.GaugeVec

	markDuration prometheus.Histogram
}

func NewRecorder() *Recorder {
	return &Recorder{
		candidatesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "magpie_candidates_total",
				Help: "Candidates received from feeds",
			},
			[]string{"source"},
		),
		rejectionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "magpie_rejections_total",
				Help: "Candidates rejected at admission",
			},
			[]string{"strategy"},
		),
		tradesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "magpie_trades_total",
				Help: "Confirmed fills by side",
			},
			[]string{"strategy", "side"},
		),
		exitsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "magpie_exits_total",
				Help: "Exit decisions executed by reason",
			},
			[]string{"reason"},
		),
		openPositions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "magpie_open_positions",
			Help: "Currently open positions",
		}),
		exposureSOL: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "magpie_exposure_sol",
			Help: "Total SOL value of open positions at last marks",
		}),
		realizedPL: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "magpie_realized_pl_sol",
			Help: "Cumulative realized P/L in SOL",
		}),
		breakerOpen: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "magpie_breaker_open",
				Help: "1 when the upstream's circuit breaker is open",
			},
			[]string{"service"},
		),
		markDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "magpie_mark_cycle_duration_seconds",
			Help:    "Duration of one mark-to-market cycle",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (r *Recorder) Candidate(source string) { r.candidatesTotal.WithLabelValues(source).Inc() }

func (r *Recorder) Rejection(strategy string) { r.rejectionsTotal.WithLabelValues(strategy).Inc() }

func (r *Recorder) Trade(strategy, side string) { r.tradesTotal.WithLabelValues(strategy, side).Inc() }

func (r *Recorder) Exit(reason string) { r.exitsTotal.WithLabelValues(reason).Inc() }

func (r *Recorder) SetOpenPositions(n int) { r.openPositions.Set(float64(n)) }

func (r *Recorder) SetExposure(sol float64) { r.exposureSOL.Set(sol) }

func (r *Recorder) SetRealizedPL(sol float64) { r.realizedPL.Set(sol) }

func (r *Recorder) MarkCycle(seconds float64) { r.markDuration.Observe(seconds) }

func (r *Recorder) SetBreaker(service string, open bool) {
	v := 0.0
	if open {
		v = 1
	}
	r.breakerOpen.WithLabelValues(service).Set(v)
}
