package extract

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stage outcomes recorded in hallucheck_extract_stage_total.
const (
	OutcomeHit     = "hit"
	OutcomeMiss    = "miss"
	OutcomeSkipped = "skipped"
)

// Metrics holds the extraction pipeline's Prometheus collectors.
type Metrics struct {
	// stageTotal counts stage attempts.
	// Labels: stage, outcome (hit, miss, skipped)
	stageTotal *prometheus.CounterVec

	// guardTotal counts answers rejected by the entry guard before any stage ran.
	guardTotal prometheus.Counter

	// stageDuration measures time spent in each stage.
	// Labels: stage
	stageDuration *prometheus.HistogramVec
}

// NewMetrics registers the extraction collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		stageTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hallucheck",
			Subsystem: "extract",
			Name:      "stage_total",
			Help:      "Extraction stage attempts by outcome",
		}, []string{"stage", "outcome"}),
		guardTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "hallucheck",
			Subsystem: "extract",
			Name:      "guard_total",
			Help:      "Answers short-circuited as unknown before extraction",
		}),
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hallucheck",
			Subsystem: "extract",
			Name:      "duration_seconds",
			Help:      "Extraction stage latency in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60},
		}, []string{"stage"}),
	}
}

func (m *Metrics) observeStage(stage, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.stageTotal.WithLabelValues(stage, outcome).Inc()
	if outcome != OutcomeSkipped {
		m.stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
	}
}

func (m *Metrics) observeGuard() {
	if m == nil {
		return
	}
	m.guardTotal.Inc()
}
