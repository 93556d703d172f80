package service

import "github.com/prometheus/client_golang/prometheus"

// VerifyMetrics holds Prometheus collectors for the verification pipeline.
type VerifyMetrics struct {
	ClaimsTotal    *prometheus.CounterVec
	JudgeCalls     prometheus.Counter
	VerifyDuration prometheus.Histogram
}

// NewVerifyMetrics creates and registers pipeline metrics.
func NewVerifyMetrics(reg prometheus.Registerer) *VerifyMetrics {
	m := &VerifyMetrics{
		ClaimsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verify_claims_total",
				Help: "Total number of verified claims by verdict.",
			},
			[]string{"verdict"},
		),
		JudgeCalls: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "verify_judge_calls_total",
				Help: "Total number of claims escalated to the LM judge.",
			},
		),
		VerifyDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "verify_duration_seconds",
				Help:    "End-to-end verification latency in seconds.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
		),
	}

	reg.MustRegister(m.ClaimsTotal, m.JudgeCalls, m.VerifyDuration)
	return m
}
