package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	outcomesCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_sessions_total",
		Help: "Terminal outcomes of payment sessions",
	}, []string{"outcome"})

	settleLatencyHistogram = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "payment_session_settle_seconds",
		Help:    "Time from invoice display to settlement",
		Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 780},
	})
)
