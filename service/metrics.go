package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "simplectf_submissions_total",
		Help: "Answer submissions by outcome",
	}, []string{"outcome"})

	awardDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "simplectf_award_duration_seconds",
		Help:    "Time spent applying and persisting an award",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	})
)
