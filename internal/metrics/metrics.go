package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicejournal_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "voicejournal_request_duration_seconds",
			Help: "HTTP request duration in seconds",
		},
		[]string{"method", "route"},
	)

	ResponsesGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicejournal_responses_total",
			Help: "Therapeutic responses produced, by source",
		},
		[]string{"source"},
	)

	CrisisAssessments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicejournal_crisis_assessments_total",
			Help: "Crisis gate decisions, by level",
		},
		[]string{"level"},
	)

	VideoOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicejournal_video_outcomes_total",
			Help: "Finished video generation polls, by outcome",
		},
		[]string{"outcome"},
	)

	ActiveVideoPolls = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "voicejournal_video_polls_active",
			Help: "Number of in-process video status pollers",
		},
	)

	DashboardCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicejournal_dashboard_cache_total",
			Help: "Dashboard cache lookups, by result",
		},
		[]string{"result"},
	)

	PipelineStageFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicejournal_stage_failures_total",
			Help: "Check-in pipeline stage failures, by stage",
		},
		[]string{"stage"},
	)
)
