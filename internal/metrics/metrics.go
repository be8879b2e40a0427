package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AttemptsCreated counts new attempts by quiz.
	AttemptsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_attempts_created_total",
			Help: "Total number of attempts created",
		},
		[]string{"quiz"},
	)

	// TimerStarts counts successful timer starts.
	TimerStarts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quiz_timer_starts_total",
			Help: "Total number of attempt timers started",
		},
	)

	// Submissions counts finalized attempts by trigger and outcome.
	Submissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_submissions_total",
			Help: "Total number of attempt submissions",
		},
		[]string{"trigger", "outcome"},
	)

	// DuplicateSubmissions counts submit calls that lost the race to another
	// context and were resolved from authoritative state.
	DuplicateSubmissions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quiz_duplicate_submissions_total",
			Help: "Total number of submissions resolved as already-completed conflicts",
		},
	)

	// CheckpointFailures counts best-effort checkpoint writes that failed.
	CheckpointFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quiz_timer_checkpoint_failures_total",
			Help: "Total number of failed timer checkpoint writes",
		},
	)

	// RunningCountdowns tracks countdown engines currently ticking.
	RunningCountdowns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "quiz_running_countdowns",
			Help: "Number of countdown engines currently running",
		},
	)
)
