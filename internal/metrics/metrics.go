// Package metrics provides Prometheus metrics for the task scheduler,
// the sprint lifecycle and the HTTP command API.
package metrics

import (
	"time"

	"github.com/nadmax/wordsprint/internal/repository/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Task run outcomes.
const (
	OutcomeDone     = "done"
	OutcomeRetry    = "retry"
	OutcomeRecurred = "recurred"
	OutcomeSkipped  = "skipped"
	OutcomeUnknown  = "unknown"
)

// Sprint lifecycle events.
const (
	SprintCreated   = "created"
	SprintStarted   = "started"
	SprintEnded     = "ended"
	SprintCompleted = "completed"
	SprintCancelled = "cancelled"
	SprintCollected = "collected"
)

var (
	TasksRun = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wordsprint_tasks_run_total",
			Help: "Total number of task runs by outcome",
		},
		[]string{"object", "type", "outcome"},
	)
	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wordsprint_task_duration_seconds",
			Help:    "Task handler duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"object", "type"},
	)
	TaskLag = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wordsprint_task_lag_seconds",
			Help:    "Delay between a task's scheduled time and its run",
			Buckets: []float64{0, 1, 5, 10, 30, 60, 300, 900, 3600},
		},
		[]string{"object", "type"},
	)
	TasksPending = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wordsprint_tasks_pending",
			Help: "Current number of persisted tasks by kind and state",
		},
		[]string{"object", "type", "state"},
	)
	SprintEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wordsprint_sprint_events_total",
			Help: "Sprint lifecycle transitions",
		},
		[]string{"event"},
	)
	XPAwarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wordsprint_xp_awarded_total",
			Help: "Experience points awarded",
		},
		[]string{"reason"},
	)
	GoalsReset = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wordsprint_goals_reset_total",
			Help: "Goals rolled over into history",
		},
		[]string{"type"},
	)
	AnnouncementFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wordsprint_announcement_failures_total",
			Help: "Announcements the notifier failed to deliver",
		},
	)
	PollDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wordsprint_poll_duration_seconds",
			Help:    "Duration of one scheduler poll pass",
			Buckets: prometheus.DefBuckets,
		},
	)
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wordsprint_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wordsprint_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

func RecordTaskRun(object, taskType, outcome string, duration time.Duration) {
	TasksRun.WithLabelValues(object, taskType, outcome).Inc()
	TaskDuration.WithLabelValues(object, taskType).Observe(duration.Seconds())
}

func RecordTaskSkipped(object, taskType string) {
	TasksRun.WithLabelValues(object, taskType, OutcomeSkipped).Inc()
}

func RecordTaskLag(object, taskType string, lag time.Duration) {
	if lag < 0 {
		lag = 0
	}
	TaskLag.WithLabelValues(object, taskType).Observe(lag.Seconds())
}

func UpdateTaskGauges(stats []models.TaskStats) {
	TasksPending.Reset()
	for _, st := range stats {
		TasksPending.WithLabelValues(st.Object, st.Type, "total").Set(float64(st.Count))
		TasksPending.WithLabelValues(st.Object, st.Type, "processing").Set(float64(st.Processing))
		TasksPending.WithLabelValues(st.Object, st.Type, "overdue").Set(float64(st.Overdue))
	}
}

func RecordSprintEvent(event string) {
	SprintEvents.WithLabelValues(event).Inc()
}

func RecordXP(reason string, xp int64) {
	if xp <= 0 {
		return
	}
	XPAwarded.WithLabelValues(reason).Add(float64(xp))
}

func RecordGoalReset(goalType string) {
	GoalsReset.WithLabelValues(goalType).Inc()
}

func RecordAnnouncementFailure() {
	AnnouncementFailures.Inc()
}

func RecordPoll(duration time.Duration) {
	PollDuration.Observe(duration.Seconds())
}

func RecordHTTPRequest(method, endpoint, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
