package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// initSchedulerMetrics initializes task and dispatch metrics. The Manager
// satisfies saga.MetricsRecorder.
func (m *Manager) initSchedulerMetrics(cfg Config) {
	m.tasksStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saga_tasks_started_total",
			Help: "Total number of tasks started by watcher",
		},
		[]string{"watcher"},
	)

	m.tasksFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saga_tasks_finished_total",
			Help: "Total number of tasks finished by watcher and final state",
		},
		[]string{"watcher", "state"},
	)

	m.taskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "saga_task_duration_seconds",
			Help:    "Task lifetime in seconds",
			Buckets: cfg.TaskDurationBuckets,
		},
		[]string{"watcher"},
	)

	m.tasksLive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "saga_tasks_live",
			Help: "Current number of tasks that have not finished",
		},
	)

	m.dispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saga_dispatch_total",
			Help: "Total number of actions dispatched by type",
		},
		[]string{"action"},
	)

	m.registry.MustRegister(m.tasksStarted)
	m.registry.MustRegister(m.tasksFinished)
	m.registry.MustRegister(m.taskDuration)
	m.registry.MustRegister(m.tasksLive)
	m.registry.MustRegister(m.dispatches)
}

// RecordTaskStarted records a task started for watcher.
func (m *Manager) RecordTaskStarted(watcher string) {
	if !m.enabled {
		return
	}
	m.tasksStarted.WithLabelValues(watcher).Inc()
}

// RecordTaskFinished records the final state and lifetime of a task.
func (m *Manager) RecordTaskFinished(watcher string, state string, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.tasksFinished.WithLabelValues(watcher, state).Inc()
	m.taskDuration.WithLabelValues(watcher).Observe(duration.Seconds())
}

// RecordDispatch records an action dispatched into the scheduler.
func (m *Manager) RecordDispatch(actionType string) {
	if !m.enabled {
		return
	}
	m.dispatches.WithLabelValues(actionType).Inc()
}

// SetLiveTasks sets the live task gauge.
func (m *Manager) SetLiveTasks(count int) {
	if !m.enabled {
		return
	}
	m.tasksLive.Set(float64(count))
}
