package saga

import (
	"sync"
	"time"
)

// MetricsRecorder records scheduler runtime metrics.
type MetricsRecorder interface {
	RecordTaskStarted(watcher string)
	RecordTaskFinished(watcher string, state string, duration time.Duration)
	RecordDispatch(actionType string)
	SetLiveTasks(count int)
}

type nopMetricsRecorder struct{}

func (n *nopMetricsRecorder) RecordTaskStarted(watcher string)                                {}
func (n *nopMetricsRecorder) RecordTaskFinished(watcher string, state string, d time.Duration) {}
func (n *nopMetricsRecorder) RecordDispatch(actionType string)                                {}
func (n *nopMetricsRecorder) SetLiveTasks(count int)                                          {}

var (
	metricsMu sync.RWMutex
	metrics   MetricsRecorder = &nopMetricsRecorder{}
)

// SetMetricsRecorder sets the package-level scheduler metrics recorder.
func SetMetricsRecorder(recorder MetricsRecorder) {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	if recorder == nil {
		metrics = &nopMetricsRecorder{}
		return
	}
	metrics = recorder
}

func metricsRecorder() MetricsRecorder {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return metrics
}
