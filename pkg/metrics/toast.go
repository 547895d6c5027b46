package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/goclaw/actiond/pkg/toast"
)

func (m *Manager) initToastMetrics() {
	m.toastsShown = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toasts_shown_total",
			Help: "Total number of toasts shown by intent",
		},
		[]string{"intent"},
	)

	m.toastsDismissed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toasts_dismissed_total",
			Help: "Total number of toasts dismissed by cause",
		},
		[]string{"cause"},
	)

	m.toastsVisible = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "toasts_visible",
			Help: "Current number of visible toasts",
		},
	)

	m.registry.MustRegister(m.toastsShown)
	m.registry.MustRegister(m.toastsDismissed)
	m.registry.MustRegister(m.toastsVisible)
}

// ObserveToasts records toast activity of stack until the returned function
// is called.
func (m *Manager) ObserveToasts(stack *toast.Stack) func() {
	if !m.enabled || stack == nil {
		return func() {}
	}
	return stack.Subscribe(func(ev toast.Event) {
		switch ev.Type {
		case toast.EventShown:
			m.toastsShown.WithLabelValues(string(ev.Toast.Intent)).Inc()
		case toast.EventDismissed:
			cause := "closed"
			if ev.TimeoutExpired {
				cause = "timeout"
			}
			m.toastsDismissed.WithLabelValues(cause).Inc()
		}
		m.toastsVisible.Set(float64(len(stack.Keys())))
	})
}
