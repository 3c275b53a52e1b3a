package notify

import "github.com/prometheus/client_golang/prometheus"

// DeliveryMetrics exposes counters for dispatcher actions and reminder sends.
type DeliveryMetrics struct {
	outcomes  *prometheus.CounterVec
	reminders *prometheus.CounterVec
}

func NewDeliveryMetrics(reg prometheus.Registerer) *DeliveryMetrics {
	m := &DeliveryMetrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicdesk",
			Subsystem: "notify",
			Name:      "dispatch_outcomes_total",
			Help:      "Dispatcher action outcomes by action and status",
		}, []string{"action", "status"}),
		reminders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicdesk",
			Subsystem: "notify",
			Name:      "reminders_total",
			Help:      "Reminder delivery attempts by kind and status",
		}, []string{"kind", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.outcomes, m.reminders)
	return m
}

func (m *DeliveryMetrics) ObserveOutcome(action string, ok bool) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(action, statusLabel(ok)).Inc()
}

func (m *DeliveryMetrics) ObserveReminder(kind string, ok bool) {
	if m == nil {
		return
	}
	m.reminders.WithLabelValues(kind, statusLabel(ok)).Inc()
}

func statusLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}
