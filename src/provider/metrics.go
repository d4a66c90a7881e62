package provider

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Receive results, used as label values.
const (
	resultAccepted  = "accepted"
	resultDuplicate = "duplicate"
	resultRejected  = "rejected"
	resultError     = "error"
)

// Metrics counts the messages handled by a Provider.
type Metrics struct {
	Sent      prometheus.Counter
	Received  *prometheus.CounterVec
	Conflicts prometheus.Counter
}

// NewMetrics creates the provider metrics and registers them with reg, which
// may be nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Sent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "herald",
			Subsystem: "provider",
			Name:      "messages_sent_total",
			Help:      "Envelopes sequenced and stored for a recipient.",
		}),
		Received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "herald",
			Subsystem: "provider",
			Name:      "messages_received_total",
			Help:      "Inbound envelopes by result.",
		}, []string{"result"}),
		Conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "herald",
			Subsystem: "provider",
			Name:      "sequence_conflicts_total",
			Help:      "Sequence numbers lost to a concurrent sender.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.Sent, m.Received, m.Conflicts)
	}

	return m
}
