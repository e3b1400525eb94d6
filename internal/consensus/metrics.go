package consensus

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "casper"

// metrics counts what a validator accepts, produces and rejects.
type metrics struct {
	accepted      prometheus.Counter
	generated     prometheus.Counter
	latestUpdates prometheus.Counter
	faults        *prometheus.CounterVec
}

// newMetrics creates the counters for validator and registers them on reg.
// A nil reg leaves them unregistered.
func newMetrics(validator string, reg prometheus.Registerer) (*metrics, error) {
	labels := prometheus.Labels{"validator": validator}

	m := &metrics{
		accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        "messages_accepted_total",
			Help:        "Number of messages verified and trusted.",
			ConstLabels: labels,
		}),
		generated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        "messages_generated_total",
			Help:        "Number of new messages produced by the validator.",
			ConstLabels: labels,
		}),
		latestUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        "latest_updates_total",
			Help:        "Number of latest-message pointer changes.",
			ConstLabels: labels,
		}),
		faults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        "byzantine_faults_total",
			Help:        "Number of rejected messages by fault kind.",
			ConstLabels: labels,
		}, []string{"kind"}),
	}

	if reg == nil {
		return m, nil
	}

	err := errors.Join(
		reg.Register(m.accepted),
		reg.Register(m.generated),
		reg.Register(m.latestUpdates),
		reg.Register(m.faults),
	)

	return m, err
}
