package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks consent decisions and personalization outcomes.
type Metrics struct {
	ConsentRecorded     *prometheus.CounterVec
	Personalizations    *prometheus.CounterVec
	CategoriesDisclosed *prometheus.CounterVec
	Deletions           prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ConsentRecorded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "piiguard_consent_recorded_total",
			Help: "Total number of consent decisions recorded by retention choice",
		}, []string{"retention"}),
		Personalizations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "piiguard_consent_personalizations_total",
			Help: "Total number of personalization requests by outcome",
		}, []string{"outcome"}),
		CategoriesDisclosed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "piiguard_consent_categories_disclosed_total",
			Help: "Total number of categories re-inserted into personalized text",
		}, []string{"category"}),
		Deletions: factory.NewCounter(prometheus.CounterOpts{
			Name: "piiguard_consent_session_deletions_total",
			Help: "Total number of delete-all requests completed",
		}),
	}
}

func (m *Metrics) IncrementRecorded(retention string) {
	m.ConsentRecorded.WithLabelValues(retention).Inc()
}

// IncrementPersonalization records one personalization and the categories it disclosed.
func (m *Metrics) IncrementPersonalization(outcome string, disclosed []string) {
	m.Personalizations.WithLabelValues(outcome).Inc()
	for _, c := range disclosed {
		m.CategoriesDisclosed.WithLabelValues(c).Inc()
	}
}

func (m *Metrics) IncrementDeletion() {
	m.Deletions.Inc()
}
