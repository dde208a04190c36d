package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the secure store.
// Tracks entry lifecycle counts and the key-derivation critical path.
type Metrics struct {
	EntriesStored     prometheus.Counter
	Retrievals        *prometheus.CounterVec
	EntriesPurged     *prometheus.CounterVec
	SweepCleaned      prometheus.Counter
	SweepErrors       prometheus.Counter
	Lockouts          prometheus.Counter
	StoreDuration     prometheus.Histogram
	RetrieveDuration  prometheus.Histogram
	SweepDuration     prometheus.Histogram
	EntryLifetimeSecs prometheus.Histogram
}

var kdfBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

// New creates a new Metrics instance registered with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EntriesStored: factory.NewCounter(prometheus.CounterOpts{
			Name: "piiguard_vault_entries_stored_total",
			Help: "Total number of encrypted entries stored",
		}),
		Retrievals: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "piiguard_vault_retrievals_total",
			Help: "Total number of retrieval attempts by outcome",
		}, []string{"outcome"}),
		EntriesPurged: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "piiguard_vault_entries_purged_total",
			Help: "Total number of entries destroyed by reason",
		}, []string{"reason"}),
		SweepCleaned: factory.NewCounter(prometheus.CounterOpts{
			Name: "piiguard_vault_sweep_cleaned_total",
			Help: "Total number of expired entries removed by the sweeper",
		}),
		SweepErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "piiguard_vault_sweep_errors_total",
			Help: "Total number of sweep failures",
		}),
		Lockouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "piiguard_vault_lockouts_total",
			Help: "Total number of entries purged after repeated failed retrievals",
		}),
		StoreDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "piiguard_vault_store_duration_seconds",
			Help:    "Duration of Store operations including key derivation",
			Buckets: kdfBuckets,
		}),
		RetrieveDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "piiguard_vault_retrieve_duration_seconds",
			Help:    "Duration of Retrieve operations including key derivation",
			Buckets: kdfBuckets,
		}),
		SweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "piiguard_vault_sweep_duration_seconds",
			Help:    "Duration of sweep passes",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		EntryLifetimeSecs: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "piiguard_vault_entry_lifetime_seconds",
			Help:    "Age of entries when destroyed",
			Buckets: []float64{60, 300, 900, 1800, 3600, 7200, 21600, 86400},
		}),
	}
}

// IncrementStored records a successful store.
func (m *Metrics) IncrementStored() {
	m.EntriesStored.Inc()
}

// IncrementRetrieval records a retrieval attempt by outcome.
func (m *Metrics) IncrementRetrieval(outcome string) {
	m.Retrievals.WithLabelValues(outcome).Inc()
}

// IncrementPurged records a destroyed entry and its age.
func (m *Metrics) IncrementPurged(reason string, age time.Duration) {
	m.EntriesPurged.WithLabelValues(reason).Inc()
	m.EntryLifetimeSecs.Observe(age.Seconds())
}

// IncrementLockout records a lockout purge.
func (m *Metrics) IncrementLockout() {
	m.Lockouts.Inc()
}

// ObserveSweep records one sweep pass.
func (m *Metrics) ObserveSweep(start time.Time, cleaned, errors int) {
	m.SweepDuration.Observe(time.Since(start).Seconds())
	m.SweepCleaned.Add(float64(cleaned))
	m.SweepErrors.Add(float64(errors))
}

// ObserveStore records the duration of a Store operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveStore(start time.Time) {
	m.StoreDuration.Observe(time.Since(start).Seconds())
}

// ObserveRetrieve records the duration of a Retrieve operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveRetrieve(start time.Time) {
	m.RetrieveDuration.Observe(time.Since(start).Seconds())
}
