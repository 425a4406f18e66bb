package matching

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
)

// Assignment outcomes recorded on Metrics.Assignments.
const (
	OutcomeAssigned    = "assigned"
	OutcomeNoLocation  = "no_location"
	OutcomeNoCandidate = "no_candidate"
	OutcomeConflict    = "conflict"
	OutcomeError       = "error"
)

// Metrics exposes matcher counters to Prometheus. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Searches         *prometheus.CounterVec
	Candidates       *prometheus.HistogramVec
	Assignments      *prometheus.CounterVec
	SkippedCollector prometheus.Counter
}

// NewMetrics registers matcher metrics against reg, reusing collectors that
// are already registered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	searches, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "isuku_matching_searches_total",
		Help: "Proximity searches served, by kind.",
	}, []string{"kind"}), "isuku_matching_searches_total")
	if err != nil {
		return nil, err
	}

	candidates, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "isuku_matching_candidates",
		Help:    "Number of matches returned per search.",
		Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
	}, []string{"kind"}), "isuku_matching_candidates")
	if err != nil {
		return nil, err
	}

	assignments, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "isuku_matching_auto_assignments_total",
		Help: "Auto-assignment attempts, by outcome.",
	}, []string{"outcome"}), "isuku_matching_auto_assignments_total")
	if err != nil {
		return nil, err
	}

	skipped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "isuku_matching_skipped_collectors_total",
		Help: "Candidates passed over because they became unavailable before the claim.",
	})
	if err := reg.Register(skipped); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, eris.Wrap(err, "matching: register isuku_matching_skipped_collectors_total")
		}
		existing, ok := are.ExistingCollector.(prometheus.Counter)
		if !ok {
			return nil, eris.New("matching: isuku_matching_skipped_collectors_total already registered with incompatible type")
		}
		skipped = existing
	}

	return &Metrics{
		Searches:         searches,
		Candidates:       candidates,
		Assignments:      assignments,
		SkippedCollector: skipped,
	}, nil
}

func (m *Metrics) observeSearch(kind string, n int) {
	if m == nil {
		return
	}
	m.Searches.WithLabelValues(kind).Inc()
	m.Candidates.WithLabelValues(kind).Observe(float64(n))
}

func (m *Metrics) observeAssignment(outcome string) {
	if m == nil {
		return
	}
	m.Assignments.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeSkip() {
	if m == nil {
		return
	}
	m.SkippedCollector.Inc()
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, eris.Errorf("matching: %s already registered with incompatible type", name)
		}
		return nil, eris.Wrapf(err, "matching: register %s", name)
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, eris.Errorf("matching: %s already registered with incompatible type", name)
		}
		return nil, eris.Wrapf(err, "matching: register %s", name)
	}
	return vec, nil
}
