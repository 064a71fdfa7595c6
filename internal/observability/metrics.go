package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Import outcome labels.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusInvalid   = "invalid"
)

var (
	importsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "menu_imports_total",
			Help: "Snapshot imports by outcome.",
		},
		[]string{"status"},
	)

	importDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "menu_import_duration_seconds",
			Help:    "Wall-clock duration of snapshot imports.",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"status"},
	)

	importProducts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "menu_import_products_total",
			Help: "Products resolved and priced by committed imports.",
		},
	)

	importWarnings = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "menu_import_warnings_total",
			Help: "Product records skipped with a warning.",
		},
	)

	offerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "menu_offer_transitions_total",
			Help: "Offer lifecycle transitions applied by committed imports.",
		},
		[]string{"transition"},
	)
)

func init() {
	prometheus.MustRegister(importsTotal, importDuration, importProducts, importWarnings, offerTransitions)
}

// ImportObservation summarizes one import attempt.
type ImportObservation struct {
	Status   string
	Duration time.Duration
	Products int
	Warnings int
	Offers   map[string]int // transition -> count
}

// RecordImport updates the import collectors.
func RecordImport(o ImportObservation) {
	importsTotal.WithLabelValues(o.Status).Inc()
	importDuration.WithLabelValues(o.Status).Observe(o.Duration.Seconds())
	if o.Status != StatusCompleted {
		return
	}
	importProducts.Add(float64(o.Products))
	importWarnings.Add(float64(o.Warnings))
	for transition, n := range o.Offers {
		if n > 0 {
			offerTransitions.WithLabelValues(transition).Add(float64(n))
		}
	}
}
