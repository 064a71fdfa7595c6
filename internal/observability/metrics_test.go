package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordImport(t *testing.T) {
	baseDone := testutil.ToFloat64(importsTotal.WithLabelValues(StatusCompleted))
	baseFailed := testutil.ToFloat64(importsTotal.WithLabelValues(StatusFailed))
	baseProducts := testutil.ToFloat64(importProducts)
	baseCreated := testutil.ToFloat64(offerTransitions.WithLabelValues("created"))

	RecordImport(ImportObservation{
		Status:   StatusCompleted,
		Duration: 120 * time.Millisecond,
		Products: 10,
		Warnings: 1,
		Offers:   map[string]int{"created": 2, "deactivated": 0},
	})
	RecordImport(ImportObservation{Status: StatusFailed, Duration: time.Second, Products: 99})

	if got := testutil.ToFloat64(importsTotal.WithLabelValues(StatusCompleted)); got != baseDone+1 {
		t.Fatalf("completed imports = %v; want %v", got, baseDone+1)
	}
	if got := testutil.ToFloat64(importsTotal.WithLabelValues(StatusFailed)); got != baseFailed+1 {
		t.Fatalf("failed imports = %v; want %v", got, baseFailed+1)
	}
	// Failed imports do not count products.
	if got := testutil.ToFloat64(importProducts); got != baseProducts+10 {
		t.Fatalf("products = %v; want %v", got, baseProducts+10)
	}
	if got := testutil.ToFloat64(offerTransitions.WithLabelValues("created")); got != baseCreated+2 {
		t.Fatalf("created transitions = %v; want %v", got, baseCreated+2)
	}
}
