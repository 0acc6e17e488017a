package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCheckoutMetricsCount(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewCheckoutMetrics(reg)

	m.IncOrderPlaced("immediate")
	m.IncOrderPlaced("immediate")
	m.IncOrderPlaced("deferred")
	m.IncStockConflict()
	m.IncCapture("")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	byName := map[string]*dto.MetricFamily{}
	for _, fam := range families {
		byName[fam.GetName()] = fam
	}

	placed := byName["orders_placed_total"]
	if placed == nil {
		t.Fatal("orders_placed_total not registered")
	}
	total := 0.0
	for _, metric := range placed.GetMetric() {
		total += metric.GetCounter().GetValue()
	}
	if total != 3 {
		t.Fatalf("expected 3 placed orders, got %v", total)
	}

	captures := byName["payment_captures_total"]
	if captures == nil {
		t.Fatal("payment_captures_total not registered")
	}
	if label := captures.GetMetric()[0].GetLabel()[0].GetValue(); label != "unknown" {
		t.Fatalf("empty label not normalized: %q", label)
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	t.Parallel()

	var m *CheckoutMetrics
	m.IncOrderPlaced("immediate")
	m.IncStockConflict()

	empty := NewCheckoutMetrics(nil)
	empty.IncCapture("ok")
}
