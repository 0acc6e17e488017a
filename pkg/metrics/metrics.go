package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics records the outcomes of the order placement engine.
type CheckoutMetrics struct {
	ordersPlaced    *prometheus.CounterVec
	stockConflicts  prometheus.Counter
	captures        *prometheus.CounterVec
	redemptions     *prometheus.CounterVec
	placingDuration prometheus.Histogram
}

// NewCheckoutMetrics registers the checkout metrics on the provided registerer.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	ordersPlaced := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_placed_total",
		Help: "Orders created, labelled by settlement timing.",
	}, []string{"settlement"})
	stockConflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reservation_conflicts_total",
		Help: "Reservations aborted for insufficient stock.",
	})
	captures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_captures_total",
		Help: "Capture callbacks, labelled by result.",
	}, []string{"result"})
	redemptions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "voucher_redemptions_total",
		Help: "Voucher redemption attempts, labelled by result.",
	}, []string{"result"})
	placingDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "order_placement_duration_seconds",
		Help:    "Duration of the order assembly transaction.",
		Buckets: prometheus.DefBuckets,
	})
	reg.MustRegister(ordersPlaced, stockConflicts, captures, redemptions, placingDuration)
	return &CheckoutMetrics{
		ordersPlaced:    ordersPlaced,
		stockConflicts:  stockConflicts,
		captures:        captures,
		redemptions:     redemptions,
		placingDuration: placingDuration,
	}
}

// IncOrderPlaced counts a created order for the given settlement timing.
func (m *CheckoutMetrics) IncOrderPlaced(settlement string) {
	if m == nil || m.ordersPlaced == nil {
		return
	}
	m.ordersPlaced.WithLabelValues(normalizeLabel(settlement)).Inc()
}

// IncStockConflict counts a reservation aborted on insufficient stock.
func (m *CheckoutMetrics) IncStockConflict() {
	if m == nil || m.stockConflicts == nil {
		return
	}
	m.stockConflicts.Inc()
}

// IncCapture counts a capture callback outcome.
func (m *CheckoutMetrics) IncCapture(result string) {
	if m == nil || m.captures == nil {
		return
	}
	m.captures.WithLabelValues(normalizeLabel(result)).Inc()
}

// IncRedemption counts a voucher redemption attempt outcome.
func (m *CheckoutMetrics) IncRedemption(result string) {
	if m == nil || m.redemptions == nil {
		return
	}
	m.redemptions.WithLabelValues(normalizeLabel(result)).Inc()
}

// ObservePlacement records how long order assembly took.
func (m *CheckoutMetrics) ObservePlacement(d time.Duration) {
	if m == nil || m.placingDuration == nil {
		return
	}
	m.placingDuration.Observe(d.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
