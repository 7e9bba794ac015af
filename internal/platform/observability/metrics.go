package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/souqly/api/commerce"

// CommerceMetrics records order placement and stock signals through OpenTelemetry.
// Without a configured MeterProvider the instruments are no-ops.
type CommerceMetrics struct {
	checkouts      metric.Int64Counter
	checkoutTime   metric.Float64Histogram
	orderRevenue   metric.Int64Counter
	transitions    metric.Int64Counter
	lowStockAlerts metric.Int64Counter
}

// NewCommerceMetrics registers the commerce instruments on the given meter
// provider, falling back to the global provider when nil.
func NewCommerceMetrics(provider metric.MeterProvider) (*CommerceMetrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(meterName)

	checkouts, err := meter.Int64Counter("souq.checkout.attempts",
		metric.WithDescription("Checkout attempts partitioned by outcome"))
	if err != nil {
		return nil, err
	}
	checkoutTime, err := meter.Float64Histogram("souq.checkout.duration",
		metric.WithDescription("Checkout latency"), metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	revenue, err := meter.Int64Counter("souq.orders.revenue",
		metric.WithDescription("Order totals in minor currency units"))
	if err != nil {
		return nil, err
	}
	transitions, err := meter.Int64Counter("souq.orders.transitions",
		metric.WithDescription("Order status transitions"))
	if err != nil {
		return nil, err
	}
	lowStock, err := meter.Int64Counter("souq.inventory.low_stock",
		metric.WithDescription("Products that crossed their low stock threshold"))
	if err != nil {
		return nil, err
	}

	return &CommerceMetrics{
		checkouts:      checkouts,
		checkoutTime:   checkoutTime,
		orderRevenue:   revenue,
		transitions:    transitions,
		lowStockAlerts: lowStock,
	}, nil
}

// RecordCheckout records one checkout attempt. outcome is "placed" or an error kind.
func (m *CommerceMetrics) RecordCheckout(ctx context.Context, outcome string, elapsed time.Duration, total int64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.checkouts.Add(ctx, 1, attrs)
	m.checkoutTime.Record(ctx, elapsed.Seconds(), attrs)
	if outcome == "placed" && total > 0 {
		m.orderRevenue.Add(ctx, total)
	}
}

// RecordTransition counts an order status change.
func (m *CommerceMetrics) RecordTransition(ctx context.Context, from, to string) {
	if m == nil {
		return
	}
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// RecordLowStock counts a low stock signal for a product.
func (m *CommerceMetrics) RecordLowStock(ctx context.Context, productID string) {
	if m == nil {
		return
	}
	m.lowStockAlerts.Add(ctx, 1, metric.WithAttributes(attribute.String("product_id", productID)))
}
