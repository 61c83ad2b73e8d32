package checkout

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/xenking/bookstore-checkout/internal/domain/cart"
)

// Metrics counts checkout outcomes.
type Metrics struct {
	placed       metric.Int64Counter
	rejected     metric.Int64Counter
	invalidPromo metric.Int64Counter
	underfunded  metric.Int64Counter
}

// NewMetrics registers the checkout counters. A nil provider disables them.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	meter := mp.Meter("github.com/xenking/bookstore-checkout/internal/checkout")

	var (
		m   Metrics
		err error
	)
	if m.placed, err = meter.Int64Counter("checkout.orders.placed",
		metric.WithDescription("Orders accepted by the upstream")); err != nil {
		return nil, errors.Wrap(err, "orders placed counter")
	}
	if m.rejected, err = meter.Int64Counter("checkout.orders.rejected",
		metric.WithDescription("Orders rejected by the upstream as stale")); err != nil {
		return nil, errors.Wrap(err, "orders rejected counter")
	}
	if m.invalidPromo, err = meter.Int64Counter("checkout.promo.invalid",
		metric.WithDescription("Promo codes rejected or invalidated on re-validation")); err != nil {
		return nil, errors.Wrap(err, "invalid promo counter")
	}
	if m.underfunded, err = meter.Int64Counter("checkout.orders.insufficient_funds",
		metric.WithDescription("Submissions blocked by wallet balance")); err != nil {
		return nil, errors.Wrap(err, "insufficient funds counter")
	}
	return &m, nil
}

func pickupAttr(p cart.PickupType) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("pickup_type", string(p)))
}

func (m *Metrics) orderPlaced(ctx context.Context, p cart.PickupType) {
	m.placed.Add(ctx, 1, pickupAttr(p))
}

func (m *Metrics) orderRejected(ctx context.Context, p cart.PickupType) {
	m.rejected.Add(ctx, 1, pickupAttr(p))
}

func (m *Metrics) promoInvalid(ctx context.Context) {
	m.invalidPromo.Add(ctx, 1)
}

func (m *Metrics) insufficientFunds(ctx context.Context, p cart.PickupType) {
	m.underfunded.Add(ctx, 1, pickupAttr(p))
}
