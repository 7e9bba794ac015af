package services

import (
	"context"
	"errors"
	"time"

	domain "github.com/souqly/api/internal/domain"
)

const (
	// DefaultVATBasisPoints is the 14% value added tax.
	DefaultVATBasisPoints int64 = 1400
	defaultCurrency             = "EGP"
)

// PricingEngineDeps wires the dependencies required by the pricing engine.
type PricingEngineDeps struct {
	Fees           DeliveryFeeService
	VATBasisPoints int64
	Currency       string
	Weekend        []time.Weekday
	Clock          func() time.Time
}

type pricingEngine struct {
	fees     DeliveryFeeService
	vatBP    int64
	currency string
	weekend  []time.Weekday
	now      func() time.Time
}

// NewPricingEngine constructs the cart pricing engine.
func NewPricingEngine(deps PricingEngineDeps) (PricingEngine, error) {
	if deps.Fees == nil {
		return nil, errors.New("pricing engine: delivery fee service is required")
	}
	vat := deps.VATBasisPoints
	if vat <= 0 {
		vat = DefaultVATBasisPoints
	}
	currency := deps.Currency
	if currency == "" {
		currency = defaultCurrency
	}
	weekend := deps.Weekend
	if weekend == nil {
		weekend = DefaultWeekend
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &pricingEngine{
		fees:     deps.Fees,
		vatBP:    vat,
		currency: currency,
		weekend:  weekend,
		now:      func() time.Time { return clock().UTC() },
	}, nil
}

// Price computes the breakdown in a fixed order: drop unavailable lines,
// subtotal, discount, VAT on the discounted subtotal, delivery fee, total.
func (e *pricingEngine) Price(ctx context.Context, cmd PriceCommand) (PricingBreakdown, error) {
	quote, err := e.Delivery(ctx, cmd.Zone, cmd.Method, cmd.StrictZone)
	if err != nil {
		return PricingBreakdown{}, err
	}
	return e.Totals(cmd.Lines, cmd.Promotion, quote), nil
}

func (e *pricingEngine) Delivery(ctx context.Context, zone string, method domain.DeliveryMethod, strict bool) (DeliveryQuote, error) {
	if strict {
		return e.fees.QuoteStrict(ctx, zone, method)
	}
	return e.fees.Quote(ctx, zone, method)
}

func (e *pricingEngine) Totals(lines []PriceLine, promotion *PromotionResult, quote DeliveryQuote) PricingBreakdown {
	breakdown := ComputeTotals(lines, promotion, quote, e.vatBP)
	breakdown.Currency = e.currency
	breakdown.EstimatedDeliveryDay = EstimateDeliveryDate(e.now(), quote.Days, e.weekend)
	return breakdown
}

// ComputeTotals is the pure pricing pipeline shared by cart previews and
// order placement. Lines whose product is out of stock or no longer
// purchasable are dropped and reported by product id.
func ComputeTotals(lines []PriceLine, promotion *PromotionResult, quote DeliveryQuote, vatBasisPoints int64) PricingBreakdown {
	breakdown := PricingBreakdown{
		Lines:    make([]domain.PricedLine, 0, len(lines)),
		Delivery: quote,
	}
	for _, line := range lines {
		if line.Quantity <= 0 {
			continue
		}
		if !line.Product.Purchasable() || !line.Product.InStock() {
			breakdown.Dropped = append(breakdown.Dropped, line.Product.ID)
			continue
		}
		total := line.Product.Price * line.Quantity
		breakdown.Lines = append(breakdown.Lines, domain.PricedLine{
			ProductID: line.Product.ID,
			Name:      line.Product.Name,
			Quantity:  line.Quantity,
			UnitPrice: line.Product.Price,
			Condition: line.Product.Condition,
			LineTotal: total,
		})
		breakdown.Subtotal += total
	}

	freeShipping := false
	if promotion != nil {
		breakdown.Discount = max(min(promotion.Discount, breakdown.Subtotal), 0)
		freeShipping = promotion.FreeShipping
		breakdown.Promotion = &domain.AppliedPromotion{
			Code:         promotion.Code,
			Type:         promotion.Type,
			Discount:     breakdown.Discount,
			FreeShipping: promotion.FreeShipping,
			Description:  promotion.Description,
		}
	}

	breakdown.DiscountedSubtotal = breakdown.Subtotal - breakdown.Discount
	breakdown.VAT = PercentageOf(breakdown.DiscountedSubtotal, vatBasisPoints)
	breakdown.DeliveryFee = quote.Fee
	if freeShipping {
		breakdown.DeliveryFee = 0
	}
	breakdown.Total = breakdown.DiscountedSubtotal + breakdown.VAT + breakdown.DeliveryFee
	return breakdown
}
