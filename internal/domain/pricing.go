package domain

import "time"

// PricingBreakdown captures the aggregated monetary results of pricing a cart.
type PricingBreakdown struct {
	Currency             string
	Lines                []PricedLine
	Dropped              []string
	Subtotal             int64
	Discount             int64
	DiscountedSubtotal   int64
	VAT                  int64
	DeliveryFee          int64
	Total                int64
	Promotion            *AppliedPromotion
	Delivery             DeliveryQuote
	EstimatedDeliveryDay time.Time
}

// PricedLine is a cart line priced against the current product record.
type PricedLine struct {
	ProductID string
	Name      string
	Quantity  int64
	UnitPrice int64
	Condition string
	LineTotal int64
}

// AppliedPromotion describes the promotion that contributed to a breakdown.
type AppliedPromotion struct {
	Code         string
	Type         PromotionType
	Discount     int64
	FreeShipping bool
	Description  string
}

// DeliveryQuote is the fee and lead time resolved for a zone and method.
type DeliveryQuote struct {
	Zone      string
	Method    DeliveryMethod
	Fee       int64
	Days      int
	Defaulted bool
}
