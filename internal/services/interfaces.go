package services

import (
	"context"
	"time"

	domain "github.com/souqly/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Cart             = domain.Cart
	CartOwner        = domain.CartOwner
	Order            = domain.Order
	OrderStatus      = domain.OrderStatus
	Promotion        = domain.Promotion
	DeliveryZone     = domain.DeliveryZone
	DeliveryQuote    = domain.DeliveryQuote
	PricingBreakdown = domain.PricingBreakdown
)

// DeliveryFeeService resolves delivery fees and lead times for zones.
type DeliveryFeeService interface {
	// Quote never fails for an unknown zone; it returns the explicit default
	// quote with Defaulted set instead.
	Quote(ctx context.Context, zone string, method domain.DeliveryMethod) (DeliveryQuote, error)
	// QuoteStrict fails with ErrZoneNotFound when the zone is unknown.
	QuoteStrict(ctx context.Context, zone string, method domain.DeliveryMethod) (DeliveryQuote, error)
	Lookup(ctx context.Context, zone string) (DeliveryZone, error)
	Invalidate(zone string)
}

// PromotionValidator checks a promotion code against a subtotal without side effects.
type PromotionValidator interface {
	Validate(ctx context.Context, check PromotionCheck) (PromotionResult, error)
}

// PricingEngine prices carts.
type PricingEngine interface {
	Price(ctx context.Context, cmd PriceCommand) (PricingBreakdown, error)
	// Delivery resolves the delivery quote used by Price.
	Delivery(ctx context.Context, zone string, method domain.DeliveryMethod, strict bool) (DeliveryQuote, error)
	// Totals prices lines against an already resolved quote without I/O, so
	// it can run inside a storage transaction.
	Totals(lines []PriceLine, promotion *PromotionResult, quote DeliveryQuote) PricingBreakdown
}

// CartService manages shopper carts and priced previews.
type CartService interface {
	GetCart(ctx context.Context, owner CartOwner, opts CartPreviewOptions) (CartView, error)
	AddItem(ctx context.Context, cmd CartItemCommand) (CartView, error)
	SetItemQuantity(ctx context.Context, cmd CartItemCommand) (CartView, error)
	RemoveItem(ctx context.Context, owner CartOwner, productID string) (CartView, error)
	ApplyPromotion(ctx context.Context, cmd ApplyPromotionCommand) (CartView, error)
	RemovePromotion(ctx context.Context, owner CartOwner) (CartView, error)
}

// CheckoutService converts a cart into an order.
type CheckoutService interface {
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (CheckoutResult, error)
}

// OrderService reads orders and drives their lifecycle.
type OrderService interface {
	GetOrder(ctx context.Context, scope OrderScope, orderID string) (Order, error)
	ListOrders(ctx context.Context, scope OrderScope, filter OrderListFilter) (domain.CursorPage[Order], error)
	TransitionStatus(ctx context.Context, cmd OrderTransitionCommand) (Order, error)
	CancelOrder(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	RequestReturn(ctx context.Context, cmd ReturnOrderCommand) (Order, error)
	CreateAdminOrder(ctx context.Context, cmd AdminOrderCommand) (Order, error)
	PurgeOrder(ctx context.Context, orderID, actorID string) (Order, error)
}

// CatalogAdminService maintains the reference data the core depends on.
type CatalogAdminService interface {
	ListZones(ctx context.Context) ([]DeliveryZone, error)
	UpsertZone(ctx context.Context, zone DeliveryZone) (DeliveryZone, error)
	UpsertPromotion(ctx context.Context, promotion Promotion) (Promotion, error)
	AdjustStock(ctx context.Context, productID string, delta int64) (domain.Product, error)
}

// OrderNumberGenerator issues display order numbers.
type OrderNumberGenerator interface {
	CheckoutNumber(ctx context.Context) (string, error)
	AdminNumber(ctx context.Context) (string, error)
}

// OrderNotifier delivers best-effort notifications to customers and operators.
type OrderNotifier interface {
	NotifyOrderStatus(ctx context.Context, note OrderStatusNotification) error
	NotifyLowStock(ctx context.Context, note LowStockNotification) error
}

// CommerceMetrics receives checkout and lifecycle measurements.
type CommerceMetrics interface {
	RecordCheckout(ctx context.Context, outcome string, elapsed time.Duration, total int64)
	RecordTransition(ctx context.Context, from, to string)
	RecordLowStock(ctx context.Context, productID string)
}

// OrderScope is the narrowed view computed once at the request boundary. An
// empty UserID grants access to every order.
type OrderScope struct {
	UserID string
}

// Unrestricted reports whether the scope spans all customers.
func (s OrderScope) Unrestricted() bool { return s.UserID == "" }

// PromotionCheck is the input to PromotionValidator.Validate.
type PromotionCheck struct {
	Code     string
	Subtotal int64
	// UserID enables the per-user cap check; empty for anonymous shoppers.
	UserID string
}

// PromotionResult is a successful validation.
type PromotionResult struct {
	Code         string
	Type         domain.PromotionType
	Discount     int64
	FreeShipping bool
	Description  string
}

// PriceLine is one priced input line.
type PriceLine struct {
	Product  domain.Product
	Quantity int64
}

// PriceCommand is the input to PricingEngine.Price.
type PriceCommand struct {
	Lines     []PriceLine
	Zone      string
	Method    domain.DeliveryMethod
	Promotion *PromotionResult
	// StrictZone fails on unknown zones instead of applying the default fee.
	StrictZone bool
}

// CartPreviewOptions selects the delivery parameters used to price a cart.
type CartPreviewOptions struct {
	Zone   string
	Method domain.DeliveryMethod
}

// CartView is a cart together with its current price breakdown.
type CartView struct {
	Cart    Cart
	Pricing PricingBreakdown
	// PromotionError explains why a stored promotion no longer applies.
	PromotionError error
}

// CartItemCommand adds or sets the quantity of a product.
type CartItemCommand struct {
	Owner     CartOwner
	ProductID string
	Quantity  int64
	Preview   CartPreviewOptions
}

// ApplyPromotionCommand validates and attaches a promotion code to a cart.
type ApplyPromotionCommand struct {
	Owner   CartOwner
	Code    string
	Preview CartPreviewOptions
}

// PlaceOrderCommand is the buyer checkout input.
type PlaceOrderCommand struct {
	UserID         string
	Customer       domain.Customer
	Address        domain.ShippingAddress
	PaymentMethod  domain.PaymentMethod
	DeliveryMethod domain.DeliveryMethod
	PromotionCode  string
	Notes          string
	Locale         string
}

// CheckoutResult is returned by a successful checkout.
type CheckoutResult struct {
	Order             Order
	Number            string
	Total             int64
	Discount          int64
	EstimatedDelivery time.Time
	PaymentStatus     domain.PaymentStatus
}

// OrderListFilter narrows order listings.
type OrderListFilter struct {
	Statuses  []OrderStatus
	PageSize  int
	PageToken string
}

// OrderTransitionCommand moves an order to a new status.
type OrderTransitionCommand struct {
	OrderID string
	Status  OrderStatus
	ActorID string
	Reason  string
	Locale  string
	Scope   OrderScope
}

// CancelOrderCommand cancels an order that has not shipped yet.
type CancelOrderCommand struct {
	OrderID string
	ActorID string
	Reason  string
	Scope   OrderScope
}

// ReturnOrderCommand records the return of a delivered order.
type ReturnOrderCommand struct {
	OrderID string
	ActorID string
	Reason  string
	Scope   OrderScope
}

// AdminOrderLine requests a quantity of a product for an admin order.
type AdminOrderLine struct {
	ProductID string
	Quantity  int64
}

// AdminOrderCommand creates an order on behalf of a customer.
type AdminOrderCommand struct {
	ActorID        string
	UserID         string
	Customer       domain.Customer
	Lines          []AdminOrderLine
	Zone           string
	DeliveryMethod domain.DeliveryMethod
	PaymentMethod  domain.PaymentMethod
	Address        domain.ShippingAddress
	Notes          string
}

// OrderStatusNotification is sent when an order changes state.
type OrderStatusNotification struct {
	OrderID     string
	OrderNumber string
	UserID      string
	Email       string
	Name        string
	Status      OrderStatus
	Total       int64
	Locale      string
	OccurredAt  time.Time
}

// LowStockNotification is sent when checkout leaves a product at or below its threshold.
type LowStockNotification struct {
	ProductID  string
	Name       string
	Remaining  int64
	Threshold  int64
	OccurredAt time.Time
}
