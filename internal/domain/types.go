package domain

import (
	"strings"
	"time"
)

// CursorPage represents a paginated collection returned by repositories and services.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// Product mirrors the catalog entry the core reads and mutates during checkout.
// Price is expressed in minor currency units.
type Product struct {
	ID                string
	Name              string
	Price             int64
	StockQuantity     int64
	Sold              int64
	LowStockThreshold int64
	Condition         string
	Visible           bool
	Deleted           bool
	UpdatedAt         time.Time
}

// Purchasable reports whether the product may appear on a new order.
func (p Product) Purchasable() bool {
	return p.Visible && !p.Deleted
}

// InStock reports whether any stock remains.
func (p Product) InStock() bool {
	return p.StockQuantity > 0
}

// CartOwnerKind distinguishes registered users from anonymous sessions.
type CartOwnerKind string

const (
	CartOwnerUser    CartOwnerKind = "user"
	CartOwnerSession CartOwnerKind = "session"
)

// CartOwner identifies the single principal a cart belongs to.
type CartOwner struct {
	Kind CartOwnerKind
	ID   string
}

// Key returns the storage key for the owner, e.g. "user:abc".
func (o CartOwner) Key() string {
	id := strings.TrimSpace(o.ID)
	if id == "" || o.Kind == "" {
		return ""
	}
	return string(o.Kind) + ":" + id
}

// UserID returns the owner's user id when the cart belongs to a registered user.
func (o CartOwner) UserID() string {
	if o.Kind != CartOwnerUser {
		return ""
	}
	return strings.TrimSpace(o.ID)
}

// Cart holds line items and the promotion annotations applied during preview.
type Cart struct {
	Owner         CartOwner
	Items         []CartItem
	PromotionCode string
	Discount      int64
	FreeShipping  bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CartItem references a product and a positive quantity.
type CartItem struct {
	ProductID string
	Quantity  int64
	AddedAt   time.Time
}

// IsEmpty reports whether the cart has no line items.
func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// WithoutOrdered subtracts ordered quantities from the cart. Lines added or
// increased after checkout read the cart survive. The promotion is dropped
// when it is the one the order redeemed.
func (c Cart) WithoutOrdered(ordered []CartItem, promotionCode string) Cart {
	taken := make(map[string]int64, len(ordered))
	for _, item := range ordered {
		taken[item.ProductID] += item.Quantity
	}
	items := make([]CartItem, 0, len(c.Items))
	for _, item := range c.Items {
		item.Quantity -= taken[item.ProductID]
		delete(taken, item.ProductID)
		if item.Quantity > 0 {
			items = append(items, item)
		}
	}
	c.Items = items
	if promotionCode != "" && NormalizePromotionCode(c.PromotionCode) == NormalizePromotionCode(promotionCode) {
		c.PromotionCode = ""
		c.Discount = 0
		c.FreeShipping = false
	}
	return c
}

// PromotionType enumerates discount strategies.
type PromotionType string

const (
	PromotionTypePercentage   PromotionType = "percentage"
	PromotionTypeFixed        PromotionType = "fixed"
	PromotionTypeFreeShipping PromotionType = "free_shipping"
)

// Promotion is a redeemable discount code.
//
// Value is interpreted by Type: basis points for percentage promotions
// (1000 = 10%), minor currency units for fixed promotions, ignored for free
// shipping. A zero UsageLimit or PerUserLimit means unlimited.
type Promotion struct {
	Code         string
	Type         PromotionType
	Value        int64
	MinPurchase  int64
	MaxDiscount  int64
	StartsAt     time.Time
	EndsAt       time.Time
	Active       bool
	UsageLimit   int64
	PerUserLimit int64
	UsageCount   int64
	Description  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// InWindow reports whether now falls inside the promotion's active window.
func (p Promotion) InWindow(now time.Time) bool {
	if !p.StartsAt.IsZero() && now.Before(p.StartsAt) {
		return false
	}
	if !p.EndsAt.IsZero() && now.After(p.EndsAt) {
		return false
	}
	return true
}

// GlobalCapReached reports whether the global usage limit has been consumed.
func (p Promotion) GlobalCapReached() bool {
	return p.UsageLimit > 0 && p.UsageCount >= p.UsageLimit
}

// NormalizePromotionCode upper-cases and trims a promotion code.
func NormalizePromotionCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// DeliveryZone is the governorate reference row used for delivery pricing.
type DeliveryZone struct {
	Name         string
	Fee          int64
	DeliveryDays int
	UpdatedAt    time.Time
}

// NormalizeZoneName produces the lookup key for a zone name.
func NormalizeZoneName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), "-"))
}

// DeliveryMethod selects the delivery speed.
type DeliveryMethod string

const (
	DeliveryMethodStandard DeliveryMethod = "standard"
	DeliveryMethodExpress  DeliveryMethod = "express"
)

// PaymentMethod enumerates supported payment methods.
type PaymentMethod string

const (
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
	PaymentMethodOnline         PaymentMethod = "online"
)

// PaymentStatus tracks the payment lifecycle on an order.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// OrderStatus is the fulfilment state of an order.
type OrderStatus string

const (
	OrderStatusPlaced           OrderStatus = "placed"
	OrderStatusPaymentConfirmed OrderStatus = "payment_confirmed"
	OrderStatusShipped          OrderStatus = "shipped"
	OrderStatusOutForDelivery   OrderStatus = "out_for_delivery"
	OrderStatusDelivered        OrderStatus = "delivered"
	OrderStatusCancelled        OrderStatus = "cancelled"
	OrderStatusReturned         OrderStatus = "returned"
)

// OrderSource records which path created the order.
type OrderSource string

const (
	OrderSourceCheckout OrderSource = "checkout"
	OrderSourceAdmin    OrderSource = "admin"
)

// ShippingAddress is the address snapshot captured on the order.
type ShippingAddress struct {
	FullName   string
	Phone      string
	Street     string
	City       string
	Zone       string
	Country    string
	PostalCode string
}

// Customer captures the contact details used for notifications.
type Customer struct {
	Email string
	Name  string
}

// Order is the immutable purchase snapshot plus its lifecycle state.
type Order struct {
	ID                string
	Number            string
	UserID            string
	Customer          Customer
	Lines             []OrderLine
	Totals            OrderTotals
	PromotionCode     string
	FreeShipping      bool
	PaymentMethod     PaymentMethod
	PaymentStatus     PaymentStatus
	DeliveryMethod    DeliveryMethod
	Zone              string
	ShippingAddress   ShippingAddress
	Status            OrderStatus
	Source            OrderSource
	Notes             string
	EstimatedDelivery time.Time
	DeliveredAt       *time.Time
	Cancellation      *OrderCancellation
	Return            *OrderReturn
	Restocked         bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// OrderLine snapshots the product at purchase time.
type OrderLine struct {
	ProductID string
	Name      string
	Quantity  int64
	UnitPrice int64
	Condition string
	LineTotal int64
}

// OrderTotals stores the monetary breakdown in minor units.
type OrderTotals struct {
	Subtotal    int64
	Discount    int64
	VAT         int64
	DeliveryFee int64
	Total       int64
}

// OrderCancellation records who cancelled an order and why.
type OrderCancellation struct {
	Reason      string
	CancelledBy string
	CancelledAt time.Time
}

// OrderReturn records a completed return.
type OrderReturn struct {
	Reason     string
	ReturnedBy string
	ReturnedAt time.Time
}
