package services

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/souqly/api/internal/domain"
	"github.com/souqly/api/internal/platform/textutil"
	"github.com/souqly/api/internal/repositories"
)

const (
	maxAddressFieldLength = 200
	maxOrderNotesLength   = 1000

	checkoutOutcomeSuccess  = "success"
	checkoutOutcomeRejected = "rejected"
	checkoutOutcomeFailed   = "failed"
)

// CheckoutServiceDeps wires the collaborators used by checkout.
type CheckoutServiceDeps struct {
	Carts       repositories.CartRepository
	Products    repositories.ProductRepository
	Orders      repositories.OrderRepository
	Pricing     PricingEngine
	Promotions  PromotionValidator
	Numbers     OrderNumberGenerator
	Notifier    OrderNotifier
	Metrics     CommerceMetrics
	Clock       func() time.Time
	// IDGenerator returns complete order ids. Defaults to ord_<ulid>.
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type checkoutService struct {
	carts      repositories.CartRepository
	products   repositories.ProductRepository
	orders     repositories.OrderRepository
	pricing    PricingEngine
	promotions PromotionValidator
	numbers    OrderNumberGenerator
	notifier   OrderNotifier
	metrics    CommerceMetrics
	now        func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

// NewCheckoutService constructs a CheckoutService. Notifier and Metrics are optional.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	switch {
	case deps.Carts == nil:
		return nil, errors.New("checkout service: cart repository is required")
	case deps.Products == nil:
		return nil, errors.New("checkout service: product repository is required")
	case deps.Orders == nil:
		return nil, errors.New("checkout service: order repository is required")
	case deps.Pricing == nil:
		return nil, errors.New("checkout service: pricing engine is required")
	case deps.Promotions == nil:
		return nil, errors.New("checkout service: promotion validator is required")
	case deps.Numbers == nil:
		return nil, errors.New("checkout service: order number generator is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := deps.IDGenerator
	if newID == nil {
		newID = newOrderID
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &checkoutService{
		carts:      deps.Carts,
		products:   deps.Products,
		orders:     deps.Orders,
		pricing:    deps.Pricing,
		promotions: deps.Promotions,
		numbers:    deps.Numbers,
		notifier:   deps.Notifier,
		metrics:    deps.Metrics,
		now:        func() time.Time { return clock().UTC() },
		newID:      newID,
		logger:     logger,
	}, nil
}

// PlaceOrder converts the caller's cart into an order. Stock, promotion
// counters and the order record are written in one repository transaction;
// the cart is cleared only after that commits.
func (s *checkoutService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (CheckoutResult, error) {
	started := time.Now()
	result, err := s.placeOrder(ctx, cmd)
	if s.metrics != nil {
		outcome := checkoutOutcomeSuccess
		switch {
		case err == nil:
		case errors.Is(err, ErrValidation), errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict):
			outcome = checkoutOutcomeRejected
		default:
			outcome = checkoutOutcomeFailed
		}
		s.metrics.RecordCheckout(ctx, outcome, time.Since(started), result.Total)
	}
	if err != nil {
		s.logger(ctx, "checkout.failed", map[string]any{"userId": cmd.UserID, "error": err.Error()})
	}
	return result, err
}

func (s *checkoutService) placeOrder(ctx context.Context, cmd PlaceOrderCommand) (CheckoutResult, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return CheckoutResult{}, ErrCartOwnerRequired
	}
	payment, err := normalizePaymentMethod(cmd.PaymentMethod)
	if err != nil {
		return CheckoutResult{}, err
	}
	method, err := normalizeDeliveryMethod(cmd.DeliveryMethod)
	if err != nil {
		return CheckoutResult{}, err
	}
	address := sanitizeAddress(cmd.Address)
	if err := validateAddress(address); err != nil {
		return CheckoutResult{}, err
	}

	owner := CartOwner{Kind: domain.CartOwnerUser, ID: userID}
	cart, err := s.carts.Find(ctx, owner)
	if err != nil {
		if isRepoNotFound(err) {
			return CheckoutResult{}, ErrCartEmpty
		}
		return CheckoutResult{}, translateRepoError(err, nil)
	}
	if cart.IsEmpty() {
		return CheckoutResult{}, ErrCartEmpty
	}

	code := domain.NormalizePromotionCode(cmd.PromotionCode)
	if code == "" {
		code = cart.PromotionCode
	}
	if code != "" {
		if err := s.prevalidatePromotion(ctx, cart, code, userID); err != nil {
			return CheckoutResult{}, err
		}
	}

	quote, err := s.pricing.Delivery(ctx, address.Zone, method, false)
	if err != nil {
		return CheckoutResult{}, err
	}

	number, err := s.numbers.CheckoutNumber(ctx)
	if err != nil {
		return CheckoutResult{}, err
	}

	requested := make([]AdminOrderLine, 0, len(cart.Items))
	stockLines := make([]repositories.StockLine, 0, len(cart.Items))
	for _, item := range cart.Items {
		requested = append(requested, AdminOrderLine{ProductID: item.ProductID, Quantity: item.Quantity})
		stockLines = append(stockLines, repositories.StockLine{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	orderID := s.newID()
	var lowStock []LowStockNotification
	order, err := s.orders.Place(ctx, repositories.PlaceOrderRequest{
		Lines:         stockLines,
		PromotionCode: code,
		UserID:        userID,
		Build: func(snapshot repositories.PlacementSnapshot) (domain.Order, error) {
			lines, err := linesFromSnapshot(snapshot, requested)
			if err != nil {
				return domain.Order{}, err
			}
			var promotion *PromotionResult
			if code != "" {
				if snapshot.Promotion == nil {
					return domain.Order{}, rejectPromotion(code, PromotionRuleUnknownCode, ErrPromotionInvalid)
				}
				result, err := EvaluatePromotion(*snapshot.Promotion, PromotionEvaluation{
					Subtotal:  eligibleSubtotal(lines),
					UserID:    userID,
					UserUsage: snapshot.PromotionUserUsage,
					Now:       snapshot.ReadAt,
				})
				if err != nil {
					return domain.Order{}, err
				}
				promotion = &result
			}
			pricing := s.pricing.Totals(lines, promotion, quote)
			lowStock = lowStockAfter(snapshot, lines, snapshot.ReadAt)

			now := s.now()
			return domain.Order{
				ID:                orderID,
				Number:            number,
				UserID:            userID,
				Customer:          sanitizeCustomer(cmd.Customer),
				Lines:             orderLinesFromPricing(pricing),
				Totals:            totalsFromPricing(pricing),
				PromotionCode:     appliedCode(promotion),
				FreeShipping:      promotion != nil && promotion.FreeShipping,
				PaymentMethod:     payment,
				PaymentStatus:     initialPaymentStatus(payment),
				DeliveryMethod:    quote.Method,
				Zone:              address.Zone,
				ShippingAddress:   address,
				Status:            domain.OrderStatusPlaced,
				Source:            domain.OrderSourceCheckout,
				Notes:             textutil.PlainText(cmd.Notes, maxOrderNotesLength),
				EstimatedDelivery: pricing.EstimatedDeliveryDay,
				CreatedAt:         now,
				UpdatedAt:         now,
			}, nil
		},
	})
	if err != nil {
		return CheckoutResult{}, translateRepoError(err, nil)
	}

	if err := s.carts.ClearOrdered(ctx, owner, cart.Items, order.PromotionCode); err != nil {
		s.logger(ctx, "checkout.cart_clear_failed", map[string]any{"orderId": order.ID, "userId": userID, "error": err.Error()})
	}
	s.logger(ctx, "checkout.placed", map[string]any{
		"orderId":   order.ID,
		"number":    order.Number,
		"total":     order.Totals.Total,
		"promotion": order.PromotionCode,
		"defaulted": quote.Defaulted,
	})
	s.notifyPlaced(ctx, order, cmd.Locale)
	s.notifyLowStock(ctx, lowStock)

	return CheckoutResult{
		Order:             order,
		Number:            order.Number,
		Total:             order.Totals.Total,
		Discount:          order.Totals.Discount,
		EstimatedDelivery: order.EstimatedDelivery,
		PaymentStatus:     order.PaymentStatus,
	}, nil
}

// prevalidatePromotion rejects a bad code before any stock is touched. The
// authoritative check runs again inside the placement transaction.
func (s *checkoutService) prevalidatePromotion(ctx context.Context, cart Cart, code, userID string) error {
	lines := make([]PriceLine, 0, len(cart.Items))
	for _, item := range cart.Items {
		product, err := s.products.FindByID(ctx, item.ProductID)
		if err != nil {
			if isRepoNotFound(err) {
				return &LineItemError{ProductID: item.ProductID, Err: ErrProductUnavailable}
			}
			return translateRepoError(err, nil)
		}
		lines = append(lines, PriceLine{Product: product, Quantity: item.Quantity})
	}
	_, err := s.promotions.Validate(ctx, PromotionCheck{Code: code, Subtotal: eligibleSubtotal(lines), UserID: userID})
	return err
}

func (s *checkoutService) notifyPlaced(ctx context.Context, order Order, locale string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyOrderStatus(ctx, statusNotification(order, locale, order.CreatedAt)); err != nil {
		s.logger(ctx, "checkout.notify_failed", map[string]any{"orderId": order.ID, "error": err.Error()})
	}
}

func (s *checkoutService) notifyLowStock(ctx context.Context, notes []LowStockNotification) {
	for _, note := range notes {
		if s.metrics != nil {
			s.metrics.RecordLowStock(ctx, note.ProductID)
		}
		if s.notifier == nil {
			continue
		}
		if err := s.notifier.NotifyLowStock(ctx, note); err != nil {
			s.logger(ctx, "checkout.low_stock_notify_failed", map[string]any{"productId": note.ProductID, "error": err.Error()})
		}
	}
}

// linesFromSnapshot checks every requested line against the products read
// inside the transaction.
func linesFromSnapshot(snapshot repositories.PlacementSnapshot, requested []AdminOrderLine) ([]PriceLine, error) {
	lines := make([]PriceLine, 0, len(requested))
	for _, req := range requested {
		product, ok := snapshot.Products[req.ProductID]
		if !ok || !product.Purchasable() {
			return nil, &LineItemError{ProductID: req.ProductID, Err: ErrProductUnavailable}
		}
		if req.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		if product.StockQuantity < req.Quantity {
			return nil, &LineItemError{
				ProductID: req.ProductID,
				Requested: req.Quantity,
				Available: product.StockQuantity,
				Err:       ErrInsufficientStock,
			}
		}
		lines = append(lines, PriceLine{Product: product, Quantity: req.Quantity})
	}
	return lines, nil
}

func lowStockAfter(snapshot repositories.PlacementSnapshot, lines []PriceLine, at time.Time) []LowStockNotification {
	var notes []LowStockNotification
	for _, line := range lines {
		product := snapshot.Products[line.Product.ID]
		if product.LowStockThreshold <= 0 {
			continue
		}
		remaining := product.StockQuantity - line.Quantity
		if remaining <= product.LowStockThreshold {
			notes = append(notes, LowStockNotification{
				ProductID:  product.ID,
				Name:       product.Name,
				Remaining:  remaining,
				Threshold:  product.LowStockThreshold,
				OccurredAt: at,
			})
		}
	}
	return notes
}

func orderLinesFromPricing(pricing PricingBreakdown) []domain.OrderLine {
	lines := make([]domain.OrderLine, 0, len(pricing.Lines))
	for _, line := range pricing.Lines {
		lines = append(lines, domain.OrderLine{
			ProductID: line.ProductID,
			Name:      line.Name,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Condition: line.Condition,
			LineTotal: line.LineTotal,
		})
	}
	return lines
}

func totalsFromPricing(pricing PricingBreakdown) domain.OrderTotals {
	return domain.OrderTotals{
		Subtotal:    pricing.Subtotal,
		Discount:    pricing.Discount,
		VAT:         pricing.VAT,
		DeliveryFee: pricing.DeliveryFee,
		Total:       pricing.Total,
	}
}

func appliedCode(promotion *PromotionResult) string {
	if promotion == nil {
		return ""
	}
	return promotion.Code
}

func initialPaymentStatus(method domain.PaymentMethod) domain.PaymentStatus {
	if method == domain.PaymentMethodOnline {
		return domain.PaymentStatusPaid
	}
	return domain.PaymentStatusPending
}

func normalizePaymentMethod(method domain.PaymentMethod) (domain.PaymentMethod, error) {
	switch domain.PaymentMethod(strings.ToLower(strings.TrimSpace(string(method)))) {
	case domain.PaymentMethodCashOnDelivery:
		return domain.PaymentMethodCashOnDelivery, nil
	case domain.PaymentMethodOnline:
		return domain.PaymentMethodOnline, nil
	default:
		return "", ErrInvalidPaymentMethod
	}
}

func normalizeDeliveryMethod(method domain.DeliveryMethod) (domain.DeliveryMethod, error) {
	switch domain.DeliveryMethod(strings.ToLower(strings.TrimSpace(string(method)))) {
	case "", domain.DeliveryMethodStandard:
		return domain.DeliveryMethodStandard, nil
	case domain.DeliveryMethodExpress:
		return domain.DeliveryMethodExpress, nil
	default:
		return "", ErrInvalidDeliveryMethod
	}
}

func sanitizeAddress(addr domain.ShippingAddress) domain.ShippingAddress {
	return domain.ShippingAddress{
		FullName:   textutil.PlainText(addr.FullName, maxAddressFieldLength),
		Phone:      textutil.PlainText(addr.Phone, 32),
		Street:     textutil.PlainText(addr.Street, maxAddressFieldLength),
		City:       textutil.PlainText(addr.City, maxAddressFieldLength),
		Zone:       textutil.PlainText(addr.Zone, maxAddressFieldLength),
		Country:    textutil.PlainText(addr.Country, maxAddressFieldLength),
		PostalCode: textutil.PlainText(addr.PostalCode, 16),
	}
}

// validateAddress requires phone, street, city and country. Zone and postal
// code are optional.
func validateAddress(addr domain.ShippingAddress) error {
	if addr.Phone == "" || addr.Street == "" || addr.City == "" || addr.Country == "" {
		return ErrAddressIncomplete
	}
	return nil
}

func sanitizeCustomer(customer domain.Customer) domain.Customer {
	return domain.Customer{
		Email: strings.TrimSpace(customer.Email),
		Name:  textutil.PlainText(customer.Name, maxAddressFieldLength),
	}
}

func statusNotification(order Order, locale string, at time.Time) OrderStatusNotification {
	return OrderStatusNotification{
		OrderID:     order.ID,
		OrderNumber: order.Number,
		UserID:      order.UserID,
		Email:       order.Customer.Email,
		Name:        order.Customer.Name,
		Status:      order.Status,
		Total:       order.Totals.Total,
		Locale:      locale,
		OccurredAt:  at,
	}
}
