package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/souqly/api/internal/domain"
	"github.com/souqly/api/internal/platform/pagination"
	"github.com/souqly/api/internal/platform/textutil"
	"github.com/souqly/api/internal/repositories"
)

const (
	orderEventStatusChanged = "order.status.changed"
	orderEventAdminCreated  = "order.admin.created"
	orderEventPurged        = "order.purged"

	orderIDPrefix   = "ord_"
	maxReasonLength = 500
)

// OrderServiceDeps wires the collaborators used by the order lifecycle service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Pricing     PricingEngine
	Numbers     OrderNumberGenerator
	Notifier    OrderNotifier
	Metrics     CommerceMetrics
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders   repositories.OrderRepository
	pricing  PricingEngine
	numbers  OrderNumberGenerator
	notifier OrderNotifier
	metrics  CommerceMetrics
	clock    func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
}

// NewOrderService constructs an OrderService. Notifier and Metrics are optional.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	switch {
	case deps.Orders == nil:
		return nil, errors.New("order service: order repository is required")
	case deps.Pricing == nil:
		return nil, errors.New("order service: pricing engine is required")
	case deps.Numbers == nil:
		return nil, errors.New("order service: order number generator is required")
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
	return &orderService{
		orders:   deps.Orders,
		pricing:  deps.Pricing,
		numbers:  deps.Numbers,
		notifier: deps.Notifier,
		metrics:  deps.Metrics,
		clock:    func() time.Time { return clock().UTC() },
		newID:    newID,
		logger:   logger,
	}, nil
}

func newOrderID() string {
	return orderIDPrefix + ulid.Make().String()
}

// GetOrder returns the order when it is visible in scope. Orders owned by
// someone else are reported as missing.
func (s *orderService) GetOrder(ctx context.Context, scope OrderScope, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, ErrOrderNotFound
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, translateRepoError(err, ErrOrderNotFound)
	}
	if !visibleInScope(scope, order) {
		return Order{}, ErrOrderNotFound
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, scope OrderScope, filter OrderListFilter) (domain.CursorPage[Order], error) {
	for _, status := range filter.Statuses {
		if !status.Valid() {
			return domain.CursorPage[Order]{}, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
		}
	}
	if _, err := pagination.DecodeToken(filter.PageToken); err != nil {
		return domain.CursorPage[Order]{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	size := filter.PageSize
	switch {
	case size <= 0:
		size = pagination.DefaultPageSize
	case size > pagination.MaxPageSize:
		size = pagination.MaxPageSize
	}
	page, err := s.orders.List(ctx, repositories.OrderListFilter{
		UserID:    scope.UserID,
		Statuses:  filter.Statuses,
		PageSize:  size,
		PageToken: filter.PageToken,
	})
	if err != nil {
		return domain.CursorPage[Order]{}, translateRepoError(err, nil)
	}
	return page, nil
}

// TransitionStatus moves an order one step along the lifecycle. Restocking
// and the status change commit together.
func (s *orderService) TransitionStatus(ctx context.Context, cmd OrderTransitionCommand) (Order, error) {
	if !cmd.Status.Valid() {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrValidation, cmd.Status)
	}
	return s.transition(ctx, transitionRequest{
		orderID:  cmd.OrderID,
		scope:    cmd.Scope,
		target:   cmd.Status,
		actorID:  cmd.ActorID,
		reason:   cmd.Reason,
		locale:   cmd.Locale,
		rejected: ErrInvalidTransition,
	})
}

// CancelOrder cancels an order that has not shipped. A second cancel is a conflict.
func (s *orderService) CancelOrder(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	return s.transition(ctx, transitionRequest{
		orderID:  cmd.OrderID,
		scope:    cmd.Scope,
		target:   domain.OrderStatusCancelled,
		actorID:  cmd.ActorID,
		reason:   cmd.Reason,
		rejected: ErrOrderNotCancellable,
	})
}

// RequestReturn records the return of a delivered order.
func (s *orderService) RequestReturn(ctx context.Context, cmd ReturnOrderCommand) (Order, error) {
	return s.transition(ctx, transitionRequest{
		orderID:  cmd.OrderID,
		scope:    cmd.Scope,
		target:   domain.OrderStatusReturned,
		actorID:  cmd.ActorID,
		reason:   cmd.Reason,
		rejected: ErrOrderNotReturnable,
	})
}

type transitionRequest struct {
	orderID  string
	scope    OrderScope
	target   OrderStatus
	actorID  string
	reason   string
	locale   string
	rejected error
}

func (s *orderService) transition(ctx context.Context, req transitionRequest) (Order, error) {
	orderID := strings.TrimSpace(req.orderID)
	if orderID == "" {
		return Order{}, ErrOrderNotFound
	}
	reason := textutil.PlainText(req.reason, maxReasonLength)
	var previous OrderStatus

	updated, err := s.orders.Transition(ctx, repositories.TransitionOrderRequest{
		OrderID: orderID,
		Apply: func(current domain.Order) (domain.Order, []repositories.StockMovement, error) {
			if !visibleInScope(req.scope, current) {
				return domain.Order{}, nil, ErrOrderNotFound
			}
			previous = current.Status
			if !current.Status.CanTransitionTo(req.target) {
				return domain.Order{}, nil, fmt.Errorf("%w: %s -> %s", req.rejected, current.Status, req.target)
			}
			next, movements := ApplyTransition(current, req.target, req.actorID, reason, s.clock())
			return next, movements, nil
		},
	})
	if err != nil {
		return Order{}, translateRepoError(err, ErrOrderNotFound)
	}

	s.logger(ctx, orderEventStatusChanged, map[string]any{
		"orderId": updated.ID,
		"from":    string(previous),
		"to":      string(updated.Status),
		"actor":   req.actorID,
	})
	if s.metrics != nil {
		s.metrics.RecordTransition(ctx, string(previous), string(updated.Status))
	}
	s.notify(ctx, updated, req.locale)
	return updated, nil
}

// ApplyTransition returns the order in its target status together with the
// stock movements the transition requires. Entering delivered marks the order
// paid; entering cancelled or returned restocks every line once and refunds
// paid online orders.
func ApplyTransition(order Order, target OrderStatus, actorID, reason string, now time.Time) (Order, []repositories.StockMovement) {
	order.Status = target
	order.UpdatedAt = now

	var movements []repositories.StockMovement
	switch target {
	case domain.OrderStatusDelivered:
		delivered := now
		order.DeliveredAt = &delivered
		order.PaymentStatus = domain.PaymentStatusPaid
	case domain.OrderStatusCancelled:
		order.Cancellation = &domain.OrderCancellation{Reason: reason, CancelledBy: actorID, CancelledAt: now}
	case domain.OrderStatusReturned:
		order.Return = &domain.OrderReturn{Reason: reason, ReturnedBy: actorID, ReturnedAt: now}
	}

	if target.Restocks() {
		if !order.Restocked {
			movements = RestockMovements(order)
			order.Restocked = true
		}
		if order.PaymentStatus == domain.PaymentStatusPaid && order.PaymentMethod == domain.PaymentMethodOnline {
			order.PaymentStatus = domain.PaymentStatusRefunded
		}
	}
	return order, movements
}

// RestockMovements returns one movement per order line.
func RestockMovements(order Order) []repositories.StockMovement {
	movements := make([]repositories.StockMovement, 0, len(order.Lines))
	for _, line := range order.Lines {
		if line.Quantity <= 0 {
			continue
		}
		movements = append(movements, repositories.StockMovement{ProductID: line.ProductID, Restock: line.Quantity})
	}
	return movements
}

// CreateAdminOrder places an order on behalf of a customer. Prices come from
// the current products and the delivery fee from the named zone; promotions
// do not apply.
func (s *orderService) CreateAdminOrder(ctx context.Context, cmd AdminOrderCommand) (Order, error) {
	if len(cmd.Lines) == 0 {
		return Order{}, ErrCartEmpty
	}
	merged, err := mergeAdminLines(cmd.Lines)
	if err != nil {
		return Order{}, err
	}
	payment := domain.PaymentMethodCashOnDelivery
	if cmd.PaymentMethod != "" {
		if payment, err = normalizePaymentMethod(cmd.PaymentMethod); err != nil {
			return Order{}, err
		}
	}
	method, err := normalizeDeliveryMethod(cmd.DeliveryMethod)
	if err != nil {
		return Order{}, err
	}
	address := sanitizeAddress(cmd.Address)
	if err := validateAddress(address); err != nil {
		return Order{}, err
	}
	zone := strings.TrimSpace(cmd.Zone)
	if zone == "" {
		zone = address.Zone
	}
	quote, err := s.pricing.Delivery(ctx, zone, method, true)
	if err != nil {
		return Order{}, err
	}

	number, err := s.numbers.AdminNumber(ctx)
	if err != nil {
		return Order{}, err
	}

	stockLines := make([]repositories.StockLine, 0, len(merged))
	for _, line := range merged {
		stockLines = append(stockLines, repositories.StockLine{ProductID: line.ProductID, Quantity: line.Quantity})
	}
	orderID := s.newID()
	userID := strings.TrimSpace(cmd.UserID)

	order, err := s.orders.Place(ctx, repositories.PlaceOrderRequest{
		Lines:  stockLines,
		UserID: userID,
		Build: func(snapshot repositories.PlacementSnapshot) (domain.Order, error) {
			lines, err := linesFromSnapshot(snapshot, merged)
			if err != nil {
				return domain.Order{}, err
			}
			pricing := s.pricing.Totals(lines, nil, quote)
			now := s.clock()
			if address.Zone == "" {
				address.Zone = zone
			}
			return domain.Order{
				ID:                orderID,
				Number:            number,
				UserID:            userID,
				Customer:          sanitizeCustomer(cmd.Customer),
				Lines:             orderLinesFromPricing(pricing),
				Totals:            totalsFromPricing(pricing),
				PaymentMethod:     payment,
				PaymentStatus:     initialPaymentStatus(payment),
				DeliveryMethod:    quote.Method,
				Zone:              quote.Zone,
				ShippingAddress:   address,
				Status:            domain.OrderStatusPlaced,
				Source:            domain.OrderSourceAdmin,
				Notes:             textutil.PlainText(cmd.Notes, maxOrderNotesLength),
				EstimatedDelivery: pricing.EstimatedDeliveryDay,
				CreatedAt:         now,
				UpdatedAt:         now,
			}, nil
		},
	})
	if err != nil {
		return Order{}, translateRepoError(err, nil)
	}

	s.logger(ctx, orderEventAdminCreated, map[string]any{
		"orderId": order.ID,
		"number":  order.Number,
		"actor":   cmd.ActorID,
		"total":   order.Totals.Total,
	})
	s.notify(ctx, order, "")
	return order, nil
}

// PurgeOrder deletes the order record, returning its stock unless a
// cancellation or return already did.
func (s *orderService) PurgeOrder(ctx context.Context, orderID, actorID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, ErrOrderNotFound
	}
	order, err := s.orders.Purge(ctx, orderID)
	if err != nil {
		return Order{}, translateRepoError(err, ErrOrderNotFound)
	}
	s.logger(ctx, orderEventPurged, map[string]any{
		"orderId":   order.ID,
		"number":    order.Number,
		"actor":     actorID,
		"restocked": !order.Restocked,
	})
	return order, nil
}

func (s *orderService) notify(ctx context.Context, order Order, locale string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyOrderStatus(ctx, statusNotification(order, locale, order.UpdatedAt)); err != nil {
		s.logger(ctx, "order.notify_failed", map[string]any{"orderId": order.ID, "error": err.Error()})
	}
}

// mergeAdminLines folds repeated products into one line.
func mergeAdminLines(lines []AdminOrderLine) ([]AdminOrderLine, error) {
	merged := make([]AdminOrderLine, 0, len(lines))
	index := make(map[string]int, len(lines))
	for _, line := range lines {
		productID := strings.TrimSpace(line.ProductID)
		if productID == "" {
			return nil, &LineItemError{Err: ErrProductUnavailable}
		}
		if line.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		if i, ok := index[productID]; ok {
			merged[i].Quantity += line.Quantity
			continue
		}
		index[productID] = len(merged)
		merged = append(merged, AdminOrderLine{ProductID: productID, Quantity: line.Quantity})
	}
	return merged, nil
}

func visibleInScope(scope OrderScope, order Order) bool {
	return scope.Unrestricted() || order.UserID == scope.UserID
}
