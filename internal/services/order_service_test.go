package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/souqly/api/internal/domain"
)

func productStock(t *testing.T, f *commerceFixture, id string) domain.Product {
	t.Helper()
	product, ok := f.store.Product(id)
	if !ok {
		t.Fatalf("product %s missing", id)
	}
	return product
}

func TestOrderService_CancelRestocksOnce(t *testing.T) {
	f := newCommerceFixture(t)
	ctx := context.Background()
	f.addToCart(t, "u1", "phone", 2)
	placed := f.placeOrder(t, "u1")

	if phone := productStock(t, f, "phone"); phone.StockQuantity != 3 {
		t.Fatalf("expected stock 3 after checkout, got %d", phone.StockQuantity)
	}

	cancelled, err := f.orders.CancelOrder(ctx, CancelOrderCommand{
		OrderID: placed.Order.ID,
		ActorID: "u1",
		Reason:  "changed my mind",
		Scope:   OrderScope{UserID: "u1"},
	})
	if err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	if cancelled.Status != domain.OrderStatusCancelled || !cancelled.Restocked {
		t.Fatalf("unexpected cancelled order %+v", cancelled)
	}
	if cancelled.Cancellation == nil || cancelled.Cancellation.Reason != "changed my mind" || cancelled.Cancellation.CancelledBy != "u1" {
		t.Fatalf("unexpected cancellation %+v", cancelled.Cancellation)
	}

	if phone := productStock(t, f, "phone"); phone.StockQuantity != 5 || phone.Sold != 0 {
		t.Fatalf("expected stock 5 sold 0, got %+v", phone)
	}

	_, err = f.orders.CancelOrder(ctx, CancelOrderCommand{OrderID: placed.Order.ID, ActorID: "u1", Scope: OrderScope{UserID: "u1"}})
	if !errors.Is(err, ErrOrderNotCancellable) || !errors.Is(err, ErrConflict) {
		t.Fatalf("expected not-cancellable conflict, got %v", err)
	}

	if phone := productStock(t, f, "phone"); phone.StockQuantity != 5 {
		t.Fatalf("second cancel must not restock, got %d", phone.StockQuantity)
	}
	found := false
	for _, transition := range f.metrics.transitions {
		found = found || transition == "placed>cancelled"
	}
	if !found {
		t.Fatalf("expected placed>cancelled in %v", f.metrics.transitions)
	}
	if !f.events.has(orderEventStatusChanged) {
		t.Fatalf("expected %s event", orderEventStatusChanged)
	}
}

func TestOrderService_CancelAfterShipmentRejected(t *testing.T) {
	f := newCommerceFixture(t)
	ctx := context.Background()
	f.addToCart(t, "u1", "cable", 1)
	placed := f.placeOrder(t, "u1")

	if _, err := f.orders.TransitionStatus(ctx, OrderTransitionCommand{OrderID: placed.Order.ID, Status: domain.OrderStatusShipped, ActorID: "admin"}); err != nil {
		t.Fatalf("TransitionStatus: %v", err)
	}

	_, err := f.orders.CancelOrder(ctx, CancelOrderCommand{OrderID: placed.Order.ID, ActorID: "u1", Scope: OrderScope{UserID: "u1"}})
	if !errors.Is(err, ErrOrderNotCancellable) {
		t.Fatalf("expected ErrOrderNotCancellable, got %v", err)
	}
}

func TestOrderService_LifecycleToReturn(t *testing.T) {
	f := newCommerceFixture(t)
	ctx := context.Background()
	f.addToCart(t, "u1", "cable", 4)
	result, err := f.checkout.PlaceOrder(ctx, PlaceOrderCommand{UserID: "u1", Address: cairoAddress(), PaymentMethod: domain.PaymentMethodOnline})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	orderID := result.Order.ID

	_, err = f.orders.RequestReturn(ctx, ReturnOrderCommand{OrderID: orderID, ActorID: "u1", Scope: OrderScope{UserID: "u1"}})
	if !errors.Is(err, ErrOrderNotReturnable) {
		t.Fatalf("expected ErrOrderNotReturnable, got %v", err)
	}

	steps := []domain.OrderStatus{
		domain.OrderStatusPaymentConfirmed,
		domain.OrderStatusShipped,
		domain.OrderStatusOutForDelivery,
		domain.OrderStatusDelivered,
	}
	var order Order
	for _, status := range steps {
		order, err = f.orders.TransitionStatus(ctx, OrderTransitionCommand{OrderID: orderID, Status: status, ActorID: "admin"})
		if err != nil {
			t.Fatalf("transition to %s: %v", status, err)
		}
	}
	if order.DeliveredAt == nil || order.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("unexpected delivered order %+v", order)
	}

	returned, err := f.orders.RequestReturn(ctx, ReturnOrderCommand{OrderID: orderID, ActorID: "u1", Reason: "broken", Scope: OrderScope{UserID: "u1"}})
	if err != nil {
		t.Fatalf("RequestReturn: %v", err)
	}
	if returned.Status != domain.OrderStatusReturned || returned.PaymentStatus != domain.PaymentStatusRefunded {
		t.Fatalf("unexpected returned order %+v", returned)
	}
	if returned.Return == nil || returned.Return.Reason != "broken" {
		t.Fatalf("unexpected return record %+v", returned.Return)
	}

	if cable := productStock(t, f, "cable"); cable.StockQuantity != 50 {
		t.Fatalf("expected stock 50 after return, got %d", cable.StockQuantity)
	}

	_, err = f.orders.TransitionStatus(ctx, OrderTransitionCommand{OrderID: orderID, Status: domain.OrderStatusShipped, ActorID: "admin"})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestOrderService_InvalidTransitions(t *testing.T) {
	f := newCommerceFixture(t)
	ctx := context.Background()
	f.addToCart(t, "u1", "cable", 1)
	placed := f.placeOrder(t, "u1")

	cases := []struct {
		cmd  OrderTransitionCommand
		want error
	}{
		{OrderTransitionCommand{OrderID: placed.Order.ID, Status: domain.OrderStatusDelivered}, ErrInvalidTransition},
		{OrderTransitionCommand{OrderID: placed.Order.ID, Status: "lost"}, ErrValidation},
		{OrderTransitionCommand{OrderID: "ord_missing", Status: domain.OrderStatusShipped}, ErrOrderNotFound},
	}
	for _, tc := range cases {
		if _, err := f.orders.TransitionStatus(ctx, tc.cmd); !errors.Is(err, tc.want) {
			t.Fatalf("%+v: expected %v, got %v", tc.cmd, tc.want, err)
		}
	}
}

func TestOrderService_ScopeHidesForeignOrders(t *testing.T) {
	f := newCommerceFixture(t)
	ctx := context.Background()
	f.addToCart(t, "u1", "cable", 1)
	placed := f.placeOrder(t, "u1")

	if _, err := f.orders.GetOrder(ctx, OrderScope{UserID: "intruder"}, placed.Order.ID); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound for foreign get, got %v", err)
	}
	_, err := f.orders.CancelOrder(ctx, CancelOrderCommand{OrderID: placed.Order.ID, ActorID: "intruder", Scope: OrderScope{UserID: "intruder"}})
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound for foreign cancel, got %v", err)
	}

	order, err := f.orders.GetOrder(ctx, OrderScope{}, placed.Order.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if order.Status != domain.OrderStatusPlaced {
		t.Fatalf("expected placed, got %s", order.Status)
	}

	page, err := f.orders.ListOrders(ctx, OrderScope{UserID: "intruder"}, OrderListFilter{})
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if len(page.Items) != 0 {
		t.Fatalf("expected no orders for intruder, got %d", len(page.Items))
	}
}

func TestOrderService_ListOrders(t *testing.T) {
	f := newCommerceFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		f.addToCart(t, "u1", "cable", 1)
		f.placeOrder(t, "u1")
	}
	f.addToCart(t, "u2", "cable", 1)
	f.placeOrder(t, "u2")

	page, err := f.orders.ListOrders(ctx, OrderScope{UserID: "u1"}, OrderListFilter{PageSize: 2})
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if len(page.Items) != 2 || page.NextPageToken == "" {
		t.Fatalf("expected a full first page with a token, got %d items token=%q", len(page.Items), page.NextPageToken)
	}

	next, err := f.orders.ListOrders(ctx, OrderScope{UserID: "u1"}, OrderListFilter{PageSize: 2, PageToken: page.NextPageToken})
	if err != nil {
		t.Fatalf("ListOrders next: %v", err)
	}
	if len(next.Items) != 1 || next.NextPageToken != "" {
		t.Fatalf("expected last page of one, got %d items token=%q", len(next.Items), next.NextPageToken)
	}

	all, err := f.orders.ListOrders(ctx, OrderScope{}, OrderListFilter{Statuses: []OrderStatus{domain.OrderStatusPlaced}})
	if err != nil {
		t.Fatalf("ListOrders all: %v", err)
	}
	if len(all.Items) != 4 {
		t.Fatalf("expected 4 placed orders, got %d", len(all.Items))
	}

	if _, err := f.orders.ListOrders(ctx, OrderScope{}, OrderListFilter{PageToken: "%%%"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for bad token, got %v", err)
	}
	if _, err := f.orders.ListOrders(ctx, OrderScope{}, OrderListFilter{Statuses: []OrderStatus{"lost"}}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for bad status, got %v", err)
	}
}

func TestOrderService_CreateAdminOrder(t *testing.T) {
	f := newCommerceFixture(t)
	ctx := context.Background()

	order, err := f.orders.CreateAdminOrder(ctx, AdminOrderCommand{
		ActorID:  "admin-1",
		UserID:   "u9",
		Customer: domain.Customer{Name: "Walk-in", Email: "walkin@example.com"},
		Lines: []AdminOrderLine{
			{ProductID: "cable", Quantity: 2},
			{ProductID: "cable", Quantity: 1},
		},
		Zone:    "Aswan",
		Address: cairoAddress(),
	})
	if err != nil {
		t.Fatalf("CreateAdminOrder: %v", err)
	}
	if order.Number != "ADM-20250304093000-0001" || order.Source != domain.OrderSourceAdmin {
		t.Fatalf("unexpected admin order header %+v", order)
	}
	if !strings.HasPrefix(order.ID, orderIDPrefix) {
		t.Fatalf("expected id prefixed with %s, got %q", orderIDPrefix, order.ID)
	}
	if order.PaymentMethod != domain.PaymentMethodCashOnDelivery {
		t.Fatalf("expected cash on delivery, got %q", order.PaymentMethod)
	}
	if len(order.Lines) != 1 || order.Lines[0].Quantity != 3 {
		t.Fatalf("expected merged line of 3, got %+v", order.Lines)
	}
	wantTotals := domain.OrderTotals{Subtotal: 7500, VAT: 1050, DeliveryFee: 8333, Total: 7500 + 1050 + 8333}
	if order.Totals != wantTotals {
		t.Fatalf("expected totals %+v, got %+v", wantTotals, order.Totals)
	}

	if cable := productStock(t, f, "cable"); cable.StockQuantity != 47 {
		t.Fatalf("expected stock 47, got %d", cable.StockQuantity)
	}
	if !f.events.has(orderEventAdminCreated) {
		t.Fatalf("expected %s event", orderEventAdminCreated)
	}

	cases := []struct {
		name string
		cmd  AdminOrderCommand
		want error
	}{
		{"zone", AdminOrderCommand{Lines: []AdminOrderLine{{ProductID: "cable", Quantity: 1}}, Zone: "Atlantis", Address: cairoAddress()}, ErrZoneNotFound},
		{"stock", AdminOrderCommand{Lines: []AdminOrderLine{{ProductID: "rare", Quantity: 2}}, Zone: "Cairo", Address: cairoAddress()}, ErrInsufficientStock},
		{"empty", AdminOrderCommand{Zone: "Cairo", Address: cairoAddress()}, ErrCartEmpty},
	}
	for _, tc := range cases {
		if _, err := f.orders.CreateAdminOrder(ctx, tc.cmd); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestOrderService_PurgeRestocksUnlessAlreadyRestocked(t *testing.T) {
	f := newCommerceFixture(t)
	ctx := context.Background()

	f.addToCart(t, "u1", "cable", 5)
	first := f.placeOrder(t, "u1")
	f.addToCart(t, "u1", "cable", 5)
	second := f.placeOrder(t, "u1")

	if cable := productStock(t, f, "cable"); cable.StockQuantity != 40 {
		t.Fatalf("expected stock 40, got %d", cable.StockQuantity)
	}

	if _, err := f.orders.PurgeOrder(ctx, first.Order.ID, "admin"); err != nil {
		t.Fatalf("PurgeOrder: %v", err)
	}
	if cable := productStock(t, f, "cable"); cable.StockQuantity != 45 {
		t.Fatalf("expected stock 45 after purge, got %d", cable.StockQuantity)
	}

	if _, err := f.orders.CancelOrder(ctx, CancelOrderCommand{OrderID: second.Order.ID, ActorID: "admin"}); err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	if _, err := f.orders.PurgeOrder(ctx, second.Order.ID, "admin"); err != nil {
		t.Fatalf("PurgeOrder cancelled: %v", err)
	}
	if cable := productStock(t, f, "cable"); cable.StockQuantity != 50 {
		t.Fatalf("expected stock 50 without double restock, got %d", cable.StockQuantity)
	}

	if _, err := f.orders.PurgeOrder(ctx, second.Order.ID, "admin"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestApplyTransition(t *testing.T) {
	now := time.Date(2025, 3, 5, 8, 0, 0, 0, time.UTC)
	order := Order{
		ID:            "ord_1",
		Status:        domain.OrderStatusPlaced,
		PaymentMethod: domain.PaymentMethodCashOnDelivery,
		PaymentStatus: domain.PaymentStatusPending,
		Lines:         []domain.OrderLine{{ProductID: "a", Quantity: 2}, {ProductID: "b", Quantity: 0}},
	}

	cancelled, movements := ApplyTransition(order, domain.OrderStatusCancelled, "admin", "fraud", now)
	if len(movements) != 1 || movements[0].ProductID != "a" || movements[0].Restock != 2 {
		t.Fatalf("unexpected movements %+v", movements)
	}
	if !cancelled.Restocked || cancelled.PaymentStatus != domain.PaymentStatusPending {
		t.Fatalf("unexpected cancelled order %+v", cancelled)
	}
	if !cancelled.UpdatedAt.Equal(now) {
		t.Fatalf("expected UpdatedAt to be stamped")
	}

	_, again := ApplyTransition(cancelled, domain.OrderStatusCancelled, "admin", "", now)
	if len(again) != 0 {
		t.Fatalf("expected no movements for a restocked order, got %+v", again)
	}
}
