package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	domain "github.com/souqly/api/internal/domain"
	"github.com/souqly/api/internal/repositories/memory"
)

// Tuesday, so one business day later is Wednesday.
var fixtureNow = time.Date(2025, 3, 4, 9, 30, 0, 0, time.UTC)

type recordingNotifier struct {
	mu       sync.Mutex
	statuses []OrderStatusNotification
	lowStock []LowStockNotification
	err      error
}

func (n *recordingNotifier) NotifyOrderStatus(_ context.Context, note OrderStatusNotification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statuses = append(n.statuses, note)
	return n.err
}

func (n *recordingNotifier) NotifyLowStock(_ context.Context, note LowStockNotification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lowStock = append(n.lowStock, note)
	return n.err
}

type recordingMetrics struct {
	mu          sync.Mutex
	checkouts   []string
	transitions []string
	lowStock    []string
}

func (m *recordingMetrics) RecordCheckout(_ context.Context, outcome string, _ time.Duration, _ int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkouts = append(m.checkouts, outcome)
}

func (m *recordingMetrics) RecordTransition(_ context.Context, from, to string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, from+">"+to)
}

func (m *recordingMetrics) RecordLowStock(_ context.Context, productID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lowStock = append(m.lowStock, productID)
}

type commerceFixture struct {
	store    *memory.Store
	fees     DeliveryFeeService
	pricing  PricingEngine
	promos   PromotionValidator
	numbers  OrderNumberGenerator
	carts    CartService
	checkout CheckoutService
	orders   OrderService
	catalog  CatalogAdminService
	notifier *recordingNotifier
	metrics  *recordingMetrics
	events   *eventLog
}

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) log(_ context.Context, event string, _ map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *eventLog) has(event string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.events {
		if e == event {
			return true
		}
	}
	return false
}

func newCommerceFixture(t *testing.T) *commerceFixture {
	t.Helper()
	clock := func() time.Time { return fixtureNow }
	store := memory.NewStore(memory.WithClock(clock))
	store.PutZone(domain.DeliveryZone{Name: "Cairo", Fee: 5000, DeliveryDays: 2})
	store.PutZone(domain.DeliveryZone{Name: "Aswan", Fee: 8333, DeliveryDays: 5})
	store.PutProduct(domain.Product{ID: "phone", Name: "Used Phone", Price: 100000, StockQuantity: 5, LowStockThreshold: 2, Condition: "good", Visible: true})
	store.PutProduct(domain.Product{ID: "cable", Name: "Cable", Price: 2500, StockQuantity: 50, Visible: true})
	store.PutProduct(domain.Product{ID: "rare", Name: "Rare Watch", Price: 30000, StockQuantity: 1, Visible: true})
	store.PutProduct(domain.Product{ID: "hidden", Name: "Hidden", Price: 1000, StockQuantity: 9})
	store.PutPromotion(domain.Promotion{Code: "WELCOME10", Type: domain.PromotionTypePercentage, Value: 1000, Active: true})

	events := &eventLog{}
	notifier := &recordingNotifier{}
	metrics := &recordingMetrics{}

	fees, err := NewDeliveryFeeService(DeliveryFeeServiceDeps{Zones: store.Zones(), Clock: clock, Logger: events.log})
	if err != nil {
		t.Fatalf("NewDeliveryFeeService: %v", err)
	}
	pricing, err := NewPricingEngine(PricingEngineDeps{Fees: fees, Clock: clock})
	if err != nil {
		t.Fatalf("NewPricingEngine: %v", err)
	}
	promos, err := NewPromotionValidator(PromotionValidatorDeps{Promotions: store.Promotions(), Clock: clock})
	if err != nil {
		t.Fatalf("NewPromotionValidator: %v", err)
	}
	numbers, err := NewOrderNumberGenerator(OrderNumberGeneratorDeps{Counters: store.Counters(), Clock: clock})
	if err != nil {
		t.Fatalf("NewOrderNumberGenerator: %v", err)
	}
	carts, err := NewCartService(CartServiceDeps{
		Carts:      store.Carts(),
		Products:   store.Products(),
		Pricing:    pricing,
		Promotions: promos,
		Clock:      clock,
		Logger:     events.log,
	})
	if err != nil {
		t.Fatalf("NewCartService: %v", err)
	}

	var seq int
	var seqMu sync.Mutex
	newID := func() string {
		seqMu.Lock()
		defer seqMu.Unlock()
		seq++
		return fmt.Sprintf("ord_%04d", seq)
	}
	checkout, err := NewCheckoutService(CheckoutServiceDeps{
		Carts:       store.Carts(),
		Products:    store.Products(),
		Orders:      store.Orders(),
		Pricing:     pricing,
		Promotions:  promos,
		Numbers:     numbers,
		Notifier:    notifier,
		Metrics:     metrics,
		Clock:       clock,
		IDGenerator: newID,
		Logger:      events.log,
	})
	if err != nil {
		t.Fatalf("NewCheckoutService: %v", err)
	}
	orders, err := NewOrderService(OrderServiceDeps{
		Orders:      store.Orders(),
		Pricing:     pricing,
		Numbers:     numbers,
		Notifier:    notifier,
		Metrics:     metrics,
		Clock:       clock,
		IDGenerator: newID,
		Logger:      events.log,
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	catalog, err := NewCatalogAdminService(CatalogAdminServiceDeps{
		Zones:      store.Zones(),
		Promotions: store.Promotions(),
		Products:   store.Products(),
		Fees:       fees,
		Clock:      clock,
		Logger:     events.log,
	})
	if err != nil {
		t.Fatalf("NewCatalogAdminService: %v", err)
	}

	return &commerceFixture{
		store:    store,
		fees:     fees,
		pricing:  pricing,
		promos:   promos,
		numbers:  numbers,
		carts:    carts,
		checkout: checkout,
		orders:   orders,
		catalog:  catalog,
		notifier: notifier,
		metrics:  metrics,
		events:   events,
	}
}

func userOwner(id string) CartOwner {
	return CartOwner{Kind: domain.CartOwnerUser, ID: id}
}

func cairoAddress() domain.ShippingAddress {
	return domain.ShippingAddress{
		FullName: "Mona Adel",
		Phone:    "+201000000000",
		Street:   "12 Tahrir St",
		City:     "Cairo",
		Zone:     "Cairo",
		Country:  "EG",
	}
}

func (f *commerceFixture) addToCart(t *testing.T, userID, productID string, qty int64) {
	t.Helper()
	if _, err := f.carts.AddItem(context.Background(), CartItemCommand{Owner: userOwner(userID), ProductID: productID, Quantity: qty}); err != nil {
		t.Fatalf("AddItem(%s, %d): %v", productID, qty, err)
	}
}

func (f *commerceFixture) placeOrder(t *testing.T, userID string) CheckoutResult {
	t.Helper()
	result, err := f.checkout.PlaceOrder(context.Background(), PlaceOrderCommand{
		UserID:        userID,
		Customer:      domain.Customer{Email: userID + "@example.com", Name: "Buyer"},
		Address:       cairoAddress(),
		PaymentMethod: domain.PaymentMethodCashOnDelivery,
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	return result
}
