package di

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/souqly/api/internal/domain"
	"github.com/souqly/api/internal/platform/config"
	"github.com/souqly/api/internal/repositories/memory"
	"github.com/souqly/api/internal/services"
)

var containerNow = time.Date(2025, 3, 4, 9, 30, 0, 0, time.UTC)

type capturingNotifier struct {
	mu       sync.Mutex
	statuses []services.OrderStatusNotification
}

func (n *capturingNotifier) NotifyOrderStatus(_ context.Context, note services.OrderStatusNotification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statuses = append(n.statuses, note)
	return nil
}

func (n *capturingNotifier) NotifyLowStock(context.Context, services.LowStockNotification) error {
	return nil
}

func (n *capturingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.statuses)
}

func testConfig() config.Config {
	return config.Config{
		Storage: config.StorageConfig{Driver: config.StorageDriverMemory},
		Commerce: config.CommerceConfig{
			Currency:       "EGP",
			VATBasisPoints: 1400,
			Weekend:        []time.Weekday{time.Friday, time.Saturday},
		},
	}
}

func TestNewContainerRequiresRegistry(t *testing.T) {
	if _, err := NewContainer(context.Background(), testConfig(), nil); err == nil {
		t.Fatalf("expected error for missing registry")
	}
}

func TestContainerCheckoutEndToEnd(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(memory.WithClock(func() time.Time { return containerNow }))
	store.PutZone(domain.DeliveryZone{Name: "Cairo", Fee: 5000, DeliveryDays: 2})
	store.PutProduct(domain.Product{ID: "phone", Name: "Used Phone", Price: 100000, StockQuantity: 3, Visible: true})

	notifier := &capturingNotifier{}
	container, err := NewContainer(ctx, testConfig(), store,
		WithNotifier(notifier),
		WithClock(func() time.Time { return containerNow }),
		WithIDGenerator(func() string { return "ord_fixed" }),
	)
	require.NoError(t, err)

	owner := domain.CartOwner{Kind: domain.CartOwnerUser, ID: "u1"}
	_, err = container.Services.Cart.AddItem(ctx, services.CartItemCommand{Owner: owner, ProductID: "phone", Quantity: 1})
	require.NoError(t, err)

	result, err := container.Services.Checkout.PlaceOrder(ctx, services.PlaceOrderCommand{
		UserID:        "u1",
		Customer:      domain.Customer{Email: "u1@example.com", Name: "Mona"},
		Address:       domain.ShippingAddress{FullName: "Mona Adel", Phone: "+201000000000", Street: "12 Tahrir St", City: "Cairo", Zone: "Cairo", Country: "EG"},
		PaymentMethod: domain.PaymentMethodCashOnDelivery,
	})
	require.NoError(t, err)
	assert.Equal(t, "ord_fixed", result.Order.ID)
	assert.Equal(t, int64(119000), result.Total)

	product, ok := store.Product("phone")
	require.True(t, ok)
	assert.Equal(t, int64(2), product.StockQuantity)

	order, err := container.Services.Orders.GetOrder(ctx, services.OrderScope{UserID: "u1"}, "ord_fixed")
	require.NoError(t, err)
	assert.Equal(t, result.Number, order.Number)

	closeCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, container.Close(closeCtx))
	assert.Equal(t, 1, notifier.count())
}

func TestContainerHealthIncludesStorageAndExtraChecks(t *testing.T) {
	ctx := context.Background()
	container, err := NewContainer(ctx, testConfig(), memory.NewStore(),
		WithHealthCheck("pubsub", func(context.Context) error { return errors.New("topic missing") }),
		WithBuildInfo(services.BuildInfo{Version: "1.2.3", Environment: "test"}),
	)
	require.NoError(t, err)

	report, err := container.Services.System.HealthReport(ctx)
	require.NoError(t, err)
	require.Contains(t, report.Checks, "storage")
	require.Contains(t, report.Checks, "pubsub")
	assert.Equal(t, "ok", report.Checks["storage"].Status)
	assert.Equal(t, "topic missing", report.Checks["pubsub"].Error)
	assert.Equal(t, "1.2.3", report.Version)
}
