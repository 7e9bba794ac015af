package handlers

import (
	"context"
	"errors"

	domain "github.com/souqly/api/internal/domain"
	"github.com/souqly/api/internal/platform/auth"
	"github.com/souqly/api/internal/services"
)

var errStubNotConfigured = errors.New("stub not configured")

type stubSystemService struct {
	report services.SystemHealthReport
	err    error
}

func (s *stubSystemService) HealthReport(context.Context) (services.SystemHealthReport, error) {
	return s.report, s.err
}

type stubCartService struct {
	getFunc     func(ctx context.Context, owner services.CartOwner, opts services.CartPreviewOptions) (services.CartView, error)
	addFunc     func(ctx context.Context, cmd services.CartItemCommand) (services.CartView, error)
	setFunc     func(ctx context.Context, cmd services.CartItemCommand) (services.CartView, error)
	removeFunc  func(ctx context.Context, owner services.CartOwner, productID string) (services.CartView, error)
	applyFunc   func(ctx context.Context, cmd services.ApplyPromotionCommand) (services.CartView, error)
	unapplyFunc func(ctx context.Context, owner services.CartOwner) (services.CartView, error)
}

func (s *stubCartService) GetCart(ctx context.Context, owner services.CartOwner, opts services.CartPreviewOptions) (services.CartView, error) {
	if s.getFunc == nil {
		return services.CartView{}, errStubNotConfigured
	}
	return s.getFunc(ctx, owner, opts)
}

func (s *stubCartService) AddItem(ctx context.Context, cmd services.CartItemCommand) (services.CartView, error) {
	if s.addFunc == nil {
		return services.CartView{}, errStubNotConfigured
	}
	return s.addFunc(ctx, cmd)
}

func (s *stubCartService) SetItemQuantity(ctx context.Context, cmd services.CartItemCommand) (services.CartView, error) {
	if s.setFunc == nil {
		return services.CartView{}, errStubNotConfigured
	}
	return s.setFunc(ctx, cmd)
}

func (s *stubCartService) RemoveItem(ctx context.Context, owner services.CartOwner, productID string) (services.CartView, error) {
	if s.removeFunc == nil {
		return services.CartView{}, errStubNotConfigured
	}
	return s.removeFunc(ctx, owner, productID)
}

func (s *stubCartService) ApplyPromotion(ctx context.Context, cmd services.ApplyPromotionCommand) (services.CartView, error) {
	if s.applyFunc == nil {
		return services.CartView{}, errStubNotConfigured
	}
	return s.applyFunc(ctx, cmd)
}

func (s *stubCartService) RemovePromotion(ctx context.Context, owner services.CartOwner) (services.CartView, error) {
	if s.unapplyFunc == nil {
		return services.CartView{}, errStubNotConfigured
	}
	return s.unapplyFunc(ctx, owner)
}

type stubCheckoutService struct {
	placeFunc func(ctx context.Context, cmd services.PlaceOrderCommand) (services.CheckoutResult, error)
}

func (s *stubCheckoutService) PlaceOrder(ctx context.Context, cmd services.PlaceOrderCommand) (services.CheckoutResult, error) {
	if s.placeFunc == nil {
		return services.CheckoutResult{}, errStubNotConfigured
	}
	return s.placeFunc(ctx, cmd)
}

type stubOrderService struct {
	getFunc        func(ctx context.Context, scope services.OrderScope, orderID string) (services.Order, error)
	listFunc       func(ctx context.Context, scope services.OrderScope, filter services.OrderListFilter) (domain.CursorPage[services.Order], error)
	transitionFunc func(ctx context.Context, cmd services.OrderTransitionCommand) (services.Order, error)
	cancelFunc     func(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error)
	returnFunc     func(ctx context.Context, cmd services.ReturnOrderCommand) (services.Order, error)
	createFunc     func(ctx context.Context, cmd services.AdminOrderCommand) (services.Order, error)
	purgeFunc      func(ctx context.Context, orderID, actorID string) (services.Order, error)
}

func (s *stubOrderService) GetOrder(ctx context.Context, scope services.OrderScope, orderID string) (services.Order, error) {
	if s.getFunc == nil {
		return services.Order{}, errStubNotConfigured
	}
	return s.getFunc(ctx, scope, orderID)
}

func (s *stubOrderService) ListOrders(ctx context.Context, scope services.OrderScope, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
	if s.listFunc == nil {
		return domain.CursorPage[services.Order]{}, errStubNotConfigured
	}
	return s.listFunc(ctx, scope, filter)
}

func (s *stubOrderService) TransitionStatus(ctx context.Context, cmd services.OrderTransitionCommand) (services.Order, error) {
	if s.transitionFunc == nil {
		return services.Order{}, errStubNotConfigured
	}
	return s.transitionFunc(ctx, cmd)
}

func (s *stubOrderService) CancelOrder(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
	if s.cancelFunc == nil {
		return services.Order{}, errStubNotConfigured
	}
	return s.cancelFunc(ctx, cmd)
}

func (s *stubOrderService) RequestReturn(ctx context.Context, cmd services.ReturnOrderCommand) (services.Order, error) {
	if s.returnFunc == nil {
		return services.Order{}, errStubNotConfigured
	}
	return s.returnFunc(ctx, cmd)
}

func (s *stubOrderService) CreateAdminOrder(ctx context.Context, cmd services.AdminOrderCommand) (services.Order, error) {
	if s.createFunc == nil {
		return services.Order{}, errStubNotConfigured
	}
	return s.createFunc(ctx, cmd)
}

func (s *stubOrderService) PurgeOrder(ctx context.Context, orderID, actorID string) (services.Order, error) {
	if s.purgeFunc == nil {
		return services.Order{}, errStubNotConfigured
	}
	return s.purgeFunc(ctx, orderID, actorID)
}

type stubCatalogAdminService struct {
	listZonesFunc func(ctx context.Context) ([]services.DeliveryZone, error)
	zoneFunc      func(ctx context.Context, zone services.DeliveryZone) (services.DeliveryZone, error)
	promoFunc     func(ctx context.Context, promotion services.Promotion) (services.Promotion, error)
	stockFunc     func(ctx context.Context, productID string, delta int64) (domain.Product, error)
}

func (s *stubCatalogAdminService) ListZones(ctx context.Context) ([]services.DeliveryZone, error) {
	if s.listZonesFunc == nil {
		return nil, errStubNotConfigured
	}
	return s.listZonesFunc(ctx)
}

func (s *stubCatalogAdminService) UpsertZone(ctx context.Context, zone services.DeliveryZone) (services.DeliveryZone, error) {
	if s.zoneFunc == nil {
		return services.DeliveryZone{}, errStubNotConfigured
	}
	return s.zoneFunc(ctx, zone)
}

func (s *stubCatalogAdminService) UpsertPromotion(ctx context.Context, promotion services.Promotion) (services.Promotion, error) {
	if s.promoFunc == nil {
		return services.Promotion{}, errStubNotConfigured
	}
	return s.promoFunc(ctx, promotion)
}

func (s *stubCatalogAdminService) AdjustStock(ctx context.Context, productID string, delta int64) (domain.Product, error) {
	if s.stockFunc == nil {
		return domain.Product{}, errStubNotConfigured
	}
	return s.stockFunc(ctx, productID, delta)
}

func withIdentity(ctx context.Context, uid string, roles ...string) context.Context {
	if len(roles) == 0 {
		roles = []string{auth.RoleUser}
	}
	return auth.WithIdentity(ctx, &auth.Identity{UID: uid, Email: uid + "@example.com", Roles: roles})
}

var (
	_ services.SystemService       = (*stubSystemService)(nil)
	_ services.CartService         = (*stubCartService)(nil)
	_ services.CheckoutService     = (*stubCheckoutService)(nil)
	_ services.OrderService        = (*stubOrderService)(nil)
	_ services.CatalogAdminService = (*stubCatalogAdminService)(nil)
)
