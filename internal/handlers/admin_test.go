package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/souqly/api/internal/domain"
	"github.com/souqly/api/internal/platform/auth"
	"github.com/souqly/api/internal/services"
)

func newAdminRouter(orders services.OrderService, catalog services.CatalogAdminService) chi.Router {
	router := chi.NewRouter()
	router.Route("/admin", func(r chi.Router) {
		NewAdminOrderHandlers(nil, orders).Routes(r)
		NewAdminCatalogHandlers(nil, catalog).Routes(r)
	})
	return router
}

func TestAdminOrderHandlersCapabilities(t *testing.T) {
	orders := &stubOrderService{
		listFunc: func(context.Context, services.OrderScope, services.OrderListFilter) (domain.CursorPage[services.Order], error) {
			return domain.CursorPage[services.Order]{}, nil
		},
		purgeFunc: func(ctx context.Context, orderID, actorID string) (services.Order, error) {
			return sampleOrder(orderID, domain.OrderStatusCancelled), nil
		},
	}
	router := newAdminRouter(orders, &stubCatalogAdminService{})

	cases := []struct {
		name   string
		method string
		path   string
		roles  []string
		status int
	}{
		{name: "user cannot list", method: http.MethodGet, path: "/admin/orders", roles: []string{auth.RoleUser}, status: http.StatusForbidden},
		{name: "staff can list", method: http.MethodGet, path: "/admin/orders", roles: []string{auth.RoleStaff}, status: http.StatusOK},
		{name: "staff cannot purge", method: http.MethodDelete, path: "/admin/orders/ord_1", roles: []string{auth.RoleStaff}, status: http.StatusForbidden},
		{name: "admin can purge", method: http.MethodDelete, path: "/admin/orders/ord_1", roles: []string{auth.RoleAdmin}, status: http.StatusOK},
		{name: "staff cannot manage zones", method: http.MethodGet, path: "/admin/zones", roles: []string{auth.RoleStaff}, status: http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			req = req.WithContext(withIdentity(req.Context(), "actor-1", tc.roles...))
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)
			if rr.Code != tc.status {
				t.Fatalf("expected status %d, got %d: %s", tc.status, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestAdminOrderHandlersTransition(t *testing.T) {
	var captured services.OrderTransitionCommand
	orders := &stubOrderService{
		transitionFunc: func(ctx context.Context, cmd services.OrderTransitionCommand) (services.Order, error) {
			captured = cmd
			return sampleOrder(cmd.OrderID, cmd.Status), nil
		},
	}
	router := newAdminRouter(orders, &stubCatalogAdminService{})

	req := httptest.NewRequest(http.MethodPost, "/admin/orders/ord_1:transition", jsonBody(`{"status":"Shipped","reason":"courier"}`))
	req = req.WithContext(withIdentity(req.Context(), "staff-1", auth.RoleStaff))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "ord_1" || captured.Status != domain.OrderStatusShipped || captured.ActorID != "staff-1" {
		t.Fatalf("unexpected transition command %+v", captured)
	}
	if !captured.Scope.Unrestricted() {
		t.Fatalf("expected unrestricted scope for staff, got %+v", captured.Scope)
	}
}

func TestAdminOrderHandlersTransitionRejected(t *testing.T) {
	orders := &stubOrderService{
		transitionFunc: func(context.Context, services.OrderTransitionCommand) (services.Order, error) {
			return services.Order{}, services.ErrInvalidTransition
		},
	}
	router := newAdminRouter(orders, &stubCatalogAdminService{})

	req := httptest.NewRequest(http.MethodPost, "/admin/orders/ord_1:transition", jsonBody(`{"status":"delivered"}`))
	req = req.WithContext(withIdentity(req.Context(), "staff-1", auth.RoleStaff))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/admin/orders/ord_1:transition", jsonBody(`{"reason":"missing status"}`))
	req = req.WithContext(withIdentity(req.Context(), "staff-1", auth.RoleStaff))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestAdminOrderHandlersCreateOrder(t *testing.T) {
	var captured services.AdminOrderCommand
	orders := &stubOrderService{
		createFunc: func(ctx context.Context, cmd services.AdminOrderCommand) (services.Order, error) {
			captured = cmd
			order := sampleOrder("ord_admin", domain.OrderStatusPlaced)
			order.Number = "ADM-20250304093000-0001"
			order.Source = domain.OrderSourceAdmin
			return order, nil
		},
	}
	router := newAdminRouter(orders, &stubCatalogAdminService{})

	payload := `{"userId":"user-9","lines":[{"productId":"cable","quantity":3}],"zone":"Aswan","deliveryMethod":"standard","paymentMethod":"cash_on_delivery","shippingAddress":{"fullName":"Ali","phone":"0100","street":"2 Corniche","city":"Aswan","zone":"Aswan","country":"EG"}}`
	req := httptest.NewRequest(http.MethodPost, "/admin/orders", jsonBody(payload))
	req = req.WithContext(withIdentity(req.Context(), "staff-1", auth.RoleStaff))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.ActorID != "staff-1" || captured.UserID != "user-9" || captured.Zone != "Aswan" {
		t.Fatalf("unexpected admin command %+v", captured)
	}
	if len(captured.Lines) != 1 || captured.Lines[0].ProductID != "cable" || captured.Lines[0].Quantity != 3 {
		t.Fatalf("unexpected lines %+v", captured.Lines)
	}
	var resp orderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Order.Number != "ADM-20250304093000-0001" || resp.Order.Source != "admin" {
		t.Fatalf("unexpected order payload %+v", resp.Order)
	}
}

func TestAdminCatalogHandlersZones(t *testing.T) {
	updated := time.Date(2025, 3, 4, 9, 30, 0, 0, time.UTC)
	var upserted services.DeliveryZone
	catalog := &stubCatalogAdminService{
		listZonesFunc: func(context.Context) ([]services.DeliveryZone, error) {
			return []services.DeliveryZone{{Name: "cairo", Fee: 5000, DeliveryDays: 2, UpdatedAt: updated}}, nil
		},
		zoneFunc: func(ctx context.Context, zone services.DeliveryZone) (services.DeliveryZone, error) {
			upserted = zone
			zone.Name = domain.NormalizeZoneName(zone.Name)
			zone.UpdatedAt = updated
			return zone, nil
		},
	}
	router := newAdminRouter(&stubOrderService{}, catalog)

	req := httptest.NewRequest(http.MethodGet, "/admin/zones", nil)
	req = req.WithContext(withIdentity(req.Context(), "admin-1", auth.RoleAdmin))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var list zoneListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(list.Items) != 1 || list.Items[0].Fee != 5000 {
		t.Fatalf("unexpected zones %+v", list.Items)
	}

	req = httptest.NewRequest(http.MethodPut, "/admin/zones/Red%20Sea", jsonBody(`{"fee":9000,"deliveryDays":4}`))
	req = req.WithContext(withIdentity(req.Context(), "admin-1", auth.RoleAdmin))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if upserted.Fee != 9000 || upserted.DeliveryDays != 4 {
		t.Fatalf("unexpected zone upsert %+v", upserted)
	}
}

func TestAdminCatalogHandlersUpsertPromotion(t *testing.T) {
	var captured services.Promotion
	catalog := &stubCatalogAdminService{
		promoFunc: func(ctx context.Context, promotion services.Promotion) (services.Promotion, error) {
			captured = promotion
			promotion.Code = domain.NormalizePromotionCode(promotion.Code)
			return promotion, nil
		},
	}
	router := newAdminRouter(&stubOrderService{}, catalog)

	payload := `{"type":"percentage","value":1500,"maxDiscount":20000,"startsAt":"2025-03-01T00:00:00Z","endsAt":"2025-03-31T23:59:59Z","active":true,"usageLimit":100,"perUserLimit":1}`
	req := httptest.NewRequest(http.MethodPut, "/admin/promotions/spring15", jsonBody(payload))
	req = req.WithContext(withIdentity(req.Context(), "admin-1", auth.RoleAdmin))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Code != "spring15" || captured.Type != domain.PromotionTypePercentage || captured.Value != 1500 {
		t.Fatalf("unexpected promotion %+v", captured)
	}
	if captured.EndsAt.Day() != 31 || captured.PerUserLimit != 1 {
		t.Fatalf("unexpected promotion window/limits %+v", captured)
	}

	req = httptest.NewRequest(http.MethodPut, "/admin/promotions/spring15", jsonBody(`{"type":"fixed","value":100,"startsAt":"yesterday"}`))
	req = req.WithContext(withIdentity(req.Context(), "admin-1", auth.RoleAdmin))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for bad timestamp, got %d", rr.Code)
	}
}

func TestAdminCatalogHandlersAdjustStock(t *testing.T) {
	catalog := &stubCatalogAdminService{
		stockFunc: func(ctx context.Context, productID string, delta int64) (domain.Product, error) {
			if productID != "phone" || delta != -2 {
				t.Fatalf("unexpected adjustment %s %d", productID, delta)
			}
			return domain.Product{ID: productID, StockQuantity: 3, LowStockThreshold: 2}, nil
		},
	}
	router := newAdminRouter(&stubOrderService{}, catalog)

	req := httptest.NewRequest(http.MethodPost, "/admin/products/phone:adjust-stock", jsonBody(`{"delta":-2}`))
	req = req.WithContext(withIdentity(req.Context(), "admin-1", auth.RoleAdmin))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp productStockResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.StockQuantity != 3 {
		t.Fatalf("expected stock 3, got %d", resp.StockQuantity)
	}
}
