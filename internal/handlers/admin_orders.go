package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/souqly/api/internal/domain"
	"github.com/souqly/api/internal/platform/auth"
	"github.com/souqly/api/internal/platform/httpx"
	"github.com/souqly/api/internal/services"
)

const maxAdminOrderBodySize = 32 * 1024

// AdminOrderHandlers exposes staff order management endpoints.
type AdminOrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
	replay func(http.Handler) http.Handler
}

// AdminOrderHandlersOption customises AdminOrderHandlers.
type AdminOrderHandlersOption func(*AdminOrderHandlers)

// WithAdminOrderIdempotency replays admin order creation requests that repeat
// an idempotency key.
func WithAdminOrderIdempotency(mw func(http.Handler) http.Handler) AdminOrderHandlersOption {
	return func(h *AdminOrderHandlers) {
		h.replay = mw
	}
}

// NewAdminOrderHandlers constructs admin order handlers.
func NewAdminOrderHandlers(authn *auth.Authenticator, orders services.OrderService, opts ...AdminOrderHandlersOption) *AdminOrderHandlers {
	h := &AdminOrderHandlers{
		authn:  authn,
		orders: orders,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the admin order endpoints under /admin.
func (h *AdminOrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(g chi.Router) {
		if h.authn != nil {
			g.Use(h.authn.RequireFirebaseAuth(auth.RoleStaff, auth.RoleAdmin))
		}
		g.With(auth.RequireCapability(auth.CapabilityOrdersManage)).Get("/orders", h.listOrders)
		g.With(auth.RequireCapability(auth.CapabilityOrdersManage)).Get("/orders/{orderID}", h.getOrder)
		g.With(auth.RequireCapability(auth.CapabilityOrdersManage)).Post("/orders/{orderID}:transition", h.transitionOrder)
		g.With(auth.RequireCapability(auth.CapabilityOrdersManage)).Post("/orders/{orderID}:cancel", h.cancelOrder)
		g.With(auth.RequireCapability(auth.CapabilityOrdersCreateAdmin), passthrough(h.replay)).Post("/orders", h.createOrder)
		g.With(auth.RequireCapability(auth.CapabilityOrdersPurge)).Delete("/orders/{orderID}", h.purgeOrder)
	})
}

type adminTransitionRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

type adminOrderLineRequest struct {
	ProductID string `json:"productId"`
	Quantity  int64  `json:"quantity"`
}

type adminCreateOrderRequest struct {
	UserID         string                  `json:"userId"`
	Email          string                  `json:"email"`
	Name           string                  `json:"name"`
	Lines          []adminOrderLineRequest `json:"lines"`
	Zone           string                  `json:"zone"`
	DeliveryMethod string                  `json:"deliveryMethod"`
	PaymentMethod  string                  `json:"paymentMethod"`
	Address        addressPayload          `json:"shippingAddress"`
	Notes          string                  `json:"notes"`
}

func (h *AdminOrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	filter, ok := parseOrderListFilter(w, r)
	if !ok {
		return
	}
	scope := services.OrderScope{UserID: strings.TrimSpace(r.URL.Query().Get("user_id"))}
	page, err := h.orders.ListOrders(ctx, scope, filter)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderList(page.Items, page.NextPageToken))
}

func (h *AdminOrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	order, err := h.orders.GetOrder(ctx, services.OrderScope{}, chi.URLParam(r, "orderID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminOrderHandlers) transitionOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req adminTransitionRequest
	if !decodeBody(ctx, w, r, maxOrderActionBodySize, false, &req) {
		return
	}
	status := domain.OrderStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if status == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status is required", http.StatusBadRequest))
		return
	}
	order, err := h.orders.TransitionStatus(ctx, services.OrderTransitionCommand{
		OrderID: chi.URLParam(r, "orderID"),
		Status:  status,
		ActorID: identity.UID,
		Reason:  req.Reason,
		Locale:  identity.Locale,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminOrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req orderActionRequest
	if !decodeBody(ctx, w, r, maxOrderActionBodySize, true, &req) {
		return
	}
	order, err := h.orders.CancelOrder(ctx, services.CancelOrderCommand{
		OrderID: chi.URLParam(r, "orderID"),
		ActorID: identity.UID,
		Reason:  req.Reason,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminOrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req adminCreateOrderRequest
	if !decodeBody(ctx, w, r, maxAdminOrderBodySize, false, &req) {
		return
	}
	lines := make([]services.AdminOrderLine, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, services.AdminOrderLine{ProductID: strings.TrimSpace(line.ProductID), Quantity: line.Quantity})
	}
	order, err := h.orders.CreateAdminOrder(ctx, services.AdminOrderCommand{
		ActorID:        identity.UID,
		UserID:         strings.TrimSpace(req.UserID),
		Customer:       domain.Customer{Email: strings.TrimSpace(req.Email), Name: strings.TrimSpace(req.Name)},
		Lines:          lines,
		Zone:           strings.TrimSpace(req.Zone),
		DeliveryMethod: domain.DeliveryMethod(strings.ToLower(strings.TrimSpace(req.DeliveryMethod))),
		PaymentMethod:  domain.PaymentMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod))),
		Address:        addressFromPayload(req.Address),
		Notes:          req.Notes,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminOrderHandlers) purgeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	order, err := h.orders.PurgeOrder(ctx, chi.URLParam(r, "orderID"), identity.UID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}
