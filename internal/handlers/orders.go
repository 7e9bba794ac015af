package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/souqly/api/internal/domain"
	"github.com/souqly/api/internal/platform/auth"
	"github.com/souqly/api/internal/platform/httpx"
	"github.com/souqly/api/internal/platform/pagination"
	"github.com/souqly/api/internal/services"
)

const (
	maxCheckoutRequestBody = 8 * 1024
	maxOrderActionBodySize = 2 * 1024
)

// OrderHandlers exposes checkout and the buyer's own order endpoints.
type OrderHandlers struct {
	authn    *auth.Authenticator
	checkout services.CheckoutService
	orders   services.OrderService
	limiter  *KeyedRateLimiter
	replay   func(http.Handler) http.Handler
}

// OrderHandlersOption customises OrderHandlers.
type OrderHandlersOption func(*OrderHandlers)

// WithCheckoutRateLimiter throttles order creation per caller.
func WithCheckoutRateLimiter(limiter *KeyedRateLimiter) OrderHandlersOption {
	return func(h *OrderHandlers) {
		h.limiter = limiter
	}
}

// WithCheckoutIdempotency installs middleware that replays checkout requests
// repeating an idempotency key. It runs after authentication so keys are
// scoped to the caller.
func WithCheckoutIdempotency(mw func(http.Handler) http.Handler) OrderHandlersOption {
	return func(h *OrderHandlers) {
		h.replay = mw
	}
}

// NewOrderHandlers constructs order handlers guarded by Firebase authentication.
func NewOrderHandlers(authn *auth.Authenticator, checkout services.CheckoutService, orders services.OrderService, opts ...OrderHandlersOption) *OrderHandlers {
	h := &OrderHandlers{
		authn:    authn,
		checkout: checkout,
		orders:   orders,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.With(h.limiter.Middleware, passthrough(h.replay)).Post("/", h.placeOrder)
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}:cancel", h.cancelOrder)
	r.Post("/{orderID}:return", h.returnOrder)
}

type checkoutRequest struct {
	Address        addressPayload `json:"shippingAddress"`
	PaymentMethod  string         `json:"paymentMethod"`
	DeliveryMethod string         `json:"deliveryMethod"`
	PromotionCode  string         `json:"promotionCode"`
	Notes          string         `json:"notes"`
	Email          string         `json:"email"`
	Name           string         `json:"name"`
}

type checkoutResponse struct {
	OrderID           string       `json:"orderId"`
	Number            string       `json:"number"`
	Total             int64        `json:"total"`
	Discount          int64        `json:"discount"`
	EstimatedDelivery string       `json:"estimatedDelivery"`
	PaymentStatus     string       `json:"paymentStatus"`
	Order             orderPayload `json:"order"`
}

type orderActionRequest struct {
	Reason string `json:"reason"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

func (h *OrderHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req checkoutRequest
	if !decodeBody(ctx, w, r, maxCheckoutRequestBody, false, &req) {
		return
	}

	customer := domain.Customer{Email: identity.Email, Name: identity.Name}
	if email := strings.TrimSpace(req.Email); email != "" {
		customer.Email = email
	}
	if name := strings.TrimSpace(req.Name); name != "" {
		customer.Name = name
	}

	result, err := h.checkout.PlaceOrder(ctx, services.PlaceOrderCommand{
		UserID:         identity.UID,
		Customer:       customer,
		Address:        addressFromPayload(req.Address),
		PaymentMethod:  domain.PaymentMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod))),
		DeliveryMethod: domain.DeliveryMethod(strings.ToLower(strings.TrimSpace(req.DeliveryMethod))),
		PromotionCode:  req.PromotionCode,
		Notes:          req.Notes,
		Locale:         identity.Locale,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, checkoutResponse{
		OrderID:           result.Order.ID,
		Number:            result.Number,
		Total:             result.Total,
		Discount:          result.Discount,
		EstimatedDelivery: formatDate(result.EstimatedDelivery),
		PaymentStatus:     string(result.PaymentStatus),
		Order:             buildOrderPayload(result.Order),
	})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	filter, ok := parseOrderListFilter(w, r)
	if !ok {
		return
	}
	page, err := h.orders.ListOrders(ctx, services.OrderScope{UserID: identity.UID}, filter)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderList(page.Items, page.NextPageToken))
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	order, err := h.orders.GetOrder(ctx, services.OrderScope{UserID: identity.UID}, chi.URLParam(r, "orderID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
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
		Scope:   services.OrderScope{UserID: identity.UID},
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) returnOrder(w http.ResponseWriter, r *http.Request) {
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
	order, err := h.orders.RequestReturn(ctx, services.ReturnOrderCommand{
		OrderID: chi.URLParam(r, "orderID"),
		ActorID: identity.UID,
		Reason:  req.Reason,
		Scope:   services.OrderScope{UserID: identity.UID},
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

// parseOrderListFilter reads status, pageSize and pageToken. Status accepts
// repeated parameters or a comma separated list.
func parseOrderListFilter(w http.ResponseWriter, r *http.Request) (services.OrderListFilter, bool) {
	params, err := pagination.ParseRequest(r)
	if err != nil {
		message := "pageToken is invalid"
		if errors.Is(err, pagination.ErrInvalidPageSize) {
			message = "pageSize must be a positive integer"
		}
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", message, http.StatusBadRequest))
		return services.OrderListFilter{}, false
	}
	filter := services.OrderListFilter{PageSize: params.PageSize, PageToken: params.PageToken}
	for _, raw := range r.URL.Query()["status"] {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
				filter.Statuses = append(filter.Statuses, domain.OrderStatus(part))
			}
		}
	}
	return filter, true
}

func addressFromPayload(p addressPayload) domain.ShippingAddress {
	return domain.ShippingAddress{
		FullName:   p.FullName,
		Phone:      p.Phone,
		Street:     p.Street,
		City:       p.City,
		Zone:       p.Zone,
		Country:    p.Country,
		PostalCode: p.PostalCode,
	}
}
