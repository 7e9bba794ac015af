package handlers

import (
	"context"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/souqly/api/internal/domain"
	"github.com/souqly/api/internal/platform/auth"
	"github.com/souqly/api/internal/platform/httpx"
	"github.com/souqly/api/internal/platform/requestctx"
	"github.com/souqly/api/internal/services"
)

const (
	// SessionHeader carries the anonymous shopper's session id.
	SessionHeader = requestctx.SessionHeader

	maxCartRequestBody = 4 * 1024
)

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{8,128}$`)

// CartHandlers exposes cart endpoints for signed-in users and anonymous sessions.
type CartHandlers struct {
	authn *auth.Authenticator
	carts services.CartService
}

// NewCartHandlers constructs cart handlers. Authentication is optional on
// these routes; requests without a bearer token must send X-Session-ID.
func NewCartHandlers(authn *auth.Authenticator, carts services.CartService) *CartHandlers {
	return &CartHandlers{
		authn: authn,
		carts: carts,
	}
}

// Routes wires the cart endpoints. It is mounted at the API root because the
// custom verbs share the /cart prefix.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.authn != nil {
		group = group.With(h.authn.OptionalFirebaseAuth())
	}
	group.Get("/cart", h.getCart)
	group.Post("/cart:estimate", h.estimateCart)
	group.Post("/cart/items", h.addItem)
	group.Patch("/cart/items/{productID}", h.setItemQuantity)
	group.Delete("/cart/items/{productID}", h.removeItem)
	group.Post("/cart:apply-promotion", h.applyPromotion)
	group.Delete("/cart/promotion", h.removePromotion)
}

type cartItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int64  `json:"quantity"`
	Zone      string `json:"zone"`
	Method    string `json:"deliveryMethod"`
}

type cartPromotionRequest struct {
	Code   string `json:"code"`
	Zone   string `json:"zone"`
	Method string `json:"deliveryMethod"`
}

type cartEstimateRequest struct {
	Zone   string `json:"zone"`
	Method string `json:"deliveryMethod"`
}

type cartResponse struct {
	Cart cartPayload `json:"cart"`
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, ok := h.owner(ctx, w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	view, err := h.carts.GetCart(ctx, owner, previewOptions(query.Get("zone"), query.Get("deliveryMethod")))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(view)})
}

func (h *CartHandlers) estimateCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, ok := h.owner(ctx, w, r)
	if !ok {
		return
	}
	var req cartEstimateRequest
	if !decodeBody(ctx, w, r, maxCartRequestBody, false, &req) {
		return
	}
	view, err := h.carts.GetCart(ctx, owner, previewOptions(req.Zone, req.Method))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(view)})
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, ok := h.owner(ctx, w, r)
	if !ok {
		return
	}
	var req cartItemRequest
	if !decodeBody(ctx, w, r, maxCartRequestBody, false, &req) {
		return
	}
	productID := strings.TrimSpace(req.ProductID)
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "productId is required", http.StatusBadRequest))
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	view, err := h.carts.AddItem(ctx, services.CartItemCommand{
		Owner:     owner,
		ProductID: productID,
		Quantity:  req.Quantity,
		Preview:   previewOptions(req.Zone, req.Method),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(view)})
}

func (h *CartHandlers) setItemQuantity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, ok := h.owner(ctx, w, r)
	if !ok {
		return
	}
	var req cartItemRequest
	if !decodeBody(ctx, w, r, maxCartRequestBody, false, &req) {
		return
	}
	view, err := h.carts.SetItemQuantity(ctx, services.CartItemCommand{
		Owner:     owner,
		ProductID: strings.TrimSpace(chi.URLParam(r, "productID")),
		Quantity:  req.Quantity,
		Preview:   previewOptions(req.Zone, req.Method),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(view)})
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, ok := h.owner(ctx, w, r)
	if !ok {
		return
	}
	view, err := h.carts.RemoveItem(ctx, owner, strings.TrimSpace(chi.URLParam(r, "productID")))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(view)})
}

func (h *CartHandlers) applyPromotion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, ok := h.owner(ctx, w, r)
	if !ok {
		return
	}
	var req cartPromotionRequest
	if !decodeBody(ctx, w, r, maxCartRequestBody, false, &req) {
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "code is required", http.StatusBadRequest))
		return
	}
	view, err := h.carts.ApplyPromotion(ctx, services.ApplyPromotionCommand{
		Owner:   owner,
		Code:    req.Code,
		Preview: previewOptions(req.Zone, req.Method),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(view)})
}

func (h *CartHandlers) removePromotion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner, ok := h.owner(ctx, w, r)
	if !ok {
		return
	}
	view, err := h.carts.RemovePromotion(ctx, owner)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(view)})
}

// owner resolves the cart principal: the signed-in user when present,
// otherwise the session header.
func (h *CartHandlers) owner(ctx context.Context, w http.ResponseWriter, r *http.Request) (services.CartOwner, bool) {
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "cart service unavailable", http.StatusServiceUnavailable))
		return services.CartOwner{}, false
	}
	if identity, ok := auth.IdentityFromContext(ctx); ok && identity != nil && strings.TrimSpace(identity.UID) != "" {
		return services.CartOwner{Kind: domain.CartOwnerUser, ID: strings.TrimSpace(identity.UID)}, true
	}
	session := strings.TrimSpace(r.Header.Get(SessionHeader))
	if session == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "sign in or send "+SessionHeader, http.StatusUnauthorized))
		return services.CartOwner{}, false
	}
	if !sessionIDPattern.MatchString(session) {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_session", SessionHeader+" is malformed", http.StatusBadRequest))
		return services.CartOwner{}, false
	}
	return services.CartOwner{Kind: domain.CartOwnerSession, ID: session}, true
}

func previewOptions(zone, method string) services.CartPreviewOptions {
	return services.CartPreviewOptions{
		Zone:   strings.TrimSpace(zone),
		Method: domain.DeliveryMethod(strings.ToLower(strings.TrimSpace(method))),
	}
}
