package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/souqly/api/internal/domain"
	"github.com/souqly/api/internal/platform/auth"
	"github.com/souqly/api/internal/platform/httpx"
	"github.com/souqly/api/internal/services"
)

const maxCatalogRequestBody = 16 * 1024

// AdminCatalogHandlers exposes the delivery zone, promotion and stock endpoints.
type AdminCatalogHandlers struct {
	authn   *auth.Authenticator
	catalog services.CatalogAdminService
}

// NewAdminCatalogHandlers constructs admin catalog handlers.
func NewAdminCatalogHandlers(authn *auth.Authenticator, catalog services.CatalogAdminService) *AdminCatalogHandlers {
	return &AdminCatalogHandlers{authn: authn, catalog: catalog}
}

// Routes registers admin catalog endpoints.
func (h *AdminCatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(g chi.Router) {
		if h.authn != nil {
			g.Use(h.authn.RequireFirebaseAuth(auth.RoleAdmin))
		}
		g.Use(auth.RequireCapability(auth.CapabilityCatalogManage))
		g.Get("/zones", h.listZones)
		g.Put("/zones/{name}", h.upsertZone)
		g.Put("/promotions/{code}", h.upsertPromotion)
		g.Post("/products/{productID}:adjust-stock", h.adjustStock)
	})
}

type zonePayload struct {
	Name         string `json:"name"`
	Fee          int64  `json:"fee"`
	DeliveryDays int    `json:"deliveryDays"`
	UpdatedAt    string `json:"updatedAt,omitempty"`
}

type zoneListResponse struct {
	Items []zonePayload `json:"items"`
}

type promotionRequest struct {
	Type         string `json:"type"`
	Value        int64  `json:"value"`
	MinPurchase  int64  `json:"minPurchase"`
	MaxDiscount  int64  `json:"maxDiscount"`
	StartsAt     string `json:"startsAt"`
	EndsAt       string `json:"endsAt"`
	Active       bool   `json:"active"`
	UsageLimit   int64  `json:"usageLimit"`
	PerUserLimit int64  `json:"perUserLimit"`
	Description  string `json:"description"`
}

type promotionResponse struct {
	Code         string `json:"code"`
	Type         string `json:"type"`
	Value        int64  `json:"value"`
	MinPurchase  int64  `json:"minPurchase"`
	MaxDiscount  int64  `json:"maxDiscount"`
	StartsAt     string `json:"startsAt,omitempty"`
	EndsAt       string `json:"endsAt,omitempty"`
	Active       bool   `json:"active"`
	UsageLimit   int64  `json:"usageLimit"`
	PerUserLimit int64  `json:"perUserLimit"`
	UsageCount   int64  `json:"usageCount"`
	Description  string `json:"description,omitempty"`
	UpdatedAt    string `json:"updatedAt,omitempty"`
}

type stockAdjustmentRequest struct {
	Delta int64 `json:"delta"`
}

type productStockResponse struct {
	ProductID         string `json:"productId"`
	StockQuantity     int64  `json:"stockQuantity"`
	Sold              int64  `json:"sold"`
	LowStockThreshold int64  `json:"lowStockThreshold"`
}

func (h *AdminCatalogHandlers) listZones(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}
	zones, err := h.catalog.ListZones(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	resp := zoneListResponse{Items: make([]zonePayload, 0, len(zones))}
	for _, zone := range zones {
		resp.Items = append(resp.Items, buildZonePayload(zone))
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *AdminCatalogHandlers) upsertZone(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}
	var req zonePayload
	if !decodeBody(ctx, w, r, maxCatalogRequestBody, false, &req) {
		return
	}
	saved, err := h.catalog.UpsertZone(ctx, domain.DeliveryZone{
		Name:         chi.URLParam(r, "name"),
		Fee:          req.Fee,
		DeliveryDays: req.DeliveryDays,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildZonePayload(saved))
}

func (h *AdminCatalogHandlers) upsertPromotion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}
	var req promotionRequest
	if !decodeBody(ctx, w, r, maxCatalogRequestBody, false, &req) {
		return
	}
	startsAt, err := parseOptionalTime("startsAt", req.StartsAt)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	endsAt, err := parseOptionalTime("endsAt", req.EndsAt)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	saved, err := h.catalog.UpsertPromotion(ctx, domain.Promotion{
		Code:         chi.URLParam(r, "code"),
		Type:         domain.PromotionType(strings.ToLower(strings.TrimSpace(req.Type))),
		Value:        req.Value,
		MinPurchase:  req.MinPurchase,
		MaxDiscount:  req.MaxDiscount,
		StartsAt:     startsAt,
		EndsAt:       endsAt,
		Active:       req.Active,
		UsageLimit:   req.UsageLimit,
		PerUserLimit: req.PerUserLimit,
		Description:  req.Description,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, promotionResponse{
		Code:         saved.Code,
		Type:         string(saved.Type),
		Value:        saved.Value,
		MinPurchase:  saved.MinPurchase,
		MaxDiscount:  saved.MaxDiscount,
		StartsAt:     formatTime(saved.StartsAt),
		EndsAt:       formatTime(saved.EndsAt),
		Active:       saved.Active,
		UsageLimit:   saved.UsageLimit,
		PerUserLimit: saved.PerUserLimit,
		UsageCount:   saved.UsageCount,
		Description:  saved.Description,
		UpdatedAt:    formatTime(saved.UpdatedAt),
	})
}

func (h *AdminCatalogHandlers) adjustStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}
	var req stockAdjustmentRequest
	if !decodeBody(ctx, w, r, maxCatalogRequestBody, false, &req) {
		return
	}
	product, err := h.catalog.AdjustStock(ctx, chi.URLParam(r, "productID"), req.Delta)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, productStockResponse{
		ProductID:         product.ID,
		StockQuantity:     product.StockQuantity,
		Sold:              product.Sold,
		LowStockThreshold: product.LowStockThreshold,
	})
}

func buildZonePayload(zone services.DeliveryZone) zonePayload {
	return zonePayload{
		Name:         zone.Name,
		Fee:          zone.Fee,
		DeliveryDays: zone.DeliveryDays,
		UpdatedAt:    formatTime(zone.UpdatedAt),
	}
}

func parseOptionalTime(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be a valid RFC3339 timestamp", field)
	}
	return ts.UTC(), nil
}
