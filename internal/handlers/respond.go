package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/souqly/api/internal/platform/auth"
	"github.com/souqly/api/internal/platform/httpx"
	"github.com/souqly/api/internal/platform/requestctx"
	"github.com/souqly/api/internal/services"
)

// decodeBody reads a JSON body into dst. When optional is set an absent body
// leaves dst untouched.
func decodeBody(ctx context.Context, w http.ResponseWriter, r *http.Request, limit int64, optional bool, dst any) bool {
	err := httpx.DecodeJSON(r, limit, dst)
	switch {
	case err == nil:
		return true
	case errors.Is(err, httpx.ErrEmptyBody) && optional:
		return true
	case errors.Is(err, httpx.ErrBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	case errors.Is(err, httpx.ErrEmptyBody):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
	}
	return false
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	httpx.WriteJSON(w, status, payload)
}

func requireIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

// writeServiceError maps the service error kinds onto HTTP statuses. Line and
// promotion failures carry the offending product or rule in details.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	var lineErr *services.LineItemError
	if errors.As(err, &lineErr) {
		code := "product_unavailable"
		status := http.StatusNotFound
		if errors.Is(err, services.ErrInsufficientStock) {
			code = "insufficient_stock"
			status = http.StatusConflict
		}
		details := map[string]any{"productId": lineErr.ProductID}
		if lineErr.Requested > 0 {
			details["requested"] = lineErr.Requested
			details["available"] = lineErr.Available
		}
		httpx.WriteError(ctx, w, httpx.NewError(code, err.Error(), status).WithDetails(details))
		return
	}

	var rejection *services.PromotionRejection
	if errors.As(err, &rejection) {
		details := map[string]any{"code": rejection.Code, "rule": string(rejection.Rule)}
		if rejection.MinPurchase > 0 {
			details["minPurchase"] = rejection.MinPurchase
		}
		httpx.WriteError(ctx, w, httpx.NewError("promotion_rejected", err.Error(), statusForKind(err)).WithDetails(details))
		return
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("deadline_exceeded", "request timed out", http.StatusGatewayTimeout))
	case errors.Is(err, context.Canceled):
		httpx.WriteError(ctx, w, httpx.NewError("request_cancelled", "request cancelled", 499))
	case errors.Is(err, services.ErrStoreUnavailable):
		requestctx.Logger(ctx).Error("data store unavailable", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("unavailable", "data store unavailable", http.StatusServiceUnavailable))
	default:
		status := statusForKind(err)
		if status == http.StatusInternalServerError {
			requestctx.Logger(ctx).Error("request failed", zap.Error(err))
		}
		httpx.WriteError(ctx, w, httpx.NewError(codeForKind(err), messageForKind(err), status))
	}
}

func statusForKind(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, services.ErrAccessDenied):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func codeForKind(err error) string {
	switch {
	case errors.Is(err, services.ErrValidation):
		return "invalid_request"
	case errors.Is(err, services.ErrNotFound):
		return "not_found"
	case errors.Is(err, services.ErrConflict):
		return "conflict"
	case errors.Is(err, services.ErrAccessDenied):
		return "forbidden"
	default:
		return "internal_error"
	}
}

// messageForKind hides the detail of unexpected failures from callers.
func messageForKind(err error) string {
	if statusForKind(err) == http.StatusInternalServerError {
		return "internal error"
	}
	return err.Error()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.DateOnly)
}

func passthrough(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	if mw == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return mw
}
