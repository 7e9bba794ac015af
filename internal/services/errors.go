package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/souqly/api/internal/repositories"
)

// Error kinds. Every error returned by the services wraps exactly one of these,
// so callers can classify with errors.Is.
var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrAccessDenied = errors.New("access denied")
	ErrUnexpected   = errors.New("unexpected failure")
)

// Specific failures. Each wraps a kind.
var (
	ErrCartEmpty             = fmt.Errorf("%w: cart is empty", ErrValidation)
	ErrAddressIncomplete     = fmt.Errorf("%w: shipping address is incomplete", ErrValidation)
	ErrInvalidQuantity       = fmt.Errorf("%w: quantity must be positive", ErrValidation)
	ErrInvalidPaymentMethod  = fmt.Errorf("%w: unsupported payment method", ErrValidation)
	ErrInvalidDeliveryMethod = fmt.Errorf("%w: unsupported delivery method", ErrValidation)
	ErrCartOwnerRequired     = fmt.Errorf("%w: cart owner is required", ErrValidation)

	ErrProductUnavailable = fmt.Errorf("%w: product unavailable", ErrNotFound)
	ErrInsufficientStock  = fmt.Errorf("%w: insufficient stock", ErrConflict)

	ErrPromotionInvalid      = fmt.Errorf("%w: promotion code is invalid", ErrNotFound)
	ErrPromotionExpired      = fmt.Errorf("%w: promotion code has expired", ErrNotFound)
	ErrMinimumPurchaseNotMet = fmt.Errorf("%w: minimum purchase not met", ErrValidation)
	ErrUsageLimitReached     = fmt.Errorf("%w: promotion usage limit reached", ErrConflict)
	ErrPerUserLimitReached   = fmt.Errorf("%w: promotion per-user limit reached", ErrConflict)

	ErrZoneNotFound           = fmt.Errorf("%w: delivery zone not found", ErrNotFound)
	ErrOrderNotFound          = fmt.Errorf("%w: order not found", ErrNotFound)
	ErrInvalidTransition      = fmt.Errorf("%w: invalid order status transition", ErrConflict)
	ErrOrderNotCancellable    = fmt.Errorf("%w: order can no longer be cancelled", ErrConflict)
	ErrOrderNotReturnable     = fmt.Errorf("%w: only delivered orders can be returned", ErrConflict)
	ErrConcurrentModification = fmt.Errorf("%w: concurrent modification, retry the request", ErrConflict)
	ErrStoreUnavailable       = fmt.Errorf("%w: data store unavailable", ErrUnexpected)
)

// LineItemError identifies the cart line that failed a stock or availability check.
type LineItemError struct {
	ProductID string
	Requested int64
	Available int64
	Err       error
}

func (e *LineItemError) Error() string {
	if errors.Is(e.Err, ErrInsufficientStock) {
		return fmt.Sprintf("%v: product %s requested %d, available %d", e.Err, e.ProductID, e.Requested, e.Available)
	}
	return fmt.Sprintf("%v: product %s", e.Err, e.ProductID)
}

func (e *LineItemError) Unwrap() error { return e.Err }

// PromotionRule names the promotion check that rejected a code.
type PromotionRule string

const (
	PromotionRuleUnknownCode PromotionRule = "unknown_code"
	PromotionRuleWindow      PromotionRule = "active_window"
	PromotionRuleMinPurchase PromotionRule = "minimum_purchase"
	PromotionRuleGlobalCap   PromotionRule = "usage_limit"
	PromotionRulePerUserCap  PromotionRule = "per_user_limit"
)

// PromotionRejection reports which rule rejected a promotion code.
type PromotionRejection struct {
	Code        string
	Rule        PromotionRule
	MinPurchase int64
	Err         error
}

func (e *PromotionRejection) Error() string {
	return fmt.Sprintf("%v (code %s)", e.Err, e.Code)
}

func (e *PromotionRejection) Unwrap() error { return e.Err }

func rejectPromotion(code string, rule PromotionRule, err error) *PromotionRejection {
	return &PromotionRejection{Code: code, Rule: rule, Err: err}
}

// translateRepoError maps repository failures onto the service error kinds.
// notFound is used for missing records so callers keep their specific error.
func translateRepoError(err error, notFound error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	for _, kind := range []error{ErrValidation, ErrNotFound, ErrConflict, ErrAccessDenied, ErrUnexpected} {
		if errors.Is(err, kind) {
			return err
		}
	}

	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		switch stockErr.Code {
		case repositories.StockErrorInsufficient:
			return &LineItemError{ProductID: stockErr.ProductID, Requested: stockErr.Requested, Available: stockErr.Available, Err: ErrInsufficientStock}
		case repositories.StockErrorProductNotFound:
			return &LineItemError{ProductID: stockErr.ProductID, Err: ErrProductUnavailable}
		default:
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}
	}

	var usageErr *repositories.PromotionUsageError
	if errors.As(err, &usageErr) {
		switch usageErr.Code {
		case repositories.PromotionUsageGlobalLimit:
			return rejectPromotion(usageErr.Promo, PromotionRuleGlobalCap, ErrUsageLimitReached)
		case repositories.PromotionUsageUserLimit:
			return rejectPromotion(usageErr.Promo, PromotionRulePerUserCap, ErrPerUserLimitReached)
		default:
			return rejectPromotion(usageErr.Promo, PromotionRuleUnknownCode, ErrPromotionInvalid)
		}
	}

	var counterErr *repositories.CounterError
	if errors.As(err, &counterErr) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			if notFound != nil {
				return notFound
			}
			return fmt.Errorf("%w: %v", ErrNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrConcurrentModification, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrUnexpected, err)
}

// isRepoNotFound reports whether err is a repository not-found failure.
func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
