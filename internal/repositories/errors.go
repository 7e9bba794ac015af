package repositories

import "fmt"

// StockErrorCode enumerates stock mutation failures.
type StockErrorCode string

const (
	// StockErrorInsufficient indicates the requested quantity exceeds the stock on hand.
	StockErrorInsufficient StockErrorCode = "stock_insufficient"
	// StockErrorProductNotFound indicates the product document is missing.
	StockErrorProductNotFound StockErrorCode = "stock_product_not_found"
	// StockErrorInvalidInput indicates a malformed mutation request.
	StockErrorInvalidInput StockErrorCode = "stock_invalid_input"
)

// StockError reports a failed conditional stock mutation for a single product.
type StockError struct {
	Code      StockErrorCode
	ProductID string
	Requested int64
	Available int64
	Err       error
}

func (e *StockError) Error() string {
	if e == nil {
		return ""
	}
	switch e.Code {
	case StockErrorInsufficient:
		return fmt.Sprintf("product %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
	case StockErrorProductNotFound:
		return fmt.Sprintf("product %s: not found", e.ProductID)
	default:
		return fmt.Sprintf("product %s: %s", e.ProductID, e.Code)
	}
}

func (e *StockError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// PromotionUsageErrorCode enumerates promotion counter failures.
type PromotionUsageErrorCode string

const (
	// PromotionUsageGlobalLimit indicates the promotion reached its global cap.
	PromotionUsageGlobalLimit PromotionUsageErrorCode = "promotion_global_limit"
	// PromotionUsageUserLimit indicates the user reached the per-user cap.
	PromotionUsageUserLimit PromotionUsageErrorCode = "promotion_user_limit"
	// PromotionUsageNotFound indicates the promotion document is missing.
	PromotionUsageNotFound PromotionUsageErrorCode = "promotion_not_found"
)

// PromotionUsageError reports a rejected redemption counter increment.
type PromotionUsageError struct {
	Code   PromotionUsageErrorCode
	Promo  string
	UserID string
}

func (e *PromotionUsageError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("promotion %s: %s", e.Promo, e.Code)
}

// CounterErrorCode enumerates failure reasons for counter operations.
type CounterErrorCode string

const (
	// CounterErrorInvalidInput indicates the caller supplied invalid arguments.
	CounterErrorInvalidInput CounterErrorCode = "counter_invalid_input"
)

// CounterError wraps counter failures with a machine readable code.
type CounterError struct {
	Code    CounterErrorCode
	Message string
	Err     error
}

func (e *CounterError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message == "" {
		return string(e.Code)
	}
	return e.Message
}

func (e *CounterError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewCounterError constructs a typed counter error.
func NewCounterError(code CounterErrorCode, message string, err error) *CounterError {
	return &CounterError{Code: code, Message: message, Err: err}
}

// NotFoundError is a RepositoryError for missing records in non-Firestore stores.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) IsNotFound() bool    { return true }
func (e *NotFoundError) IsConflict() bool    { return false }
func (e *NotFoundError) IsUnavailable() bool { return false }
