package services

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/souqly/api/internal/domain"
	"github.com/souqly/api/internal/repositories"
)

var basisPointsDivisor = decimal.NewFromInt(10000)

// PromotionValidatorDeps wires the dependencies required by the promotion validator.
type PromotionValidatorDeps struct {
	Promotions repositories.PromotionRepository
	Clock      func() time.Time
}

type promotionValidator struct {
	promotions repositories.PromotionRepository
	now        func() time.Time
}

// NewPromotionValidator constructs a PromotionValidator.
func NewPromotionValidator(deps PromotionValidatorDeps) (PromotionValidator, error) {
	if deps.Promotions == nil {
		return nil, errors.New("promotion validator: promotion repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &promotionValidator{
		promotions: deps.Promotions,
		now:        func() time.Time { return clock().UTC() },
	}, nil
}

// Validate looks the code up and evaluates it. Counters are never modified.
func (v *promotionValidator) Validate(ctx context.Context, check PromotionCheck) (PromotionResult, error) {
	code := domain.NormalizePromotionCode(check.Code)
	if code == "" {
		return PromotionResult{}, rejectPromotion(code, PromotionRuleUnknownCode, ErrPromotionInvalid)
	}

	promo, err := v.promotions.FindByCode(ctx, code)
	if err != nil {
		if isRepoNotFound(err) {
			return PromotionResult{}, rejectPromotion(code, PromotionRuleUnknownCode, ErrPromotionInvalid)
		}
		return PromotionResult{}, translateRepoError(err, nil)
	}

	var userUsage int64
	if check.UserID != "" && promo.PerUserLimit > 0 {
		userUsage, err = v.promotions.UserUsage(ctx, code, check.UserID)
		if err != nil && !isRepoNotFound(err) {
			return PromotionResult{}, translateRepoError(err, nil)
		}
	}

	return EvaluatePromotion(promo, PromotionEvaluation{
		Subtotal:  check.Subtotal,
		UserID:    check.UserID,
		UserUsage: userUsage,
		Now:       v.now(),
	})
}

// PromotionEvaluation carries the request-side facts a promotion is checked against.
type PromotionEvaluation struct {
	Subtotal  int64
	UserID    string
	UserUsage int64
	Now       time.Time
}

// EvaluatePromotion applies the promotion rules in order: availability and
// window, minimum purchase, global cap, per-user cap, then the discount with
// its ceiling. It is pure so it can run inside a storage transaction.
func EvaluatePromotion(promo domain.Promotion, eval PromotionEvaluation) (PromotionResult, error) {
	code := domain.NormalizePromotionCode(promo.Code)
	if !promo.Active {
		return PromotionResult{}, rejectPromotion(code, PromotionRuleUnknownCode, ErrPromotionInvalid)
	}
	if !promo.InWindow(eval.Now) {
		return PromotionResult{}, rejectPromotion(code, PromotionRuleWindow, ErrPromotionExpired)
	}
	if eval.Subtotal < promo.MinPurchase {
		rejection := rejectPromotion(code, PromotionRuleMinPurchase, ErrMinimumPurchaseNotMet)
		rejection.MinPurchase = promo.MinPurchase
		return PromotionResult{}, rejection
	}
	if promo.GlobalCapReached() {
		return PromotionResult{}, rejectPromotion(code, PromotionRuleGlobalCap, ErrUsageLimitReached)
	}
	if eval.UserID != "" && promo.PerUserLimit > 0 && eval.UserUsage >= promo.PerUserLimit {
		return PromotionResult{}, rejectPromotion(code, PromotionRulePerUserCap, ErrPerUserLimitReached)
	}

	result := PromotionResult{
		Code:        code,
		Type:        promo.Type,
		Description: promo.Description,
	}
	switch promo.Type {
	case domain.PromotionTypePercentage:
		result.Discount = PercentageOf(eval.Subtotal, promo.Value)
	case domain.PromotionTypeFixed:
		result.Discount = min(promo.Value, eval.Subtotal)
	case domain.PromotionTypeFreeShipping:
		result.FreeShipping = true
	default:
		return PromotionResult{}, rejectPromotion(code, PromotionRuleUnknownCode, ErrPromotionInvalid)
	}
	if promo.MaxDiscount > 0 && result.Discount > promo.MaxDiscount {
		result.Discount = promo.MaxDiscount
	}
	result.Discount = max(min(result.Discount, eval.Subtotal), 0)
	return result, nil
}

// PercentageOf returns amount × basisPoints / 10000 rounded half away from zero.
func PercentageOf(amount, basisPoints int64) int64 {
	return decimal.NewFromInt(amount).
		Mul(decimal.NewFromInt(basisPoints)).
		Div(basisPointsDivisor).
		Round(0).
		IntPart()
}
