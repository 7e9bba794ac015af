package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/souqly/api/internal/domain"
	pfirestore "github.com/souqly/api/internal/platform/firestore"
	"github.com/souqly/api/internal/repositories"
)

const (
	promotionsCollection     = "promotions"
	promotionUsageCollection = "usage"
)

type promotionDocument struct {
	Type         string    `firestore:"type"`
	Value        int64     `firestore:"value"`
	MinPurchase  int64     `firestore:"minPurchase"`
	MaxDiscount  int64     `firestore:"maxDiscount"`
	StartsAt     time.Time `firestore:"startsAt,omitempty"`
	EndsAt       time.Time `firestore:"endsAt,omitempty"`
	Active       bool      `firestore:"active"`
	UsageLimit   int64     `firestore:"usageLimit"`
	PerUserLimit int64     `firestore:"perUserLimit"`
	UsageCount   int64     `firestore:"usageCount"`
	Description  string    `firestore:"description,omitempty"`
	CreatedAt    time.Time `firestore:"createdAt"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

type promotionUsageDocument struct {
	Count     int64     `firestore:"count"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func (d promotionDocument) toDomain(code string) domain.Promotion {
	return domain.Promotion{
		Code:         code,
		Type:         domain.PromotionType(d.Type),
		Value:        d.Value,
		MinPurchase:  d.MinPurchase,
		MaxDiscount:  d.MaxDiscount,
		StartsAt:     d.StartsAt,
		EndsAt:       d.EndsAt,
		Active:       d.Active,
		UsageLimit:   d.UsageLimit,
		PerUserLimit: d.PerUserLimit,
		UsageCount:   d.UsageCount,
		Description:  d.Description,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

func newPromotionDocument(p domain.Promotion) promotionDocument {
	return promotionDocument{
		Type:         string(p.Type),
		Value:        p.Value,
		MinPurchase:  p.MinPurchase,
		MaxDiscount:  p.MaxDiscount,
		StartsAt:     p.StartsAt.UTC(),
		EndsAt:       p.EndsAt.UTC(),
		Active:       p.Active,
		UsageLimit:   p.UsageLimit,
		PerUserLimit: p.PerUserLimit,
		UsageCount:   p.UsageCount,
		Description:  p.Description,
		CreatedAt:    p.CreatedAt.UTC(),
		UpdatedAt:    p.UpdatedAt.UTC(),
	}
}

// PromotionRepository stores promotions keyed by code with a per-user usage
// ledger in the usage subcollection.
type PromotionRepository struct {
	provider   *pfirestore.Provider
	promotions *pfirestore.BaseRepository[promotionDocument]
}

// NewPromotionRepository constructs a Firestore-backed promotion repository.
func NewPromotionRepository(provider *pfirestore.Provider) (*PromotionRepository, error) {
	if provider == nil {
		return nil, errors.New("promotion repository requires firestore provider")
	}
	return &PromotionRepository{
		provider:   provider,
		promotions: pfirestore.NewBaseRepository[promotionDocument](provider, promotionsCollection),
	}, nil
}

func (r *PromotionRepository) FindByCode(ctx context.Context, code string) (domain.Promotion, error) {
	key := domain.NormalizePromotionCode(code)
	if key == "" {
		return domain.Promotion{}, &repositories.NotFoundError{Entity: "promotion", ID: code}
	}
	doc, err := r.promotions.Get(ctx, key)
	if err != nil {
		return domain.Promotion{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// UserUsage returns how often userID redeemed code; a missing ledger entry is zero.
func (r *PromotionRepository) UserUsage(ctx context.Context, code, userID string) (int64, error) {
	ref, err := r.usageRef(ctx, code, userID)
	if err != nil {
		return 0, err
	}
	snapshot, err := ref.Get(ctx)
	if err != nil {
		if pfirestore.IsNotFound(err) {
			return 0, nil
		}
		return 0, pfirestore.WrapError("promotions.usage.get", err)
	}
	var usage promotionUsageDocument
	if err := snapshot.DataTo(&usage); err != nil {
		return 0, err
	}
	return usage.Count, nil
}

func (r *PromotionRepository) Upsert(ctx context.Context, promotion domain.Promotion) (domain.Promotion, error) {
	promotion.Code = domain.NormalizePromotionCode(promotion.Code)
	if promotion.UpdatedAt.IsZero() {
		promotion.UpdatedAt = time.Now().UTC()
	}
	if promotion.CreatedAt.IsZero() {
		promotion.CreatedAt = promotion.UpdatedAt
	}
	promotion.UsageCount = 0
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, ref, err := r.promotions.GetTx(ctx, tx, promotion.Code)
		switch {
		case err == nil:
			promotion.UsageCount = doc.Data.UsageCount
			promotion.CreatedAt = doc.Data.CreatedAt
		case pfirestore.IsNotFound(err):
		default:
			return err
		}
		return tx.Set(ref, newPromotionDocument(promotion))
	})
	if err != nil {
		return domain.Promotion{}, pfirestore.WrapError("promotions.upsert", err)
	}
	return promotion, nil
}

func (r *PromotionRepository) usageRef(ctx context.Context, code, userID string) (*firestore.DocumentRef, error) {
	ref, err := r.promotions.DocumentRef(ctx, domain.NormalizePromotionCode(code))
	if err != nil {
		return nil, err
	}
	id := strings.TrimSpace(userID)
	if id == "" {
		return nil, errors.New("promotions: user id is required")
	}
	return ref.Collection(promotionUsageCollection).Doc(id), nil
}

// promotionRedemption is the promotion state read inside a transaction.
type promotionRedemption struct {
	promotion *domain.Promotion
	promoRef  *firestore.DocumentRef
	userUsage int64
	usageRef  *firestore.DocumentRef
}

// readRedemptionTx reads the promotion and, when userID is set, the user's
// ledger entry. A missing promotion leaves promotion nil.
func (r *PromotionRepository) readRedemptionTx(ctx context.Context, tx *firestore.Transaction, code, userID string) (promotionRedemption, error) {
	var out promotionRedemption
	doc, ref, err := r.promotions.GetTx(ctx, tx, code)
	out.promoRef = ref
	if err != nil {
		if pfirestore.IsNotFound(err) {
			return out, nil
		}
		return out, err
	}
	promo := doc.Data.toDomain(doc.ID)
	out.promotion = &promo

	if strings.TrimSpace(userID) == "" {
		return out, nil
	}
	out.usageRef = ref.Collection(promotionUsageCollection).Doc(strings.TrimSpace(userID))
	snapshot, err := tx.Get(out.usageRef)
	if err != nil {
		if pfirestore.IsNotFound(err) {
			return out, nil
		}
		return out, err
	}
	var usage promotionUsageDocument
	if err := snapshot.DataTo(&usage); err != nil {
		return out, err
	}
	out.userUsage = usage.Count
	return out, nil
}

// apply checks both caps against the transactional read and writes the increments.
func (p promotionRedemption) apply(tx *firestore.Transaction, userID string, now time.Time) error {
	promo := p.promotion
	if promo.GlobalCapReached() {
		return &repositories.PromotionUsageError{Code: repositories.PromotionUsageGlobalLimit, Promo: promo.Code, UserID: userID}
	}
	if p.usageRef != nil && promo.PerUserLimit > 0 && p.userUsage >= promo.PerUserLimit {
		return &repositories.PromotionUsageError{Code: repositories.PromotionUsageUserLimit, Promo: promo.Code, UserID: userID}
	}
	if err := tx.Update(p.promoRef, []firestore.Update{
		{Path: "usageCount", Value: promo.UsageCount + 1},
		{Path: "updatedAt", Value: now},
	}); err != nil {
		return err
	}
	if p.usageRef == nil {
		return nil
	}
	return tx.Set(p.usageRef, promotionUsageDocument{Count: p.userUsage + 1, UpdatedAt: now})
}
