package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/souqly/api/internal/domain"
	"github.com/souqly/api/internal/platform/textutil"
	"github.com/souqly/api/internal/repositories"
)

const maxPromotionDescriptionLength = 280

// CatalogAdminServiceDeps wires the reference data repositories.
type CatalogAdminServiceDeps struct {
	Zones      repositories.ZoneRepository
	Promotions repositories.PromotionRepository
	Products   repositories.ProductRepository
	Fees       DeliveryFeeService
	Clock      func() time.Time
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type catalogAdminService struct {
	zones      repositories.ZoneRepository
	promotions repositories.PromotionRepository
	products   repositories.ProductRepository
	fees       DeliveryFeeService
	now        func() time.Time
	logger     func(context.Context, string, map[string]any)
}

// NewCatalogAdminService constructs a CatalogAdminService. Fees is optional
// and only used to drop cached zones after an update.
func NewCatalogAdminService(deps CatalogAdminServiceDeps) (CatalogAdminService, error) {
	switch {
	case deps.Zones == nil:
		return nil, errors.New("catalog admin service: zone repository is required")
	case deps.Promotions == nil:
		return nil, errors.New("catalog admin service: promotion repository is required")
	case deps.Products == nil:
		return nil, errors.New("catalog admin service: product repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &catalogAdminService{
		zones:      deps.Zones,
		promotions: deps.Promotions,
		products:   deps.Products,
		fees:       deps.Fees,
		now:        func() time.Time { return clock().UTC() },
		logger:     logger,
	}, nil
}

func (s *catalogAdminService) ListZones(ctx context.Context) ([]DeliveryZone, error) {
	zones, err := s.zones.List(ctx)
	if err != nil {
		return nil, translateRepoError(err, nil)
	}
	return zones, nil
}

func (s *catalogAdminService) UpsertZone(ctx context.Context, zone DeliveryZone) (DeliveryZone, error) {
	zone.Name = domain.NormalizeZoneName(zone.Name)
	if zone.Name == "" {
		return DeliveryZone{}, fmt.Errorf("%w: zone name is required", ErrValidation)
	}
	if zone.Fee < 0 {
		return DeliveryZone{}, fmt.Errorf("%w: fee must not be negative", ErrValidation)
	}
	if zone.DeliveryDays < 1 {
		return DeliveryZone{}, fmt.Errorf("%w: delivery days must be at least 1", ErrValidation)
	}
	zone.UpdatedAt = s.now()
	saved, err := s.zones.Upsert(ctx, zone)
	if err != nil {
		return DeliveryZone{}, translateRepoError(err, nil)
	}
	if s.fees != nil {
		s.fees.Invalidate(saved.Name)
	}
	s.logger(ctx, "catalog.zone_upserted", map[string]any{"zone": saved.Name, "fee": saved.Fee, "days": saved.DeliveryDays})
	return saved, nil
}

func (s *catalogAdminService) UpsertPromotion(ctx context.Context, promotion Promotion) (Promotion, error) {
	promotion.Code = domain.NormalizePromotionCode(promotion.Code)
	promotion.Description = textutil.PlainText(promotion.Description, maxPromotionDescriptionLength)
	if err := validatePromotion(promotion); err != nil {
		return Promotion{}, err
	}
	now := s.now()
	promotion.CreatedAt = now
	promotion.UpdatedAt = now
	promotion.UsageCount = 0

	saved, err := s.promotions.Upsert(ctx, promotion)
	if err != nil {
		return Promotion{}, translateRepoError(err, nil)
	}
	s.logger(ctx, "catalog.promotion_upserted", map[string]any{"code": saved.Code, "type": string(saved.Type), "active": saved.Active})
	return saved, nil
}

// AdjustStock applies a manual stock correction. Negative deltas cannot take
// stock below zero.
func (s *catalogAdminService) AdjustStock(ctx context.Context, productID string, delta int64) (domain.Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, &LineItemError{Err: ErrProductUnavailable}
	}
	if delta == 0 {
		return domain.Product{}, ErrInvalidQuantity
	}
	product, err := s.products.AdjustStock(ctx, productID, delta)
	if err != nil {
		return domain.Product{}, translateRepoError(err, nil)
	}
	s.logger(ctx, "catalog.stock_adjusted", map[string]any{"productId": productID, "delta": delta, "stock": product.StockQuantity})
	return product, nil
}

func validatePromotion(p Promotion) error {
	var problems []string
	if p.Code == "" {
		problems = append(problems, "code is required")
	}
	switch p.Type {
	case domain.PromotionTypePercentage:
		if p.Value <= 0 || p.Value > 10000 {
			problems = append(problems, "percentage value must be between 1 and 10000 basis points")
		}
	case domain.PromotionTypeFixed:
		if p.Value <= 0 {
			problems = append(problems, "fixed value must be positive")
		}
	case domain.PromotionTypeFreeShipping:
	default:
		problems = append(problems, "unknown promotion type")
	}
	if p.MinPurchase < 0 || p.MaxDiscount < 0 || p.UsageLimit < 0 || p.PerUserLimit < 0 {
		problems = append(problems, "limits must not be negative")
	}
	if !p.StartsAt.IsZero() && !p.EndsAt.IsZero() && p.EndsAt.Before(p.StartsAt) {
		problems = append(problems, "endsAt must not precede startsAt")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrValidation, strings.Join(problems, "; "))
	}
	return nil
}
