//go:build integration

package firestore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domain "github.com/souqly/api/internal/domain"
	"github.com/souqly/api/internal/repositories"
)

func TestOrderRepositoryPlacementIntegration(t *testing.T) {
	provider := newEmulatorProvider(t, "orders-test")
	registry, err := NewRegistry(provider)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	products, err := NewProductRepository(provider)
	if err != nil {
		t.Fatalf("new product repository: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	if _, err := products.Save(ctx, domain.Product{ID: "last", Name: "Last One", Price: 1000, StockQuantity: 1, Visible: true}); err != nil {
		t.Fatalf("seed product: %v", err)
	}
	if _, err := products.Save(ctx, domain.Product{ID: "plenty", Name: "Plenty", Price: 500, StockQuantity: 10, Visible: true}); err != nil {
		t.Fatalf("seed product: %v", err)
	}
	if _, err := registry.Promotions().Upsert(ctx, domain.Promotion{Code: "ONCE", Type: domain.PromotionTypeFixed, Value: 100, Active: true, UsageLimit: 1}); err != nil {
		t.Fatalf("seed promotion: %v", err)
	}

	place := func(id, productID string, qty int64, promo string) error {
		_, err := registry.Orders().Place(ctx, repositories.PlaceOrderRequest{
			Lines:         []repositories.StockLine{{ProductID: productID, Quantity: qty}},
			PromotionCode: promo,
			UserID:        "u-" + id,
			Build: func(snapshot repositories.PlacementSnapshot) (domain.Order, error) {
				now := snapshot.ReadAt
				return domain.Order{
					ID:            id,
					UserID:        "u-" + id,
					PromotionCode: promo,
					Lines:         []domain.OrderLine{{ProductID: productID, Quantity: qty}},
					Status:        domain.OrderStatusPlaced,
					CreatedAt:     now,
					UpdatedAt:     now,
				}, nil
			},
		})
		return err
	}

	const buyers = 6
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			err := place("ord_race_"+string(rune('a'+idx)), "last", 1, "")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			var stockErr *repositories.StockError
			var repoErr repositories.RepositoryError
			switch {
			case errors.As(err, &stockErr):
			case errors.As(err, &repoErr) && repoErr.IsConflict():
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if successes != 1 {
		t.Fatalf("expected exactly one successful placement, got %d", successes)
	}

	if err := place("ord_promo_1", "plenty", 2, "ONCE"); err != nil {
		t.Fatalf("place with promotion: %v", err)
	}
	err = place("ord_promo_2", "plenty", 3, "ONCE")
	var usageErr *repositories.PromotionUsageError
	if !errors.As(err, &usageErr) || usageErr.Code != repositories.PromotionUsageGlobalLimit {
		t.Fatalf("expected exhausted promotion, got %v", err)
	}
	edited, err := registry.Promotions().Upsert(ctx, domain.Promotion{Code: "once", Type: domain.PromotionTypeFixed, Value: 250, Active: true, UsageLimit: 1})
	if err != nil {
		t.Fatalf("edit promotion: %v", err)
	}
	if edited.UsageCount != 1 || edited.Value != 250 {
		t.Fatalf("admin edit must keep redemptions, got %+v", edited)
	}
	stored, err := registry.Promotions().FindByCode(ctx, "ONCE")
	if err != nil {
		t.Fatalf("find promotion: %v", err)
	}
	if stored.UsageCount != 1 {
		t.Fatalf("expected stored usage 1, got %d", stored.UsageCount)
	}

	plenty, err := products.FindByID(ctx, "plenty")
	if err != nil {
		t.Fatalf("find product: %v", err)
	}
	if plenty.StockQuantity != 8 {
		t.Fatalf("failed placement must not touch stock, got %d", plenty.StockQuantity)
	}

	cancelled, err := registry.Orders().Transition(ctx, repositories.TransitionOrderRequest{
		OrderID: "ord_promo_1",
		Apply: func(current domain.Order) (domain.Order, []repositories.StockMovement, error) {
			current.Status = domain.OrderStatusCancelled
			current.Restocked = true
			return current, []repositories.StockMovement{{ProductID: "plenty", Restock: 2}}, nil
		},
	})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if cancelled.Status != domain.OrderStatusCancelled {
		t.Fatalf("unexpected status %s", cancelled.Status)
	}
	plenty, err = products.FindByID(ctx, "plenty")
	if err != nil {
		t.Fatalf("find product: %v", err)
	}
	if plenty.StockQuantity != 10 || plenty.Sold != 0 {
		t.Fatalf("expected restock, got %+v", plenty)
	}

	page, err := registry.Orders().List(ctx, repositories.OrderListFilter{PageSize: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(page.Items))
	}
}
