package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domain "github.com/souqly/api/internal/domain"
	"github.com/souqly/api/internal/repositories"
)

func fixedClock() time.Time {
	return time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)
}

func seededStore() *Store {
	store := NewStore(WithClock(fixedClock))
	store.PutProduct(domain.Product{ID: "p1", Name: "Phone", Price: 50000, StockQuantity: 2, Visible: true})
	store.PutProduct(domain.Product{ID: "p2", Name: "Case", Price: 5000, StockQuantity: 10, Visible: true})
	store.PutPromotion(domain.Promotion{Code: "once", Type: domain.PromotionTypeFixed, Value: 100, Active: true, UsageLimit: 1})
	return store
}

func buildOrder(id string, lines ...domain.OrderLine) func(repositories.PlacementSnapshot) (domain.Order, error) {
	return func(repositories.PlacementSnapshot) (domain.Order, error) {
		return domain.Order{ID: id, Lines: lines, Status: domain.OrderStatusPlaced, CreatedAt: fixedClock()}, nil
	}
}

func TestPlaceDecrementsStockAndRecordsUsage(t *testing.T) {
	store := seededStore()
	ctx := context.Background()

	var seen repositories.PlacementSnapshot
	_, err := store.Orders().Place(ctx, repositories.PlaceOrderRequest{
		Lines:         []repositories.StockLine{{ProductID: "p1", Quantity: 2}},
		PromotionCode: "ONCE",
		UserID:        "u1",
		Build: func(snapshot repositories.PlacementSnapshot) (domain.Order, error) {
			seen = snapshot
			return domain.Order{ID: "o1", PromotionCode: "ONCE", Lines: []domain.OrderLine{{ProductID: "p1", Quantity: 2}}}, nil
		},
	})
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if seen.Promotion == nil || seen.Products["p1"].StockQuantity != 2 {
		t.Fatalf("unexpected snapshot %+v", seen)
	}
	product, _ := store.Product("p1")
	if product.StockQuantity != 0 || product.Sold != 2 {
		t.Fatalf("expected stock 0 sold 2, got %+v", product)
	}
	promo, _ := store.Promotion("once")
	if promo.UsageCount != 1 {
		t.Fatalf("expected usage 1, got %d", promo.UsageCount)
	}
	usage, _ := store.Promotions().UserUsage(ctx, "once", "u1")
	if usage != 1 {
		t.Fatalf("expected user usage 1, got %d", usage)
	}
}

func TestPlaceLeavesStateUntouchedOnFailure(t *testing.T) {
	store := seededStore()
	ctx := context.Background()

	_, err := store.Orders().Place(ctx, repositories.PlaceOrderRequest{
		Build: buildOrder("o1",
			domain.OrderLine{ProductID: "p2", Quantity: 3},
			domain.OrderLine{ProductID: "p1", Quantity: 5},
		),
	})
	var stockErr *repositories.StockError
	if !errors.As(err, &stockErr) || stockErr.Code != repositories.StockErrorInsufficient || stockErr.ProductID != "p1" {
		t.Fatalf("expected insufficient stock on p1, got %v", err)
	}
	if p2, _ := store.Product("p2"); p2.StockQuantity != 10 {
		t.Fatalf("expected p2 untouched, got %d", p2.StockQuantity)
	}
	if store.OrderCount() != 0 {
		t.Fatalf("expected no order stored")
	}

	// Exhausted promotion aborts after stock checks pass.
	_, _ = store.Promotions().Upsert(ctx, domain.Promotion{Code: "ONCE", Type: domain.PromotionTypeFixed, Value: 100, Active: true, UsageLimit: 1, UsageCount: 1})
	_, err = store.Orders().Place(ctx, repositories.PlaceOrderRequest{
		UserID: "u1",
		Build: func(repositories.PlacementSnapshot) (domain.Order, error) {
			return domain.Order{ID: "o2", PromotionCode: "ONCE", Lines: []domain.OrderLine{{ProductID: "p2", Quantity: 1}}}, nil
		},
	})
	var usageErr *repositories.PromotionUsageError
	if !errors.As(err, &usageErr) || usageErr.Code != repositories.PromotionUsageGlobalLimit {
		t.Fatalf("expected global limit error, got %v", err)
	}
	if p2, _ := store.Product("p2"); p2.StockQuantity != 10 {
		t.Fatalf("expected p2 untouched after promotion failure, got %d", p2.StockQuantity)
	}
}

func TestPlaceConcurrentLastUnit(t *testing.T) {
	store := NewStore()
	store.PutProduct(domain.Product{ID: "last", Price: 100, StockQuantity: 1, Visible: true})

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.Orders().Place(context.Background(), repositories.PlaceOrderRequest{
				Build: buildOrder(string(rune('a'+i)), domain.OrderLine{ProductID: "last", Quantity: 1}),
			})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly one success, got %d", successes)
	}
	if p, _ := store.Product("last"); p.StockQuantity != 0 {
		t.Fatalf("expected stock 0, got %d", p.StockQuantity)
	}
}

func TestTransitionAppliesMovements(t *testing.T) {
	store := seededStore()
	ctx := context.Background()
	if _, err := store.Orders().Place(ctx, repositories.PlaceOrderRequest{
		Build: buildOrder("o1", domain.OrderLine{ProductID: "p2", Quantity: 4}),
	}); err != nil {
		t.Fatalf("Place: %v", err)
	}

	updated, err := store.Orders().Transition(ctx, repositories.TransitionOrderRequest{
		OrderID: "o1",
		Apply: func(current domain.Order) (domain.Order, []repositories.StockMovement, error) {
			current.Status = domain.OrderStatusCancelled
			current.Restocked = true
			return current, []repositories.StockMovement{{ProductID: "p2", Restock: 4}}, nil
		},
	})
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if updated.Status != domain.OrderStatusCancelled {
		t.Fatalf("unexpected status %s", updated.Status)
	}
	if p2, _ := store.Product("p2"); p2.StockQuantity != 10 || p2.Sold != 0 {
		t.Fatalf("expected stock restored, got %+v", p2)
	}

	boom := errors.New("boom")
	_, err = store.Orders().Transition(ctx, repositories.TransitionOrderRequest{
		OrderID: "o1",
		Apply: func(domain.Order) (domain.Order, []repositories.StockMovement, error) {
			return domain.Order{}, nil, boom
		},
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected apply error, got %v", err)
	}

	// Purge of a restocked order leaves stock alone.
	if _, err := store.Orders().Purge(ctx, "o1"); err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if p2, _ := store.Product("p2"); p2.StockQuantity != 10 {
		t.Fatalf("expected purge not to restock twice, got %d", p2.StockQuantity)
	}
	if _, err := store.Orders().FindByID(ctx, "o1"); err == nil {
		t.Fatalf("expected purged order to be gone")
	}
}

func TestListPagesNewestFirst(t *testing.T) {
	store := NewStore()
	store.PutProduct(domain.Product{ID: "p", StockQuantity: 100, Visible: true})
	base := fixedClock()
	for i := 0; i < 5; i++ {
		created := base.Add(time.Duration(i) * time.Minute)
		userID := "u1"
		if i == 2 {
			userID = "u2"
		}
		_, err := store.Orders().Place(context.Background(), repositories.PlaceOrderRequest{
			Build: func(repositories.PlacementSnapshot) (domain.Order, error) {
				return domain.Order{ID: string(rune('a' + i)), UserID: userID, CreatedAt: created, Lines: []domain.OrderLine{{ProductID: "p", Quantity: 1}}}, nil
			},
		})
		if err != nil {
			t.Fatalf("Place %d: %v", i, err)
		}
	}

	first, err := store.Orders().List(context.Background(), repositories.OrderListFilter{UserID: "u1", PageSize: 2})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(first.Items) != 2 || first.Items[0].ID != "e" || first.Items[1].ID != "d" || first.NextPageToken == "" {
		t.Fatalf("unexpected first page %+v", first)
	}
	second, err := store.Orders().List(context.Background(), repositories.OrderListFilter{UserID: "u1", PageSize: 2, PageToken: first.NextPageToken})
	if err != nil {
		t.Fatalf("List second: %v", err)
	}
	if len(second.Items) != 2 || second.Items[0].ID != "b" || second.Items[1].ID != "a" || second.NextPageToken != "" {
		t.Fatalf("unexpected second page %+v", second)
	}
}

func TestCounterNextIsMonotonic(t *testing.T) {
	store := NewStore()
	for want := int64(1); want <= 3; want++ {
		got, err := store.Counters().Next(context.Background(), "orders:250304", 1)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if got != want {
			t.Fatalf("expected %d, got %d", want, got)
		}
	}
	if _, err := store.Counters().Next(context.Background(), " ", 1); err == nil {
		t.Fatalf("expected error for empty counter id")
	}
}

func TestPromotionUpsertKeepsRedemptions(t *testing.T) {
	store := seededStore()
	ctx := context.Background()
	_, err := store.Orders().Place(ctx, repositories.PlaceOrderRequest{
		Lines:         []repositories.StockLine{{ProductID: "p2", Quantity: 1}},
		PromotionCode: "ONCE",
		UserID:        "u1",
		Build: func(repositories.PlacementSnapshot) (domain.Order, error) {
			return domain.Order{ID: "o1", PromotionCode: "ONCE", Lines: []domain.OrderLine{{ProductID: "p2", Quantity: 1}}}, nil
		},
	})
	if err != nil {
		t.Fatalf("Place: %v", err)
	}

	saved, err := store.Promotions().Upsert(ctx, domain.Promotion{Code: "once", Type: domain.PromotionTypeFixed, Value: 300, Active: true, UsageLimit: 1})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if saved.UsageCount != 1 || saved.Value != 300 {
		t.Fatalf("expected edit to keep usage 1, got %+v", saved)
	}
	promo, _ := store.Promotion("ONCE")
	if promo.UsageCount != 1 {
		t.Fatalf("expected stored usage 1, got %d", promo.UsageCount)
	}
}
