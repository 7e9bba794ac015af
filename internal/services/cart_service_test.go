package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/souqly/api/internal/domain"
)

func TestCartService_AddItemMergesQuantities(t *testing.T) {
	f := newCommerceFixture(t)
	ctx := context.Background()
	owner := CartOwner{Kind: domain.CartOwnerSession, ID: "sess-1"}

	if _, err := f.carts.AddItem(ctx, CartItemCommand{Owner: owner, ProductID: "cable", Quantity: 2}); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	view, err := f.carts.AddItem(ctx, CartItemCommand{Owner: owner, ProductID: "cable", Quantity: 3, Preview: CartPreviewOptions{Zone: "Cairo"}})
	if err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if len(view.Cart.Items) != 1 || view.Cart.Items[0].Quantity != 5 {
		t.Fatalf("expected merged line of 5, got %+v", view.Cart.Items)
	}
	if view.Pricing.Subtotal != 12500 || view.Pricing.DeliveryFee != 5000 {
		t.Fatalf("unexpected pricing %+v", view.Pricing)
	}
}

func TestCartService_AddItemChecksProduct(t *testing.T) {
	f := newCommerceFixture(t)
	ctx := context.Background()
	owner := userOwner("u1")

	_, err := f.carts.AddItem(ctx, CartItemCommand{Owner: owner, ProductID: "rare", Quantity: 2})
	var lineErr *LineItemError
	if !errors.As(err, &lineErr) || !errors.Is(err, ErrInsufficientStock) || lineErr.Available != 1 {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if _, err := f.carts.AddItem(ctx, CartItemCommand{Owner: owner, ProductID: "hidden", Quantity: 1}); !errors.Is(err, ErrProductUnavailable) {
		t.Fatalf("expected hidden product to be unavailable, got %v", err)
	}
	if _, err := f.carts.AddItem(ctx, CartItemCommand{Owner: owner, ProductID: "ghost", Quantity: 1}); !errors.Is(err, ErrProductUnavailable) {
		t.Fatalf("expected missing product to be unavailable, got %v", err)
	}
	if _, err := f.carts.AddItem(ctx, CartItemCommand{Owner: owner, ProductID: "cable", Quantity: 0}); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected invalid quantity, got %v", err)
	}
	if _, err := f.carts.AddItem(ctx, CartItemCommand{ProductID: "cable", Quantity: 1}); !errors.Is(err, ErrCartOwnerRequired) {
		t.Fatalf("expected owner required, got %v", err)
	}
}

func TestCartService_SetQuantityAndRemove(t *testing.T) {
	f := newCommerceFixture(t)
	ctx := context.Background()
	owner := userOwner("u1")
	f.addToCart(t, "u1", "cable", 1)
	f.addToCart(t, "u1", "phone", 1)

	view, err := f.carts.SetItemQuantity(ctx, CartItemCommand{Owner: owner, ProductID: "cable", Quantity: 4})
	if err != nil {
		t.Fatalf("SetItemQuantity: %v", err)
	}
	if view.Cart.Items[0].Quantity != 4 {
		t.Fatalf("expected quantity 4, got %+v", view.Cart.Items)
	}

	view, err = f.carts.SetItemQuantity(ctx, CartItemCommand{Owner: owner, ProductID: "cable", Quantity: 0})
	if err != nil {
		t.Fatalf("SetItemQuantity zero: %v", err)
	}
	if len(view.Cart.Items) != 1 || view.Cart.Items[0].ProductID != "phone" {
		t.Fatalf("expected only phone to remain, got %+v", view.Cart.Items)
	}

	view, err = f.carts.RemoveItem(ctx, owner, "phone")
	if err != nil {
		t.Fatalf("RemoveItem: %v", err)
	}
	if !view.Cart.IsEmpty() || view.Pricing.Subtotal != 0 {
		t.Fatalf("expected empty cart, got %+v", view)
	}

	if _, err := f.carts.SetItemQuantity(ctx, CartItemCommand{Owner: owner, ProductID: "cable", Quantity: -1}); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected invalid quantity, got %v", err)
	}
}

func TestCartService_PromotionLifecycle(t *testing.T) {
	f := newCommerceFixture(t)
	ctx := context.Background()
	owner := userOwner("u1")
	f.store.PutPromotion(domain.Promotion{Code: "BIGSPEND", Type: domain.PromotionTypeFixed, Value: 5000, Active: true, MinPurchase: 50000})
	f.addToCart(t, "u1", "phone", 1)

	view, err := f.carts.ApplyPromotion(ctx, ApplyPromotionCommand{Owner: owner, Code: "bigspend"})
	if err != nil {
		t.Fatalf("ApplyPromotion: %v", err)
	}
	if view.Cart.PromotionCode != "BIGSPEND" || view.Pricing.Discount != 5000 {
		t.Fatalf("expected discount applied, got %+v", view.Pricing)
	}
	if !f.events.has("cart.promotion_applied") {
		t.Fatalf("expected promotion application to be logged")
	}

	// Dropping below the minimum keeps the code but reports why it no longer applies.
	f.addToCart(t, "u1", "cable", 1)
	view, err = f.carts.RemoveItem(ctx, owner, "phone")
	if err != nil {
		t.Fatalf("RemoveItem: %v", err)
	}
	if !errors.Is(view.PromotionError, ErrMinimumPurchaseNotMet) {
		t.Fatalf("expected minimum purchase error, got %v", view.PromotionError)
	}
	if view.Pricing.Discount != 0 || view.Pricing.Promotion != nil {
		t.Fatalf("expected no discount, got %+v", view.Pricing)
	}

	view, err = f.carts.RemovePromotion(ctx, owner)
	if err != nil {
		t.Fatalf("RemovePromotion: %v", err)
	}
	if view.Cart.PromotionCode != "" || view.PromotionError != nil {
		t.Fatalf("expected promotion removed, got %+v", view.Cart)
	}

	if _, err := f.carts.ApplyPromotion(ctx, ApplyPromotionCommand{Owner: owner, Code: "UNKNOWN"}); !errors.Is(err, ErrPromotionInvalid) {
		t.Fatalf("expected invalid promotion, got %v", err)
	}
}

func TestCartService_PreviewDropsUnavailableLines(t *testing.T) {
	f := newCommerceFixture(t)
	ctx := context.Background()
	f.addToCart(t, "u1", "cable", 2)
	f.addToCart(t, "u1", "rare", 1)
	if _, err := f.store.Products().AdjustStock(ctx, "rare", -1); err != nil {
		t.Fatalf("AdjustStock: %v", err)
	}

	view, err := f.carts.GetCart(ctx, userOwner("u1"), CartPreviewOptions{Zone: "Cairo", Method: domain.DeliveryMethodExpress})
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	if len(view.Pricing.Dropped) != 1 || view.Pricing.Dropped[0] != "rare" {
		t.Fatalf("expected rare to be dropped, got %v", view.Pricing.Dropped)
	}
	if view.Pricing.Subtotal != 5000 || view.Pricing.DeliveryFee != 7500 {
		t.Fatalf("unexpected pricing %+v", view.Pricing)
	}
}

func TestCartService_GetMissingCartIsEmpty(t *testing.T) {
	f := newCommerceFixture(t)
	view, err := f.carts.GetCart(context.Background(), userOwner("nobody"), CartPreviewOptions{})
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	if !view.Cart.IsEmpty() || view.Pricing.Total != DefaultStandardFee {
		t.Fatalf("expected empty cart priced with the default fee, got %+v", view.Pricing)
	}
}
