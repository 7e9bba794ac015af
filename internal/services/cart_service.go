package services

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	domain "github.com/souqly/api/internal/domain"
	"github.com/souqly/api/internal/repositories"
)

// CartServiceDeps wires the repository and pricing dependencies for cart operations.
type CartServiceDeps struct {
	Carts      repositories.CartRepository
	Products   repositories.ProductRepository
	Pricing    PricingEngine
	Promotions PromotionValidator
	Clock      func() time.Time
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type cartService struct {
	carts      repositories.CartRepository
	products   repositories.ProductRepository
	pricing    PricingEngine
	promotions PromotionValidator
	now        func() time.Time
	logger     func(context.Context, string, map[string]any)
}

// NewCartService constructs a CartService.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errors.New("cart service: cart repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("cart service: product repository is required")
	}
	if deps.Pricing == nil {
		return nil, errors.New("cart service: pricing engine is required")
	}
	if deps.Promotions == nil {
		return nil, errors.New("cart service: promotion validator is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &cartService{
		carts:      deps.Carts,
		products:   deps.Products,
		pricing:    deps.Pricing,
		promotions: deps.Promotions,
		now:        func() time.Time { return clock().UTC() },
		logger:     logger,
	}, nil
}

func (s *cartService) GetCart(ctx context.Context, owner CartOwner, opts CartPreviewOptions) (CartView, error) {
	cart, err := s.load(ctx, owner)
	if err != nil {
		return CartView{}, err
	}
	return s.preview(ctx, cart, opts)
}

func (s *cartService) AddItem(ctx context.Context, cmd CartItemCommand) (CartView, error) {
	if cmd.Quantity <= 0 {
		return CartView{}, ErrInvalidQuantity
	}
	cart, err := s.load(ctx, cmd.Owner)
	if err != nil {
		return CartView{}, err
	}
	productID := strings.TrimSpace(cmd.ProductID)
	quantity := cmd.Quantity
	idx := indexOfCartItem(cart.Items, productID)
	if idx >= 0 {
		quantity += cart.Items[idx].Quantity
	}
	if err := s.checkProduct(ctx, productID, quantity); err != nil {
		return CartView{}, err
	}

	now := s.now()
	if idx >= 0 {
		cart.Items[idx].Quantity = quantity
	} else {
		cart.Items = append(cart.Items, domain.CartItem{ProductID: productID, Quantity: quantity, AddedAt: now})
	}
	return s.saveAndPreview(ctx, cart, cmd.Preview)
}

// SetItemQuantity replaces a line's quantity. Zero removes the line.
func (s *cartService) SetItemQuantity(ctx context.Context, cmd CartItemCommand) (CartView, error) {
	if cmd.Quantity < 0 {
		return CartView{}, ErrInvalidQuantity
	}
	cart, err := s.load(ctx, cmd.Owner)
	if err != nil {
		return CartView{}, err
	}
	productID := strings.TrimSpace(cmd.ProductID)
	idx := indexOfCartItem(cart.Items, productID)
	if cmd.Quantity == 0 {
		if idx < 0 {
			return s.preview(ctx, cart, cmd.Preview)
		}
		cart.Items = slices.Delete(cart.Items, idx, idx+1)
		return s.saveAndPreview(ctx, cart, cmd.Preview)
	}
	if err := s.checkProduct(ctx, productID, cmd.Quantity); err != nil {
		return CartView{}, err
	}
	if idx >= 0 {
		cart.Items[idx].Quantity = cmd.Quantity
	} else {
		cart.Items = append(cart.Items, domain.CartItem{ProductID: productID, Quantity: cmd.Quantity, AddedAt: s.now()})
	}
	return s.saveAndPreview(ctx, cart, cmd.Preview)
}

func (s *cartService) RemoveItem(ctx context.Context, owner CartOwner, productID string) (CartView, error) {
	return s.SetItemQuantity(ctx, CartItemCommand{Owner: owner, ProductID: productID, Quantity: 0})
}

// ApplyPromotion validates the code against the current subtotal and stores
// it on the cart. Counters are only consumed at checkout.
func (s *cartService) ApplyPromotion(ctx context.Context, cmd ApplyPromotionCommand) (CartView, error) {
	cart, err := s.load(ctx, cmd.Owner)
	if err != nil {
		return CartView{}, err
	}
	lines, err := s.resolveLines(ctx, cart)
	if err != nil {
		return CartView{}, err
	}
	result, err := s.promotions.Validate(ctx, PromotionCheck{
		Code:     cmd.Code,
		Subtotal: eligibleSubtotal(lines),
		UserID:   cmd.Owner.UserID(),
	})
	if err != nil {
		return CartView{}, err
	}
	cart.PromotionCode = result.Code
	cart.Discount = result.Discount
	cart.FreeShipping = result.FreeShipping
	s.logger(ctx, "cart.promotion_applied", map[string]any{"owner": cart.Owner.Key(), "code": result.Code})
	return s.saveAndPreview(ctx, cart, cmd.Preview)
}

func (s *cartService) RemovePromotion(ctx context.Context, owner CartOwner) (CartView, error) {
	cart, err := s.load(ctx, owner)
	if err != nil {
		return CartView{}, err
	}
	if cart.PromotionCode == "" {
		return s.preview(ctx, cart, CartPreviewOptions{})
	}
	cart.PromotionCode = ""
	cart.Discount = 0
	cart.FreeShipping = false
	return s.saveAndPreview(ctx, cart, CartPreviewOptions{})
}

func (s *cartService) load(ctx context.Context, owner CartOwner) (Cart, error) {
	if owner.Key() == "" {
		return Cart{}, ErrCartOwnerRequired
	}
	owner.ID = strings.TrimSpace(owner.ID)
	cart, err := s.carts.Find(ctx, owner)
	if err != nil {
		if isRepoNotFound(err) {
			now := s.now()
			return Cart{Owner: owner, CreatedAt: now, UpdatedAt: now}, nil
		}
		return Cart{}, translateRepoError(err, nil)
	}
	cart.Owner = owner
	return cart, nil
}

func (s *cartService) saveAndPreview(ctx context.Context, cart Cart, opts CartPreviewOptions) (CartView, error) {
	cart.UpdatedAt = s.now()
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = cart.UpdatedAt
	}
	saved, err := s.carts.Save(ctx, cart)
	if err != nil {
		return CartView{}, translateRepoError(err, nil)
	}
	return s.preview(ctx, saved, opts)
}

// preview prices the cart. A stored promotion that no longer validates is
// reported on the view and left out of the totals.
func (s *cartService) preview(ctx context.Context, cart Cart, opts CartPreviewOptions) (CartView, error) {
	lines, err := s.resolveLines(ctx, cart)
	if err != nil {
		return CartView{}, err
	}

	view := CartView{Cart: cart}
	var promotion *PromotionResult
	if cart.PromotionCode != "" {
		result, err := s.promotions.Validate(ctx, PromotionCheck{
			Code:     cart.PromotionCode,
			Subtotal: eligibleSubtotal(lines),
			UserID:   cart.Owner.UserID(),
		})
		switch {
		case err == nil:
			promotion = &result
			view.Cart.Discount = result.Discount
			view.Cart.FreeShipping = result.FreeShipping
		case isPromotionRejection(err):
			view.PromotionError = err
			view.Cart.Discount = 0
			view.Cart.FreeShipping = false
		default:
			return CartView{}, err
		}
	}

	pricing, err := s.pricing.Price(ctx, PriceCommand{
		Lines:     lines,
		Zone:      opts.Zone,
		Method:    opts.Method,
		Promotion: promotion,
	})
	if err != nil {
		return CartView{}, err
	}
	view.Pricing = pricing
	return view, nil
}

// resolveLines loads the current product for every cart item. Items whose
// product no longer exists are priced as unavailable.
func (s *cartService) resolveLines(ctx context.Context, cart Cart) ([]PriceLine, error) {
	lines := make([]PriceLine, 0, len(cart.Items))
	for _, item := range cart.Items {
		product, err := s.products.FindByID(ctx, item.ProductID)
		if err != nil {
			if isRepoNotFound(err) {
				product = domain.Product{ID: item.ProductID}
			} else {
				return nil, translateRepoError(err, nil)
			}
		}
		lines = append(lines, PriceLine{Product: product, Quantity: item.Quantity})
	}
	return lines, nil
}

func (s *cartService) checkProduct(ctx context.Context, productID string, quantity int64) error {
	if productID == "" {
		return &LineItemError{ProductID: productID, Err: ErrProductUnavailable}
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		if isRepoNotFound(err) {
			return &LineItemError{ProductID: productID, Err: ErrProductUnavailable}
		}
		return translateRepoError(err, nil)
	}
	if !product.Purchasable() {
		return &LineItemError{ProductID: productID, Err: ErrProductUnavailable}
	}
	if product.StockQuantity < quantity {
		return &LineItemError{ProductID: productID, Requested: quantity, Available: product.StockQuantity, Err: ErrInsufficientStock}
	}
	return nil
}

// eligibleSubtotal is the subtotal of the lines the pricing engine keeps.
func eligibleSubtotal(lines []PriceLine) int64 {
	var subtotal int64
	for _, line := range lines {
		if line.Quantity <= 0 || !line.Product.Purchasable() || !line.Product.InStock() {
			continue
		}
		subtotal += line.Product.Price * line.Quantity
	}
	return subtotal
}

func indexOfCartItem(items []domain.CartItem, productID string) int {
	return slices.IndexFunc(items, func(item domain.CartItem) bool {
		return item.ProductID == productID
	})
}

func isPromotionRejection(err error) bool {
	var rejection *PromotionRejection
	return errors.As(err, &rejection)
}
