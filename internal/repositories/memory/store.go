// Package memory implements the repository contracts in process. Every
// operation runs under one mutex, so multi-record writes such as order
// placement are atomic.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	domain "github.com/souqly/api/internal/domain"
	"github.com/souqly/api/internal/platform/pagination"
	"github.com/souqly/api/internal/repositories"
)

// Store holds all records.
type Store struct {
	mu         sync.Mutex
	now        func() time.Time
	products   map[string]domain.Product
	promotions map[string]domain.Promotion
	usage      map[string]map[string]int64
	zones      map[string]domain.DeliveryZone
	carts      map[string]domain.Cart
	orders     map[string]domain.Order
	counters   map[string]int64
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for UpdatedAt stamps and snapshot reads.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NewStore returns an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		now:        time.Now,
		products:   make(map[string]domain.Product),
		promotions: make(map[string]domain.Promotion),
		usage:      make(map[string]map[string]int64),
		zones:      make(map[string]domain.DeliveryZone),
		carts:      make(map[string]domain.Cart),
		orders:     make(map[string]domain.Order),
		counters:   make(map[string]int64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ repositories.Registry = (*Store)(nil)

func (s *Store) Close(context.Context) error { return nil }
func (s *Store) Ping(context.Context) error  { return nil }

func (s *Store) Products() repositories.ProductRepository     { return productRepo{s} }
func (s *Store) Promotions() repositories.PromotionRepository { return promotionRepo{s} }
func (s *Store) Zones() repositories.ZoneRepository           { return zoneRepo{s} }
func (s *Store) Carts() repositories.CartRepository           { return cartRepo{s} }
func (s *Store) Orders() repositories.OrderRepository         { return orderRepo{s} }
func (s *Store) Counters() repositories.CounterRepository     { return counterRepo{s} }

// PutProduct seeds or replaces a product.
func (s *Store) PutProduct(product domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[product.ID] = product
}

// PutPromotion seeds or replaces a promotion.
func (s *Store) PutPromotion(promotion domain.Promotion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	promotion.Code = domain.NormalizePromotionCode(promotion.Code)
	s.promotions[promotion.Code] = promotion
}

// PutRedemption seeds the per-user usage ledger of a promotion.
func (s *Store) PutRedemption(code, userID string, count int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	code = domain.NormalizePromotionCode(code)
	if s.usage[code] == nil {
		s.usage[code] = make(map[string]int64)
	}
	s.usage[code][userID] = count
}

// PutZone seeds or replaces a delivery zone.
func (s *Store) PutZone(zone domain.DeliveryZone) {
	s.mu.Lock()
	defer s.mu.Unlock()
	zone.Name = domain.NormalizeZoneName(zone.Name)
	s.zones[zone.Name] = zone
}

// Product returns the stored product for assertions.
func (s *Store) Product(id string) (domain.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	return p, ok
}

// Promotion returns the stored promotion for assertions.
func (s *Store) Promotion(code string) (domain.Promotion, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.promotions[domain.NormalizePromotionCode(code)]
	return p, ok
}

// OrderCount returns the number of stored orders.
func (s *Store) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func notFound(entity, id string) error {
	return &repositories.NotFoundError{Entity: entity, ID: id}
}

type productRepo struct{ s *Store }

func (r productRepo) FindByID(_ context.Context, productID string) (domain.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[strings.TrimSpace(productID)]
	if !ok {
		return domain.Product{}, notFound("product", productID)
	}
	return p, nil
}

func (r productRepo) AdjustStock(_ context.Context, productID string, delta int64) (domain.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[productID]
	if !ok {
		return domain.Product{}, &repositories.StockError{Code: repositories.StockErrorProductNotFound, ProductID: productID}
	}
	if p.StockQuantity+delta < 0 {
		return domain.Product{}, &repositories.StockError{
			Code:      repositories.StockErrorInsufficient,
			ProductID: productID,
			Requested: -delta,
			Available: p.StockQuantity,
		}
	}
	p.StockQuantity += delta
	p.UpdatedAt = r.s.now().UTC()
	r.s.products[productID] = p
	return p, nil
}

type promotionRepo struct{ s *Store }

func (r promotionRepo) FindByCode(_ context.Context, code string) (domain.Promotion, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := domain.NormalizePromotionCode(code)
	p, ok := r.s.promotions[key]
	if !ok {
		return domain.Promotion{}, notFound("promotion", key)
	}
	return p, nil
}

func (r promotionRepo) UserUsage(_ context.Context, code, userID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.usage[domain.NormalizePromotionCode(code)][userID], nil
}

func (r promotionRepo) Upsert(_ context.Context, promotion domain.Promotion) (domain.Promotion, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	promotion.Code = domain.NormalizePromotionCode(promotion.Code)
	if promotion.UpdatedAt.IsZero() {
		promotion.UpdatedAt = r.s.now().UTC()
	}
	if promotion.CreatedAt.IsZero() {
		promotion.CreatedAt = promotion.UpdatedAt
	}
	promotion.UsageCount = 0
	if existing, ok := r.s.promotions[promotion.Code]; ok {
		promotion.UsageCount = existing.UsageCount
		promotion.CreatedAt = existing.CreatedAt
	}
	r.s.promotions[promotion.Code] = promotion
	return promotion, nil
}

func (s *Store) recordUsageLocked(code, userID string) error {
	promo, ok := s.promotions[code]
	if !ok {
		return &repositories.PromotionUsageError{Code: repositories.PromotionUsageNotFound, Promo: code, UserID: userID}
	}
	if promo.GlobalCapReached() {
		return &repositories.PromotionUsageError{Code: repositories.PromotionUsageGlobalLimit, Promo: code, UserID: userID}
	}
	if userID != "" && promo.PerUserLimit > 0 && s.usage[code][userID] >= promo.PerUserLimit {
		return &repositories.PromotionUsageError{Code: repositories.PromotionUsageUserLimit, Promo: code, UserID: userID}
	}
	promo.UsageCount++
	s.promotions[code] = promo
	if userID != "" {
		if s.usage[code] == nil {
			s.usage[code] = make(map[string]int64)
		}
		s.usage[code][userID]++
	}
	return nil
}

type zoneRepo struct{ s *Store }

func (r zoneRepo) FindByName(_ context.Context, name string) (domain.DeliveryZone, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := domain.NormalizeZoneName(name)
	z, ok := r.s.zones[key]
	if !ok {
		return domain.DeliveryZone{}, notFound("zone", key)
	}
	return z, nil
}

func (r zoneRepo) List(context.Context) ([]domain.DeliveryZone, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	zones := make([]domain.DeliveryZone, 0, len(r.s.zones))
	for _, z := range r.s.zones {
		zones = append(zones, z)
	}
	sort.Slice(zones, func(i, j int) bool { return zones[i].Name < zones[j].Name })
	return zones, nil
}

func (r zoneRepo) Upsert(_ context.Context, zone domain.DeliveryZone) (domain.DeliveryZone, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	zone.Name = domain.NormalizeZoneName(zone.Name)
	if zone.UpdatedAt.IsZero() {
		zone.UpdatedAt = r.s.now().UTC()
	}
	r.s.zones[zone.Name] = zone
	return zone, nil
}

type cartRepo struct{ s *Store }

func (r cartRepo) Find(_ context.Context, owner domain.CartOwner) (domain.Cart, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.carts[owner.Key()]
	if !ok {
		return domain.Cart{}, notFound("cart", owner.Key())
	}
	c.Items = slices.Clone(c.Items)
	return c, nil
}

func (r cartRepo) Save(_ context.Context, cart domain.Cart) (domain.Cart, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	items := make([]domain.CartItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		if item.Quantity > 0 {
			items = append(items, item)
		}
	}
	cart.Items = items
	r.s.carts[cart.Owner.Key()] = cart
	cart.Items = slices.Clone(items)
	return cart, nil
}

func (r cartRepo) ClearOrdered(_ context.Context, owner domain.CartOwner, ordered []domain.CartItem, promotionCode string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := owner.Key()
	cart, ok := r.s.carts[key]
	if !ok {
		return nil
	}
	remaining := cart.WithoutOrdered(ordered, promotionCode)
	if remaining.IsEmpty() {
		delete(r.s.carts, key)
		return nil
	}
	remaining.UpdatedAt = r.s.now().UTC()
	r.s.carts[key] = remaining
	return nil
}

type counterRepo struct{ s *Store }

func (r counterRepo) Next(_ context.Context, counterID string, step int64) (int64, error) {
	id := strings.TrimSpace(counterID)
	if id == "" {
		return 0, repositories.NewCounterError(repositories.CounterErrorInvalidInput, "counter id is required", nil)
	}
	if step < 0 {
		return 0, repositories.NewCounterError(repositories.CounterErrorInvalidInput, "step must be positive", nil)
	}
	if step == 0 {
		step = 1
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.counters[id] += step
	return r.s.counters[id], nil
}

type orderRepo struct{ s *Store }

func (r orderRepo) Place(_ context.Context, req repositories.PlaceOrderRequest) (domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	s := r.s

	snapshot := repositories.PlacementSnapshot{
		Products: make(map[string]domain.Product, len(req.Lines)),
		ReadAt:   s.now().UTC(),
	}
	for _, line := range req.Lines {
		if p, ok := s.products[line.ProductID]; ok {
			snapshot.Products[line.ProductID] = p
		}
	}
	code := domain.NormalizePromotionCode(req.PromotionCode)
	if promo, ok := s.promotions[code]; ok && code != "" {
		snapshot.Promotion = &promo
		snapshot.PromotionUserUsage = s.usage[code][req.UserID]
	}

	order, err := req.Build(snapshot)
	if err != nil {
		return domain.Order{}, err
	}
	if _, exists := s.orders[order.ID]; exists || order.ID == "" {
		return domain.Order{}, fmt.Errorf("memory: order %q already exists", order.ID)
	}

	quantities := make(map[string]int64, len(order.Lines))
	for _, line := range order.Lines {
		quantities[line.ProductID] += line.Quantity
	}
	// Validate every line before mutating anything.
	for productID, qty := range quantities {
		p, ok := s.products[productID]
		if !ok {
			return domain.Order{}, &repositories.StockError{Code: repositories.StockErrorProductNotFound, ProductID: productID}
		}
		if p.StockQuantity < qty {
			return domain.Order{}, &repositories.StockError{
				Code:      repositories.StockErrorInsufficient,
				ProductID: productID,
				Requested: qty,
				Available: p.StockQuantity,
			}
		}
	}
	if order.PromotionCode != "" {
		promoCode := domain.NormalizePromotionCode(order.PromotionCode)
		promo, ok := s.promotions[promoCode]
		switch {
		case !ok:
			return domain.Order{}, &repositories.PromotionUsageError{Code: repositories.PromotionUsageNotFound, Promo: promoCode, UserID: req.UserID}
		case promo.GlobalCapReached():
			return domain.Order{}, &repositories.PromotionUsageError{Code: repositories.PromotionUsageGlobalLimit, Promo: promoCode, UserID: req.UserID}
		case req.UserID != "" && promo.PerUserLimit > 0 && s.usage[promoCode][req.UserID] >= promo.PerUserLimit:
			return domain.Order{}, &repositories.PromotionUsageError{Code: repositories.PromotionUsageUserLimit, Promo: promoCode, UserID: req.UserID}
		}
	}

	for productID, qty := range quantities {
		p := s.products[productID]
		p.StockQuantity -= qty
		p.Sold += qty
		p.UpdatedAt = snapshot.ReadAt
		s.products[productID] = p
	}
	if order.PromotionCode != "" {
		if err := s.recordUsageLocked(domain.NormalizePromotionCode(order.PromotionCode), req.UserID); err != nil {
			return domain.Order{}, err
		}
	}
	s.orders[order.ID] = cloneOrder(order)
	return cloneOrder(order), nil
}

func (r orderRepo) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[strings.TrimSpace(orderID)]
	if !ok {
		return domain.Order{}, notFound("order", orderID)
	}
	return cloneOrder(o), nil
}

func (r orderRepo) List(_ context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	cursor, err := pagination.DecodeToken(filter.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	size := filter.PageSize
	if size <= 0 {
		size = pagination.DefaultPageSize
	}

	r.s.mu.Lock()
	matches := make([]domain.Order, 0, len(r.s.orders))
	for _, o := range r.s.orders {
		if filter.UserID != "" && o.UserID != filter.UserID {
			continue
		}
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, o.Status) {
			continue
		}
		matches = append(matches, cloneOrder(o))
	}
	r.s.mu.Unlock()

	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].CreatedAt.After(matches[j].CreatedAt)
		}
		return matches[i].ID > matches[j].ID
	})
	if !cursor.IsZero() {
		start := sort.Search(len(matches), func(i int) bool {
			o := matches[i]
			return o.CreatedAt.Before(cursor.CreatedAt) || (o.CreatedAt.Equal(cursor.CreatedAt) && o.ID < cursor.ID)
		})
		matches = matches[start:]
	}

	page := domain.CursorPage[domain.Order]{Items: matches}
	if len(matches) > size {
		page.Items = matches[:size]
		last := page.Items[size-1]
		page.NextPageToken = pagination.EncodeToken(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return page, nil
}

func (r orderRepo) Transition(_ context.Context, req repositories.TransitionOrderRequest) (domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.orders[strings.TrimSpace(req.OrderID)]
	if !ok {
		return domain.Order{}, notFound("order", req.OrderID)
	}
	next, movements, err := req.Apply(cloneOrder(current))
	if err != nil {
		return domain.Order{}, err
	}
	r.s.restockLocked(movements)
	r.s.orders[next.ID] = cloneOrder(next)
	return next, nil
}

func (r orderRepo) Purge(_ context.Context, orderID string) (domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	order, ok := r.s.orders[strings.TrimSpace(orderID)]
	if !ok {
		return domain.Order{}, notFound("order", orderID)
	}
	if !order.Restocked {
		movements := make([]repositories.StockMovement, 0, len(order.Lines))
		for _, line := range order.Lines {
			movements = append(movements, repositories.StockMovement{ProductID: line.ProductID, Restock: line.Quantity})
		}
		r.s.restockLocked(movements)
	}
	delete(r.s.orders, order.ID)
	return order, nil
}

func (s *Store) restockLocked(movements []repositories.StockMovement) {
	now := s.now().UTC()
	for _, m := range movements {
		p, ok := s.products[m.ProductID]
		if !ok || m.Restock <= 0 {
			continue
		}
		p.StockQuantity += m.Restock
		p.Sold = max(p.Sold-m.Restock, 0)
		p.UpdatedAt = now
		s.products[m.ProductID] = p
	}
}

func cloneOrder(o domain.Order) domain.Order {
	o.Lines = slices.Clone(o.Lines)
	if o.DeliveredAt != nil {
		t := *o.DeliveredAt
		o.DeliveredAt = &t
	}
	if o.Cancellation != nil {
		c := *o.Cancellation
		o.Cancellation = &c
	}
	if o.Return != nil {
		ret := *o.Return
		o.Return = &ret
	}
	return o
}
