package repositories

import (
	"context"
	"time"

	domain "github.com/souqly/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency wiring.
type Registry interface {
	Close(ctx context.Context) error
	Ping(ctx context.Context) error

	Products() ProductRepository
	Promotions() PromotionRepository
	Zones() ZoneRepository
	Carts() CartRepository
	Orders() OrderRepository
	Counters() CounterRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// ProductRepository reads catalog entries and applies conditional stock mutations.
type ProductRepository interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	// AdjustStock applies delta to the stock quantity. Negative deltas only
	// succeed when the current quantity covers them; otherwise a *StockError
	// with StockErrorInsufficient is returned and nothing changes.
	AdjustStock(ctx context.Context, productID string, delta int64) (domain.Product, error)
}

// PromotionRepository persists promotion codes and their redemption counters.
type PromotionRepository interface {
	FindByCode(ctx context.Context, code string) (domain.Promotion, error)
	UserUsage(ctx context.Context, code, userID string) (int64, error)
	// Upsert writes the editable fields. An existing promotion keeps its usage
	// counter and creation time, read and written atomically.
	Upsert(ctx context.Context, promotion domain.Promotion) (domain.Promotion, error)
}

// ZoneRepository stores the delivery zone reference table.
type ZoneRepository interface {
	FindByName(ctx context.Context, name string) (domain.DeliveryZone, error)
	List(ctx context.Context) ([]domain.DeliveryZone, error)
	Upsert(ctx context.Context, zone domain.DeliveryZone) (domain.DeliveryZone, error)
}

// CartRepository persists one cart per owner key.
type CartRepository interface {
	Find(ctx context.Context, owner domain.CartOwner) (domain.Cart, error)
	Save(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	// ClearOrdered removes ordered quantities from the owner's cart in one
	// atomic step and deletes the cart once nothing is left.
	ClearOrdered(ctx context.Context, owner domain.CartOwner, ordered []domain.CartItem, promotionCode string) error
}

// CounterRepository provides monotonic sequences.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
}

// OrderRepository persists orders and owns the transactional boundaries that
// span stock, promotion counters and the order record.
type OrderRepository interface {
	Place(ctx context.Context, req PlaceOrderRequest) (domain.Order, error)
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	Transition(ctx context.Context, req TransitionOrderRequest) (domain.Order, error)
	Purge(ctx context.Context, orderID string) (domain.Order, error)
}

// StockLine is a quantity requested for a product.
type StockLine struct {
	ProductID string
	Quantity  int64
}

// PlacementSnapshot is the state read inside the placement transaction and
// handed to the builder.
type PlacementSnapshot struct {
	// Products holds every requested product that exists; missing ids are absent.
	Products map[string]domain.Product
	// Promotion is nil when no code was requested or the code does not exist.
	Promotion *domain.Promotion
	// PromotionUserUsage is the redemption count of the requesting user.
	PromotionUserUsage int64
	ReadAt             time.Time
}

// PlaceOrderRequest describes an atomic order placement.
//
// Build runs inside the transaction and may run more than once when the
// transaction retries, so it must not have side effects. The repository
// decrements stock for every line of the built order, increments sold
// counters, records promotion usage when the order carries a promotion code,
// and inserts the order. Any error aborts the whole placement.
type PlaceOrderRequest struct {
	Lines         []StockLine
	PromotionCode string
	UserID        string
	Build         func(snapshot PlacementSnapshot) (domain.Order, error)
}

// StockMovement returns quantities to stock and removes them from sold counts.
type StockMovement struct {
	ProductID string
	Restock   int64
}

// TransitionOrderRequest applies a status change to an order atomically.
//
// Apply receives the current stored order and returns the updated order along
// with the stock movements to apply in the same transaction.
type TransitionOrderRequest struct {
	OrderID string
	Apply   func(current domain.Order) (domain.Order, []StockMovement, error)
}

// OrderListFilter narrows order listings. An empty UserID lists every order.
type OrderListFilter struct {
	UserID    string
	Statuses  []domain.OrderStatus
	PageSize  int
	PageToken string
}
