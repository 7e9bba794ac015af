package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/souqly/api/internal/domain"
	pfirestore "github.com/souqly/api/internal/platform/firestore"
	"github.com/souqly/api/internal/platform/pagination"
	"github.com/souqly/api/internal/repositories"
)

const (
	ordersCollection = "orders"

	// Hot products see contention on the last units; allow extra retries.
	placeTxAttempts = 10
)

// OrderRepository stores orders and runs the placement and lifecycle
// transactions that also touch products and promotions.
type OrderRepository struct {
	provider   *pfirestore.Provider
	orders     *pfirestore.BaseRepository[orderDocument]
	products   *pfirestore.BaseRepository[productDocument]
	promotions *PromotionRepository
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	promotions, err := NewPromotionRepository(provider)
	if err != nil {
		return nil, err
	}
	return &OrderRepository{
		provider:   provider,
		orders:     pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection),
		products:   pfirestore.NewBaseRepository[productDocument](provider, productsCollection),
		promotions: promotions,
	}, nil
}

// Place reads every requested product and the promotion, lets the caller
// build the order from that snapshot, then decrements stock, records the
// redemption and creates the order. All reads precede all writes.
func (r *OrderRepository) Place(ctx context.Context, req repositories.PlaceOrderRequest) (domain.Order, error) {
	if req.Build == nil {
		return domain.Order{}, errors.New("order repository: build function is required")
	}
	code := domain.NormalizePromotionCode(req.PromotionCode)

	var placed domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		now := time.Now().UTC()
		snapshot := repositories.PlacementSnapshot{
			Products: make(map[string]domain.Product, len(req.Lines)),
			ReadAt:   now,
		}
		refs := make(map[string]*firestore.DocumentRef, len(req.Lines))
		for _, line := range req.Lines {
			id := strings.TrimSpace(line.ProductID)
			if id == "" {
				continue
			}
			if _, seen := refs[id]; seen {
				continue
			}
			doc, ref, err := r.products.GetTx(ctx, tx, id)
			if err != nil {
				if pfirestore.IsNotFound(err) {
					continue
				}
				return err
			}
			refs[id] = ref
			snapshot.Products[id] = doc.Data.toDomain(id)
		}

		var redemption promotionRedemption
		if code != "" {
			var err error
			redemption, err = r.promotions.readRedemptionTx(ctx, tx, code, req.UserID)
			if err != nil {
				return err
			}
			snapshot.Promotion = redemption.promotion
			snapshot.PromotionUserUsage = redemption.userUsage
		}

		order, err := req.Build(snapshot)
		if err != nil {
			return err
		}
		orderRef, err := r.orders.DocumentRef(ctx, order.ID)
		if err != nil {
			return err
		}

		for productID, quantity := range lineQuantities(order.Lines) {
			product, ok := snapshot.Products[productID]
			if !ok {
				return &repositories.StockError{Code: repositories.StockErrorProductNotFound, ProductID: productID}
			}
			if product.StockQuantity < quantity {
				return &repositories.StockError{
					Code:      repositories.StockErrorInsufficient,
					ProductID: productID,
					Requested: quantity,
					Available: product.StockQuantity,
				}
			}
			if err := tx.Update(refs[productID], []firestore.Update{
				{Path: "stockQuantity", Value: product.StockQuantity - quantity},
				{Path: "sold", Value: product.Sold + quantity},
				{Path: "updatedAt", Value: now},
			}); err != nil {
				return err
			}
		}

		if order.PromotionCode != "" {
			if redemption.promotion == nil || !strings.EqualFold(order.PromotionCode, redemption.promotion.Code) {
				return &repositories.PromotionUsageError{Code: repositories.PromotionUsageNotFound, Promo: order.PromotionCode, UserID: req.UserID}
			}
			if err := redemption.apply(tx, req.UserID, now); err != nil {
				return err
			}
		}

		if err := tx.Create(orderRef, newOrderDocument(order)); err != nil {
			return err
		}
		placed = order
		return nil
	}, pfirestore.WithTxAttempts(placeTxAttempts))
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.place", err)
	}
	return placed, nil
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, &repositories.NotFoundError{Entity: "order", ID: orderID}
	}
	doc, err := r.orders.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// List returns orders newest first using a (createdAt, id) cursor.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	cursor, err := pagination.DecodeToken(filter.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, fmt.Errorf("orders.list: %w", err)
	}
	size := filter.PageSize
	if size <= 0 {
		size = pagination.DefaultPageSize
	}

	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.UserID != "" {
			q = q.Where("userId", "==", filter.UserID)
		}
		switch len(filter.Statuses) {
		case 0:
		case 1:
			q = q.Where("status", "==", string(filter.Statuses[0]))
		default:
			statuses := make([]string, 0, len(filter.Statuses))
			for _, status := range filter.Statuses {
				statuses = append(statuses, string(status))
			}
			q = q.Where("status", "in", statuses)
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if !cursor.IsZero() {
			q = q.StartAfter(cursor.CreatedAt, cursor.ID)
		}
		return q.Limit(size + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	page := domain.CursorPage[domain.Order]{Items: make([]domain.Order, 0, min(len(docs), size))}
	for i, doc := range docs {
		if i == size {
			last := page.Items[len(page.Items)-1]
			page.NextPageToken = pagination.EncodeToken(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
			break
		}
		page.Items = append(page.Items, doc.Data.toDomain(doc.ID))
	}
	return page, nil
}

// Transition applies the caller's status change and its stock movements in one transaction.
func (r *OrderRepository) Transition(ctx context.Context, req repositories.TransitionOrderRequest) (domain.Order, error) {
	if req.Apply == nil {
		return domain.Order{}, errors.New("order repository: apply function is required")
	}
	var updated domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, ref, err := r.orders.GetTx(ctx, tx, strings.TrimSpace(req.OrderID))
		if err != nil {
			return err
		}
		next, movements, err := req.Apply(doc.Data.toDomain(doc.ID))
		if err != nil {
			return err
		}
		if err := r.restockTx(ctx, tx, movements); err != nil {
			return err
		}
		if err := tx.Set(ref, newOrderDocument(next)); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.transition", err)
	}
	return updated, nil
}

// Purge deletes the order, restocking its lines unless that already happened.
func (r *OrderRepository) Purge(ctx context.Context, orderID string) (domain.Order, error) {
	var purged domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, ref, err := r.orders.GetTx(ctx, tx, strings.TrimSpace(orderID))
		if err != nil {
			return err
		}
		order := doc.Data.toDomain(doc.ID)
		if !order.Restocked {
			movements := make([]repositories.StockMovement, 0, len(order.Lines))
			for _, line := range order.Lines {
				movements = append(movements, repositories.StockMovement{ProductID: line.ProductID, Restock: line.Quantity})
			}
			if err := r.restockTx(ctx, tx, movements); err != nil {
				return err
			}
		}
		if err := tx.Delete(ref); err != nil {
			return err
		}
		purged = order
		return nil
	})
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.purge", err)
	}
	return purged, nil
}

// restockTx reads every affected product before writing. Products that no
// longer exist are skipped.
func (r *OrderRepository) restockTx(ctx context.Context, tx *firestore.Transaction, movements []repositories.StockMovement) error {
	if len(movements) == 0 {
		return nil
	}
	totals := make(map[string]int64, len(movements))
	for _, m := range movements {
		if m.Restock > 0 {
			totals[m.ProductID] += m.Restock
		}
	}
	type pending struct {
		ref     *firestore.DocumentRef
		product productDocument
		qty     int64
	}
	writes := make([]pending, 0, len(totals))
	for productID, qty := range totals {
		doc, ref, err := r.products.GetTx(ctx, tx, productID)
		if err != nil {
			if pfirestore.IsNotFound(err) {
				continue
			}
			return err
		}
		writes = append(writes, pending{ref: ref, product: doc.Data, qty: qty})
	}
	now := time.Now().UTC()
	for _, w := range writes {
		if err := tx.Update(w.ref, []firestore.Update{
			{Path: "stockQuantity", Value: w.product.StockQuantity + w.qty},
			{Path: "sold", Value: max(w.product.Sold-w.qty, 0)},
			{Path: "updatedAt", Value: now},
		}); err != nil {
			return err
		}
	}
	return nil
}

func lineQuantities(lines []domain.OrderLine) map[string]int64 {
	totals := make(map[string]int64, len(lines))
	for _, line := range lines {
		totals[line.ProductID] += line.Quantity
	}
	return totals
}
