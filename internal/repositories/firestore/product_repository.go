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

const productsCollection = "products"

type productDocument struct {
	Name              string    `firestore:"name"`
	Price             int64     `firestore:"price"`
	StockQuantity     int64     `firestore:"stockQuantity"`
	Sold              int64     `firestore:"sold"`
	LowStockThreshold int64     `firestore:"lowStockThreshold,omitempty"`
	Condition         string    `firestore:"condition,omitempty"`
	Visible           bool      `firestore:"visible"`
	Deleted           bool      `firestore:"deleted"`
	UpdatedAt         time.Time `firestore:"updatedAt"`
}

func (d productDocument) toDomain(id string) domain.Product {
	return domain.Product{
		ID:                id,
		Name:              d.Name,
		Price:             d.Price,
		StockQuantity:     d.StockQuantity,
		Sold:              d.Sold,
		LowStockThreshold: d.LowStockThreshold,
		Condition:         d.Condition,
		Visible:           d.Visible,
		Deleted:           d.Deleted,
		UpdatedAt:         d.UpdatedAt,
	}
}

func newProductDocument(p domain.Product) productDocument {
	return productDocument{
		Name:              strings.TrimSpace(p.Name),
		Price:             p.Price,
		StockQuantity:     p.StockQuantity,
		Sold:              p.Sold,
		LowStockThreshold: p.LowStockThreshold,
		Condition:         strings.TrimSpace(p.Condition),
		Visible:           p.Visible,
		Deleted:           p.Deleted,
		UpdatedAt:         p.UpdatedAt.UTC(),
	}
}

// ProductRepository reads products and applies conditional stock updates.
type ProductRepository struct {
	provider *pfirestore.Provider
	products *pfirestore.BaseRepository[productDocument]
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{
		provider: provider,
		products: pfirestore.NewBaseRepository[productDocument](provider, productsCollection),
	}, nil
}

func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	id := strings.TrimSpace(productID)
	if id == "" {
		return domain.Product{}, &repositories.NotFoundError{Entity: "product", ID: productID}
	}
	doc, err := r.products.Get(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// Save writes the full product record. It is used by seeding and tests.
func (r *ProductRepository) Save(ctx context.Context, product domain.Product) (domain.Product, error) {
	if product.UpdatedAt.IsZero() {
		product.UpdatedAt = time.Now().UTC()
	}
	if _, err := r.products.Set(ctx, product.ID, newProductDocument(product)); err != nil {
		return domain.Product{}, err
	}
	return product, nil
}

// AdjustStock applies delta to the stock quantity inside a transaction,
// refusing any change that would take stock below zero.
func (r *ProductRepository) AdjustStock(ctx context.Context, productID string, delta int64) (domain.Product, error) {
	return r.adjust(ctx, productID, func(doc *productDocument) error {
		if doc.StockQuantity+delta < 0 {
			return &repositories.StockError{
				Code:      repositories.StockErrorInsufficient,
				ProductID: productID,
				Requested: -delta,
				Available: doc.StockQuantity,
			}
		}
		doc.StockQuantity += delta
		return nil
	})
}

func (r *ProductRepository) adjust(ctx context.Context, productID string, mutate func(*productDocument) error) (domain.Product, error) {
	id := strings.TrimSpace(productID)
	if id == "" {
		return domain.Product{}, &repositories.StockError{Code: repositories.StockErrorInvalidInput, ProductID: productID}
	}
	var updated domain.Product
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, ref, err := r.products.GetTx(ctx, tx, id)
		if err != nil {
			if pfirestore.IsNotFound(err) {
				return &repositories.StockError{Code: repositories.StockErrorProductNotFound, ProductID: id}
			}
			return err
		}
		data := doc.Data
		if err := mutate(&data); err != nil {
			return err
		}
		data.UpdatedAt = time.Now().UTC()
		if err := tx.Update(ref, []firestore.Update{
			{Path: "stockQuantity", Value: data.StockQuantity},
			{Path: "sold", Value: data.Sold},
			{Path: "updatedAt", Value: data.UpdatedAt},
		}); err != nil {
			return err
		}
		updated = data.toDomain(id)
		return nil
	})
	if err != nil {
		return domain.Product{}, pfirestore.WrapError("products.adjust", err)
	}
	return updated, nil
}
