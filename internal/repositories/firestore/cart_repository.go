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

const cartCollection = "carts"

type cartDocument struct {
	OwnerKind     string             `firestore:"ownerKind"`
	OwnerID       string             `firestore:"ownerId"`
	Items         []cartItemDocument `firestore:"items"`
	PromotionCode string             `firestore:"promotionCode,omitempty"`
	Discount      int64              `firestore:"discount"`
	FreeShipping  bool               `firestore:"freeShipping"`
	CreatedAt     time.Time          `firestore:"createdAt"`
	UpdatedAt     time.Time          `firestore:"updatedAt"`
}

type cartItemDocument struct {
	ProductID string    `firestore:"productId"`
	Quantity  int64     `firestore:"quantity"`
	AddedAt   time.Time `firestore:"addedAt"`
}

// CartRepository persists one cart document per owner key.
type CartRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[cartDocument]
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	return &CartRepository{
		provider: provider,
		base:     pfirestore.NewBaseRepository[cartDocument](provider, cartCollection),
	}, nil
}

func (r *CartRepository) Find(ctx context.Context, owner domain.CartOwner) (domain.Cart, error) {
	key := owner.Key()
	if key == "" {
		return domain.Cart{}, &repositories.NotFoundError{Entity: "cart", ID: key}
	}
	doc, err := r.base.Get(ctx, key)
	if err != nil {
		return domain.Cart{}, err
	}
	return cartFromDocument(owner, doc.Data), nil
}

// Save replaces the cart document. Items with a non-positive quantity are dropped.
func (r *CartRepository) Save(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	key := cart.Owner.Key()
	if key == "" {
		return domain.Cart{}, errors.New("cart repository: owner is required")
	}
	now := time.Now().UTC()
	if cart.UpdatedAt.IsZero() {
		cart.UpdatedAt = now
	}
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = cart.UpdatedAt
	}
	doc := newCartDocument(cart)
	if _, err := r.base.Set(ctx, key, doc); err != nil {
		return domain.Cart{}, err
	}
	return cartFromDocument(cart.Owner, doc), nil
}

// ClearOrdered subtracts the ordered lines inside a transaction so items added
// while checkout ran are kept.
func (r *CartRepository) ClearOrdered(ctx context.Context, owner domain.CartOwner, ordered []domain.CartItem, promotionCode string) error {
	key := owner.Key()
	if key == "" {
		return nil
	}
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, ref, err := r.base.GetTx(ctx, tx, key)
		if err != nil {
			if pfirestore.IsNotFound(err) {
				return nil
			}
			return err
		}
		remaining := cartFromDocument(owner, doc.Data).WithoutOrdered(ordered, promotionCode)
		if remaining.IsEmpty() {
			return tx.Delete(ref)
		}
		remaining.UpdatedAt = time.Now().UTC()
		return tx.Set(ref, newCartDocument(remaining))
	})
	return pfirestore.WrapError("carts.clear_ordered", err)
}

func newCartDocument(cart domain.Cart) cartDocument {
	doc := cartDocument{
		OwnerKind:     string(cart.Owner.Kind),
		OwnerID:       strings.TrimSpace(cart.Owner.ID),
		Items:         make([]cartItemDocument, 0, len(cart.Items)),
		PromotionCode: cart.PromotionCode,
		Discount:      cart.Discount,
		FreeShipping:  cart.FreeShipping,
		CreatedAt:     cart.CreatedAt.UTC(),
		UpdatedAt:     cart.UpdatedAt.UTC(),
	}
	for _, item := range cart.Items {
		if item.Quantity <= 0 {
			continue
		}
		doc.Items = append(doc.Items, cartItemDocument{ProductID: item.ProductID, Quantity: item.Quantity, AddedAt: item.AddedAt.UTC()})
	}
	return doc
}

func cartFromDocument(owner domain.CartOwner, doc cartDocument) domain.Cart {
	cart := domain.Cart{
		Owner:         owner,
		Items:         make([]domain.CartItem, 0, len(doc.Items)),
		PromotionCode: doc.PromotionCode,
		Discount:      doc.Discount,
		FreeShipping:  doc.FreeShipping,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
	}
	for _, item := range doc.Items {
		cart.Items = append(cart.Items, domain.CartItem{ProductID: item.ProductID, Quantity: item.Quantity, AddedAt: item.AddedAt})
	}
	return cart
}
