package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/souqly/api/internal/platform/firestore"
	"github.com/souqly/api/internal/repositories"
)

// Registry exposes the Firestore repositories behind repositories.Registry.
type Registry struct {
	provider   *pfirestore.Provider
	products   *ProductRepository
	promotions *PromotionRepository
	zones      *ZoneRepository
	carts      *CartRepository
	orders     *OrderRepository
	counters   *CounterRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry builds every Firestore repository on top of provider.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry requires provider")
	}
	reg := &Registry{provider: provider}
	var err error
	if reg.products, err = NewProductRepository(provider); err != nil {
		return nil, err
	}
	if reg.promotions, err = NewPromotionRepository(provider); err != nil {
		return nil, err
	}
	if reg.zones, err = NewZoneRepository(provider); err != nil {
		return nil, err
	}
	if reg.carts, err = NewCartRepository(provider); err != nil {
		return nil, err
	}
	if reg.orders, err = NewOrderRepository(provider); err != nil {
		return nil, err
	}
	if reg.counters, err = NewCounterRepository(provider); err != nil {
		return nil, err
	}
	return reg, nil
}

func (r *Registry) Close(ctx context.Context) error { return r.provider.Close(ctx) }
func (r *Registry) Ping(ctx context.Context) error  { return r.provider.Ping(ctx) }

func (r *Registry) Products() repositories.ProductRepository     { return r.products }
func (r *Registry) Promotions() repositories.PromotionRepository { return r.promotions }
func (r *Registry) Zones() repositories.ZoneRepository           { return r.zones }
func (r *Registry) Carts() repositories.CartRepository           { return r.carts }
func (r *Registry) Orders() repositories.OrderRepository         { return r.orders }
func (r *Registry) Counters() repositories.CounterRepository     { return r.counters }
