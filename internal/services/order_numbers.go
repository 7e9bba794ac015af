package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/souqly/api/internal/repositories"
)

const (
	checkoutCounterScope = "orders"
	adminCounterScope    = "admin-orders"
)

// OrderNumberGeneratorDeps bundles collaborators required to construct an order number generator.
type OrderNumberGeneratorDeps struct {
	Counters repositories.CounterRepository
	Clock    func() time.Time
}

type orderNumberGenerator struct {
	counters repositories.CounterRepository
	clock    func() time.Time
}

// NewOrderNumberGenerator constructs a generator that draws sequences from daily counters.
func NewOrderNumberGenerator(deps OrderNumberGeneratorDeps) (OrderNumberGenerator, error) {
	if deps.Counters == nil {
		return nil, errors.New("order number generator: counter repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &orderNumberGenerator{
		counters: deps.Counters,
		clock: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

// CheckoutNumber returns ORD-<YYMMDD>-<seq>, the sequence restarting daily.
func (g *orderNumberGenerator) CheckoutNumber(ctx context.Context) (string, error) {
	now := g.clock()
	seq, err := g.next(ctx, checkoutCounterScope, now.Format("060102"))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ORD-%s-%06d", now.Format("060102"), seq), nil
}

// AdminNumber returns ADM-<YYYYMMDDhhmmss>-<seq>.
func (g *orderNumberGenerator) AdminNumber(ctx context.Context) (string, error) {
	now := g.clock()
	seq, err := g.next(ctx, adminCounterScope, now.Format("20060102"))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ADM-%s-%04d", now.Format("20060102150405"), seq), nil
}

func (g *orderNumberGenerator) next(ctx context.Context, scope, name string) (int64, error) {
	value, err := g.counters.Next(ctx, scope+":"+name, 1)
	if err != nil {
		return 0, translateRepoError(err, nil)
	}
	return value, nil
}
