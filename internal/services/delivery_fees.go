package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/souqly/api/internal/domain"
	"github.com/souqly/api/internal/repositories"
)

// Fallback delivery terms applied when a zone cannot be resolved, in minor units.
const (
	DefaultStandardFee  int64 = 5000
	DefaultExpressFee   int64 = 7500
	DefaultStandardDays       = 3
	DefaultExpressDays        = 1

	defaultZoneCacheTTL = 5 * time.Minute
)

var (
	expressFeeMultiplier = decimal.RequireFromString("1.5")
	minorUnitsPerUnit    = decimal.NewFromInt(100)
)

// DeliveryFeeServiceDeps wires the dependencies required by the delivery fee service.
type DeliveryFeeServiceDeps struct {
	Zones    repositories.ZoneRepository
	CacheTTL time.Duration
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type deliveryFeeService struct {
	zones  repositories.ZoneRepository
	cache  *zoneCache
	logger func(ctx context.Context, event string, fields map[string]any)
}

// NewDeliveryFeeService constructs a DeliveryFeeService backed by the zone table.
func NewDeliveryFeeService(deps DeliveryFeeServiceDeps) (DeliveryFeeService, error) {
	if deps.Zones == nil {
		return nil, errors.New("delivery fee service: zone repository is required")
	}
	ttl := deps.CacheTTL
	if ttl <= 0 {
		ttl = defaultZoneCacheTTL
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &deliveryFeeService{
		zones:  deps.Zones,
		cache:  newZoneCache(ttl, clock),
		logger: logger,
	}, nil
}

func (s *deliveryFeeService) Quote(ctx context.Context, zone string, method domain.DeliveryMethod) (DeliveryQuote, error) {
	quote, err := s.QuoteStrict(ctx, zone, method)
	if err == nil {
		return quote, nil
	}
	if !errors.Is(err, ErrZoneNotFound) {
		return DeliveryQuote{}, err
	}
	if zone != "" {
		s.logger(ctx, "delivery.zone_defaulted", map[string]any{"zone": zone, "method": string(method)})
	}
	return DefaultDeliveryQuote(zone, method), nil
}

func (s *deliveryFeeService) QuoteStrict(ctx context.Context, zone string, method domain.DeliveryMethod) (DeliveryQuote, error) {
	if method == "" {
		method = domain.DeliveryMethodStandard
	}
	if method != domain.DeliveryMethodStandard && method != domain.DeliveryMethodExpress {
		return DeliveryQuote{}, ErrInvalidDeliveryMethod
	}
	row, err := s.Lookup(ctx, zone)
	if err != nil {
		return DeliveryQuote{}, err
	}
	return QuoteForZone(row, method), nil
}

func (s *deliveryFeeService) Lookup(ctx context.Context, zone string) (DeliveryZone, error) {
	key := domain.NormalizeZoneName(zone)
	if key == "" {
		return DeliveryZone{}, ErrZoneNotFound
	}
	if cached, ok := s.cache.get(key); ok {
		return cached, nil
	}
	row, err := s.zones.FindByName(ctx, key)
	if err != nil {
		if isRepoNotFound(err) {
			return DeliveryZone{}, ErrZoneNotFound
		}
		return DeliveryZone{}, translateRepoError(err, ErrZoneNotFound)
	}
	s.cache.put(key, row)
	return row, nil
}

func (s *deliveryFeeService) Invalidate(zone string) {
	s.cache.drop(domain.NormalizeZoneName(zone))
}

// QuoteForZone derives the quote for a stored zone row. Express multiplies the
// fee by 1.5, rounded to a whole currency unit, and removes one day from the
// lead time with a floor of one day.
func QuoteForZone(zone DeliveryZone, method domain.DeliveryMethod) DeliveryQuote {
	quote := DeliveryQuote{
		Zone:   zone.Name,
		Method: domain.DeliveryMethodStandard,
		Fee:    zone.Fee,
		Days:   zone.DeliveryDays,
	}
	if quote.Days < 1 {
		quote.Days = 1
	}
	if method == domain.DeliveryMethodExpress {
		quote.Method = domain.DeliveryMethodExpress
		quote.Fee = ExpressFee(zone.Fee)
		quote.Days = max(zone.DeliveryDays-1, 1)
	}
	return quote
}

// ExpressFee applies the express multiplier and rounds half away from zero to
// whole currency units.
func ExpressFee(standardFee int64) int64 {
	return decimal.NewFromInt(standardFee).
		Mul(expressFeeMultiplier).
		Div(minorUnitsPerUnit).
		Round(0).
		Mul(minorUnitsPerUnit).
		IntPart()
}

// DefaultDeliveryQuote is the explicit fallback used when no zone resolves.
func DefaultDeliveryQuote(zone string, method domain.DeliveryMethod) DeliveryQuote {
	if method == domain.DeliveryMethodExpress {
		return DeliveryQuote{Zone: zone, Method: method, Fee: DefaultExpressFee, Days: DefaultExpressDays, Defaulted: true}
	}
	return DeliveryQuote{Zone: zone, Method: domain.DeliveryMethodStandard, Fee: DefaultStandardFee, Days: DefaultStandardDays, Defaulted: true}
}

type zoneCache struct {
	ttl time.Duration
	now func() time.Time
	mu  sync.RWMutex
	m   map[string]zoneCacheEntry
}

type zoneCacheEntry struct {
	zone    DeliveryZone
	expires time.Time
}

func newZoneCache(ttl time.Duration, now func() time.Time) *zoneCache {
	return &zoneCache{ttl: ttl, now: now, m: make(map[string]zoneCacheEntry)}
}

func (c *zoneCache) get(key string) (DeliveryZone, bool) {
	c.mu.RLock()
	entry, ok := c.m[key]
	c.mu.RUnlock()
	if !ok {
		return DeliveryZone{}, false
	}
	if c.now().After(entry.expires) {
		c.drop(key)
		return DeliveryZone{}, false
	}
	return entry.zone, true
}

func (c *zoneCache) put(key string, zone DeliveryZone) {
	c.mu.Lock()
	c.m[key] = zoneCacheEntry{zone: zone, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

func (c *zoneCache) drop(key string) {
	c.mu.Lock()
	delete(c.m, key)
	c.mu.Unlock()
}
