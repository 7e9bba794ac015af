package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/souqly/api/internal/platform/config"
	"github.com/souqly/api/internal/platform/observability"
	"github.com/souqly/api/internal/repositories"
	"github.com/souqly/api/internal/services"
)

const defaultHealthCheckTimeout = 2 * time.Second

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Fees       services.DeliveryFeeService
	Promotions services.PromotionValidator
	Pricing    services.PricingEngine
	Numbers    services.OrderNumberGenerator
	Cart       services.CartService
	Checkout   services.CheckoutService
	Orders     services.OrderService
	Catalog    services.CatalogAdminService
	System     services.SystemService
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
	Metrics      *observability.CommerceMetrics

	notifier *services.AsyncNotifier
}

// Option customises container assembly.
type Option func(*options)

type options struct {
	logger        *zap.Logger
	notifier      services.OrderNotifier
	meterProvider metric.MeterProvider
	build         services.BuildInfo
	checks        map[string]services.HealthCheckFunc
	clock         func() time.Time
	idGenerator   func() string
}

// WithLogger sets the base logger services derive their event loggers from.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithNotifier sets the downstream notifier. It is wrapped in an asynchronous
// dispatcher so checkout never waits on the transport.
func WithNotifier(notifier services.OrderNotifier) Option {
	return func(o *options) { o.notifier = notifier }
}

// WithMeterProvider overrides the OpenTelemetry meter provider.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(o *options) { o.meterProvider = provider }
}

// WithBuildInfo sets the metadata reported by health endpoints.
func WithBuildInfo(info services.BuildInfo) Option {
	return func(o *options) { o.build = info }
}

// WithHealthCheck registers an additional readiness check.
func WithHealthCheck(name string, check services.HealthCheckFunc) Option {
	return func(o *options) {
		if name == "" || check == nil {
			return
		}
		if o.checks == nil {
			o.checks = make(map[string]services.HealthCheckFunc)
		}
		o.checks[name] = check
	}
}

// WithClock overrides the clock shared by every service.
func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

// WithIDGenerator overrides order id generation. The generator returns the
// complete order id.
func WithIDGenerator(fn func() string) Option {
	return func(o *options) { o.idGenerator = fn }
}

// NewContainer constructs the runtime dependencies. Production wiring passes the Firestore
// registry while tests can supply the in-memory store.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, opts ...Option) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}
	o := options{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.clock == nil {
		o.clock = time.Now
	}

	metrics, err := observability.NewCommerceMetrics(o.meterProvider)
	if err != nil {
		return nil, fmt.Errorf("build commerce metrics: %w", err)
	}

	c := &Container{
		Config:       cfg,
		Repositories: reg,
		Metrics:      metrics,
	}

	var notifier services.OrderNotifier
	if o.notifier != nil {
		async, err := services.NewAsyncNotifier(services.AsyncNotifierDeps{
			Delegate: o.notifier,
			Buffer:   cfg.PubSub.NotificationBuffer,
			Timeout:  cfg.Commerce.NotificationTimeout,
			Logger:   observability.EventLogger(o.logger.Named("notifications")),
		})
		if err != nil {
			return nil, fmt.Errorf("build async notifier: %w", err)
		}
		c.notifier = async
		notifier = async
	}

	svc, err := buildServices(ctx, reg, cfg, o, notifier, metrics)
	if err != nil {
		if c.notifier != nil {
			_ = c.notifier.Close(ctx)
		}
		return nil, err
	}
	c.Services = svc
	return c, nil
}

// Close drains pending notifications and releases repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.notifier != nil {
		if err := c.notifier.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close notifier: %w", err))
		}
	}
	if c.Repositories != nil {
		if err := c.Repositories.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close repositories: %w", err))
		}
	}
	return errors.Join(errs...)
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, o options, notifier services.OrderNotifier, metrics *observability.CommerceMetrics) (Services, error) {
	var svc Services

	fees, err := services.NewDeliveryFeeService(services.DeliveryFeeServiceDeps{
		Zones:    reg.Zones(),
		CacheTTL: cfg.Commerce.ZoneCacheTTL,
		Clock:    o.clock,
		Logger:   observability.EventLogger(o.logger.Named("delivery")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build delivery fee service: %w", err)
	}
	svc.Fees = fees

	pricing, err := services.NewPricingEngine(services.PricingEngineDeps{
		Fees:           fees,
		VATBasisPoints: cfg.Commerce.VATBasisPoints,
		Currency:       cfg.Commerce.Currency,
		Weekend:        cfg.Commerce.Weekend,
		Clock:          o.clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build pricing engine: %w", err)
	}
	svc.Pricing = pricing

	promotions, err := services.NewPromotionValidator(services.PromotionValidatorDeps{
		Promotions: reg.Promotions(),
		Clock:      o.clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build promotion validator: %w", err)
	}
	svc.Promotions = promotions

	numbers, err := services.NewOrderNumberGenerator(services.OrderNumberGeneratorDeps{
		Counters: reg.Counters(),
		Clock:    o.clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order number generator: %w", err)
	}
	svc.Numbers = numbers

	cart, err := services.NewCartService(services.CartServiceDeps{
		Carts:      reg.Carts(),
		Products:   reg.Products(),
		Pricing:    pricing,
		Promotions: promotions,
		Clock:      o.clock,
		Logger:     observability.EventLogger(o.logger.Named("cart")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Cart = cart

	checkout, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Carts:       reg.Carts(),
		Products:    reg.Products(),
		Orders:      reg.Orders(),
		Pricing:     pricing,
		Promotions:  promotions,
		Numbers:     numbers,
		Notifier:    notifier,
		Metrics:     metrics,
		Clock:       o.clock,
		IDGenerator: o.idGenerator,
		Logger:      observability.EventLogger(o.logger.Named("checkout")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build checkout service: %w", err)
	}
	svc.Checkout = checkout

	orders, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:      reg.Orders(),
		Pricing:     pricing,
		Numbers:     numbers,
		Notifier:    notifier,
		Metrics:     metrics,
		Clock:       o.clock,
		IDGenerator: o.idGenerator,
		Logger:      observability.EventLogger(o.logger.Named("orders")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orders

	catalog, err := services.NewCatalogAdminService(services.CatalogAdminServiceDeps{
		Zones:      reg.Zones(),
		Promotions: reg.Promotions(),
		Products:   reg.Products(),
		Fees:       fees,
		Clock:      o.clock,
		Logger:     observability.EventLogger(o.logger.Named("catalog")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog admin service: %w", err)
	}
	svc.Catalog = catalog

	checks := map[string]services.HealthCheckFunc{
		"storage": reg.Ping,
	}
	for name, check := range o.checks {
		checks[name] = check
	}
	system, err := services.NewSystemService(services.SystemServiceDeps{
		Checks:       checks,
		CheckTimeout: defaultHealthCheckTimeout,
		Clock:        o.clock,
		Build:        o.build,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build system service: %w", err)
	}
	svc.System = system

	return svc, nil
}
