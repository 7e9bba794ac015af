package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/souqly/api/internal/di"
	"github.com/souqly/api/internal/handlers"
	"github.com/souqly/api/internal/platform/auth"
	"github.com/souqly/api/internal/platform/config"
	pfirestore "github.com/souqly/api/internal/platform/firestore"
	"github.com/souqly/api/internal/platform/idempotency"
	"github.com/souqly/api/internal/platform/jobs"
	"github.com/souqly/api/internal/platform/observability"
	"github.com/souqly/api/internal/platform/requestctx"
	"github.com/souqly/api/internal/platform/secrets"
	"github.com/souqly/api/internal/repositories"
	firestoreRepo "github.com/souqly/api/internal/repositories/firestore"
	"github.com/souqly/api/internal/repositories/memory"
	"github.com/souqly/api/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = requestctx.WithLogger(ctx, logger)

	resolver, err := secrets.NewResolver(ctx,
		secrets.WithDefaultProject(lookupEnv("API_SECRETS_PROJECT_ID")),
		secrets.WithLogger(logger.Named("secrets")),
	)
	if err != nil {
		logger.Warn("secret manager unavailable; secret references will not resolve", zap.Error(err))
	} else {
		defer func() {
			if err := resolver.Close(); err != nil {
				logger.Warn("secret resolver close error", zap.Error(err))
			}
		}()
	}

	var loadOpts []config.Option
	if resolver != nil {
		loadOpts = append(loadOpts, config.WithSecretResolver(config.SecretResolverFunc(resolver.Resolve)))
	}
	cfg, err := config.Load(ctx, loadOpts...)
	if err != nil {
		var validation *config.ValidationError
		if errors.As(err, &validation) {
			logger.Fatal("invalid configuration", zap.Strings("fields", validation.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(cfg, startedAt)

	registry, idempotencyStore, err := newStorage(cfg)
	if err != nil {
		logger.Fatal("failed to initialise storage", zap.String("driver", cfg.Storage.Driver), zap.Error(err))
	}

	containerOpts := []di.Option{
		di.WithLogger(logger),
		di.WithBuildInfo(buildInfo),
	}

	pubsubClient, notifier, err := newNotifier(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to initialise pubsub notifier", zap.Error(err))
	}
	if notifier != nil {
		containerOpts = append(containerOpts,
			di.WithNotifier(notifier),
			di.WithHealthCheck("pubsub", func(ctx context.Context) error {
				return pingTopics(ctx, pubsubClient, cfg.PubSub)
			}),
		)
	} else {
		logger.Info("pubsub topics not configured; notifications disabled")
	}
	if resolver != nil {
		containerOpts = append(containerOpts, di.WithHealthCheck("secretManager", secretsHealthCheck(resolver)))
	}

	container, err := di.NewContainer(ctx, cfg, registry, containerOpts...)
	if err != nil {
		logger.Fatal("failed to initialise services", zap.Error(err))
	}

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	startIdempotencyCleanup(cleanupCtx, &cleanupWG, idempotencyStore, cfg.Idempotency, logger.Named("idempotency"))

	replay := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
	)

	svc := container.Services
	cartHandlers := handlers.NewCartHandlers(authenticator, svc.Cart)
	orderHandlers := handlers.NewOrderHandlers(authenticator, svc.Checkout, svc.Orders,
		handlers.WithCheckoutRateLimiter(handlers.NewKeyedRateLimiter(cfg.RateLimits.CheckoutPerMinute, cfg.RateLimits.CheckoutBurst, nil)),
		handlers.WithCheckoutIdempotency(replay),
	)
	adminOrderHandlers := handlers.NewAdminOrderHandlers(authenticator, svc.Orders,
		handlers.WithAdminOrderIdempotency(replay),
	)
	adminCatalogHandlers := handlers.NewAdminCatalogHandlers(authenticator, svc.Catalog)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(svc.System),
	)

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.SessionMiddleware,
		observability.RequestLoggerMiddleware(),
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithAdminRoutes(adminOrderHandlers.Routes, adminCatalogHandlers.Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr), zap.String("storage", cfg.Storage.Driver))
	go func() {
		serverLogger.Info("souqly api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}

	cleanupCancel()
	cleanupWG.Wait()

	// Drain queued notifications before the Pub/Sub client goes away.
	if err := container.Close(shutdownCtx); err != nil {
		logger.Warn("container close error", zap.Error(err))
	}
	if pubsubClient != nil {
		if err := pubsubClient.Close(); err != nil {
			logger.Warn("pubsub close error", zap.Error(err))
		}
	}
}

// newStorage selects the repository backend. The Firestore registry owns the
// provider and closes it with the container.
func newStorage(cfg config.Config) (repositories.Registry, idempotency.Store, error) {
	switch cfg.Storage.Driver {
	case config.StorageDriverMemory:
		return memory.NewStore(), idempotency.NewMemoryStore(), nil
	case config.StorageDriverFirestore:
		provider := pfirestore.NewProvider(cfg.Firestore)
		registry, err := firestoreRepo.NewRegistry(provider)
		if err != nil {
			return nil, nil, err
		}
		return registry, idempotency.NewFirestoreStore(provider, ""), nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}
}

func newNotifier(ctx context.Context, cfg config.Config) (*pubsub.Client, services.OrderNotifier, error) {
	if cfg.PubSub.OrderStatusTopic == "" && cfg.PubSub.LowStockTopic == "" {
		return nil, nil, nil
	}
	if cfg.PubSub.ProjectID == "" {
		return nil, nil, errors.New("pubsub project id is required when topics are configured")
	}
	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("create pubsub client: %w", err)
	}

	deps := jobs.PubSubNotifierDeps{
		Currency:       cfg.Commerce.Currency,
		DefaultLocale:  cfg.Commerce.DefaultLocale,
		PublishTimeout: cfg.PubSub.PublishTimeout,
	}
	if cfg.PubSub.OrderStatusTopic != "" {
		deps.StatusTopic = client.Topic(cfg.PubSub.OrderStatusTopic)
	}
	if cfg.PubSub.LowStockTopic != "" {
		deps.LowStockTopic = client.Topic(cfg.PubSub.LowStockTopic)
	}
	notifier, err := jobs.NewPubSubNotifier(deps)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return client, notifier, nil
}

func pingTopics(ctx context.Context, client *pubsub.Client, cfg config.PubSubConfig) error {
	for _, name := range []string{cfg.OrderStatusTopic, cfg.LowStockTopic} {
		if name == "" {
			continue
		}
		ok, err := client.Topic(name).Exists(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("topic %s not found", name)
		}
	}
	return nil
}

func secretsHealthCheck(resolver *secrets.Resolver) services.HealthCheckFunc {
	const ref = "secret://system-healthz?version=latest"
	return func(ctx context.Context) error {
		_, err := resolver.Resolve(ctx, ref)
		if err == nil {
			return nil
		}
		if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
			return nil
		}
		return err
	}
}

func startIdempotencyCleanup(ctx context.Context, wg *sync.WaitGroup, store idempotency.Store, cfg config.IdempotencyConfig, logger *zap.Logger) {
	if store == nil || cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(cfg.CleanupInterval)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				runCtx, cancel := context.WithTimeout(ctx, time.Minute)
				removed, err := store.CleanupExpired(runCtx, time.Now().UTC(), cfg.CleanupBatchSize)
				cancel()
				if err != nil {
					logger.Error("idempotency cleanup error", zap.Error(err))
					continue
				}
				if removed > 0 {
					logger.Info("idempotency cleanup removed records", zap.Int("count", removed))
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

func buildInfoFromEnv(cfg config.Config, started time.Time) services.BuildInfo {
	version := lookupEnv("API_BUILD_VERSION")
	if version == "" {
		version = "dev"
	}
	commit := lookupEnv("API_BUILD_COMMIT_SHA")
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func lookupEnv(key string) string {
	value, err := config.Lookup(key)
	if err != nil {
		return ""
	}
	return value
}

func traceProjectID(cfg config.Config) string {
	if cfg.Firebase.ProjectID != "" {
		return cfg.Firebase.ProjectID
	}
	return cfg.Firestore.ProjectID
}
