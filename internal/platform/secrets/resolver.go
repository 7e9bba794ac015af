package secrets

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
)

const defaultVersion = "latest"

var secretManagerClientFactory = func(ctx context.Context, opts ...option.ClientOption) (*secretmanager.Client, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type secretManagerClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Resolver resolves secret:// references against Google Secret Manager and
// caches the payloads for the life of the process.
type Resolver struct {
	client     secretManagerClient
	ownsClient bool
	project    string
	logger     *zap.Logger

	mu    sync.RWMutex
	cache map[string]string
}

// Option customises Resolver construction.
type Option func(*resolverConfig)

type resolverConfig struct {
	client     secretManagerClient
	clientOpts []option.ClientOption
	project    string
	logger     *zap.Logger
}

// WithDefaultProject sets the project used when a reference omits ?project=.
func WithDefaultProject(projectID string) Option {
	return func(cfg *resolverConfig) { cfg.project = strings.TrimSpace(projectID) }
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *resolverConfig) { cfg.logger = logger }
}

// WithClientOptions appends options used when the resolver creates its own client.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(cfg *resolverConfig) { cfg.clientOpts = append(cfg.clientOpts, opts...) }
}

// WithSecretManagerClient injects a pre-built client, mainly for tests.
func WithSecretManagerClient(client secretManagerClient) Option {
	return func(cfg *resolverConfig) { cfg.client = client }
}

// NewResolver constructs a Resolver. A Secret Manager client is created lazily
// only when none is injected.
func NewResolver(ctx context.Context, opts ...Option) (*Resolver, error) {
	cfg := resolverConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}

	r := &Resolver{
		client:  cfg.client,
		project: cfg.project,
		logger:  cfg.logger,
		cache:   make(map[string]string),
	}
	if r.client == nil {
		client, err := secretManagerClientFactory(ctx, cfg.clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("secrets: create secret manager client: %w", err)
		}
		r.client = client
		r.ownsClient = true
	}
	return r, nil
}

// Close releases the client when the resolver created it.
func (r *Resolver) Close() error {
	if r == nil || !r.ownsClient || r.client == nil {
		return nil
	}
	return r.client.Close()
}

// Resolve returns the payload of the referenced secret version.
// References look like secret://name?version=3&project=other.
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	if r == nil || r.client == nil {
		return "", errors.New("secrets: resolver not initialised")
	}
	resource, err := r.resourceName(ref)
	if err != nil {
		return "", err
	}

	r.mu.RLock()
	cached, ok := r.cache[resource]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	started := time.Now()
	resp, err := r.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: resource}, retryTransient())
	if err != nil {
		r.logger.Warn("secret access failed", zap.String("secret", maskResource(resource)), zap.Error(err))
		return "", fmt.Errorf("secrets: access %s: %w", maskResource(resource), err)
	}
	if resp.GetPayload() == nil {
		return "", fmt.Errorf("secrets: empty payload for %s", maskResource(resource))
	}
	value := string(resp.GetPayload().GetData())

	r.mu.Lock()
	r.cache[resource] = value
	r.mu.Unlock()

	r.logger.Debug("secret resolved", zap.String("secret", maskResource(resource)), zap.Duration("latency", time.Since(started)))
	return value, nil
}

func (r *Resolver) resourceName(ref string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("secrets: invalid reference %q: %w", ref, err)
	}
	if u.Scheme != "secret" {
		return "", fmt.Errorf("secrets: unsupported scheme %q", u.Scheme)
	}
	name := strings.Trim(u.Host+u.Path, "/")
	if name == "" {
		return "", fmt.Errorf("secrets: missing secret name in %q", ref)
	}
	// secret://project/name is accepted as shorthand for ?project=.
	project := strings.TrimSpace(u.Query().Get("project"))
	if head, tail, ok := strings.Cut(name, "/"); ok && project == "" {
		project, name = head, tail
	}
	if project == "" {
		project = r.project
	}
	if project == "" {
		return "", fmt.Errorf("secrets: no project for reference %q", ref)
	}
	version := strings.TrimSpace(u.Query().Get("version"))
	if version == "" {
		version = defaultVersion
	}
	return fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, name, version), nil
}

func retryTransient() gax.CallOption {
	return gax.WithRetry(func() gax.Retryer {
		return gax.OnCodes([]codes.Code{codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted}, gax.Backoff{
			Initial:    100 * time.Millisecond,
			Max:        2 * time.Second,
			Multiplier: 2,
		})
	})
}

func maskResource(resource string) string {
	idx := strings.LastIndex(resource, "/secrets/")
	if idx < 0 {
		return "***"
	}
	return "***" + resource[idx:]
}
