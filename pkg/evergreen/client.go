package evergreen

import (
	"context"
	"fmt"
	"time"

	"github.com/kailas-cloud/evergreen/internal/app"
	"github.com/kailas-cloud/evergreen/internal/config"
	"github.com/kailas-cloud/evergreen/internal/domain/batch"
	"github.com/kailas-cloud/evergreen/internal/domain/document"
	"github.com/kailas-cloud/evergreen/internal/domain/entity"
	"github.com/kailas-cloud/evergreen/internal/domain/ingest"
	"github.com/kailas-cloud/evergreen/internal/domain/query"
	healthuc "github.com/kailas-cloud/evergreen/internal/usecase/health"
	ingestionuc "github.com/kailas-cloud/evergreen/internal/usecase/ingestion"
)

const (
	defaultRedisAddr = "localhost:6379"
	defaultPort      = 8080
)

// Внутренние интерфейсы для подмены в тестах.
type ingestionUseCase interface {
	Ingest(ctx context.Context, raw document.RawDocument) ingest.IndexedDocument
	IngestBatch(ctx context.Context, docs []document.RawDocument, maxConcurrent int) batch.Report
	Status(ctx context.Context, tenant, id string) (ingest.IndexedDocument, error)
	Delete(ctx context.Context, tenant, id string) (ingestionuc.Deletion, error)
}

type retrievalUseCase interface {
	Query(ctx context.Context, tenant string, req query.Request) (query.Result, error)
	EntityContext(ctx context.Context, tenant, name string, t entity.Type) (query.EntityContext, error)
	SearchEntities(ctx context.Context, tenant, pattern string, t entity.Type, limit int) ([]entity.Entity, error)
	FindSimilar(ctx context.Context, tenant, documentID string, topK int) ([]query.SimilarDocument, error)
	Stats(ctx context.Context, tenant string) (query.Stats, error)
	DropTenant(ctx context.Context, tenant string) error
}

type statusUseCase interface {
	DeleteTenant(ctx context.Context, tenant string) (int, error)
}

type healthUseCase interface {
	Check(ctx context.Context) healthuc.Report
}

// Client is the Evergreen SDK entry point. It is safe for concurrent use.
type Client struct {
	ingestion ingestionUseCase
	retrieval retrievalUseCase
	statuses  statusUseCase
	health    healthUseCase
	closeFn   func()
	obs       *observer
}

// New connects to the configured backends and wires the pipelines.
// The provided context bounds the initial readiness checks.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cc := &clientConfig{}
	for _, o := range opts {
		o.apply(cc)
	}

	cfg, err := resolveConfig(cc)
	if err != nil {
		return nil, err
	}

	obs, err := newObserver(cc.logger, cc.metricsReg)
	if err != nil {
		return nil, err
	}

	a, err := app.Build(ctx, cfg, cc.zapLogger)
	if err != nil {
		return nil, fmt.Errorf("evergreen: %w", err)
	}

	return &Client{
		ingestion: a.Ingestion,
		retrieval: a.Retrieval,
		statuses:  a.Statuses,
		health:    a.Health,
		closeFn:   a.Close,
		obs:       obs,
	}, nil
}

func resolveConfig(cc *clientConfig) (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	switch {
	case cc.configPath != "":
		cfg, err = config.LoadFile(cc.configPath)
	case cc.env != "":
		cfg, err = config.Load(cc.env)
	default:
		cfg.HTTP.Port = defaultPort // validated, never served
		cfg.Database.Addrs = []string{defaultRedisAddr}
	}
	if err != nil {
		return config.Config{}, fmt.Errorf("evergreen: %w", err)
	}

	for _, fn := range cc.overrides {
		fn(&cfg)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("evergreen: invalid options: %w", err)
	}
	return cfg, nil
}

// Close releases backend connections.
func (c *Client) Close() {
	if c.closeFn != nil {
		c.closeFn()
	}
}

// Tenant returns a handle scoped to one tenant. The id is validated on use.
func (c *Client) Tenant(id string) *TenantClient {
	return &TenantClient{c: c, tenant: id}
}

// HealthStatus represents the aggregated system health.
type HealthStatus struct {
	Status string            // "ok", "degraded", "error"
	Checks map[string]string // component → "ok"/"error"
}

// Health checks every backend the client depends on.
func (c *Client) Health(ctx context.Context) HealthStatus {
	start := time.Now()
	report := c.health.Check(ctx)
	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}
	var err error
	if report.Status == healthuc.Unhealthy {
		err = fmt.Errorf("unhealthy: %v", checks)
	}
	c.obs.observe("health", "", start, err)
	return HealthStatus{
		Status: string(report.Status),
		Checks: checks,
	}
}
