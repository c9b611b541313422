// Package session holds per-identity pipeline state: exactly one
// Dataset and the most recently computed metric result per session.
//
// The cache is the single source of truth for chart/export consumers.
// Backends register themselves under a kind (mirroring the storage
// backend registries elsewhere in this codebase) so deployments can
// pick in-process memory or Redis without touching the pipeline.
package session

import (
	"context"
	"fmt"
	"sync"

	"datalik/internal/kpi"
	"datalik/internal/schema"
)

// Cache is the per-session store. All methods are keyed by the opaque
// session identity the auth collaborator hands the pipeline.
//
// Semantics:
//   - Put replaces the current dataset and invalidates cached metrics.
//   - Get returns *schema.NotFoundError before the first Put.
//   - Metrics returns the cached result when the request signature
//     matches the last computed one, otherwise recomputes through the
//     KPI calculator and caches the fresh result.
//   - Invalidate drops cached metrics but keeps the dataset.
//   - Destroy tears the session's state down entirely.
type Cache interface {
	Put(ctx context.Context, sessionID string, ds *schema.Dataset) error
	Get(ctx context.Context, sessionID string) (*schema.Dataset, error)
	Metrics(ctx context.Context, sessionID string, req kpi.Request) (*kpi.Result, error)
	Invalidate(ctx context.Context, sessionID string) error
	Destroy(ctx context.Context, sessionID string) error

	// Close releases backend resources. Call once at shutdown.
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	// Kind must match a registered backend ("memory", "redis").
	Kind string
	// Addr/Password/DB apply to network backends.
	Addr     string
	Password string
	DB       int
}

// ---- backend registry (mirrors the multi-backend factory pattern) ----

type factory func(ctx context.Context, cfg Config) (Cache, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a cache backend under a kind. Call from an init()
// in the backend package.
//
// Panics on empty kind, nil factory, or duplicate registration; failing
// fast beats ambiguous backend selection.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("session: Register called with empty kind")
	}
	if f == nil {
		panic("session: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("session: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// New constructs a Cache using the registered backend factory.
func New(ctx context.Context, cfg Config) (Cache, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("session: missing cache kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported session cache kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}
