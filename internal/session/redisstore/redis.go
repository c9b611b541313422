// Package redisstore implements a Redis-backed session cache for
// deployments that run more than one dashboard instance behind a load
// balancer. Datasets and metric results are stored as JSON under
// per-session keys with a sliding TTL.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"datalik/internal/kpi"
	"datalik/internal/schema"
	"datalik/internal/session"
)

func init() {
	session.Register("redis", func(ctx context.Context, cfg session.Config) (session.Cache, error) {
		return New(ctx, cfg)
	})
}

// sessionTTL bounds how long an idle session's state survives. Every
// write refreshes it.
const sessionTTL = 4 * time.Hour

type Store struct {
	client *redis.Client
}

// New connects to Redis and verifies the connection with a ping.
func New(ctx context.Context, cfg session.Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Store{client: client}, nil
}

func datasetKey(id string) string { return "datalik:sess:" + id + ":dataset" }
func metricsKey(id string) string { return "datalik:sess:" + id + ":metrics" }

type cachedMetrics struct {
	Signature string      `json:"signature"`
	Result    *kpi.Result `json:"result"`
}

func (s *Store) Put(ctx context.Context, sessionID string, ds *schema.Dataset) error {
	b, err := json.Marshal(ds)
	if err != nil {
		return fmt.Errorf("encode dataset: %w", err)
	}
	// Dataset swap and metrics invalidation must land together.
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, datasetKey(sessionID), b, sessionTTL)
	pipe.Del(ctx, metricsKey(sessionID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store dataset: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, sessionID string) (*schema.Dataset, error) {
	b, err := s.client.Get(ctx, datasetKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, &schema.NotFoundError{SessionID: sessionID}
	}
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	var ds schema.Dataset
	if err := json.Unmarshal(b, &ds); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	return &ds, nil
}

func (s *Store) Metrics(ctx context.Context, sessionID string, req kpi.Request) (*kpi.Result, error) {
	sig := req.Signature()

	if b, err := s.client.Get(ctx, metricsKey(sessionID)).Bytes(); err == nil {
		var cached cachedMetrics
		if json.Unmarshal(b, &cached) == nil && cached.Signature == sig {
			return cached.Result, nil
		}
	}

	ds, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	res, err := kpi.Compute(ds, req)
	if err != nil {
		return nil, err
	}

	if b, err := json.Marshal(cachedMetrics{Signature: sig, Result: res}); err == nil {
		// Cache write failures degrade to recompute-next-time.
		s.client.Set(ctx, metricsKey(sessionID), b, sessionTTL)
	}
	return res, nil
}

func (s *Store) Invalidate(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, metricsKey(sessionID)).Err()
}

func (s *Store) Destroy(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, datasetKey(sessionID), metricsKey(sessionID)).Err()
}

func (s *Store) Close() error { return s.client.Close() }
