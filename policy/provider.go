package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"Gin_postgres_redis_lending_engine/tenant"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Source reads the stored policy of a tenant. It returns (nil, nil) when the
// tenant has none.
type Source interface {
	FindPolicy(ctx context.Context, t tenant.Tenant) (*Policy, error)
}

// Provider resolves policies from Source and caches them in redis for ttl, so
// admin edits show up after at most ttl.
type Provider struct {
	src      Source
	rdb      *redis.Client
	ttl      time.Duration
	defaults Policy
	log      *zap.Logger
}

func NewProvider(src Source, rdb *redis.Client, ttl time.Duration, defaults Policy, log *zap.Logger) *Provider {
	return &Provider{src: src, rdb: rdb, ttl: ttl, defaults: defaults, log: log}
}

func cacheKey(t tenant.Tenant) string { return fmt.Sprintf("policy:%s:%s", t.OrgID, t.InstanceID) }

func (p *Provider) Get(ctx context.Context, t tenant.Tenant) (Policy, error) {
	if pol, ok := p.cached(ctx, t); ok {
		return pol, nil
	}

	stored, err := p.src.FindPolicy(ctx, t)
	if err != nil {
		return Policy{}, fmt.Errorf("load policy for %s: %w", t, err)
	}
	pol := p.defaults
	if stored != nil {
		pol = *stored
	}

	if p.rdb != nil && p.ttl > 0 {
		b, _ := json.Marshal(pol)
		if err := p.rdb.Set(ctx, cacheKey(t), b, p.ttl).Err(); err != nil {
			p.log.Warn("policy cache write failed", zap.String("tenant", t.String()), zap.Error(err))
		}
	}
	return pol, nil
}

func (p *Provider) cached(ctx context.Context, t tenant.Tenant) (Policy, bool) {
	if p.rdb == nil || p.ttl <= 0 {
		return Policy{}, false
	}
	b, err := p.rdb.Get(ctx, cacheKey(t)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			p.log.Warn("policy cache read failed", zap.String("tenant", t.String()), zap.Error(err))
		}
		return Policy{}, false
	}
	var pol Policy
	if err := json.Unmarshal(b, &pol); err != nil {
		p.log.Warn("policy cache entry corrupt", zap.String("tenant", t.String()), zap.Error(err))
		return Policy{}, false
	}
	return pol, true
}
