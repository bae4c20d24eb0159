// Package session resolves the caller from the session the identity service
// keeps in redis.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"Gin_postgres_redis_lending_engine/tenant"

	"github.com/redis/go-redis/v9"
)

var ErrNoSession = errors.New("session not found or expired")

type AppSessionStore struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

func NewAppSessionStore(rdb *redis.Client, ttl time.Duration) *AppSessionStore {
	return &AppSessionStore{rdb: rdb, ttl: ttl, now: time.Now}
}

// AppSession is the value stored under app:sess:<id>.
type AppSession struct {
	UserID     string `json:"uid"`
	Role       string `json:"role"`
	OrgID      string `json:"org"`
	InstanceID string `json:"inst,omitempty"`
	IssuedAt   int64  `json:"iat"`
	ExpiresAt  int64  `json:"exp"`
}

func (as AppSession) Principal() tenant.Principal {
	return tenant.Principal{
		UserID: as.UserID,
		Role:   tenant.ParseRole(as.Role),
		Tenant: tenant.Tenant{OrgID: as.OrgID, InstanceID: as.InstanceID},
	}
}

func key(id string) string { return fmt.Sprintf("app:sess:%s", id) }

// Create is normally done by the identity service; it is here for tooling and tests.
func (s *AppSessionStore) Create(ctx context.Context, id string, p tenant.Principal) error {
	now := s.now()
	b, err := json.Marshal(AppSession{
		UserID:     p.UserID,
		Role:       string(p.Role),
		OrgID:      p.OrgID,
		InstanceID: p.InstanceID,
		IssuedAt:   now.Unix(),
		ExpiresAt:  now.Add(s.ttl).Unix(),
	})
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, key(id), b, s.ttl).Err()
}

func (s *AppSessionStore) Get(ctx context.Context, id string) (*AppSession, error) {
	b, err := s.rdb.Get(ctx, key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, err
	}
	var as AppSession
	if err := json.Unmarshal(b, &as); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if as.ExpiresAt != 0 && s.now().Unix() >= as.ExpiresAt {
		return nil, ErrNoSession
	}
	if as.UserID == "" || as.OrgID == "" || tenant.ParseRole(as.Role) == "" {
		return nil, ErrNoSession
	}
	return &as, nil
}

func (s *AppSessionStore) Delete(ctx context.Context, id string) error {
	return s.rdb.Del(ctx, key(id)).Err()
}
