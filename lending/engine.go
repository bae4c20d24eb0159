// Package lending is the lending state machine: checkout, return, renewal,
// the approval gate and the borrower blacklist. Every multi-entity mutation
// runs inside one db.Store transaction and events are published only after
// it commits.
package lending

import (
	"context"
	"time"

	"Gin_postgres_redis_lending_engine/db"
	"Gin_postgres_redis_lending_engine/events"
	"Gin_postgres_redis_lending_engine/models"
	"Gin_postgres_redis_lending_engine/policy"
	"Gin_postgres_redis_lending_engine/tenant"

	"go.uber.org/zap"
)

// Policies resolves the effective policy of a tenant.
type Policies interface {
	Get(ctx context.Context, t tenant.Tenant) (policy.Policy, error)
}

type Engine struct {
	store    db.Store
	policies Policies
	ledger   *Ledger
	events   events.Publisher
	log      *zap.Logger
	now      func() time.Time
}

type Option func(*Engine)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(store db.Store, policies Policies, pub events.Publisher, log *zap.Logger, opts ...Option) *Engine {
	if pub == nil {
		pub = events.NopPublisher{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		store:    store,
		policies: policies,
		ledger:   NewLedger(log),
		events:   pub,
		log:      log,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// StatusOf is the lending's state as clients see it, overdue included.
func (e *Engine) StatusOf(l models.Lending) models.LendingState {
	return l.StatusAt(e.clock())
}

func (e *Engine) clock() time.Time { return e.now().UTC() }

// publish is best effort: the transition is already committed.
func (e *Engine) publish(ctx context.Context, evs ...events.Event) {
	if len(evs) == 0 {
		return
	}
	if err := e.events.Publish(ctx, evs...); err != nil {
		e.log.Warn("publish events failed",
			zap.String("type", string(evs[0].Type)),
			zap.String("entity_id", evs[0].EntityID),
			zap.Int("count", len(evs)),
			zap.Error(err))
	}
}

// ownOrStaff lets borrowers act only on their own records.
func ownOrStaff(p tenant.Principal, ownerID string) error {
	if p.IsStaff() || p.UserID == ownerID {
		return nil
	}
	return ErrUnauthorized
}
