package lending

import (
	"context"
	"fmt"

	"Gin_postgres_redis_lending_engine/db"
	"Gin_postgres_redis_lending_engine/models"
	"Gin_postgres_redis_lending_engine/tenant"

	"go.uber.org/zap"
)

// Ledger keeps 0 <= availableCount <= totalCount. It only works on a
// transaction-bound store so the item row stays locked until commit.
type Ledger struct {
	log *zap.Logger
}

func NewLedger(log *zap.Logger) *Ledger { return &Ledger{log: log} }

func (l *Ledger) Reserve(ctx context.Context, tx db.Store, p tenant.Principal, itemID string, qty int) (*models.Item, error) {
	if qty < 1 {
		return nil, ErrInvalidQuantity
	}
	it, err := tx.LockItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("lock item %s: %w", itemID, err)
	}
	if err := tenant.Guard(p, it.Scope()); err != nil {
		return nil, err
	}
	if it.AvailableCount < qty {
		return nil, fmt.Errorf("%w: item %s has %d available, %d requested",
			ErrInsufficientAvailability, itemID, it.AvailableCount, qty)
	}
	it.AvailableCount -= qty
	if err := tx.SetItemAvailable(ctx, it.ID, it.AvailableCount); err != nil {
		return nil, fmt.Errorf("reserve item %s: %w", itemID, err)
	}
	return it, nil
}

// Release never pushes availability above totalCount; an overflow means the
// counts were edited out of band and is only logged.
func (l *Ledger) Release(ctx context.Context, tx db.Store, p tenant.Principal, itemID string, qty int) (*models.Item, error) {
	if qty < 1 {
		return nil, ErrInvalidQuantity
	}
	it, err := tx.LockItem(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("lock item %s: %w", itemID, err)
	}
	if err := tenant.Guard(p, it.Scope()); err != nil {
		return nil, err
	}
	next := it.AvailableCount + qty
	if next > it.TotalCount {
		l.log.Warn("release would exceed total count, clamping",
			zap.String("item_id", it.ID),
			zap.Int("available", it.AvailableCount),
			zap.Int("total", it.TotalCount),
			zap.Int("qty", qty))
		next = it.TotalCount
	}
	it.AvailableCount = next
	if err := tx.SetItemAvailable(ctx, it.ID, it.AvailableCount); err != nil {
		return nil, fmt.Errorf("release item %s: %w", itemID, err)
	}
	return it, nil
}
