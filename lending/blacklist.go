package lending

import (
	"context"
	"errors"
	"fmt"
	"time"

	"Gin_postgres_redis_lending_engine/db"
	"Gin_postgres_redis_lending_engine/events"
	"Gin_postgres_redis_lending_engine/models"
	"Gin_postgres_redis_lending_engine/tenant"

	"github.com/google/uuid"
)

// maxBlacklistDays is a hundred years.
const maxBlacklistDays = 36500

type BlacklistInput struct {
	UserID       string
	InstanceID   string // empty: the caller's instance, or org-wide for org-level staff
	Reason       string
	BlockedUntil time.Time
	Days         int // used when BlockedUntil is zero
}

// AddBlacklist suspends a borrower by hand. A borrower whose previous
// suspension ran out is blacklisted again; a running one is a conflict.
func (e *Engine) AddBlacklist(ctx context.Context, p tenant.Principal, in BlacklistInput) (*models.BlacklistEntry, error) {
	if !p.IsStaff() {
		return nil, ErrUnauthorized
	}
	if in.UserID == "" || in.Reason == "" {
		return nil, fmt.Errorf("%w: userId and reason are required", ErrInvalidInput)
	}
	scope := p.Tenant
	if in.InstanceID != "" {
		scope.InstanceID = in.InstanceID
	}
	if err := tenant.Guard(p, scope); err != nil {
		return nil, err
	}

	if in.Days < 0 || in.Days > maxBlacklistDays {
		return nil, fmt.Errorf("%w: days must be between 0 and %d", ErrInvalidInput, maxBlacklistDays)
	}

	now := e.clock()
	until := in.BlockedUntil
	if until.IsZero() {
		until = now.AddDate(0, 0, in.Days)
	}
	if !until.After(now) {
		return nil, fmt.Errorf("%w: blockedUntil must be in the future", ErrInvalidInput)
	}

	var out *models.BlacklistEntry
	err := e.store.Transaction(ctx, func(tx db.Store) error {
		existing, err := tx.LockActiveBlacklist(ctx, scope, in.UserID)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.BlocksAt(now) {
				return fmt.Errorf("%w: blocked until %s", ErrBlacklistConflict, existing.BlockedUntil.Format(time.RFC3339))
			}
			existing.IsActive = false
			if err := tx.SaveBlacklistEntry(ctx, existing); err != nil {
				return fmt.Errorf("retire blacklist entry: %w", err)
			}
		}
		out = &models.BlacklistEntry{
			ID:           uuid.NewString(),
			UserID:       in.UserID,
			OrgID:        scope.OrgID,
			InstanceID:   scope.InstanceID,
			Reason:       in.Reason,
			Source:       models.BlacklistManual,
			CreatedBy:    p.UserID,
			BlockedUntil: until.UTC(),
			IsActive:     true,
		}
		if err := tx.CreateBlacklistEntry(ctx, out); err != nil {
			return createBlacklistErr(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.publish(ctx, blacklistAddedEvent(p, out, now))
	return out, nil
}

// RemoveBlacklist lifts a suspension early. The entry is kept for history.
func (e *Engine) RemoveBlacklist(ctx context.Context, p tenant.Principal, entryID string) (*models.BlacklistEntry, error) {
	if !p.IsStaff() {
		return nil, ErrUnauthorized
	}
	now := e.clock()
	var out *models.BlacklistEntry
	err := e.store.Transaction(ctx, func(tx db.Store) error {
		entry, err := tx.LockBlacklistEntry(ctx, entryID)
		if err != nil {
			return err
		}
		if err := tenant.Guard(p, entry.Scope()); err != nil {
			return err
		}
		if !entry.IsActive {
			return fmt.Errorf("%w: entry is no longer active", ErrInvalidTransition)
		}
		entry.IsActive = false
		entry.OverriddenBy = &p.UserID
		entry.OverriddenAt = &now
		if err := tx.SaveBlacklistEntry(ctx, entry); err != nil {
			return fmt.Errorf("save blacklist entry: %w", err)
		}
		out = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.publish(ctx, events.New(events.BlacklistRemoved, out.Scope(), out.ID, p.UserID, now, map[string]any{
		"userId": out.UserID,
	}))
	return out, nil
}

// createBlacklistErr maps the one-active-entry index violation; it only
// fires when two transactions insert for the same borrower at once.
func createBlacklistErr(err error) error {
	if errors.Is(err, db.ErrDuplicate) {
		return fmt.Errorf("%w: %v", ErrBlacklistConflict, err)
	}
	return fmt.Errorf("create blacklist entry: %w", err)
}

func blacklistAddedEvent(p tenant.Principal, b *models.BlacklistEntry, at time.Time) events.Event {
	return events.New(events.BlacklistAdded, b.Scope(), b.ID, p.UserID, at, map[string]any{
		"userId":       b.UserID,
		"source":       b.Source,
		"blockedUntil": b.BlockedUntil,
		"reason":       b.Reason,
	})
}
