package db

import (
	"context"
	"errors"
	"time"

	"Gin_postgres_redis_lending_engine/models"
	"Gin_postgres_redis_lending_engine/tenant"

	"gorm.io/gorm/clause"
)

// FindBlockingEntry returns the longest-running suspension that applies to the
// user in scope: entries of the same instance and org-wide ones both count.
func (r *Repo) FindBlockingEntry(ctx context.Context, scope tenant.Tenant, userID string, now time.Time) (*models.BlacklistEntry, error) {
	var e models.BlacklistEntry
	err := r.DB.WithContext(ctx).
		Where("user_id = ? AND org_id = ? AND (instance_id = ? OR instance_id = '')", userID, scope.OrgID, scope.InstanceID).
		Where("is_active = TRUE AND blocked_until > ?", now).
		Order("blocked_until DESC").
		First(&e).Error
	if err != nil {
		if err = translateErr(err); errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

// LockActiveBlacklist locks the single is_active entry for exactly this scope,
// expired or not.
func (r *Repo) LockActiveBlacklist(ctx context.Context, scope tenant.Tenant, userID string) (*models.BlacklistEntry, error) {
	var e models.BlacklistEntry
	err := r.DB.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND org_id = ? AND instance_id = ? AND is_active = TRUE", userID, scope.OrgID, scope.InstanceID).
		First(&e).Error
	if err != nil {
		if err = translateErr(err); errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

func (r *Repo) LockBlacklistEntry(ctx context.Context, id string) (*models.BlacklistEntry, error) {
	var e models.BlacklistEntry
	if err := r.DB.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&e, "id = ?", id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &e, nil
}

func (r *Repo) CreateBlacklistEntry(ctx context.Context, e *models.BlacklistEntry) error {
	return translateErr(r.DB.WithContext(ctx).Create(e).Error)
}

func (r *Repo) SaveBlacklistEntry(ctx context.Context, e *models.BlacklistEntry) error {
	return translateErr(r.DB.WithContext(ctx).Save(e).Error)
}
