package db

import (
	"context"

	"Gin_postgres_redis_lending_engine/models"
	"Gin_postgres_redis_lending_engine/tenant"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Items

func (r *Repo) FindItemByID(ctx context.Context, id string) (*models.Item, error) {
	var it models.Item
	if err := r.DB.WithContext(ctx).First(&it, "id = ?", id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &it, nil
}

// LockItem serializes every availability change of one item.
func (r *Repo) LockItem(ctx context.Context, id string) (*models.Item, error) {
	var it models.Item
	if err := r.DB.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&it, "id = ?", id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &it, nil
}

func (r *Repo) SetItemAvailable(ctx context.Context, id string, available int) error {
	res := r.DB.WithContext(ctx).Model(&models.Item{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"available_count": available,
			"updated_at":      gorm.Expr("NOW()"),
		})
	if res.Error != nil {
		return translateErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Lendings

func (r *Repo) CreateLending(ctx context.Context, l *models.Lending) error {
	return translateErr(r.DB.WithContext(ctx).Create(l).Error)
}

func (r *Repo) FindLendingByID(ctx context.Context, id string) (*models.Lending, error) {
	var l models.Lending
	if err := r.DB.WithContext(ctx).First(&l, "id = ?", id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &l, nil
}

func (r *Repo) LockLending(ctx context.Context, id string) (*models.Lending, error) {
	var l models.Lending
	if err := r.DB.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&l, "id = ?", id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &l, nil
}

func (r *Repo) SaveLending(ctx context.Context, l *models.Lending) error {
	return translateErr(r.DB.WithContext(ctx).Save(l).Error)
}

func (r *Repo) CountOpenLendings(ctx context.Context, scope tenant.Tenant, borrowerID string) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&models.Lending{}).
		Where("org_id = ? AND instance_id = ? AND borrower_id = ? AND state = ?",
			scope.OrgID, scope.InstanceID, borrowerID, models.LendingActive).
		Count(&n).Error
	return n, translateErr(err)
}
