package db

import (
	"context"

	"Gin_postgres_redis_lending_engine/models"

	"gorm.io/gorm/clause"
)

func (r *Repo) CreateApproval(ctx context.Context, a *models.ApprovalRequest) error {
	return translateErr(r.DB.WithContext(ctx).Create(a).Error)
}

func (r *Repo) FindApprovalByID(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	var a models.ApprovalRequest
	if err := r.DB.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &a, nil
}

// LockApproval makes concurrent decisions on one request wait for each other.
func (r *Repo) LockApproval(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	var a models.ApprovalRequest
	if err := r.DB.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&a, "id = ?", id).Error; err != nil {
		return nil, translateErr(err)
	}
	return &a, nil
}

func (r *Repo) SaveApproval(ctx context.Context, a *models.ApprovalRequest) error {
	return translateErr(r.DB.WithContext(ctx).Save(a).Error)
}
