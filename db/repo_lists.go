package db

import (
	"context"
	"time"

	"Gin_postgres_redis_lending_engine/models"
	"Gin_postgres_redis_lending_engine/tenant"

	"gorm.io/gorm"
)

const (
	defaultPageSize = 20
	maxPageSize     = 200
)

// Page is 1-based; out-of-range values fall back to the defaults.
type Page struct {
	Page int
	Size int
}

func (p Page) normalize() Page {
	if p.Page <= 0 {
		p.Page = 1
	}
	if p.Size <= 0 || p.Size > maxPageSize {
		p.Size = defaultPageSize
	}
	return p
}

func (p Page) offset() int { return (p.Page - 1) * p.Size }

// LendingsQuery lists lendings of a tenant. An org-level scope (empty
// InstanceID) covers every instance of the org.
type LendingsQuery struct {
	Scope      tenant.Tenant
	BorrowerID string
	ItemID     string
	Status     models.LendingState // "", active, overdue, returned
	Now        time.Time
	Page
}

type PagedLendings struct {
	Total int64            `json:"total"`
	Items []models.Lending `json:"items"`
}

func scoped(db *gorm.DB, scope tenant.Tenant) *gorm.DB {
	db = db.Where("org_id = ?", scope.OrgID)
	if scope.InstanceID != "" {
		db = db.Where("instance_id = ?", scope.InstanceID)
	}
	return db
}

func (r *Repo) ListLendings(ctx context.Context, q LendingsQuery) (*PagedLendings, error) {
	q.Page = q.Page.normalize()

	qry := scoped(r.DB.WithContext(ctx).Model(&models.Lending{}), q.Scope)
	if q.BorrowerID != "" {
		qry = qry.Where("borrower_id = ?", q.BorrowerID)
	}
	if q.ItemID != "" {
		qry = qry.Where("item_id = ?", q.ItemID)
	}
	switch q.Status {
	case models.LendingActive:
		qry = qry.Where("state = ? AND due_date >= ?", models.LendingActive, q.Now)
	case models.LendingOverdue:
		qry = qry.Where("state = ? AND due_date < ?", models.LendingActive, q.Now)
	case models.LendingReturned:
		qry = qry.Where("state = ?", models.LendingReturned)
	}

	var total int64
	if err := qry.Count(&total).Error; err != nil {
		return nil, translateErr(err)
	}
	var rows []models.Lending
	if err := qry.Order("borrowed_at DESC").Offset(q.offset()).Limit(q.Size).Find(&rows).Error; err != nil {
		return nil, translateErr(err)
	}
	return &PagedLendings{Total: total, Items: rows}, nil
}

type ApprovalsQuery struct {
	Scope       tenant.Tenant
	RequesterID string
	Status      models.ApprovalStatus
	Page
}

type PagedApprovals struct {
	Total int64                    `json:"total"`
	Items []models.ApprovalRequest `json:"items"`
}

// ListApprovals returns the oldest requests first so the queue is worked in order.
func (r *Repo) ListApprovals(ctx context.Context, q ApprovalsQuery) (*PagedApprovals, error) {
	q.Page = q.Page.normalize()

	qry := scoped(r.DB.WithContext(ctx).Model(&models.ApprovalRequest{}), q.Scope)
	if q.RequesterID != "" {
		qry = qry.Where("requester_id = ?", q.RequesterID)
	}
	if q.Status != "" {
		qry = qry.Where("status = ?", q.Status)
	}

	var total int64
	if err := qry.Count(&total).Error; err != nil {
		return nil, translateErr(err)
	}
	var rows []models.ApprovalRequest
	if err := qry.Order("created_at ASC").Offset(q.offset()).Limit(q.Size).Find(&rows).Error; err != nil {
		return nil, translateErr(err)
	}
	return &PagedApprovals{Total: total, Items: rows}, nil
}
