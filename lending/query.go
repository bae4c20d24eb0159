package lending

import (
	"context"
	"fmt"

	"Gin_postgres_redis_lending_engine/db"
	"Gin_postgres_redis_lending_engine/models"
	"Gin_postgres_redis_lending_engine/tenant"
)

type LendingFilter struct {
	BorrowerID string
	ItemID     string
	Status     models.LendingState
	db.Page
}

// ListLendings shows staff everything in their tenant and borrowers only
// their own lendings.
func (e *Engine) ListLendings(ctx context.Context, p tenant.Principal, f LendingFilter) (*db.PagedLendings, error) {
	switch f.Status {
	case "", models.LendingActive, models.LendingOverdue, models.LendingReturned:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, f.Status)
	}
	borrower := f.BorrowerID
	if !p.IsStaff() {
		if borrower != "" && borrower != p.UserID {
			return nil, ErrUnauthorized
		}
		borrower = p.UserID
	}
	return e.store.ListLendings(ctx, db.LendingsQuery{
		Scope:      p.Tenant,
		BorrowerID: borrower,
		ItemID:     f.ItemID,
		Status:     f.Status,
		Now:        e.clock(),
		Page:       f.Page,
	})
}

// ListApprovals is the staff review queue; borrowers see their own requests.
func (e *Engine) ListApprovals(ctx context.Context, p tenant.Principal, status models.ApprovalStatus, page db.Page) (*db.PagedApprovals, error) {
	switch status {
	case "", models.ApprovalPending, models.ApprovalApproved, models.ApprovalRejected, models.ApprovalCancelled:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	q := db.ApprovalsQuery{Scope: p.Tenant, Status: status, Page: page}
	if !p.IsStaff() {
		q.RequesterID = p.UserID
	}
	return e.store.ListApprovals(ctx, q)
}
