package lending

import (
	"context"
	"fmt"
	"time"

	"Gin_postgres_redis_lending_engine/db"
	"Gin_postgres_redis_lending_engine/events"
	"Gin_postgres_redis_lending_engine/models"
	"Gin_postgres_redis_lending_engine/policy"
	"Gin_postgres_redis_lending_engine/tenant"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CheckoutInput struct {
	ItemID     string
	BorrowerID string    // empty means the caller
	DueDate    time.Time // zero means now + policy duration
	Notes      string
	Quantity   int // zero means one unit
}

// checkoutOrder is one checkout already past the role checks, shared by
// direct checkout, the approval bypass and approved requests.
type checkoutOrder struct {
	itemID     string
	borrowerID string
	dueDate    time.Time
	notes      string
	quantity   int
	approvalID *string
}

// Checkout lends Quantity units of an item directly, one lending per unit.
// Borrowers are sent to Submit when their tenant requires approval.
func (e *Engine) Checkout(ctx context.Context, p tenant.Principal, in CheckoutInput) ([]models.Lending, error) {
	if in.ItemID == "" {
		return nil, fmt.Errorf("%w: itemId is required", ErrInvalidInput)
	}
	quantity := in.Quantity
	if quantity == 0 {
		quantity = 1
	}
	if quantity < 0 {
		return nil, ErrInvalidQuantity
	}
	borrower := in.BorrowerID
	if borrower == "" {
		borrower = p.UserID
	}
	if err := ownOrStaff(p, borrower); err != nil {
		return nil, err
	}

	item, err := e.store.FindItemByID(ctx, in.ItemID)
	if err != nil {
		return nil, err
	}
	if err := tenant.Guard(p, item.Scope()); err != nil {
		return nil, err
	}
	pol, err := e.policies.Get(ctx, item.Scope())
	if err != nil {
		return nil, err
	}
	if pol.RequireApproval && !p.IsStaff() {
		return nil, ErrApprovalRequired
	}

	now := e.clock()
	var out []models.Lending
	err = e.store.Transaction(ctx, func(tx db.Store) error {
		var err error
		out, err = e.checkoutTx(ctx, tx, p, item.Scope(), pol, checkoutOrder{
			itemID:     in.ItemID,
			borrowerID: borrower,
			dueDate:    in.DueDate,
			notes:      in.Notes,
			quantity:   quantity,
		}, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.publish(ctx, checkedOutEvents(p, out, now)...)
	return out, nil
}

func (e *Engine) checkoutTx(ctx context.Context, tx db.Store, p tenant.Principal, scope tenant.Tenant, pol policy.Policy, s checkoutOrder, now time.Time) ([]models.Lending, error) {
	if s.quantity < 1 {
		return nil, ErrInvalidQuantity
	}
	due := s.dueDate
	if due.IsZero() {
		due = now.Add(pol.LendingDuration())
	}
	if due.Before(now) {
		return nil, fmt.Errorf("%w: %s is in the past", ErrInvalidDueDate, due.Format(time.RFC3339))
	}

	// 1) 黑名单和借用上限
	if err := e.checkNotBlacklisted(ctx, tx, scope, s.borrowerID, now); err != nil {
		return nil, err
	}
	if pol.MaxItemsPerUser > 0 {
		open, err := tx.CountOpenLendings(ctx, scope, s.borrowerID)
		if err != nil {
			return nil, err
		}
		if int(open)+s.quantity > pol.MaxItemsPerUser {
			return nil, fmt.Errorf("%w: %d open, limit %d", ErrLendingLimitReached, open, pol.MaxItemsPerUser)
		}
	}

	// 2) 锁住该物品并扣减库存
	item, err := e.ledger.Reserve(ctx, tx, p, s.itemID, s.quantity)
	if err != nil {
		return nil, err
	}

	// 3) 每件一条借用记录
	out := make([]models.Lending, 0, s.quantity)
	for i := 0; i < s.quantity; i++ {
		l := models.Lending{
			ID:                uuid.NewString(),
			ItemID:            item.ID,
			BorrowerID:        s.borrowerID,
			OrgID:             item.OrgID,
			InstanceID:        item.InstanceID,
			State:             models.LendingActive,
			BorrowedAt:        now,
			DueDate:           due,
			ApprovalRequestID: s.approvalID,
			Notes:             s.notes,
		}
		if err := tx.CreateLending(ctx, &l); err != nil {
			return nil, fmt.Errorf("create lending: %w", err)
		}
		out = append(out, l)
	}

	e.log.Info("item checked out",
		zap.String("item_id", item.ID),
		zap.String("borrower_id", s.borrowerID),
		zap.String("tenant", scope.String()),
		zap.Int("qty", s.quantity),
		zap.Int("available", item.AvailableCount))
	return out, nil
}

func (e *Engine) checkNotBlacklisted(ctx context.Context, store db.Store, scope tenant.Tenant, userID string, now time.Time) error {
	entry, err := store.FindBlockingEntry(ctx, scope, userID, now)
	if err != nil {
		return err
	}
	if entry != nil {
		return &BlacklistedError{UserID: userID, BlockedUntil: entry.BlockedUntil, Reason: entry.Reason}
	}
	return nil
}

// GetLending is readable by staff of the tenant and by the borrower.
func (e *Engine) GetLending(ctx context.Context, p tenant.Principal, id string) (*models.Lending, error) {
	l, err := e.store.FindLendingByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := tenant.Guard(p, l.Scope()); err != nil {
		return nil, err
	}
	if err := ownOrStaff(p, l.BorrowerID); err != nil {
		return nil, err
	}
	return l, nil
}

func checkedOutEvents(p tenant.Principal, ls []models.Lending, at time.Time) []events.Event {
	evs := make([]events.Event, 0, len(ls))
	for _, l := range ls {
		evs = append(evs, events.New(events.LendingCheckedOut, l.Scope(), l.ID, p.UserID, at, map[string]any{
			"itemId":     l.ItemID,
			"borrowerId": l.BorrowerID,
			"dueDate":    l.DueDate,
		}))
	}
	return evs
}
