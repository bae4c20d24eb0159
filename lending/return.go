package lending

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"Gin_postgres_redis_lending_engine/db"
	"Gin_postgres_redis_lending_engine/events"
	"Gin_postgres_redis_lending_engine/models"
	"Gin_postgres_redis_lending_engine/penalty"
	"Gin_postgres_redis_lending_engine/policy"
	"Gin_postgres_redis_lending_engine/tenant"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// errBlacklistRace is a concurrent insert of the borrower's active entry.
var errBlacklistRace = fmt.Errorf("%w: inserted concurrently", ErrBlacklistConflict)

type ReturnInput struct {
	Condition penalty.Condition
	Notes     string
}

type ReturnResult struct {
	Lending   *models.Lending
	Penalty   penalty.Result
	Blacklist *models.BlacklistEntry // set when the return suspended the borrower
}

// Return closes a lending, restores availability and, when the tenant has
// auto-blacklisting on, suspends the borrower for late or bad returns.
func (e *Engine) Return(ctx context.Context, p tenant.Principal, lendingID string, in ReturnInput) (*ReturnResult, error) {
	if in.Condition == "" {
		in.Condition = penalty.ConditionGood
	}
	current, err := e.store.FindLendingByID(ctx, lendingID)
	if err != nil {
		return nil, err
	}
	if err := tenant.Guard(p, current.Scope()); err != nil {
		return nil, err
	}
	if err := ownOrStaff(p, current.BorrowerID); err != nil {
		return nil, err
	}
	pol, err := e.policies.Get(ctx, current.Scope())
	if err != nil {
		return nil, err
	}

	now := e.clock()
	var res ReturnResult
	// 另一个归还刚插入了同一借用人的拉黑记录: 重跑一次, 第二次会延长那条记录
	err = db.RetryWithExponentialBackoff(ctx, func(ctx context.Context) error {
		return e.store.Transaction(ctx, func(tx db.Store) error {
			return e.returnTx(ctx, tx, p, lendingID, in, pol, now, &res)
		})
	}, db.WithMaxAttempts(3), db.WithBaseDelay(0), db.WithRetryable(func(err error) bool {
		return errors.Is(err, errBlacklistRace)
	}))
	if err != nil {
		return nil, err
	}

	if pen := res.Penalty; pen.HasPenalty() {
		e.log.Info("lending returned with penalty",
			zap.String("lending_id", lendingID),
			zap.String("kind", string(pen.Kind)),
			zap.String("amount", pen.Amount.StringFixed(2)),
			zap.Int("blacklist_days", pen.BlacklistDays))
	}
	evs := []events.Event{events.New(events.LendingReturned, res.Lending.Scope(), lendingID, p.UserID, now, map[string]any{
		"itemId":     res.Lending.ItemID,
		"borrowerId": res.Lending.BorrowerID,
		"condition":  in.Condition,
		"penalty":    res.Penalty,
	})}
	if b := res.Blacklist; b != nil {
		evs = append(evs, blacklistAddedEvent(p, b, now))
	}
	e.publish(ctx, evs...)
	return &res, nil
}

func (e *Engine) returnTx(ctx context.Context, tx db.Store, p tenant.Principal, lendingID string, in ReturnInput, pol policy.Policy, now time.Time, res *ReturnResult) error {
	*res = ReturnResult{}
	// 1) 锁住借用记录
	l, err := tx.LockLending(ctx, lendingID)
	if err != nil {
		return err
	}
	if !l.State.CanTransition(models.LendingReturned) {
		return ErrAlreadyReturned
	}

	pen := penalty.Calculate(l.DueDate, now, in.Condition, pol)
	l.State = models.LendingReturned
	l.ReturnedAt = &now
	l.ReturnedBy = &p.UserID
	l.ReturnCondition = string(in.Condition)
	l.PenaltyAmount = decimal.NewNullDecimal(pen.Amount)
	if pen.HasPenalty() {
		reason := pen.Reason
		l.PenaltyReason = &reason
	}
	if in.Notes != "" {
		if l.Notes != "" {
			l.Notes += " | "
		}
		l.Notes += in.Notes
	}
	if err := tx.SaveLending(ctx, l); err != nil {
		return fmt.Errorf("save lending: %w", err)
	}
	// 2) 归还库存
	if _, err := e.ledger.Release(ctx, tx, p, l.ItemID, 1); err != nil {
		return err
	}

	// 3) 逾期或损坏时自动拉黑
	if pol.AutoBlacklistEnabled && pen.BlacklistDays > 0 {
		entry, err := e.autoBlacklist(ctx, tx, p, l, pen, now)
		if err != nil {
			return err
		}
		res.Blacklist = entry
	}
	res.Lending = l
	res.Penalty = pen
	return nil
}

// autoBlacklist keeps at most one active entry per borrower and scope: a
// running suspension is only ever lengthened, an expired one is retired and
// replaced.
func (e *Engine) autoBlacklist(ctx context.Context, tx db.Store, p tenant.Principal, l *models.Lending, pen penalty.Result, now time.Time) (*models.BlacklistEntry, error) {
	until := now.Add(time.Duration(pen.BlacklistDays) * 24 * time.Hour)

	existing, err := tx.LockActiveBlacklist(ctx, l.Scope(), l.BorrowerID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.BlocksAt(now) {
			if until.After(existing.BlockedUntil) {
				existing.BlockedUntil = until
				existing.Reason = pen.Reason
				if err := tx.SaveBlacklistEntry(ctx, existing); err != nil {
					return nil, fmt.Errorf("extend blacklist entry: %w", err)
				}
			}
			return existing, nil
		}
		existing.IsActive = false
		if err := tx.SaveBlacklistEntry(ctx, existing); err != nil {
			return nil, fmt.Errorf("retire blacklist entry: %w", err)
		}
	}

	entry := &models.BlacklistEntry{
		ID:           uuid.NewString(),
		UserID:       l.BorrowerID,
		OrgID:        l.OrgID,
		InstanceID:   l.InstanceID,
		Reason:       pen.Reason,
		Source:       models.BlacklistAuto,
		LendingID:    &l.ID,
		CreatedBy:    p.UserID,
		BlockedUntil: until,
		IsActive:     true,
	}
	if err := tx.CreateBlacklistEntry(ctx, entry); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			return nil, fmt.Errorf("%w: %v", errBlacklistRace, err)
		}
		return nil, fmt.Errorf("create blacklist entry: %w", err)
	}
	return entry, nil
}

// PreviewPenalty is what Return would charge if it happened now.
func (e *Engine) PreviewPenalty(ctx context.Context, p tenant.Principal, lendingID string, cond penalty.Condition) (penalty.Result, error) {
	l, err := e.GetLending(ctx, p, lendingID)
	if err != nil {
		return penalty.Result{}, err
	}
	if l.State != models.LendingActive {
		return penalty.Result{}, ErrAlreadyReturned
	}
	pol, err := e.policies.Get(ctx, l.Scope())
	if err != nil {
		return penalty.Result{}, err
	}
	return penalty.Calculate(l.DueDate, e.clock(), cond, pol), nil
}

// OverridePenalty lets staff replace the computed amount and reason after the fact.
func (e *Engine) OverridePenalty(ctx context.Context, p tenant.Principal, lendingID string, amount decimal.Decimal, reason string) (*models.Lending, error) {
	if !p.IsStaff() {
		return nil, ErrUnauthorized
	}
	if amount.IsNegative() {
		return nil, fmt.Errorf("%w: penalty amount must not be negative", ErrInvalidInput)
	}
	if strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf("%w: an override needs a reason", ErrInvalidInput)
	}

	now := e.clock()
	var out *models.Lending
	err := e.store.Transaction(ctx, func(tx db.Store) error {
		l, err := tx.LockLending(ctx, lendingID)
		if err != nil {
			return err
		}
		if err := tenant.Guard(p, l.Scope()); err != nil {
			return err
		}
		if l.State != models.LendingReturned {
			return fmt.Errorf("%w: penalty can only be overridden on a returned lending", ErrInvalidTransition)
		}
		l.PenaltyAmount = decimal.NewNullDecimal(amount)
		l.PenaltyReason = &reason
		l.PenaltyOverridden = true
		if err := tx.SaveLending(ctx, l); err != nil {
			return fmt.Errorf("save lending: %w", err)
		}
		out = l
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.publish(ctx, events.New(events.LendingPenaltyOverridden, out.Scope(), out.ID, p.UserID, now, map[string]any{
		"amount": amount,
		"reason": reason,
	}))
	return out, nil
}

// Renew extends an active lending directly. Borrowers of a tenant that
// requires approval go through Submit with an extension request instead.
func (e *Engine) Renew(ctx context.Context, p tenant.Principal, lendingID string, dueDate time.Time) (*models.Lending, error) {
	current, err := e.GetLending(ctx, p, lendingID)
	if err != nil {
		return nil, err
	}
	pol, err := e.policies.Get(ctx, current.Scope())
	if err != nil {
		return nil, err
	}
	if pol.RequireApproval && !p.IsStaff() {
		return nil, ErrApprovalRequired
	}

	now := e.clock()
	var out *models.Lending
	err = e.store.Transaction(ctx, func(tx db.Store) error {
		var err error
		out, err = e.renewTx(ctx, tx, p, lendingID, dueDate, pol, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.publish(ctx, renewedEvent(p, out, now))
	return out, nil
}

func (e *Engine) renewTx(ctx context.Context, tx db.Store, p tenant.Principal, lendingID string, dueDate time.Time, pol policy.Policy, now time.Time) (*models.Lending, error) {
	l, err := tx.LockLending(ctx, lendingID)
	if err != nil {
		return nil, err
	}
	if err := tenant.Guard(p, l.Scope()); err != nil {
		return nil, err
	}
	if l.State != models.LendingActive {
		return nil, ErrAlreadyReturned
	}
	if l.RenewalCount >= pol.MaxRenewals {
		return nil, fmt.Errorf("%w: %d of %d used", ErrRenewalLimitReached, l.RenewalCount, pol.MaxRenewals)
	}
	if err := e.checkNotBlacklisted(ctx, tx, l.Scope(), l.BorrowerID, now); err != nil {
		return nil, err
	}

	due := dueDate
	if due.IsZero() {
		due = l.DueDate.Add(pol.LendingDuration())
	}
	if !due.After(l.DueDate) || due.Before(now) {
		return nil, fmt.Errorf("%w: %s must be after the current due date and not in the past",
			ErrInvalidDueDate, due.Format(time.RFC3339))
	}
	l.DueDate = due
	l.RenewalCount++
	if err := tx.SaveLending(ctx, l); err != nil {
		return nil, fmt.Errorf("save lending: %w", err)
	}
	return l, nil
}

func renewedEvent(p tenant.Principal, l *models.Lending, at time.Time) events.Event {
	return events.New(events.LendingRenewed, l.Scope(), l.ID, p.UserID, at, map[string]any{
		"dueDate":      l.DueDate,
		"renewalCount": l.RenewalCount,
	})
}
