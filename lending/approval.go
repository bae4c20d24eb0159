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
	"gorm.io/datatypes"
)

type SubmitInput struct {
	Type      models.ApprovalType // defaults to lending
	ItemID    string              // lending and reservation
	LendingID string              // extension
	DueDate   time.Time
	Notes     string
	Quantity  int // defaults to 1
}

// SubmitResult holds either the pending request or, when the tenant does not
// require approval, what was executed right away.
type SubmitResult struct {
	Approval *models.ApprovalRequest
	Lendings []models.Lending
}

func (r SubmitResult) Pending() bool { return r.Approval != nil }

type DecisionResult struct {
	Approval *models.ApprovalRequest
	Lendings []models.Lending // created or renewed by an approval
}

// Submit is the approval gate. Without requireApproval the requested action
// runs immediately and no request is stored.
func (e *Engine) Submit(ctx context.Context, p tenant.Principal, in SubmitInput) (*SubmitResult, error) {
	if in.Type == "" {
		in.Type = models.ApprovalLending
	}
	if !in.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown request type %q", ErrInvalidInput, in.Type)
	}
	if in.Quantity == 0 || in.Type == models.ApprovalExtension {
		in.Quantity = 1
	}
	if in.Quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	var (
		scope  tenant.Tenant
		itemID string
	)
	if in.Type == models.ApprovalExtension {
		if in.LendingID == "" {
			return nil, fmt.Errorf("%w: lendingId is required for an extension", ErrInvalidInput)
		}
		l, err := e.GetLending(ctx, p, in.LendingID)
		if err != nil {
			return nil, err
		}
		if l.State != models.LendingActive {
			return nil, ErrAlreadyReturned
		}
		scope, itemID = l.Scope(), l.ItemID
	} else {
		if in.ItemID == "" {
			return nil, fmt.Errorf("%w: itemId is required", ErrInvalidInput)
		}
		item, err := e.store.FindItemByID(ctx, in.ItemID)
		if err != nil {
			return nil, err
		}
		if err := tenant.Guard(p, item.Scope()); err != nil {
			return nil, err
		}
		scope, itemID = item.Scope(), item.ID
	}

	pol, err := e.policies.Get(ctx, scope)
	if err != nil {
		return nil, err
	}
	now := e.clock()
	if !pol.RequireApproval {
		return e.bypass(ctx, p, scope, pol, in, now)
	}

	if err := e.checkNotBlacklisted(ctx, e.store, scope, p.UserID, now); err != nil {
		return nil, err
	}
	if !in.DueDate.IsZero() && in.DueDate.Before(now) {
		return nil, fmt.Errorf("%w: %s is in the past", ErrInvalidDueDate, in.DueDate.Format(time.RFC3339))
	}

	data := models.ApprovalRequestData{Notes: in.Notes, Quantity: in.Quantity}
	if !in.DueDate.IsZero() {
		due := in.DueDate.UTC()
		data.DueDate = &due
	}
	a := &models.ApprovalRequest{
		ID:          uuid.NewString(),
		ItemID:      itemID,
		RequesterID: p.UserID,
		OrgID:       scope.OrgID,
		InstanceID:  scope.InstanceID,
		Type:        in.Type,
		Status:      models.ApprovalPending,
		RequestData: datatypes.NewJSONType(data),
	}
	if in.Type == models.ApprovalExtension {
		lendingID := in.LendingID
		a.LendingID = &lendingID
	}
	if err := e.store.CreateApproval(ctx, a); err != nil {
		return nil, fmt.Errorf("create approval request: %w", err)
	}

	e.publish(ctx, events.New(events.ApprovalSubmitted, scope, a.ID, p.UserID, now, map[string]any{
		"type":   a.Type,
		"itemId": a.ItemID,
	}))
	return &SubmitResult{Approval: a}, nil
}

func (e *Engine) bypass(ctx context.Context, p tenant.Principal, scope tenant.Tenant, pol policy.Policy, in SubmitInput, now time.Time) (*SubmitResult, error) {
	if in.Type == models.ApprovalExtension {
		var l *models.Lending
		err := e.store.Transaction(ctx, func(tx db.Store) error {
			var err error
			l, err = e.renewTx(ctx, tx, p, in.LendingID, in.DueDate, pol, now)
			return err
		})
		if err != nil {
			return nil, err
		}
		e.publish(ctx, renewedEvent(p, l, now))
		return &SubmitResult{Lendings: []models.Lending{*l}}, nil
	}

	var out []models.Lending
	err := e.store.Transaction(ctx, func(tx db.Store) error {
		var err error
		out, err = e.checkoutTx(ctx, tx, p, scope, pol, checkoutOrder{
			itemID:     in.ItemID,
			borrowerID: p.UserID,
			dueDate:    in.DueDate,
			notes:      in.Notes,
			quantity:   in.Quantity,
		}, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.publish(ctx, checkedOutEvents(p, out, now)...)
	return &SubmitResult{Lendings: out}, nil
}

// Decide approves or rejects a pending request. Approving runs the requested
// checkout or renewal in the same transaction; if that fails nothing changes
// and the request stays pending.
func (e *Engine) Decide(ctx context.Context, p tenant.Principal, requestID string, decision models.ApprovalStatus, notes string) (*DecisionResult, error) {
	if !p.IsStaff() {
		return nil, ErrUnauthorized
	}
	if decision != models.ApprovalApproved && decision != models.ApprovalRejected {
		return nil, fmt.Errorf("%w: decision must be %s or %s", ErrInvalidInput, models.ApprovalApproved, models.ApprovalRejected)
	}

	current, err := e.store.FindApprovalByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := tenant.Guard(p, current.Scope()); err != nil {
		return nil, err
	}
	pol, err := e.policies.Get(ctx, current.Scope())
	if err != nil {
		return nil, err
	}

	now := e.clock()
	var res DecisionResult
	err = e.store.Transaction(ctx, func(tx db.Store) error {
		res = DecisionResult{}
		// 锁住申请, 并发审批只有一个能通过
		a, err := tx.LockApproval(ctx, requestID)
		if err != nil {
			return err
		}
		if !a.Status.CanTransition(decision) {
			return fmt.Errorf("%w: request is %s", ErrInvalidTransition, a.Status)
		}

		if decision == models.ApprovalApproved {
			data := a.RequestData.Data()
			var due time.Time
			if data.DueDate != nil {
				due = *data.DueDate
			}
			if a.Type == models.ApprovalExtension {
				if a.LendingID == nil {
					return fmt.Errorf("%w: extension request without lending", ErrInvalidInput)
				}
				l, err := e.renewTx(ctx, tx, p, *a.LendingID, due, pol, now)
				if err != nil {
					return err
				}
				res.Lendings = []models.Lending{*l}
			} else {
				res.Lendings, err = e.checkoutTx(ctx, tx, p, a.Scope(), pol, checkoutOrder{
					itemID:     a.ItemID,
					borrowerID: a.RequesterID,
					dueDate:    due,
					notes:      data.Notes,
					quantity:   max(data.Quantity, 1),
					approvalID: &a.ID,
				}, now)
				if err != nil {
					return err
				}
			}
		}

		a.Status = decision
		a.ApproverID = &p.UserID
		if notes != "" {
			a.ApproverNotes = &notes
		}
		a.DecidedAt = &now
		if err := tx.SaveApproval(ctx, a); err != nil {
			return fmt.Errorf("save approval request: %w", err)
		}
		res.Approval = a
		return nil
	})
	if err != nil {
		e.log.Debug("approval decision rolled back",
			zap.String("request_id", requestID),
			zap.String("decision", string(decision)),
			zap.Error(err))
		return nil, err
	}

	evs := []events.Event{events.New(events.ApprovalDecided, res.Approval.Scope(), requestID, p.UserID, now, map[string]any{
		"status":      res.Approval.Status,
		"requesterId": res.Approval.RequesterID,
	})}
	if res.Approval.Type == models.ApprovalExtension {
		for i := range res.Lendings {
			evs = append(evs, renewedEvent(p, &res.Lendings[i], now))
		}
	} else {
		evs = append(evs, checkedOutEvents(p, res.Lendings, now)...)
	}
	e.publish(ctx, evs...)
	return &res, nil
}

// Cancel withdraws a pending request; only its requester may do so.
func (e *Engine) Cancel(ctx context.Context, p tenant.Principal, requestID string) (*models.ApprovalRequest, error) {
	now := e.clock()
	var out *models.ApprovalRequest
	err := e.store.Transaction(ctx, func(tx db.Store) error {
		a, err := tx.LockApproval(ctx, requestID)
		if err != nil {
			return err
		}
		if err := tenant.Guard(p, a.Scope()); err != nil {
			return err
		}
		if a.RequesterID != p.UserID {
			return ErrUnauthorized
		}
		if !a.Status.CanTransition(models.ApprovalCancelled) {
			return fmt.Errorf("%w: request is %s", ErrInvalidTransition, a.Status)
		}
		a.Status = models.ApprovalCancelled
		a.DecidedAt = &now
		if err := tx.SaveApproval(ctx, a); err != nil {
			return fmt.Errorf("save approval request: %w", err)
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.publish(ctx, events.New(events.ApprovalCancelled, out.Scope(), out.ID, p.UserID, now, nil))
	return out, nil
}
