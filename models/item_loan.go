// models/item_loan.go
package models

import (
	"time"

	"Gin_postgres_redis_lending_engine/tenant"

	"github.com/shopspring/decimal"
)

const LendingTable = "lsb_lendings"
const ItemTable = "lsb_items"

// Item is owned by catalog CRUD; only AvailableCount is written by the engine.
type Item struct {
	ID             string    `gorm:"type:uuid;primaryKey" json:"id"`
	OrgID          string    `gorm:"size:64;index;not null" json:"orgId"`
	InstanceID     string    `gorm:"size:64;index;not null;default:''" json:"instanceId,omitempty"`
	Name           string    `gorm:"size:200;not null" json:"name"`
	TotalCount     int       `gorm:"not null;default:1;check:chk_lsb_items_total,total_count >= 0" json:"totalCount"`
	AvailableCount int       `gorm:"not null;default:1;check:chk_lsb_items_available,available_count >= 0 AND available_count <= total_count" json:"availableCount"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func (it Item) Scope() tenant.Tenant { return tenant.Tenant{OrgID: it.OrgID, InstanceID: it.InstanceID} }

// LendingState is persisted; "overdue" is only ever derived.
type LendingState string

const (
	LendingActive   LendingState = "active"
	LendingReturned LendingState = "returned"
	LendingOverdue  LendingState = "overdue"
)

var lendingTransitions = map[LendingState][]LendingState{
	LendingActive: {LendingReturned},
}

// CanTransition reports whether the stored state may move from -> to.
func (from LendingState) CanTransition(to LendingState) bool {
	for _, next := range lendingTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Lending struct {
	ID         string       `gorm:"type:uuid;primaryKey" json:"id"`
	ItemID     string       `gorm:"type:uuid;index;not null" json:"itemId"`
	BorrowerID string       `gorm:"size:64;index;not null" json:"borrowerId"`
	OrgID      string       `gorm:"size:64;index;not null" json:"orgId"`
	InstanceID string       `gorm:"size:64;not null;default:''" json:"instanceId,omitempty"`
	State      LendingState `gorm:"size:20;index;not null;default:'active'" json:"state"`
	BorrowedAt time.Time    `gorm:"index;not null" json:"borrowedAt"`
	DueDate    time.Time    `gorm:"index;not null" json:"dueDate"`

	ReturnedAt      *time.Time `gorm:"index" json:"returnedAt,omitempty"`
	ReturnedBy      *string    `gorm:"size:64" json:"returnedBy,omitempty"`
	ReturnCondition string     `gorm:"size:20" json:"returnCondition,omitempty"`

	PenaltyAmount     decimal.NullDecimal `gorm:"type:numeric(12,2)" json:"penaltyAmount"`
	PenaltyReason     *string             `gorm:"size:255" json:"penaltyReason,omitempty"`
	PenaltyOverridden bool                `gorm:"not null;default:false" json:"penaltyOverridden"`

	RenewalCount      int     `gorm:"not null;default:0" json:"renewalCount"`
	ApprovalRequestID *string `gorm:"type:uuid" json:"approvalRequestId,omitempty"`

	Notes     string    `gorm:"size:255" json:"notes,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Item) TableName() string    { return ItemTable }
func (Lending) TableName() string { return LendingTable }

func (l Lending) Scope() tenant.Tenant { return tenant.Tenant{OrgID: l.OrgID, InstanceID: l.InstanceID} }

// StatusAt derives overdue from an active loan whose due date has passed.
func (l Lending) StatusAt(now time.Time) LendingState {
	if l.State == LendingActive && now.After(l.DueDate) {
		return LendingOverdue
	}
	return l.State
}
