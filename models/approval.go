package models

import (
	"time"

	"Gin_postgres_redis_lending_engine/tenant"

	"gorm.io/datatypes"
)

const ApprovalTable = "lsb_approval_requests"

type ApprovalType string

const (
	ApprovalLending     ApprovalType = "lending"
	ApprovalExtension   ApprovalType = "extension"
	ApprovalReservation ApprovalType = "reservation"
)

func (t ApprovalType) Valid() bool {
	switch t {
	case ApprovalLending, ApprovalExtension, ApprovalReservation:
		return true
	}
	return false
}

type ApprovalStatus string

const (
	ApprovalPending   ApprovalStatus = "PENDING"
	ApprovalApproved  ApprovalStatus = "APPROVED"
	ApprovalRejected  ApprovalStatus = "REJECTED"
	ApprovalCancelled ApprovalStatus = "CANCELLED"
)

var approvalTransitions = map[ApprovalStatus][]ApprovalStatus{
	ApprovalPending: {ApprovalApproved, ApprovalRejected, ApprovalCancelled},
}

func (from ApprovalStatus) CanTransition(to ApprovalStatus) bool {
	for _, next := range approvalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ApprovalRequestData is the snapshot of what the requester asked for.
type ApprovalRequestData struct {
	DueDate  *time.Time `json:"dueDate,omitempty"`
	Notes    string     `json:"notes,omitempty"`
	Quantity int        `json:"quantity"`
}

type ApprovalRequest struct {
	ID          string         `gorm:"type:uuid;primaryKey" json:"id"`
	ItemID      string         `gorm:"type:uuid;index;not null" json:"itemId"`
	LendingID   *string        `gorm:"type:uuid;index" json:"lendingId,omitempty"` // extension only
	RequesterID string         `gorm:"size:64;index;not null" json:"requesterId"`
	OrgID       string         `gorm:"size:64;index;not null" json:"orgId"`
	InstanceID  string         `gorm:"size:64;not null;default:''" json:"instanceId,omitempty"`
	Type        ApprovalType   `gorm:"size:20;not null" json:"type"`
	Status      ApprovalStatus `gorm:"size:20;index;not null;default:'PENDING'" json:"status"`

	RequestData datatypes.JSONType[ApprovalRequestData] `gorm:"type:jsonb;not null" json:"requestData"`

	ApproverID    *string    `gorm:"size:64" json:"approverId,omitempty"`
	ApproverNotes *string    `gorm:"type:text" json:"approverNotes,omitempty"`
	DecidedAt     *time.Time `json:"decidedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

func (ApprovalRequest) TableName() string { return ApprovalTable }

func (a ApprovalRequest) Scope() tenant.Tenant {
	return tenant.Tenant{OrgID: a.OrgID, InstanceID: a.InstanceID}
}
