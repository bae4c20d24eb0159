package models

import (
	"time"

	"Gin_postgres_redis_lending_engine/tenant"
)

const BlacklistTable = "lsb_blacklist"

type BlacklistSource string

const (
	BlacklistAuto   BlacklistSource = "auto"
	BlacklistManual BlacklistSource = "manual"
)

type BlacklistEntry struct {
	ID           string          `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       string          `gorm:"size:64;index;not null" json:"userId"`
	OrgID        string          `gorm:"size:64;index;not null" json:"orgId"`
	InstanceID   string          `gorm:"size:64;not null;default:''" json:"instanceId,omitempty"`
	Reason       string          `gorm:"size:255;not null" json:"reason"`
	Source       BlacklistSource `gorm:"size:20;not null" json:"source"`
	LendingID    *string         `gorm:"type:uuid" json:"lendingId,omitempty"`
	CreatedBy    string          `gorm:"size:64" json:"createdBy,omitempty"`
	BlockedUntil time.Time       `gorm:"index;not null" json:"blockedUntil"`
	IsActive     bool            `gorm:"not null;default:true" json:"isActive"`
	OverriddenBy *string         `gorm:"size:64" json:"overriddenBy,omitempty"`
	OverriddenAt *time.Time      `json:"overriddenAt,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

func (BlacklistEntry) TableName() string { return BlacklistTable }

func (b BlacklistEntry) Scope() tenant.Tenant {
	return tenant.Tenant{OrgID: b.OrgID, InstanceID: b.InstanceID}
}

// BlocksAt is the lazy expiry check: the flag alone is not enough.
func (b BlacklistEntry) BlocksAt(now time.Time) bool {
	return b.IsActive && b.BlockedUntil.After(now)
}
