package models

import (
	"time"

	"Gin_postgres_redis_lending_engine/policy"

	"github.com/shopspring/decimal"
)

const PolicyTable = "lsb_tenant_policies"

// TenantPolicy rows are edited by the admin console; the engine only reads them.
// InstanceID "" holds the org-wide policy.
type TenantPolicy struct {
	OrgID                string          `gorm:"size:64;primaryKey"`
	InstanceID           string          `gorm:"size:64;primaryKey;default:''"`
	LendingDurationDays  int             `gorm:"not null"`
	MaxRenewals          int             `gorm:"not null"`
	LatePenaltyPerDay    decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	LostItemFee          decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	DamagedItemFee       decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	MaxItemsPerUser      int             `gorm:"not null"`
	RequireApproval      bool            `gorm:"not null"`
	AutoBlacklistEnabled bool            `gorm:"not null"`
	UpdatedAt            time.Time
}

func (TenantPolicy) TableName() string { return PolicyTable }

func (tp TenantPolicy) Policy() policy.Policy {
	return policy.Policy{
		LendingDurationDays:  tp.LendingDurationDays,
		MaxRenewals:          tp.MaxRenewals,
		LatePenaltyPerDay:    tp.LatePenaltyPerDay,
		LostItemFee:          tp.LostItemFee,
		DamagedItemFee:       tp.DamagedItemFee,
		MaxItemsPerUser:      tp.MaxItemsPerUser,
		RequireApproval:      tp.RequireApproval,
		AutoBlacklistEnabled: tp.AutoBlacklistEnabled,
	}
}
