// Package policy supplies the per-tenant lending rules.
package policy

import (
	"time"

	"github.com/shopspring/decimal"
)

// Policy is fetched once per request and passed explicitly to whoever needs it.
type Policy struct {
	LendingDurationDays  int             `json:"lendingDurationDays"`
	MaxRenewals          int             `json:"maxRenewals"`
	LatePenaltyPerDay    decimal.Decimal `json:"latePenaltyPerDay"`
	LostItemFee          decimal.Decimal `json:"lostItemFee"`
	DamagedItemFee       decimal.Decimal `json:"damagedItemFee"`
	MaxItemsPerUser      int             `json:"maxItemsPerUser"` // 0 = unlimited
	RequireApproval      bool            `json:"requireApproval"`
	AutoBlacklistEnabled bool            `json:"autoBlacklistEnabled"`
}

// Default is used for tenants that never stored a policy row.
func Default() Policy {
	return Policy{
		LendingDurationDays:  14,
		MaxRenewals:          2,
		LatePenaltyPerDay:    decimal.NewFromInt(1),
		LostItemFee:          decimal.NewFromInt(50),
		DamagedItemFee:       decimal.NewFromInt(20),
		MaxItemsPerUser:      5,
		RequireApproval:      false,
		AutoBlacklistEnabled: true,
	}
}

// LendingDuration is the default loan period.
func (p Policy) LendingDuration() time.Duration {
	return time.Duration(p.LendingDurationDays) * 24 * time.Hour
}
