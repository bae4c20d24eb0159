// Package penalty derives the fee and suspension owed for a returned loan.
package penalty

import (
	"fmt"
	"strings"
	"time"

	"Gin_postgres_redis_lending_engine/policy"

	"github.com/shopspring/decimal"
)

const (
	lateBlacklistDaysPerDay = 3
	maxLateBlacklistDays    = 30
	lostBlacklistDays       = 30
	damagedBlacklistDays    = 14
)

// Condition is what staff declare about the item at return time.
type Condition string

const (
	ConditionGood    Condition = "good"
	ConditionDamaged Condition = "damaged"
	ConditionLost    Condition = "lost"
)

// ParseCondition accepts "" as good.
func ParseCondition(s string) (Condition, error) {
	switch c := Condition(strings.ToLower(strings.TrimSpace(s))); c {
	case "", ConditionGood:
		return ConditionGood, nil
	case ConditionDamaged, ConditionLost:
		return c, nil
	}
	return "", fmt.Errorf("unknown item condition %q", s)
}

type Kind string

const (
	KindNone    Kind = "none"
	KindLate    Kind = "late"
	KindDamaged Kind = "damaged"
	KindLost    Kind = "lost"
)

type Result struct {
	Kind          Kind            `json:"kind"`
	DaysLate      int             `json:"daysLate"`
	Amount        decimal.Decimal `json:"amount"`
	BlacklistDays int             `json:"blacklistDays"`
	Reason        string          `json:"reason,omitempty"`
}

// HasPenalty reports whether anything is owed or a suspension applies.
func (r Result) HasPenalty() bool { return r.Kind != KindNone }

// DaysLate counts whole days past due; early or on-time returns are 0.
func DaysLate(dueDate, returnedAt time.Time) int {
	if !returnedAt.After(dueDate) {
		return 0
	}
	return int(returnedAt.Sub(dueDate) / (24 * time.Hour))
}

// Calculate has no side effects. Lost beats damaged beats late.
func Calculate(dueDate, returnedAt time.Time, cond Condition, p policy.Policy) Result {
	daysLate := DaysLate(dueDate, returnedAt)

	switch cond {
	case ConditionLost:
		return Result{
			Kind:          KindLost,
			DaysLate:      daysLate,
			Amount:        p.LostItemFee,
			BlacklistDays: lostBlacklistDays,
			Reason:        "item lost",
		}
	case ConditionDamaged:
		return Result{
			Kind:          KindDamaged,
			DaysLate:      daysLate,
			Amount:        p.DamagedItemFee,
			BlacklistDays: damagedBlacklistDays,
			Reason:        "item damaged",
		}
	}

	if daysLate == 0 {
		return Result{Kind: KindNone, Amount: decimal.Zero}
	}
	return Result{
		Kind:          KindLate,
		DaysLate:      daysLate,
		Amount:        p.LatePenaltyPerDay.Mul(decimal.NewFromInt(int64(daysLate))),
		BlacklistDays: min(daysLate*lateBlacklistDaysPerDay, maxLateBlacklistDays),
		Reason:        fmt.Sprintf("returned %d day(s) late", daysLate),
	}
}
