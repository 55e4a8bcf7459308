// Package status derives rent settlement state from a payment snapshot.
package status

import (
	"strings"

	"github.com/xraph/rentledger/payment"
	"github.com/xraph/rentledger/period"
	"github.com/xraph/rentledger/types"
)

// Summary is the derived state shown on every ledger screen.
type Summary struct {
	// Settled is true when at least one completed payment is attributed to
	// the current period.
	Settled bool `json:"settled"`

	// LifetimeTotal sums every completed payment in the ledger currency.
	LifetimeTotal types.Money `json:"lifetime_total"`

	CompletedCount int `json:"completed_count"`
	PendingCount   int `json:"pending_count"`
	FailedCount    int `json:"failed_count"`

	// Skipped counts completed payments left out of LifetimeTotal because
	// they are in another currency.
	Skipped int `json:"skipped,omitempty"`
}

// Derive computes a Summary. It is pure: the result depends only on its
// arguments and not on the order of payments.
func Derive(current period.Key, currency string, payments []*payment.Payment) Summary {
	currency = strings.ToLower(currency)
	s := Summary{LifetimeTotal: types.Zero(currency)}

	for _, p := range payments {
		if p == nil {
			continue
		}
		switch p.Status {
		case payment.StatusPending:
			s.PendingCount++
			continue
		case payment.StatusFailed:
			s.FailedCount++
			continue
		case payment.StatusCompleted:
		default:
			continue
		}

		s.CompletedCount++
		if p.PeriodKey == current {
			s.Settled = true
		}
		if !strings.EqualFold(p.Amount.Currency, currency) {
			s.Skipped++
			continue
		}
		s.LifetimeTotal.Amount += p.Amount.Amount
	}

	return s
}

// Settled reports whether payments settle the current period.
func Settled(current period.Key, payments []*payment.Payment) bool {
	for _, p := range payments {
		if p != nil && p.Status == payment.StatusCompleted && p.PeriodKey == current {
			return true
		}
	}
	return false
}
