package binding

import (
	"github.com/xraph/rentledger/payment"
	"github.com/xraph/rentledger/period"
)

// Preset selects what a view fetches and which derived fields it fills.
type Preset struct {
	// Name identifies the preset in logs and plugin events.
	Name string

	// Filter builds the payment query for the current period.
	Filter func(current period.Key) payment.ListOpts

	// Stats adds the room label, joining date and days stayed.
	Stats bool
}

// RentStatus backs the dashboard rent card: completed payments for the
// current period only. Its views carry no lifetime total; use QuickStats or
// PaymentsPage for that.
func RentStatus() Preset {
	return Preset{
		Name: "rent_status",
		Filter: func(current period.Key) payment.ListOpts {
			return payment.ListOpts{PeriodKey: string(current), Status: payment.StatusCompleted}
		},
	}
}

// PaymentsPage backs the payment history screen: the full ledger.
func PaymentsPage() Preset {
	return Preset{
		Name: "payments_page",
		Filter: func(period.Key) payment.ListOpts {
			return payment.ListOpts{}
		},
	}
}

// QuickStats backs the dashboard stats strip.
func QuickStats() Preset {
	return Preset{
		Name: "quick_stats",
		Filter: func(period.Key) payment.ListOpts {
			return payment.ListOpts{Status: payment.StatusCompleted}
		},
		Stats: true,
	}
}

func (p Preset) filter(current period.Key) payment.ListOpts {
	if p.Filter == nil {
		return payment.ListOpts{}
	}
	return p.Filter(current)
}
