package payment

import (
	"time"

	"github.com/xraph/rentledger/id"
	"github.com/xraph/rentledger/period"
	"github.com/xraph/rentledger/types"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// Payment methods offered by the portal. The set is open; stores accept any
// non-empty method string.
const (
	MethodUPI        = "UPI"
	MethodCard       = "Card"
	MethodNetBanking = "Net Banking"
)

// Payment is an immutable ledger record. ID and PaymentDate are assigned by
// the store at insert time.
type Payment struct {
	ID             id.PaymentID     `json:"id"`
	TenantID       string           `json:"tenant_id"`
	Amount         types.Money      `json:"amount"`
	PaymentDate    time.Time        `json:"payment_date"`
	Method         string           `json:"payment_method"`
	PeriodKey      period.Key       `json:"period_key"`
	Status         Status           `json:"status"`
	TransactionRef id.TransactionID `json:"transaction_reference"`
}

// Draft is a payment awaiting insertion.
type Draft struct {
	TenantID       string
	Amount         types.Money
	Method         string
	PeriodKey      period.Key
	Status         Status
	TransactionRef id.TransactionID
}

// Record materializes a draft with store-assigned fields.
func (d *Draft) Record(paymentID id.PaymentID, paidAt time.Time) *Payment {
	return &Payment{
		ID:             paymentID,
		TenantID:       d.TenantID,
		Amount:         d.Amount,
		PaymentDate:    paidAt,
		Method:         d.Method,
		PeriodKey:      d.PeriodKey,
		Status:         d.Status,
		TransactionRef: d.TransactionRef,
	}
}
