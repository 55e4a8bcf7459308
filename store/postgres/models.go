package postgres

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/rentledger/id"
	"github.com/xraph/rentledger/payment"
	"github.com/xraph/rentledger/period"
	"github.com/xraph/rentledger/profile"
	"github.com/xraph/rentledger/types"
)

// ==================== Profile models ====================

type profileModel struct {
	grove.BaseModel `grove:"table:rentledger_profiles"`

	TenantID    string     `grove:"tenant_id,pk"`
	MonthlyRent *int64     `grove:"monthly_rent"`
	Currency    string     `grove:"currency"`
	RoomNumber  string     `grove:"room_number"`
	BedNumber   string     `grove:"bed_number"`
	JoiningDate *time.Time `grove:"joining_date"`
	CreatedAt   time.Time  `grove:"created_at"`
	UpdatedAt   time.Time  `grove:"updated_at"`
}

func toProfileModel(p *profile.Profile) *profileModel {
	m := &profileModel{
		TenantID:    p.TenantID,
		RoomNumber:  p.RoomNumber,
		BedNumber:   p.BedNumber,
		JoiningDate: p.JoiningDate,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	if p.MonthlyRent != nil {
		amount := p.MonthlyRent.Amount
		m.MonthlyRent = &amount
		m.Currency = p.MonthlyRent.Currency
	}
	return m
}

func fromProfileModel(m *profileModel) *profile.Profile {
	p := &profile.Profile{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		TenantID:    m.TenantID,
		RoomNumber:  m.RoomNumber,
		BedNumber:   m.BedNumber,
		JoiningDate: m.JoiningDate,
	}
	if m.MonthlyRent != nil {
		rent := types.Money{Amount: *m.MonthlyRent, Currency: m.Currency}
		p.MonthlyRent = &rent
	}
	return p
}

// ==================== Payment models ====================

type paymentModel struct {
	grove.BaseModel `grove:"table:rentledger_payments"`

	ID             string    `grove:"id,pk"`
	TenantID       string    `grove:"tenant_id"`
	Amount         int64     `grove:"amount"`
	Currency       string    `grove:"currency"`
	PaymentDate    time.Time `grove:"payment_date"`
	PaymentMethod  string    `grove:"payment_method"`
	PeriodKey      string    `grove:"period_key"`
	Status         string    `grove:"status"`
	TransactionRef string    `grove:"transaction_ref"`
}

func toPaymentModel(p *payment.Payment) *paymentModel {
	return &paymentModel{
		ID:             p.ID.String(),
		TenantID:       p.TenantID,
		Amount:         p.Amount.Amount,
		Currency:       p.Amount.Currency,
		PaymentDate:    p.PaymentDate,
		PaymentMethod:  p.Method,
		PeriodKey:      string(p.PeriodKey),
		Status:         string(p.Status),
		TransactionRef: p.TransactionRef.String(),
	}
}

func fromPaymentModel(m *paymentModel) (*payment.Payment, error) {
	paymentID, err := id.ParsePaymentID(m.ID)
	if err != nil {
		return nil, err
	}
	txnRef, err := id.ParseTransactionID(m.TransactionRef)
	if err != nil {
		return nil, err
	}

	return &payment.Payment{
		ID:             paymentID,
		TenantID:       m.TenantID,
		Amount:         types.Money{Amount: m.Amount, Currency: m.Currency},
		PaymentDate:    m.PaymentDate,
		Method:         m.PaymentMethod,
		PeriodKey:      period.Key(m.PeriodKey),
		Status:         payment.Status(m.Status),
		TransactionRef: txnRef,
	}, nil
}
