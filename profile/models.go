package profile

import (
	"time"

	"github.com/xraph/rentledger/types"
)

// defaultBed is shown when a room is assigned without a bed letter.
const defaultBed = "A"

// Profile is the rent-relevant slice of a tenant's profile row. It is
// maintained by an administrative process; the ledger only reads it.
type Profile struct {
	types.Entity
	TenantID    string       `json:"tenant_id"`
	MonthlyRent *types.Money `json:"monthly_rent,omitempty"`
	RoomNumber  string       `json:"room_number,omitempty"`
	BedNumber   string       `json:"bed_number,omitempty"`
	JoiningDate *time.Time   `json:"joining_date,omitempty"`
}

// RentOrZero returns the assigned rent, or zero in currency when none is set.
func (p *Profile) RentOrZero(currency string) types.Money {
	if p == nil || p.MonthlyRent == nil {
		return types.Zero(currency)
	}
	return *p.MonthlyRent
}

// RoomLabel formats the room and bed as "<room>-<bed>", or "Not assigned".
func (p *Profile) RoomLabel() string {
	if p == nil || p.RoomNumber == "" {
		return "Not assigned"
	}
	bed := p.BedNumber
	if bed == "" {
		bed = defaultBed
	}
	return p.RoomNumber + "-" + bed
}
