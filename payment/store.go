package payment

// ListOpts narrows a ledger query. Zero values mean "any".
type ListOpts struct {
	PeriodKey string
	Status    Status
	Limit     int
}

// Matches reports whether p passes the filter (Limit is not considered).
func (o ListOpts) Matches(p *Payment) bool {
	if o.PeriodKey != "" && string(p.PeriodKey) != o.PeriodKey {
		return false
	}
	if o.Status != "" && p.Status != o.Status {
		return false
	}
	return true
}
