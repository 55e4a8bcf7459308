// Package period computes billing-period keys.
//
// A billing period is a calendar month identified by a "YYYY-MM" key. Keys
// are computed in the caller's location, so a tenant paying just after local
// midnight on the 1st is attributed to the new month.
package period

import (
	"fmt"
	"time"
)

// layout is the Go reference layout for a Key.
const layout = "2006-01"

// Key is a canonical billing-period identifier such as "2026-10".
type Key string

// Clock returns the current instant. The zero Clock uses time.Now.
type Clock func() time.Time

// Of returns the key of the calendar month containing t, in t's location.
func Of(t time.Time) Key {
	return Key(t.Format(layout))
}

// Current returns the key of the current month in the local time zone.
func Current() Key {
	return Clock(nil).Current()
}

// DaysSince returns the whole days elapsed between instant and now. A nil
// instant or one in the future yields 0.
func DaysSince(instant *time.Time) int {
	return Clock(nil).DaysSince(instant)
}

// Now returns the clock's current instant. Injected clocks keep their own
// location.
func (c Clock) Now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}

// Current returns the key of the month containing c.Now().
func (c Clock) Current() Key {
	return Of(c.Now())
}

// DaysSince is the injectable form of DaysSince.
func (c Clock) DaysSince(instant *time.Time) int {
	if instant == nil {
		return 0
	}
	days := int(c.Now().Sub(*instant) / (24 * time.Hour))
	if days < 0 {
		return 0
	}
	return days
}

// Parse validates s as a "YYYY-MM" key.
func Parse(s string) (Key, error) {
	t, err := time.Parse(layout, s)
	if err != nil {
		return "", fmt.Errorf("period: parse %q: %w", s, err)
	}
	return Of(t), nil
}

// Start returns the first instant of the period in loc. It returns the zero
// time for a malformed key.
func (k Key) Start(loc *time.Location) time.Time {
	t, err := time.ParseInLocation(layout, string(k), loc)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Label returns the month heading shown to tenants, e.g. "October 2026".
func (k Key) Label() string {
	start := k.Start(time.UTC)
	if start.IsZero() {
		return string(k)
	}
	return start.Format("January 2006")
}

// String implements fmt.Stringer.
func (k Key) String() string { return string(k) }
