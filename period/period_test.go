package period_test

import (
	"testing"
	"time"

	"github.com/xraph/rentledger/period"
)

func fixed(t time.Time) period.Clock {
	return func() time.Time { return t }
}

func TestOf(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)

	tests := []struct {
		name string
		in   time.Time
		want period.Key
	}{
		{"mid month", time.Date(2026, time.October, 14, 10, 0, 0, 0, time.UTC), "2026-10"},
		{"january pads", time.Date(2027, time.January, 1, 0, 0, 0, 0, time.UTC), "2027-01"},
		{"local zone rolls over", time.Date(2026, time.October, 31, 20, 0, 0, 0, time.UTC).In(ist), "2026-11"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := period.Of(tt.in); got != tt.want {
				t.Errorf("Of(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCurrentMatchesNow(t *testing.T) {
	before := period.Of(time.Now())
	got := period.Current()
	after := period.Of(time.Now())
	if got != before && got != after {
		t.Errorf("Current() = %q, want %q or %q", got, before, after)
	}
}

func TestDaysSince(t *testing.T) {
	now := time.Date(2026, time.October, 14, 12, 0, 0, 0, time.UTC)
	clock := fixed(now)

	joined := time.Date(2026, time.October, 4, 18, 0, 0, 0, time.UTC)
	future := now.Add(72 * time.Hour)

	tests := []struct {
		name    string
		instant *time.Time
		want    int
	}{
		{"absent", nil, 0},
		{"partial days truncate", &joined, 9},
		{"same instant", &now, 0},
		{"future clamps", &future, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := clock.DaysSince(tt.instant); got != tt.want {
				t.Errorf("DaysSince = %d, want %d", got, tt.want)
			}
		})
	}

	if got := period.DaysSince(nil); got != 0 {
		t.Errorf("package DaysSince(nil) = %d, want 0", got)
	}
}

func TestParseAndLabel(t *testing.T) {
	k, err := period.Parse("2026-10")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if k.Label() != "October 2026" {
		t.Errorf("Label = %q", k.Label())
	}
	if start := k.Start(time.UTC); !start.Equal(time.Date(2026, time.October, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Start = %v", start)
	}

	for _, bad := range []string{"", "2026-13", "10-2026", "2026/10"} {
		if _, err := period.Parse(bad); err == nil {
			t.Errorf("Parse(%q) expected error", bad)
		}
	}
}
