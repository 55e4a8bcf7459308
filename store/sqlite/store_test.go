package sqlite

import (
	"testing"
	"time"

	"github.com/xraph/rentledger/profile"
	"github.com/xraph/rentledger/types"
)

func TestStampProfileLeavesCallerUntouched(t *testing.T) {
	at := time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)
	created := at.Add(-24 * time.Hour)

	tests := []struct {
		name        string
		in          profile.Profile
		wantCreated time.Time
	}{
		{"new profile", profile.Profile{TenantID: "tenant-1"}, at},
		{"existing profile", profile.Profile{TenantID: "tenant-1", Entity: types.Entity{CreatedAt: created}}, created},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := tt.in
			got := stampProfile(&in, at)
			if !got.CreatedAt.Equal(tt.wantCreated) || !got.UpdatedAt.Equal(at) {
				t.Fatalf("stamped = created %v, updated %v", got.CreatedAt, got.UpdatedAt)
			}
			if in != tt.in {
				t.Fatalf("caller profile modified: %+v", in)
			}
		})
	}
}
