package models

import (
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/hvacops_backend/utils"
	"github.com/shopspring/decimal"
)

func TestComputeHoldbackAmount(t *testing.T) {
	cases := []struct {
		total   string
		percent string
		want    string
	}{
		{"10000", "10", "1000"},
		{"12500.00", "10", "1250"},
		{"999.99", "10", "100"},       // 99.999 rounds half up
		{"1234.56", "7.5", "92.59"},   // 92.592 rounds down
		{"100.05", "5", "5"},          // 5.0025 rounds down to 5.00
		{"0", "10", "0"},
		{"10000", "0", "0"},
	}
	for _, tc := range cases {
		total := decimal.RequireFromString(tc.total)
		percent := decimal.RequireFromString(tc.percent)
		got := ComputeHoldbackAmount(total, percent)
		if !got.Equal(decimal.RequireFromString(tc.want)) {
			t.Fatalf("ComputeHoldbackAmount(%s, %s) = %s, want %s", tc.total, tc.percent, got, tc.want)
		}
	}
}

func TestHoldbackEntry_MarkReleased(t *testing.T) {
	entry := &HoldbackEntry{JobId: "JOB-1", Status: HoldbackStatusHeld}
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if err := entry.MarkReleased(7, at); err != nil {
		t.Fatalf("first release failed: %v", err)
	}
	if entry.Status != HoldbackStatusReleased {
		t.Fatalf("status = %s, want released", entry.Status)
	}
	if entry.ReleaseBasis == nil || *entry.ReleaseBasis != ReleaseBasisGatePassed {
		t.Fatalf("release basis = %v, want gatePassed", entry.ReleaseBasis)
	}
	if entry.ReleasedAt == nil || !entry.ReleasedAt.Equal(at) {
		t.Fatalf("released at = %v, want %v", entry.ReleasedAt, at)
	}
	if entry.ReleasedBy == nil || *entry.ReleasedBy != 7 {
		t.Fatalf("released by = %v, want 7", entry.ReleasedBy)
	}

	// Terminal: a second transition of either kind must be rejected.
	if err := entry.MarkReleased(7, at); !utils.IsInvalidState(err) {
		t.Fatalf("second release: got %v, want invalid state", err)
	}
	if err := entry.MarkForceReleased(7, at); !utils.IsInvalidState(err) {
		t.Fatalf("force release after release: got %v, want invalid state", err)
	}
}

func TestHoldbackEntry_MarkForceReleased(t *testing.T) {
	entry := &HoldbackEntry{JobId: "JOB-2", Status: HoldbackStatusHeld}
	at := time.Now()

	if err := entry.MarkForceReleased(3, at); err != nil {
		t.Fatalf("force release failed: %v", err)
	}
	if entry.Status != HoldbackStatusForceReleased {
		t.Fatalf("status = %s, want forceReleased", entry.Status)
	}
	if entry.ReleaseBasis == nil || *entry.ReleaseBasis != ReleaseBasisOverride {
		t.Fatalf("release basis = %v, want override", entry.ReleaseBasis)
	}

	if err := entry.MarkForceReleased(3, at); !utils.IsInvalidState(err) {
		t.Fatalf("second force release: got %v, want invalid state", err)
	}
	if err := entry.MarkReleased(3, at); !utils.IsInvalidState(err) {
		t.Fatalf("release after force release: got %v, want invalid state", err)
	}
}

func TestHoldbackEntry_CanReleaseUnknownState(t *testing.T) {
	entry := &HoldbackEntry{JobId: "JOB-3", Status: HoldbackStatus("bogus")}
	if err := entry.CanRelease(); !utils.IsInvalidState(err) {
		t.Fatalf("unknown state: got %v, want invalid state", err)
	}
}
