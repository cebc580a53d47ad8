package store

import (
	"testing"
	"time"
)

func TestTodayFollowsLocation(t *testing.T) {
	prevNow, prevLoc := now, location
	t.Cleanup(func() { now, location = prevNow, prevLoc })

	// 23:30 UTC is already the next day in Ljubljana (UTC+2 in summer).
	now = func() time.Time { return time.Date(2024, 6, 1, 23, 30, 0, 0, time.UTC) }

	SetLocation(time.UTC)
	if got := today().String(); got != "2024-06-01" {
		t.Errorf("UTC: expected 2024-06-01, got %s", got)
	}

	SetLocation(time.FixedZone("CEST", 2*60*60))
	if got := today().String(); got != "2024-06-02" {
		t.Errorf("CEST: expected 2024-06-02, got %s", got)
	}

	SetLocation(nil)
	if location.String() != "CEST" {
		t.Errorf("nil location should be ignored, got %s", location)
	}
}
