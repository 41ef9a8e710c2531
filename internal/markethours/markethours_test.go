package markethours

import (
	"testing"
	"time"
)

func TestIsMarketOpen(t *testing.T) {
	cases := []struct {
		ts   time.Time
		open bool
	}{
		{monday(9, 14, 59), false},
		{monday(9, 15, 0), true},
		{monday(15, 29, 59), true},
		{monday(15, 30, 0), false},
		{time.Date(2026, 3, 7, 11, 0, 0, 0, IST), false},  // Saturday
		{time.Date(2026, 4, 14, 11, 0, 0, 0, IST), false}, // Ambedkar Jayanti
		{time.Date(2025, 4, 18, 11, 0, 0, 0, IST), false}, // Good Friday 2025
	}
	for _, tc := range cases {
		if got := IsMarketOpen(tc.ts); got != tc.open {
			t.Errorf("%s: open=%v, want %v", tc.ts, got, tc.open)
		}
	}
}

func TestNextOpen_SkipsWeekendAndHoliday(t *testing.T) {
	// Thursday 2026-04-09 after close; Friday 04-10 is Good Friday.
	thu := time.Date(2026, 4, 9, 16, 0, 0, 0, IST)
	want := time.Date(2026, 4, 13, 9, 15, 0, 0, IST)
	if got := NextOpen(thu); !got.Equal(want) {
		t.Errorf("NextOpen=%v, want %v", got, want)
	}
	if got := NextOpen(monday(8, 0, 0)); !got.Equal(monday(9, 15, 0)) {
		t.Errorf("before open today: %v", got)
	}
	if got := NextPreOpen(monday(8, 0, 0)); !got.Equal(monday(9, 10, 0)) {
		t.Errorf("NextPreOpen=%v", got)
	}
}

func TestAddHolidays(t *testing.T) {
	day := time.Date(2026, 3, 3, 10, 0, 0, 0, IST)
	if IsHoliday(day) {
		t.Fatal("precondition: 2026-03-03 is a trading day")
	}
	if bad := AddHolidays("2026-03-03", "not-a-date"); len(bad) != 1 || bad[0] != "not-a-date" {
		t.Errorf("bad=%v", bad)
	}
	if !IsHoliday(day) {
		t.Error("added holiday not registered")
	}
}

func TestSessionOpenAndKey(t *testing.T) {
	// 20:00 UTC on Mar 1 is 01:30 IST on Mar 2
	ts := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	if SessionKey(ts) != "2026-03-02" {
		t.Errorf("SessionKey=%s", SessionKey(ts))
	}
	if got := SessionOpen(ts); !got.Equal(monday(9, 15, 0)) {
		t.Errorf("SessionOpen=%v", got)
	}
}
