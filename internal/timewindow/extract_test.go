package timewindow

import (
	"testing"
	"time"
)

func fixedNow(t *testing.T) time.Time {
	t.Helper()
	// A mid-month reference keeps "this month" and "since <date>" stable.
	return time.Date(2025, time.June, 18, 12, 0, 0, 0, time.UTC)
}

func TestExtractDaysResolved(t *testing.T) {
	now := fixedNow(t)

	cases := []struct {
		text string
		want int
	}{
		{"last 2 weeks", 14},
		{"lats 15 dyas", 15},
		{"past month", 30},
		{"previous 3 months", 90},
		{"last year", 365},
		{"show expenses for the last twenty one days", 21},
		{"LAST WEEK", 7},
		{"last-week", 7},
		{"3 days ago", 3},
		{"two weeks ago", 14},
		{"twenty one days ago", 21},
		{"thirty five days ago", 35},
		{"since june 1", 17},
		{"since march 3", 107},
		{"fortnight", 14},
		{"last fortnight", 14},
		{"yesterday", 1},
		{"this week", 7},
		{"this month", 17},
	}

	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			got, ok := ExtractDays(tc.text, now)
			if !ok {
				t.Fatalf("ExtractDays(%q) unresolved, want %d", tc.text, tc.want)
			}
			if got != tc.want {
				t.Fatalf("ExtractDays(%q) = %d, want %d", tc.text, got, tc.want)
			}
		})
	}
}

func TestExtractDaysUnresolved(t *testing.T) {
	now := fixedNow(t)

	cases := []string{
		"",
		"   ",
		"hello",
		"what's my budget",
		"save more money",
		"??",
	}

	for _, text := range cases {
		t.Run(text, func(t *testing.T) {
			if got, ok := ExtractDays(text, now); ok {
				t.Fatalf("ExtractDays(%q) = %d, want unresolved", text, got)
			}
		})
	}
}

func TestExtractDaysThisMonthFloorsAtOne(t *testing.T) {
	firstOfMonth := time.Date(2025, time.June, 1, 8, 0, 0, 0, time.UTC)
	got, ok := ExtractDays("this month", firstOfMonth)
	if !ok || got != 1 {
		t.Fatalf("ExtractDays on the 1st = (%d, %v), want (1, true)", got, ok)
	}
}

func TestExtractDaysSinceFutureDateWrapsYear(t *testing.T) {
	now := fixedNow(t) // June 2025
	got, ok := ExtractDays("since december 1", now)
	if !ok {
		t.Fatal("expected resolution for a wrapped year")
	}
	// December 1 is ahead of June, so the previous year's December applies.
	if got < 190 || got > 210 {
		t.Fatalf("days = %d, want roughly 199", got)
	}
}

func TestOSADistance(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"last", "last", 0},
		{"lats", "last", 1},
		{"dya", "day", 1},
		{"week", "wek", 1},
		{"month", "monht", 1},
		{"hello", "last", 5},
	}

	for _, tc := range cases {
		if got := osaDistance(tc.a, tc.b); got != tc.want {
			t.Fatalf("osaDistance(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}
