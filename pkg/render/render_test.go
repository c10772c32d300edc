package render

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/wattline/wattline/pkg/energy"
	"github.com/wattline/wattline/pkg/history"
	"github.com/wattline/wattline/pkg/meter"
	"github.com/wattline/wattline/pkg/quota"
)

func fptr(v float64) *float64 { return &v }

func TestComposeFullLine(t *testing.T) {
	day := meter.TokenCounts{Input: 1000}
	periods := Periods{Week: day, Month: day}
	q := quota.Entry{FiveHour: fptr(41), SevenDay: fptr(12)}

	got := Compose("Opus", fptr(42.5), q, true, day, periods, energy.Defaults())
	want := "Opus | Ctx:42.5% | 5h:41% 7d:12% | D:1k ~500mWh | W:1k ~500mWh | M:1k ~500mWh"
	if got != want {
		t.Fatalf("unexpected line:\n got %q\nwant %q", got, want)
	}
}

func TestComposeOmitsOptionalSegments(t *testing.T) {
	var zero meter.TokenCounts
	got := Compose("?", nil, quota.Entry{}, false, zero, Periods{}, energy.Defaults())
	want := "? | D:0 ~0 | W:0 ~0 | M:0 ~0"
	if got != want {
		t.Fatalf("unexpected line:\n got %q\nwant %q", got, want)
	}
}

func TestComposeQuotaFiveHourOnly(t *testing.T) {
	q := quota.Entry{FiveHour: fptr(80.4)}
	got := Compose("m", nil, q, true, meter.TokenCounts{}, Periods{}, energy.Defaults())
	want := "m | 5h:80% | D:0 ~0 | W:0 ~0 | M:0 ~0"
	if got != want {
		t.Fatalf("unexpected line:\n got %q\nwant %q", got, want)
	}
}

func seedLedger(t *testing.T) *history.Ledger {
	t.Helper()
	l := history.New(filepath.Join(t.TempDir(), "history.jsonl"))
	entries := []history.Entry{
		{Date: "2026-01-31", Input: 1000, Output: 1000},
		{Date: "2026-02-10", Input: 100, Output: 40, CacheRead: 10},
		{Date: "2026-02-17", Input: 200, Output: 80, CacheWrite: 20},
	}
	for _, e := range entries {
		if err := l.Append(e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	return l
}

func TestPeriodTotalsWeekAndMonth(t *testing.T) {
	l := seedLedger(t)
	// Thursday; the week started Monday 2026-02-16.
	today := time.Date(2026, 2, 19, 10, 0, 0, 0, time.UTC)
	live := meter.TokenCounts{Input: 5, Output: 5}

	p, err := PeriodTotals(l, today, live)
	if err != nil {
		t.Fatalf("period totals: %v", err)
	}
	wantWeek := meter.TokenCounts{Input: 205, Output: 85, CacheWrite: 20}
	if p.Week != wantWeek {
		t.Fatalf("unexpected week totals: %+v", p.Week)
	}
	wantMonth := meter.TokenCounts{Input: 305, Output: 125, CacheRead: 10, CacheWrite: 20}
	if p.Month != wantMonth {
		t.Fatalf("unexpected month totals: %+v", p.Month)
	}
}

func TestPeriodTotalsOnMondayIsLiveOnly(t *testing.T) {
	l := seedLedger(t)
	today := time.Date(2026, 2, 16, 8, 0, 0, 0, time.UTC)
	live := meter.TokenCounts{Input: 7}

	p, err := PeriodTotals(l, today, live)
	if err != nil {
		t.Fatalf("period totals: %v", err)
	}
	if p.Week != live {
		t.Fatalf("expected week to hold only the live bucket, got %+v", p.Week)
	}
	// The month still reaches back to the 1st.
	if p.Month.Input != 107 {
		t.Fatalf("unexpected month input: %d", p.Month.Input)
	}
}
