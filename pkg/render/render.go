// Package render assembles the single status line from the live daily
// bucket, the history ledger roll-ups, and the cached quota view. It is
// a pure formatting layer: nothing here touches the store lock.
package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/wattline/wattline/pkg/energy"
	"github.com/wattline/wattline/pkg/history"
	"github.com/wattline/wattline/pkg/meter"
	"github.com/wattline/wattline/pkg/quota"
)

// Periods carries the week-to-date and month-to-date totals, live day
// included.
type Periods struct {
	Week  meter.TokenCounts
	Month meter.TokenCounts
}

// PeriodTotals sums ledger entries from Monday (resp. the 1st) through
// yesterday and overlays the live daily bucket on top. The live bucket
// is not in the ledger until it is sealed, so it is added separately.
func PeriodTotals(ledger *history.Ledger, today time.Time, live meter.TokenCounts) (Periods, error) {
	yesterday := today.AddDate(0, 0, -1).Format(meter.DateLayout)
	monday := today.AddDate(0, 0, -int((today.Weekday()+6)%7)).Format(meter.DateLayout)
	firstOfMonth := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location()).Format(meter.DateLayout)

	week, err := ledger.SumRange(monday, yesterday)
	if err != nil {
		return Periods{}, fmt.Errorf("sum week: %w", err)
	}
	month, err := ledger.SumRange(firstOfMonth, yesterday)
	if err != nil {
		return Periods{}, fmt.Errorf("sum month: %w", err)
	}

	p := Periods{Week: fromTotals(week), Month: fromTotals(month)}
	p.Week.Add(live)
	p.Month.Add(live)
	return p, nil
}

func fromTotals(t history.Totals) meter.TokenCounts {
	return meter.TokenCounts{Input: t.Input, Output: t.Output, CacheRead: t.CacheRead, CacheWrite: t.CacheWrite}
}

// Compose builds the one-line output: model | context | quota | daily |
// weekly | monthly. Optional segments are simply omitted.
func Compose(model string, ctxPct *float64, q quota.Entry, quotaOK bool, day meter.TokenCounts, periods Periods, consts energy.Constants) string {
	parts := []string{model}
	if ctxPct != nil {
		parts = append(parts, fmt.Sprintf("Ctx:%g%%", *ctxPct))
	}
	if quotaOK && q.FiveHour != nil {
		seg := fmt.Sprintf("5h:%.0f%%", *q.FiveHour)
		if q.SevenDay != nil {
			seg += fmt.Sprintf(" 7d:%.0f%%", *q.SevenDay)
		}
		parts = append(parts, seg)
	}
	parts = append(parts,
		bucketSegment("D", day, consts),
		bucketSegment("W", periods.Week, consts),
		bucketSegment("M", periods.Month, consts),
	)
	return strings.Join(parts, " | ")
}

func bucketSegment(label string, c meter.TokenCounts, consts energy.Constants) string {
	mwh := consts.EstimateMilliwattHours(c.Input, c.Output, c.CacheRead, c.CacheWrite)
	return fmt.Sprintf("%s:%s %s", label, energy.FormatTokens(c.Total()), energy.FormatEnergy(mwh))
}
