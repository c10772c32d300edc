// Package energy turns token counts into order-of-magnitude energy
// estimates. The constants are derived estimates (mWh per 1,000 tokens),
// not measurements, so output is deliberately coarse: values snap to
// 1/2/5 per decade and carry a "~" prefix.
package energy

import (
	"fmt"
	"math"
)

// Mid estimates, mWh per 1k tokens. Fresh input anchors on long-context
// prefill; cache reads skip prefill entirely (just KV cache loading), so
// their discount is physics-derived rather than pricing-derived.
const (
	FreshInputPer1K = 390
	OutputPer1K     = 1400
	CacheReadPer1K  = 15
	CacheWritePer1K = 490
)

// Constants holds the per-1k-token estimates in mWh. The zero value is
// not useful; start from Defaults and override selectively.
type Constants struct {
	FreshInput float64
	Output     float64
	CacheRead  float64
	CacheWrite float64
}

func Defaults() Constants {
	return Constants{
		FreshInput: FreshInputPer1K,
		Output:     OutputPer1K,
		CacheRead:  CacheReadPer1K,
		CacheWrite: CacheWritePer1K,
	}
}

// EstimateMilliwattHours returns the mid energy estimate in mWh for the
// given token counts.
func (c Constants) EstimateMilliwattHours(freshInput, output, cacheRead, cacheWrite int64) float64 {
	return float64(freshInput)/1000*c.FreshInput +
		float64(output)/1000*c.Output +
		float64(cacheRead)/1000*c.CacheRead +
		float64(cacheWrite)/1000*c.CacheWrite
}

// FormatTokens renders a token count compactly: 999, 45k, 1.2M.
func FormatTokens(n int64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.0fk", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}

// FormatEnergy renders an mWh value as an order-of-magnitude estimate:
// ~1mWh, ~20Wh, ~5kWh. The real uncertainty is at least ±3x in each
// direction, so the value snaps to the nearest 1, 2, or 5 per decade.
func FormatEnergy(mwh float64) string {
	if mwh < 1 {
		return "~0"
	}
	lg := math.Log10(mwh)
	decade := math.Floor(lg)
	frac := lg - decade
	var val float64
	switch {
	case frac < 0.15:
		val = math.Pow(10, decade)
	case frac < 0.50:
		val = 2 * math.Pow(10, decade)
	case frac < 0.85:
		val = 5 * math.Pow(10, decade)
	default:
		val = math.Pow(10, decade+1)
	}
	val = math.Round(val)
	switch {
	case val < 1_000:
		return fmt.Sprintf("~%.0fmWh", val)
	case val < 1_000_000:
		return fmt.Sprintf("~%gWh", val/1_000)
	default:
		return fmt.Sprintf("~%gkWh", val/1_000_000)
	}
}
