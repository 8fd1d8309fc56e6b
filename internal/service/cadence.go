package service

import "time"

const (
	// cycleFloor is the minimum interval any single budget formula yields.
	cycleFloor = 30 * time.Second

	// absoluteFloor is the hard lower bound on the final interval.
	absoluteFloor = 15 * time.Second

	// fallbackInterval applies when no call limit is configured at all.
	fallbackInterval = 60 * time.Second

	// eodReservedCalls keeps a little daily headroom for ad hoc requests
	// on top of the nightly EOD budget.
	eodReservedCalls = 2
)

// CadencePolicy holds the inputs of the intraday interval calculation.
type CadencePolicy struct {
	SymbolCount int
	HourlyLimit int
	DailyLimit  int
	Buffer      int
	Floor       time.Duration // configured minimum interval, 0 when unset
}

// IntradayInterval derives a polling interval that keeps one cycle's worth
// of calls (one per symbol) under both the hourly and the daily budget.
// The interval scales linearly with the symbol count, so the total calls per
// hour/day stay bounded no matter how many symbols are tracked.
func IntradayInterval(p CadencePolicy) time.Duration {
	if p.SymbolCount < 1 {
		p.SymbolCount = 1
	}

	if p.HourlyLimit <= 0 && p.DailyLimit <= 0 {
		if p.Floor > fallbackInterval {
			return p.Floor
		}
		return fallbackInterval
	}

	interval := absoluteFloor
	if p.Floor > interval {
		interval = p.Floor
	}

	if p.HourlyLimit > 0 {
		// Reserve a sixth of the hourly limit as headroom.
		budget := p.HourlyLimit - ceilDiv(p.HourlyLimit, 6)
		if budget < 1 {
			budget = 1
		}
		hourly := intervalFor(3600, p.SymbolCount, budget)
		if hourly > interval {
			interval = hourly
		}
	}

	if p.DailyLimit > 0 {
		budget := p.DailyLimit - p.Buffer
		if budget < 1 {
			budget = 1
		}
		// Reserve one call per symbol for the nightly EOD job plus a
		// couple of spare calls.
		budget = budget - p.SymbolCount - eodReservedCalls
		if budget < 1 {
			budget = 1
		}
		daily := intervalFor(86400, p.SymbolCount, budget)
		if daily > interval {
			interval = daily
		}
	}

	return interval
}

// intervalFor computes ceil(periodSeconds * symbols / budget), floored at
// the per-formula minimum.
func intervalFor(periodSeconds, symbols, budget int) time.Duration {
	d := time.Duration(ceilDiv(periodSeconds*symbols, budget)) * time.Second
	if d < cycleFloor {
		return cycleFloor
	}
	return d
}

func ceilDiv(a, b int) int {
	if b < 1 {
		b = 1
	}
	return (a + b - 1) / b
}
