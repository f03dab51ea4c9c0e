// Package lifecycle contains the position group state machine, the trailing
// stop controller, and the orchestrator that drives both from price ticks.
//
// The per-tick evaluation is split into a pure planning step (PlanTick) and an
// execution step performed by the Orchestrator. Planning never mutates the
// group; execution commits a change only after the venue has acknowledged it.
package lifecycle

import (
	"github.com/quantfold/trident/internal/domain"
)

// LegClose is one planned leg exit: which leg, at what price, and why.
type LegClose struct {
	Index  int
	Price  float64
	Status domain.LegStatus
}

// TickPlan is the set of transitions one tick demands for one group. Closes
// are ordered by leg index. Stop, when non-nil, is a trailing stop candidate
// that still requires venue acknowledgment before commit. Extreme is the
// updated running favorable extreme, always committed locally.
type TickPlan struct {
	Closes   []LegClose
	Stop     *float64
	Extreme  float64
	TimedOut bool
}

// Empty reports whether the plan changes nothing but the running extreme.
func (p TickPlan) Empty() bool {
	return len(p.Closes) == 0 && p.Stop == nil
}

// PlanTick evaluates one tick against a group and returns the transitions it
// requires, in this fixed precedence:
//
//  1. Stop breach closes every open leg at the stop level, bounded by the
//     bar's range. When the bar's range spans both the stop and a take-profit
//     the stop is evaluated first — the worst path for the trader — so a
//     stop exit can never report profit the stop level did not lock in.
//  2. Otherwise take-profit hits close legs in ladder order; the first one
//     flips tp1_hit.
//  3. Otherwise an elapsed timeout closes every open leg at the current mid.
//
// After exits, the trailing controller proposes a stop candidate for the
// surviving legs (see Trail).
func PlanTick(g *domain.PositionGroup, tick domain.Tick) TickPlan {
	plan := TickPlan{Extreme: g.ExtremePrice}

	high, low := barRange(tick)
	plan.Extreme = extendExtreme(g, high, low)

	open := g.OpenLegs()
	if len(open) == 0 {
		return plan
	}

	if stopBreached(g, high, low) {
		status := domain.LegStatusClosedSL
		if g.TP1Hit {
			status = domain.LegStatusClosedTrail
		}
		fill := stopFill(g, high, low)
		for _, i := range open {
			plan.Closes = append(plan.Closes, LegClose{Index: i, Price: fill, Status: status})
		}
		return plan
	}

	remaining := open[:0:0]
	for _, i := range open {
		if tpReached(g, g.Legs[i].TakeProfit, high, low) {
			plan.Closes = append(plan.Closes, LegClose{Index: i, Price: g.Legs[i].TakeProfit, Status: domain.LegStatusClosedTP})
		} else {
			remaining = append(remaining, i)
		}
	}

	if len(remaining) > 0 && !tick.Time.Before(g.TimeoutAt) {
		plan.TimedOut = true
		for _, i := range remaining {
			plan.Closes = append(plan.Closes, LegClose{Index: i, Price: tick.Mid(), Status: domain.LegStatusClosedTimeout})
		}
		return plan
	}

	// Trailing here uses the committed tp1_hit flag. When TP1 closes on this
	// very tick the orchestrator re-runs Trail after committing the close, so
	// activation is not delayed a tick.
	if len(remaining) > 0 {
		if stop, ok := Trail(g, plan.Extreme); ok {
			plan.Stop = &stop
		}
	}
	return plan
}

// barRange normalizes a tick to its intra-bar extremes, falling back to the
// midpoint when the feed supplies no high/low.
func barRange(tick domain.Tick) (high, low float64) {
	mid := tick.Mid()
	high, low = tick.High, tick.Low
	if high == 0 {
		high = mid
	}
	if low == 0 {
		low = mid
	}
	return high, low
}

func extendExtreme(g *domain.PositionGroup, high, low float64) float64 {
	ext := g.ExtremePrice
	if g.Direction == domain.DirectionLong {
		if high > ext {
			ext = high
		}
	} else {
		if low < ext {
			ext = low
		}
	}
	return ext
}

func stopBreached(g *domain.PositionGroup, high, low float64) bool {
	if g.Direction == domain.DirectionLong {
		return low <= g.CurrentStop
	}
	return high >= g.CurrentStop
}

// stopFill is the stop level clamped into the bar's range: a gap through the
// stop fills at the bar's nearest traded price, never at a price better than
// the stop.
func stopFill(g *domain.PositionGroup, high, low float64) float64 {
	if g.Direction == domain.DirectionLong {
		if high < g.CurrentStop {
			return high
		}
		return g.CurrentStop
	}
	if low > g.CurrentStop {
		return low
	}
	return g.CurrentStop
}

func tpReached(g *domain.PositionGroup, tp, high, low float64) bool {
	if g.Direction == domain.DirectionLong {
		return high >= tp
	}
	return low <= tp
}
