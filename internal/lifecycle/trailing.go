package lifecycle

import "github.com/quantfold/trident/internal/domain"

// Trail computes the trailing stop candidate for a group given the current
// favorable extreme. It returns ok=false when trailing is not active or the
// candidate would not improve the stop.
//
// Activation requires both the tp1_hit gate and that the extreme has moved at
// least TrailActivation beyond entry. The candidate gives back a fixed
// fraction of the favorable move:
//
//	long:  extreme − retracement × (extreme − entry)
//	short: extreme + retracement × (entry − extreme)
//
// The candidate is applied only when strictly more favorable than the current
// stop, so the stop never widens.
func Trail(g *domain.PositionGroup, extreme float64) (float64, bool) {
	if !g.TP1Hit {
		return 0, false
	}
	move := g.FavorableMove(g.EntryPrice, extreme)
	if move < g.TrailActivation {
		return 0, false
	}

	var candidate float64
	if g.Direction == domain.DirectionLong {
		candidate = extreme - g.TrailRetracement*(extreme-g.EntryPrice)
	} else {
		candidate = extreme + g.TrailRetracement*(g.EntryPrice-extreme)
	}

	if !improves(g, candidate) {
		return 0, false
	}
	return candidate, true
}

// improves reports whether candidate tightens the stop: strictly above the
// current stop for longs, strictly below for shorts.
func improves(g *domain.PositionGroup, candidate float64) bool {
	if g.Direction == domain.DirectionLong {
		return candidate > g.CurrentStop
	}
	return candidate < g.CurrentStop
}
