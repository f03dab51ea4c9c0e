package domain

import "time"

// Direction is the side of a position group.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// Regime classifies current market behaviour; it selects which risk parameter
// bundle applies and is decided once, at group creation.
type Regime string

const (
	RegimeTrend Regime = "trend"
	RegimeRange Regime = "range"
)

// LegStatus is the lifecycle state of a single leg. OPEN is the only
// non-terminal state; the four closed states are mutually exclusive and final.
type LegStatus string

const (
	LegStatusOpen          LegStatus = "open"
	LegStatusClosedTP      LegStatus = "closed_tp"
	LegStatusClosedSL      LegStatus = "closed_sl"
	LegStatusClosedTrail   LegStatus = "closed_trail"
	LegStatusClosedTimeout LegStatus = "closed_timeout"
)

// Terminal reports whether the status is a closed state.
func (s LegStatus) Terminal() bool {
	return s != LegStatusOpen
}

// Leg is one sub-position within a group. It shares the group's entry and
// protective stop but carries its own take-profit target and size fraction.
type Leg struct {
	ID           string
	SizeFraction float64 // fractions across a group's legs sum to 1.0
	TakeProfit   float64
	Status       LegStatus
	ExitPrice    float64
	ExitTime     *time.Time
}

// MaxLegs is the maximum number of legs a group may carry.
const MaxLegs = 3

// PositionGroup is the aggregate of up to three legs opened together from one
// entry signal, sharing one entry price and one protective stop.
//
// Instrument, Direction, EntryPrice, InitialStop, and Regime are immutable
// after creation. CurrentStop may only move in the direction that reduces
// risk: up for longs, down for shorts. ExtremePrice is the most favorable
// price observed since creation and drives trailing retracement.
type PositionGroup struct {
	ID          string
	Instrument  string
	Direction   Direction
	Regime      Regime
	EntryPrice  float64
	InitialStop float64
	Size        float64 // total size; each leg holds SizeFraction of it
	Legs        []Leg

	TP1Hit       bool
	CurrentStop  float64
	ExtremePrice float64

	TrailRetracement float64 // fraction of the favorable move given back before exit
	TrailActivation  float64 // favorable distance from entry required before trailing

	OpenedAt     time.Time
	TimeoutAt    time.Time
	CostsAccrued float64

	// VenueRef is the venue-side position reference returned by the order
	// placement ack; all stop/close modifications address it.
	VenueRef string
}

// OpenLegs returns the indexes of legs that are still open, in order.
func (g *PositionGroup) OpenLegs() []int {
	var idx []int
	for i := range g.Legs {
		if g.Legs[i].Status == LegStatusOpen {
			idx = append(idx, i)
		}
	}
	return idx
}

// Closed reports whether every leg has reached a terminal status.
func (g *PositionGroup) Closed() bool {
	for i := range g.Legs {
		if !g.Legs[i].Status.Terminal() {
			return false
		}
	}
	return true
}

// Favorable reports whether price b is at least as favorable as price a for
// the group's direction.
func (g *PositionGroup) Favorable(a, b float64) bool {
	if g.Direction == DirectionLong {
		return b >= a
	}
	return b <= a
}

// FavorableMove returns the signed favorable distance from, e.g., entry to
// price: positive when price is on the profitable side of from.
func (g *PositionGroup) FavorableMove(from, price float64) float64 {
	if g.Direction == DirectionLong {
		return price - from
	}
	return from - price
}

// LegPnL computes the realized profit for a closed leg before costs, in
// quote-currency units.
func (g *PositionGroup) LegPnL(leg Leg) float64 {
	return g.FavorableMove(g.EntryPrice, leg.ExitPrice) * g.Size * leg.SizeFraction
}
