package risk

import (
	"github.com/google/uuid"

	"github.com/quantfold/trident/internal/domain"
)

// BuildLegs constructs the open legs for a new group. Take-profit levels are
// laid out from entry along the trade direction; fractions come straight from
// the resolved parameter bundle.
func BuildLegs(entry float64, dir domain.Direction, p Params) []domain.Leg {
	legs := make([]domain.Leg, len(p.TPDistances))
	for i, dist := range p.TPDistances {
		tp := entry + dist
		if dir == domain.DirectionShort {
			tp = entry - dist
		}
		legs[i] = domain.Leg{
			ID:           uuid.NewString(),
			SizeFraction: p.LegFractions[i],
			TakeProfit:   tp,
			Status:       domain.LegStatusOpen,
		}
	}
	return legs
}

// InitialStop places the protective stop on the adverse side of entry.
func InitialStop(entry float64, dir domain.Direction, p Params) float64 {
	if dir == domain.DirectionShort {
		return entry + p.StopDistance
	}
	return entry - p.StopDistance
}
