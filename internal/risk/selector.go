// Package risk maps (regime, instrument class) to the parameter bundle that
// governs a position group: take-profit ladder, trailing activation and
// retracement, stop distance, and timeout. It also carries the trade cost
// model. Selection is a pure lookup with no side effects.
package risk

import (
	"time"

	"github.com/quantfold/trident/internal/config"
	"github.com/quantfold/trident/internal/domain"
)

// Params is the resolved risk bundle for one group, with all distances in
// price units relative to entry.
type Params struct {
	TPDistances      []float64
	StopDistance     float64
	TrailActivation  float64
	TrailRetracement float64
	Timeout          time.Duration
	LegFractions     []float64
}

// Selector resolves instruments to classes and regimes to parameter bundles.
// TREND bundles are wider than RANGE bundles; validation in the config layer
// enforces a strictly increasing take-profit ladder.
type Selector struct {
	classes         map[string]config.ClassParams
	instrumentClass map[string]string
	legFractions    []float64
}

// NewSelector builds a Selector from the risk configuration.
func NewSelector(cfg config.RiskConfig) *Selector {
	return &Selector{
		classes:         cfg.Classes,
		instrumentClass: cfg.InstrumentClass,
		legFractions:    cfg.LegFractions,
	}
}

// Class returns the configured class for an instrument, or "default".
func (s *Selector) Class(instrument string) string {
	if c, ok := s.instrumentClass[instrument]; ok {
		if _, known := s.classes[c]; known {
			return c
		}
	}
	return "default"
}

// Select returns the parameter bundle for the given regime and instrument.
// Repeated calls with the same inputs return the same values.
func (s *Selector) Select(regime domain.Regime, instrument string) Params {
	cp := s.classes[s.Class(instrument)]
	rp := cp.Range
	if regime == domain.RegimeTrend {
		rp = cp.Trend
	}

	n := len(s.legFractions)
	tps := []float64{rp.TP1Distance, rp.TP2Distance, rp.TP3Distance}[:n]

	fractions := make([]float64, n)
	copy(fractions, s.legFractions)

	return Params{
		TPDistances:      tps,
		StopDistance:     rp.StopDistance,
		TrailActivation:  rp.TrailActivation,
		TrailRetracement: rp.TrailRetracement,
		Timeout:          rp.Timeout.Duration,
		LegFractions:     fractions,
	}
}
