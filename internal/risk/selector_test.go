package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/trident/internal/config"
	"github.com/quantfold/trident/internal/domain"
)

func testRiskConfig() config.RiskConfig {
	cfg := config.Defaults()
	cfg.Risk.InstrumentClass = map[string]string{
		"XAUUSD": "metals",
		"EURUSD": "fx",
	}
	cfg.Risk.Classes["metals"] = config.ClassParams{
		Trend: config.RegimeParams{
			TP1Distance: 100, TP2Distance: 150, TP3Distance: 200,
			StopDistance:     40,
			TrailActivation:  50,
			TrailRetracement: 0.5,
			Timeout:          config.Duration{Duration: 96 * time.Hour},
		},
		Range: config.RegimeParams{
			TP1Distance: 50, TP2Distance: 75, TP3Distance: 100,
			StopDistance:     40,
			TrailActivation:  25,
			TrailRetracement: 0.4,
			Timeout:          config.Duration{Duration: 48 * time.Hour},
		},
	}
	return cfg.Risk
}

func TestSelectTrendVsRange(t *testing.T) {
	s := NewSelector(testRiskConfig())

	trend := s.Select(domain.RegimeTrend, "XAUUSD")
	rng := s.Select(domain.RegimeRange, "XAUUSD")

	assert.Equal(t, []float64{100, 150, 200}, trend.TPDistances)
	assert.Equal(t, []float64{50, 75, 100}, rng.TPDistances)
	assert.Greater(t, trend.Timeout, rng.Timeout)
	assert.Equal(t, 0.5, trend.TrailRetracement)
	assert.Equal(t, 0.4, rng.TrailRetracement)
}

func TestSelectUnknownInstrumentUsesDefaultClass(t *testing.T) {
	s := NewSelector(testRiskConfig())

	assert.Equal(t, "default", s.Class("GBPJPY"))

	p := s.Select(domain.RegimeTrend, "GBPJPY")
	def := config.Defaults().Risk.Classes["default"]
	assert.Equal(t, def.Trend.TP1Distance, p.TPDistances[0])
	assert.Equal(t, def.Trend.StopDistance, p.StopDistance)
}

func TestSelectUnmappedClassFallsBack(t *testing.T) {
	cfg := testRiskConfig()
	cfg.InstrumentClass["USDJPY"] = "exotic" // no such class configured
	s := NewSelector(cfg)

	assert.Equal(t, "default", s.Class("USDJPY"))
}

func TestSelectIsStable(t *testing.T) {
	s := NewSelector(testRiskConfig())
	a := s.Select(domain.RegimeTrend, "XAUUSD")
	b := s.Select(domain.RegimeTrend, "XAUUSD")
	assert.Equal(t, a, b)
}

func TestBuildLegsLong(t *testing.T) {
	s := NewSelector(testRiskConfig())
	p := s.Select(domain.RegimeTrend, "EURUSD")

	legs := BuildLegs(2870, domain.DirectionLong, p)
	require.Len(t, legs, 3)

	var total float64
	for i, leg := range legs {
		assert.NotEmpty(t, leg.ID)
		assert.Equal(t, domain.LegStatusOpen, leg.Status)
		assert.Equal(t, 2870+p.TPDistances[i], leg.TakeProfit)
		total += leg.SizeFraction
	}
	assert.InDelta(t, 1.0, total, 1e-9)
	assert.Less(t, legs[0].TakeProfit, legs[1].TakeProfit)
	assert.Less(t, legs[1].TakeProfit, legs[2].TakeProfit)
}

func TestBuildLegsShortMirrorsLadder(t *testing.T) {
	s := NewSelector(testRiskConfig())
	p := s.Select(domain.RegimeRange, "EURUSD")

	legs := BuildLegs(1.10, domain.DirectionShort, p)
	require.Len(t, legs, 3)
	assert.Greater(t, legs[0].TakeProfit, legs[1].TakeProfit)
	assert.Greater(t, legs[1].TakeProfit, legs[2].TakeProfit)
	for _, leg := range legs {
		assert.Less(t, leg.TakeProfit, 1.10)
	}
}

func TestInitialStop(t *testing.T) {
	p := Params{StopDistance: 20}
	assert.Equal(t, 2850.0, InitialStop(2870, domain.DirectionLong, p))
	assert.Equal(t, 2890.0, InitialStop(2870, domain.DirectionShort, p))
}

func TestCostModel(t *testing.T) {
	m := NewCostModel(config.CostConfig{Spread: 0.5, Commission: 0.1, CarryPerDay: 2})

	assert.InDelta(t, 0.6, m.EntryCost(1), 1e-9)
	assert.InDelta(t, 0.04, m.ExitCost(1, 0.4), 1e-9)
	assert.InDelta(t, 4.0, m.Carry(1, 48*time.Hour), 1e-9)
}
