package regime

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/trident/internal/config"
	"github.com/quantfold/trident/internal/domain"
)

func testCfg() config.RegimeConfig {
	return config.Defaults().Regime
}

// trendingBars builds a steadily rising series with widening bars, the shape
// every trend signal should agree on.
func trendingBars(n int) []domain.Bar {
	bars := make([]domain.Bar, n)
	ts := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	price := 2800.0
	for i := range bars {
		step := 4.0 + float64(i)*0.1
		price += step
		bars[i] = domain.Bar{
			Time:  ts.Add(time.Duration(i) * time.Hour),
			Open:  price - step,
			High:  price + step/2,
			Low:   price - step,
			Close: price,
		}
	}
	return bars
}

// rangingBars oscillates around a level with constant amplitude.
func rangingBars(n int) []domain.Bar {
	bars := make([]domain.Bar, n)
	ts := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		c := 2800.0 + 10*math.Sin(float64(i))
		bars[i] = domain.Bar{
			Time:  ts.Add(time.Duration(i) * time.Hour),
			Open:  c - 1,
			High:  c + 5,
			Low:   c - 5,
			Close: c,
		}
	}
	return bars
}

func TestClassifyTrend(t *testing.T) {
	cfg := testCfg()
	r, votes := ClassifyVotes(trendingBars(cfg.Window), cfg)
	require.Equal(t, domain.RegimeTrend, r)

	trendVotes := 0
	for _, v := range votes {
		if v.Trend {
			trendVotes++
		}
	}
	assert.GreaterOrEqual(t, trendVotes, cfg.MinVotes)
}

func TestClassifyRange(t *testing.T) {
	cfg := testCfg()
	assert.Equal(t, domain.RegimeRange, Classify(rangingBars(cfg.Window), cfg))
}

func TestClassifyInsufficientHistoryDefaultsToRange(t *testing.T) {
	cfg := testCfg()
	assert.Equal(t, domain.RegimeRange, Classify(trendingBars(cfg.Window-1), cfg))
	assert.Equal(t, domain.RegimeRange, Classify(nil, cfg))
}

func TestClassifyIsDeterministic(t *testing.T) {
	cfg := testCfg()
	bars := trendingBars(cfg.Window + 20)
	first := Classify(bars, cfg)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Classify(bars, cfg))
	}
}

func TestSwingStructureDowntrend(t *testing.T) {
	bars := trendingBars(30)
	// Mirror the series around its start to get lower highs and lower lows.
	for i := range bars {
		bars[i].High, bars[i].Low = 5600-bars[i].Low, 5600-bars[i].High
		bars[i].Close = 5600 - bars[i].Close
	}
	assert.True(t, swingStructure(bars))
}
