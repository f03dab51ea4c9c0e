// Package regime classifies recent market behaviour as trending or ranging.
// Classification is a pure function of a fixed window of OHLC bars: a small
// set of independent boolean trend signals is evaluated and TREND is declared
// when at least a configured majority agree. Insufficient history always
// yields RANGE, the more conservative parameter set.
package regime

import (
	"math"

	"github.com/quantfold/trident/internal/config"
	"github.com/quantfold/trident/internal/domain"
)

// Vote is one signal's opinion, kept for audit logging.
type Vote struct {
	Name  string
	Trend bool
}

// Classify returns the regime for the given bar window. The window is read
// newest-last. The same window always produces the same answer.
func Classify(bars []domain.Bar, cfg config.RegimeConfig) domain.Regime {
	r, _ := ClassifyVotes(bars, cfg)
	return r
}

// ClassifyVotes is Classify plus the individual signal votes.
func ClassifyVotes(bars []domain.Bar, cfg config.RegimeConfig) (domain.Regime, []Vote) {
	if len(bars) < cfg.Window {
		return domain.RegimeRange, nil
	}
	window := bars[len(bars)-cfg.Window:]

	votes := []Vote{
		{Name: "ma_separation", Trend: maSeparated(window, cfg)},
		{Name: "atr_expansion", Trend: atrExpanding(window, cfg)},
		{Name: "persistence", Trend: directionPersistent(window, cfg)},
		{Name: "swing_structure", Trend: swingStructure(window)},
	}

	trendVotes := 0
	for _, v := range votes {
		if v.Trend {
			trendVotes++
		}
	}
	if trendVotes >= cfg.MinVotes {
		return domain.RegimeTrend, votes
	}
	return domain.RegimeRange, votes
}

// maSeparated reports whether the fast and slow moving averages of the close
// have pulled apart by more than the configured fraction of the slow value.
func maSeparated(bars []domain.Bar, cfg config.RegimeConfig) bool {
	fast := smaClose(bars, cfg.FastMA)
	slow := smaClose(bars, cfg.SlowMA)
	if slow == 0 {
		return false
	}
	return math.Abs(fast-slow)/slow >= cfg.MASeparation
}

// atrExpanding reports whether the current ATR exceeds its own mean over the
// window by the configured ratio. Sustained directional moves show up as
// expanding true range.
func atrExpanding(bars []domain.Bar, cfg config.RegimeConfig) bool {
	trs := trueRanges(bars)
	if len(trs) < cfg.ATRPeriod {
		return false
	}
	current := mean(trs[len(trs)-cfg.ATRPeriod:])
	baseline := mean(trs)
	if baseline == 0 {
		return false
	}
	return current/baseline >= cfg.ATRExpansion
}

// directionPersistent reports whether closes moved in one dominant direction
// for at least the configured fraction of the window.
func directionPersistent(bars []domain.Bar, cfg config.RegimeConfig) bool {
	up, down := 0, 0
	for i := 1; i < len(bars); i++ {
		switch {
		case bars[i].Close > bars[i-1].Close:
			up++
		case bars[i].Close < bars[i-1].Close:
			down++
		}
	}
	total := up + down
	if total == 0 {
		return false
	}
	dominant := up
	if down > dominant {
		dominant = down
	}
	return float64(dominant)/float64(total) >= cfg.PersistenceMin
}

// swingStructure reports whether the window splits into thirds with strictly
// higher highs and higher lows (or lower highs and lower lows).
func swingStructure(bars []domain.Bar) bool {
	third := len(bars) / 3
	if third == 0 {
		return false
	}
	h1, l1 := extremes(bars[:third])
	h2, l2 := extremes(bars[third : 2*third])
	h3, l3 := extremes(bars[2*third:])

	higher := h1 < h2 && h2 < h3 && l1 < l2 && l2 < l3
	lower := h1 > h2 && h2 > h3 && l1 > l2 && l2 > l3
	return higher || lower
}

func smaClose(bars []domain.Bar, n int) float64 {
	if n <= 0 || n > len(bars) {
		return 0
	}
	sum := 0.0
	for _, b := range bars[len(bars)-n:] {
		sum += b.Close
	}
	return sum / float64(n)
}

// trueRanges returns the true range series: max(H-L, |H-prevC|, |L-prevC|).
func trueRanges(bars []domain.Bar) []float64 {
	if len(bars) < 2 {
		return nil
	}
	trs := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		hl := bars[i].High - bars[i].Low
		hc := math.Abs(bars[i].High - bars[i-1].Close)
		lc := math.Abs(bars[i].Low - bars[i-1].Close)
		trs = append(trs, math.Max(hl, math.Max(hc, lc)))
	}
	return trs
}

func extremes(bars []domain.Bar) (high, low float64) {
	high = math.Inf(-1)
	low = math.Inf(1)
	for _, b := range bars {
		high = math.Max(high, b.High)
		low = math.Min(low, b.Low)
	}
	return high, low
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
