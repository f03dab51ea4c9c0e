package domain

import "time"

// Tick is one bar-resolution market data update for an instrument. High and
// Low are the intra-bar extremes and are what the engine uses to resolve
// exits that fall inside the bar's range.
type Tick struct {
	Instrument string    `json:"instrument"`
	Time       time.Time `json:"time"`
	Bid        float64   `json:"bid"`
	Ask        float64   `json:"ask"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
}

// Mid returns the bid/ask midpoint, or whichever side is present when the
// other is zero.
func (t Tick) Mid() float64 {
	switch {
	case t.Bid > 0 && t.Ask > 0:
		return (t.Bid + t.Ask) / 2
	case t.Bid > 0:
		return t.Bid
	default:
		return t.Ask
	}
}

// Bar is one OHLC bar of price history, the input unit for regime
// classification.
type Bar struct {
	Time  time.Time `json:"time"`
	Open  float64   `json:"open"`
	High  float64   `json:"high"`
	Low   float64   `json:"low"`
	Close float64   `json:"close"`
}

// BarFromTick collapses a tick into a bar using the midpoint as open/close.
func BarFromTick(t Tick) Bar {
	mid := t.Mid()
	high, low := t.High, t.Low
	if high == 0 {
		high = mid
	}
	if low == 0 {
		low = mid
	}
	return Bar{Time: t.Time, Open: mid, High: high, Low: low, Close: mid}
}
