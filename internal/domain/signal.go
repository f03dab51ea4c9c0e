package domain

import "time"

// EntrySignal is the external trigger for opening a position group. The
// engine does not validate the strategy's entry rationale; it only manages
// the resulting position.
type EntrySignal struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	Instrument string    `json:"instrument"`
	Direction  Direction `json:"direction"`
	EntryPrice float64   `json:"entry_price"`
	StopPrice  float64   `json:"stop_price,omitempty"` // optional; derived from the risk bundle when zero
	Size       float64   `json:"size"`
	Timestamp  time.Time `json:"timestamp"`
}
