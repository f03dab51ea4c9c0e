package domain

import "time"

// EventType identifies a lifecycle event emitted by the orchestrator.
type EventType string

const (
	EventGroupOpened       EventType = "group_opened"
	EventLegClosed         EventType = "leg_closed"
	EventTrailingActivated EventType = "trailing_activated"
	EventTrailingUpdated   EventType = "trailing_updated"
	EventGroupClosed       EventType = "group_closed"
	EventGroupTimedOut     EventType = "group_timed_out"
	EventVenueRejected     EventType = "venue_rejected"
	EventGroupRecovered    EventType = "group_recovered"
)

// LifecycleEvent is published on the event bus for every audited state
// transition so operators can follow why a group moved or closed.
type LifecycleEvent struct {
	Type       EventType `json:"event"`
	GroupID    string    `json:"group_id"`
	LegID      string    `json:"leg_id,omitempty"`
	Instrument string    `json:"instrument"`
	Direction  Direction `json:"direction"`
	Regime     Regime    `json:"regime,omitempty"`
	Price      float64   `json:"price,omitempty"`
	Stop       float64   `json:"stop,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	PnL        float64   `json:"pnl,omitempty"`
	Time       time.Time `json:"time"`
}

// TradeRecord is the archival row written when a leg reaches a terminal
// status. It is the reporting export shape; the open-group snapshot in the
// group store is the recovery shape.
type TradeRecord struct {
	GroupID      string
	LegID        string
	Instrument   string
	Direction    Direction
	Regime       Regime
	EntryPrice   float64
	ExitPrice    float64
	ExitReason   LegStatus
	SizeFraction float64
	Size         float64
	PnL          float64
	Costs        float64
	OpenedAt     time.Time
	ClosedAt     time.Time
}
