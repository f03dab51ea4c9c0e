package domain

import "context"

// VenueAck is the venue's acknowledgment of a modification. Price is the
// authoritative fill or stop level as accepted by the venue, which may differ
// from the requested level (slippage); callers must record it, not the
// requested one.
type VenueAck struct {
	Ref   string
	Price float64
}

// Venue is the external execution venue. Every call is bounded by its
// context; callers pass a deadline and treat expiry like a rejection.
//
// The engine commits a local state change only after the corresponding venue
// call has been acknowledged (broker-first ordering). ModifyStop must be
// idempotent: re-sending the stop level already in force succeeds without
// effect.
type Venue interface {
	// PlaceOrder opens the group's position and returns the venue position
	// reference plus the authoritative entry fill price.
	PlaceOrder(ctx context.Context, sig EntrySignal) (VenueAck, error)

	// ModifyStop moves the protective stop for the referenced position.
	ModifyStop(ctx context.Context, ref string, stop float64) (VenueAck, error)

	// ClosePosition closes the given size fraction of the referenced position
	// at market and returns the authoritative exit price.
	ClosePosition(ctx context.Context, ref string, fraction float64) (VenueAck, error)
}
