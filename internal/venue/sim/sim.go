// Package sim provides an in-process paper venue for backtests and dry runs.
// It honors the same contract as the live broker adapter: acknowledgments
// carry the authoritative price, and stop modifications are idempotent.
package sim

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/quantfold/trident/internal/domain"
)

// Venue is a paper execution venue. Entries fill at the requested price
// adjusted adversely by a configurable slippage; closes fill at market, so
// the ack carries no price and the caller's planned level stands.
type Venue struct {
	slippageBps float64
	logger      *slog.Logger

	mu        sync.Mutex
	seq       int
	positions map[string]*position
	lastStop  map[string]float64

	rejectNext int
}

type position struct {
	instrument string
	direction  domain.Direction
	size       float64
	remaining  float64 // fraction of the original size still open
}

// New creates a paper venue. slippageBps is applied against the trade on
// entry fills.
func New(slippageBps float64, logger *slog.Logger) *Venue {
	return &Venue{
		slippageBps: slippageBps,
		logger:      logger.With(slog.String("component", "sim_venue")),
		positions:   make(map[string]*position),
		lastStop:    make(map[string]float64),
	}
}

var _ domain.Venue = (*Venue)(nil)

// RejectNext makes the next n modification calls fail with ErrVenueRejected.
// Used to exercise the retry-on-next-tick path.
func (v *Venue) RejectNext(n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rejectNext = n
}

// PlaceOrder opens a paper position and returns its reference plus the
// slippage-adjusted fill.
func (v *Venue) PlaceOrder(ctx context.Context, sig domain.EntrySignal) (domain.VenueAck, error) {
	if err := ctx.Err(); err != nil {
		return domain.VenueAck{}, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.consumeReject() {
		return domain.VenueAck{}, domain.ErrVenueRejected
	}

	v.seq++
	ref := fmt.Sprintf("sim-%d", v.seq)
	fill := sig.EntryPrice * (1 + v.slippageBps/10000)
	if sig.Direction == domain.DirectionShort {
		fill = sig.EntryPrice * (1 - v.slippageBps/10000)
	}
	v.positions[ref] = &position{
		instrument: sig.Instrument,
		direction:  sig.Direction,
		size:       sig.Size,
		remaining:  1,
	}
	v.logger.Debug("paper order filled",
		slog.String("ref", ref),
		slog.String("instrument", sig.Instrument),
		slog.Float64("fill", fill))
	return domain.VenueAck{Ref: ref, Price: fill}, nil
}

// ModifyStop records the protective stop for the referenced position.
// Re-sending the stop already in force succeeds without effect.
func (v *Venue) ModifyStop(ctx context.Context, ref string, stop float64) (domain.VenueAck, error) {
	if err := ctx.Err(); err != nil {
		return domain.VenueAck{}, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.positions[ref]; !ok {
		return domain.VenueAck{}, domain.ErrNotFound
	}
	if last, ok := v.lastStop[ref]; ok && last == stop {
		return domain.VenueAck{Ref: ref, Price: stop}, nil
	}
	if v.consumeReject() {
		return domain.VenueAck{}, domain.ErrVenueRejected
	}
	v.lastStop[ref] = stop
	return domain.VenueAck{Ref: ref, Price: stop}, nil
}

// ClosePosition reduces the referenced position by the given fraction of its
// original size and removes it when fully closed.
func (v *Venue) ClosePosition(ctx context.Context, ref string, fraction float64) (domain.VenueAck, error) {
	if err := ctx.Err(); err != nil {
		return domain.VenueAck{}, err
	}
	if fraction <= 0 || fraction > 1 {
		return domain.VenueAck{}, fmt.Errorf("sim: close fraction %v out of range", fraction)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	pos, ok := v.positions[ref]
	if !ok {
		return domain.VenueAck{}, domain.ErrNotFound
	}
	if v.consumeReject() {
		return domain.VenueAck{}, domain.ErrVenueRejected
	}

	pos.remaining -= fraction
	if pos.remaining <= 1e-9 {
		delete(v.positions, ref)
		delete(v.lastStop, ref)
	}
	return domain.VenueAck{Ref: ref}, nil
}

// Stop returns the last acknowledged stop for a position reference.
func (v *Venue) Stop(ref string) (float64, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	s, ok := v.lastStop[ref]
	return s, ok
}

// OpenPositions returns the number of live paper positions.
func (v *Venue) OpenPositions() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.positions)
}

func (v *Venue) consumeReject() bool {
	if v.rejectNext > 0 {
		v.rejectNext--
		return true
	}
	return false
}
