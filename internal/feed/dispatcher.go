package feed

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/quantfold/trident/internal/domain"
)

// TickChannel is the bus channel ticks are published on.
const TickChannel = "ticks"

// Dispatcher subscribes to the tick channel on the event bus and feeds each
// decoded tick to the handler, caching the latest tick per instrument along
// the way. It lets a feed process and the engine run as separate processes.
type Dispatcher struct {
	bus    domain.EventBus
	cache  domain.TickCache
	onTick TickHandler
	logger *slog.Logger
}

// NewDispatcher creates a Dispatcher. cache may be nil.
func NewDispatcher(bus domain.EventBus, cache domain.TickCache, onTick TickHandler, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		bus:    bus,
		cache:  cache,
		onTick: onTick,
		logger: logger.With(slog.String("component", "tick_dispatcher")),
	}
}

// Run subscribes to the tick channel and dispatches until ctx is canceled.
func (d *Dispatcher) Run(ctx context.Context) error {
	ch, err := d.bus.Subscribe(ctx, TickChannel)
	if err != nil {
		return err
	}
	d.logger.Info("tick dispatcher started")
	defer d.logger.Info("tick dispatcher stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-ch:
			if !ok {
				return nil
			}
			d.handleMessage(ctx, data)
		}
	}
}

// Publish encodes a tick onto the bus for other processes.
func (d *Dispatcher) Publish(ctx context.Context, tick domain.Tick) error {
	payload, err := json.Marshal(tick)
	if err != nil {
		return err
	}
	return d.bus.Publish(ctx, TickChannel, payload)
}

func (d *Dispatcher) handleMessage(ctx context.Context, data []byte) {
	var tick domain.Tick
	if err := json.Unmarshal(data, &tick); err != nil {
		d.logger.Debug("tick dispatcher: bad payload", slog.Int("payload_len", len(data)))
		return
	}
	if tick.Instrument == "" {
		return
	}

	if d.cache != nil {
		if err := d.cache.SetTick(ctx, tick); err != nil {
			d.logger.Debug("tick cache write failed", slog.String("error", err.Error()))
		}
	}
	d.onTick(ctx, tick)
}
