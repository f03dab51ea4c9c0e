package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quantfold/trident/internal/config"
	"github.com/quantfold/trident/internal/domain"
	"github.com/quantfold/trident/internal/metrics"
	"github.com/quantfold/trident/internal/regime"
	"github.com/quantfold/trident/internal/risk"
)

// EventChannel is the bus channel lifecycle events are published on.
const EventChannel = "lifecycle_events"

// SignalChannel is the bus channel external entry signals arrive on.
const SignalChannel = "entry_signals"

// persistRetryDelay is the pause between durable-write attempts while a
// group worker is halted on a failing store.
const persistRetryDelay = 500 * time.Millisecond

// drainGrace bounds how long a stopping worker keeps retrying a failing
// durable write before exiting unclean. Recovery restores from the last
// persisted snapshot, so an unclean exit loses at most an already
// acknowledged tightening, never safety.
const drainGrace = 10 * time.Second

// Orchestrator turns entry signals into managed position groups and drives
// each group through its lifecycle from price ticks.
//
// Scheduling: one worker goroutine per open group plus the caller's feed
// loop. HandleTick fans each tick out to the workers open on that
// instrument; workers process their ticks serially and never block each
// other. A worker blocks only on venue acknowledgment and on the durable
// write of a committed transition.
type Orchestrator struct {
	venue    domain.Venue
	groups   domain.GroupStore
	trades   domain.TradeStore
	audit    domain.AuditStore
	bus      domain.EventBus
	selector *risk.Selector
	costs    *risk.CostModel
	logger   *slog.Logger

	regimeCfg    config.RegimeConfig
	venueTimeout time.Duration
	storeTimeout time.Duration
	tickBuffer   int

	mu      sync.RWMutex
	workers map[string]*groupWorker   // group ID -> worker
	byInst  map[string][]*groupWorker // instrument -> workers

	bars   map[string][]domain.Bar // per-instrument rolling window for classification
	barsMu sync.Mutex

	events chan domain.LifecycleEvent
	wg     sync.WaitGroup
}

type groupWorker struct {
	group *domain.PositionGroup
	ticks chan domain.Tick
	done  chan struct{}
}

// Options carries the orchestrator's collaborators. Audit and Bus are
// optional; everything else is required.
type Options struct {
	Venue    domain.Venue
	Groups   domain.GroupStore
	Trades   domain.TradeStore
	Audit    domain.AuditStore
	Bus      domain.EventBus
	Selector *risk.Selector
	Costs    *risk.CostModel
	Logger   *slog.Logger

	Regime       config.RegimeConfig
	VenueTimeout time.Duration
	StoreTimeout time.Duration
	TickBuffer   int
}

// New creates an Orchestrator. It does not start any workers; open groups
// are attached via Recover and OpenGroup.
func New(opts Options) *Orchestrator {
	if opts.TickBuffer <= 0 {
		opts.TickBuffer = 64
	}
	if opts.VenueTimeout <= 0 {
		opts.VenueTimeout = 5 * time.Second
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 3 * time.Second
	}
	return &Orchestrator{
		venue:        opts.Venue,
		groups:       opts.Groups,
		trades:       opts.Trades,
		audit:        opts.Audit,
		bus:          opts.Bus,
		selector:     opts.Selector,
		costs:        opts.Costs,
		logger:       opts.Logger.With(slog.String("component", "orchestrator")),
		regimeCfg:    opts.Regime,
		venueTimeout: opts.VenueTimeout,
		storeTimeout: opts.StoreTimeout,
		tickBuffer:   opts.TickBuffer,
		workers:      make(map[string]*groupWorker),
		byInst:       make(map[string][]*groupWorker),
		bars:         make(map[string][]domain.Bar),
		events:       make(chan domain.LifecycleEvent, 256),
	}
}

// Events exposes the lifecycle event stream for in-process consumers such as
// the notifier. Events are dropped, not blocked on, when the consumer lags.
func (o *Orchestrator) Events() <-chan domain.LifecycleEvent {
	return o.events
}

// Recover reloads every still-open group from the store and re-attaches it to
// the tick flow. Trailing resumes from the persisted stop, extreme, and
// tp1_hit exactly as last committed.
func (o *Orchestrator) Recover(ctx context.Context) error {
	open, err := o.groups.ListOpen(ctx)
	if err != nil {
		return fmt.Errorf("lifecycle: recover: %w", err)
	}
	for i := range open {
		g := open[i]
		o.attach(&g)
		o.emit(ctx, domain.LifecycleEvent{
			Type:       domain.EventGroupRecovered,
			GroupID:    g.ID,
			Instrument: g.Instrument,
			Direction:  g.Direction,
			Regime:     g.Regime,
			Stop:       g.CurrentStop,
			Time:       time.Now().UTC(),
		})
		o.logger.Info("group recovered",
			slog.String("group_id", g.ID),
			slog.String("instrument", g.Instrument),
			slog.Float64("current_stop", g.CurrentStop),
			slog.Bool("tp1_hit", g.TP1Hit))
	}
	o.logger.Info("recovery complete", slog.Int("open_groups", len(open)))
	return nil
}

// OpenGroup creates a position group from an entry signal: classify the
// regime from recent bars, resolve the risk bundle, place the order at the
// venue, and only then build and persist the group from the acknowledged
// fill. Returns the new group's ID.
func (o *Orchestrator) OpenGroup(ctx context.Context, sig domain.EntrySignal) (string, error) {
	if sig.Instrument == "" || sig.Size <= 0 {
		return "", fmt.Errorf("lifecycle: invalid signal %q: instrument and positive size required", sig.ID)
	}
	if sig.Direction != domain.DirectionLong && sig.Direction != domain.DirectionShort {
		return "", fmt.Errorf("lifecycle: invalid signal %q: unknown direction %q", sig.ID, sig.Direction)
	}

	reg := regime.Classify(o.recentBars(sig.Instrument), o.regimeCfg)
	params := o.selector.Select(reg, sig.Instrument)

	vctx, cancel := context.WithTimeout(ctx, o.venueTimeout)
	ack, err := o.venue.PlaceOrder(vctx, sig)
	cancel()
	if err != nil {
		metrics.VenueRejections.Inc()
		o.emit(ctx, domain.LifecycleEvent{
			Type:       domain.EventVenueRejected,
			Instrument: sig.Instrument,
			Direction:  sig.Direction,
			Reason:     err.Error(),
			Time:       time.Now().UTC(),
		})
		return "", fmt.Errorf("lifecycle: place order: %w", err)
	}

	entry := ack.Price
	if entry == 0 {
		entry = sig.EntryPrice
	}
	stop := risk.InitialStop(entry, sig.Direction, params)
	if sig.StopPrice != 0 {
		stop = sig.StopPrice
	}
	now := sig.Timestamp
	if now.IsZero() {
		now = time.Now().UTC()
	}

	g := &domain.PositionGroup{
		ID:               uuid.NewString(),
		Instrument:       sig.Instrument,
		Direction:        sig.Direction,
		Regime:           reg,
		EntryPrice:       entry,
		InitialStop:      stop,
		Size:             sig.Size,
		Legs:             risk.BuildLegs(entry, sig.Direction, params),
		CurrentStop:      stop,
		ExtremePrice:     entry,
		TrailRetracement: params.TrailRetracement,
		TrailActivation:  params.TrailActivation,
		OpenedAt:         now,
		TimeoutAt:        now.Add(params.Timeout),
		CostsAccrued:     o.costs.EntryCost(sig.Size),
		VenueRef:         ack.Ref,
	}

	// The venue position is live; keep trying until the snapshot is durable.
	if err := o.persist(ctx, g); err != nil {
		return "", fmt.Errorf("lifecycle: persist new group: %w", err)
	}

	o.attach(g)
	metrics.GroupsOpened.WithLabelValues(string(reg)).Inc()
	o.emit(ctx, domain.LifecycleEvent{
		Type:       domain.EventGroupOpened,
		GroupID:    g.ID,
		Instrument: g.Instrument,
		Direction:  g.Direction,
		Regime:     reg,
		Price:      entry,
		Stop:       stop,
		Time:       now,
	})
	o.auditLog(ctx, "group_opened", map[string]any{
		"group_id": g.ID, "instrument": g.Instrument, "direction": string(g.Direction),
		"regime": string(reg), "entry": entry, "stop": stop, "size": g.Size,
	})
	o.logger.Info("group opened",
		slog.String("group_id", g.ID),
		slog.String("instrument", g.Instrument),
		slog.String("direction", string(g.Direction)),
		slog.String("regime", string(reg)),
		slog.Float64("entry", entry),
		slog.Float64("stop", stop))
	return g.ID, nil
}

// HandleTick records the bar for regime classification and fans the tick out
// to every worker open on the tick's instrument. A worker whose buffer is
// full skips the tick; the next one re-evaluates from current state.
func (o *Orchestrator) HandleTick(ctx context.Context, tick domain.Tick) {
	o.recordBar(tick)

	o.mu.RLock()
	ws := make([]*groupWorker, len(o.byInst[tick.Instrument]))
	copy(ws, o.byInst[tick.Instrument])
	o.mu.RUnlock()

	for _, w := range ws {
		select {
		case w.ticks <- tick:
		default:
			o.logger.Warn("tick buffer full, skipping",
				slog.String("group_id", w.group.ID),
				slog.String("instrument", tick.Instrument))
		}
	}
}

// OpenGroupCount returns the number of groups currently attached.
func (o *Orchestrator) OpenGroupCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.workers)
}

// Close stops all workers and waits for in-flight tick processing to finish.
// Every committed transition has already been persisted by the time a worker
// exits, so shutdown after Close is clean.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	for _, w := range o.workers {
		close(w.done)
	}
	o.mu.Unlock()
	o.wg.Wait()
	close(o.events)
}

// attach registers a worker for the group and starts its tick loop.
func (o *Orchestrator) attach(g *domain.PositionGroup) {
	w := &groupWorker{
		group: g,
		ticks: make(chan domain.Tick, o.tickBuffer),
		done:  make(chan struct{}),
	}
	o.mu.Lock()
	o.workers[g.ID] = w
	o.byInst[g.Instrument] = append(o.byInst[g.Instrument], w)
	o.mu.Unlock()
	metrics.OpenGroups.Inc()

	o.wg.Add(1)
	go o.runWorker(w)
}

// detach removes a worker after its group reached a terminal state.
func (o *Orchestrator) detach(w *groupWorker) {
	o.mu.Lock()
	delete(o.workers, w.group.ID)
	ws := o.byInst[w.group.Instrument]
	for i := range ws {
		if ws[i] == w {
			o.byInst[w.group.Instrument] = append(ws[:i], ws[i+1:]...)
			break
		}
	}
	o.mu.Unlock()
	metrics.OpenGroups.Dec()
}

func (o *Orchestrator) runWorker(w *groupWorker) {
	defer o.wg.Done()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-w.done:
			t := time.NewTimer(drainGrace)
			defer t.Stop()
			select {
			case <-t.C:
				cancel()
			case <-ctx.Done():
			}
		case <-ctx.Done():
		}
	}()
	for {
		select {
		case <-w.done:
			return
		case tick := <-w.ticks:
			o.processTick(ctx, w, tick)
			if w.group.Closed() {
				o.detach(w)
				return
			}
		}
	}
}

// processTick runs one tick through the state machine for one group. Venue
// calls precede local commits; every committed transition is persisted before
// the worker takes the next tick.
func (o *Orchestrator) processTick(ctx context.Context, w *groupWorker, tick domain.Tick) {
	g := w.group
	plan := PlanTick(g, tick)

	if plan.Empty() {
		if plan.Extreme != g.ExtremePrice {
			g.ExtremePrice = plan.Extreme
			if err := o.persist(ctx, g); err != nil {
				o.logger.Error("persist extreme failed", slog.String("group_id", g.ID), slog.String("error", err.Error()))
			}
		}
		return
	}

	g.ExtremePrice = plan.Extreme

	for _, c := range plan.Closes {
		if !o.closeLeg(ctx, g, c, tick) {
			// Venue rejected or timed out; leave remaining legs untouched and
			// retry from current state on the next tick.
			return
		}
	}

	if plan.TimedOut {
		o.emit(ctx, domain.LifecycleEvent{
			Type:       domain.EventGroupTimedOut,
			GroupID:    g.ID,
			Instrument: g.Instrument,
			Direction:  g.Direction,
			Price:      tick.Mid(),
			Time:       tick.Time,
		})
	}

	// Re-evaluate trailing after commits so a TP1 close on this tick can
	// activate trailing immediately.
	stop := plan.Stop
	if stop == nil && g.TP1Hit && len(g.OpenLegs()) > 0 {
		if s, ok := Trail(g, g.ExtremePrice); ok {
			stop = &s
		}
	}
	if stop != nil && len(g.OpenLegs()) > 0 {
		o.syncStop(ctx, g, *stop, tick)
	}

	if g.Closed() {
		o.finalize(ctx, g, tick)
	} else if err := o.persist(ctx, g); err != nil {
		o.logger.Error("persist group failed", slog.String("group_id", g.ID), slog.String("error", err.Error()))
	}
}

// closeLeg executes one planned leg exit: venue close first, then local
// commit, trade record, and persistence. Returns false when the venue call
// failed and the transition was not applied.
func (o *Orchestrator) closeLeg(ctx context.Context, g *domain.PositionGroup, c LegClose, tick domain.Tick) bool {
	leg := &g.Legs[c.Index]

	vctx, cancel := context.WithTimeout(ctx, o.venueTimeout)
	ack, err := o.venue.ClosePosition(vctx, g.VenueRef, leg.SizeFraction)
	cancel()
	if err != nil {
		metrics.VenueRejections.Inc()
		o.logger.Warn("venue close rejected, retrying next tick",
			slog.String("group_id", g.ID),
			slog.String("leg_id", leg.ID),
			slog.String("error", err.Error()))
		o.emit(ctx, domain.LifecycleEvent{
			Type:       domain.EventVenueRejected,
			GroupID:    g.ID,
			LegID:      leg.ID,
			Instrument: g.Instrument,
			Direction:  g.Direction,
			Reason:     err.Error(),
			Time:       tick.Time,
		})
		return false
	}

	price := c.Price
	if ack.Price != 0 {
		price = ack.Price
	}

	exitAt := tick.Time
	leg.Status = c.Status
	leg.ExitPrice = price
	leg.ExitTime = &exitAt
	if c.Status == domain.LegStatusClosedTP && !g.TP1Hit {
		g.TP1Hit = true
	}

	exitCost := o.costs.ExitCost(g.Size, leg.SizeFraction)
	carry := o.costs.Carry(g.Size*leg.SizeFraction, exitAt.Sub(g.OpenedAt))
	g.CostsAccrued += exitCost + carry

	pnl := g.LegPnL(*leg)
	metrics.LegsClosed.WithLabelValues(string(c.Status)).Inc()
	metrics.RealizedPnL.Add(pnl - exitCost - carry)

	if err := o.persist(ctx, g); err != nil {
		o.logger.Error("persist leg close failed", slog.String("group_id", g.ID), slog.String("error", err.Error()))
	}

	o.recordTrade(ctx, g, *leg, pnl, exitCost+carry)
	o.emit(ctx, domain.LifecycleEvent{
		Type:       domain.EventLegClosed,
		GroupID:    g.ID,
		LegID:      leg.ID,
		Instrument: g.Instrument,
		Direction:  g.Direction,
		Regime:     g.Regime,
		Price:      price,
		Stop:       g.CurrentStop,
		Reason:     string(c.Status),
		PnL:        pnl,
		Time:       exitAt,
	})
	o.auditLog(ctx, "leg_closed", map[string]any{
		"group_id": g.ID, "leg_id": leg.ID, "reason": string(c.Status),
		"price": price, "pnl": pnl,
	})
	o.logger.Info("leg closed",
		slog.String("group_id", g.ID),
		slog.String("leg_id", leg.ID),
		slog.String("reason", string(c.Status)),
		slog.Float64("price", price),
		slog.Float64("pnl", pnl))
	return true
}

// syncStop pushes a trailing stop candidate to the venue and commits it
// locally only on acknowledgment. Rejection keeps the previous stop, which
// the venue is still enforcing.
func (o *Orchestrator) syncStop(ctx context.Context, g *domain.PositionGroup, stop float64, tick domain.Tick) {
	vctx, cancel := context.WithTimeout(ctx, o.venueTimeout)
	ack, err := o.venue.ModifyStop(vctx, g.VenueRef, stop)
	cancel()
	if err != nil {
		metrics.VenueRejections.Inc()
		o.logger.Warn("venue stop modify rejected, retrying next tick",
			slog.String("group_id", g.ID),
			slog.Float64("stop", stop),
			slog.String("error", err.Error()))
		o.emit(ctx, domain.LifecycleEvent{
			Type:       domain.EventVenueRejected,
			GroupID:    g.ID,
			Instrument: g.Instrument,
			Direction:  g.Direction,
			Stop:       stop,
			Reason:     err.Error(),
			Time:       tick.Time,
		})
		return
	}

	committed := stop
	if ack.Price != 0 {
		committed = ack.Price
	}
	// The venue may ack at its own adjusted level; a level less favorable
	// than the stop already held must never loosen the local stop.
	if !improves(g, committed) {
		o.logger.Warn("venue acked stop would widen, keeping current",
			slog.String("group_id", g.ID),
			slog.Float64("acked", committed),
			slog.Float64("current", g.CurrentStop))
		return
	}
	first := g.CurrentStop == g.InitialStop
	g.CurrentStop = committed

	if err := o.persist(ctx, g); err != nil {
		o.logger.Error("persist stop update failed", slog.String("group_id", g.ID), slog.String("error", err.Error()))
	}

	metrics.TrailingUpdates.Inc()
	evType := domain.EventTrailingUpdated
	if first {
		evType = domain.EventTrailingActivated
	}
	o.emit(ctx, domain.LifecycleEvent{
		Type:       evType,
		GroupID:    g.ID,
		Instrument: g.Instrument,
		Direction:  g.Direction,
		Stop:       committed,
		Price:      tick.Mid(),
		Time:       tick.Time,
	})
	o.logger.Debug("trailing stop committed",
		slog.String("group_id", g.ID),
		slog.Float64("stop", committed))
}

// finalize removes the snapshot of a fully closed group and reports the
// group-level outcome.
func (o *Orchestrator) finalize(ctx context.Context, g *domain.PositionGroup, tick domain.Tick) {
	var pnl float64
	for _, leg := range g.Legs {
		pnl += g.LegPnL(leg)
	}
	pnl -= g.CostsAccrued

	sctx, cancel := context.WithTimeout(ctx, o.storeTimeout)
	err := o.groups.Delete(sctx, g.ID)
	cancel()
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		o.logger.Error("delete closed group failed", slog.String("group_id", g.ID), slog.String("error", err.Error()))
	}

	o.emit(ctx, domain.LifecycleEvent{
		Type:       domain.EventGroupClosed,
		GroupID:    g.ID,
		Instrument: g.Instrument,
		Direction:  g.Direction,
		Regime:     g.Regime,
		PnL:        pnl,
		Time:       tick.Time,
	})
	o.auditLog(ctx, "group_closed", map[string]any{
		"group_id": g.ID, "instrument": g.Instrument, "pnl": pnl,
	})
	o.logger.Info("group closed",
		slog.String("group_id", g.ID),
		slog.String("instrument", g.Instrument),
		slog.Float64("pnl", pnl))
}

// persist writes the group snapshot durably, retrying until it succeeds or
// the context is canceled. The worker does not take another tick for this
// group until the write lands.
func (o *Orchestrator) persist(ctx context.Context, g *domain.PositionGroup) error {
	for {
		sctx, cancel := context.WithTimeout(ctx, o.storeTimeout)
		err := o.groups.Save(sctx, *g)
		cancel()
		if err == nil {
			return nil
		}
		o.logger.Error("group snapshot write failed, retrying",
			slog.String("group_id", g.ID),
			slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return fmt.Errorf("lifecycle: persist group %s: %w", g.ID, ctx.Err())
		case <-time.After(persistRetryDelay):
		}
	}
}

func (o *Orchestrator) recordTrade(ctx context.Context, g *domain.PositionGroup, leg domain.Leg, pnl, costs float64) {
	rec := domain.TradeRecord{
		GroupID:      g.ID,
		LegID:        leg.ID,
		Instrument:   g.Instrument,
		Direction:    g.Direction,
		Regime:       g.Regime,
		EntryPrice:   g.EntryPrice,
		ExitPrice:    leg.ExitPrice,
		ExitReason:   leg.Status,
		SizeFraction: leg.SizeFraction,
		Size:         g.Size * leg.SizeFraction,
		PnL:          pnl,
		Costs:        costs,
		OpenedAt:     g.OpenedAt,
		ClosedAt:     *leg.ExitTime,
	}
	sctx, cancel := context.WithTimeout(ctx, o.storeTimeout)
	defer cancel()
	if err := o.trades.Insert(sctx, rec); err != nil {
		o.logger.Error("trade record insert failed",
			slog.String("group_id", g.ID),
			slog.String("leg_id", leg.ID),
			slog.String("error", err.Error()))
	}
}

// emit delivers an event to the in-process channel and, when a bus is
// configured, publishes it for external consumers. Neither path blocks the
// worker.
func (o *Orchestrator) emit(ctx context.Context, ev domain.LifecycleEvent) {
	select {
	case o.events <- ev:
	default:
		o.logger.Warn("event channel full, dropping", slog.String("event", string(ev.Type)))
	}
	if o.bus == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := o.bus.Publish(ctx, EventChannel, payload); err != nil {
		o.logger.Warn("event publish failed", slog.String("error", err.Error()))
	}
}

func (o *Orchestrator) auditLog(ctx context.Context, event string, detail map[string]any) {
	if o.audit == nil {
		return
	}
	sctx, cancel := context.WithTimeout(ctx, o.storeTimeout)
	defer cancel()
	if err := o.audit.Log(sctx, event, detail); err != nil {
		o.logger.Warn("audit log failed", slog.String("event", event), slog.String("error", err.Error()))
	}
}

// recordBar appends the tick's bar to the instrument's rolling window used by
// the regime classifier. A missing bar is simply absent from the window; no
// backfill is attempted.
func (o *Orchestrator) recordBar(tick domain.Tick) {
	o.barsMu.Lock()
	defer o.barsMu.Unlock()
	window := o.regimeCfg.Window
	if window <= 0 {
		window = 50
	}
	bars := append(o.bars[tick.Instrument], domain.BarFromTick(tick))
	if len(bars) > window {
		bars = bars[len(bars)-window:]
	}
	o.bars[tick.Instrument] = bars
}

func (o *Orchestrator) recentBars(instrument string) []domain.Bar {
	o.barsMu.Lock()
	defer o.barsMu.Unlock()
	bars := make([]domain.Bar, len(o.bars[instrument]))
	copy(bars, o.bars[instrument])
	return bars
}

// SeedBars preloads an instrument's bar window, e.g. from history at startup
// so the first signal after boot classifies against real context.
func (o *Orchestrator) SeedBars(instrument string, bars []domain.Bar) {
	o.barsMu.Lock()
	defer o.barsMu.Unlock()
	window := o.regimeCfg.Window
	if window > 0 && len(bars) > window {
		bars = bars[len(bars)-window:]
	}
	o.bars[instrument] = append([]domain.Bar(nil), bars...)
}
