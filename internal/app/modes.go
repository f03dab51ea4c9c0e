package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/quantfold/trident/internal/domain"
	"github.com/quantfold/trident/internal/feed"
	"github.com/quantfold/trident/internal/lifecycle"
	"github.com/quantfold/trident/internal/risk"
	"github.com/quantfold/trident/internal/venue/broker"
	"github.com/quantfold/trident/internal/venue/sim"
)

// LiveMode runs the full engine: broker venue, websocket market data, the
// lifecycle orchestrator with restart recovery, the entry signal subscription,
// the notifier, and the metrics endpoint.
func (a *App) LiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting live mode")

	g, ctx := errgroup.WithContext(ctx)

	venue := broker.NewClient(a.cfg.Venue)
	orch := lifecycle.New(lifecycle.Options{
		Venue:        venue,
		Groups:       deps.Groups,
		Trades:       deps.Trades,
		Audit:        deps.Audit,
		Bus:          deps.Bus,
		Selector:     risk.NewSelector(a.cfg.Risk),
		Costs:        risk.NewCostModel(a.cfg.Risk.Costs),
		Logger:       a.logger,
		Regime:       a.cfg.Regime,
		VenueTimeout: a.cfg.Venue.CallTimeout.Duration,
		StoreTimeout: a.cfg.Engine.StoreTimeout.Duration,
		TickBuffer:   a.cfg.Engine.TickBuffer,
	})

	// Re-attach groups that were open when the previous process exited.
	if err := orch.Recover(ctx); err != nil {
		return fmt.Errorf("live: recover open groups: %w", err)
	}

	// Notifier consumes the orchestrator's event stream.
	g.Go(func() error {
		return deps.Notifier.Run(ctx, orch.Events())
	})

	// Market data: websocket feed publishes onto the bus; the dispatcher
	// caches each tick and drives the orchestrator. Splitting the two means
	// a monitor process on the same bus sees the identical stream.
	dispatcher := feed.NewDispatcher(deps.Bus, deps.Ticks, orch.HandleTick, a.logger)
	g.Go(func() error {
		return dispatcher.Run(ctx)
	})

	wsFeed := feed.NewWSFeed(
		a.cfg.Feed.WsURL,
		a.cfg.Feed.Instruments,
		func(ctx context.Context, tick domain.Tick) {
			if err := dispatcher.Publish(ctx, tick); err != nil {
				a.logger.WarnContext(ctx, "tick publish failed",
					slog.String("instrument", tick.Instrument),
					slog.String("error", err.Error()),
				)
			}
		},
		a.logger,
	)
	g.Go(func() error {
		defer wsFeed.Close()
		return wsFeed.Run(ctx)
	})

	// Entry signals arrive over the bus from external strategy processes.
	g.Go(func() error {
		return a.runSignalListener(ctx, deps, orch)
	})

	// Cold-storage archival of aged trade records.
	if deps.Archiver != nil {
		g.Go(func() error {
			return deps.Archiver.RunPeriodic(ctx, a.cfg.Archive.Interval.Duration)
		})
	}

	if a.cfg.Metrics.Enabled {
		a.startMetricsServer(ctx, g)
	}

	err := g.Wait()
	orch.Close()
	return err
}

// runSignalListener subscribes to the entry signal channel and opens a
// position group for each valid signal. Malformed or rejected signals are
// logged and skipped; the listener only exits with the context.
func (a *App) runSignalListener(ctx context.Context, deps *Dependencies, orch *lifecycle.Orchestrator) error {
	ch, err := deps.Bus.Subscribe(ctx, lifecycle.SignalChannel)
	if err != nil {
		return fmt.Errorf("live: subscribe %s: %w", lifecycle.SignalChannel, err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-ch:
			if !ok {
				return fmt.Errorf("live: signal channel closed")
			}
			var sig domain.EntrySignal
			if err := json.Unmarshal(payload, &sig); err != nil {
				a.logger.WarnContext(ctx, "malformed entry signal", slog.String("error", err.Error()))
				continue
			}
			id, err := orch.OpenGroup(ctx, sig)
			if err != nil {
				a.logger.WarnContext(ctx, "entry signal rejected",
					slog.String("signal_id", sig.ID),
					slog.String("instrument", sig.Instrument),
					slog.String("error", err.Error()),
				)
				continue
			}
			a.logger.InfoContext(ctx, "group opened from signal",
				slog.String("signal_id", sig.ID),
				slog.String("group_id", id),
			)
		}
	}
}

// startMetricsServer serves the Prometheus registry on the configured port.
func (a *App) startMetricsServer(ctx context.Context, g *errgroup.Group) {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Metrics.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g.Go(func() error {
		a.logger.InfoContext(ctx, "metrics server listening", slog.Int("port", a.cfg.Metrics.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// BacktestMode replays a CSV bar file through the engine against the paper
// venue. It warms the regime window, opens one configured position group, and
// lets the engine manage it to completion, then reports realized P&L.
func (a *App) BacktestMode(ctx context.Context, deps *Dependencies) error {
	bt := a.cfg.Backtest
	a.logger.InfoContext(ctx, "starting backtest mode",
		slog.String("file", bt.BarsFile),
		slog.String("instrument", bt.Instrument),
	)

	venue := sim.New(bt.SlippageBps, a.logger)
	orch := lifecycle.New(lifecycle.Options{
		Venue:    venue,
		Groups:   deps.Groups,
		Trades:   deps.Trades,
		Audit:    deps.Audit,
		Selector: risk.NewSelector(a.cfg.Risk),
		Costs:    risk.NewCostModel(a.cfg.Risk.Costs),
		Logger:   a.logger,
		Regime:   a.cfg.Regime,
		// Replay outruns the workers; a deep buffer keeps every bar.
		TickBuffer: 65536,
	})

	// Drain the event stream while replaying. Trades carry historical bar
	// timestamps, so realized P&L is tallied from the group_closed events
	// rather than queried back by time.
	var netPnL float64
	var closedGroups int
	eventsDone := make(chan struct{})
	go func() {
		defer close(eventsDone)
		for ev := range orch.Events() {
			if ev.Type == domain.EventGroupClosed {
				netPnL += ev.PnL
				closedGroups++
			}
		}
	}()

	warmup := bt.WarmupBars
	if warmup <= 0 {
		warmup = a.cfg.Regime.Window
	}
	direction := domain.DirectionLong
	if bt.Direction == "short" {
		direction = domain.DirectionShort
	}

	var fed int
	var opened bool
	replay := feed.NewReplay(bt.BarsFile, bt.Instrument, func(ctx context.Context, tick domain.Tick) {
		orch.HandleTick(ctx, tick)
		fed++
		if opened || fed < warmup {
			return
		}
		opened = true
		sig := domain.EntrySignal{
			ID:         uuid.NewString(),
			Source:     "backtest",
			Instrument: bt.Instrument,
			Direction:  direction,
			EntryPrice: tick.Mid(),
			Size:       bt.Size,
			Timestamp:  tick.Time,
		}
		if _, err := orch.OpenGroup(ctx, sig); err != nil {
			a.logger.ErrorContext(ctx, "backtest entry failed", slog.String("error", err.Error()))
		}
	}, a.logger)

	if err := replay.Run(ctx); err != nil {
		orch.Close()
		return fmt.Errorf("backtest: %w", err)
	}

	// Let the workers drain their buffered ticks before closing out. A group
	// can legitimately still be open when the data runs out, so the wait is
	// bounded rather than conditioned on every group closing.
	deadline := time.After(10 * time.Second)
drain:
	for orch.OpenGroupCount() > 0 {
		select {
		case <-ctx.Done():
			orch.Close()
			return ctx.Err()
		case <-deadline:
			break drain
		case <-time.After(50 * time.Millisecond):
		}
	}
	stillOpen := orch.OpenGroupCount()
	orch.Close()
	<-eventsDone

	a.logger.InfoContext(ctx, "backtest complete",
		slog.Int("bars", fed),
		slog.Int("closed_groups", closedGroups),
		slog.Int("open_groups", stillOpen),
		slog.Int("open_positions", venue.OpenPositions()),
		slog.Float64("net_pnl", netPnL),
	)
	return nil
}

// MonitorMode follows the lifecycle event channel on the bus and forwards
// events to the notifier, so alerting can run detached from the engine.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	ch, err := deps.Bus.Subscribe(ctx, lifecycle.EventChannel)
	if err != nil {
		return fmt.Errorf("monitor: subscribe %s: %w", lifecycle.EventChannel, err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-ch:
			if !ok {
				return fmt.Errorf("monitor: event channel closed")
			}
			var ev domain.LifecycleEvent
			if err := json.Unmarshal(payload, &ev); err != nil {
				a.logger.WarnContext(ctx, "malformed lifecycle event", slog.String("error", err.Error()))
				continue
			}
			a.logger.InfoContext(ctx, "lifecycle event",
				slog.String("event", string(ev.Type)),
				slog.String("group_id", ev.GroupID),
				slog.String("instrument", ev.Instrument),
			)
			if err := deps.Notifier.NotifyEvent(ctx, ev); err != nil {
				a.logger.WarnContext(ctx, "notify failed", slog.String("error", err.Error()))
			}
		}
	}
}
