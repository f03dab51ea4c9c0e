// Package notify delivers lifecycle events to operators over one or more
// channels (Telegram, Discord). Events can be filtered by type so operators
// receive only the alerts they care about.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/quantfold/trident/internal/domain"
)

// Sender is the interface each notification channel implements. Senders
// receive the full event so they can render channel-native payloads (Discord
// embeds, Telegram markup) instead of a flat string.
type Sender interface {
	// Send delivers a notification for the given lifecycle event.
	Send(ctx context.Context, ev domain.LifecycleEvent) error
	// Name returns a human-readable identifier for the sender.
	Name() string
}

// Notifier consumes the lifecycle event stream and dispatches formatted
// notifications to its senders. Only events whose type appears in the
// configured set are forwarded; an empty set forwards everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Run consumes events until the channel closes or ctx is canceled.
func (n *Notifier) Run(ctx context.Context, events <-chan domain.LifecycleEvent) error {
	n.logger.Info("notifier started", slog.Int("senders", len(n.senders)))
	defer n.logger.Info("notifier stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := n.NotifyEvent(ctx, ev); err != nil {
				n.logger.Warn("notify failed", slog.String("event", string(ev.Type)), slog.String("error", err.Error()))
			}
		}
	}
}

// NotifyEvent formats and dispatches one lifecycle event, subject to the
// event filter.
func (n *Notifier) NotifyEvent(ctx context.Context, ev domain.LifecycleEvent) error {
	if len(n.events) > 0 && !n.events[string(ev.Type)] {
		return nil
	}
	return n.dispatch(ctx, ev)
}

// FormatEvent renders a lifecycle event as a notification title and body.
func FormatEvent(ev domain.LifecycleEvent) (title, message string) {
	switch ev.Type {
	case domain.EventGroupOpened:
		title = fmt.Sprintf("Opened %s %s", strings.ToUpper(string(ev.Direction)), ev.Instrument)
		message = fmt.Sprintf("regime=%s entry=%.5g stop=%.5g", ev.Regime, ev.Price, ev.Stop)
	case domain.EventLegClosed:
		title = fmt.Sprintf("Leg closed %s (%s)", ev.Instrument, ev.Reason)
		message = fmt.Sprintf("group=%s price=%.5g pnl=%+.2f", ev.GroupID, ev.Price, ev.PnL)
	case domain.EventTrailingActivated:
		title = fmt.Sprintf("Trailing activated %s", ev.Instrument)
		message = fmt.Sprintf("group=%s stop=%.5g", ev.GroupID, ev.Stop)
	case domain.EventTrailingUpdated:
		title = fmt.Sprintf("Stop tightened %s", ev.Instrument)
		message = fmt.Sprintf("group=%s stop=%.5g", ev.GroupID, ev.Stop)
	case domain.EventGroupClosed:
		title = fmt.Sprintf("Group closed %s", ev.Instrument)
		message = fmt.Sprintf("group=%s pnl=%+.2f", ev.GroupID, ev.PnL)
	case domain.EventGroupTimedOut:
		title = fmt.Sprintf("Group timed out %s", ev.Instrument)
		message = fmt.Sprintf("group=%s price=%.5g", ev.GroupID, ev.Price)
	case domain.EventVenueRejected:
		title = fmt.Sprintf("Venue rejection %s", ev.Instrument)
		message = fmt.Sprintf("group=%s reason=%s", ev.GroupID, ev.Reason)
	case domain.EventGroupRecovered:
		title = fmt.Sprintf("Group recovered %s", ev.Instrument)
		message = fmt.Sprintf("group=%s stop=%.5g", ev.GroupID, ev.Stop)
	default:
		title = string(ev.Type)
		message = fmt.Sprintf("group=%s instrument=%s", ev.GroupID, ev.Instrument)
	}
	return title, message
}

// dispatch sends to every sender; one sender failing does not stop delivery
// to the others.
func (n *Notifier) dispatch(ctx context.Context, ev domain.LifecycleEvent) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, ev); err != nil {
			n.logger.Error("sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()))
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
