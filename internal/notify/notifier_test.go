package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/trident/internal/domain"
)

type recordingSender struct {
	name   string
	titles []string
	fail   bool
}

func (s *recordingSender) Send(_ context.Context, ev domain.LifecycleEvent) error {
	if s.fail {
		return errors.New("boom")
	}
	title, _ := FormatEvent(ev)
	s.titles = append(s.titles, title)
	return nil
}

func (s *recordingSender) Name() string { return s.name }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func legClosedEvent() domain.LifecycleEvent {
	return domain.LifecycleEvent{
		Type:       domain.EventLegClosed,
		GroupID:    "g-1",
		Instrument: "XAUUSD",
		Direction:  domain.DirectionLong,
		Price:      2930,
		Reason:     "closed_tp",
		PnL:        24,
		Time:       time.Now(),
	}
}

func TestNotifyEventFiltersByType(t *testing.T) {
	sender := &recordingSender{name: "test"}
	n := NewNotifier([]Sender{sender}, []string{"group_closed"}, testLogger())

	require.NoError(t, n.NotifyEvent(context.Background(), legClosedEvent()))
	assert.Empty(t, sender.titles)

	require.NoError(t, n.NotifyEvent(context.Background(), domain.LifecycleEvent{
		Type:       domain.EventGroupClosed,
		GroupID:    "g-1",
		Instrument: "XAUUSD",
		PnL:        55,
	}))
	require.Len(t, sender.titles, 1)
	assert.Contains(t, sender.titles[0], "Group closed")
}

func TestNotifyEventEmptyFilterForwardsAll(t *testing.T) {
	sender := &recordingSender{name: "test"}
	n := NewNotifier([]Sender{sender}, nil, testLogger())

	require.NoError(t, n.NotifyEvent(context.Background(), legClosedEvent()))
	assert.Len(t, sender.titles, 1)
}

func TestDispatchContinuesPastFailingSender(t *testing.T) {
	bad := &recordingSender{name: "bad", fail: true}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, testLogger())

	err := n.NotifyEvent(context.Background(), legClosedEvent())
	assert.Error(t, err)
	assert.Len(t, good.titles, 1)
}

func TestRunConsumesUntilChannelCloses(t *testing.T) {
	sender := &recordingSender{name: "test"}
	n := NewNotifier([]Sender{sender}, nil, testLogger())

	events := make(chan domain.LifecycleEvent, 2)
	events <- legClosedEvent()
	events <- domain.LifecycleEvent{Type: domain.EventGroupClosed, Instrument: "XAUUSD"}
	close(events)

	require.NoError(t, n.Run(context.Background(), events))
	assert.Len(t, sender.titles, 2)
}

func TestFormatEventCoversAllTypes(t *testing.T) {
	for _, typ := range []domain.EventType{
		domain.EventGroupOpened, domain.EventLegClosed,
		domain.EventTrailingActivated, domain.EventTrailingUpdated,
		domain.EventGroupClosed, domain.EventGroupTimedOut,
		domain.EventVenueRejected, domain.EventGroupRecovered,
	} {
		title, message := FormatEvent(domain.LifecycleEvent{Type: typ, Instrument: "XAUUSD", GroupID: "g-1"})
		assert.NotEmpty(t, title, string(typ))
		assert.NotEmpty(t, message, string(typ))
	}
}
