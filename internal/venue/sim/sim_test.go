package sim

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/trident/internal/domain"
)

func newTestVenue(slippageBps float64) *Venue {
	return New(slippageBps, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func place(t *testing.T, v *Venue, dir domain.Direction) domain.VenueAck {
	t.Helper()
	ack, err := v.PlaceOrder(context.Background(), domain.EntrySignal{
		Instrument: "XAUUSD",
		Direction:  dir,
		EntryPrice: 2870,
		Size:       2,
	})
	require.NoError(t, err)
	return ack
}

func TestPlaceOrderAppliesAdverseSlippage(t *testing.T) {
	v := newTestVenue(10) // 10 bps

	long := place(t, v, domain.DirectionLong)
	assert.InDelta(t, 2870*1.001, long.Price, 1e-9)

	short := place(t, v, domain.DirectionShort)
	assert.InDelta(t, 2870*0.999, short.Price, 1e-9)

	assert.NotEqual(t, long.Ref, short.Ref)
	assert.Equal(t, 2, v.OpenPositions())
}

func TestModifyStopIsIdempotent(t *testing.T) {
	v := newTestVenue(0)
	ack := place(t, v, domain.DirectionLong)

	_, err := v.ModifyStop(context.Background(), ack.Ref, 2902.5)
	require.NoError(t, err)

	// Same level again: acknowledged without effect, even with a rejection
	// queued, because no modification is actually sent.
	v.RejectNext(1)
	resend, err := v.ModifyStop(context.Background(), ack.Ref, 2902.5)
	require.NoError(t, err)
	assert.Equal(t, 2902.5, resend.Price)

	stop, ok := v.Stop(ack.Ref)
	require.True(t, ok)
	assert.Equal(t, 2902.5, stop)
}

func TestModifyStopUnknownRef(t *testing.T) {
	v := newTestVenue(0)
	_, err := v.ModifyStop(context.Background(), "sim-404", 2900)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRejectNextFailsModification(t *testing.T) {
	v := newTestVenue(0)
	ack := place(t, v, domain.DirectionLong)

	v.RejectNext(1)
	_, err := v.ModifyStop(context.Background(), ack.Ref, 2910)
	assert.ErrorIs(t, err, domain.ErrVenueRejected)

	// The rejection is consumed; the retry succeeds.
	_, err = v.ModifyStop(context.Background(), ack.Ref, 2910)
	assert.NoError(t, err)
}

func TestClosePositionByFractions(t *testing.T) {
	v := newTestVenue(0)
	ack := place(t, v, domain.DirectionLong)

	for _, f := range []float64{0.4, 0.3, 0.3} {
		_, err := v.ClosePosition(context.Background(), ack.Ref, f)
		require.NoError(t, err)
	}
	assert.Equal(t, 0, v.OpenPositions())

	_, err := v.ClosePosition(context.Background(), ack.Ref, 0.1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestClosePositionRejectsBadFraction(t *testing.T) {
	v := newTestVenue(0)
	ack := place(t, v, domain.DirectionLong)

	_, err := v.ClosePosition(context.Background(), ack.Ref, 0)
	assert.Error(t, err)
	_, err = v.ClosePosition(context.Background(), ack.Ref, 1.5)
	assert.Error(t, err)
}
