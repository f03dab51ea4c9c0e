package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func threeLegGroup(dir Direction) PositionGroup {
	return PositionGroup{
		ID:         "g-1",
		Instrument: "XAUUSD",
		Direction:  dir,
		EntryPrice: 2870,
		Size:       1,
		Legs: []Leg{
			{ID: "l-1", SizeFraction: 0.4, TakeProfit: 2930, Status: LegStatusOpen},
			{ID: "l-2", SizeFraction: 0.3, TakeProfit: 2960, Status: LegStatusOpen},
			{ID: "l-3", SizeFraction: 0.3, TakeProfit: 2990, Status: LegStatusOpen},
		},
	}
}

func TestLegStatusTerminal(t *testing.T) {
	require.False(t, LegStatusOpen.Terminal())
	for _, s := range []LegStatus{LegStatusClosedTP, LegStatusClosedSL, LegStatusClosedTrail, LegStatusClosedTimeout} {
		require.True(t, s.Terminal(), string(s))
	}
}

func TestOpenLegsAndClosed(t *testing.T) {
	g := threeLegGroup(DirectionLong)
	require.Equal(t, []int{0, 1, 2}, g.OpenLegs())
	require.False(t, g.Closed())

	g.Legs[1].Status = LegStatusClosedTP
	require.Equal(t, []int{0, 2}, g.OpenLegs())
	require.False(t, g.Closed())

	g.Legs[0].Status = LegStatusClosedSL
	g.Legs[2].Status = LegStatusClosedTimeout
	require.Nil(t, g.OpenLegs())
	require.True(t, g.Closed())
}

func TestFavorableMoveMirrorsByDirection(t *testing.T) {
	long := threeLegGroup(DirectionLong)
	require.Equal(t, 60.0, long.FavorableMove(2870, 2930))
	require.Equal(t, -20.0, long.FavorableMove(2870, 2850))
	require.True(t, long.Favorable(2870, 2930))
	require.False(t, long.Favorable(2870, 2850))

	short := threeLegGroup(DirectionShort)
	require.Equal(t, 60.0, short.FavorableMove(2870, 2810))
	require.Equal(t, -20.0, short.FavorableMove(2870, 2890))
	require.True(t, short.Favorable(2870, 2810))
	require.False(t, short.Favorable(2870, 2890))
}

func TestLegPnLScalesBySizeFraction(t *testing.T) {
	g := threeLegGroup(DirectionLong)
	g.Size = 2

	leg := g.Legs[0]
	leg.ExitPrice = 2930
	require.InDelta(t, 48.0, g.LegPnL(leg), 1e-9) // 60 points * 2 * 0.4

	short := threeLegGroup(DirectionShort)
	leg = short.Legs[2]
	leg.ExitPrice = 2890
	require.InDelta(t, -6.0, short.LegPnL(leg), 1e-9)
}

func TestBarFromTickFallsBackToMid(t *testing.T) {
	tick := Tick{Instrument: "XAUUSD", Time: time.Now(), Bid: 2869, Ask: 2871}
	bar := BarFromTick(tick)
	require.Equal(t, 2870.0, bar.Open)
	require.Equal(t, 2870.0, bar.Close)
	require.Equal(t, 2870.0, bar.High)
	require.Equal(t, 2870.0, bar.Low)

	tick.High = 2880
	tick.Low = 2865
	bar = BarFromTick(tick)
	require.Equal(t, 2880.0, bar.High)
	require.Equal(t, 2865.0, bar.Low)
}

func TestTickMidOneSided(t *testing.T) {
	require.Equal(t, 2870.0, Tick{Bid: 2869, Ask: 2871}.Mid())
	require.Equal(t, 2869.0, Tick{Bid: 2869}.Mid())
	require.Equal(t, 2871.0, Tick{Ask: 2871}.Mid())
}
