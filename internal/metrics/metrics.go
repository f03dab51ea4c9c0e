// Package metrics exposes Prometheus instrumentation for the trade lifecycle
// engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	GroupsOpened = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trident_groups_opened_total",
			Help: "Total number of position groups opened (by regime).",
		},
		[]string{"regime"},
	)

	LegsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trident_legs_closed_total",
			Help: "Total number of legs closed (by exit reason).",
		},
		[]string{"reason"},
	)

	TrailingUpdates = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trident_trailing_updates_total",
			Help: "Total number of acknowledged trailing stop modifications.",
		},
	)

	VenueRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "trident_venue_rejections_total",
			Help: "Total number of rejected or timed-out venue calls.",
		},
	)

	OpenGroups = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trident_open_groups",
			Help: "Current number of open position groups.",
		},
	)

	// RealizedPnL is a gauge because realized profit can go negative.
	RealizedPnL = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trident_realized_pnl",
			Help: "Cumulative realized PnL across closed legs, net of costs.",
		},
	)
)

func init() {
	prometheus.MustRegister(GroupsOpened, LegsClosed, TrailingUpdates, VenueRejections, OpenGroups, RealizedPnL)
}
