package risk

import (
	"time"

	"github.com/quantfold/trident/internal/config"
)

// CostModel accrues spread, commission and carry against a group so that
// reported PnL is net of trading friction.
type CostModel struct {
	cfg config.CostConfig
}

func NewCostModel(cfg config.CostConfig) *CostModel {
	return &CostModel{cfg: cfg}
}

// EntryCost is charged once when the group opens: full spread plus commission
// on the whole position size.
func (m *CostModel) EntryCost(size float64) float64 {
	return m.cfg.Spread*size + m.cfg.Commission*size
}

// ExitCost is charged per leg close, proportional to the fraction exited.
func (m *CostModel) ExitCost(size, fraction float64) float64 {
	return m.cfg.Commission * size * fraction
}

// Carry returns the holding cost for the open interval.
func (m *CostModel) Carry(size float64, held time.Duration) float64 {
	days := held.Hours() / 24
	return m.cfg.CarryPerDay * size * days
}
