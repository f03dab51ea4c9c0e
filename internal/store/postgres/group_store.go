package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantfold/trident/internal/domain"
)

// GroupStore implements domain.GroupStore using PostgreSQL. Each open group
// is one row holding a schema-versioned JSONB snapshot; the row disappears
// when the group closes.
type GroupStore struct {
	pool *pgxpool.Pool
}

var _ domain.GroupStore = (*GroupStore)(nil)

// NewGroupStore creates a GroupStore backed by the given connection pool.
func NewGroupStore(pool *pgxpool.Pool) *GroupStore {
	return &GroupStore{pool: pool}
}

// groupSnapshot is the persisted shape of a position group. Field names are
// part of the snapshot schema; bump domain.SnapshotSchemaVersion on any
// incompatible change.
type groupSnapshot struct {
	ID          string           `json:"id"`
	Instrument  string           `json:"instrument"`
	Direction   domain.Direction `json:"direction"`
	Regime      domain.Regime    `json:"regime"`
	EntryPrice  float64          `json:"entry_price"`
	InitialStop float64          `json:"initial_stop"`
	Size        float64          `json:"size"`
	Legs        []legSnapshot    `json:"legs"`

	TP1Hit       bool    `json:"tp1_hit"`
	CurrentStop  float64 `json:"current_stop"`
	ExtremePrice float64 `json:"extreme_price"`

	TrailRetracement float64 `json:"trail_retracement"`
	TrailActivation  float64 `json:"trail_activation"`

	OpenedAt     time.Time `json:"opened_at"`
	TimeoutAt    time.Time `json:"timeout_at"`
	CostsAccrued float64   `json:"costs_accrued"`
	VenueRef     string    `json:"venue_ref"`
}

type legSnapshot struct {
	ID           string           `json:"id"`
	SizeFraction float64          `json:"size_fraction"`
	TakeProfit   float64          `json:"take_profit"`
	Status       domain.LegStatus `json:"status"`
	ExitPrice    float64          `json:"exit_price,omitempty"`
	ExitTime     *time.Time       `json:"exit_time,omitempty"`
}

func toSnapshot(g domain.PositionGroup) groupSnapshot {
	legs := make([]legSnapshot, len(g.Legs))
	for i, l := range g.Legs {
		legs[i] = legSnapshot(l)
	}
	return groupSnapshot{
		ID:               g.ID,
		Instrument:       g.Instrument,
		Direction:        g.Direction,
		Regime:           g.Regime,
		EntryPrice:       g.EntryPrice,
		InitialStop:      g.InitialStop,
		Size:             g.Size,
		Legs:             legs,
		TP1Hit:           g.TP1Hit,
		CurrentStop:      g.CurrentStop,
		ExtremePrice:     g.ExtremePrice,
		TrailRetracement: g.TrailRetracement,
		TrailActivation:  g.TrailActivation,
		OpenedAt:         g.OpenedAt,
		TimeoutAt:        g.TimeoutAt,
		CostsAccrued:     g.CostsAccrued,
		VenueRef:         g.VenueRef,
	}
}

func fromSnapshot(s groupSnapshot) domain.PositionGroup {
	legs := make([]domain.Leg, len(s.Legs))
	for i, l := range s.Legs {
		legs[i] = domain.Leg(l)
	}
	return domain.PositionGroup{
		ID:               s.ID,
		Instrument:       s.Instrument,
		Direction:        s.Direction,
		Regime:           s.Regime,
		EntryPrice:       s.EntryPrice,
		InitialStop:      s.InitialStop,
		Size:             s.Size,
		Legs:             legs,
		TP1Hit:           s.TP1Hit,
		CurrentStop:      s.CurrentStop,
		ExtremePrice:     s.ExtremePrice,
		TrailRetracement: s.TrailRetracement,
		TrailActivation:  s.TrailActivation,
		OpenedAt:         s.OpenedAt,
		TimeoutAt:        s.TimeoutAt,
		CostsAccrued:     s.CostsAccrued,
		VenueRef:         s.VenueRef,
	}
}

// Save upserts the group's snapshot. The write is the durability point for a
// committed state transition.
func (s *GroupStore) Save(ctx context.Context, g domain.PositionGroup) error {
	snapJSON, err := json.Marshal(toSnapshot(g))
	if err != nil {
		return fmt.Errorf("postgres: marshal group snapshot %s: %w", g.ID, err)
	}

	const query = `
		INSERT INTO position_groups (id, instrument, schema_version, snapshot, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (id) DO UPDATE SET
			snapshot = EXCLUDED.snapshot,
			schema_version = EXCLUDED.schema_version,
			updated_at = NOW()`

	_, err = s.pool.Exec(ctx, query, g.ID, g.Instrument, domain.SnapshotSchemaVersion, snapJSON)
	if err != nil {
		return fmt.Errorf("postgres: save group %s: %w", g.ID, err)
	}
	return nil
}

// GetByID returns one group snapshot by ID.
func (s *GroupStore) GetByID(ctx context.Context, id string) (domain.PositionGroup, error) {
	const query = `SELECT schema_version, snapshot FROM position_groups WHERE id = $1`

	var version int
	var snapJSON []byte
	err := s.pool.QueryRow(ctx, query, id).Scan(&version, &snapJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PositionGroup{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.PositionGroup{}, fmt.Errorf("postgres: get group %s: %w", id, err)
	}
	return decodeSnapshot(version, snapJSON)
}

// ListOpen returns every persisted group snapshot. A snapshot with an
// unknown schema version fails the whole read; recovery must not guess.
func (s *GroupStore) ListOpen(ctx context.Context) ([]domain.PositionGroup, error) {
	const query = `SELECT schema_version, snapshot FROM position_groups ORDER BY updated_at`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open groups: %w", err)
	}
	defer rows.Close()

	var groups []domain.PositionGroup
	for rows.Next() {
		var version int
		var snapJSON []byte
		if err := rows.Scan(&version, &snapJSON); err != nil {
			return nil, fmt.Errorf("postgres: scan group row: %w", err)
		}
		g, err := decodeSnapshot(version, snapJSON)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list open groups rows: %w", err)
	}
	return groups, nil
}

// Delete removes a group's snapshot once all its legs are terminal.
func (s *GroupStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM position_groups WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete group %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func decodeSnapshot(version int, snapJSON []byte) (domain.PositionGroup, error) {
	if version != domain.SnapshotSchemaVersion {
		return domain.PositionGroup{}, fmt.Errorf("%w: version %d", domain.ErrBadSnapshot, version)
	}
	var snap groupSnapshot
	if err := json.Unmarshal(snapJSON, &snap); err != nil {
		return domain.PositionGroup{}, fmt.Errorf("postgres: unmarshal group snapshot: %w", err)
	}
	return fromSnapshot(snap), nil
}
