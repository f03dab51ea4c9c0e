package domain

import (
	"context"
	"io"
	"time"
)

// SnapshotSchemaVersion is the current on-disk format of persisted group
// snapshots. Recovery refuses snapshots with a version it does not know
// rather than guessing at field meanings.
const SnapshotSchemaVersion = 1

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// GroupStore is the durable record of every open position group. Save is
// called after every committed state transition; Delete only once all legs
// are terminal. ListOpen is read once at process start for recovery.
type GroupStore interface {
	Save(ctx context.Context, g PositionGroup) error
	GetByID(ctx context.Context, id string) (PositionGroup, error)
	ListOpen(ctx context.Context) ([]PositionGroup, error)
	Delete(ctx context.Context, id string) error
}

// TradeStore archives terminal leg transitions for reporting. ListBefore
// feeds cold-storage archival of aged records.
type TradeStore interface {
	Insert(ctx context.Context, rec TradeRecord) error
	ListByInstrument(ctx context.Context, instrument string, opts ListOpts) ([]TradeRecord, error)
	ListBefore(ctx context.Context, before time.Time) ([]TradeRecord, error)
	SumPnL(ctx context.Context, since time.Time) (float64, error)
}

// AuditStore persists an append-only audit log of engine decisions.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// TickCache holds the latest observed tick per instrument for cheap reads by
// components that do not sit on the feed.
type TickCache interface {
	SetTick(ctx context.Context, tick Tick) error
	GetTick(ctx context.Context, instrument string) (Tick, error)
}

// EventBus distributes ticks and lifecycle events between processes.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// BlobWriter uploads objects to cold storage. PutMultipart is for payloads
// large enough to benefit from concurrent part uploads.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}
