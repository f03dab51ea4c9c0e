package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/quantfold/trident/internal/domain"
)

// multipartThreshold is the payload size above which the archiver switches
// from a single PutObject to a multipart upload.
const multipartThreshold = 8 * 1024 * 1024

// TradeArchiveStore provides the read access the archiver needs. The Postgres
// trade store satisfies it through its existing ListBefore method.
type TradeArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.TradeRecord, error)
}

// Archiver copies closed trades older than a retention cutoff to object
// storage as JSONL. Deletion of archived rows from the primary store is
// intentionally not performed here; that is a separate, explicit step to be
// executed after the archive has been verified.
type Archiver struct {
	writer     domain.BlobWriter
	trades     TradeArchiveStore
	audit      domain.AuditStore
	retainDays int
	logger     *slog.Logger
}

// NewArchiver creates a trade archiver with the given retention window.
func NewArchiver(writer domain.BlobWriter, trades TradeArchiveStore, audit domain.AuditStore, retainDays int, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer:     writer,
		trades:     trades,
		audit:      audit,
		retainDays: retainDays,
		logger:     logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveTrades queries all trades closed before the cutoff, serializes them
// to JSONL, and uploads the file at archive/trades/YYYY-MM.jsonl. The run is
// recorded in the audit log and the count of archived records is returned.
// Re-running with the same cutoff overwrites the same object, so runs are
// idempotent.
func (a *Archiver) ArchiveTrades(ctx context.Context, before time.Time) (int64, error) {
	trades, err := a.trades.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades query: %w", err)
	}
	if len(trades) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(trades)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades marshal: %w", err)
	}

	path := archivePath("trades", before)
	if int64(len(buf)) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), multipartThreshold)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades upload: %w", err)
	}

	count := int64(len(trades))

	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.trades", map[string]any{
			"path":   path,
			"count":  count,
			"before": before.Format(time.RFC3339),
		}); err != nil {
			return count, fmt.Errorf("s3blob: archive trades audit log: %w", err)
		}
	}

	return count, nil
}

// RunPeriodic performs one archive run immediately and then one per interval
// until the context is cancelled. Individual run failures are logged, not
// fatal; the next interval retries from current store state.
func (a *Archiver) RunPeriodic(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		cutoff := time.Now().UTC().Add(-time.Duration(a.retainDays) * 24 * time.Hour)
		count, err := a.ArchiveTrades(ctx, cutoff)
		if err != nil {
			a.logger.Error("archive run failed",
				slog.Time("cutoff", cutoff),
				slog.String("error", err.Error()))
		} else if count > 0 {
			a.logger.Info("archive run complete",
				slog.Time("cutoff", cutoff),
				slog.Int64("trades_archived", count))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// archivePath builds the object key for an archive file, partitioned by the
// year-month of the cutoff time, e.g. archive/trades/2026-08.jsonl.
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises records as newline-delimited JSON, one compact line
// per record.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
