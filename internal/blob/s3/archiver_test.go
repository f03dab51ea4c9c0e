package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quantfold/trident/internal/domain"
)

type fakeWriter struct {
	puts      map[string][]byte
	multipart map[string][]byte
	err       error
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{puts: make(map[string][]byte), multipart: make(map[string][]byte)}
}

func (w *fakeWriter) Put(_ context.Context, path string, data io.Reader, _ string) error {
	if w.err != nil {
		return w.err
	}
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.puts[path] = buf
	return nil
}

func (w *fakeWriter) PutMultipart(_ context.Context, path string, data io.Reader, _ int64) error {
	if w.err != nil {
		return w.err
	}
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.multipart[path] = buf
	return nil
}

type fakeTradeStore struct {
	recs []domain.TradeRecord
	err  error
}

func (s *fakeTradeStore) ListBefore(_ context.Context, before time.Time) ([]domain.TradeRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []domain.TradeRecord
	for _, r := range s.recs {
		if r.ClosedAt.Before(before) {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeAudit struct {
	events []string
}

func (a *fakeAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.events = append(a.events, event)
	return nil
}

func (a *fakeAudit) List(_ context.Context, _ domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func tradeClosedAt(t time.Time) domain.TradeRecord {
	return domain.TradeRecord{
		GroupID:      "g-1",
		LegID:        "leg-1",
		Instrument:   "XAUUSD",
		Direction:    domain.DirectionLong,
		Regime:       domain.RegimeTrend,
		EntryPrice:   2870,
		ExitPrice:    2930,
		ExitReason:   domain.LegStatusClosedTP,
		SizeFraction: 0.4,
		Size:         0.4,
		PnL:          24,
		OpenedAt:     t.Add(-24 * time.Hour),
		ClosedAt:     t,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestArchiveTradesOnlyCoversRecordsBeforeCutoff(t *testing.T) {
	cutoff := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeTradeStore{recs: []domain.TradeRecord{
		tradeClosedAt(cutoff.Add(-48 * time.Hour)),
		tradeClosedAt(cutoff.Add(-time.Hour)),
		tradeClosedAt(cutoff.Add(time.Hour)), // inside retention, stays put
	}}
	writer := newFakeWriter()
	audit := &fakeAudit{}

	a := NewArchiver(writer, store, audit, 90, testLogger())
	count, err := a.ArchiveTrades(context.Background(), cutoff)
	require.NoError(t, err)
	require.Equal(t, int64(2), count)

	body, ok := writer.puts["archive/trades/2026-05.jsonl"]
	require.True(t, ok, "expected single-shot upload at the month-partitioned key")

	lines := bytes.Split(bytes.TrimSpace(body), []byte("\n"))
	require.Len(t, lines, 2)
	var rec domain.TradeRecord
	require.NoError(t, json.Unmarshal(lines[0], &rec))
	require.Equal(t, "g-1", rec.GroupID)

	require.Equal(t, []string{"archive.trades"}, audit.events)
}

func TestArchiveTradesEmptyStoreSkipsUpload(t *testing.T) {
	writer := newFakeWriter()
	a := NewArchiver(writer, &fakeTradeStore{}, &fakeAudit{}, 90, testLogger())

	count, err := a.ArchiveTrades(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	require.Zero(t, count)
	require.Empty(t, writer.puts)
	require.Empty(t, writer.multipart)
}

func TestArchiveTradesUploadFailure(t *testing.T) {
	writer := newFakeWriter()
	writer.err = errors.New("bucket gone")
	store := &fakeTradeStore{recs: []domain.TradeRecord{
		tradeClosedAt(time.Date(2026, 4, 30, 12, 0, 0, 0, time.UTC)),
	}}

	a := NewArchiver(writer, store, &fakeAudit{}, 90, testLogger())
	_, err := a.ArchiveTrades(context.Background(), time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	require.ErrorContains(t, err, "upload")
}

func TestArchiveTradesWithoutAuditStore(t *testing.T) {
	writer := newFakeWriter()
	store := &fakeTradeStore{recs: []domain.TradeRecord{
		tradeClosedAt(time.Date(2026, 4, 30, 12, 0, 0, 0, time.UTC)),
	}}

	a := NewArchiver(writer, store, nil, 90, testLogger())
	count, err := a.ArchiveTrades(context.Background(), time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}
