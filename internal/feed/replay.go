package feed

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/quantfold/trident/internal/domain"
)

// Replay reads OHLC bars from a CSV file and feeds them to the handler in
// file order, driving the engine on bar timestamps instead of wall time.
//
// Expected columns: time,open,high,low,close with an optional header row.
// Time is RFC 3339 or a Unix second timestamp.
type Replay struct {
	path       string
	instrument string
	onTick     TickHandler
	logger     *slog.Logger
}

// NewReplay creates a CSV bar replay source.
func NewReplay(path, instrument string, onTick TickHandler, logger *slog.Logger) *Replay {
	return &Replay{
		path:       path,
		instrument: instrument,
		onTick:     onTick,
		logger:     logger.With(slog.String("component", "replay")),
	}
}

// Run replays every bar in the file. It returns once the file is exhausted
// or ctx is canceled.
func (r *Replay) Run(ctx context.Context) error {
	file, err := os.Open(r.path)
	if err != nil {
		return fmt.Errorf("replay: open %s: %w", r.path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	var fed int
	line := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("replay: read %s: %w", r.path, err)
		}
		line++

		bar, err := parseBarRecord(record)
		if err != nil {
			// Skip the header row; fail on anything else.
			if line == 1 {
				continue
			}
			return fmt.Errorf("replay: %s line %d: %w", r.path, line, err)
		}

		r.onTick(ctx, domain.Tick{
			Instrument: r.instrument,
			Time:       bar.Time,
			Bid:        bar.Close,
			Ask:        bar.Close,
			High:       bar.High,
			Low:        bar.Low,
		})
		fed++
	}

	r.logger.Info("replay finished", slog.String("file", r.path), slog.Int("bars", fed))
	return nil
}

func parseBarRecord(record []string) (domain.Bar, error) {
	if len(record) < 5 {
		return domain.Bar{}, fmt.Errorf("want 5 columns, got %d", len(record))
	}

	ts, err := parseBarTime(record[0])
	if err != nil {
		return domain.Bar{}, err
	}

	vals := make([]float64, 4)
	for i, s := range record[1:5] {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return domain.Bar{}, fmt.Errorf("parse column %d: %w", i+1, err)
		}
		vals[i] = v
	}

	return domain.Bar{
		Time:  ts,
		Open:  vals[0],
		High:  vals[1],
		Low:   vals[2],
		Close: vals[3],
	}, nil
}

func parseBarTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("parse time %q", s)
}
