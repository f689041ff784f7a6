package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/config"
	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/models"
)

var ErrDuplicateEvent = errors.New("event already recorded")

// MaxList caps how many records a single list call returns.
const MaxList = 50

// Store persists finished accident records. Records are append-only: saving
// an event id twice fails with ErrDuplicateEvent.
type Store interface {
	Init(ctx context.Context) error
	Close() error
	SaveEvent(ctx context.Context, rec models.EventRecord) error
	ListEvents(ctx context.Context, limit int) ([]models.EventRecord, error)
}

func NewStore(cfg config.StorageConfig) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "memory":
		return NewMemory(0), nil
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > MaxList {
		return MaxList
	}
	return limit
}

type baseStore struct {
	db *sql.DB
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

// insert runs an INSERT ... ON CONFLICT DO NOTHING and maps a skipped row
// to ErrDuplicateEvent.
func (b *baseStore) insert(ctx context.Context, query string, rec models.EventRecord) error {
	var lat, lng sql.NullFloat64
	if rec.Location != nil {
		lat = sql.NullFloat64{Float64: rec.Location.Latitude, Valid: true}
		lng = sql.NullFloat64{Float64: rec.Location.Longitude, Valid: true}
	}
	res, err := b.db.ExecContext(ctx, query,
		rec.EventID,
		rec.CameraID,
		rec.CreatedAt.UTC().UnixMilli(),
		rec.PeakConfidence,
		string(rec.Classification),
		rec.VehicleCount,
		lat,
		lng,
		rec.LocationAvailable,
		rec.Address,
		string(rec.Status),
		encodeJSON(rec),
	)
	if err != nil {
		return fmt.Errorf("failed to save event %s: %w", rec.EventID, err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateEvent, rec.EventID)
	}
	return nil
}

func (b *baseStore) list(ctx context.Context, query string, limit int) ([]models.EventRecord, error) {
	rows, err := b.db.QueryContext(ctx, query, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	out := make([]models.EventRecord, 0)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		var rec models.EventRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("failed to decode event: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func encodeJSON(value any) string {
	data, _ := json.Marshal(value)
	return string(data)
}
