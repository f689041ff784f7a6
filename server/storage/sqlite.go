package storage

import (
	"context"
	"database/sql"
	"strings"

	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/models"
	_ "modernc.org/sqlite"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:accidents.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// One connection keeps :memory: databases shared and serializes writes.
	db.SetMaxOpenConns(1)
	return &sqliteStore{baseStore{db: db}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS accidents (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id TEXT NOT NULL UNIQUE,
			camera_id TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			confidence REAL NOT NULL,
			classification TEXT NOT NULL,
			vehicles INTEGER NOT NULL,
			lat REAL,
			lng REAL,
			location_available INTEGER NOT NULL,
			address TEXT,
			status TEXT NOT NULL,
			record_json TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_accidents_created ON accidents(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_accidents_camera ON accidents(camera_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqliteStore) SaveEvent(ctx context.Context, rec models.EventRecord) error {
	return s.insert(ctx,
		`INSERT INTO accidents (event_id, camera_id, created_at, confidence, classification, vehicles, lat, lng, location_available, address, status, record_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO NOTHING`,
		rec)
}

func (s *sqliteStore) ListEvents(ctx context.Context, limit int) ([]models.EventRecord, error) {
	return s.list(ctx,
		`SELECT record_json FROM accidents ORDER BY created_at DESC, id DESC LIMIT ?`,
		limit)
}
