package storage

import (
	"context"
	"database/sql"
	"strings"

	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/models"
	_ "github.com/jackc/pgx/v5/stdlib"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/accidents?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db}}, nil
}

func (s *postgresStore) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS accidents (
			id BIGSERIAL PRIMARY KEY,
			event_id TEXT NOT NULL UNIQUE,
			camera_id TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			classification TEXT NOT NULL,
			vehicles INTEGER NOT NULL,
			lat DOUBLE PRECISION,
			lng DOUBLE PRECISION,
			location_available BOOLEAN NOT NULL,
			address TEXT,
			status TEXT NOT NULL,
			record_json JSONB NOT NULL
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

func (s *postgresStore) SaveEvent(ctx context.Context, rec models.EventRecord) error {
	return s.insert(ctx,
		`INSERT INTO accidents (event_id, camera_id, created_at, confidence, classification, vehicles, lat, lng, location_available, address, status, record_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (event_id) DO NOTHING`,
		rec)
}

func (s *postgresStore) ListEvents(ctx context.Context, limit int) ([]models.EventRecord, error) {
	return s.list(ctx,
		`SELECT record_json::text FROM accidents ORDER BY created_at DESC, id DESC LIMIT $1`,
		limit)
}
