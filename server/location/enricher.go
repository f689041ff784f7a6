package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/cache"
	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/config"
	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/models"
	"go.uber.org/zap"
)

var ErrInvalidFix = errors.New("invalid location fix")

const keyPrefix = "location:"

// DefaultSource is the source id of the fallback fix used by cameras that
// never reported their own position.
const DefaultSource = ""

// Update is the wire form of a location report, shared by the HTTP endpoint
// and the Kafka consumer.
type Update struct {
	CameraID  string  `json:"camera_id"`
	UserID    string  `json:"user_id"`
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
	Accuracy  float64 `json:"accuracy"`
	Timestamp int64   `json:"timestamp"`
}

// Fix converts the update, treating a zero timestamp (unix millis) as now.
// Reports that name no camera, such as a user's phone, set the default fix.
func (u Update) Fix(now time.Time) models.LocationFix {
	source := u.CameraID
	if source == "" {
		source = DefaultSource
	}
	ts := now
	if u.Timestamp > 0 {
		ts = time.UnixMilli(u.Timestamp).UTC()
	}
	return models.LocationFix{
		SourceID:  source,
		Latitude:  u.Latitude,
		Longitude: u.Longitude,
		AccuracyM: u.Accuracy,
		Timestamp: ts,
	}
}

func ParseUpdate(data []byte) (Update, error) {
	var u Update
	if err := json.Unmarshal(data, &u); err != nil {
		return Update{}, fmt.Errorf("failed to decode location update: %w", err)
	}
	return u, nil
}

// Enricher keeps the latest fix per source and stamps events with it. It
// only reads from memory so it never holds up the pipeline.
type Enricher struct {
	cache     cache.Cache
	staleness time.Duration
	static    *models.LocationFix
	logger    *zap.Logger
}

func NewEnricher(store cache.Cache, cfg config.LocationConfig, logger *zap.Logger) *Enricher {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Enricher{
		cache:     store,
		staleness: cfg.StalenessWindow,
		logger:    logger,
	}
	if cfg.UseDefault {
		e.static = &models.LocationFix{
			SourceID:  "configured-default",
			Latitude:  cfg.DefaultLat,
			Longitude: cfg.DefaultLng,
		}
	}
	return e
}

func (e *Enricher) Update(ctx context.Context, fix models.LocationFix) error {
	if err := validate(fix); err != nil {
		return err
	}
	fix.Stale = false
	if err := e.cache.Set(ctx, keyPrefix+fix.SourceID, fix); err != nil {
		return fmt.Errorf("failed to store location fix: %w", err)
	}
	e.logger.Debug("Location updated",
		zap.String("source_id", fix.SourceID),
		zap.Float64("lat", fix.Latitude),
		zap.Float64("lng", fix.Longitude))
	return nil
}

// Lookup returns the stored fix for one source without fallback.
func (e *Enricher) Lookup(ctx context.Context, sourceID string) (models.LocationFix, bool) {
	v, err := e.cache.Get(ctx, keyPrefix+sourceID)
	if err != nil {
		return models.LocationFix{}, false
	}
	fix, ok := v.(models.LocationFix)
	return fix, ok
}

// Resolve picks the best fix for a camera at now: its own fresh fix, then a
// fresh default, then any stale fix marked as such, then the configured
// coordinates.
func (e *Enricher) Resolve(ctx context.Context, cameraID string, now time.Time) (*models.LocationFix, bool) {
	var stale *models.LocationFix
	for _, source := range []string{cameraID, DefaultSource} {
		fix, ok := e.Lookup(ctx, source)
		if !ok {
			continue
		}
		if e.fresh(fix, now) {
			return &fix, true
		}
		if stale == nil {
			fix.Stale = true
			stale = &fix
		}
	}
	if stale != nil {
		return stale, false
	}
	if e.static != nil {
		fix := *e.static
		fix.Timestamp = now
		return &fix, true
	}
	return nil, false
}

// Attach returns a copy of ev carrying the best known location.
func (e *Enricher) Attach(ctx context.Context, ev *models.AccidentEvent, now time.Time) *models.AccidentEvent {
	out := ev.Clone()
	if out == nil {
		return nil
	}

	out.Location, out.LocationAvailable = e.Resolve(ctx, ev.CameraID, now)
	if !out.LocationAvailable {
		fields := []zap.Field{zap.String("event_id", ev.ID), zap.String("camera_id", ev.CameraID)}
		if out.Location != nil {
			fields = append(fields, zap.Time("fix_time", out.Location.Timestamp))
		}
		e.logger.Warn("No usable location for event", fields...)
	}
	return out
}

func (e *Enricher) fresh(fix models.LocationFix, now time.Time) bool {
	if e.staleness <= 0 {
		return true
	}
	return now.Sub(fix.Timestamp) <= e.staleness
}

func validate(fix models.LocationFix) error {
	if math.IsNaN(fix.Latitude) || math.IsNaN(fix.Longitude) ||
		fix.Latitude < -90 || fix.Latitude > 90 ||
		fix.Longitude < -180 || fix.Longitude > 180 {
		return fmt.Errorf("%w: lat=%v lng=%v", ErrInvalidFix, fix.Latitude, fix.Longitude)
	}
	if fix.AccuracyM < 0 {
		return fmt.Errorf("%w: negative accuracy", ErrInvalidFix)
	}
	return nil
}
