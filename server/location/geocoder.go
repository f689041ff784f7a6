package location

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/cache"
	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/models"
	"go.uber.org/zap"
)

type Geocoder interface {
	Reverse(ctx context.Context, lat, lng float64) (string, error)
}

// NominatimGeocoder resolves coordinates to a display address through an
// OpenStreetMap Nominatim endpoint. Results are cached per ~10m cell.
type NominatimGeocoder struct {
	baseURL    string
	httpClient *http.Client
	cache      cache.Cache
	logger     *zap.Logger
}

func NewNominatimGeocoder(baseURL string, timeout time.Duration, store cache.Cache, logger *zap.Logger) *NominatimGeocoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &NominatimGeocoder{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		cache:      store,
		logger:     logger,
	}
}

type nominatimResponse struct {
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
}

func (g *NominatimGeocoder) Reverse(ctx context.Context, lat, lng float64) (string, error) {
	key := fmt.Sprintf("geocode:%.4f,%.4f", lat, lng)
	if g.cache != nil {
		if v, err := g.cache.Get(ctx, key); err == nil {
			if addr, ok := v.(string); ok {
				return addr, nil
			}
		}
	}

	q := url.Values{}
	q.Set("format", "json")
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lng, 'f', -1, 64))

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create geocode request: %w", err)
	}
	request.Header.Set("User-Agent", "accident-detection/1.0")

	response, err := g.httpClient.Do(request)
	if err != nil {
		return "", fmt.Errorf("geocode request failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return "", fmt.Errorf("geocoder error (status %d)", response.StatusCode)
	}

	var body nominatimResponse
	if err := json.NewDecoder(response.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode geocode response: %w", err)
	}
	if body.DisplayName == "" {
		return "", fmt.Errorf("no address for %.5f,%.5f: %s", lat, lng, body.Error)
	}

	if g.cache != nil {
		if err := g.cache.Set(ctx, key, body.DisplayName); err != nil {
			g.logger.Debug("Failed to cache address", zap.Error(err))
		}
	}
	return body.DisplayName, nil
}

// Describe renders a fix for humans, falling back to raw coordinates when
// the geocoder is absent or fails.
func Describe(ctx context.Context, g Geocoder, fix *models.LocationFix) string {
	if fix == nil {
		return "Location unavailable"
	}
	coords := fmt.Sprintf("Lat: %.6f, Lng: %.6f", fix.Latitude, fix.Longitude)
	if g == nil {
		return coords
	}
	addr, err := g.Reverse(ctx, fix.Latitude, fix.Longitude)
	if err != nil || addr == "" {
		return coords
	}
	return addr
}
