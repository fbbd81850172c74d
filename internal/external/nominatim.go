package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"floodfactor/internal/types"
)

// ErrGeocodeFailure is returned when the geocoder has no match for an address.
var ErrGeocodeFailure = types.NewAppError(types.ErrCodeValidationGeocodeFailed, "could not geocode address", nil)

// NominatimConfig configures a NominatimGeocoder.
type NominatimConfig struct {
	BaseURL string
	// CountrySuffix is appended to every query ("Dhaka" -> "Dhaka, Bangladesh").
	CountrySuffix string
	Logger        *slog.Logger
}

type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// NominatimGeocoder implements Geocoder against the OpenStreetMap Nominatim
// search API.
type NominatimGeocoder struct {
	base          *BaseClient
	baseURL       string
	countrySuffix string
	logger        *slog.Logger
}

// NewNominatimGeocoder builds a geocoder with its own breaker. Nominatim's
// usage policy requires an identifying User-Agent.
func NewNominatimGeocoder(httpClient *http.Client, userAgent string, cfg NominatimConfig) *NominatimGeocoder {
	base := NewBaseClient(httpClient, "nominatim",
		RetryPolicy{MaxRetries: 2, MinWait: time.Second, MaxWait: 10 * time.Second},
		userAgent,
		WithUpstreamCode(types.ErrCodeUpstreamGeocoder),
	)
	return NewNominatimGeocoderWithBase(base, cfg)
}

func NewNominatimGeocoderWithBase(base *BaseClient, cfg NominatimConfig) *NominatimGeocoder {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &NominatimGeocoder{
		base:          base,
		baseURL:       strings.TrimSuffix(cfg.BaseURL, "/"),
		countrySuffix: strings.TrimSpace(cfg.CountrySuffix),
		logger:        logger,
	}
}

// Query returns the search string sent for address.
func (g *NominatimGeocoder) Query(address string) string {
	address = strings.TrimSpace(address)
	if g.countrySuffix == "" || strings.HasSuffix(strings.ToLower(address), strings.ToLower(g.countrySuffix)) {
		return address
	}
	return address + ", " + g.countrySuffix
}

func (g *NominatimGeocoder) Geocode(ctx context.Context, address string) (types.Location, error) {
	if strings.TrimSpace(address) == "" {
		return types.Location{}, types.NewAppError(types.ErrCodeValidationMissingField, "address is required", nil)
	}

	query := g.Query(address)
	params := url.Values{}
	params.Set("format", "json")
	params.Set("limit", "1")
	params.Set("q", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return types.Location{}, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create geocode request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.base.Do(req)
	if err != nil {
		return types.Location{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		g.logger.ErrorContext(ctx, "nominatim error", "status_code", resp.StatusCode, "response_body", string(body))
		return types.Location{}, types.NewAppError(types.ErrCodeUpstreamGeocoder,
			fmt.Sprintf("geocoder returned %d", resp.StatusCode), nil)
	}

	var places []nominatimPlace
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return types.Location{}, types.NewAppError(types.ErrCodeUpstreamGeocoder, "failed to decode geocoder response", err)
	}
	if len(places) == 0 {
		return types.Location{}, ErrGeocodeFailure.WithDetails(map[string]any{"query": query})
	}

	lat, latErr := strconv.ParseFloat(places[0].Lat, 64)
	lon, lonErr := strconv.ParseFloat(places[0].Lon, 64)
	if latErr != nil || lonErr != nil {
		return types.Location{}, types.NewAppError(types.ErrCodeUpstreamGeocoder,
			fmt.Sprintf("geocoder returned malformed coordinates %q,%q", places[0].Lat, places[0].Lon), nil)
	}
	if err := types.ValidateLocation(lat, lon); err != nil {
		return types.Location{}, err
	}

	g.logger.InfoContext(ctx, "geocoded address",
		"query", query,
		"display_name", places[0].DisplayName,
		"lat", lat,
		"lon", lon,
	)
	return types.Location{Lat: lat, Lon: lon}, nil
}
