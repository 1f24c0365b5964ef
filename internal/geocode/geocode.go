// Package geocode resolves location names into coordinates, via
// Open-Meteo's geocoding endpoint with a Google Geocoding+Elevation
// fallback, backed by a filesystem cache (spec.md §4.8 step 3, §6).
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/tehoro/ibfcore/internal/filecache"
	"github.com/tehoro/ibfcore/internal/model"
	"github.com/tehoro/ibfcore/internal/observability"
)

const (
	openMeteoGeocodeURL = "https://geocoding-api.open-meteo.com/v1/search"
	googleGeocodeURL    = "https://maps.googleapis.com/maps/api/geocode/json"
	googleElevationURL  = "https://maps.googleapis.com/maps/api/elevation/json"

	openMeteoTimeout = 20 * time.Second
	googleTimeout    = 15 * time.Second

	cacheKey = "search_cache.json"
)

// ErrNotFound is returned when neither provider can resolve name.
var ErrNotFound = errors.New("geocode: not found")

// Client resolves location names via Open-Meteo, falling back to
// Google when the Open-Meteo lookup fails (no result or an error) and a
// Google API key is configured. Results are cached indefinitely (names
// don't move).
type Client struct {
	HTTP         *http.Client
	Cache        *filecache.Store
	GoogleAPIKey string
	TimezoneAt   func(lat, lon float64) string // optional; used for the Google fallback path
	// Limiter throttles outbound geocoding requests client-side; nil
	// disables throttling.
	Limiter *rate.Limiter
}

// New constructs a Client backed by cache, with sane client-side
// per-request timeouts. googleAPIKey may be empty to disable the
// Google fallback.
func New(cache *filecache.Store, googleAPIKey string, timezoneAt func(lat, lon float64) string) *Client {
	return &Client{
		HTTP:         &http.Client{},
		Cache:        cache,
		GoogleAPIKey: googleAPIKey,
		TimezoneAt:   timezoneAt,
		Limiter:      rate.NewLimiter(rate.Limit(5), 10),
	}
}

// searchCache is the on-disk shape of the shared geocode cache: a map
// from lowercased, trimmed name to its resolved result.
type searchCache map[string]model.GeocodeResult

// Resolve returns the GeocodeResult for name, consulting the cache
// first and persisting any freshly resolved result. When no provider
// resolves name, the last provider's error is returned; it wraps
// ErrNotFound only when that provider answered with no match.
func (c *Client) Resolve(ctx context.Context, name string) (model.GeocodeResult, error) {
	key := strings.ToLower(strings.TrimSpace(name))

	var cache searchCache
	if err := c.Cache.Get(ctx, cacheKey, 0, &cache, nil); err == nil {
		if result, ok := cache[key]; ok {
			return result, nil
		}
	}

	result, err := c.resolveOpenMeteo(ctx, name)
	if err != nil {
		if c.GoogleAPIKey != "" {
			result, err = c.resolveGoogle(ctx, name)
		}
		if err != nil {
			observability.UpstreamCallsTotal.WithLabelValues("geocode", "error").Inc()
			return model.GeocodeResult{}, err
		}
	}

	if cache == nil {
		cache = searchCache{}
	}
	cache[key] = result
	c.Cache.Set(ctx, cacheKey, cache)

	return result, nil
}

type openMeteoResponse struct {
	Results []struct {
		Name        string  `json:"name"`
		Latitude    float64 `json:"latitude"`
		Longitude   float64 `json:"longitude"`
		Timezone    string  `json:"timezone"`
		CountryCode string  `json:"country_code"`
	} `json:"results"`
}

func (c *Client) resolveOpenMeteo(ctx context.Context, name string) (model.GeocodeResult, error) {
	reqCtx, cancel := context.WithTimeout(ctx, openMeteoTimeout)
	defer cancel()

	q := url.Values{}
	q.Set("name", name)
	q.Set("count", "1")
	q.Set("language", "en")
	q.Set("format", "json")

	start := time.Now()
	body, err := c.get(reqCtx, openMeteoGeocodeURL+"?"+q.Encode())
	observability.UpstreamDuration.WithLabelValues("geocode", statusLabel(err)).Observe(time.Since(start).Seconds())
	if err != nil {
		return model.GeocodeResult{}, fmt.Errorf("geocode: open-meteo request: %w", err)
	}

	var parsed openMeteoResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return model.GeocodeResult{}, fmt.Errorf("geocode: open-meteo decode: %w", err)
	}
	if len(parsed.Results) == 0 {
		return model.GeocodeResult{}, fmt.Errorf("%w: %s (open-meteo)", ErrNotFound, name)
	}

	r := parsed.Results[0]
	tz := r.Timezone
	if tz == "" {
		tz = "UTC"
	}
	observability.UpstreamCallsTotal.WithLabelValues("geocode", "success").Inc()
	return model.GeocodeResult{
		FormattedName: r.Name,
		Latitude:      r.Latitude,
		Longitude:     r.Longitude,
		Timezone:      tz,
		CountryCode:   r.CountryCode,
	}, nil
}

type googleGeocodeResponse struct {
	Status  string `json:"status"`
	Results []struct {
		FormattedAddress string `json:"formatted_address"`
		Geometry         struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
		AddressComponents []struct {
			ShortName string   `json:"short_name"`
			Types     []string `json:"types"`
		} `json:"address_components"`
	} `json:"results"`
}

type googleElevationResponse struct {
	Status  string `json:"status"`
	Results []struct {
		Elevation float64 `json:"elevation"`
	} `json:"results"`
}

func (c *Client) resolveGoogle(ctx context.Context, address string) (model.GeocodeResult, error) {
	reqCtx, cancel := context.WithTimeout(ctx, googleTimeout)
	defer cancel()

	q := url.Values{}
	q.Set("address", address)
	q.Set("key", c.GoogleAPIKey)

	start := time.Now()
	body, err := c.get(reqCtx, googleGeocodeURL+"?"+q.Encode())
	observability.UpstreamDuration.WithLabelValues("geocode", statusLabel(err)).Observe(time.Since(start).Seconds())
	if err != nil {
		return model.GeocodeResult{}, fmt.Errorf("geocode: google request: %w", err)
	}

	var parsed googleGeocodeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return model.GeocodeResult{}, fmt.Errorf("geocode: google decode: %w", err)
	}
	if parsed.Status != "OK" || len(parsed.Results) == 0 {
		return model.GeocodeResult{}, fmt.Errorf("%w: %s (google status %s)", ErrNotFound, address, parsed.Status)
	}

	entry := parsed.Results[0]
	lat, lon := entry.Geometry.Location.Lat, entry.Geometry.Location.Lng

	tz := "UTC"
	if c.TimezoneAt != nil {
		if found := c.TimezoneAt(lat, lon); found != "" {
			tz = found
		}
	}

	result := model.GeocodeResult{
		FormattedName: entry.FormattedAddress,
		Latitude:      lat,
		Longitude:     lon,
		Timezone:      tz,
		CountryCode:   extractCountryCode(entry.AddressComponents),
	}

	if altitude, err := c.googleElevation(reqCtx, lat, lon); err == nil {
		result.AltitudeM = &altitude
	}

	observability.UpstreamCallsTotal.WithLabelValues("geocode", "success").Inc()
	return result, nil
}

func (c *Client) googleElevation(ctx context.Context, lat, lon float64) (float64, error) {
	q := url.Values{}
	q.Set("locations", fmt.Sprintf("%f,%f", lat, lon))
	q.Set("key", c.GoogleAPIKey)

	body, err := c.get(ctx, googleElevationURL+"?"+q.Encode())
	if err != nil {
		return 0, err
	}
	var parsed googleElevationResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, err
	}
	if parsed.Status != "OK" || len(parsed.Results) == 0 {
		return 0, fmt.Errorf("geocode: elevation status %s", parsed.Status)
	}
	return parsed.Results[0].Elevation, nil
}

func extractCountryCode(components []struct {
	ShortName string   `json:"short_name"`
	Types     []string `json:"types"`
}) string {
	for _, comp := range components {
		for _, t := range comp.Types {
			if t == "country" {
				return comp.ShortName
			}
		}
	}
	return ""
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("geocode: rate limit wait: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
