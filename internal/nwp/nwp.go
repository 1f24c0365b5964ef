// Package nwp fetches numerical weather prediction data from
// Open-Meteo's ensemble and forecast endpoints (spec.md §4.1), with
// retry/backoff, field-set fallback on 400, and a filesystem cache
// keyed by a fingerprint of the request shape.
package nwp

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tehoro/ibfcore/internal/circuitbreaker"
	"github.com/tehoro/ibfcore/internal/filecache"
	"github.com/tehoro/ibfcore/internal/model"
	"github.com/tehoro/ibfcore/internal/observability"
)

const (
	ensembleURL = "https://ensemble-api.open-meteo.com/v1/ensemble"
	forecastURL = "https://api.open-meteo.com/v1/forecast"

	requestTimeout = 30 * time.Second
	retryAttempts  = 3
	retryBaseDelay = 1 * time.Second

	defaultCacheTTL = 60 * time.Minute
	sweepMaxAge     = 48 * time.Hour
)

var baseHourlyFields = []string{
	"temperature_2m", "dew_point_2m", "precipitation", "snowfall",
	"weather_code", "cloud_cover", "wind_speed_10m", "wind_direction_10m", "wind_gusts_10m",
}

var enrichedExtraFields = []string{
	"precipitation_probability", "freezing_level_height",
}

// Request describes a single NWP fetch, fully determining its cache
// fingerprint.
type Request struct {
	Latitude     float64
	Longitude    float64
	ForecastDays int
	Spec         model.ModelSpec
	// PressureLevels, when non-empty, requests a pressure-level profile
	// instead of the base/enriched surface field set (used as the
	// freezing-level fallback per spec.md §4.8 step 3).
	PressureLevels []int
}

// Client fetches and caches NWP payloads.
type Client struct {
	HTTP           *http.Client
	Cache          *filecache.Store
	CacheTTL       time.Duration
	CircuitBreaker *circuitbreaker.CircuitBreaker
	// Limiter throttles outbound Open-Meteo requests client-side; nil
	// disables throttling. Open-Meteo's free tier enforces a per-minute
	// request cap, so the default client sets this conservatively.
	Limiter *rate.Limiter

	mu                       sync.Mutex
	pressureUnsupportedModel map[string]bool
}

// New constructs a Client backed by cache. cb may be nil to disable
// circuit breaking.
func New(cache *filecache.Store, cb *circuitbreaker.CircuitBreaker) *Client {
	return &Client{
		HTTP:                     &http.Client{},
		Cache:                    cache,
		CacheTTL:                 defaultCacheTTL,
		CircuitBreaker:           cb,
		Limiter:                  rate.NewLimiter(rate.Limit(5), 10),
		pressureUnsupportedModel: make(map[string]bool),
	}
}

// PressureLevelsUnsupported reports whether modelID has previously
// returned an all-null pressure-level profile in this process, so
// callers can skip a useless future request (spec.md §4.8 step 3, §5).
func (c *Client) PressureLevelsUnsupported(modelID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pressureUnsupportedModel[modelID]
}

// MarkPressureLevelsUnsupported records that modelID's pressure-level
// profile came back empty/null, for the lifetime of this process.
func (c *Client) MarkPressureLevelsUnsupported(modelID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pressureUnsupportedModel[modelID] = true
}

// Fetch retrieves (from cache, or upstream on miss) the raw forecast
// payload for req.
func (c *Client) Fetch(ctx context.Context, req Request) (model.RawForecastResponse, error) {
	fields := c.fieldSet(req)
	key := fingerprint(req, fields)

	var cached model.RawForecastResponse
	if err := c.Cache.Get(ctx, key, c.CacheTTL, &cached, cached.Validate); err == nil {
		return cached, nil
	}

	go c.Cache.Sweep(sweepMaxAge) //nolint:errcheck // best-effort cleanup, never blocks the caller

	resp, err := c.fetchUpstream(ctx, req, fields)
	if err != nil {
		return model.RawForecastResponse{}, err
	}

	if err := c.Cache.Set(ctx, key, resp); err != nil {
		// cache-write failure is not fatal to a successful fetch.
		_ = err
	}
	return resp, nil
}

func (c *Client) fieldSet(req Request) []string {
	if len(req.PressureLevels) > 0 {
		return pressureLevelFields(req.PressureLevels)
	}
	fields := append([]string(nil), baseHourlyFields...)
	if req.Spec.Kind == model.KindDeterministic {
		fields = append(fields, enrichedExtraFields...)
	}
	return fields
}

func pressureLevelFields(levels []int) []string {
	fields := make([]string, 0, len(levels)*2)
	for _, lvl := range levels {
		fields = append(fields,
			fmt.Sprintf("temperature_%dhPa", lvl),
			fmt.Sprintf("relative_humidity_%dhPa", lvl),
			fmt.Sprintf("geopotential_height_%dhPa", lvl),
		)
	}
	return fields
}

func (c *Client) fetchUpstream(ctx context.Context, req Request, fields []string) (model.RawForecastResponse, error) {
	call := func(fields []string) (model.RawForecastResponse, int, error) {
		return c.doRequest(ctx, req, fields)
	}

	var lastErr error
	fieldsSwitched := false
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if attempt > 0 && !fieldsSwitched {
			observability.UpstreamRetriesTotal.WithLabelValues("nwp").Inc()
			delay := retryBaseDelay * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-ctx.Done():
				return model.RawForecastResponse{}, ctx.Err()
			case <-time.After(delay):
			}
		}
		fieldsSwitched = false

		var resp model.RawForecastResponse
		var status int
		var err error
		if c.CircuitBreaker != nil {
			cbErr := c.CircuitBreaker.Call(ctx, func() error {
				resp, status, err = call(fields)
				return err
			})
			if cbErr != nil && err == nil {
				err = cbErr
			}
		} else {
			resp, status, err = call(fields)
		}

		if err == nil {
			observability.UpstreamCallsTotal.WithLabelValues("nwp", "success").Inc()
			return resp, nil
		}

		// A 400 on the enriched field set means the deterministic
		// endpoint rejected it; retry once immediately with the base
		// set rather than burning a backoff cycle.
		if status == http.StatusBadRequest && enrichedSubset(fields) {
			fields = baseHourlyFields
			fieldsSwitched = true
			continue
		}

		lastErr = err
		observability.UpstreamCallsTotal.WithLabelValues("nwp", "error").Inc()
	}

	return model.RawForecastResponse{}, fmt.Errorf("nwp: exhausted retries: %w", lastErr)
}

func enrichedSubset(fields []string) bool {
	for _, f := range fields {
		if f == "precipitation_probability" || f == "freezing_level_height" {
			return true
		}
	}
	return false
}

func (c *Client) doRequest(ctx context.Context, req Request, fields []string) (model.RawForecastResponse, int, error) {
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	if c.Limiter != nil {
		if err := c.Limiter.Wait(reqCtx); err != nil {
			return model.RawForecastResponse{}, 0, fmt.Errorf("nwp: rate limit wait: %w", err)
		}
	}

	endpoint := forecastURL
	if req.Spec.Kind == model.KindEnsemble {
		endpoint = ensembleURL
	}

	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%.4f", req.Latitude))
	q.Set("longitude", fmt.Sprintf("%.4f", req.Longitude))
	q.Set("hourly", strings.Join(fields, ","))
	q.Set("forecast_days", strconv.Itoa(req.ForecastDays))
	q.Set("models", req.Spec.ModelID)
	q.Set("temperature_unit", "celsius")
	q.Set("precipitation_unit", "mm")
	q.Set("wind_speed_unit", "kmh")

	start := time.Now()
	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return model.RawForecastResponse{}, 0, err
	}

	httpResp, err := c.HTTP.Do(httpReq)
	observability.UpstreamDuration.WithLabelValues("nwp", statusLabel(err)).Observe(time.Since(start).Seconds())
	if err != nil {
		return model.RawForecastResponse{}, 0, fmt.Errorf("nwp: request: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return model.RawForecastResponse{}, httpResp.StatusCode, fmt.Errorf("nwp: read body: %w", err)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return model.RawForecastResponse{}, httpResp.StatusCode, fmt.Errorf("nwp: http %d: %s", httpResp.StatusCode, truncate(body, 300))
	}

	var parsed model.RawForecastResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return model.RawForecastResponse{}, httpResp.StatusCode, fmt.Errorf("nwp: decode: %w", err)
	}
	if err := parsed.Validate(); err != nil {
		return model.RawForecastResponse{}, httpResp.StatusCode, err
	}
	return parsed, httpResp.StatusCode, nil
}

func truncate(b []byte, n int) string {
	s := string(b)
	if len(s) > n {
		return s[:n]
	}
	return s
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// fingerprint returns a stable cache key for req and fields: rounded
// coordinates, forecast days, model kind/id, and a short hash of the
// field list (spec.md §4.1).
func fingerprint(req Request, fields []string) string {
	sorted := append([]string(nil), fields...)
	sort.Strings(sorted)
	fieldHash := sha256.Sum256([]byte(strings.Join(sorted, ",")))

	key := fmt.Sprintf("%.2f_%.2f_%d_%s_%s_%s.json",
		req.Latitude, req.Longitude, req.ForecastDays,
		req.Spec.Kind, req.Spec.ModelID, hex.EncodeToString(fieldHash[:])[:12])
	return key
}

// ErrPressureLevelsNull names the case of a requested pressure-level
// profile that came back entirely null. Nothing in this module returns
// it: the pipeline marks the model with MarkPressureLevelsUnsupported
// instead.
var ErrPressureLevelsNull = errors.New("nwp: pressure levels all null")
