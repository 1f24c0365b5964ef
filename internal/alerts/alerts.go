// Package alerts fetches active weather alerts for a coordinate,
// selecting a provider by country code (spec.md §4.8 step 3): NWS for
// the US, MetService's CAP feed (with a point-in-polygon match) for
// New Zealand, OpenWeatherMap elsewhere.
package alerts

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tehoro/ibfcore/internal/filecache"
	"github.com/tehoro/ibfcore/internal/model"
	"github.com/tehoro/ibfcore/internal/observability"
)

const (
	nwsAlertsURL        = "https://api.weather.gov/alerts/active"
	openWeatherOneCall  = "https://api.openweathermap.org/data/3.0/onecall"
	metserviceRSSURL    = "https://alerts.metservice.com/cap/rss"
	googleReverseGeoURL = "https://maps.googleapis.com/maps/api/geocode/json"
	owmReverseGeoURL    = "https://api.openweathermap.org/geo/1.0/reverse"

	alertTimeout     = 20 * time.Second
	userAgent        = "ibfcore/1.0 (+https://github.com/tehoro/ibfcore)"
	countryCacheFile = "country_cache.json"
)

// Client fetches alerts and resolves country codes for coordinates.
type Client struct {
	HTTP                 *http.Client
	CountryCache         *filecache.Store
	GoogleAPIKey         string
	OpenWeatherMapAPIKey string
}

// New constructs a Client. Either API key may be empty to disable that
// reverse-geocoding/alerts source.
func New(countryCache *filecache.Store, googleAPIKey, openWeatherMapAPIKey string) *Client {
	return &Client{
		HTTP:                 &http.Client{},
		CountryCache:         countryCache,
		GoogleAPIKey:         googleAPIKey,
		OpenWeatherMapAPIKey: openWeatherMapAPIKey,
	}
}

// Fetch returns active alerts for (lat, lon). If countryCode is empty
// it is resolved via reverse geocoding (and cached by coordinate).
func (c *Client) Fetch(ctx context.Context, lat, lon float64, countryCode string) ([]model.AlertSummary, error) {
	country := strings.ToUpper(strings.TrimSpace(countryCode))
	if country == "" {
		country = strings.ToUpper(c.resolveCountryCode(ctx, lat, lon))
	}

	switch country {
	case "US":
		return c.fetchNWS(ctx, lat, lon)
	case "NZ":
		return c.fetchMetService(ctx, lat, lon)
	default:
		return c.fetchOpenWeatherMap(ctx, lat, lon)
	}
}

// --- NWS (United States) ---

type nwsResponse struct {
	Features []struct {
		Properties struct {
			Event       string `json:"event"`
			Description string `json:"description"`
			Headline    string `json:"headline"`
			Severity    string `json:"severity"`
			Onset       string `json:"onset"`
			Ends        string `json:"ends"`
			Expires     string `json:"expires"`
		} `json:"properties"`
	} `json:"features"`
}

func (c *Client) fetchNWS(ctx context.Context, lat, lon float64) ([]model.AlertSummary, error) {
	reqCtx, cancel := context.WithTimeout(ctx, alertTimeout)
	defer cancel()

	point := fmt.Sprintf("%g,%g", lat, lon)
	body, err := c.get(reqCtx, nwsAlertsURL+"?point="+url.QueryEscape(point), nil)
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues("alerts", "error").Inc()
		return nil, fmt.Errorf("alerts: nws request: %w", err)
	}

	var parsed nwsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("alerts: nws decode: %w", err)
	}

	out := make([]model.AlertSummary, 0, len(parsed.Features))
	for _, f := range parsed.Features {
		p := f.Properties
		title := p.Event
		if title == "" {
			title = "NWS Alert"
		}
		desc := p.Description
		if desc == "" {
			desc = p.Headline
		}
		expiry := p.Ends
		if expiry == "" {
			expiry = p.Expires
		}
		out = append(out, model.AlertSummary{
			Title:       title,
			Description: desc,
			Severity:    p.Severity,
			Source:      "National Weather Service",
			Onset:       p.Onset,
			Expiry:      expiry,
		})
	}
	observability.UpstreamCallsTotal.WithLabelValues("alerts", "success").Inc()
	return out, nil
}

// --- OpenWeatherMap (default/fallback) ---

type owmOneCallResponse struct {
	Alerts []struct {
		SenderName  string  `json:"sender_name"`
		Event       string  `json:"event"`
		Start       float64 `json:"start"`
		End         float64 `json:"end"`
		Description string  `json:"description"`
		Severity    string  `json:"severity"` // not part of the real payload but tolerated if present
	} `json:"alerts"`
}

func (c *Client) fetchOpenWeatherMap(ctx context.Context, lat, lon float64) ([]model.AlertSummary, error) {
	if c.OpenWeatherMapAPIKey == "" {
		return nil, nil
	}
	reqCtx, cancel := context.WithTimeout(ctx, alertTimeout)
	defer cancel()

	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%g", lat))
	q.Set("lon", fmt.Sprintf("%g", lon))
	q.Set("exclude", "current,minutely,hourly,daily")
	q.Set("appid", c.OpenWeatherMapAPIKey)

	body, err := c.get(reqCtx, openWeatherOneCall+"?"+q.Encode(), nil)
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues("alerts", "error").Inc()
		return nil, fmt.Errorf("alerts: openweathermap request: %w", err)
	}

	var parsed owmOneCallResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("alerts: openweathermap decode: %w", err)
	}

	out := make([]model.AlertSummary, 0, len(parsed.Alerts))
	for _, a := range parsed.Alerts {
		out = append(out, model.AlertSummary{
			Title:       orDefault(a.Event, "Weather Alert"),
			Description: a.Description,
			Severity:    a.Severity,
			Source:      a.SenderName,
			Onset:       unixToISO(a.Start),
			Expiry:      unixToISO(a.End),
		})
	}
	observability.UpstreamCallsTotal.WithLabelValues("alerts", "success").Inc()
	return out, nil
}

func unixToISO(sec float64) string {
	if sec == 0 {
		return ""
	}
	return time.Unix(int64(sec), 0).UTC().Format(time.RFC3339)
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// --- MetService CAP RSS (New Zealand) ---

type rssFeed struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title string `xml:"title"`
	Link  string `xml:"link"`
}

type capAlert struct {
	XMLName xml.Name `xml:"alert"`
	Info    struct {
		Severity string `xml:"severity"`
		Onset    string `xml:"onset"`
		Expires  string `xml:"expires"`
		Area     []struct {
			Polygon []string `xml:"polygon"`
		} `xml:"area"`
	} `xml:"info"`
}

func (c *Client) fetchMetService(ctx context.Context, lat, lon float64) ([]model.AlertSummary, error) {
	reqCtx, cancel := context.WithTimeout(ctx, alertTimeout)
	defer cancel()

	body, err := c.get(reqCtx, metserviceRSSURL, map[string]string{"User-Agent": userAgent})
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues("alerts", "error").Inc()
		return nil, fmt.Errorf("alerts: metservice rss request: %w", err)
	}

	var feed rssFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("alerts: metservice rss decode: %w", err)
	}

	var out []model.AlertSummary
	for _, item := range feed.Channel.Items {
		if item.Link == "" {
			continue
		}
		capBody, err := c.get(reqCtx, item.Link, nil)
		if err != nil {
			continue
		}
		var alert capAlert
		if err := xml.Unmarshal(capBody, &alert); err != nil {
			continue
		}

		var polygons []polygon
		for _, area := range alert.Info.Area {
			for _, p := range area.Polygon {
				if poly, ok := parseCAPPolygon(p); ok {
					polygons = append(polygons, poly)
				}
			}
		}
		if len(polygons) == 0 {
			continue
		}

		matched := false
		for _, poly := range polygons {
			if poly.contains(lat, lon) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}

		out = append(out, model.AlertSummary{
			Title:       orDefault(item.Title, "MetService Alert"),
			Description: "",
			Severity:    alert.Info.Severity,
			Source:      "MetService",
			Onset:       alert.Info.Onset,
			Expiry:      alert.Info.Expires,
		})
	}
	observability.UpstreamCallsTotal.WithLabelValues("alerts", "success").Inc()
	return out, nil
}

// polygon is a closed ring of (lat, lon) vertices, as CAP expresses them.
type polygon struct {
	points [][2]float64
}

// parseCAPPolygon parses CAP's "lat,lon lat,lon ..." polygon text.
func parseCAPPolygon(text string) (polygon, bool) {
	fields := strings.Fields(strings.TrimSpace(text))
	var pts [][2]float64
	for _, pair := range fields {
		parts := strings.SplitN(pair, ",", 2)
		if len(parts) != 2 {
			continue
		}
		lat, err1 := strconv.ParseFloat(parts[0], 64)
		lon, err2 := strconv.ParseFloat(parts[1], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		pts = append(pts, [2]float64{lat, lon})
	}
	if len(pts) < 3 {
		return polygon{}, false
	}
	return polygon{points: pts}, true
}

// contains reports whether (lat, lon) lies inside the polygon (or on
// its boundary), using a standard ray-casting test.
func (p polygon) contains(lat, lon float64) bool {
	n := len(p.points)
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		yi, xi := p.points[i][0], p.points[i][1]
		yj, xj := p.points[j][0], p.points[j][1]

		if lat == yi && lon == xi {
			return true // on a vertex
		}

		intersects := (yi > lat) != (yj > lat)
		if intersects {
			xIntersect := xi + (lat-yi)/(yj-yi)*(xj-xi)
			if lon == xIntersect {
				return true // on an edge
			}
			if lon < xIntersect {
				inside = !inside
			}
		}
	}
	return inside
}

// --- country code resolution, cached by coordinate ---

type countryCache map[string]string

func (c *Client) resolveCountryCode(ctx context.Context, lat, lon float64) string {
	key := fmt.Sprintf("%.4f,%.4f", lat, lon)

	var cache countryCache
	if err := c.CountryCache.Get(ctx, countryCacheFile, 0, &cache, validCountryCache(&cache)); err == nil {
		if code, ok := cache[key]; ok {
			return code
		}
	}

	code := c.reverseCountryGoogle(ctx, lat, lon)
	if code == "" {
		code = c.reverseCountryOpenWeatherMap(ctx, lat, lon)
	}
	if code == "" {
		return ""
	}

	if cache == nil {
		cache = countryCache{}
	}
	cache[key] = code
	c.CountryCache.Set(ctx, countryCacheFile, cache)
	return code
}

// validCountryCache rejects a decoded cache whose values are not
// exactly 2 characters, matching the schema check upstream performs
// before trusting a cache file (spec.md §4.9 "on parse or validation
// failure, delete").
func validCountryCache(cache *countryCache) func() error {
	return func() error {
		for k, v := range *cache {
			if len(strings.TrimSpace(v)) != 2 {
				return fmt.Errorf("alerts: invalid country code %q for %q", v, k)
			}
		}
		return nil
	}
}

type googleReverseGeoResponse struct {
	Results []struct {
		AddressComponents []struct {
			ShortName string   `json:"short_name"`
			Types     []string `json:"types"`
		} `json:"address_components"`
	} `json:"results"`
}

func (c *Client) reverseCountryGoogle(ctx context.Context, lat, lon float64) string {
	if c.GoogleAPIKey == "" {
		return ""
	}
	q := url.Values{}
	q.Set("latlng", fmt.Sprintf("%g,%g", lat, lon))
	q.Set("key", c.GoogleAPIKey)

	body, err := c.get(ctx, googleReverseGeoURL+"?"+q.Encode(), nil)
	if err != nil {
		return ""
	}
	var parsed googleReverseGeoResponse
	if err := json.Unmarshal(body, &parsed); err != nil || len(parsed.Results) == 0 {
		return ""
	}
	for _, comp := range parsed.Results[0].AddressComponents {
		for _, t := range comp.Types {
			if t == "country" {
				return comp.ShortName
			}
		}
	}
	return ""
}

type owmReverseGeoResponse []struct {
	Country string `json:"country"`
}

func (c *Client) reverseCountryOpenWeatherMap(ctx context.Context, lat, lon float64) string {
	if c.OpenWeatherMapAPIKey == "" {
		return ""
	}
	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%g", lat))
	q.Set("lon", fmt.Sprintf("%g", lon))
	q.Set("limit", "1")
	q.Set("appid", c.OpenWeatherMapAPIKey)

	body, err := c.get(ctx, owmReverseGeoURL+"?"+q.Encode(), nil)
	if err != nil {
		return ""
	}
	var parsed owmReverseGeoResponse
	if err := json.Unmarshal(body, &parsed); err != nil || len(parsed) == 0 {
		return ""
	}
	return parsed[0].Country
}

// FilterFuture discards alerts with a missing or unparseable expiry,
// or one not after cutoff, matching the invariant in spec.md §3 that
// alerts are relevant only relative to the earliest forecast day.
func FilterFuture(alertsList []model.AlertSummary, cutoff time.Time) []model.AlertSummary {
	out := make([]model.AlertSummary, 0, len(alertsList))
	for _, a := range alertsList {
		expiry, err := time.Parse(time.RFC3339, a.Expiry)
		if err != nil {
			continue
		}
		if expiry.After(cutoff) {
			out = append(out, a)
		}
	}
	return out
}

func (c *Client) get(ctx context.Context, rawURL string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
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
