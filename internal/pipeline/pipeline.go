// Package pipeline orchestrates the per-location and per-area forecast
// construction: geocode, fetch, derive, thin, format, fetch impact
// context, prompt, call the forecast LLM, optionally translate, and
// render (spec.md §4.8).
package pipeline

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/tehoro/ibfcore/internal/alerts"
	"github.com/tehoro/ibfcore/internal/dataset"
	"github.com/tehoro/ibfcore/internal/formatter"
	"github.com/tehoro/ibfcore/internal/geocode"
	"github.com/tehoro/ibfcore/internal/impactctx"
	"github.com/tehoro/ibfcore/internal/llm"
	"github.com/tehoro/ibfcore/internal/model"
	"github.com/tehoro/ibfcore/internal/naming"
	"github.com/tehoro/ibfcore/internal/nwp"
	"github.com/tehoro/ibfcore/internal/observability"
	"github.com/tehoro/ibfcore/internal/render"
	"github.com/tehoro/ibfcore/internal/snow"
	"github.com/tehoro/ibfcore/internal/thinning"
)

// pressureLevelProbe are the pressure levels requested as a
// freezing-level-height fallback (spec.md §4.8 step 3).
var pressureLevelProbe = []int{1000, 925, 850, 700, 500}

// Executor wires every collaborator the pipeline needs and iterates a
// ForecastConfig to emit HTML pages.
type Executor struct {
	Config      model.ForecastConfig
	Geocode     *geocode.Client
	Alerts      *alerts.Client
	NWP         *nwp.Client
	Impact      *impactctx.Fetcher
	Forecast    *llm.Dispatcher
	Translation *llm.Dispatcher
	Terrain     snow.TerrainProvider
	Logger      *zap.Logger

	// PromptDir, when non-empty, receives a timestamped snapshot of
	// every composed prompt (spec.md §4.8 step 6).
	PromptDir string

	// Now returns the wall-clock time; overridable in tests.
	Now func() time.Time
}

// New constructs an Executor with a Nop logger and real clock unless
// overridden afterward.
func New(cfg model.ForecastConfig) *Executor {
	return &Executor{Config: cfg, Logger: zap.NewNop(), Now: time.Now}
}

func (e *Executor) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// memberData is one location's steps 1-4 output: a built dataset plus
// everything needed to format and render it, independent of whether it
// feeds a standalone location page or an area aggregation.
type memberData struct {
	ConfigName    string
	DisplayName   string
	Slug          string
	Spec          model.ModelSpec
	Units         model.Units
	Geocode       model.GeocodeResult
	Alerts        []model.AlertSummary
	Dataset       model.ProcessedDataset
	FormattedText string
	ForecastDays  int
}

// Run iterates every configured location and area, emitting one HTML
// page per entity. A single entity's failure is logged and skipped; it
// never aborts the run (spec.md §7).
func (e *Executor) Run(ctx context.Context) (*CostSummary, error) {
	if len(e.Config.Locations) == 0 && len(e.Config.Areas) == 0 {
		return &CostSummary{}, nil
	}

	entries := make([]naming.Entry, len(e.Config.Locations))
	for i, loc := range e.Config.Locations {
		kind := "deterministic"
		if spec, err := e.resolveModelSpec(loc.Model); err == nil && spec.Kind == model.KindEnsemble {
			kind = "ensemble"
		}
		entries[i] = naming.Entry{Name: loc.Name, Kind: kind}
	}
	displayNames := naming.Disambiguate(entries)

	locationEntries := make([]render.Entry, len(e.Config.Locations))
	for i := range e.Config.Locations {
		slug := naming.Slugify(displayNames[i])
		locationEntries[i] = render.Entry{Slug: slug, Label: displayNames[i]}
	}
	areaEntries := make([]render.Entry, len(e.Config.Areas))
	for i, area := range e.Config.Areas {
		areaEntries[i] = render.Entry{Slug: naming.Slugify(area.Name), Label: area.Name}
	}

	if e.Config.WebRoot != "" {
		if err := render.Scaffold(e.Config.WebRoot, locationEntries, areaEntries); err != nil {
			e.Logger.Warn("scaffold failed", zap.Error(err))
		}
	}

	byName := make(map[string]model.Location, len(e.Config.Locations))
	for _, loc := range e.Config.Locations {
		if _, exists := byName[loc.Name]; !exists {
			byName[loc.Name] = loc
		}
	}

	members := make(map[string]memberData, len(e.Config.Locations))
	for i, loc := range e.Config.Locations {
		displayName := displayNames[i]
		slug := naming.Slugify(displayName)
		dest := filepath.Join(e.Config.WebRoot, slug, "index.html")
		if e.Config.WebRoot != "" && render.ShouldSkip(dest, e.refreshInterval(loc.RefreshInterval)) {
			e.Logger.Info("skipping location, within refresh interval", zap.String("name", loc.Name))
			observability.EntitiesProcessedTotal.WithLabelValues("skipped").Inc()
			continue
		}

		data, err := e.buildMemberData(ctx, loc, displayName)
		if err != nil {
			e.Logger.Warn("location pipeline failed, skipping", zap.String("name", loc.Name), zap.Error(err))
			observability.EntitiesProcessedTotal.WithLabelValues("failed").Inc()
			continue
		}
		members[loc.Name] = data

		if err := e.renderLocation(ctx, loc, data); err != nil {
			e.Logger.Warn("location render failed", zap.String("name", loc.Name), zap.Error(err))
			observability.EntitiesProcessedTotal.WithLabelValues("failed").Inc()
			continue
		}
		observability.EntitiesProcessedTotal.WithLabelValues("success").Inc()
	}

	for _, area := range e.Config.Areas {
		areaDest := filepath.Join(e.Config.WebRoot, naming.Slugify(area.Name), "index.html")
		if e.Config.WebRoot != "" && render.ShouldSkip(areaDest, e.refreshInterval(area.RefreshInterval)) {
			e.Logger.Info("skipping area, within refresh interval", zap.String("name", area.Name))
			observability.EntitiesProcessedTotal.WithLabelValues("skipped").Inc()
			continue
		}
		if err := e.processArea(ctx, area, byName, members); err != nil {
			e.Logger.Warn("area pipeline failed, skipping", zap.String("name", area.Name), zap.Error(err))
			observability.EntitiesProcessedTotal.WithLabelValues("failed").Inc()
			continue
		}
		observability.EntitiesProcessedTotal.WithLabelValues("success").Inc()
	}

	return NewCostSummary(e.Forecast, e.Translation, e.Impact), nil
}

func (e *Executor) refreshInterval(override *time.Duration) time.Duration {
	if override != nil {
		return *override
	}
	return e.Config.RefreshInterval
}

func (e *Executor) resolveModelSpec(ref string) (model.ModelSpec, error) {
	if ref == "" {
		ref = e.Config.Model
	}
	return model.ParseModelSpec(ref)
}

func (e *Executor) resolveUnits(override model.Units) model.Units {
	base := e.Config.Units.Merge(model.DefaultUnits())
	return override.Merge(base)
}

func (e *Executor) resolveSnowLevel(override *bool, kind model.ModelKind) bool {
	enabled := e.Config.SnowLevel
	if override != nil {
		enabled = *override
	}
	return enabled && kind == model.KindDeterministic
}

func (e *Executor) forecastDaysFor(kind model.ModelKind) int {
	if kind == model.KindEnsemble {
		if e.Config.ForecastDaysEnsemble > 0 {
			return e.Config.ForecastDaysEnsemble
		}
		return 4
	}
	if e.Config.ForecastDaysDeterministic > 0 {
		return e.Config.ForecastDaysDeterministic
	}
	return 7
}

// buildMemberData runs spec.md §4.8 steps 1, 3, and 4 for a single
// location: resolve model/units/snow-level, geocode, fetch alerts and
// NWP, and build the processed dataset.
func (e *Executor) buildMemberData(ctx context.Context, loc model.Location, displayName string) (memberData, error) {
	spec, err := e.resolveModelSpec(loc.Model)
	if err != nil {
		return memberData{}, fmt.Errorf("pipeline: resolve model for %s: %w", loc.Name, err)
	}
	units := e.resolveUnits(loc.Units)
	snowEnabled := e.resolveSnowLevel(loc.SnowLevel, spec.Kind)
	forecastDays := e.forecastDaysFor(spec.Kind)

	geo, err := e.Geocode.Resolve(ctx, loc.Name)
	if err != nil {
		return memberData{}, fmt.Errorf("pipeline: geocode %s: %w", loc.Name, err)
	}
	if loc.Altitude != nil {
		alt := *loc.Altitude
		geo.AltitudeM = &alt
	}

	alertList, err := e.Alerts.Fetch(ctx, geo.Latitude, geo.Longitude, geo.CountryCode)
	if err != nil {
		e.Logger.Warn("alerts fetch failed", zap.String("name", loc.Name), zap.Error(err))
		alertList = nil
	}

	raw, err := e.NWP.Fetch(ctx, nwp.Request{
		Latitude:     geo.Latitude,
		Longitude:    geo.Longitude,
		ForecastDays: forecastDays + 1,
		Spec:         spec,
	})
	if err != nil {
		return memberData{}, fmt.Errorf("pipeline: nwp fetch %s: %w", loc.Name, err)
	}

	var profile *model.RawForecastResponse
	if snowEnabled && !hasFreezingLevel(raw) && !e.NWP.PressureLevelsUnsupported(spec.ModelID) {
		profileRaw, err := e.NWP.Fetch(ctx, nwp.Request{
			Latitude:       geo.Latitude,
			Longitude:      geo.Longitude,
			ForecastDays:   forecastDays + 1,
			Spec:           spec,
			PressureLevels: pressureLevelProbe,
		})
		if err == nil {
			if allPressureLevelsNull(profileRaw, pressureLevelProbe) {
				e.NWP.MarkPressureLevelsUnsupported(spec.ModelID)
			} else {
				profile = &profileRaw
			}
		}
	}

	elevation := raw.Elevation
	if geo.AltitudeM != nil {
		elevation = *geo.AltitudeM
	}

	processed, err := dataset.Transform(dataset.Inputs{
		Raw:               raw,
		ProfileRaw:        profile,
		PressureLevelsHPa: pressureLevelProbe,
		Timezone:          geo.Timezone,
		Now:               e.now(),
		Kind:              spec.Kind,
		SnowLevelEnabled:  snowEnabled,
		StationElevationM: elevation,
		StationPressurePa: stationPressureFromElevation(elevation),
		Terrain:           e.Terrain,
		Latitude:          geo.Latitude,
		Longitude:         geo.Longitude,
	})
	if err != nil {
		return memberData{}, fmt.Errorf("pipeline: transform %s: %w", loc.Name, err)
	}
	processed = capDays(processed, forecastDays)

	if spec.Kind == model.KindEnsemble {
		target := e.Config.ThinEnsembleTo
		if target <= 0 {
			target = 12
		}
		processed = thinning.Select(processed, target, thinning.DefaultWeights(), spec.ModelID)
	}

	text := formatter.FormatLocation(processed, alertList, formatter.Options{
		TemperatureUnit: units.Temperature,
		PrecipUnit:      units.Precip,
		WindUnit:        units.Wind,
		SnowLevelUnit:   units.Snow,
	})

	return memberData{
		ConfigName:    loc.Name,
		DisplayName:   displayName,
		Slug:          naming.Slugify(displayName),
		Spec:          spec,
		Units:         units,
		Geocode:       geo,
		Alerts:        alertList,
		Dataset:       processed,
		FormattedText: text,
		ForecastDays:  forecastDays,
	}, nil
}

// capDays slices dataset down to the configured day count, applied
// after the +1 padding day requested from upstream is transformed
// (spec.md §4.8 step 4).
func capDays(dataset model.ProcessedDataset, days int) model.ProcessedDataset {
	if days <= 0 || len(dataset.Days) <= days {
		return dataset
	}
	dataset.Days = dataset.Days[:days]
	return dataset
}

func hasFreezingLevel(raw model.RawForecastResponse) bool {
	series, ok := raw.Hourly["freezing_level_height"]
	if !ok {
		return false
	}
	for _, v := range series {
		if v != nil {
			return true
		}
	}
	return false
}

func allPressureLevelsNull(raw model.RawForecastResponse, levels []int) bool {
	for _, lvl := range levels {
		for _, base := range []string{
			fmt.Sprintf("temperature_%dhPa", lvl),
			fmt.Sprintf("geopotential_height_%dhPa", lvl),
		} {
			series, ok := raw.Hourly[base]
			if !ok {
				continue
			}
			for _, v := range series {
				if v != nil {
					return false
				}
			}
		}
	}
	return true
}

// stationPressureFromElevation approximates surface pressure from
// elevation via the barometric formula, for use as the snow diagnostic's
// reference pressure when no pressure-level profile is available.
func stationPressureFromElevation(elevationM float64) float64 {
	const seaLevelPa = 101325.0
	return seaLevelPa * math.Pow(1.0-2.25577e-5*elevationM, 5.25588)
}
