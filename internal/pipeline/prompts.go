package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tehoro/ibfcore/internal/formatter"
	"github.com/tehoro/ibfcore/internal/impactctx"
	"github.com/tehoro/ibfcore/internal/llm"
	"github.com/tehoro/ibfcore/internal/model"
	"github.com/tehoro/ibfcore/internal/naming"
	"github.com/tehoro/ibfcore/internal/render"
)

const datasetFallbackText = "**Dataset preview**\n"

// wordinessInstruction phrases the system prompt's length guidance for
// each configured wordiness level.
var wordinessInstruction = map[model.Wordiness]string{
	model.WordinessBrief:    "Keep the narrative brief: a short paragraph per day, no more.",
	model.WordinessNormal:   "Write a normal-length narrative: a few sentences per day covering the notable conditions.",
	model.WordinessDetailed: "Write a detailed narrative: cover temperature, precipitation, wind, and any notable risks for every day.",
}

func (e *Executor) buildSystemPrompt(displayName string, units model.Units) string {
	wordiness := e.Config.Wordiness
	instruction, ok := wordinessInstruction[wordiness]
	if !ok {
		instruction = wordinessInstruction[model.WordinessNormal]
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You are a professional meteorologist writing an impact-based weather forecast narrative for %s.\n", displayName)
	b.WriteString(instruction + "\n")
	fmt.Fprintf(&b, "Report temperatures in degrees %s, precipitation in %s, wind speed in %s.\n", strings.ToUpper(units.Temperature), units.Precip, units.Wind)
	b.WriteString("Structure the narrative with a **bold** heading per day. Relate the weather to concrete impacts where the supplied context supports it. Do not invent impacts the context or dataset does not support.")
	return b.String()
}

func (e *Executor) buildUserPrompt(datasetText, impactContext, extraContext string) string {
	var b strings.Builder
	b.WriteString(datasetText)
	if extraContext != "" {
		fmt.Fprintf(&b, "\n\nKnown local context: %s", extraContext)
	}
	if impactContext != "" {
		fmt.Fprintf(&b, "\n\nImpact-based forecasting context for this period:\n%s", impactContext)
	}
	return b.String()
}

// fetchImpactContext wraps the impactctx.Fetcher call, tolerating a nil
// Fetcher (impact context disabled in configuration).
func (e *Executor) fetchImpactContext(ctx context.Context, name string, kind impactctx.Type, forecastDays int, timezone string, extraContext string) impactctx.Result {
	if e.Impact == nil || !e.Config.ImpactContextEnabled {
		return impactctx.Result{}
	}
	return e.Impact.Fetch(ctx, impactctx.Request{
		Name:         name,
		Type:         kind,
		ForecastDays: forecastDays,
		TimezoneName: timezone,
		Now:          e.now(),
		ModelRef:     e.Config.ContextLLM,
		ExtraContext: extraContext,
	})
}

// callForecastLLM dispatches the composed prompt, falling back to a
// literal dataset summary when the LLM returns no usable text or
// errors (spec.md §4.8 step 7).
func (e *Executor) callForecastLLM(ctx context.Context, label, systemPrompt, userPrompt, fallback string) string {
	if e.Forecast == nil {
		return fallback
	}
	req := llm.Request{
		ModelRef:        e.Config.PrimaryLLM,
		SystemPrompt:    systemPrompt,
		UserPrompt:      userPrompt,
		Temperature:     0.4,
		MaxTokens:       3000,
		ReasoningEffort: e.reasoningOverride(),
	}
	result, err := e.Forecast.Dispatch(ctx, req, label, llm.CostForecast)
	if err != nil || strings.TrimSpace(result.Text) == "" {
		if err != nil {
			e.Logger.Warn("forecast llm call failed, using dataset fallback", zap.String("label", label), zap.Error(err))
		}
		return fallback
	}
	return result.Text
}

func (e *Executor) reasoningOverride() string {
	if !e.Config.ReasoningEnabled {
		return "off"
	}
	return string(e.Config.ReasoningLevel)
}

// maybeTranslate calls the translation LLM when loc/area configures a
// non-English target language, returning the translated text (or ""
// when no translation is configured or the call fails).
func (e *Executor) maybeTranslate(ctx context.Context, label, targetLanguage, narrative string) string {
	if targetLanguage == "" || strings.EqualFold(targetLanguage, "en") || strings.EqualFold(targetLanguage, "english") {
		return ""
	}
	dispatcher := e.Translation
	modelRef := e.Config.TranslationLLM
	if dispatcher == nil {
		dispatcher = e.Forecast
		modelRef = e.Config.PrimaryLLM
	}
	if dispatcher == nil {
		return ""
	}
	req := llm.Request{
		ModelRef:     modelRef,
		SystemPrompt: fmt.Sprintf("Translate the following weather forecast narrative into %s. Preserve Markdown formatting and the meaning precisely; do not add commentary.", targetLanguage),
		UserPrompt:   narrative,
		Temperature:  0.2,
		MaxTokens:    3000,
	}
	result, err := dispatcher.Dispatch(ctx, req, label, llm.CostTranslation)
	if err != nil {
		e.Logger.Warn("translation call failed", zap.String("label", label), zap.Error(err))
		return ""
	}
	return result.Text
}

// datasetSummaryFallback builds the terse textual stand-in used when
// the forecast LLM is unavailable (spec.md §4.8 step 7).
func datasetSummaryFallback(data memberData) string {
	var temps, precip []float64
	hours := 0
	for _, day := range data.Dataset.Days {
		for _, hour := range day.Hours {
			rec, ok := hour.Members["member00"]
			if !ok {
				continue
			}
			temps = append(temps, rec.Temperature)
			precip = append(precip, rec.Precipitation)
			hours++
		}
	}

	var b strings.Builder
	b.WriteString(datasetFallbackText)
	if len(temps) > 0 {
		lo, hi := temps[0], temps[0]
		for _, t := range temps {
			if t < lo {
				lo = t
			}
			if t > hi {
				hi = t
			}
		}
		fmt.Fprintf(&b, "- Core member temps: %.1f - %.1f\n", lo, hi)
	}
	if len(precip) > 0 {
		max := precip[0]
		for _, p := range precip {
			if p > max {
				max = p
			}
		}
		fmt.Fprintf(&b, "- Max precip: %.1f\n", max)
	}
	fmt.Fprintf(&b, "- Hours captured: %d\n", hours)

	b.WriteString("\n**Alerts**\n")
	if len(data.Alerts) == 0 {
		b.WriteString("- No active alerts at fetch time.\n")
	} else {
		limit := len(data.Alerts)
		if limit > 3 {
			limit = 3
		}
		for _, a := range data.Alerts[:limit] {
			source := a.Source
			if source == "" {
				source = "Alert"
			}
			fmt.Fprintf(&b, "- %s: %s\n", source, a.Title)
		}
	}
	return strings.TrimSpace(b.String())
}

// renderLocation runs spec.md §4.8 steps 5-9 for a single location
// whose dataset/format (steps 1-4) are already in data.
func (e *Executor) renderLocation(ctx context.Context, loc model.Location, data memberData) error {
	impact := e.fetchImpactContext(ctx, data.DisplayName, impactctx.TypeLocation, data.ForecastDays, data.Geocode.Timezone, loc.ExtraContext)

	systemPrompt := e.buildSystemPrompt(data.DisplayName, data.Units)
	userPrompt := e.buildUserPrompt(data.FormattedText, impact.Content, loc.ExtraContext)
	e.snapshotPrompt("location", data.Slug, systemPrompt, userPrompt)

	fallback := datasetSummaryFallback(data)
	narrative := e.callForecastLLM(ctx, data.DisplayName, systemPrompt, userPrompt, fallback)

	translated := e.maybeTranslate(ctx, data.DisplayName, loc.TranslateTo, narrative)

	return e.writePage(data.DisplayName, data.Slug, narrative, translated, loc.TranslateTo, impact.Content)
}

func (e *Executor) writePage(displayName, slug, narrative, translated, translateTo, impactContext string) error {
	if e.Config.WebRoot == "" {
		return nil
	}
	dest := filepath.Join(e.Config.WebRoot, slug, "index.html")
	return render.WritePage(render.Page{
		Destination:         dest,
		DisplayName:         displayName,
		IssueTime:           e.now().Format("2006-01-02 15:04 MST"),
		ForecastText:        narrative,
		TranslatedText:      translated,
		TranslationLanguage: translateTo,
		ImpactContext:       impactContext,
	})
}

// processArea resolves area's member locations (looking up each by
// name in byName, falling back to a default Location built from the
// area's own settings when a member name doesn't match a configured
// Location), then renders the area or regional prompt variant.
func (e *Executor) processArea(ctx context.Context, area model.Area, byName map[string]model.Location, alreadyBuilt map[string]memberData) error {
	slug := naming.Slugify(area.Name)
	dest := filepath.Join(e.Config.WebRoot, slug, "index.html")
	if e.Config.WebRoot != "" && render.ShouldSkip(dest, e.refreshInterval(area.RefreshInterval)) {
		e.Logger.Info("skipping area, within refresh interval", zap.String("name", area.Name))
		return nil
	}

	var entries []formatter.AreaLocationText
	var memberDatas []memberData
	for _, memberName := range area.Members {
		data, ok := alreadyBuilt[memberName]
		if !ok {
			loc, found := byName[memberName]
			if !found {
				loc = model.Location{
					Name:      memberName,
					Units:     area.Units,
					Model:     area.Model,
					SnowLevel: area.SnowLevel,
				}
			}
			built, err := e.buildMemberData(ctx, loc, memberName)
			if err != nil {
				e.Logger.Warn("area member pipeline failed, skipping member", zap.String("area", area.Name), zap.String("member", memberName), zap.Error(err))
				continue
			}
			data = built
		}
		memberDatas = append(memberDatas, data)
		entries = append(entries, formatter.AreaLocationText{
			Name:      data.DisplayName,
			Latitude:  data.Geocode.Latitude,
			Longitude: data.Geocode.Longitude,
			Timezone:  data.Geocode.Timezone,
			Text:      data.FormattedText,
		})
	}
	if len(entries) == 0 {
		return fmt.Errorf("pipeline: area %s has no resolvable members", area.Name)
	}

	areaText := formatter.FormatArea(area.Name, entries)
	forecastDays := memberDatas[0].ForecastDays
	timezone := memberDatas[0].Geocode.Timezone

	impact := e.fetchImpactContext(ctx, area.Name, areaContextType(area.Mode), forecastDays, timezone, area.ExtraContext)

	systemPrompt := e.buildAreaSystemPrompt(area)
	userPrompt := e.buildUserPrompt(areaText, impact.Content, area.ExtraContext)
	e.snapshotPrompt(string(areaContextType(area.Mode)), slug, systemPrompt, userPrompt)

	fallback := areaDatasetSummaryFallback(area.Name, memberDatas)
	narrative := e.callForecastLLM(ctx, area.Name, systemPrompt, userPrompt, fallback)
	translated := e.maybeTranslate(ctx, area.Name, area.TranslateTo, narrative)

	if e.Config.WebRoot != "" {
		state, err := render.ReadMapsHashState(e.Config.WebRoot)
		if err != nil {
			e.Logger.Warn("maps hash state read failed", zap.Error(err))
			state = render.MapsHashState{Areas: map[string]string{}}
		}
		state.Areas[slug] = render.AreaHash(area.Name, area.Members)
		if err := render.WriteMapsHashState(e.Config.WebRoot, state); err != nil {
			e.Logger.Warn("maps hash state write failed", zap.Error(err))
		}
	}

	return e.writePage(area.Name, slug, narrative, translated, area.TranslateTo, impact.Content)
}

func areaContextType(mode model.AreaMode) impactctx.Type {
	if mode == model.AreaModeRegional {
		return impactctx.TypeRegional
	}
	return impactctx.TypeArea
}

func (e *Executor) buildAreaSystemPrompt(area model.Area) string {
	var b strings.Builder
	if area.Mode == model.AreaModeRegional {
		fmt.Fprintf(&b, "You are a professional meteorologist writing a single regional weather narrative for %s, treating its member locations as one connected weather system rather than a list of separate reports.\n", area.Name)
	} else {
		fmt.Fprintf(&b, "You are a professional meteorologist writing a composite area summary for %s, covering each member location's forecast in turn.\n", area.Name)
	}
	instruction, ok := wordinessInstruction[e.Config.Wordiness]
	if !ok {
		instruction = wordinessInstruction[model.WordinessNormal]
	}
	b.WriteString(instruction)
	return b.String()
}

func areaDatasetSummaryFallback(areaName string, members []memberData) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Area dataset preview for %s**\n", areaName)
	for _, m := range members {
		fmt.Fprintf(&b, "- %s: %d day(s) processed\n", m.DisplayName, len(m.Dataset.Days))
	}
	return strings.TrimSpace(b.String())
}

// --- Prompt snapshotting (spec.md §4.8 step 6) ---

const maxSnapshotAge = 3 * 24 * time.Hour
const minRetainedSnapshots = 10

var snapshotTimestampFormat = "20060102T150405Z"

func (e *Executor) snapshotPrompt(kind, slug, systemPrompt, userPrompt string) {
	if e.PromptDir == "" {
		return
	}
	if err := SnapshotPrompt(e.PromptDir, kind, slug, systemPrompt, userPrompt, e.now()); err != nil {
		e.Logger.Warn("prompt snapshot failed", zap.String("slug", slug), zap.Error(err))
	}
}

// SnapshotPrompt writes a timestamped copy of a composed prompt under
// dir, then prunes old snapshots: the 10 most recent survive
// unconditionally; among the rest, anything older than 3 days is
// deleted.
func SnapshotPrompt(dir, kind, slug, systemPrompt, userPrompt string, now time.Time) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("pipeline: mkdir prompt dir: %w", err)
	}
	filename := fmt.Sprintf("%s_%s-%s.txt", now.UTC().Format(snapshotTimestampFormat), kind, slug)
	content := "=== SYSTEM ===\n" + systemPrompt + "\n\n=== USER ===\n" + userPrompt + "\n"
	if err := os.WriteFile(filepath.Join(dir, filename), []byte(content), 0o644); err != nil {
		return fmt.Errorf("pipeline: write prompt snapshot: %w", err)
	}
	return PruneSnapshots(dir, now)
}

var snapshotNamePattern = regexp.MustCompile(`^\d{8}T\d{6}Z_`)

// PruneSnapshots deletes old prompt snapshots under dir, keeping the
// minRetainedSnapshots most recent unconditionally and deleting any
// older ones past maxSnapshotAge.
func PruneSnapshots(dir string, now time.Time) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("pipeline: read prompt dir: %w", err)
	}

	var names []string
	for _, ent := range entries {
		if ent.IsDir() || !snapshotNamePattern.MatchString(ent.Name()) {
			continue
		}
		names = append(names, ent.Name())
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names))) // lexicographic == chronological, newest first

	if len(names) <= minRetainedSnapshots {
		return nil
	}

	for _, name := range names[minRetainedSnapshots:] {
		ts, err := time.Parse(snapshotTimestampFormat, name[:16])
		if err != nil {
			continue
		}
		if now.Sub(ts) > maxSnapshotAge {
			os.Remove(filepath.Join(dir, name))
		}
	}
	return nil
}
