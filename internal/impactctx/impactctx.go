// Package impactctx fetches impact-based forecasting context — known
// vulnerabilities, impact thresholds, exposed assets, upcoming events —
// for a location, area, or region, caching the result on disk (spec.md
// §4.6).
package impactctx

import (
	"context"
	"crypto/sha256"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tehoro/ibfcore/internal/filecache"
	"github.com/tehoro/ibfcore/internal/llm"
	"github.com/tehoro/ibfcore/internal/naming"
)

// Type distinguishes the entity an impact context is generated for.
type Type string

const (
	TypeLocation Type = "location"
	TypeArea     Type = "area"
	TypeRegional Type = "regional"
)

// requiredHeadings are the four H3 sections every context response must
// contain, in order.
var requiredHeadings = []string{
	"Existing Vulnerabilities",
	"Weather Impact Thresholds",
	"Exposed Populations and Assets",
	"Upcoming Events",
}

const maxCacheAge = 3 * 24 * time.Hour
const maxContinuations = 2

// Request describes one impact-context fetch.
type Request struct {
	Name         string
	Type         Type
	ForecastDays int
	TimezoneName string
	Now          time.Time // local time, caller-resolved
	ModelRef     string    // context LLM reference; routes to OpenAI or Gemini
	ExtraContext string    // free-form configured extra context appended to the prompt
}

// Result is a fetched or cached impact context.
type Result struct {
	Content   string
	FromCache bool
	Cost      llm.Cost
}

// Fetcher retrieves impact context, backed by a filecache.Store and an
// llm.Dispatcher.
type Fetcher struct {
	Cache      *filecache.Store
	Dispatcher *llm.Dispatcher
	Logger     *zap.Logger
}

// New constructs a Fetcher rooted at cacheDir.
func New(cacheDir string, dispatcher *llm.Dispatcher, logger *zap.Logger) (*Fetcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	store, err := filecache.New(cacheDir, "impact")
	if err != nil {
		return nil, err
	}
	return &Fetcher{Cache: store, Dispatcher: dispatcher, Logger: logger}, nil
}

type cachedPayload struct {
	Context string `json:"context"`
}

// Fetch returns req's impact context, consulting the cache first and
// otherwise invoking the context LLM. On any provider error it returns
// an empty Result rather than propagating the error (spec.md §4.6:
// "on provider error return empty content with cost = 0").
func (f *Fetcher) Fetch(ctx context.Context, req Request) Result {
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}

	key := cacheKey(req, now)
	f.Cache.Sweep(maxCacheAge)

	var cached cachedPayload
	if err := f.Cache.Get(ctx, key, maxCacheAge, &cached, nil); err == nil {
		return Result{Content: cached.Context, FromCache: true}
	}

	if f.Dispatcher == nil {
		return Result{}
	}

	content, cost := f.generate(ctx, req, now)
	if content == "" {
		f.Logger.Info("impact context unavailable", zap.String("name", req.Name), zap.String("type", string(req.Type)))
		return Result{}
	}

	if err := f.Cache.Set(ctx, key, cachedPayload{Context: content}); err != nil {
		f.Logger.Warn("impact context cache write failed", zap.Error(err))
	}
	return Result{Content: content, Cost: cost}
}

// cacheKey builds the canonical impact cache filename (spec.md §6):
// <YYYYMMDD>_<type>_<slug>[__<ctxhash>].json. The hash segment is
// present whenever the model reference or extra context narrows the
// cache beyond the entity's default context, since two locations with
// distinct context LLMs or extra context must not share a cache entry.
func cacheKey(req Request, now time.Time) string {
	dateStr := now.Format("20060102")
	slug := naming.Slugify(req.Name)
	base := fmt.Sprintf("%s_%s_%s", dateStr, req.Type, slug)
	if req.ModelRef == "" && req.ExtraContext == "" {
		return base + ".json"
	}
	sum := sha256.Sum256([]byte(req.ModelRef + "|" + req.ExtraContext))
	return fmt.Sprintf("%s__%x.json", base, sum[:6])
}

func (f *Fetcher) generate(ctx context.Context, req Request, now time.Time) (string, llm.Cost) {
	prompt := buildPrompt(req, now)

	llmReq := llm.Request{
		ModelRef:     req.ModelRef,
		SystemPrompt: "You supply concise contextual information for weather impact assessments.",
		UserPrompt:   prompt,
		Temperature:  0.2,
		MaxTokens:    1800,
		WebSearch:    true,
	}

	result, err := f.Dispatcher.Dispatch(ctx, llmReq, req.Name, llm.CostContext)
	if err != nil {
		f.Logger.Warn("impact context call failed", zap.String("name", req.Name), zap.Error(err))
		return "", llm.Cost{}
	}

	text := result.Text
	attempts := 0
	for needsContinuation(text) && attempts < maxContinuations {
		attempts++
		contReq := llmReq
		contReq.UserPrompt = continuationPrompt(prompt, text)
		contResult, err := f.Dispatcher.Dispatch(ctx, contReq, req.Name, llm.CostContext)
		if err != nil {
			break
		}
		text = mergeContinuation(text, contResult.Text)
		result.Cost.InputTokens += contResult.Cost.InputTokens
		result.Cost.CachedInputTokens += contResult.Cost.CachedInputTokens
		result.Cost.OutputTokens += contResult.Cost.OutputTokens
		result.Cost.USD += contResult.Cost.USD
	}

	return canonicalizeHeadings(text), result.Cost
}

func buildPrompt(req Request, now time.Time) string {
	forecastDays := req.ForecastDays
	if forecastDays <= 0 {
		forecastDays = 4
	}
	maxEventDays := forecastDays
	if maxEventDays > 10 {
		maxEventDays = 10
	}
	entityPhrase := "a location"
	if req.Type == TypeArea || req.Type == TypeRegional {
		entityPhrase = "an area"
	}
	localDateStr := now.Format("Monday 02 January 2006")
	startISO := now.Format("2006-01-02")
	endISO := now.AddDate(0, 0, maxEventDays).Format("2006-01-02")
	tz := req.TimezoneName
	if tz == "" {
		tz = "UTC"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Another assistant will soon prepare a %d-day impact-based weather forecast and warning plan for %s (%s) in the local timezone (%s). The local date at the time of writing is %s.\n\n", forecastDays, req.Name, entityPhrase, tz, localDateStr)
	fmt.Fprintf(&b, "Provide structured context covering ONLY the upcoming %d days (from %s through %s inclusive). Identify and list information that could influence weather impacts, including:\n", forecastDays, startISO, endISO)
	b.WriteString("- Existing vulnerabilities (recent floods, landslides, drought, damaged infrastructure, health concerns, etc.).\n")
	b.WriteString("- Quantitative weather impact thresholds specific to this place (rainfall totals in mm, wind speeds in km/h, etc.) that historically trigger impacts such as flooding, landslides, transport disruption, or structural damage.\n")
	b.WriteString("- Exposed populations and critical assets (informal settlements, flood-prone neighbourhoods, schools, hospitals, tourism areas, ports, etc.).\n")
	fmt.Fprintf(&b, "- Major upcoming public events occurring today or within the next %d days (sporting events, national holidays, concerts, festivals). For every event listed, provide the exact calendar date in ISO form `YYYY-MM-DD - description`. Do NOT include events before %s or after %s. If no such events exist, explicitly state \"No significant public events identified during this period.\"\n\n", maxEventDays, startISO, endISO)
	b.WriteString("Use only recent, publicly available information. Present the findings as plain text grouped under the headings:\n")
	for _, h := range requiredHeadings {
		b.WriteString(h + "\n")
	}
	fmt.Fprintf(&b, "\nFor each bullet, write one to two sentences explaining why the item matters for impact-based forecasting over the next %d days. Do not include URLs, citations, or conversational conclusions - only the requested structured context.", forecastDays)
	if req.ExtraContext != "" {
		fmt.Fprintf(&b, "\n\nAdditional known context to take into account: %s", req.ExtraContext)
	}
	return b.String()
}

func continuationPrompt(original, soFar string) string {
	missing := missingHeadings(soFar)
	var b strings.Builder
	b.WriteString("Continue your previous answer to this request without repeating any earlier text:\n\n")
	b.WriteString(original)
	b.WriteString("\n\nYour answer so far ended here:\n")
	b.WriteString(soFar)
	b.WriteString("\n\nComplete the cut-off sentence, if any, then write out")
	if len(missing) > 0 {
		b.WriteString(" the following sections you have not yet provided: " + strings.Join(missing, ", "))
	} else {
		b.WriteString(" nothing further; your answer is already complete")
	}
	b.WriteString(".")
	return b.String()
}

// mergeContinuation joins soFar with the continuation text, avoiding a
// joined word-fragment when soFar doesn't end on whitespace or
// punctuation.
func mergeContinuation(soFar, continuation string) string {
	if soFar == "" {
		return continuation
	}
	if continuation == "" {
		return soFar
	}
	sep := ""
	last := soFar[len(soFar)-1]
	first := continuation[0]
	if !isBoundaryByte(last) && !isBoundaryByte(first) {
		sep = " "
	}
	return soFar + sep + continuation
}

func isBoundaryByte(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t' || strings.ContainsRune(".,!?;:)]}", rune(b))
}

var terminalPunctuation = regexp.MustCompile(`[.!?"')\]]\s*$`)

// needsContinuation reports whether text is missing a required heading
// or appears to end mid-sentence (spec.md §4.6).
func needsContinuation(text string) bool {
	if len(missingHeadings(text)) > 0 {
		return true
	}
	trimmed := strings.TrimRight(text, " \n\t")
	return trimmed != "" && !terminalPunctuation.MatchString(trimmed)
}

func missingHeadings(text string) []string {
	var missing []string
	for _, h := range requiredHeadings {
		if !headingPattern(h).MatchString(text) {
			missing = append(missing, h)
		}
	}
	return missing
}

func headingPattern(title string) *regexp.Regexp {
	escaped := regexp.QuoteMeta(title)
	return regexp.MustCompile(`(?i)#{0,3}\s*\*{0,2}` + escaped + `\*{0,2}`)
}

var headingLinePattern = regexp.MustCompile(`(?im)^\s*#{0,3}\s*\*{0,2}(Existing Vulnerabilities|Weather Impact Thresholds|Exposed Populations and Assets|Upcoming Events)\*{0,2}\s*$`)

// canonicalizeHeadings rewrites any of the four required headings,
// regardless of capitalization or surrounding emphasis markers, to
// `### <title>` on its own line (spec.md §4.6).
func canonicalizeHeadings(text string) string {
	return headingLinePattern.ReplaceAllStringFunc(text, func(line string) string {
		m := headingLinePattern.FindStringSubmatch(line)
		for _, h := range requiredHeadings {
			if len(m) > 1 && strings.EqualFold(m[1], h) {
				return "### " + h
			}
		}
		return line
	})
}
