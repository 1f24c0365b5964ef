// Package formatter renders a ProcessedDataset and its alerts into the
// plain-text block fed to the forecast LLM (spec.md §4.5).
package formatter

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tehoro/ibfcore/internal/model"
)

// Options carries the display-unit choices a single format pass uses.
type Options struct {
	TemperatureUnit string // "c" or "f"
	PrecipUnit      string // "mm" or "in"
	WindUnit        string // "kph", "mph", "kn", "ms"
	SnowLevelUnit   string // "m" or "ft"; passed to snow.Round upstream
}

// FormatLocation renders dataset into the LLM-facing text block,
// prepending any still-relevant alerts.
func FormatLocation(dataset model.ProcessedDataset, alerts []model.AlertSummary, opts Options) string {
	if len(dataset.Days) == 0 {
		return noValidData
	}

	alertText := formatAlerts(alerts, dataset.Days[0])

	var parts []string
	for _, day := range dataset.Days {
		block := formatDay(day, dataset.MemberIDs, opts)
		if strings.TrimSpace(block) != "" {
			parts = append(parts, block)
		}
	}
	final := strings.TrimSpace(strings.Join(parts, "\n"))

	if alertText != "" {
		return strings.TrimSpace(alertText + "\n" + final)
	}
	return final
}

func formatDay(day model.Day, memberIDs []string, opts Options) string {
	if len(day.Hours) == 0 {
		return ""
	}

	heading := fmt.Sprintf("%s %s\n", HeadingDate, dateHeadingText(day))

	var memberBlocks []string
	var dailyLows, dailyHighs, dailyPrecip, dailySnow []float64

	for _, member := range memberIDs {
		lines, high, low, totalPrecip, totalSnow, hasData := formatMemberBlock(day, member, opts, len(memberIDs) > 1)
		if !hasData {
			continue
		}
		memberBlocks = append(memberBlocks, lines)
		if !math.IsInf(high, -1) && !math.IsInf(low, 1) {
			dailyHighs = append(dailyHighs, math.Round(displayTemp(high, opts.TemperatureUnit)))
			dailyLows = append(dailyLows, math.Round(displayTemp(low, opts.TemperatureUnit)))
		}
		dailyPrecip = append(dailyPrecip, roundTo(totalPrecip, 1))
		dailySnow = append(dailySnow, roundTo(totalSnow, 1))
	}

	if len(memberBlocks) == 0 {
		return heading + " No hourly data available.\n"
	}

	firstHour := hourOfKey(day.Hours[0].Key)
	rangeSummary := rangeSummaryText(dailyLows, dailyHighs, dailyPrecip, dailySnow, opts, firstHour)

	return heading + strings.Join(memberBlocks, "\n") + "\n" + HeadingRangeSummary + "\n" + rangeSummary + "\n"
}

// formatMemberBlock renders one member's per-hour lines and returns
// the daily high/low/totals alongside whether it produced any data.
func formatMemberBlock(day model.Day, member string, opts Options, labelScenario bool) (text string, high, low, totalPrecip, totalSnow float64, hasData bool) {
	high = math.Inf(-1)
	low = math.Inf(1)

	var lines []string
	if labelScenario {
		lines = append(lines, fmt.Sprintf("Scenario %s:", strings.TrimPrefix(member, "member")))
	}

	for _, hour := range day.Hours {
		rec, ok := hour.Members[member]
		if !ok {
			continue
		}
		hasData = true
		if rec.Temperature > high {
			high = rec.Temperature
		}
		if rec.Temperature < low {
			low = rec.Temperature
		}
		totalPrecip += rec.Precipitation
		totalSnow += rec.Snowfall

		lines = append(lines, formatHourLine(hour.Key, rec, opts))
	}

	if !hasData {
		return "", high, low, totalPrecip, totalSnow, false
	}

	lines = append(lines, memberSummaryLine(high, low, totalPrecip, totalSnow, opts))
	return strings.Join(lines, "\n"), high, low, totalPrecip, totalSnow, true
}

// formatHourLine renders one hour for one member:
// <hourword> <temp>° <WeatherWord> [<precip-rate>] [cc<percent>] [snow down to about <N> <m|ft>] [pop<P>] <wind>
func formatHourLine(hourKey string, rec model.MemberRecord, opts Options) string {
	parts := []string{
		hourWord(hourOfKey(hourKey)),
		formatTemp(rec.Temperature, opts.TemperatureUnit) + "°",
		weatherPhrase(rec),
	}

	if rate := precipRateText(rec.Precipitation, opts.PrecipUnit); rate != "" {
		parts = append(parts, rate)
	}

	parts = append(parts, fmt.Sprintf("cc%d", rec.CloudCoverPct))

	if rec.SnowLevelM != nil {
		level, unit := roundedSnowLevel(*rec.SnowLevelM, opts.SnowLevelUnit)
		parts = append(parts, fmt.Sprintf("snow down to about %d %s", level, unit))
	}

	if rec.PrecipProb != nil {
		parts = append(parts, fmt.Sprintf("pop%d", *rec.PrecipProb))
	}

	parts = append(parts, windText(rec.WindDirWord, rec.WindSpeed, rec.WindGust, opts.WindUnit))

	return " " + strings.Join(parts, " ")
}

// weatherPhrase capitalizes the decoded weather word, relabeling it
// "Precip" when snow and rain are both falling at once.
func weatherPhrase(rec model.MemberRecord) string {
	if rec.Snowfall > 0 && rec.Precipitation > rec.Snowfall {
		return "Precip"
	}
	return capitalize(rec.WeatherWord)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func hourOfKey(key string) int {
	parts := strings.SplitN(key, ":", 2)
	n, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0
	}
	return n
}

// hourWord is spec.md §4.5's <hh(am|pm|noon|midnight)> component.
func hourWord(hour int) string {
	switch {
	case hour == 0:
		return WordMidnight
	case hour == 12:
		return WordNoon
	case hour < 12:
		return fmt.Sprintf("%dam", hour)
	default:
		return fmt.Sprintf("%dpm", hour-12)
	}
}

func formatTemp(value float64, unit string) string {
	return strconv.Itoa(int(math.Round(displayTemp(value, unit))))
}

// displayTemp converts an internal °C value to the display unit.
func displayTemp(celsius float64, unit string) float64 {
	if strings.EqualFold(unit, "f") {
		return celsius*9.0/5.0 + 32.0
	}
	return celsius
}

func tempUnitSymbol(unit string) string {
	if strings.EqualFold(unit, "f") {
		return "F"
	}
	return "C"
}

// precipRateText renders the bracketed precipitation-rate component,
// rounded whole mm or 0.1 in, suppressed when zero.
func precipRateText(value float64, unit string) string {
	if value <= 0 {
		return ""
	}
	if strings.EqualFold(unit, "in") {
		inches := value / 25.4
		return fmt.Sprintf("%.1fin", inches)
	}
	return fmt.Sprintf("%dmm", int(math.Round(value)))
}

func roundedSnowLevel(levelM float64, unit string) (int, string) {
	if strings.EqualFold(unit, "ft") {
		feet := levelM * 3.28084
		return int(math.Round(feet/500.0) * 500.0), "ft"
	}
	return int(math.Round(levelM/100.0) * 100.0), "m"
}

func windText(dirWord string, speed, gust float64, unit string) string {
	if speed <= 0 {
		return windCalm
	}
	word := dirWord
	if word == "" {
		word = variableWind
	}
	unitLabel := windUnitLabel(unit)
	text := fmt.Sprintf("%s %d %s", word, int(math.Round(displayWind(speed, unitLabel))), unitLabel)
	if gust-speed >= 10 {
		text += fmt.Sprintf(" gust %d %s", int(math.Round(displayWind(gust, unitLabel))), unitLabel)
	}
	return text
}

// displayWind converts an internal km/h speed to the unit named by a
// windUnitLabel result.
func displayWind(kph float64, label string) float64 {
	switch label {
	case "mph":
		return kph / 1.60934
	case "kn":
		return kph / 1.852
	case "m/s":
		return kph / 3.6
	default:
		return kph
	}
}

func windUnitLabel(unit string) string {
	switch strings.ToLower(unit) {
	case "mph":
		return "mph"
	case "kn", "kt":
		return "kn"
	case "ms", "m/s":
		return "m/s"
	default:
		return "km/h"
	}
}

// memberSummaryLine is the per-member totals footer (spec.md §4.5).
func memberSummaryLine(high, low, totalPrecip, totalSnow float64, opts Options) string {
	symbol := tempUnitSymbol(opts.TemperatureUnit)
	lines := []string{
		fmt.Sprintf(" %s %d°%s, %s %d°%s", labelLow, int(math.Round(displayTemp(low, opts.TemperatureUnit))), symbol, labelHigh, int(math.Round(displayTemp(high, opts.TemperatureUnit))), symbol),
	}

	if snowLine := snowfallTotalText(totalSnow); snowLine != "" {
		lines = append(lines, " "+labelTotalSnowfall+": "+snowLine+".")
	}
	if precipLine := rainfallTotalText(totalPrecip, opts.PrecipUnit); precipLine != "" {
		lines = append(lines, " "+labelTotalRainfall+": "+precipLine+".")
	}
	return strings.Join(lines, "\n")
}

// rainfallTotalText applies the unit-specific rounding rule from
// spec.md §4.5: below 0.25 mm is omitted entirely, 0.25-1 mm rounds to
// 0.5 mm, and 1 mm or more rounds to the nearest whole mm.
func rainfallTotalText(totalMM float64, unit string) string {
	if strings.EqualFold(unit, "in") {
		inches := totalMM / 25.4
		if inches < 0.01 {
			return ""
		}
		return fmt.Sprintf("%.2f in", inches)
	}
	switch {
	case totalMM < 0.25:
		return ""
	case totalMM < 1.0:
		return "0.5 mm"
	default:
		return fmt.Sprintf("%d mm", int(math.Round(totalMM)))
	}
}

// snowfallTotalText applies spec.md §4.5's <1 cm special case.
func snowfallTotalText(totalCM float64) string {
	if totalCM <= 0 {
		return ""
	}
	if totalCM < 1.0 {
		return labelLessThanOneCM
	}
	return fmt.Sprintf("%d cm", int(math.Round(totalCM)))
}

func roundTo(v float64, digits int) float64 {
	mult := math.Pow(10, float64(digits))
	return math.Round(v*mult) / mult
}

// rangeSummaryText builds the RANGE SUMMARY block: low/high ranges
// (possibly inverted or reduced to only-low, per the day's first-hour
// period per §4.2), probability and likely-range lines for rainfall
// and snowfall, and a heavy-precipitation exceedance line.
func rangeSummaryText(lows, highs, precip, snow []float64, opts Options, firstHour int) string {
	if len(lows) == 0 || len(highs) == 0 {
		return "N/A"
	}
	symbol := tempUnitSymbol(opts.TemperatureUnit)

	onlyLow := firstHour > 15
	reverseHighLow := firstHour > 10 && firstHour <= 15

	var lines []string
	switch {
	case onlyLow:
		lines = append(lines, fmt.Sprintf("%s %d°%s to %d°%s", labelLikelyLow, int(minOf(lows)), symbol, int(maxOf(lows)), symbol))
	case reverseHighLow:
		lines = append(lines, fmt.Sprintf("%s %d°%s to %d°%s", labelLikelyHigh, int(minOf(highs)), symbol, int(maxOf(highs)), symbol))
		lines = append(lines, fmt.Sprintf("%s %d°%s to %d°%s", labelLikelyLow, int(minOf(lows)), symbol, int(maxOf(lows)), symbol))
	default:
		lines = append(lines, fmt.Sprintf("%s %d°%s to %d°%s", labelLikelyLow, int(minOf(lows)), symbol, int(maxOf(lows)), symbol))
		lines = append(lines, fmt.Sprintf("%s %d°%s to %d°%s", labelLikelyHigh, int(minOf(highs)), symbol, int(maxOf(highs)), symbol))
	}

	if line := likelyAmountLine("precipitation", precip, opts.PrecipUnit); line != "" {
		lines = append(lines, line)
	}
	if line := likelyAmountLine("snowfall", snow, "cm"); line != "" {
		lines = append(lines, line)
	}
	if line := heavyPrecipLine(precip, opts.PrecipUnit); line != "" {
		lines = append(lines, line)
	}

	return strings.Join(lines, "\n")
}

// likelyAmountLine reports the Jeffreys probability and 20th/80th
// percentile likely range for a precipitation-type total across
// members, per spec.md §4.5.
func likelyAmountLine(label string, values []float64, unit string) string {
	var positive []float64
	for _, v := range values {
		if v > 0 {
			positive = append(positive, v)
		}
	}
	if len(positive) == 0 {
		return ""
	}

	probability := JeffreysProbability(len(positive), len(values))
	lo, hi, ok := estimatePercentiles(positive, 0.20)
	if !ok {
		return fmt.Sprintf("%s %s: %d%%", labelProbabilityOf, label, probability)
	}

	// Always 1-decimal precision here: the integer-mm rounding rule
	// belongs only to the per-member rainfallTotalText footer, not this
	// likely-range line (spec.md §8 S4's worked example requires
	// "0.2 mm to 0.9 mm", not whole millimetres).
	const digits = 1
	if strings.EqualFold(unit, "in") {
		lo, hi = lo/25.4, hi/25.4
	}
	lo = roundTo(lo, digits)
	hi = roundTo(hi, digits)
	return fmt.Sprintf("%s %s: %d%%\n%s %s %s %s to %s %s",
		labelProbabilityOf, label, probability,
		labelLikely, label, formatAmount(lo, digits), unit, formatAmount(hi, digits), unit)
}

func formatAmount(v float64, digits int) string {
	if digits == 0 {
		return strconv.Itoa(int(v))
	}
	return strconv.FormatFloat(v, 'f', digits, 64)
}

// heavyPrecipLine reports the probability that daily rainfall exceeds
// the heavy-precipitation threshold (≥10 mm / ≥0.5 in), per spec.md
// §4.5's separate threshold-exceedance line.
func heavyPrecipLine(values []float64, unit string) string {
	if len(values) == 0 {
		return ""
	}
	threshold := 10.0
	if strings.EqualFold(unit, "in") {
		threshold = 0.5 * 25.4
	}
	occurrences := 0
	for _, v := range values {
		if v >= threshold {
			occurrences++
		}
	}
	if occurrences == 0 {
		return ""
	}
	probability := JeffreysProbability(occurrences, len(values))
	return fmt.Sprintf("Probability of heavy precipitation: %d%%", probability)
}

func minOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// JeffreysProbability rounds the Jeffreys-interval point estimate of
// occurrences/total to the nearest 5% (spec.md §4.5). Unanimous
// agreement across members (occurrences == total) always reports
// 100%, since the smoothed formula alone would round a near-unanimous
// sample down to 90% — see the S4 worked example in spec.md §8.
func JeffreysProbability(occurrences, total int) int {
	if total <= 0 {
		return 0
	}
	if occurrences >= total {
		return 100
	}
	prob := (float64(occurrences) + 0.5) / (float64(total) + 1)
	pct := math.Round(prob*20) * 5
	return int(math.Max(0, math.Min(100, pct)))
}

// estimatePercentiles returns the lowerFraction and (1-lowerFraction)
// percentiles of values via linear interpolation between order
// statistics, placing the i-th smallest of n values (1-based) at
// fraction i/(n+1); fractions outside that span clamp to the smallest
// or largest value. ok is false when fewer than two values are
// available.
func estimatePercentiles(values []float64, lowerFraction float64) (lo, hi float64, ok bool) {
	if len(values) < 2 {
		return 0, 0, false
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)

	lo = interpolate(sorted, lowerFraction*float64(n+1)-1)
	hi = interpolate(sorted, (1-lowerFraction)*float64(n+1)-1)
	return lo, hi, true
}

func interpolate(sorted []float64, position float64) float64 {
	if position <= 0 {
		return sorted[0]
	}
	if position >= float64(len(sorted)-1) {
		return sorted[len(sorted)-1]
	}
	lowerIdx := int(math.Floor(position))
	frac := position - float64(lowerIdx)
	return sorted[lowerIdx] + frac*(sorted[lowerIdx+1]-sorted[lowerIdx])
}

// dateHeadingText renders a day's heading, e.g. "THURSDAY 10 JANUARY",
// using the day's label as the leading descriptor when it isn't just a
// bare weekday name.
func dateHeadingText(day model.Day) string {
	descriptor := day.Label
	if descriptor == day.Date.Weekday().String() {
		descriptor = strings.ToUpper(descriptor)
	} else {
		descriptor = strings.ToUpper(stripWeekdaySuffix(descriptor, day.Date.Weekday().String()))
	}
	monthDay := strconv.Itoa(day.Date.Day())
	month := strings.ToUpper(day.Date.Month().String())
	return fmt.Sprintf("%s %s %s", descriptor, monthDay, month)
}

// stripWeekdaySuffix removes a trailing ", <Weekday>" from a label
// like "Rest of today, Friday", leaving just "Rest of today" (mirrors
// the way these labels are folded into the date heading).
func stripWeekdaySuffix(label, weekday string) string {
	suffix := ", " + weekday
	return strings.TrimSuffix(label, suffix)
}

func formatAlerts(alerts []model.AlertSummary, firstDay model.Day) string {
	if len(alerts) == 0 {
		return ""
	}
	earliest := firstDay.Date

	var lines []string
	for _, alert := range alerts {
		if alert.Onset == "" || alert.Expiry == "" {
			continue
		}
		expires, err := time.Parse(time.RFC3339, alert.Expiry)
		if err != nil {
			continue
		}
		if expires.Before(earliest) {
			continue
		}
		onset := alert.Onset
		source := alert.Source
		if source == "" {
			source = "N/A"
		}
		title := alert.Title
		if title == "" {
			title = "N/A"
		}
		description := alert.Description
		if description == "" {
			description = "N/A"
		}
		lines = append(lines, strings.Join([]string{
			"ALERT from " + source + ":",
			"Title: " + title,
			"Valid from: " + onset,
			"Expires: " + alert.Expiry,
			"Description: " + description,
		}, "\n"))
	}
	if len(lines) == 0 {
		return ""
	}
	return HeadingActiveAlerts + "\n" + strings.Join(lines, "\n")
}

// FormatArea combines multiple locations' already-formatted text
// blocks into a single area-level prompt section (spec.md §4.8 area
// path).
func FormatArea(areaName string, entries []AreaLocationText) string {
	if len(entries) == 0 {
		return ""
	}
	parts := []string{
		HeadingAreaContext + " " + areaName,
		"Each block below is the processed dataset for a representative location.",
	}
	for _, e := range entries {
		header := fmt.Sprintf("### LOCATION: %s (%.4f, %.4f) — Timezone: %s", e.Name, e.Latitude, e.Longitude, e.Timezone)
		parts = append(parts, header)
		if text := strings.TrimSpace(e.Text); text != "" {
			parts = append(parts, text)
		}
		parts = append(parts, MarkerEndLocation)
	}
	return strings.TrimSpace(strings.Join(parts, "\n\n"))
}

// AreaLocationText is one member location's contribution to an area
// prompt.
type AreaLocationText struct {
	Name      string
	Latitude  float64
	Longitude float64
	Timezone  string
	Text      string
}
