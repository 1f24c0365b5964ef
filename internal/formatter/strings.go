package formatter

// Section headings and labels used throughout the generated forecast
// text. Centralizing them here keeps the LLM prompt's literal wording
// consistent across locations and areas.
const (
	// HeadingDate prefixes each day block, e.g. "Date: THURSDAY 10 JANUARY".
	HeadingDate = "Date:"
	// HeadingRangeSummary introduces the per-day aggregate block.
	HeadingRangeSummary = "RANGE SUMMARY:"
	// HeadingActiveAlerts introduces prepended alert text.
	HeadingActiveAlerts = "ACTIVE ALERTS:"
	// HeadingAreaContext introduces an area's combined member blocks.
	HeadingAreaContext = "AREA CONTEXT:"
	// MarkerEndLocation closes one member's block inside an area prompt.
	MarkerEndLocation = "<END LOCATION>"
)

// Word forms for the special-cased hours of day (spec.md §4.5).
const (
	WordMidnight = "midnight"
	WordNoon     = "noon"
)

const (
	windCalm     = "wind calm"
	variableWind = "variable"
)

// Labels used in per-member summary and range-summary lines.
const (
	labelLow           = "Low"
	labelHigh          = "High"
	labelLikelyLow     = "Likely low"
	labelLikelyHigh    = "Likely high"
	labelTotalSnowfall = "Total snowfall"
	labelTotalRainfall = "Total rainfall"
	labelLessThanOneCM = "less than 1 cm"
	labelProbabilityOf = "Estimated probability of"
	labelLikely        = "Likely"
)

// noValidData is emitted when a day or dataset carries no usable data.
const noValidData = "Error: No valid forecast data received for formatting."
