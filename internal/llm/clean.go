package llm

import (
	"regexp"
	"strings"
)

var (
	thinkBlockPattern   = regexp.MustCompile(`(?is)<think>.*?</think>`)
	boldHeaderPattern   = regexp.MustCompile(`\*\*[^*\n]+\*\*`)
	degreeSpacingBefore = regexp.MustCompile(`\s+°`)
	degreeSpacingAfter  = regexp.MustCompile(`°\s+`)
)

// analyticLinePrefixes are lines the model sometimes emits while
// "thinking out loud" instead of answering; they read as leftover
// reasoning, not forecast content, so they are dropped outright.
var analyticLinePrefixes = []string{
	"let's",
	"the instruction says",
}

// conversationalTailPrefixes start lines that read as chat filler
// rather than forecast content; such lines are dropped wherever they
// appear (spec.md §4.6/§4.7).
var conversationalTailPrefixes = []string{
	"if you'd like",
	"would you like",
	"let me know",
	"each of these items",
}

var urlPattern = regexp.MustCompile(`https?://\S+`)
var markdownLinkPattern = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)

// CleanOutput applies the provider-agnostic post-processing rules
// from spec.md §4.6/§4.7 to raw LLM output.
func CleanOutput(text string) string {
	text = thinkBlockPattern.ReplaceAllString(text, "")
	text = trimBeforeFirstBoldHeader(text)
	text = stripURLsAndLinks(text)
	text = dropAnalyticAndTailLines(text)
	text = normalizeDegreeSpacing(text)
	return strings.TrimSpace(collapseBlankLines(text))
}

// trimBeforeFirstBoldHeader drops any prologue the model wrote before
// its first "**bold**" section header, if one exists.
func trimBeforeFirstBoldHeader(text string) string {
	loc := boldHeaderPattern.FindStringIndex(text)
	if loc == nil {
		return text
	}
	return text[loc[0]:]
}

func stripURLsAndLinks(text string) string {
	text = markdownLinkPattern.ReplaceAllString(text, "$1")
	text = urlPattern.ReplaceAllString(text, "")
	return text
}

func dropAnalyticAndTailLines(text string) string {
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		trimmed := strings.ToLower(strings.TrimSpace(line))
		if hasAnyPrefixFold(trimmed, analyticLinePrefixes) {
			continue
		}
		if hasAnyPrefixFold(trimmed, conversationalTailPrefixes) {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func hasAnyPrefixFold(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func normalizeDegreeSpacing(text string) string {
	text = degreeSpacingBefore.ReplaceAllString(text, "°")
	text = degreeSpacingAfter.ReplaceAllString(text, "°")
	return text
}

var blankLinesPattern = regexp.MustCompile(`\n{3,}`)

func collapseBlankLines(text string) string {
	return blankLinesPattern.ReplaceAllString(text, "\n\n")
}
