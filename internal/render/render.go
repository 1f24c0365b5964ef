// Package render turns a forecast narrative into a static HTML page
// and scaffolds the surrounding site tree (spec.md §4.1 design note:
// "the HTML renderer is specified only at the level of its
// invariants"; §6 filesystem outputs).
package render

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Page is everything one rendered forecast page needs.
type Page struct {
	Destination         string // full path to the index.html to write
	DisplayName         string
	IssueTime           string
	ForecastText        string
	TranslatedText      string
	TranslationLanguage string
	ImpactContext       string
	MapLink             string
}

var languageNames = map[string]string{
	"fr-ca": "French (Canada)",
	"fr":    "French",
	"es":    "Spanish",
	"de":    "German",
}

// WritePage renders page to its Destination, creating parent
// directories as needed.
func WritePage(page Page) error {
	if err := os.MkdirAll(filepath.Dir(page.Destination), 0o755); err != nil {
		return fmt.Errorf("render: mkdir: %w", err)
	}

	var body strings.Builder
	fmt.Fprintf(&body, "<h1>Forecast for %s</h1>\n", escapeHTML(page.DisplayName))
	fmt.Fprintf(&body, "<h3>Issued: %s</h3>\n", escapeHTML(page.IssueTime))

	if page.MapLink != "" {
		fmt.Fprintf(&body, "<p class=\"map-link\"><a href=\"%s\" target=\"_blank\" rel=\"noopener\">Show map for %s</a></p>\n", page.MapLink, escapeHTML(page.DisplayName))
	}

	fmt.Fprintf(&body, "<div id=\"forecast-content\">%s</div>\n", markdownToHTML(page.ForecastText))

	if page.TranslatedText != "" && page.TranslationLanguage != "" {
		displayLang := languageNames[strings.ToLower(page.TranslationLanguage)]
		header := "Forecast in " + page.TranslationLanguage
		if displayLang != "" {
			header = fmt.Sprintf("Forecast in %s (%s)", displayLang, page.TranslationLanguage)
		}
		fmt.Fprintf(&body, "<h2>%s</h2>\n", escapeHTML(header))
		fmt.Fprintf(&body, "<div id=\"translated-forecast-content\">%s</div>\n", markdownToHTML(page.TranslatedText))
	}

	if page.ImpactContext != "" {
		fmt.Fprintf(&body, "%s\n", impactBlock(page.ImpactContext))
	}

	body.WriteString(`<p><a href="../index.html">Return to Menu</a></p>` + "\n")
	body.WriteString(footerNote)

	html := fmt.Sprintf(htmlDocument, escapeHTML(page.DisplayName), styleBlock, body.String(), scriptBlock)
	return os.WriteFile(page.Destination, []byte(html), 0o644)
}

func impactBlock(context string) string {
	return fmt.Sprintf(`<div id="ibf-context-wrapper">
  <div id="ibf-context-header" onclick="toggleIbfContext()">
    <span id="ibf-context-toggle">&#9654;</span>
    <span id="ibf-context-header-text">Impact-Based Forecast Context</span>
  </div>
  <div id="ibf-context-content">%s</div>
</div>`, markdownToHTML(context))
}

var (
	headingPattern    = regexp.MustCompile(`(?m)^### (.+)$`)
	boldPattern       = regexp.MustCompile(`\*\*(.+?)\*\*`)
	italicPattern     = regexp.MustCompile(`\*(.+?)\*`)
	bulletLinePattern = regexp.MustCompile(`^[*\-\x{2022}]\s+(.*)$`)
)

// markdownToHTML renders the small Markdown subset the LLM narrative
// uses (### headings, **bold**, *italic*, bullet lists) to HTML,
// preserving plain-text line breaks as <br>.
func markdownToHTML(text string) string {
	lines := strings.Split(text, "\n")
	var out []string
	inList := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if m := bulletLinePattern.FindStringSubmatch(trimmed); m != nil {
			if !inList {
				out = append(out, "<ul>")
				inList = true
			}
			out = append(out, "<li>"+strings.TrimSpace(m[1])+"</li>")
			continue
		}
		if inList {
			out = append(out, "</ul>")
			inList = false
		}
		out = append(out, line)
	}
	if inList {
		out = append(out, "</ul>")
	}

	joined := strings.Join(out, "\n")
	joined = headingPattern.ReplaceAllString(joined, "<h3>$1</h3>")
	joined = boldPattern.ReplaceAllString(joined, "<strong>$1</strong>")
	joined = italicPattern.ReplaceAllString(joined, "<em>$1</em>")
	joined = strings.ReplaceAll(joined, "\n", "<br>")

	joined = regexp.MustCompile(`<br>\s*(<h3>)`).ReplaceAllString(joined, "$1")
	joined = regexp.MustCompile(`(</h3>)\s*<br>`).ReplaceAllString(joined, "$1")
	joined = regexp.MustCompile(`<br>(\s*<ul>)`).ReplaceAllString(joined, "$1")
	joined = regexp.MustCompile(`(<ul>)<br>`).ReplaceAllString(joined, "$1")
	joined = regexp.MustCompile(`</li><br><li>`).ReplaceAllString(joined, "</li><li>")
	joined = regexp.MustCompile(`</li><br>(\s*</ul>)`).ReplaceAllString(joined, "</li>$1")
	joined = regexp.MustCompile(`(</ul>)<br>`).ReplaceAllString(joined, "$1")
	return strings.TrimSpace(joined)
}

func escapeHTML(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}

const footerNote = `<div class="footer-note">
  All forecasts are produced by an automated pipeline. Data courtesy of <a href="https://open-meteo.com/" target="_blank" rel="noopener">open-meteo.com</a>,
  using <a href="https://apps.ecmwf.int/datasets/licences/general/" target="_blank" rel="noopener">ECMWF ensemble open data</a>.
</div>`

const htmlDocument = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>Forecast for %s</title>
  %s
</head>
<body>
%s
%s
</body>
</html>
`

const styleBlock = `<style>
body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif; background: #f8f9fa; color: #212529; margin: 1em auto; padding: 0 1em; max-width: 800px; line-height: 1.6; }
h1 { color: #343a40; border-bottom: 2px solid #dee2e6; padding-bottom: 0.5em; margin-top: 1em; margin-bottom: 1em; font-size: 1.8em; }
h3 { color: #495057; font-size: 1.1em; font-weight: 600; margin-top: 0.8em; margin-bottom: 0.4em; }
#forecast-content, #translated-forecast-content { background: #ffffff; padding: 1.5em 2em; border: 1px solid #dee2e6; border-radius: 6px; white-space: pre-wrap; word-wrap: break-word; box-shadow: 0 2px 4px rgba(0,0,0,0.05); margin-bottom: 2em; }
#translated-forecast-content { margin-top: 1em; border-top: 3px solid #6c757d; padding-top: 1.5em; }
.map-link { margin: 0.2em 0 1.2em; }
#ibf-context-wrapper { margin-bottom: 2em; }
#ibf-context-header { background: #ffffff; padding: 1em 1.5em; border: 1px solid #dee2e6; border-radius: 6px 6px 0 0; cursor: pointer; user-select: none; }
#ibf-context-content { display: none; margin-top: 0; background: #ffffff; border-top: 1px solid #dee2e6; border-radius: 0 0 6px 6px; padding: 1.5em 2em; }
#ibf-context-content.expanded { display: block; }
h2 { color: #343a40; margin-top: 1.5em; margin-bottom: 0.8em; font-size: 1.4em; }
a { color: #0d6efd; text-decoration: none; font-weight: 500; }
.footer-note { margin-top: 2.5em; padding-top: 1em; border-top: 1px solid #dee2e6; font-size: 0.9em; color: #6c757d; text-align: center; }
</style>`

const scriptBlock = `<script>
function toggleIbfContext() {
  const content = document.getElementById('ibf-context-content');
  const toggle = document.getElementById('ibf-context-toggle');
  content.classList.toggle('expanded');
  toggle.classList.toggle('expanded');
}
</script>`
