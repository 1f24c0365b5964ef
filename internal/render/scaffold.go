package render

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Entry is one menu link: a (slug, label) pair under a section
// ("Locations" or "Areas").
type Entry struct {
	Slug  string
	Label string
}

// placeholderMarker is the literal string the placeholder template
// carries; ShouldSkip and IsPlaceholder use it to recognize a page that
// has never been through a real render.
const placeholderMarker = "Forecast will be updated here."

// Scaffold ensures webRoot, every entity subdirectory, a placeholder
// index.html for entities that don't already have a real rendered
// page, favicon.svg, and the top-level menu index.html all exist.
func Scaffold(webRoot string, locations, areas []Entry) error {
	if err := os.MkdirAll(webRoot, 0o755); err != nil {
		return fmt.Errorf("render: mkdir web root: %w", err)
	}
	if err := writeFaviconIfAbsent(webRoot); err != nil {
		return err
	}
	for _, e := range locations {
		if err := writePlaceholderIfAbsent(webRoot, e); err != nil {
			return err
		}
	}
	for _, e := range areas {
		if err := writePlaceholderIfAbsent(webRoot, e); err != nil {
			return err
		}
	}
	return writeMenu(webRoot, locations, areas)
}

func writePlaceholderIfAbsent(webRoot string, e Entry) error {
	dir := filepath.Join(webRoot, e.Slug)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("render: mkdir %s: %w", dir, err)
	}
	path := filepath.Join(dir, "index.html")
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	html := fmt.Sprintf(placeholderTemplate, escapeHTML(e.Label), escapeHTML(e.Label))
	return os.WriteFile(path, []byte(html), 0o644)
}

func writeFaviconIfAbsent(webRoot string) error {
	path := filepath.Join(webRoot, "favicon.svg")
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return os.WriteFile(path, []byte(faviconSVG), 0o644)
}

func writeMenu(webRoot string, locations, areas []Entry) error {
	locSection := menuSection("Locations", locations)
	areaSection := menuSection("Areas", areas)
	if locSection == "" {
		locSection = "<p>No individual locations configured.</p>"
	}
	if areaSection == "" {
		areaSection = "<p>No areas configured.</p>"
	}
	html := fmt.Sprintf(menuTemplate, locSection, areaSection)
	return os.WriteFile(filepath.Join(webRoot, "index.html"), []byte(html), 0o644)
}

func menuSection(title string, entries []Entry) string {
	if len(entries) == 0 {
		return ""
	}
	var items strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&items, "    <li><a href=\"%s/index.html\">%s</a></li>\n", e.Slug, escapeHTML(e.Label))
	}
	return fmt.Sprintf("<h2>%s</h2>\n<ul>\n%s</ul>", title, items.String())
}

// IsPlaceholder reports whether the rendered page at path is still the
// scaffolder's placeholder (never replaced by a real forecast render).
func IsPlaceholder(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return strings.Contains(string(data), placeholderMarker)
}

// ShouldSkip reports whether the pipeline executor may skip rendering
// an entity: a real (non-placeholder) page already exists and is
// younger than minInterval (spec.md §4.8 "refresh interval" policy).
func ShouldSkip(path string, minInterval time.Duration) bool {
	if minInterval <= 0 {
		return false
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if IsPlaceholder(path) {
		return false
	}
	return time.Since(info.ModTime()) < minInterval
}

const placeholderTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>Forecast for %s</title>
  <style>
    body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif;
           background: #f7f7f7; color: #333; margin: 0 auto; padding: 20px; max-width: 800px; }
    h1 { color: #2F4F4F; margin-top: 0; }
    #forecast-content { background: #ffffff; padding: 20px; border: 1px solid #ccc; border-radius: 5px;
                        white-space: pre-wrap; word-wrap: break-word; line-height: 1.4em; }
    a { color: #0066cc; text-decoration: none; font-weight: bold; }
  </style>
</head>
<body>
  <h1>Forecast for %s</h1>
  <div id="forecast-content">
    <p>Forecast will be updated here.</p>
  </div>
  <p><a href="../index.html">Return to Menu</a></p>
</body>
</html>
`

const menuTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>Weather Forecast Menu</title>
  <style>
    body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif;
           background: #f7f7f7; color: #333; margin: 0 auto; padding: 20px; max-width: 800px; }
    h1, h2 { color: #2F4F4F; margin-top: 1.5em; margin-bottom: 0.5em; }
    h1 { margin-top: 0; }
    ul { list-style-type: none; padding: 0; }
    li { margin: 10px 0; font-size: 18px; }
    a { color: #0066cc; text-decoration: none; font-weight: bold; }
    hr { margin: 2em 0; border: 0; border-top: 1px solid #ccc; }
  </style>
</head>
<body>
  <h1>Weather Forecast Menu</h1>
  %s
  %s
  <hr>
</body>
</html>
`

const faviconSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 24 24"><circle cx="12" cy="12" r="10" fill="#0d6efd"/></svg>`
