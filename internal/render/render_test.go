package render

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestWritePage_ContainsDisplayNameAndIssuedHeader(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "test-city", "index.html")
	err := WritePage(Page{
		Destination:  dest,
		DisplayName:  "Test City",
		IssueTime:    "2026-07-30 12:00 NZST",
		ForecastText: "**Today**\nSunny and warm.",
	})
	if err != nil {
		t.Fatalf("WritePage: %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read rendered page: %v", err)
	}
	html := string(data)
	if !strings.Contains(html, "Forecast for Test City") {
		t.Errorf("missing title, got %q", html)
	}
	if !strings.Contains(html, "Issued: 2026-07-30 12:00 NZST") {
		t.Errorf("missing issued header, got %q", html)
	}
	if !strings.HasPrefix(strings.TrimSpace(html), "<!DOCTYPE html>") {
		t.Error("expected a full HTML document")
	}
}

func TestWritePage_RendersTranslationBlockWhenPresent(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "idx.html")
	err := WritePage(Page{
		Destination:         dest,
		DisplayName:         "Test City",
		IssueTime:           "now",
		ForecastText:        "Sunny.",
		TranslatedText:      "Ensoleille.",
		TranslationLanguage: "fr",
	})
	if err != nil {
		t.Fatalf("WritePage: %v", err)
	}
	data, _ := os.ReadFile(dest)
	if !strings.Contains(string(data), "translated-forecast-content") {
		t.Error("expected translated content block")
	}
	if !strings.Contains(string(data), "French") {
		t.Error("expected language name rendered")
	}
}

func TestMarkdownToHTML_ConvertsBulletsAndHeadings(t *testing.T) {
	got := markdownToHTML("### Heading\n* first\n* second\nplain line")
	if !strings.Contains(got, "<h3>Heading</h3>") {
		t.Errorf("missing heading conversion, got %q", got)
	}
	if !strings.Contains(got, "<li>first</li>") || !strings.Contains(got, "<li>second</li>") {
		t.Errorf("missing bullet conversion, got %q", got)
	}
}

func TestScaffold_WritesPlaceholdersMenuAndFavicon(t *testing.T) {
	dir := t.TempDir()
	locations := []Entry{{Slug: "test-city", Label: "Test City"}}
	areas := []Entry{{Slug: "sample-area", Label: "Sample Area"}}
	if err := Scaffold(dir, locations, areas); err != nil {
		t.Fatalf("Scaffold: %v", err)
	}

	placeholder := filepath.Join(dir, "test-city", "index.html")
	if !IsPlaceholder(placeholder) {
		t.Error("expected newly scaffolded page to be a placeholder")
	}

	menu, err := os.ReadFile(filepath.Join(dir, "index.html"))
	if err != nil {
		t.Fatalf("read menu: %v", err)
	}
	if !strings.Contains(string(menu), "test-city/index.html") || !strings.Contains(string(menu), "sample-area/index.html") {
		t.Errorf("expected menu to link both entities, got %q", string(menu))
	}

	if _, err := os.Stat(filepath.Join(dir, "favicon.svg")); err != nil {
		t.Error("expected favicon.svg to be written")
	}
}

func TestScaffold_DoesNotOverwriteExistingRealPage(t *testing.T) {
	dir := t.TempDir()
	locDir := filepath.Join(dir, "test-city")
	os.MkdirAll(locDir, 0o755)
	os.WriteFile(filepath.Join(locDir, "index.html"), []byte("<h1>Forecast for Test City</h1>real content"), 0o644)

	if err := Scaffold(dir, []Entry{{Slug: "test-city", Label: "Test City"}}, nil); err != nil {
		t.Fatalf("Scaffold: %v", err)
	}
	data, _ := os.ReadFile(filepath.Join(locDir, "index.html"))
	if strings.Contains(string(data), "Forecast will be updated here") {
		t.Error("expected real page to survive scaffolding")
	}
}

func TestShouldSkip_PlaceholderNeverSkipped(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.html")
	os.WriteFile(path, []byte("Forecast will be updated here."), 0o644)
	if ShouldSkip(path, time.Hour) {
		t.Error("placeholder page should never be skipped")
	}
}

func TestShouldSkip_FreshRealPageIsSkipped(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.html")
	os.WriteFile(path, []byte("<h1>Forecast for Test City</h1>real"), 0o644)
	if !ShouldSkip(path, time.Hour) {
		t.Error("expected a fresh real page to be skipped")
	}
}

func TestShouldSkip_MissingPageNotSkipped(t *testing.T) {
	if ShouldSkip(filepath.Join(t.TempDir(), "missing.html"), time.Hour) {
		t.Error("a missing page should never be skipped")
	}
}

func TestAreaHash_OrderIndependent(t *testing.T) {
	a := AreaHash("Sample Area", []string{"Test City", "Second City"})
	b := AreaHash("Sample Area", []string{"Second City", "Test City"})
	if a != b {
		t.Errorf("expected hash to be independent of member order, got %q vs %q", a, b)
	}
}

func TestWriteAndReadMapsHashState_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	state := MapsHashState{ConfigHash: "abc123", Areas: map[string]string{"sample-area": "deadbeef"}}
	if err := WriteMapsHashState(dir, state); err != nil {
		t.Fatalf("WriteMapsHashState: %v", err)
	}
	got, err := ReadMapsHashState(dir)
	if err != nil {
		t.Fatalf("ReadMapsHashState: %v", err)
	}
	if got.ConfigHash != "abc123" || got.Areas["sample-area"] != "deadbeef" {
		t.Errorf("got %+v", got)
	}
}
