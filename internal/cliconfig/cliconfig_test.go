package cliconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tehoro/ibfcore/internal/model"
)

func writeFixture(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ibfcore.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestLoad_ParsesLocationsAndDurations(t *testing.T) {
	path := writeFixture(t, `
web_root: /srv/web
forecast_days_ensemble: 6
wordiness: concise
primary_llm: gpt-4.1
locations:
  - name: Wellington
    translate_to: mi
    refresh_interval: 30m
    units:
      temperature: c
areas:
  - name: Greater Wellington
    members: [Wellington, Porirua]
    mode: area
    refresh_interval: 1h
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.WebRoot != "/srv/web" {
		t.Errorf("WebRoot = %q", cfg.WebRoot)
	}
	if cfg.ForecastDaysEnsemble != 6 {
		t.Errorf("ForecastDaysEnsemble = %d", cfg.ForecastDaysEnsemble)
	}
	if len(cfg.Locations) != 1 || cfg.Locations[0].Name != "Wellington" {
		t.Fatalf("unexpected locations: %+v", cfg.Locations)
	}
	if cfg.Locations[0].RefreshInterval == nil || *cfg.Locations[0].RefreshInterval != 30*time.Minute {
		t.Errorf("unexpected location refresh interval: %+v", cfg.Locations[0].RefreshInterval)
	}
	if len(cfg.Areas) != 1 || cfg.Areas[0].Mode != model.AreaModeArea {
		t.Fatalf("unexpected areas: %+v", cfg.Areas)
	}
}

func TestLoad_AreaModeDefaultsToArea(t *testing.T) {
	path := writeFixture(t, `
locations:
  - name: Wellington
areas:
  - name: Greater Wellington
    members: [Wellington]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Areas[0].Mode != model.AreaModeArea {
		t.Errorf("expected default area mode, got %q", cfg.Areas[0].Mode)
	}
}

func TestLoad_InvalidDurationIsRejected(t *testing.T) {
	path := writeFixture(t, `
locations:
  - name: Wellington
    refresh_interval: not-a-duration
`)

	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed refresh_interval")
	}
}

func TestLoad_MissingFileIsError(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoad_PropagatesValidationFailure(t *testing.T) {
	path := writeFixture(t, `
areas:
  - name: Greater Wellington
    members: [Wellington]
    mode: bogus
`)

	if _, err := Load(path); err == nil {
		t.Error("expected validation error for an invalid area mode")
	}
}
