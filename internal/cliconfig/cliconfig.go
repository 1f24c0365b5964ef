// Package cliconfig loads a ForecastConfig from a YAML file for the
// cmd/ibfcore demo entrypoint. It is deliberately thin: the core
// library consumes model.ForecastConfig by value and never imports
// this package (spec.md §1: configuration loading is an external
// concern).
package cliconfig

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tehoro/ibfcore/internal/model"
)

type fileLocation struct {
	Name            string    `yaml:"name"`
	TranslateTo     string    `yaml:"translate_to"`
	ExtraContext    string    `yaml:"extra_context"`
	Model           string    `yaml:"model"`
	SnowLevel       *bool     `yaml:"snow_level"`
	RefreshInterval string    `yaml:"refresh_interval"`
	Altitude        *float64  `yaml:"altitude"`
	Units           fileUnits `yaml:"units"`
}

type fileArea struct {
	Name            string    `yaml:"name"`
	Members         []string  `yaml:"members"`
	Mode            string    `yaml:"mode"`
	TranslateTo     string    `yaml:"translate_to"`
	ExtraContext    string    `yaml:"extra_context"`
	Model           string    `yaml:"model"`
	SnowLevel       *bool     `yaml:"snow_level"`
	RefreshInterval string    `yaml:"refresh_interval"`
	Units           fileUnits `yaml:"units"`
}

type fileUnits struct {
	Temperature string `yaml:"temperature"`
	Precip      string `yaml:"precip"`
	Wind        string `yaml:"wind"`
	Snow        string `yaml:"snow"`
}

func (u fileUnits) toModel() model.Units {
	return model.Units{Temperature: u.Temperature, Precip: u.Precip, Wind: u.Wind, Snow: u.Snow}
}

type fileConfig struct {
	Locations []fileLocation `yaml:"locations"`
	Areas     []fileArea     `yaml:"areas"`

	WebRoot string `yaml:"web_root"`

	ForecastDaysEnsemble      int `yaml:"forecast_days_ensemble"`
	ForecastDaysDeterministic int `yaml:"forecast_days_deterministic"`

	Wordiness string `yaml:"wordiness"`

	ReasoningEnabled bool   `yaml:"reasoning_enabled"`
	ReasoningLevel   string `yaml:"reasoning_level"`

	ImpactContextEnabled bool `yaml:"impact_context_enabled"`

	ThinEnsembleTo int `yaml:"thin_ensemble_to"`

	PrimaryLLM     string `yaml:"primary_llm"`
	ContextLLM     string `yaml:"context_llm"`
	TranslationLLM string `yaml:"translation_llm"`

	RefreshInterval string `yaml:"refresh_interval"`
	SnowLevel       bool   `yaml:"snow_level"`
	Model           string `yaml:"model"`

	Units fileUnits `yaml:"units"`
}

// Load reads path as YAML and returns the ForecastConfig it describes.
// Durations are parsed with time.ParseDuration ("24h", "30m"); an empty
// string leaves the corresponding field at its zero value.
func Load(path string) (model.ForecastConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.ForecastConfig{}, fmt.Errorf("cliconfig: read %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return model.ForecastConfig{}, fmt.Errorf("cliconfig: parse %s: %w", path, err)
	}

	refreshInterval, err := parseDuration(fc.RefreshInterval)
	if err != nil {
		return model.ForecastConfig{}, fmt.Errorf("cliconfig: refresh_interval: %w", err)
	}

	cfg := model.ForecastConfig{
		WebRoot:                   fc.WebRoot,
		ForecastDaysEnsemble:      fc.ForecastDaysEnsemble,
		ForecastDaysDeterministic: fc.ForecastDaysDeterministic,
		Wordiness:                 model.Wordiness(fc.Wordiness),
		ReasoningEnabled:          fc.ReasoningEnabled,
		ReasoningLevel:            model.ReasoningLevel(fc.ReasoningLevel),
		ImpactContextEnabled:      fc.ImpactContextEnabled,
		ThinEnsembleTo:            fc.ThinEnsembleTo,
		PrimaryLLM:                fc.PrimaryLLM,
		ContextLLM:                fc.ContextLLM,
		TranslationLLM:            fc.TranslationLLM,
		RefreshInterval:           refreshInterval,
		SnowLevel:                 fc.SnowLevel,
		Model:                     fc.Model,
		Units:                     fc.Units.toModel(),
	}

	for _, l := range fc.Locations {
		interval, err := parseDurationPtr(l.RefreshInterval)
		if err != nil {
			return model.ForecastConfig{}, fmt.Errorf("cliconfig: location %s refresh_interval: %w", l.Name, err)
		}
		cfg.Locations = append(cfg.Locations, model.Location{
			Name:            l.Name,
			TranslateTo:     l.TranslateTo,
			ExtraContext:    l.ExtraContext,
			Units:           l.Units.toModel(),
			Model:           l.Model,
			SnowLevel:       l.SnowLevel,
			RefreshInterval: interval,
			Altitude:        l.Altitude,
		})
	}

	for _, a := range fc.Areas {
		interval, err := parseDurationPtr(a.RefreshInterval)
		if err != nil {
			return model.ForecastConfig{}, fmt.Errorf("cliconfig: area %s refresh_interval: %w", a.Name, err)
		}
		mode := model.AreaMode(a.Mode)
		if mode == "" {
			mode = model.AreaModeArea
		}
		cfg.Areas = append(cfg.Areas, model.Area{
			Name:            a.Name,
			Members:         a.Members,
			Mode:            mode,
			TranslateTo:     a.TranslateTo,
			ExtraContext:    a.ExtraContext,
			Units:           a.Units.toModel(),
			Model:           a.Model,
			SnowLevel:       a.SnowLevel,
			RefreshInterval: interval,
		})
	}

	if err := cfg.Validate(); err != nil {
		return model.ForecastConfig{}, err
	}
	return cfg, nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

func parseDurationPtr(s string) (*time.Duration, error) {
	if s == "" {
		return nil, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
