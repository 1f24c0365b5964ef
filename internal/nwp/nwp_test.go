package nwp

import (
	"strings"
	"testing"

	"github.com/tehoro/ibfcore/internal/model"
)

func TestFieldSet_DeterministicIncludesEnrichedFields(t *testing.T) {
	c := &Client{}
	req := Request{Spec: model.ModelSpec{Kind: model.KindDeterministic, ModelID: "ecmwf_ifs"}}
	fields := c.fieldSet(req)

	if !contains(fields, "precipitation_probability") || !contains(fields, "freezing_level_height") {
		t.Errorf("deterministic field set missing enriched fields: %v", fields)
	}
}

func TestFieldSet_EnsembleOmitsEnrichedFields(t *testing.T) {
	c := &Client{}
	req := Request{Spec: model.ModelSpec{Kind: model.KindEnsemble, ModelID: "ecmwf_ifs025", MemberCount: 51}}
	fields := c.fieldSet(req)

	if contains(fields, "precipitation_probability") || contains(fields, "freezing_level_height") {
		t.Errorf("ensemble field set should omit enriched fields: %v", fields)
	}
}

func TestFieldSet_PressureLevelsOverridesSurfaceFields(t *testing.T) {
	c := &Client{}
	req := Request{
		Spec:           model.ModelSpec{Kind: model.KindDeterministic, ModelID: "ecmwf_ifs"},
		PressureLevels: []int{850, 700},
	}
	fields := c.fieldSet(req)

	for _, f := range fields {
		if !strings.HasSuffix(f, "hPa") {
			t.Errorf("pressure-level field set should be all hPa fields, got %q", f)
		}
	}
	if !contains(fields, "temperature_850hPa") || !contains(fields, "geopotential_height_700hPa") {
		t.Errorf("missing expected pressure-level fields: %v", fields)
	}
}

func TestFingerprint_DiffersByFieldSet(t *testing.T) {
	req := Request{
		Latitude: 1.0, Longitude: 2.0, ForecastDays: 4,
		Spec: model.ModelSpec{Kind: model.KindDeterministic, ModelID: "ecmwf_ifs"},
	}
	withEnriched := append(append([]string(nil), baseHourlyFields...), enrichedExtraFields...)
	k1 := fingerprint(req, withEnriched)
	k2 := fingerprint(req, baseHourlyFields)

	if k1 == k2 {
		t.Error("cache keys should differ when the enriched field set is dropped (spec S6)")
	}
}

func TestFingerprint_RoundsCoordinatesToTwoDecimalPlaces(t *testing.T) {
	req1 := Request{Latitude: 1.001, Longitude: 2.004, ForecastDays: 4,
		Spec: model.ModelSpec{Kind: model.KindDeterministic, ModelID: "ecmwf_ifs"}}
	req2 := Request{Latitude: 1.002, Longitude: 2.001, ForecastDays: 4,
		Spec: model.ModelSpec{Kind: model.KindDeterministic, ModelID: "ecmwf_ifs"}}

	if fingerprint(req1, baseHourlyFields) != fingerprint(req2, baseHourlyFields) {
		t.Error("coordinates within the same 2dp rounding should produce the same fingerprint")
	}
}

func TestEnrichedSubset(t *testing.T) {
	if !enrichedSubset([]string{"temperature_2m", "freezing_level_height"}) {
		t.Error("should detect freezing_level_height as enriched")
	}
	if enrichedSubset(baseHourlyFields) {
		t.Error("base field set should not be flagged as enriched")
	}
}

func TestPressureLevelsUnsupported_TracksPerModel(t *testing.T) {
	c := New(nil, nil)
	if c.PressureLevelsUnsupported("ecmwf_ifs") {
		t.Fatal("should start unmarked")
	}
	c.MarkPressureLevelsUnsupported("ecmwf_ifs")
	if !c.PressureLevelsUnsupported("ecmwf_ifs") {
		t.Error("should be marked unsupported after MarkPressureLevelsUnsupported")
	}
	if c.PressureLevelsUnsupported("gfs_seamless") {
		t.Error("marking one model should not affect another")
	}
}

func contains(ss []string, target string) bool {
	for _, s := range ss {
		if s == target {
			return true
		}
	}
	return false
}
