package dataset

import (
	"testing"
	"time"

	"github.com/tehoro/ibfcore/internal/model"
)

func sampleRaw(times []any, temps []any) model.RawForecastResponse {
	return model.RawForecastResponse{
		Hourly: map[string][]any{
			"time":               times,
			"temperature_2m":     temps,
			"precipitation":      fillFloat(len(times), 0.0),
			"snowfall":           fillFloat(len(times), 0.0),
			"weather_code":       fillFloat(len(times), 1.0),
			"cloud_cover":        fillFloat(len(times), 50.0),
			"wind_speed_10m":     fillFloat(len(times), 10.0),
			"wind_direction_10m": fillFloat(len(times), 180.0),
			"wind_gusts_10m":     fillFloat(len(times), 15.0),
		},
		HourlyUnits: map[string]string{
			"temperature_2m": "°C",
			"precipitation":  "mm",
		},
	}
}

func fillFloat(n int, v float64) []any {
	out := make([]any, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestTransform_FiltersPastAndFarFutureHours(t *testing.T) {
	now := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	times := []any{
		"2026-01-10T08:00", // before now, excluded
		"2026-01-10T09:00", // now, included
		"2026-01-10T15:00", // within 24h, included
		"2026-01-11T10:00", // beyond 24h, excluded
	}
	raw := sampleRaw(times, []any{5.0, 5.0, 5.0, 5.0})

	out, err := Transform(Inputs{Raw: raw, Timezone: "UTC", Now: now, Kind: model.KindDeterministic})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}

	var hourCount int
	for _, day := range out.Days {
		hourCount += len(day.Hours)
	}
	if hourCount != 2 {
		t.Fatalf("got %d retained hours, want 2", hourCount)
	}
}

func TestTransform_DetectsEnsembleMembers(t *testing.T) {
	now := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	times := []any{"2026-01-10T09:00"}
	raw := model.RawForecastResponse{
		Hourly: map[string][]any{
			"time":                        times,
			"temperature_2m":              []any{1.0},
			"temperature_2m_member01":     []any{2.0},
			"precipitation":               []any{0.0},
			"precipitation_member01":      []any{0.0},
			"snowfall":                    []any{0.0},
			"snowfall_member01":           []any{0.0},
			"weather_code":                []any{1.0},
			"weather_code_member01":       []any{1.0},
			"cloud_cover":                 []any{10.0},
			"cloud_cover_member01":        []any{10.0},
			"wind_speed_10m":              []any{5.0},
			"wind_speed_10m_member01":     []any{5.0},
			"wind_direction_10m":          []any{90.0},
			"wind_direction_10m_member01": []any{90.0},
		},
		HourlyUnits: map[string]string{
			"temperature_2m_member01": "°C",
		},
	}

	out, err := Transform(Inputs{Raw: raw, Timezone: "UTC", Now: now, Kind: model.KindEnsemble})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if len(out.MemberIDs) != 2 {
		t.Fatalf("got %d members, want 2", len(out.MemberIDs))
	}
	if out.MemberIDs[0] != "member00" {
		t.Errorf("member00 should sort first, got %v", out.MemberIDs)
	}
}

func TestTransform_OmitsIncompleteMemberRecords(t *testing.T) {
	now := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	times := []any{"2026-01-10T09:00"}
	raw := model.RawForecastResponse{
		Hourly: map[string][]any{
			"time":               times,
			"temperature_2m":     []any{1.0},
			"precipitation":      []any{0.0},
			"snowfall":           []any{0.0},
			"weather_code":       []any{1.0},
			"cloud_cover":        []any{10.0},
			"wind_speed_10m":     []any{5.0},
			"wind_direction_10m": []any{nil}, // missing -> record omitted
		},
		HourlyUnits: map[string]string{},
	}

	out, err := Transform(Inputs{Raw: raw, Timezone: "UTC", Now: now, Kind: model.KindDeterministic})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	for _, day := range out.Days {
		for _, hour := range day.Hours {
			if len(hour.Members) != 0 {
				t.Errorf("expected no members for an hour with a missing required field, got %v", hour.Members)
			}
		}
	}
}

func TestDetectMembers_DeterministicHasOnlyMember00(t *testing.T) {
	members := detectMembers(map[string]string{"temperature_2m": "°C"})
	if len(members) != 1 || members[0] != "member00" {
		t.Errorf("got %v, want [member00]", members)
	}
}

func TestDetectMembers_EnsembleSortsNumerically(t *testing.T) {
	members := detectMembers(map[string]string{
		"temperature_2m_member01": "°C",
		"temperature_2m_member10": "°C",
	})
	want := []string{"member00", "member01", "member10"}
	if len(members) != len(want) {
		t.Fatalf("got %v, want %v", members, want)
	}
	for i := range want {
		if members[i] != want[i] {
			t.Errorf("got %v, want %v", members, want)
		}
	}
}

func TestCompassWord(t *testing.T) {
	cases := map[float64]string{
		0:   "N",
		45:  "NE",
		90:  "E",
		180: "S",
		270: "W",
		359: "N",
	}
	for deg, want := range cases {
		if got := CompassWord(deg); got != want {
			t.Errorf("CompassWord(%v) = %q, want %q", deg, got, want)
		}
	}
}

func TestWeatherWord_UnknownCodeDecodesToUnknown(t *testing.T) {
	if got := WeatherWord(9999); got != "unknown" {
		t.Errorf("got %q, want %q", got, "unknown")
	}
}

// Property 7 (spec.md §8): day-label branch selection uses now's hour,
// not the first retained hour's.
func TestDayLabel_SameDayRestOfToday(t *testing.T) {
	now := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	label := DayLabel(now, now)
	if label != "Rest of today, Friday" {
		t.Errorf("got %q", label)
	}
}

func TestDayLabel_Tomorrow(t *testing.T) {
	now := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	tomorrow := now.AddDate(0, 0, 1)
	if got := DayLabel(tomorrow, now); got != "Tomorrow, Saturday" {
		t.Errorf("got %q", got)
	}
}

func TestDayLabel_LaterDayIsJustWeekday(t *testing.T) {
	now := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	later := now.AddDate(0, 0, 3)
	if got := DayLabel(later, now); got != later.Weekday().String() {
		t.Errorf("got %q, want %q", got, later.Weekday().String())
	}
}
