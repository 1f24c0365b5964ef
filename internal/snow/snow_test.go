package snow

import (
	"math"
	"testing"
)

func TestShouldCheck(t *testing.T) {
	tests := []struct {
		name        string
		precip      float64
		weatherCode int
		tempC       float64
		want        bool
	}{
		{"normal rain conditions", 2.0, 61, 10.0, true},
		{"no precipitation", 0.0, 61, 10.0, false},
		{"already a snow code", 2.0, 71, 10.0, false},
		{"too warm", 2.0, 61, 20.0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldCheck(tt.precip, tt.weatherCode, tt.tempC); got != tt.want {
				t.Errorf("ShouldCheck(%v,%v,%v) = %v, want %v", tt.precip, tt.weatherCode, tt.tempC, got, tt.want)
			}
		})
	}
}

func TestRelativeHumidity_SaturatedWhenEqualToDewpoint(t *testing.T) {
	rh := RelativeHumidity(10.0, 10.0)
	if math.Abs(rh-100.0) > 0.01 {
		t.Errorf("RH at T=Td should be ~100%%, got %v", rh)
	}
}

func TestRelativeHumidity_Bounded(t *testing.T) {
	rh := RelativeHumidity(30.0, -40.0)
	if rh < 0 || rh > 100 {
		t.Errorf("RH out of bounds: %v", rh)
	}
}

// Property 6 (spec.md §8): for fixed T, wet-bulb is monotonically
// non-decreasing in RH.
func TestWetBulb_MonotonicInRH(t *testing.T) {
	const tempC = 15.0
	const pressurePa = 100000.0
	prev := math.Inf(-1)
	for rh := 10.0; rh <= 100.0; rh += 10.0 {
		tw := WetBulb(tempC, rh, pressurePa)
		if tw < prev-1e-6 {
			t.Errorf("WetBulb not monotonic at RH=%v: got %v after %v", rh, tw, prev)
		}
		prev = tw
	}
}

func TestWetBulb_EqualsDryBulbAtSaturation(t *testing.T) {
	tw := WetBulb(12.0, 100.0, 101325.0)
	if math.Abs(tw-12.0) > 1e-6 {
		t.Errorf("WetBulb at RH=100%% should equal dry-bulb, got %v", tw)
	}
}

func TestWetBulb_BelowDryBulbWhenUnsaturated(t *testing.T) {
	tw := WetBulb(20.0, 50.0, 101325.0)
	if tw >= 20.0 {
		t.Errorf("WetBulb should be below dry-bulb temperature when unsaturated, got %v", tw)
	}
}

func TestPrecipAdjustment(t *testing.T) {
	tests := []struct {
		rate float64
		want float64
	}{
		{0, 0}, {4.9, 0}, {5, 100}, {9.9, 100}, {10, 200}, {19.9, 200}, {20, 300}, {50, 300},
	}
	for _, tt := range tests {
		if got := PrecipAdjustment(tt.rate); got != tt.want {
			t.Errorf("PrecipAdjustment(%v) = %v, want %v", tt.rate, got, tt.want)
		}
	}
}

func TestEstimateFromProfile_ReturnsStationWhenSurfaceBelowFreezing(t *testing.T) {
	profile := Profile{
		PressuresHPa: []float64{1000, 925, 850},
		TempsC:       []float64{-2, -4, -6},
		RHsPct:       []float64{90, 90, 90},
		GeopHeightsM: []float64{100, 800, 1500},
	}
	level, ok := EstimateFromProfile(100, 101325, -2, -3, profile, 2.0, false)
	if !ok {
		t.Fatal("expected a valid estimate")
	}
	if level != 100 {
		t.Errorf("surface wet-bulb below freezing should pin snow level to station elevation, got %v", level)
	}
}

func TestEstimateFromProfile_InterpolatesCrossing(t *testing.T) {
	profile := Profile{
		PressuresHPa: []float64{1000, 900},
		TempsC:       []float64{10, -5},
		RHsPct:       []float64{70, 70},
		GeopHeightsM: []float64{0, 1000},
	}
	level, ok := EstimateFromProfile(0, 101325, 15, 10, profile, 0, false)
	if !ok {
		t.Fatal("expected a valid estimate")
	}
	if level <= 0 || level >= 1000 {
		t.Errorf("interpolated crossing should lie within the profile, got %v", level)
	}
}

func TestEstimateFromProfile_InvalidProfile(t *testing.T) {
	_, ok := EstimateFromProfile(0, 101325, 10, 5, Profile{}, 0, false)
	if ok {
		t.Error("expected failure for an empty profile")
	}
}

func TestEstimateFromFreezingLevel_DefaultLapseRateWhenAltitudesClose(t *testing.T) {
	level := EstimateFromFreezingLevel(1000, 90000, 5, 3, 1005, 0, false)
	if math.IsNaN(level) {
		t.Fatal("unexpected NaN")
	}
}

func TestEstimateFromFreezingLevel_CappedBelowFreezingLevel(t *testing.T) {
	level := EstimateFromFreezingLevel(0, 101325, 20, 15, 500, 0, false)
	if level > 500-100 {
		t.Errorf("snow level %v should be capped at freezing_level - 100m", level)
	}
}

func TestEstimateFromFreezingLevel_PrecipAdjustmentLowersLevel(t *testing.T) {
	base := EstimateFromFreezingLevel(0, 101325, 20, 15, 2000, 25, false)
	adjusted := EstimateFromFreezingLevel(0, 101325, 20, 15, 2000, 25, true)
	if adjusted >= base {
		t.Errorf("adjusted level %v should be lower than unadjusted %v for heavy precipitation", adjusted, base)
	}
}

func TestFilter_RejectsOutOfRange(t *testing.T) {
	if _, ok := Filter(-50, 100, 0, 0, nil); ok {
		t.Error("below station elevation should be rejected")
	}
	if _, ok := Filter(100+3001, 100, 0, 0, nil); ok {
		t.Error("more than 3000m above station should be rejected")
	}
	if _, ok := Filter(1500, 100, 0, 0, nil); !ok {
		t.Error("within range should be accepted")
	}
}

type fakeTerrain struct {
	maxM float64
}

func (f fakeTerrain) MaxNearbyTerrainM(lat, lon float64) (float64, bool) { return f.maxM, true }

func TestFilter_RejectsAboveTerrain(t *testing.T) {
	terrain := fakeTerrain{maxM: 1000}
	if _, ok := Filter(800, 100, 0, 0, terrain); ok {
		t.Error("snow level above (terrain - 300m) should be rejected")
	}
	if _, ok := Filter(600, 100, 0, 0, terrain); !ok {
		t.Error("snow level comfortably below terrain threshold should be accepted")
	}
}

func TestFilter_AcceptsHighTerrainClearance(t *testing.T) {
	// 1700m is 1600m above the 100m station, inside the 3000m
	// above-station cap, and exactly 300m below the 2000m terrain max,
	// which the terrain test (strictly above terrain-300m) still
	// accepts, so this estimate must survive.
	terrain := fakeTerrain{maxM: 2000}
	if _, ok := Filter(1700, 100, 0, 0, terrain); !ok {
		t.Error("snow level below (terrain - 300m) should be accepted even far above the station")
	}
}

func TestNoTerrain_NeverRejects(t *testing.T) {
	level, ok := Filter(2900, 100, 0, 0, NoTerrain{})
	if !ok || level != 2900 {
		t.Errorf("NoTerrain should never reject based on terrain, got (%v, %v)", level, ok)
	}
}

func TestRound_Metric(t *testing.T) {
	if got := Round(1234, "metric"); got != 1200 {
		t.Errorf("Round(1234, metric) = %v, want 1200", got)
	}
}

func TestRound_Imperial(t *testing.T) {
	got := Round(1000, "us") // 1000m ~= 3280.84ft -> rounds to 3500ft
	if got != 3500 {
		t.Errorf("Round(1000, us) = %v, want 3500", got)
	}
}
