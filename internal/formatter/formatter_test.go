package formatter

import (
	"strings"
	"testing"
)

// S4 (spec.md §8): ensemble with per-member daily rainfall totals
// [0.2, 0.3, 0.4, 0.8, 0.9] mm produces "Likely precipitation 0.2 mm to
// 0.9 mm" (20/80 percentile linear interpolation) and "Estimated
// probability of precipitation: 100%" (all members positive).
func TestLikelyAmountLine_S4Scenario(t *testing.T) {
	values := []float64{0.2, 0.3, 0.4, 0.8, 0.9}
	line := likelyAmountLine("precipitation", values, "mm")

	if !strings.Contains(line, "100%") {
		t.Errorf("expected 100%% probability for a unanimous sample, got: %s", line)
	}
	if !strings.Contains(line, "0.2 mm to 0.9 mm") {
		t.Errorf("expected likely range 0.2 mm to 0.9 mm, got: %s", line)
	}
}

// Property 4 (spec.md §8): Jeffreys probability always lies in [0,100]
// and is a multiple of 5.
func TestJeffreysProbability_BoundsAndMultipleOfFive(t *testing.T) {
	for total := 1; total <= 20; total++ {
		for occ := 0; occ <= total; occ++ {
			p := JeffreysProbability(occ, total)
			if p < 0 || p > 100 {
				t.Fatalf("JeffreysProbability(%d,%d) = %d, out of bounds", occ, total, p)
			}
			if p%5 != 0 {
				t.Fatalf("JeffreysProbability(%d,%d) = %d, not a multiple of 5", occ, total, p)
			}
		}
	}
}

func TestJeffreysProbability_PartialAgreementUsesFormula(t *testing.T) {
	// 3 of 5 members: (3+0.5)/6 = 0.5833 * 20 = 11.67 -> round 12 -> 60%.
	if got := JeffreysProbability(3, 5); got != 60 {
		t.Errorf("got %d, want 60", got)
	}
}

func TestHourWord(t *testing.T) {
	cases := map[int]string{0: "midnight", 12: "noon", 9: "9am", 15: "3pm", 23: "11pm"}
	for hour, want := range cases {
		if got := hourWord(hour); got != want {
			t.Errorf("hourWord(%d) = %q, want %q", hour, got, want)
		}
	}
}

func TestRainfallTotalText_UnitSpecificRounding(t *testing.T) {
	cases := []struct {
		mm   float64
		want string
	}{
		{0.1, ""},
		{0.25, "0.5 mm"},
		{0.9, "0.5 mm"},
		{1.0, "1 mm"},
		{2.6, "3 mm"},
	}
	for _, c := range cases {
		if got := rainfallTotalText(c.mm, "mm"); got != c.want {
			t.Errorf("rainfallTotalText(%v) = %q, want %q", c.mm, got, c.want)
		}
	}
}

func TestSnowfallTotalText_LessThanOneCM(t *testing.T) {
	if got := snowfallTotalText(0.5); got != labelLessThanOneCM {
		t.Errorf("got %q, want %q", got, labelLessThanOneCM)
	}
	if got := snowfallTotalText(5); got != "5 cm" {
		t.Errorf("got %q, want %q", got, "5 cm")
	}
	if got := snowfallTotalText(0); got != "" {
		t.Errorf("expected empty string for zero snowfall, got %q", got)
	}
}

func TestWindText_CalmAndGust(t *testing.T) {
	if got := windText("N", 0, 0, "kph"); got != windCalm {
		t.Errorf("got %q, want %q", got, windCalm)
	}
	if got := windText("NE", 10, 25, "kph"); got != "NE 10 km/h gust 25 km/h" {
		t.Errorf("got %q", got)
	}
	if got := windText("NE", 10, 15, "kph"); got != "NE 10 km/h" {
		t.Errorf("gust under threshold should be omitted, got %q", got)
	}
}

func TestEstimatePercentiles_TooFewValues(t *testing.T) {
	if _, _, ok := estimatePercentiles([]float64{1.0}, 0.2); ok {
		t.Error("expected ok=false for a single value")
	}
}

func TestPrecipRateText_SuppressedWhenZero(t *testing.T) {
	if got := precipRateText(0, "mm"); got != "" {
		t.Errorf("got %q, want empty", got)
	}
	if got := precipRateText(3.4, "mm"); got != "3mm" {
		t.Errorf("got %q, want 3mm", got)
	}
}
