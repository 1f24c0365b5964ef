package llm

import (
	"os"
	"strings"
	"testing"
)

func TestRouteProvider(t *testing.T) {
	cases := []struct {
		ref      string
		provider Provider
		modelID  string
	}{
		{"gpt-4.1", ProviderOpenAI, "gpt-4.1"},
		{"o3-mini", ProviderOpenAI, "o3-mini"},
		{"gemini-2.0-flash", ProviderGemini, "gemini-2.0-flash"},
		{"google/gemini-2.0-flash", ProviderGemini, "gemini-2.0-flash"},
		{"or:anthropic/claude-3", ProviderOpenRouter, "anthropic/claude-3"},
	}
	for _, c := range cases {
		provider, modelID, err := RouteProvider(c.ref)
		if err != nil {
			t.Fatalf("RouteProvider(%q): %v", c.ref, err)
		}
		if provider != c.provider || modelID != c.modelID {
			t.Errorf("RouteProvider(%q) = (%v, %v), want (%v, %v)", c.ref, provider, modelID, c.provider, c.modelID)
		}
	}
}

func TestRouteProvider_UnknownFailsFast(t *testing.T) {
	if _, _, err := RouteProvider("llama-unknown"); err == nil {
		t.Error("expected an error for an unrecognized model reference")
	}
}

func TestIsReasoningCapable(t *testing.T) {
	if !IsReasoningCapable("o3-mini") {
		t.Error("o3-mini should be reasoning-capable")
	}
	if !IsReasoningCapable("gpt-4.1") {
		t.Error("gpt-4.1 should be reasoning-capable")
	}
	if IsReasoningCapable("gpt-3.5-turbo") {
		t.Error("gpt-3.5-turbo should not be reasoning-capable")
	}
}

func TestParseReasoningOverride(t *testing.T) {
	if got := ParseReasoningOverride("off"); got.Effort != "" {
		t.Errorf("got %+v, want disabled", got)
	}
	got := ParseReasoningOverride("low:2048")
	if got.Effort != "low" || got.MaxOutputTokens != 2048 {
		t.Errorf("got %+v, want {low 2048}", got)
	}
	got = ParseReasoningOverride("high")
	if got.Effort != "high" || got.MaxOutputTokens != 0 {
		t.Errorf("got %+v, want {high 0}", got)
	}
}

func TestCleanOutput_StripsThinkBlocks(t *testing.T) {
	in := "<think>internal musing</think>**Forecast**\nSunny today."
	got := CleanOutput(in)
	if strings.Contains(got, "internal musing") {
		t.Errorf("think block not stripped: %q", got)
	}
	if !strings.HasPrefix(got, "**Forecast**") {
		t.Errorf("expected trimmed prologue, got %q", got)
	}
}

func TestCleanOutput_DropsConversationalTail(t *testing.T) {
	in := "**Forecast**\nSunny today.\nWould you like more detail?"
	got := CleanOutput(in)
	if strings.Contains(got, "Would you like") {
		t.Errorf("conversational tail not dropped: %q", got)
	}
}

func TestCleanOutput_NormalizesDegreeSpacing(t *testing.T) {
	got := CleanOutput("**X**\nHigh of 20 ° C today.")
	if strings.Contains(got, "20 °") || strings.Contains(got, "° C") {
		t.Errorf("degree spacing not normalized: %q", got)
	}
}

func TestCleanOutput_StripsURLsAndMarkdownLinks(t *testing.T) {
	got := CleanOutput("**X**\nSee [the source](https://example.com/page) for details. https://bare.example.com")
	if strings.Contains(got, "http") {
		t.Errorf("expected URLs stripped, got %q", got)
	}
	if !strings.Contains(got, "the source") {
		t.Errorf("expected link text preserved, got %q", got)
	}
}

func TestComputeCost(t *testing.T) {
	price := ModelPrice{InputPer1M: 2.0, CachedInputPer1M: 0.5, OutputPer1M: 8.0}
	got := ComputeCost(price, 1_000_000, 0, 1_000_000)
	want := 2.0 + 8.0
	if got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestExtractResponsesText_PrefersOutputText(t *testing.T) {
	parsed := responsesResponse{OutputText: "direct answer"}
	if got := extractResponsesText(parsed); got != "direct answer" {
		t.Errorf("got %q", got)
	}
}

func TestExtractResponsesText_FallsBackToOutputContent(t *testing.T) {
	parsed := responsesResponse{
		Output: []responsesOutputItem{
			{Content: []responsesContentItem{{Text: "nested answer"}}},
		},
	}
	if got := extractResponsesText(parsed); got != "nested answer" {
		t.Errorf("got %q", got)
	}
}

func TestAccumulator_AddAndSnapshot(t *testing.T) {
	acc := NewAccumulator()
	acc.Add("Test City", CostForecast, 1.50)
	acc.Add("Test City", CostContext, 0.25)
	acc.Add("Other City", CostForecast, 2.00)

	snap := acc.Snapshot()
	if snap["Test City"][CostForecast] != 1.50 {
		t.Errorf("got %v, want 1.50", snap["Test City"][CostForecast])
	}
	if got := acc.Grand(); got != 3.75 {
		t.Errorf("got %v, want 3.75", got)
	}
}

func TestHideEnv_RestoresOriginalValue(t *testing.T) {
	t.Setenv("IBF_TEST_HIDE_ENV", "secret")
	restore := hideEnv("IBF_TEST_HIDE_ENV")
	if v, ok := os.LookupEnv("IBF_TEST_HIDE_ENV"); ok {
		t.Errorf("expected env var hidden during call, got %q", v)
	}
	restore()
	if v, ok := os.LookupEnv("IBF_TEST_HIDE_ENV"); !ok || v != "secret" {
		t.Errorf("expected env var restored to %q, got %q (ok=%v)", "secret", v, ok)
	}
}
