package impactctx

import (
	"strings"
	"testing"
	"time"
)

func TestCacheKey_StableWithoutModelOrExtraContext(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	req := Request{Name: "Wellington", Type: TypeLocation}
	got := cacheKey(req, now)
	want := "20260730_location_wellington.json"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestCacheKey_IncludesHashWhenModelOrExtraContextSet(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	plain := cacheKey(Request{Name: "Wellington", Type: TypeLocation}, now)
	withModel := cacheKey(Request{Name: "Wellington", Type: TypeLocation, ModelRef: "gemini-2.0-flash"}, now)
	if plain == withModel {
		t.Error("expected distinct cache keys for distinct context models")
	}
	if !strings.Contains(withModel, "__") {
		t.Errorf("expected hash suffix, got %q", withModel)
	}
}

func TestNeedsContinuation_MissingHeadingTriggersContinuation(t *testing.T) {
	text := "### Existing Vulnerabilities\nSome text.\n\n### Weather Impact Thresholds\nMore text.\n\n### Exposed Populations and Assets\nEven more."
	if !needsContinuation(text) {
		t.Error("expected continuation to be needed when Upcoming Events is missing")
	}
}

func TestNeedsContinuation_CompleteTextNoContinuation(t *testing.T) {
	text := strings.Join([]string{
		"### Existing Vulnerabilities",
		"Flooding has occurred before.",
		"",
		"### Weather Impact Thresholds",
		"Rainfall above 50mm triggers warnings.",
		"",
		"### Exposed Populations and Assets",
		"The harbor district is low-lying.",
		"",
		"### Upcoming Events",
		"No significant public events identified during this period.",
	}, "\n")
	if needsContinuation(text) {
		t.Error("expected no continuation needed for complete text")
	}
}

func TestNeedsContinuation_MidSentenceCutoffTriggersContinuation(t *testing.T) {
	text := strings.Join([]string{
		"### Existing Vulnerabilities",
		"Flooding has occurred before.",
		"",
		"### Weather Impact Thresholds",
		"Rainfall above 50mm triggers warnings.",
		"",
		"### Exposed Populations and Assets",
		"The harbor district is low-lying.",
		"",
		"### Upcoming Events",
		"A major festival begins on the coming weekend and draws large crowds who",
	}, "\n")
	if !needsContinuation(text) {
		t.Error("expected continuation for a response cut off mid-sentence")
	}
}

func TestCanonicalizeHeadings_RewritesVariousForms(t *testing.T) {
	text := "**Existing Vulnerabilities**\ntext\n\nweather impact thresholds\nmore\n\n## Exposed Populations and Assets\nmore\n\nUpcoming Events\nmore"
	got := canonicalizeHeadings(text)
	for _, h := range requiredHeadings {
		if !strings.Contains(got, "### "+h) {
			t.Errorf("expected canonical heading %q in output, got %q", h, got)
		}
	}
}

func TestMergeContinuation_AvoidsWordFragmentJoin(t *testing.T) {
	got := mergeContinuation("the cat sat on the", "mat and slept")
	if got != "the cat sat on the mat and slept" {
		t.Errorf("got %q", got)
	}
}

func TestMergeContinuation_NoExtraSpaceAfterPunctuation(t *testing.T) {
	got := mergeContinuation("Done.", "Next section begins.")
	if got != "Done.Next section begins." {
		t.Errorf("got %q", got)
	}
}

func TestMissingHeadings_AllFourWhenEmpty(t *testing.T) {
	missing := missingHeadings("")
	if len(missing) != len(requiredHeadings) {
		t.Errorf("got %d missing headings, want %d", len(missing), len(requiredHeadings))
	}
}
