package thinning

import (
	"testing"

	"github.com/tehoro/ibfcore/internal/model"
)

func buildDataset(memberTemps map[string][]float64) model.ProcessedDataset {
	n := 0
	for _, t := range memberTemps {
		n = len(t)
		break
	}
	var hours []model.Hour
	for h := 0; h < n; h++ {
		members := make(map[string]model.MemberRecord, len(memberTemps))
		for id, temps := range memberTemps {
			members[id] = model.MemberRecord{Temperature: temps[h], Precipitation: temps[h]}
		}
		hours = append(hours, model.Hour{Key: "h", Members: members})
	}
	ids := make([]string, 0, len(memberTemps))
	for id := range memberTemps {
		ids = append(ids, id)
	}
	return model.ProcessedDataset{
		Days:      []model.Day{{Hours: hours}},
		MemberIDs: ids,
	}
}

// Property 1 (spec.md §8): thinning preserves member00.
func TestSelect_PreservesMember00(t *testing.T) {
	dataset := buildDataset(map[string][]float64{
		"member00": {1, 2, 3},
		"member01": {1, 2, 3},
		"member02": {10, 20, 30},
		"member03": {-5, -5, -5},
		"member04": {100, 200, 300},
	})

	thinned := Select(dataset, 2, DefaultWeights(), "test")
	for _, day := range thinned.Days {
		for _, hour := range day.Hours {
			if _, ok := hour.Members["member00"]; !ok {
				t.Fatal("member00 missing from an hour after thinning")
			}
		}
	}
}

// Property 2 (spec.md §8): thinning with k = current count is a no-op.
func TestSelect_Idempotent(t *testing.T) {
	dataset := buildDataset(map[string][]float64{
		"member00": {1, 2, 3},
		"member01": {4, 5, 6},
		"member02": {7, 8, 9},
	})

	thinned := Select(dataset, 3, DefaultWeights(), "test")
	if len(thinned.MemberIDs) != 3 {
		t.Fatalf("got %d members, want 3 (unchanged)", len(thinned.MemberIDs))
	}
}

func TestSelect_AlreadyBelowTarget_ReturnsUnchanged(t *testing.T) {
	dataset := buildDataset(map[string][]float64{
		"member00": {1, 2},
		"member01": {3, 4},
	})
	thinned := Select(dataset, 10, DefaultWeights(), "test")
	if len(thinned.MemberIDs) != 2 {
		t.Fatalf("got %d members, want 2 (all retained)", len(thinned.MemberIDs))
	}
}

func TestSelect_PrefersDiverseMembers(t *testing.T) {
	dataset := buildDataset(map[string][]float64{
		"member00": {0, 0, 0},
		"member01": {0.1, 0.1, 0.1}, // nearly identical to member00
		"member02": {100, 100, 100}, // maximally different
		"member03": {0.2, 0.2, 0.2},
	})

	thinned := Select(dataset, 2, DefaultWeights(), "test")
	ids := map[string]bool{}
	for _, id := range thinned.MemberIDs {
		ids[id] = true
	}
	if !ids["member00"] {
		t.Fatal("expected member00 to be selected")
	}
	if !ids["member02"] {
		t.Error("expected the most diverse member (member02) to be selected over near-duplicates")
	}
}

func TestSelect_HourMembersConsistentAcrossDataset(t *testing.T) {
	dataset := buildDataset(map[string][]float64{
		"member00": {1, 2, 3},
		"member01": {4, 5, 6},
		"member02": {7, 8, 9},
		"member03": {10, 11, 12},
	})
	thinned := Select(dataset, 2, DefaultWeights(), "test")

	var wantSet map[string]bool
	for _, day := range thinned.Days {
		for _, hour := range day.Hours {
			ids := map[string]bool{}
			for id := range hour.Members {
				ids[id] = true
			}
			if wantSet == nil {
				wantSet = ids
				continue
			}
			if len(ids) != len(wantSet) {
				t.Fatalf("inconsistent member set across hours: %v vs %v", ids, wantSet)
			}
			for id := range ids {
				if !wantSet[id] {
					t.Fatalf("member %s present in one hour but not another", id)
				}
			}
		}
	}
}

func TestRMS(t *testing.T) {
	if got := rms([]float64{1, 2, 3}, []float64{1, 2, 3}); got != 0 {
		t.Errorf("rms of identical series = %v, want 0", got)
	}
	if got := rms(nil, nil); got != 0 {
		t.Errorf("rms of empty series = %v, want 0", got)
	}
}

func TestNormalize_ConstantSeriesProducesZeroes(t *testing.T) {
	out := normalize([]float64{5, 5, 5}, 5, 5)
	for _, v := range out {
		if v != 0 {
			t.Errorf("expected all zeroes for a constant series, got %v", out)
		}
	}
}
