// Package thinning selects a diverse subset of ensemble members by
// greedy maximum-distance selection (spec.md §4.4), so downstream
// formatting and LLM prompts work from a manageable number of
// scenarios without collapsing to a single deterministic trace.
package thinning

import (
	"math"
	"sort"

	"github.com/tehoro/ibfcore/internal/model"
	"github.com/tehoro/ibfcore/internal/observability"
)

// Weights controls the relative contribution of each series to the
// distance metric; both default to 1.0.
type Weights struct {
	Temperature   float64
	Precipitation float64
}

// DefaultWeights returns the spec's default (1.0, 1.0) weighting.
func DefaultWeights() Weights { return Weights{Temperature: 1.0, Precipitation: 1.0} }

// series holds one member's flattened temperature/precipitation
// samples across every hour of every day, in day/hour order.
type series struct {
	temperature   []float64
	precipitation []float64
}

// Select returns a copy of dataset containing only k members, chosen
// by greedy maximum-diversity selection. If the dataset already has
// ≤ k members it is returned unchanged (by value; its Days slice is
// shared with the input). kind labels the dropped-member metric.
func Select(dataset model.ProcessedDataset, k int, weights Weights, kind string) model.ProcessedDataset {
	flattened := flatten(dataset)
	if len(flattened) <= k {
		return dataset
	}

	selected := runSelection(flattened, k, weights)
	observability.ThinningDroppedTotal.WithLabelValues(kind).Add(float64(len(flattened) - len(selected)))

	keep := make(map[string]bool, len(selected))
	for _, m := range selected {
		keep[m] = true
	}

	return prune(dataset, selected, keep)
}

// flatten collapses the day/hour structure into one series per member,
// keyed by member ID; the map has no order, so runSelection sorts the
// IDs for deterministic iteration and tie-breaking.
func flatten(dataset model.ProcessedDataset) map[string]*series {
	out := make(map[string]*series)
	for _, day := range dataset.Days {
		for _, hour := range day.Hours {
			for memberID, rec := range hour.Members {
				s, ok := out[memberID]
				if !ok {
					s = &series{}
					out[memberID] = s
				}
				s.temperature = append(s.temperature, rec.Temperature)
				s.precipitation = append(s.precipitation, rec.Precipitation)
			}
		}
	}
	return out
}

// runSelection implements the greedy max-diversity algorithm: seed
// with member00 (or the lexicographically first member), then
// repeatedly add the remaining member with the highest mean weighted
// RMS distance to the already-selected set.
func runSelection(members map[string]*series, k int, weights Weights) []string {
	names := make([]string, 0, len(members))
	for name := range members {
		names = append(names, name)
	}
	sort.Strings(names)

	minT, maxT := minMax(flattenAll(members, func(s *series) []float64 { return s.temperature }))
	minP, maxP := minMax(flattenAll(members, func(s *series) []float64 { return s.precipitation }))

	normalized := make(map[string]*series, len(members))
	for name, s := range members {
		normalized[name] = &series{
			temperature:   normalize(s.temperature, minT, maxT),
			precipitation: normalize(s.precipitation, minP, maxP),
		}
	}

	var selected []string
	if _, ok := members["member00"]; ok {
		selected = []string{"member00"}
	} else {
		selected = []string{names[0]}
	}

	remaining := make([]string, 0, len(names)-1)
	selectedSet := map[string]bool{selected[0]: true}
	for _, n := range names {
		if !selectedSet[n] {
			remaining = append(remaining, n)
		}
	}

	for len(selected) < k && len(remaining) > 0 {
		bestIdx := -1
		bestDistance := math.Inf(-1)

		for i, candidate := range remaining {
			var sum float64
			for _, existing := range selected {
				tempDist := rms(normalized[candidate].temperature, normalized[existing].temperature)
				precipDist := rms(normalized[candidate].precipitation, normalized[existing].precipitation)
				sum += weights.Temperature*tempDist + weights.Precipitation*precipDist
			}
			avg := sum / float64(len(selected))
			if avg > bestDistance {
				bestDistance = avg
				bestIdx = i
			}
		}

		if bestIdx == -1 {
			break
		}
		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	return selected
}

func flattenAll(members map[string]*series, pick func(*series) []float64) []float64 {
	var out []float64
	for _, s := range members {
		out = append(out, pick(s)...)
	}
	return out
}

func minMax(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	min, max := values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

func normalize(values []float64, min, max float64) []float64 {
	out := make([]float64, len(values))
	if max == min {
		return out // all zero
	}
	for i, v := range values {
		out[i] = (v - min) / (max - min)
	}
	return out
}

// rms returns the root-mean-square of the element-wise differences
// between a and b. Mismatched lengths are truncated to the shorter.
func rms(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return 0
	}
	var sumSq float64
	for i := 0; i < n; i++ {
		d := a[i] - b[i]
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(n))
}

// prune returns a copy of dataset retaining only members in keep,
// preserving per-hour member maps and the original member order for
// the ones that survive.
func prune(dataset model.ProcessedDataset, selectedOrder []string, keep map[string]bool) model.ProcessedDataset {
	out := dataset
	out.Days = make([]model.Day, len(dataset.Days))
	for di, day := range dataset.Days {
		newDay := day
		newDay.Hours = make([]model.Hour, len(day.Hours))
		for hi, hour := range day.Hours {
			newHour := hour
			newHour.Members = make(map[string]model.MemberRecord, len(keep))
			for id, rec := range hour.Members {
				if keep[id] {
					newHour.Members[id] = rec
				}
			}
			newDay.Hours[hi] = newHour
		}
		out.Days[di] = newDay
	}

	newIDs := make([]string, 0, len(selectedOrder))
	for _, id := range dataset.MemberIDs {
		if keep[id] {
			newIDs = append(newIDs, id)
		}
	}
	out.MemberIDs = newIDs
	return out
}
