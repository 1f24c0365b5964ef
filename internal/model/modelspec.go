// Package model holds the domain records the core operates on: the
// configuration tree produced by the (external) TOML loader, NWP model
// references, geocoding results, alerts, and the processed forecast
// dataset that flows through the pipeline.
package model

import (
	"fmt"
	"strconv"
	"strings"
)

// ModelKind distinguishes ensemble NWP models (many equally-plausible
// members) from deterministic ones (a single best-estimate trajectory,
// treated as an ensemble of one member).
type ModelKind string

const (
	KindEnsemble      ModelKind = "ensemble"
	KindDeterministic ModelKind = "deterministic"
)

// ensembleCatalog lists known ensemble models and their member counts.
// Used to infer ModelKind when a reference carries no "ensemble:"/"det:"
// prefix. Member counts come from the upstream providers' documented
// ensemble sizes.
var ensembleCatalog = map[string]int{
	"ecmwf_ifs025":      51,
	"ecmwf_aifs025":     51,
	"icon_seamless":     40,
	"icon_global":       40,
	"icon_eu":           40,
	"gfs_seamless":      31,
	"gfs025":            31,
	"gem_global":        21,
	"bom_access_global": 17,
}

// ModelSpec is the canonical, parsed form of a model reference string
// such as "det:ecmwf_ifs" or "ens:ecmwf_ifs025". References without a
// prefix are resolved by lookup against the known ensemble catalog.
//
// ModelSpec values are parsed once (at config-load boundary) and never
// re-parsed; downstream components only ever see a ModelSpec.
type ModelSpec struct {
	Kind        ModelKind
	ModelID     string
	MemberCount int
}

// String renders the canonical "<kind>:<model_id>" form.
func (m ModelSpec) String() string {
	prefix := "det"
	if m.Kind == KindEnsemble {
		prefix = "ens"
	}
	return prefix + ":" + m.ModelID
}

// ParseModelSpec parses a model reference of the shape "<kind>:<model_id>"
// (kind one of "ensemble"/"ens", "deterministic"/"det") or a bare model
// id, which is classified by looking it up in the known ensemble
// catalog. Ensemble member counts are clamped to the documented
// [3, 51] range; deterministic models always carry member count 1.
func ParseModelSpec(ref string) (ModelSpec, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ModelSpec{}, fmt.Errorf("model: empty model reference")
	}

	if idx := strings.IndexByte(ref, ':'); idx >= 0 {
		prefix, id := ref[:idx], ref[idx+1:]
		id = strings.TrimSpace(id)
		if id == "" {
			return ModelSpec{}, fmt.Errorf("model: missing model id in %q", ref)
		}
		switch strings.ToLower(prefix) {
		case "ensemble", "ens":
			count := ensembleCatalog[id]
			if count == 0 {
				count = 51
			}
			return newEnsembleSpec(id, count)
		case "deterministic", "det":
			return ModelSpec{Kind: KindDeterministic, ModelID: id, MemberCount: 1}, nil
		default:
			return ModelSpec{}, fmt.Errorf("model: unknown model kind prefix %q", prefix)
		}
	}

	if count, ok := ensembleCatalog[ref]; ok {
		return newEnsembleSpec(ref, count)
	}
	return ModelSpec{Kind: KindDeterministic, ModelID: ref, MemberCount: 1}, nil
}

func newEnsembleSpec(id string, count int) (ModelSpec, error) {
	if count < 3 {
		count = 3
	}
	if count > 51 {
		count = 51
	}
	return ModelSpec{Kind: KindEnsemble, ModelID: id, MemberCount: count}, nil
}

// MemberName returns the zero-padded "memberNN" identifier for index i.
func MemberName(i int) string {
	return "member" + pad2(i)
}

func pad2(i int) string {
	s := strconv.Itoa(i)
	if len(s) < 2 {
		return "0" + s
	}
	return s
}
