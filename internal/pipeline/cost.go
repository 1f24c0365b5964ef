package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tehoro/ibfcore/internal/impactctx"
	"github.com/tehoro/ibfcore/internal/llm"
)

// EntityCost is one entity's (location or area) cost breakdown across
// the three LLM-consuming phases (spec.md §4.8 step 9).
type EntityCost struct {
	Label       string
	Context     float64
	Forecast    float64
	Translation float64
}

// Total returns the entity's combined USD cost.
func (c EntityCost) Total() float64 {
	return c.Context + c.Forecast + c.Translation
}

// CostSummary is the end-of-run accounting the executor returns from
// Run: a per-entity breakdown plus the grand total across every
// dispatcher it was constructed from.
type CostSummary struct {
	Entities []EntityCost
	Grand    float64
}

// NewCostSummary merges the context, forecast, and translation cost
// accumulators into one per-entity summary. Any nil collaborator
// contributes no rows, matching a configuration where that phase is
// disabled (e.g. no impact-context LLM configured).
func NewCostSummary(forecast, translation *llm.Dispatcher, impact *impactctx.Fetcher) *CostSummary {
	merged := make(map[string]*EntityCost)

	ensure := func(label string) *EntityCost {
		if e, ok := merged[label]; ok {
			return e
		}
		e := &EntityCost{Label: label}
		merged[label] = e
		return e
	}

	addFrom := func(acc *llm.Accumulator, kind llm.CostKind, assign func(e *EntityCost, usd float64)) {
		if acc == nil {
			return
		}
		for label, byKind := range acc.Snapshot() {
			if usd, ok := byKind[kind]; ok && usd != 0 {
				assign(ensure(label), usd)
			}
		}
	}

	if impact != nil && impact.Dispatcher != nil {
		addFrom(impact.Dispatcher.Costs, llm.CostContext, func(e *EntityCost, usd float64) { e.Context += usd })
	}
	if forecast != nil {
		addFrom(forecast.Costs, llm.CostForecast, func(e *EntityCost, usd float64) { e.Forecast += usd })
	}
	if translation != nil {
		addFrom(translation.Costs, llm.CostTranslation, func(e *EntityCost, usd float64) { e.Translation += usd })
	} else if forecast != nil {
		// Translation shares the forecast dispatcher when no distinct
		// translation model is configured.
		addFrom(forecast.Costs, llm.CostTranslation, func(e *EntityCost, usd float64) { e.Translation += usd })
	}

	labels := make([]string, 0, len(merged))
	for label := range merged {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	summary := &CostSummary{Entities: make([]EntityCost, 0, len(labels))}
	for _, label := range labels {
		e := *merged[label]
		summary.Entities = append(summary.Entities, e)
		summary.Grand += e.Total()
	}
	return summary
}

// String renders a fixed-width, aligned cost table suitable for a
// run's closing log line (spec.md §4.8 step 9).
func (s *CostSummary) String() string {
	if s == nil || len(s.Entities) == 0 {
		return "cost summary: no billable calls"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-30s %10s %10s %10s %10s\n", "Entity", "Context", "Forecast", "Translate", "Total")
	for _, e := range s.Entities {
		fmt.Fprintf(&b, "%-30s %10s %10s %10s %10s\n",
			truncateLabel(e.Label, 30),
			formatUSD(e.Context), formatUSD(e.Forecast), formatUSD(e.Translation), formatUSD(e.Total()))
	}
	fmt.Fprintf(&b, "%-30s %10s %10s %10s %10s\n", "TOTAL", "", "", "", formatUSD(s.Grand))
	return b.String()
}

func formatUSD(usd float64) string {
	return fmt.Sprintf("$%.4f", usd)
}

func truncateLabel(label string, max int) string {
	if len(label) <= max {
		return label
	}
	return label[:max-1] + "…"
}
