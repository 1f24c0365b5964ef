package llm

import "sync"

// CostKind distinguishes which phase of the pipeline a charge belongs
// to, for the end-of-run cost summary (spec.md §4.8 step 9).
type CostKind string

const (
	CostContext     CostKind = "context"
	CostForecast    CostKind = "forecast"
	CostTranslation CostKind = "translation"
)

// Cost is one call's token accounting and the USD it was billed.
type Cost struct {
	InputTokens       int
	CachedInputTokens int
	OutputTokens      int
	USD               float64
}

// ModelPrice is a model's per-1M-token pricing.
type ModelPrice struct {
	InputPer1M       float64
	CachedInputPer1M float64
	OutputPer1M      float64
}

// PriceTable maps a model id to its price.
type PriceTable map[string]ModelPrice

// DefaultPriceTable returns representative per-1M-token prices for the
// model families this dispatcher routes to. Callers may override
// entries from an external price-list collaborator.
func DefaultPriceTable() PriceTable {
	return PriceTable{
		"gpt-4.1":          {InputPer1M: 2.00, CachedInputPer1M: 0.50, OutputPer1M: 8.00},
		"gpt-4.1-mini":     {InputPer1M: 0.40, CachedInputPer1M: 0.10, OutputPer1M: 1.60},
		"gpt-5":            {InputPer1M: 5.00, CachedInputPer1M: 1.25, OutputPer1M: 15.00},
		"o3":               {InputPer1M: 2.00, CachedInputPer1M: 0.50, OutputPer1M: 8.00},
		"o4-mini":          {InputPer1M: 1.10, CachedInputPer1M: 0.275, OutputPer1M: 4.40},
		"gemini-2.0-flash": {InputPer1M: 0.10, CachedInputPer1M: 0.025, OutputPer1M: 0.40},
		"gemini-2.5-pro":   {InputPer1M: 1.25, CachedInputPer1M: 0.31, OutputPer1M: 10.00},
	}
}

// ComputeCost prices a call's token usage against price, in USD.
func ComputeCost(price ModelPrice, inputTokens, cachedTokens, outputTokens int) float64 {
	billedInput := inputTokens - cachedTokens
	if billedInput < 0 {
		billedInput = 0
	}
	usd := float64(billedInput)*price.InputPer1M/1_000_000 +
		float64(cachedTokens)*price.CachedInputPer1M/1_000_000 +
		float64(outputTokens)*price.OutputPer1M/1_000_000
	return usd
}

// priceFor looks up modelID's price, falling back to the zero price
// (a call whose model has no fixture entry costs $0, rather than
// panicking the pipeline over a pricing gap).
func (d *Dispatcher) priceFor(modelID string) ModelPrice {
	return d.Prices[modelID]
}

// Accumulator is a process-wide, concurrency-safe cost ledger keyed by
// entity label and cost kind (spec.md §5: "the cost accumulator...
// must be safe to update concurrently").
type Accumulator struct {
	mu     sync.Mutex
	totals map[string]map[CostKind]float64
}

// NewAccumulator returns an empty Accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{totals: make(map[string]map[CostKind]float64)}
}

// Add records usd against label/kind.
func (a *Accumulator) Add(label string, kind CostKind, usd float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	byKind, ok := a.totals[label]
	if !ok {
		byKind = make(map[CostKind]float64)
		a.totals[label] = byKind
	}
	byKind[kind] += usd
}

// Snapshot returns a deep copy of the current totals, safe to range
// over without holding the accumulator's lock.
func (a *Accumulator) Snapshot() map[string]map[CostKind]float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]map[CostKind]float64, len(a.totals))
	for label, byKind := range a.totals {
		copied := make(map[CostKind]float64, len(byKind))
		for kind, usd := range byKind {
			copied[kind] = usd
		}
		out[label] = copied
	}
	return out
}

// Grand returns the sum across every label and kind, in USD.
func (a *Accumulator) Grand() float64 {
	var total float64
	for _, byKind := range a.Snapshot() {
		for _, usd := range byKind {
			total += usd
		}
	}
	return total
}
