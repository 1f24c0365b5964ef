// Package llm dispatches forecast, translation, and impact-context
// prompts to the configured provider (OpenAI, Gemini, or OpenRouter)
// and tracks their cost (spec.md §4.7).
package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tehoro/ibfcore/internal/circuitbreaker"
	"github.com/tehoro/ibfcore/internal/observability"
)

// Provider identifies which upstream API a model reference routes to.
type Provider string

const (
	ProviderOpenAI     Provider = "openai"
	ProviderGemini     Provider = "gemini"
	ProviderOpenRouter Provider = "openrouter"
)

// Request is a single completion request, provider-agnostic.
type Request struct {
	ModelRef        string // raw reference, e.g. "gpt-4.1", "gemini-2.0-flash", "or:anthropic/claude-3"
	SystemPrompt    string
	UserPrompt      string
	Temperature     float64
	MaxTokens       int
	ReasoningEffort string // "", "low", "medium", "high", "auto", or "off"; may carry ":<tokens>" suffix
	WebSearch       bool   // request provider-native web-search grounding (§4.6)
}

// Result is a cleaned completion plus its accounted cost.
type Result struct {
	Text        string
	FinishLabel string // provider-reported finish reason, for continuation logic
	Cost        Cost
}

// Dispatcher routes requests to the right provider client.
type Dispatcher struct {
	HTTP                *http.Client
	Logger              *zap.Logger
	OpenAIAPIKey        string
	GeminiAPIKey        string
	OpenRouterAPIKey    string
	GoogleMapsAPIKeyEnv string // env var name hidden for the duration of Gemini calls
	Prices              PriceTable
	Costs               *Accumulator
	CircuitBreaker      *circuitbreaker.CircuitBreaker
}

// New constructs a Dispatcher with a default HTTP client and cost
// accumulator.
func New(logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		HTTP:                &http.Client{Timeout: 60 * time.Second},
		Logger:              logger,
		GoogleMapsAPIKeyEnv: "GOOGLE_MAPS_API_KEY",
		Prices:              DefaultPriceTable(),
		Costs:               NewAccumulator(),
	}
}

// ErrUnknownProvider is returned when a model reference matches no
// routing rule (spec.md §4.7: "Unknown → fail fast").
type ErrUnknownProvider struct{ ModelRef string }

func (e ErrUnknownProvider) Error() string {
	return fmt.Sprintf("llm: no provider route for model %q", e.ModelRef)
}

// RouteProvider classifies a model reference per spec.md §4.7's
// prefix rules, returning the provider and the bare model id (with any
// routing prefix stripped).
func RouteProvider(modelRef string) (Provider, string, error) {
	switch {
	case strings.HasPrefix(modelRef, "or:"):
		return ProviderOpenRouter, strings.TrimPrefix(modelRef, "or:"), nil
	case strings.HasPrefix(modelRef, "gemini-"), strings.HasPrefix(modelRef, "google/gemini-"):
		return ProviderGemini, strings.TrimPrefix(modelRef, "google/"), nil
	case hasAnyPrefix(modelRef, "gpt-", "o1", "o2", "o3", "o4", "o5", "o6", "o7", "o8", "o9"):
		return ProviderOpenAI, modelRef, nil
	default:
		return "", "", ErrUnknownProvider{ModelRef: modelRef}
	}
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// reasoningCapableMarkers are substrings identifying an OpenAI model
// family that accepts the reasoning-effort parameter (spec.md §4.7).
var reasoningCapableMarkers = []string{"o1", "o3", "o4", "gpt-4.1", "gpt-5"}

// IsReasoningCapable reports whether modelID matches a known
// reasoning-capable OpenAI model family.
func IsReasoningCapable(modelID string) bool {
	for _, marker := range reasoningCapableMarkers {
		if strings.Contains(modelID, marker) {
			return true
		}
	}
	return false
}

// ReasoningOverride is a parsed `effort[:max_output_tokens]` override
// string, e.g. "high" or "low:2048".
type ReasoningOverride struct {
	Effort          string // "low", "medium", "high", "auto"; empty when disabled
	MaxOutputTokens int    // 0 means unset
}

// ParseReasoningOverride parses the free-form override string from
// configuration. The literal "off" disables reasoning entirely.
func ParseReasoningOverride(raw string) ReasoningOverride {
	if raw == "" || strings.EqualFold(raw, "off") {
		return ReasoningOverride{}
	}
	parts := strings.SplitN(raw, ":", 2)
	out := ReasoningOverride{Effort: parts[0]}
	if len(parts) == 2 {
		var tokens int
		if _, err := fmt.Sscanf(parts[1], "%d", &tokens); err == nil {
			out.MaxOutputTokens = tokens
		}
	}
	return out
}

// Dispatch routes req to the appropriate provider, cleans the output,
// and accumulates cost under label/kind.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request, label string, kind CostKind) (Result, error) {
	provider, modelID, err := RouteProvider(req.ModelRef)
	if err != nil {
		return Result{}, err
	}

	requestID := uuid.NewString()
	d.Logger.Debug("llm dispatch",
		zap.String("request_id", requestID),
		zap.String("label", label),
		zap.String("provider", string(provider)),
		zap.String("model", modelID),
	)

	var result Result
	call := func() error {
		var callErr error
		switch provider {
		case ProviderOpenAI:
			if req.WebSearch {
				result, callErr = d.callOpenAIResponses(ctx, modelID, req)
				if callErr != nil {
					d.Logger.Warn("openai responses api failed, falling back to chat completions", zap.Error(callErr))
					result, callErr = d.callOpenAI(ctx, modelID, req, openAIBaseURL)
				}
				break
			}
			result, callErr = d.callOpenAI(ctx, modelID, req, openAIBaseURL)
		case ProviderOpenRouter:
			result, callErr = d.callOpenAI(ctx, modelID, req, openRouterBaseURL)
		case ProviderGemini:
			result, callErr = d.callGemini(ctx, modelID, req)
		}
		return callErr
	}

	if d.CircuitBreaker != nil {
		err = d.CircuitBreaker.Call(ctx, call)
	} else {
		err = call()
	}
	if err != nil {
		d.Logger.Warn("llm dispatch failed", zap.String("request_id", requestID), zap.Error(err))
		return Result{}, err
	}

	result.Text = CleanOutput(result.Text)
	d.Costs.Add(label, kind, result.Cost.USD)
	observability.LLMCostUSDTotal.WithLabelValues(string(kind)).Add(result.Cost.USD)
	return result, nil
}
