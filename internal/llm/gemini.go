package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/tehoro/ibfcore/internal/observability"
)

const geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/models"

// truncationFinishReasons are Gemini finish_reason values indicating
// the response was cut off by the token budget (spec.md §4.7).
var truncationFinishReasons = map[string]bool{
	"MAX_TOKENS":  true,
	"LENGTH":      true,
	"TOKEN_LIMIT": true,
	"MAX_TOKEN":   true,
}

const maxGeminiContinuations = 2

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiTool struct {
	GoogleSearch map[string]any `json:"googleSearch,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
	Tools             []geminiTool           `json:"tools,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount        int `json:"promptTokenCount"`
		CandidatesTokenCount    int `json:"candidatesTokenCount"`
		CachedContentTokenCount int `json:"cachedContentTokenCount"`
	} `json:"usageMetadata"`
}

// callGemini calls the Gemini API directly (no SDK in this pack),
// hiding the Google Maps API key env var for the call's duration since
// the two share a name collision (spec.md §4.7), and issuing up to
// maxGeminiContinuations continuation calls when the response is
// truncated.
func (d *Dispatcher) callGemini(ctx context.Context, modelID string, req Request) (Result, error) {
	restore := hideEnv(d.GoogleMapsAPIKeyEnv)
	defer restore()

	contents := []geminiContent{{Role: "user", Parts: []geminiPart{{Text: req.UserPrompt}}}}

	var fullText strings.Builder
	var lastFinish string
	totalCost := Cost{}
	price := d.priceFor(modelID)

	for attempt := 0; attempt <= maxGeminiContinuations; attempt++ {
		body := geminiRequest{
			Contents:          contents,
			SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: req.SystemPrompt}}},
			GenerationConfig: geminiGenerationConfig{
				Temperature:     req.Temperature,
				MaxOutputTokens: req.MaxTokens,
			},
		}
		if req.WebSearch {
			body.Tools = []geminiTool{{GoogleSearch: map[string]any{}}}
		}

		resp, err := d.doGeminiRequest(ctx, modelID, body)
		if err != nil {
			return Result{}, err
		}
		if len(resp.Candidates) == 0 {
			break
		}

		candidate := resp.Candidates[0]
		var chunk strings.Builder
		for _, part := range candidate.Content.Parts {
			chunk.WriteString(part.Text)
		}
		fullText.WriteString(chunk.String())
		lastFinish = candidate.FinishReason

		totalCost.InputTokens += resp.UsageMetadata.PromptTokenCount
		totalCost.CachedInputTokens += resp.UsageMetadata.CachedContentTokenCount
		totalCost.OutputTokens += resp.UsageMetadata.CandidatesTokenCount

		if !truncationFinishReasons[lastFinish] || attempt == maxGeminiContinuations {
			break
		}

		contents = append(contents,
			geminiContent{Role: "model", Parts: []geminiPart{{Text: chunk.String()}}},
			geminiContent{Role: "user", Parts: []geminiPart{{Text: continuationPrompt}}},
		)
	}

	totalCost.USD = ComputeCost(price, totalCost.InputTokens, totalCost.CachedInputTokens, totalCost.OutputTokens)
	return Result{Text: fullText.String(), FinishLabel: lastFinish, Cost: totalCost}, nil
}

const continuationPrompt = "Continue your previous answer. Do not repeat any earlier text; finish the cut-off sentence, then provide any sections you have not yet written."

func (d *Dispatcher) doGeminiRequest(ctx context.Context, modelID string, body geminiRequest) (geminiResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return geminiResponse{}, fmt.Errorf("llm: encode gemini request: %w", err)
	}

	url := fmt.Sprintf("%s/%s:generateContent?key=%s", geminiBaseURL, modelID, d.GeminiAPIKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return geminiResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	httpResp, err := d.HTTP.Do(httpReq)
	observability.UpstreamDuration.WithLabelValues("llm", statusLabel(err)).Observe(time.Since(start).Seconds())
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues("llm", "error").Inc()
		return geminiResponse{}, fmt.Errorf("llm: gemini request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return geminiResponse{}, fmt.Errorf("llm: read gemini response: %w", err)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		observability.UpstreamCallsTotal.WithLabelValues("llm", "error").Inc()
		return geminiResponse{}, fmt.Errorf("llm: gemini http %d: %s", httpResp.StatusCode, string(respBody))
	}
	observability.UpstreamCallsTotal.WithLabelValues("llm", "success").Inc()

	var parsed geminiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return geminiResponse{}, fmt.Errorf("llm: decode gemini response: %w", err)
	}
	return parsed, nil
}

// hideEnv unsets name for the duration of a call and returns a closure
// that restores its original value (or leaves it unset, if it wasn't
// set to begin with).
func hideEnv(name string) func() {
	if name == "" {
		return func() {}
	}
	original, wasSet := os.LookupEnv(name)
	os.Unsetenv(name)
	return func() {
		if wasSet {
			os.Setenv(name, original)
		}
	}
}
