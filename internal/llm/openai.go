package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tehoro/ibfcore/internal/observability"
)

const (
	openAIBaseURL      = "https://api.openai.com/v1/chat/completions"
	openAIResponsesURL = "https://api.openai.com/v1/responses"
	openRouterBaseURL  = "https://openrouter.ai/api/v1/chat/completions"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type reasoningConfig struct {
	Effort string `json:"effort"`
}

type chatCompletionRequest struct {
	Model           string           `json:"model"`
	Messages        []chatMessage    `json:"messages"`
	Temperature     float64          `json:"temperature,omitempty"`
	MaxTokens       int              `json:"max_tokens,omitempty"`
	Reasoning       *reasoningConfig `json:"reasoning,omitempty"`
	MaxOutputTokens int              `json:"max_output_tokens,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			Reasoning string `json:"reasoning"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens        int `json:"prompt_tokens"`
		CompletionTokens    int `json:"completion_tokens"`
		PromptTokensDetails struct {
			CachedTokens int `json:"cached_tokens"`
		} `json:"prompt_tokens_details"`
	} `json:"usage"`
}

// callOpenAI serves both the OpenAI and OpenRouter providers, since
// OpenRouter exposes an OpenAI-compatible chat-completions endpoint
// (spec.md §4.7).
func (d *Dispatcher) callOpenAI(ctx context.Context, modelID string, req Request, baseURL string) (Result, error) {
	body := chatCompletionRequest{
		Model: modelID,
		Messages: []chatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.UserPrompt},
		},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	if baseURL == openAIBaseURL && req.ReasoningEffort != "" {
		override := ParseReasoningOverride(req.ReasoningEffort)
		if override.Effort != "" && IsReasoningCapable(modelID) {
			body.Reasoning = &reasoningConfig{Effort: override.Effort}
			body.MaxOutputTokens = override.MaxOutputTokens
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return Result{}, fmt.Errorf("llm: encode openai request: %w", err)
	}

	apiKey := d.OpenAIAPIKey
	if baseURL == openRouterBaseURL {
		apiKey = d.OpenRouterAPIKey
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL, bytes.NewReader(payload))
	if err != nil {
		return Result{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	start := time.Now()
	httpResp, err := d.HTTP.Do(httpReq)
	observability.UpstreamDuration.WithLabelValues("llm", statusLabel(err)).Observe(time.Since(start).Seconds())
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues("llm", "error").Inc()
		return Result{}, fmt.Errorf("llm: openai request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("llm: read openai response: %w", err)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		observability.UpstreamCallsTotal.WithLabelValues("llm", "error").Inc()
		return Result{}, fmt.Errorf("llm: openai http %d: %s", httpResp.StatusCode, string(respBody))
	}
	observability.UpstreamCallsTotal.WithLabelValues("llm", "success").Inc()

	var parsed chatCompletionResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return Result{}, fmt.Errorf("llm: decode openai response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return Result{}, fmt.Errorf("llm: openai response had no choices")
	}

	choice := parsed.Choices[0]
	text := choice.Message.Content
	if text == "" && choice.Message.Reasoning != "" {
		// Empty-content recovery (spec.md §4.7): some reasoning models
		// leave content empty and surface their answer in the reasoning
		// field instead.
		text = choice.Message.Reasoning
	}

	price := d.priceFor(modelID)
	cost := Cost{
		InputTokens:       parsed.Usage.PromptTokens,
		CachedInputTokens: parsed.Usage.PromptTokensDetails.CachedTokens,
		OutputTokens:      parsed.Usage.CompletionTokens,
	}
	cost.USD = ComputeCost(price, cost.InputTokens, cost.CachedInputTokens, cost.OutputTokens)

	return Result{Text: text, FinishLabel: choice.FinishReason, Cost: cost}, nil
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

type responsesWebSearchTool struct {
	Type string `json:"type"`
}

type responsesRequest struct {
	Model        string                   `json:"model"`
	Input        string                   `json:"input"`
	Instructions string                   `json:"instructions,omitempty"`
	Tools        []responsesWebSearchTool `json:"tools,omitempty"`
	Temperature  float64                  `json:"temperature,omitempty"`
}

type responsesContentItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type responsesOutputItem struct {
	Type    string                 `json:"type"`
	Text    string                 `json:"text"`
	Content []responsesContentItem `json:"content"`
}

type responsesResponse struct {
	OutputText string                `json:"output_text"`
	Output     []responsesOutputItem `json:"output"`
	Usage      struct {
		InputTokens        int `json:"input_tokens"`
		OutputTokens       int `json:"output_tokens"`
		InputTokensDetails struct {
			CachedTokens int `json:"cached_tokens"`
		} `json:"input_tokens_details"`
	} `json:"usage"`
}

// callOpenAIResponses uses the Responses API with the web-search tool
// enabled (spec.md §4.6's context-LLM contract). It is only attempted
// when Request.WebSearch is set; Dispatch falls back to plain chat
// completions if this call fails.
func (d *Dispatcher) callOpenAIResponses(ctx context.Context, modelID string, req Request) (Result, error) {
	body := responsesRequest{
		Model:        modelID,
		Input:        req.UserPrompt,
		Instructions: req.SystemPrompt,
		Tools:        []responsesWebSearchTool{{Type: "web_search"}},
		Temperature:  req.Temperature,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return Result{}, fmt.Errorf("llm: encode openai responses request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, openAIResponsesURL, bytes.NewReader(payload))
	if err != nil {
		return Result{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+d.OpenAIAPIKey)

	start := time.Now()
	httpResp, err := d.HTTP.Do(httpReq)
	observability.UpstreamDuration.WithLabelValues("llm", statusLabel(err)).Observe(time.Since(start).Seconds())
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues("llm", "error").Inc()
		return Result{}, fmt.Errorf("llm: openai responses request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("llm: read openai responses response: %w", err)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		observability.UpstreamCallsTotal.WithLabelValues("llm", "error").Inc()
		return Result{}, fmt.Errorf("llm: openai responses http %d: %s", httpResp.StatusCode, string(respBody))
	}
	observability.UpstreamCallsTotal.WithLabelValues("llm", "success").Inc()

	var parsed responsesResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return Result{}, fmt.Errorf("llm: decode openai responses response: %w", err)
	}

	text := extractResponsesText(parsed)
	price := d.priceFor(modelID)
	cost := Cost{
		InputTokens:       parsed.Usage.InputTokens,
		CachedInputTokens: parsed.Usage.InputTokensDetails.CachedTokens,
		OutputTokens:      parsed.Usage.OutputTokens,
	}
	cost.USD = ComputeCost(price, cost.InputTokens, cost.CachedInputTokens, cost.OutputTokens)

	return Result{Text: text, Cost: cost}, nil
}

// extractResponsesText coerces the Responses API's output shape into a
// plain string: output_text when present, else the first text-bearing
// output or content item.
func extractResponsesText(parsed responsesResponse) string {
	if parsed.OutputText != "" {
		return parsed.OutputText
	}
	for _, item := range parsed.Output {
		if item.Text != "" {
			return item.Text
		}
		for _, c := range item.Content {
			if c.Text != "" {
				return c.Text
			}
		}
	}
	return ""
}
