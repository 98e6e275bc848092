// Package llm abstracts chat-completion providers behind a single Client
// with strategy-driven selection, transparent failover, and bounded retries.
// Providers are raw HTTP drivers; no vendor SDKs.
package llm

import "context"

// ChatMessage is one turn of a completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is a provider-independent chat completion request.
type CompletionRequest struct {
	Messages    []ChatMessage
	Model       string  // empty = provider default
	MaxTokens   int     // 0 = provider default
	Temperature float64 // 0 is a valid value; providers treat it literally
}

// TokenUsage reports token consumption for one completion.
type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens"`
}

// Completion is a provider-independent chat completion response.
type Completion struct {
	Provider  string     `json:"provider"`
	Model     string     `json:"model"`
	Content   string     `json:"content"`
	Usage     TokenUsage `json:"usage"`
	LatencyMs int64      `json:"latency_ms"`
}

// Provider is one backing model endpoint.
type Provider interface {
	// Name identifies the provider in logs, metrics, and errors.
	Name() string

	// Complete performs one chat completion. Failures are returned as
	// *Error with a classified code.
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

// Strategy selects the order in which providers are tried.
type Strategy string

const (
	// StrategyFallback tries providers in configured order.
	StrategyFallback Strategy = "fallback"
	// StrategyLatency tries the provider with the lowest rolling average
	// latency first.
	StrategyLatency Strategy = "latency"
	// StrategyRoundRobin rotates the starting provider per call.
	StrategyRoundRobin Strategy = "round-robin"
)
