package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultHTTPTimeout = 120 * time.Second

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: defaultHTTPTimeout}
}

// wrapTransportError classifies a failed http.Client.Do call.
func wrapTransportError(provider string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(ErrTimeout, provider, "request timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return newError(ErrTimeout, provider, "request canceled", err)
	}
	return newError(ErrNetwork, provider, "request failed", err)
}

// ── OpenAI / Azure OpenAI ───────────────────────────────────

type openAIRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type openAIResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage"`
}

// OpenAIProvider drives the OpenAI chat completions API, and any
// OpenAI-compatible endpoint. Azure switches the auth header.
type OpenAIProvider struct {
	name         string
	endpoint     string
	apiKey       string
	defaultModel string
	azure        bool
	client       *http.Client
}

// NewOpenAIProvider creates a driver for api.openai.com or a compatible
// endpoint. An empty endpoint uses the public API.
func NewOpenAIProvider(name, endpoint, apiKey, defaultModel string) *OpenAIProvider {
	if endpoint == "" {
		endpoint = "https://api.openai.com/v1"
	}
	if defaultModel == "" {
		defaultModel = "gpt-4o-mini"
	}
	return &OpenAIProvider{
		name:         name,
		endpoint:     endpoint,
		apiKey:       apiKey,
		defaultModel: defaultModel,
		client:       newHTTPClient(),
	}
}

// NewAzureOpenAIProvider creates a driver for an Azure OpenAI deployment.
func NewAzureOpenAIProvider(name, endpoint, apiKey, defaultModel string) *OpenAIProvider {
	p := NewOpenAIProvider(name, endpoint, apiKey, defaultModel)
	p.azure = true
	return p
}

func (p *OpenAIProvider) Name() string { return p.name }

func (p *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	if p.apiKey == "" {
		return nil, newError(ErrProviderUnauthorized, p.name, "api key not configured", nil)
	}

	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	body, err := json.Marshal(openAIRequest{
		Model:       model,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, newError(ErrInvalidRequest, p.name, "encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, newError(ErrInvalidRequest, p.name, "create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.azure {
		httpReq.Header.Set("api-key", p.apiKey)
	} else {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, wrapTransportError(p.name, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		return nil, newError(classifyStatus(httpResp.StatusCode, respBody), p.name,
			fmt.Sprintf("status %d: %s", httpResp.StatusCode, string(respBody)), nil)
	}

	var oaiResp openAIResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&oaiResp); err != nil {
		return nil, newError(ErrResponseMalformed, p.name, "decode response", err)
	}
	if len(oaiResp.Choices) == 0 {
		return nil, newError(ErrResponseMalformed, p.name, "response has no choices", nil)
	}
	if oaiResp.Choices[0].FinishReason == "content_filter" {
		return nil, newError(ErrContentFiltered, p.name, "completion blocked by content filter", nil)
	}

	return &Completion{
		Provider: p.name,
		Model:    model,
		Content:  oaiResp.Choices[0].Message.Content,
		Usage: TokenUsage{
			InputTokens:  oaiResp.Usage.PromptTokens,
			OutputTokens: oaiResp.Usage.CompletionTokens,
			TotalTokens:  oaiResp.Usage.TotalTokens,
		},
	}, nil
}

// ── Anthropic ───────────────────────────────────────────────

type anthropicRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	System      string        `json:"system,omitempty"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type anthropicResponse struct {
	ID      string `json:"id"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
}

// AnthropicProvider drives the Anthropic Messages API.
type AnthropicProvider struct {
	name         string
	endpoint     string
	apiKey       string
	defaultModel string
	client       *http.Client
}

func NewAnthropicProvider(name, endpoint, apiKey, defaultModel string) *AnthropicProvider {
	if endpoint == "" {
		endpoint = "https://api.anthropic.com"
	}
	if defaultModel == "" {
		defaultModel = "claude-3-5-haiku-20241022"
	}
	return &AnthropicProvider{
		name:         name,
		endpoint:     endpoint,
		apiKey:       apiKey,
		defaultModel: defaultModel,
		client:       newHTTPClient(),
	}
}

func (p *AnthropicProvider) Name() string { return p.name }

func (p *AnthropicProvider) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	if p.apiKey == "" {
		return nil, newError(ErrProviderUnauthorized, p.name, "api key not configured", nil)
	}

	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	// The Messages API takes the system prompt out of band.
	system := ""
	messages := make([]ChatMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == "system" {
			system = m.Content
			continue
		}
		messages = append(messages, m)
	}

	body, err := json.Marshal(anthropicRequest{
		Model:       model,
		Messages:    messages,
		System:      system,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, newError(ErrInvalidRequest, p.name, "encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, newError(ErrInvalidRequest, p.name, "create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, wrapTransportError(p.name, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		return nil, newError(classifyStatus(httpResp.StatusCode, respBody), p.name,
			fmt.Sprintf("status %d: %s", httpResp.StatusCode, string(respBody)), nil)
	}

	var anthResp anthropicResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&anthResp); err != nil {
		return nil, newError(ErrResponseMalformed, p.name, "decode response", err)
	}

	content := ""
	for _, c := range anthResp.Content {
		if c.Type == "text" {
			content += c.Text
		}
	}

	return &Completion{
		Provider: p.name,
		Model:    model,
		Content:  content,
		Usage: TokenUsage{
			InputTokens:  anthResp.Usage.InputTokens,
			OutputTokens: anthResp.Usage.OutputTokens,
			TotalTokens:  anthResp.Usage.InputTokens + anthResp.Usage.OutputTokens,
		},
	}, nil
}

// ── Ollama ──────────────────────────────────────────────────

// OllamaProvider drives a local Ollama instance through its
// OpenAI-compatible endpoint. No authentication.
type OllamaProvider struct {
	name         string
	endpoint     string
	defaultModel string
	client       *http.Client
}

func NewOllamaProvider(name, endpoint, defaultModel string) *OllamaProvider {
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	if defaultModel == "" {
		defaultModel = "llama3.1"
	}
	return &OllamaProvider{
		name:         name,
		endpoint:     endpoint,
		defaultModel: defaultModel,
		client:       newHTTPClient(),
	}
}

func (p *OllamaProvider) Name() string { return p.name }

func (p *OllamaProvider) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	body, err := json.Marshal(openAIRequest{
		Model:       model,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, newError(ErrInvalidRequest, p.name, "encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, newError(ErrInvalidRequest, p.name, "create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, wrapTransportError(p.name, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		return nil, newError(classifyStatus(httpResp.StatusCode, respBody), p.name,
			fmt.Sprintf("status %d: %s", httpResp.StatusCode, string(respBody)), nil)
	}

	var oaiResp openAIResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&oaiResp); err != nil {
		return nil, newError(ErrResponseMalformed, p.name, "decode response", err)
	}
	if len(oaiResp.Choices) == 0 {
		return nil, newError(ErrResponseMalformed, p.name, "response has no choices", nil)
	}

	return &Completion{
		Provider: p.name,
		Model:    model,
		Content:  oaiResp.Choices[0].Message.Content,
		Usage: TokenUsage{
			InputTokens:  oaiResp.Usage.PromptTokens,
			OutputTokens: oaiResp.Usage.CompletionTokens,
			TotalTokens:  oaiResp.Usage.TotalTokens,
		},
	}, nil
}
