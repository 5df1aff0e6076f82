// Package model is the OpenAI-compatible chat completion client. It talks
// to OpenRouter by default and carries the resilience layer (rate limit,
// retry, circuit breaker) so callers only ever see a completed response or
// a classified error.
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/odvcencio/etymon/pkg/schema"
)

// Message is one chat message.
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// JSONSchemaFormat names a schema the model must satisfy.
type JSONSchemaFormat struct {
	Name   string        `json:"name"`
	Strict bool          `json:"strict"`
	Schema schema.Schema `json:"schema"`
}

// ResponseFormat requests structured output.
type ResponseFormat struct {
	Type       string            `json:"type"` // "json_schema"
	JSONSchema *JSONSchemaFormat `json:"json_schema,omitempty"`
}

// StructuredFormat builds the response_format payload for a schema.
func StructuredFormat(name string, s schema.Schema) *ResponseFormat {
	return &ResponseFormat{
		Type:       "json_schema",
		JSONSchema: &JSONSchemaFormat{Name: name, Strict: true, Schema: s},
	}
}

// ChatRequest is a non-streaming chat completion request.
type ChatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

// ChatResponse is a chat completion response.
type ChatResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Choice is one completion choice.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Content returns the first choice's text, or "".
func (r *ChatResponse) Content() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// Usage is token usage for one completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates usage across calls. Every attempt costs money, so retries
// sum rather than replace.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// OnlineVariant returns the web-search-grounded variant of a model ID.
// OpenRouter routes "vendor/model:online" through its search plugin.
func OnlineVariant(modelID string) string {
	if strings.HasSuffix(modelID, ":online") {
		return modelID
	}
	return modelID + ":online"
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// APIError is a structured provider error with retry information.
type APIError struct {
	StatusCode int
	Message    string
	Type       string
	Code       string
	Retryable  bool
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Type != "" || e.Code != "" {
		return fmt.Sprintf("HTTP %d: %s (type: %s, code: %s)", e.StatusCode, e.Message, e.Type, e.Code)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// IsRateLimitError reports whether the provider throttled us.
func (e *APIError) IsRateLimitError() bool {
	return e.StatusCode == 429
}
