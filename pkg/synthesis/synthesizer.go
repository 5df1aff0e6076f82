// Package synthesis turns a research context into a validated
// EtymologyResult via one structured model completion, with bounded
// retries for malformed output.
package synthesis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/odvcencio/etymon/pkg/config"
	etymerrors "github.com/odvcencio/etymon/pkg/errors"
	"github.com/odvcencio/etymon/pkg/etym"
	"github.com/odvcencio/etymon/pkg/logging"
	"github.com/odvcencio/etymon/pkg/model"
	"github.com/odvcencio/etymon/pkg/research"
	"github.com/odvcencio/etymon/pkg/schema"
	"github.com/odvcencio/etymon/pkg/telemetry"
)

type chatClient interface {
	ChatCompletion(ctx context.Context, req model.ChatRequest) (*model.ChatResponse, error)
}

// Synthesizer produces the final result from researched material.
type Synthesizer struct {
	client  chatClient
	cfg     config.ModelConfig
	log     *logging.Logger
	metrics *telemetry.Registry
}

// New creates a Synthesizer.
func New(client chatClient, cfg config.ModelConfig, log *logging.Logger, metrics *telemetry.Registry) *Synthesizer {
	return &Synthesizer{client: client, cfg: cfg, log: log, metrics: metrics}
}

// Synthesize asks the model for a schema-conforming etymology. Malformed
// output is retried with the violations fed back; the final retry routes
// through the web-search variant for extra grounding. Usage accumulates
// across every attempt and is returned even on failure, because failed
// attempts cost money too.
func (s *Synthesizer) Synthesize(ctx context.Context, rc *research.Context) (*etym.EtymologyResult, model.Usage, error) {
	var usage model.Usage

	messages := []model.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: buildPrompt(rc)},
	}
	s.log.Info(logging.CategorySynthesis, "prompt_built", "",
		map[string]any{"word": rc.Word, "estimated_tokens": model.CountMessageTokens(messages)})

	attempts := s.cfg.SynthesisRetries + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, usage, etymerrors.Wrap(err, etymerrors.ErrCodeMalformedModelOutput, "synthesis interrupted")
		}
		modelID := s.cfg.SynthesisModel
		if attempt == attempts-1 && attempt > 0 {
			modelID = model.OnlineVariant(modelID)
		}
		if attempt > 0 {
			s.metrics.Counter(telemetry.MetricSynthesisRetries, nil).Inc()
			s.log.Warn(logging.CategorySynthesis, "retry", lastErr.Error(),
				map[string]any{"word": rc.Word, "attempt": attempt, "model": modelID})
		}

		resp, err := s.client.ChatCompletion(ctx, model.ChatRequest{
			Model:          modelID,
			Messages:       messages,
			Temperature:    0.3,
			MaxTokens:      4096,
			ResponseFormat: model.StructuredFormat("etymology_result", ResultSchema()),
		})
		if err != nil {
			return nil, usage, err
		}
		usage.Add(resp.Usage)

		result, parseErr := s.parseResult(rc.Word, resp.Content())
		if parseErr == nil {
			return result, usage, nil
		}
		lastErr = parseErr

		// Feed the violations back so the next attempt can fix them.
		messages = append(messages,
			model.Message{Role: "assistant", Content: resp.Content()},
			model.Message{Role: "user", Content: fmt.Sprintf(
				"Your previous answer was rejected: %v. Respond again with a single corrected JSON object.", parseErr)},
		)
	}

	return nil, usage, etymerrors.Wrap(lastErr, etymerrors.ErrCodeMalformedModelOutput,
		fmt.Sprintf("synthesis failed after %d attempts", attempts))
}

// parseResult extracts, sanitizes, schema-checks, and decodes one model
// response.
func (s *Synthesizer) parseResult(word, content string) (*etym.EtymologyResult, error) {
	jsonStr, err := extractJSON(content)
	if err != nil {
		return nil, err
	}

	var raw any
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if err := schema.Validate(raw, ResultSchema()); err != nil {
		return nil, err
	}

	var result etym.EtymologyResult
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}

	// The word field is ours, not the model's.
	result.Word = word
	result.Suggestions = cleanSuggestions(result.Suggestions, word)
	return &result, nil
}

// cleanSuggestions strips the decorations models append to suggested words
// and drops anything that still isn't a bare word.
func cleanSuggestions(raw []string, word string) []string {
	var out []string
	seen := map[string]bool{word: true}
	for _, s := range raw {
		cleaned := cleanSuggestion(s)
		if cleaned == "" || seen[cleaned] {
			continue
		}
		seen[cleaned] = true
		out = append(out, cleaned)
	}
	return out
}

func cleanSuggestion(s string) string {
	// "telegraph (related)", "telegraph - a device", "telegraph: from tele"
	for _, sep := range []string{"(", " - ", ":", ","} {
		if i := strings.Index(s, sep); i >= 0 {
			s = s[:i]
		}
	}
	s = strings.ToLower(strings.TrimSpace(s))
	for _, r := range s {
		if !isWordRune(r) {
			return ""
		}
	}
	return s
}

func isWordRune(r rune) bool {
	return r == '-' || r == '\'' || (r >= 'a' && r <= 'z') || r > 127
}
