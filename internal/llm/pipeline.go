package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"symptom-assistant-server/internal/observability"
)

const conversionInstruction = "Convert the user's text into valid, minified JSON ONLY. No prose, no markdown, no code fences."

// Pipeline obtains a JSON object from the provider. Provider failures are
// retried up to maxAttempts; malformed output is repaired locally and, failing
// that, sent back once for conversion.
type Pipeline struct {
	provider    Completer
	maxAttempts int
	metrics     *observability.Metrics
	logger      zerolog.Logger
}

type Option func(*Pipeline)

func WithMaxAttempts(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

func WithMetrics(m *observability.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

func WithLogger(l zerolog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

func NewPipeline(provider Completer, opts ...Option) *Pipeline {
	p := &Pipeline{provider: provider, maxAttempts: 3, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Provider exposes the underlying completer for plain-text calls.
func (p *Pipeline) Provider() Completer {
	return p.provider
}

// Obtain returns a JSON object or a *FormatError / *UnavailableError.
func (p *Pipeline) Obtain(ctx context.Context, purpose string, build PromptBuilder) (json.RawMessage, error) {
	var lastErr error
	attempts := 0
	for attempts < p.maxAttempts {
		attempts++
		raw, err := p.provider.Complete(ctx, Request{Purpose: purpose, Messages: build()})
		if err != nil {
			lastErr = err
			p.metrics.CompletionAttempt(purpose, "provider_error")
			p.logger.Warn().Err(err).Str("purpose", purpose).Int("attempt", attempts).Msg("completion failed")
			if ctx.Err() != nil {
				break
			}
			continue
		}
		p.metrics.CompletionAttempt(purpose, "ok")
		return p.coerce(ctx, purpose, raw)
	}

	unavailable := &UnavailableError{Attempts: attempts, Err: lastErr}
	var perr *ProviderError
	if errors.As(lastErr, &perr) {
		unavailable.RateLimited = perr.RateLimited
	}
	p.metrics.PipelineResult("unavailable")
	return nil, unavailable
}

// Decode runs Obtain and unmarshals the object into v.
func (p *Pipeline) Decode(ctx context.Context, purpose string, build PromptBuilder, v any) error {
	obj, err := p.Obtain(ctx, purpose, build)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(obj, v); err != nil {
		p.metrics.PipelineResult("format_error")
		return &FormatError{Preview: Preview(string(obj)), Err: fmt.Errorf("decode %s: %w", purpose, err)}
	}
	return nil
}

func (p *Pipeline) coerce(ctx context.Context, purpose, raw string) (json.RawMessage, error) {
	if isBlank(raw) {
		p.metrics.PipelineResult("format_error")
		return nil, &FormatError{Err: ErrEmptyResponse}
	}
	if obj, stage, ok := ParseObject(raw); ok {
		p.metrics.PipelineResult(string(stage))
		return obj, nil
	}

	p.logger.Debug().Str("purpose", purpose).Str("preview", Preview(raw)).Msg("requesting JSON conversion")
	converted, err := p.provider.Complete(ctx, Request{
		Purpose: purpose + "_convert",
		Messages: []Message{
			{Role: RoleSystem, Content: conversionInstruction},
			{Role: RoleUser, Content: raw},
		},
		Deterministic: true,
	})
	if err != nil {
		p.metrics.CompletionAttempt(purpose+"_convert", "provider_error")
		p.metrics.PipelineResult("format_error")
		return nil, &FormatError{Preview: Preview(raw), Err: fmt.Errorf("conversion call: %w", err)}
	}
	p.metrics.CompletionAttempt(purpose+"_convert", "ok")
	if obj, _, ok := ParseObject(converted); ok {
		p.metrics.PipelineResult(string(StageConverted))
		return obj, nil
	}

	p.metrics.PipelineResult("format_error")
	p.logger.Warn().Str("purpose", purpose).Str("preview", Preview(raw)).Msg("model output is not JSON")
	return nil, &FormatError{Preview: Preview(raw), Err: ErrUnparseable}
}

func isBlank(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isSpace(s[i]) {
			return false
		}
	}
	return true
}
