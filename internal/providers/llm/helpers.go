// Package llm adapts remote text-generation services to domain.Generator.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chatgate/internal/domain"
)

const (
	openAIProviderName = "openai"
	geminiProviderName = "gemini"
)

// ProviderError carries the provider and a short machine-readable reason.
// It unwraps to domain.ErrGeneration.
type ProviderError struct {
	Provider string
	Reason   string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Reason, e.Err)
}

func (e *ProviderError) Unwrap() []error {
	return []error{domain.ErrGeneration, e.Err}
}

func generationError(provider, reason string, err error) error {
	return &ProviderError{Provider: provider, Reason: reason, Err: err}
}

// Fallback tries Primary and, when it fails, Secondary.
type Fallback struct {
	Primary    domain.Generator
	Secondary  domain.Generator
	OnFallback func(reason string, err error)
}

func (f *Fallback) Generate(ctx context.Context, req domain.GenerationRequest) (string, error) {
	text, err := f.Primary.Generate(ctx, req)
	if err == nil || f.Secondary == nil || ctx.Err() != nil {
		return text, err
	}
	if f.OnFallback != nil {
		f.OnFallback(reasonOf(err), err)
	}
	return f.Secondary.Generate(ctx, req)
}

func reasonOf(err error) string {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Reason
	}
	return "unknown"
}

func coalesce(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

var _ domain.Generator = (*Fallback)(nil)
