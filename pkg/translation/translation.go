// Package translation implements the orchestrator's translation pre-step
// (spec §4.1): detect a non-English query and translate it via a
// pluggable provider chain (primary → secondary → verbatim passthrough).
//
// The translate-via-prompt-template approach is grounded on the teacher
// pack's Tangerg-lynx/ai/rag TranslationQueryTransformer, which prompts a
// chat model to translate-or-pass-through a query; Provider here plays
// the same role but returns the detected source language alongside the
// translated text, which the orchestrator records as the query's language.
// Answers are not translated back.
package translation

import (
	"context"
	"fmt"
	"unicode"
)

// Provider translates text to dst, reporting the language it detected the
// source to be in (best-effort; "" if unknown). src is an optional hint.
type Provider interface {
	Translate(ctx context.Context, text, src, dst string) (translated, detectedSrc string, err error)
}

// Chain tries each provider in order, falling back to the next on error,
// and finally to verbatim passthrough if every provider fails.
type Chain struct {
	Providers []Provider
}

// Translate runs the fallback chain. Passthrough never errors: the
// original text is always a valid result.
func (c *Chain) Translate(ctx context.Context, text, srcHint, dst string) (translated, detectedSrc string) {
	for _, p := range c.Providers {
		if p == nil {
			continue
		}
		out, detected, err := p.Translate(ctx, text, srcHint, dst)
		if err == nil && out != "" {
			return out, detected
		}
	}
	return text, srcHint
}

// NeedsTranslation reports whether text likely isn't English, per spec
// §4.1: any character above U+00FF, or a script outside Latin/common.
func NeedsTranslation(text string) bool {
	for _, r := range text {
		if r > 0x00FF {
			return true
		}
		if !isLatinOrCommon(r) {
			return true
		}
	}
	return false
}

func isLatinOrCommon(r rune) bool {
	if unicode.Is(unicode.Latin, r) {
		return true
	}
	if unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsDigit(r) || unicode.IsSymbol(r) {
		return true
	}
	return false
}

// llmProvider is grounded on the teacher pack's translate-via-prompt
// pattern: ask the model to translate, or return the text unchanged if
// it's already in the target language or the source is unknown.
type llmProvider struct {
	generate func(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// NewLLMProvider wraps a text-generation function (typically
// internal/llmclient.Client.Generate, narrowed to avoid an import cycle)
// as a translation Provider.
func NewLLMProvider(generate func(ctx context.Context, prompt string, maxTokens int) (string, error)) Provider {
	return &llmProvider{generate: generate}
}

func (p *llmProvider) Translate(ctx context.Context, text, src, dst string) (string, string, error) {
	prompt := fmt.Sprintf(
		"Translate the following text to %s. If it is already in %s, return it unchanged. "+
			"Do not add explanations.\n\nText: %s\n\nTranslation:",
		dst, dst, text,
	)
	out, err := p.generate(ctx, prompt, 512)
	if err != nil {
		return "", "", err
	}
	if out == "" {
		return "", "", fmt.Errorf("translation: empty response")
	}
	return out, src, nil
}
