// Package translate translates report text through an ordered chain of
// providers, falling through to the next one on any failure.
package translate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"medexplain/pkg/lang"
)

// AutoDetect asks providers to detect the source language.
const AutoDetect = "auto"

var (
	ErrProviderUnavailable = errors.New("no translation provider available")
	ErrUnsupportedLanguage = errors.New("language not supported by provider")
)

// Provider is one translation backend. target and source are canonical
// codes from pkg/lang; source is empty when it should be detected.
type Provider interface {
	Name() string
	Translate(ctx context.Context, text, target, source string) (string, error)
}

// Detector is implemented by providers that can detect a text's language.
type Detector interface {
	Detect(ctx context.Context, text string) (string, error)
}

// Translation is the outcome of Translator.Translate. When every provider
// failed, Fallback is set, Text holds the input unchanged and Err the last
// provider error.
type Translation struct {
	Text     string
	Provider string
	Fallback bool
	Err      error
}

type Translator struct {
	providers []Provider
	logger    *slog.Logger
}

// New builds a Translator trying providers in the given order. Nil
// providers are skipped, so callers can pass unconfigured slots directly.
func New(logger *slog.Logger, providers ...Provider) *Translator {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Translator{logger: logger}
	for _, p := range providers {
		if p == nil || isNilProvider(p) {
			continue
		}
		t.providers = append(t.providers, p)
	}
	return t
}

// Providers lists the configured provider names in priority order.
func (t *Translator) Providers() []string {
	names := make([]string, 0, len(t.providers))
	for _, p := range t.providers {
		names = append(names, p.Name())
	}
	return names
}

func (t *Translator) Translate(ctx context.Context, text, target, source string) Translation {
	if strings.TrimSpace(text) == "" {
		return Translation{Text: text}
	}
	target = lang.Canonical(target)
	source = normalizeSource(source)

	lastErr := ErrProviderUnavailable
	for _, p := range t.providers {
		out, err := p.Translate(ctx, text, target, source)
		if err == nil && strings.TrimSpace(out) == "" {
			err = fmt.Errorf("%s: empty translation", p.Name())
		}
		if err == nil {
			return Translation{Text: out, Provider: p.Name()}
		}
		t.logger.Warn("translation provider failed", "provider", p.Name(), "target", target, "error", err)
		lastErr = err
	}
	return Translation{Text: text, Fallback: true, Err: lastErr}
}

// Detect returns the detected canonical language code, or lang.Default
// when no provider can tell.
func (t *Translator) Detect(ctx context.Context, text string) string {
	if strings.TrimSpace(text) == "" {
		return lang.Default
	}
	for _, p := range t.providers {
		d, ok := p.(Detector)
		if !ok {
			continue
		}
		code, err := d.Detect(ctx, text)
		if err != nil {
			t.logger.Warn("language detection failed", "provider", p.Name(), "error", err)
			continue
		}
		if c := lang.Canonical(code); c != "" && c != "und" {
			return c
		}
	}
	return lang.Default
}

func normalizeSource(source string) string {
	source = strings.TrimSpace(source)
	if source == "" || strings.EqualFold(source, AutoDetect) {
		return ""
	}
	return lang.Canonical(source)
}

// mapCode looks code up in a provider vocabulary.
func mapCode(provider string, codes map[string]string, code string) (string, error) {
	if mapped, ok := codes[code]; ok {
		return mapped, nil
	}
	return "", fmt.Errorf("%s: %w: %q", provider, ErrUnsupportedLanguage, code)
}

func isNilProvider(p Provider) bool {
	switch v := p.(type) {
	case *Google:
		return v == nil
	case *Azure:
		return v == nil
	case *DeepL:
		return v == nil
	}
	return false
}
