package translate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/api/option"
	gtranslate "google.golang.org/api/translate/v2"
)

var googleCodes = map[string]string{
	"en": "en", "hi": "hi", "ta": "ta", "te": "te", "bn": "bn", "mr": "mr",
	"gu": "gu", "kn": "kn", "ml": "ml", "pa": "pa", "ur": "ur", "or": "or",
	"as": "as", "es": "es", "fr": "fr", "de": "de", "it": "it", "pt": "pt",
	"ru": "ru", "ja": "ja", "ko": "ko", "zh": "zh-CN", "ar": "ar",
}

// Google calls the Cloud Translation v2 (basic) API with an API key.
type Google struct {
	svc     *gtranslate.Service
	timeout time.Duration
}

func NewGoogle(ctx context.Context, apiKey string, timeout time.Duration, opts ...option.ClientOption) (*Google, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("google translate api key required")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	svc, err := gtranslate.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("google translate client: %w", err)
	}
	return &Google{svc: svc, timeout: timeout}, nil
}

func (g *Google) Name() string { return "google" }

func (g *Google) Translate(ctx context.Context, text, target, source string) (string, error) {
	to, err := mapCode(g.Name(), googleCodes, target)
	if err != nil {
		return "", err
	}
	req := &gtranslate.TranslateTextRequest{
		Q:      []string{text},
		Target: to,
		Format: "text",
	}
	if from, err := mapCode(g.Name(), googleCodes, source); err == nil {
		req.Source = from
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	resp, err := g.svc.Translations.Translate(req).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("google translate: %w", err)
	}
	if len(resp.Translations) == 0 || resp.Translations[0] == nil {
		return "", fmt.Errorf("google translate: empty response")
	}
	return resp.Translations[0].TranslatedText, nil
}

func (g *Google) Detect(ctx context.Context, text string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	resp, err := g.svc.Detections.Detect(&gtranslate.DetectLanguageRequest{Q: []string{text}}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("google detect: %w", err)
	}
	if len(resp.Detections) == 0 || len(resp.Detections[0]) == 0 || resp.Detections[0][0] == nil {
		return "", fmt.Errorf("google detect: empty response")
	}
	return resp.Detections[0][0].Language, nil
}
