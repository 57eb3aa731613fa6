package app

import (
	"context"
	"strings"

	"medexplain/pkg/domain"
	"medexplain/pkg/lang"
	"medexplain/pkg/translate"
)

// TranslationResult is returned by Translate.
type TranslationResult struct {
	OriginalText   string `json:"originalText"`
	TranslatedText string `json:"translatedText"`
	SourceLanguage string `json:"sourceLanguage"`
	TargetLanguage string `json:"targetLanguage"`
	Provider       string `json:"provider,omitempty"`
	Fallback       bool   `json:"fallback,omitempty"`
}

// Analysis bundles translation and all three annotations of ad-hoc text.
type Analysis struct {
	OriginalContent   string   `json:"originalContent"`
	TranslatedContent *string  `json:"translatedContent"`
	Explanation       string   `json:"explanation"`
	HealthTips        string   `json:"healthTips"`
	KeyFindings       []string `json:"keyFindings"`
	Language          string   `json:"language"`
}

// Translate translates free text. An empty or "auto" source is detected.
func (a *App) Translate(ctx context.Context, text, target, source string) (TranslationResult, error) {
	if strings.TrimSpace(text) == "" {
		return TranslationResult{}, invalid("text is required")
	}
	target = strings.TrimSpace(target)
	if target == "" {
		target = lang.Default
	}
	if !lang.IsSupported(target) {
		return TranslationResult{}, invalid("unsupported language %q", target)
	}
	target = lang.Canonical(target)
	source = strings.TrimSpace(source)
	if source == "" {
		source = translate.AutoDetect
	}

	tr := a.translator.Translate(ctx, text, target, source)
	if source == translate.AutoDetect {
		source = a.translator.Detect(ctx, text)
	}
	return TranslationResult{
		OriginalText:   text,
		TranslatedText: tr.Text,
		SourceLanguage: source,
		TargetLanguage: target,
		Provider:       tr.Provider,
		Fallback:       tr.Fallback,
	}, nil
}

// Explain explains ad-hoc report text.
func (a *App) Explain(ctx context.Context, user domain.User, content, language string) (string, string, error) {
	code, err := a.contentLanguage(user, content, language)
	if err != nil {
		return "", "", err
	}
	return a.annotator.Explain(ctx, content, code).Value, code, nil
}

// HealthTips generates tips for ad-hoc report text.
func (a *App) HealthTips(ctx context.Context, user domain.User, content, language string) (string, string, error) {
	code, err := a.contentLanguage(user, content, language)
	if err != nil {
		return "", "", err
	}
	return a.annotator.HealthTips(ctx, content, code).Value, code, nil
}

// KeyFindings lists findings of ad-hoc report text.
func (a *App) KeyFindings(ctx context.Context, content string) ([]string, error) {
	if strings.TrimSpace(content) == "" {
		return nil, invalid("content is required")
	}
	items := a.annotator.KeyFindings(ctx, content).Items
	if items == nil {
		items = []string{}
	}
	return items, nil
}

// Analyze translates content when needed and runs every annotation on it,
// without storing anything.
func (a *App) Analyze(ctx context.Context, user domain.User, content, language string) (Analysis, error) {
	code, err := a.contentLanguage(user, content, language)
	if err != nil {
		return Analysis{}, err
	}
	out := Analysis{OriginalContent: content, Language: code}
	source := content
	if code != lang.Default {
		tr := a.translator.Translate(ctx, content, code, translate.AutoDetect)
		source = tr.Text
		out.TranslatedContent = &source
	}
	out.Explanation = a.annotator.Explain(ctx, source, code).Value
	out.HealthTips = a.annotator.HealthTips(ctx, source, code).Value
	out.KeyFindings = a.annotator.KeyFindings(ctx, source).Items
	if out.KeyFindings == nil {
		out.KeyFindings = []string{}
	}
	return out, nil
}

func (a *App) contentLanguage(user domain.User, content, language string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", invalid("content is required")
	}
	return a.targetLanguage(user, language)
}
