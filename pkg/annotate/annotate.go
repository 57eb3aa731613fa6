// Package annotate asks a generative model for patient-facing annotations
// of a medical report: an explanation, health tips, key findings and
// conversational answers.
//
// Every operation is fail-soft. Provider errors come back as a result with
// Fallback set and a fixed apology (or an empty findings list) as the value.
package annotate

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"medexplain/pkg/ai"
	"medexplain/pkg/domain"
	"medexplain/pkg/lang"
)

const (
	// HistoryLimit bounds the number of prior turns sent with Converse.
	HistoryLimit = 10

	ExplainApology = "I apologize, but I'm unable to analyze this report at the moment. " +
		"Please try again later or consult with your healthcare provider."
	HealthTipsApology = "I'm unable to generate health tips at the moment. " +
		"Please consult with your healthcare provider for personalized advice."
	ConverseApology = "I apologize, but I'm experiencing technical difficulties. " +
		"Please try again later or consult with your healthcare provider."

	noReportContext = "No specific medical report provided. Provide general health guidance."
)

// Text is a generated answer or its fallback.
type Text struct {
	Value    string
	Fallback bool
	Err      error
}

// Findings is a parsed key-findings list. Items is never nil.
type Findings struct {
	Items    []string
	Fallback bool
	Err      error
}

// Profile is the model and sampling setup for one kind of call.
type Profile struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

type Config struct {
	Explain    Profile
	HealthTips Profile
	Converse   Profile
	Findings   Profile
	Logger     *slog.Logger
}

// DefaultConfig returns the call profiles used in production. generalModel
// serves explanations, tips and chat; extractionModel serves key findings
// and falls back to generalModel. An empty model lets the client use its
// own default.
func DefaultConfig(generalModel, extractionModel string) Config {
	generalModel = strings.TrimSpace(generalModel)
	extractionModel = strings.TrimSpace(extractionModel)
	if extractionModel == "" {
		extractionModel = generalModel
	}
	return Config{
		Explain:    Profile{Model: generalModel, Temperature: 0.3, MaxTokens: 1500},
		HealthTips: Profile{Model: generalModel, Temperature: 0.4, MaxTokens: 1000},
		Converse:   Profile{Model: generalModel, Temperature: 0.3, MaxTokens: 800},
		Findings:   Profile{Model: extractionModel, Temperature: 0.2, MaxTokens: 500},
	}
}

type Annotator struct {
	model  ai.ChatModel
	cfg    Config
	logger *slog.Logger
}

func New(model ai.ChatModel, cfg Config) *Annotator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Annotator{model: model, cfg: cfg, logger: logger}
}

// Explain produces a plain-language explanation of a report in code's language.
func (a *Annotator) Explain(ctx context.Context, text, code string) Text {
	name := lang.Name(code)
	out, err := a.complete(ctx, "explain", a.cfg.Explain, []ai.Message{
		{Role: ai.RoleSystem, Content: explainSystem},
		{Role: ai.RoleUser, Content: fmt.Sprintf(explainPrompt, name, text, name)},
	})
	if err != nil {
		return Text{Value: ExplainApology, Fallback: true, Err: err}
	}
	return Text{Value: out}
}

// HealthTips produces practical advice grounded in a report.
func (a *Annotator) HealthTips(ctx context.Context, text, code string) Text {
	name := lang.Name(code)
	out, err := a.complete(ctx, "health_tips", a.cfg.HealthTips, []ai.Message{
		{Role: ai.RoleSystem, Content: healthTipsSystem},
		{Role: ai.RoleUser, Content: fmt.Sprintf(healthTipsPrompt, text, name, name)},
	})
	if err != nil {
		return Text{Value: HealthTipsApology, Fallback: true, Err: err}
	}
	return Text{Value: out}
}

// KeyFindings lists the report's notable values and observations.
func (a *Annotator) KeyFindings(ctx context.Context, text string) Findings {
	out, err := a.complete(ctx, "key_findings", a.cfg.Findings, []ai.Message{
		{Role: ai.RoleSystem, Content: findingsSystem},
		{Role: ai.RoleUser, Content: fmt.Sprintf(findingsPrompt, text)},
	})
	if err != nil {
		return Findings{Items: []string{}, Fallback: true, Err: err}
	}
	return Findings{Items: ParseFindings(out)}
}

// Converse answers message in the context of a report. contextText may be
// empty for general questions. Only the last HistoryLimit turns of history
// are sent, oldest first.
func (a *Annotator) Converse(ctx context.Context, message, contextText string, history []domain.ChatMessage, code string) Text {
	out, err := a.complete(ctx, "converse", a.cfg.Converse, ConversationMessages(message, contextText, history, code))
	if err != nil {
		return Text{Value: ConverseApology, Fallback: true, Err: err}
	}
	return Text{Value: out}
}

// ConversationMessages builds the prompt sent by Converse.
func ConversationMessages(message, contextText string, history []domain.ChatMessage, code string) []ai.Message {
	if strings.TrimSpace(contextText) == "" {
		contextText = noReportContext
	}
	if len(history) > HistoryLimit {
		history = history[len(history)-HistoryLimit:]
	}
	msgs := make([]ai.Message, 0, len(history)+2)
	msgs = append(msgs, ai.Message{
		Role:    ai.RoleSystem,
		Content: fmt.Sprintf(converseSystem, contextText, lang.Name(code)),
	})
	for _, h := range history {
		role := ai.RoleUser
		if h.Sender == domain.SenderAI {
			role = ai.RoleAssistant
		}
		msgs = append(msgs, ai.Message{Role: role, Content: h.Text})
	}
	return append(msgs, ai.Message{Role: ai.RoleUser, Content: message})
}

func (a *Annotator) complete(ctx context.Context, op string, p Profile, msgs []ai.Message) (string, error) {
	if a.model == nil {
		return "", fmt.Errorf("%s: no generation provider configured", op)
	}
	out, err := a.model.Chat(ctx, ai.ChatRequest{
		Model:       p.Model,
		Messages:    msgs,
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
	})
	if err == nil && strings.TrimSpace(out) == "" {
		err = fmt.Errorf("%s: empty response", op)
	}
	if err != nil {
		a.logger.Warn("annotation failed", "operation", op, "model", p.Model, "error", err)
		return "", err
	}
	return strings.TrimSpace(out), nil
}

var numberedMarker = regexp.MustCompile(`^\d+[.)]\s+`)

// ParseFindings splits a model response into findings, one per line,
// stripping bullet markers and dropping blank lines.
func ParseFindings(raw string) []string {
	items := []string{}
	for _, line := range strings.Split(raw, "\n") {
		item := strings.TrimSpace(line)
		item = strings.TrimLeft(item, "-*•· \t")
		item = numberedMarker.ReplaceAllString(item, "")
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		items = append(items, item)
	}
	return items
}
