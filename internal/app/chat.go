package app

import (
	"context"
	"fmt"
	"strings"

	"medexplain/internal/util"
	"medexplain/pkg/annotate"
	"medexplain/pkg/domain"
	"medexplain/pkg/lang"
)

// GeneralScope names the conversation not tied to any report.
const GeneralScope = "general"

// ChatTurn is one exchanged pair of messages.
type ChatTurn struct {
	UserMessage domain.ChatMessage `json:"userMessage"`
	AIResponse  domain.ChatMessage `json:"aiResponse"`
}

// SendMessage records the user's message, asks the annotator for an answer
// in the context of the report (if any) and records the answer. The answer
// is stored even when it is the fallback apology.
func (a *App) SendMessage(ctx context.Context, owner domain.User, reportID, message, language string) (ChatTurn, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return ChatTurn{}, invalid("message is required")
	}
	reportID = strings.TrimSpace(reportID)
	code := lang.Normalize(owner.PreferredLanguage)
	if strings.TrimSpace(language) != "" {
		if !lang.IsSupported(language) {
			return ChatTurn{}, invalid("unsupported language %q", language)
		}
		code = lang.Canonical(language)
	}

	var contextText string
	if reportID != "" {
		report, err := a.ownedReport(owner, reportID)
		if err != nil {
			return ChatTurn{}, err
		}
		contextText = report.AnnotationSource()
	}

	userMsg := domain.ChatMessage{
		ID:        util.NewID(),
		OwnerID:   owner.ID,
		ReportID:  reportID,
		Sender:    domain.SenderUser,
		Text:      message,
		CreatedAt: a.chatTime(),
	}
	if err := a.store.AppendMessage(userMsg); err != nil {
		return ChatTurn{}, fmt.Errorf("save user message: %w", err)
	}

	// One extra row covers the message just written.
	recent, err := a.store.ListMessages(owner.ID, reportID, annotate.HistoryLimit+1)
	if err != nil {
		return ChatTurn{}, fmt.Errorf("load history: %w", err)
	}
	history := make([]domain.ChatMessage, 0, len(recent))
	for _, m := range recent {
		if m.ID != userMsg.ID {
			history = append(history, m)
		}
	}
	if len(history) > annotate.HistoryLimit {
		history = history[len(history)-annotate.HistoryLimit:]
	}

	ctx = context.WithoutCancel(ctx)
	reply := a.annotator.Converse(ctx, message, contextText, history, code)
	if reply.Fallback {
		a.logger.Warn("chat answered with fallback", "report_id", reportID, "error", reply.Err)
	}
	aiMsg := domain.ChatMessage{
		ID:        util.NewID(),
		OwnerID:   owner.ID,
		ReportID:  reportID,
		Sender:    domain.SenderAI,
		Text:      reply.Value,
		Fallback:  reply.Fallback,
		CreatedAt: a.chatTime(),
	}
	if err := a.store.AppendMessage(aiMsg); err != nil {
		return ChatTurn{}, fmt.Errorf("save ai message: %w", err)
	}
	return ChatTurn{UserMessage: userMsg, AIResponse: aiMsg}, nil
}

// ChatHistory returns a report's conversation in chronological order.
func (a *App) ChatHistory(owner domain.User, reportID string) ([]domain.ChatMessage, domain.Report, error) {
	report, err := a.ownedReport(owner, reportID)
	if err != nil {
		return nil, domain.Report{}, err
	}
	msgs, err := a.store.ListMessages(owner.ID, report.ID, 0)
	if err != nil {
		return nil, domain.Report{}, fmt.Errorf("list messages: %w", err)
	}
	return msgs, report, nil
}

// AllChatHistory groups every message of the user by report ID, using
// GeneralScope for messages without a report.
func (a *App) AllChatHistory(owner domain.User) (map[string][]domain.ChatMessage, error) {
	msgs, err := a.store.ListMessagesByOwner(owner.ID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	grouped := make(map[string][]domain.ChatMessage)
	for _, m := range msgs {
		key := m.ReportID
		if key == "" {
			key = GeneralScope
		}
		grouped[key] = append(grouped[key], m)
	}
	return grouped, nil
}

// ClearChat deletes one conversation. reportID GeneralScope clears the
// general conversation.
func (a *App) ClearChat(owner domain.User, reportID string) error {
	scope := ""
	if reportID != GeneralScope {
		report, err := a.ownedReport(owner, reportID)
		if err != nil {
			return err
		}
		scope = report.ID
	}
	if err := a.store.DeleteMessages(owner.ID, scope); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	return nil
}

// DeleteMessage removes a single message owned by the user.
func (a *App) DeleteMessage(owner domain.User, id string) error {
	msg, ok, err := a.store.GetMessage(id)
	if err != nil {
		return fmt.Errorf("load message: %w", err)
	}
	if !ok || msg.OwnerID != owner.ID {
		return ErrNotFound
	}
	if err := a.store.DeleteMessage(id); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}
