package ai

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a chat-style prompt.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest describes one completion. Empty Model means the client's
// default model; zero MaxTokens leaves the provider default.
type ChatRequest struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// ChatModel generates a reply for an ordered list of messages.
// All LLM providers (OpenAI-compatible, Gemini, Ollama) implement this interface.
type ChatModel interface {
	Chat(ctx context.Context, req ChatRequest) (string, error)
}

// Options selects and configures a provider for NewChatModel.
type Options struct {
	Provider string
	BaseURL  string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// NewChatModel builds the ChatModel named by opts.Provider:
// "openai" (default), "gemini" or "ollama".
func NewChatModel(opts Options) (ChatModel, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Provider)) {
	case "", "openai", "openai-compat":
		return NewOpenAICompatClient(opts.BaseURL, opts.APIKey, opts.Model, opts.Timeout), nil
	case "gemini":
		client, err := NewGeminiClient(opts.APIKey, opts.Model, opts.Timeout)
		if err != nil {
			return nil, err
		}
		return client, nil
	case "ollama":
		return NewOllamaClient(opts.BaseURL, opts.Model, opts.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown generation provider %q", opts.Provider)
	}
}
