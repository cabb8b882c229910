// Package assistant provides the in-app health chat backed by an
// OpenAI-compatible completion API.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"sync"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"vitalscan/core"
	"vitalscan/logging"
)

// ErrNotConfigured indicates no API key was provided; the chat flow is
// optional and unavailable without one.
var ErrNotConfigured = errors.New("assistant: API key not configured")

// defaultModel is used when ASSISTANT_MODEL is unset.
const defaultModel = "gpt-4o-mini"

// systemPrompt frames every conversation. The assistant explains scan
// results and general nutrition; it must not diagnose.
const systemPrompt = `You are a friendly health companion inside a wellness scanning app. ` +
	`Users share heart-rate measurements, food scans, and questions about general wellness. ` +
	`Explain results in plain language and encourage healthy habits. ` +
	`You are not a medical professional: never diagnose, and advise seeing a doctor for anything concerning.`

// Client wraps the chat completion backend.
type Client struct {
	api   *openai.Client
	model string
	log   *logging.Logger
}

// NewClient builds an assistant client from the application configuration.
// A custom base URL points the same client at any OpenAI-compatible server.
func NewClient(cfg *core.Config, log *logging.Logger) (*Client, error) {
	if cfg.AssistantAPIKey == "" {
		return nil, ErrNotConfigured
	}
	if log == nil {
		log = logging.Nop()
	}

	apiConfig := openai.DefaultConfig(cfg.AssistantAPIKey)
	if cfg.AssistantBaseURL != "" {
		apiConfig.BaseURL = cfg.AssistantBaseURL
	}
	apiConfig.HTTPClient = core.GetHTTPClient(cfg, cfg.AssistantTimeout)

	model := cfg.AssistantModel
	if model == "" {
		model = defaultModel
	}

	return &Client{
		api:   openai.NewClientWithConfig(apiConfig),
		model: model,
		log:   log.Named("assistant"),
	}, nil
}

// NewConversation starts a chat seeded with the system prompt.
func (c *Client) NewConversation() *Conversation {
	return &Conversation{
		client: c,
		messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		},
	}
}

// Conversation holds one chat's message history. Safe for concurrent use,
// though messages are answered one at a time.
type Conversation struct {
	client   *Client
	mu       sync.Mutex
	messages []openai.ChatCompletionMessage
}

// Ask sends a user message and returns the assistant's reply. The exchange
// is appended to the conversation history on success.
func (c *Conversation) Ask(ctx context.Context, text string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	request := openai.ChatCompletionRequest{
		Model: c.client.model,
		Messages: append(c.messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: text,
		}),
	}

	resp, err := c.client.api.CreateChatCompletion(ctx, request)
	if err != nil {
		c.client.log.Error("chat completion failed", zap.Error(err))
		return "", fmt.Errorf("assistant request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("assistant returned no choices")
	}

	reply := resp.Choices[0].Message.Content
	c.messages = append(c.messages,
		openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: text},
		openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: reply},
	)

	c.client.log.Debug("chat exchange complete",
		zap.Int("history_len", len(c.messages)),
		zap.String("model", c.client.model),
	)

	return reply, nil
}

// AttachReport extracts the text of a PDF health report and adds it to the
// conversation context so follow-up questions can reference it.
func (c *Conversation) AttachReport(path string) error {
	text, err := ExtractReportText(path)
	if err != nil {
		return err
	}
	text = TruncateToBudget(text, reportCharBudget)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: "The user shared this health report:\n\n" + text,
	})
	return nil
}

// Len returns the number of messages in the history, including the system
// prompt.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}
