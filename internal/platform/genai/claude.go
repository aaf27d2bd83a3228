package genai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	defaultModel     = "claude-sonnet-4-20250514"
	defaultMaxTokens = 2048
	defaultTimeout   = 30 * time.Second
)

var (
	// ErrEmptyPrompt is returned when the caller supplies no prompt text.
	ErrEmptyPrompt = errors.New("genai: prompt is empty")
	// ErrEmptyCompletion is returned when the model produced no text content.
	ErrEmptyCompletion = errors.New("genai: model returned no text content")
)

// TextGenerator produces a completion for the supplied prompt.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// ClaudeClient wraps the Anthropic Messages API behind the TextGenerator interface.
type ClaudeClient struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	timeout   time.Duration
}

// ClaudeOption customises client construction.
type ClaudeOption func(*ClaudeClient)

// WithModel overrides the model identifier.
func WithModel(model string) ClaudeOption {
	return func(c *ClaudeClient) {
		if strings.TrimSpace(model) != "" {
			c.model = anthropic.Model(model)
		}
	}
}

// WithMaxTokens overrides the completion token cap.
func WithMaxTokens(max int) ClaudeOption {
	return func(c *ClaudeClient) {
		if max > 0 {
			c.maxTokens = int64(max)
		}
	}
}

// WithTimeout bounds each generation request.
func WithTimeout(timeout time.Duration) ClaudeOption {
	return func(c *ClaudeClient) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// NewClaudeClient builds a client authenticated with the provided API key.
func NewClaudeClient(apiKey string, opts ...ClaudeOption) (*ClaudeClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("genai: api key is required")
	}

	client := &ClaudeClient{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     defaultModel,
		maxTokens: defaultMaxTokens,
		timeout:   defaultTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// GenerateText sends the prompt as a single user message and concatenates the
// text blocks of the response. Provider errors are returned unwrapped inside
// the annotation so callers can inspect them.
func (c *ClaudeClient) GenerateText(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("genai: messages request: %w", err)
	}

	var builder strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			builder.WriteString(block.Text)
		}
	}

	text := strings.TrimSpace(builder.String())
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}
