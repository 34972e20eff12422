// Package openai implements reply generation over an OpenAI-compatible
// chat completion API.
package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/raidenlabs/inbox-bridge/internal/biz/repo"
)

const defaultTimeout = 30 * time.Second

// Client generates replies through a chat completion endpoint.
type Client struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

// NewClient creates a new reply-generation client. baseURL may be empty to
// use the default OpenAI endpoint.
func NewClient(apiKey, baseURL, model string, timeout time.Duration, logger *zap.Logger) *Client {
	if model == "" {
		model = openai.GPT4oMini
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}

	return &Client{
		client:  openai.NewClientWithConfig(config),
		model:   model,
		timeout: timeout,
		logger:  logger,
	}
}

const replySystemPrompt = `You are replying to a direct-message conversation on behalf of the account owner. Write the reply exactly as the owner would: match their typing style, length, capitalization and tone. Output only the reply text. Use separate lines for separate messages.`

const starterSystemPrompt = `You are starting a conversation on behalf of the account owner. Write an opener exactly as the owner would: match their typing style, length, capitalization and tone. Output only the message text. Use separate lines for separate messages.`

// GenerateReply produces reply text for the request.
func (c *Client) GenerateReply(ctx context.Context, req *repo.ReplyRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	system := replySystemPrompt
	if req.IsStarter {
		system = starterSystemPrompt
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: buildUserPrompt(req)},
		},
		Temperature: 0.7,
		MaxTokens:   300,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response choices")
	}

	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	c.logger.Debug("generated reply",
		zap.String("chat_id", req.ChatID),
		zap.Bool("is_starter", req.IsStarter),
		zap.Int("length", len(reply)))
	return reply, nil
}

const profileSystemPrompt = `You analyze a direct-message conversation and produce a typing profile of the account owner (the "me" side): tone, typical message length, capitalization, punctuation, slang, emoji usage, and recurring phrases. Output a single JSON object with those fields and nothing else.`

// GenerateProfile analyzes the transcript and returns a profile document.
func (c *Client) GenerateProfile(ctx context.Context, transcript string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: profileSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: "## Conversation\n" + transcript},
		},
		Temperature: 0.3,
		MaxTokens:   600,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response choices")
	}

	profile := strings.TrimSpace(resp.Choices[0].Message.Content)
	c.logger.Debug("generated typing profile", zap.Int("length", len(profile)))
	return profile, nil
}

func buildUserPrompt(req *repo.ReplyRequest) string {
	var b strings.Builder

	if req.Profile != "" {
		fmt.Fprintf(&b, "## Owner's style profile\n%s\n\n", req.Profile)
	}
	if req.StyleExamples != "" {
		fmt.Fprintf(&b, "## Examples of the owner's past messages\n%s\n\n", req.StyleExamples)
	}
	if req.Rules != "" {
		fmt.Fprintf(&b, "## Rules for this chat (highest priority)\n%s\n\n", req.Rules)
	}
	if req.RecentContext != "" {
		fmt.Fprintf(&b, "## Long-term context\n%s\n\n", req.RecentContext)
	}
	fmt.Fprintf(&b, "## Recent conversation\n%s\n", req.Transcript)
	if req.IsStarter {
		b.WriteString("\nWrite a conversation opener.")
	} else {
		b.WriteString("\nWrite the next reply from the owner.")
	}
	return b.String()
}
