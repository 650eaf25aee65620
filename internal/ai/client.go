package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	groqBaseURL   = "https://api.groq.com/openai/v1"
	geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"

	// GroqModel serves summary and simulation requests.
	GroqModel = "llama-3.3-70b-versatile"
	// GeminiModel serves posture requests.
	GeminiModel = "gemini-2.5-flash"

	groqTimeout = 45 * time.Second
	maxTokens   = 2048

	geminiMaxRetries  = 2
	geminiBackoffBase = 1500 * time.Millisecond
)

// ErrNotConfigured is returned when a request needs an API key that was not
// provided at startup.
var ErrNotConfigured = errors.New("ai: api key not configured")

// Client talks to both chat backends. Either key may be empty; requests
// against an unconfigured backend fail with ErrNotConfigured so callers can
// degrade to deterministic output.
type Client struct {
	groq   *openai.Client
	gemini *openai.Client
}

// NewClient builds a client from the configured API keys.
func NewClient(groqKey, geminiKey string) *Client {
	c := &Client{}
	if groqKey != "" {
		cfg := openai.DefaultConfig(groqKey)
		cfg.BaseURL = groqBaseURL
		c.groq = openai.NewClientWithConfig(cfg)
	}
	if geminiKey != "" {
		cfg := openai.DefaultConfig(geminiKey)
		cfg.BaseURL = geminiBaseURL
		c.gemini = openai.NewClientWithConfig(cfg)
	}
	return c
}

// Complete sends a system/user prompt pair to Groq and returns the raw
// completion text.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float32) (string, error) {
	if c.groq == nil {
		return "", ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, groqTimeout)
	defer cancel()

	log.Printf("ai: calling groq (model=%s, temp=%.2f)", GroqModel, temperature)
	resp, err := c.groq.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: GroqModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("groq request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("groq returned no choices")
	}

	content := resp.Choices[0].Message.Content
	log.Printf("ai: groq returned %d characters", len(content))
	return content, nil
}

// GeneratePosture sends a prompt to Gemini with retry and exponential
// backoff, returning the raw response text.
func (c *Client) GeneratePosture(ctx context.Context, prompt string) (string, error) {
	if c.gemini == nil {
		return "", ErrNotConfigured
	}

	var lastErr error
	for attempt := 0; attempt <= geminiMaxRetries; attempt++ {
		log.Printf("ai: gemini attempt %d/%d (model=%s)", attempt+1, geminiMaxRetries+1, GeminiModel)
		resp, err := c.gemini.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: GeminiModel,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
			MaxTokens: maxTokens,
		})
		if err == nil && len(resp.Choices) > 0 {
			content := resp.Choices[0].Message.Content
			log.Printf("ai: gemini returned %d characters", len(content))
			return content, nil
		}
		if err == nil {
			err = errors.New("gemini returned no choices")
		}
		lastErr = err
		log.Printf("ai: gemini attempt %d failed: %v", attempt+1, err)

		if attempt < geminiMaxRetries {
			wait := geminiBackoffBase * (1 << attempt)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}
	return "", fmt.Errorf("gemini failed after %d attempts: %w", geminiMaxRetries+1, lastErr)
}

// StripCodeFence removes a markdown code fence wrapper if present.
func StripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	if strings.HasPrefix(strings.TrimSpace(lines[0]), "```") {
		lines = lines[1:]
	}
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
