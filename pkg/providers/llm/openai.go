package llm

import (
	"context"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/turnkit/voicecore/pkg/orchestrator"
)

// OpenAILLM wraps github.com/sashabaranov/go-openai's chat completion
// client. It implements both LLMProvider (batch Complete) and
// StreamingLLMProvider (token-at-a-time Stream), the latter letting the
// turn executor segment sentences as they arrive instead of waiting for a
// full completion.
type OpenAILLM struct {
	client *openai.Client
	model  string
}

// NewOpenAILLM builds an OpenAILLM against the public OpenAI API.
func NewOpenAILLM(apiKey string, model string) *OpenAILLM {
	if model == "" {
		model = openai.GPT4o
	}
	return &OpenAILLM{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// NewOpenAILLMWithBaseURL builds an OpenAILLM against a custom base URL
// (an OpenAI-compatible gateway, or a test server).
func NewOpenAILLMWithBaseURL(apiKey, baseURL, model string) *OpenAILLM {
	if model == "" {
		model = openai.GPT4o
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return &OpenAILLM{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func toOpenAIMessages(messages []orchestrator.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		out[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return out
}

func (l *OpenAILLM) Complete(ctx context.Context, messages []orchestrator.Message) (string, error) {
	resp, err := l.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    l.model,
		Messages: toOpenAIMessages(messages),
	})
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned from openai")
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream satisfies orchestrator.StreamingLLMProvider, delivering each token
// to onToken as it arrives over OpenAI's server-sent-events stream.
func (l *OpenAILLM) Stream(ctx context.Context, messages []orchestrator.Message, maxTokens int, temperature float64, onToken func(token string) error) error {
	req := openai.ChatCompletionRequest{
		Model:       l.model,
		Messages:    toOpenAIMessages(messages),
		MaxTokens:   maxTokens,
		Temperature: float32(temperature),
		Stream:      true,
	}

	stream, err := l.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return fmt.Errorf("openai stream: %w", err)
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("openai stream recv: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		token := resp.Choices[0].Delta.Content
		if token == "" {
			continue
		}
		if err := onToken(token); err != nil {
			return err
		}
	}
}

func (l *OpenAILLM) Name() string {
	return "openai-llm"
}
