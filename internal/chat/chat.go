// Package chat answers questions about a captured page by sending its stored
// markdown snapshot to an OpenAI-compatible chat completion API.
package chat

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const systemPrompt = "You are a reading assistant. Answer the user's question " +
	"using only the provided page content. If the content does not contain " +
	"the answer, say so."

// Service holds the configured chat client.
type Service struct {
	client openai.Client
	model  string
}

// New creates a chat service. baseURL may point at any OpenAI-compatible
// endpoint; an empty value uses the default API.
func New(apiKey, baseURL, model string) *Service {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Service{client: openai.NewClient(opts...), model: model}
}

// AskAboutPage sends one non-streaming completion request grounded on the
// page markdown and returns the assistant's answer.
func (s *Service) AskAboutPage(ctx context.Context, pageMarkdown, question string) (string, error) {
	resp, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(s.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(fmt.Sprintf("Page content:\n\n%s\n\nQuestion: %s", pageMarkdown, question)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}
