package llm

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// OpenAIClient adapts go-openai's chat-completion API to the Client
// interface, forcing JSON-object output so generators never receive
// free-form prose.
type OpenAIClient struct {
	api *openai.Client
}

// NewOpenAIClient builds a Client backed by the OpenAI chat completions
// API. baseURL overrides the default endpoint when non-empty, letting the
// same client target OpenAI-compatible self-hosted gateways.
func NewOpenAIClient(apiKey, baseURL string) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIClient{api: openai.NewClientWithConfig(cfg)}
}

// Complete issues one chat completion call with response_format=json_object.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (Response, error) {
	messages := []openai.ChatCompletionMessage{}
	if req.Instruction != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.Instruction,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	apiReq := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := c.api.CreateChatCompletion(ctx, apiReq)
	if err != nil {
		return Response{}, fmt.Errorf("llm: openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, fmt.Errorf("llm: openai completion: empty choices")
	}

	choice := resp.Choices[0]
	return Response{
		Content:          choice.Message.Content,
		FinishReason:     string(choice.FinishReason),
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}
