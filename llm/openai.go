package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
)

// GroqBaseURL is Groq's OpenAI-compatible endpoint.
const GroqBaseURL = "https://api.groq.com/openai/v1/"

// OpenAI completes through an OpenAI-compatible chat completions API
// (OpenAI, Groq, local servers).
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates an adapter for model.
func NewOpenAI(client *openai.Client, model string) *OpenAI {
	return &OpenAI{client: client, model: model}
}

func (o *OpenAI) Name() string {
	return "openai"
}

// Complete sends the system instructions and prompt as two messages.
func (o *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(o.model),
		Messages:    messages,
		MaxTokens:   openai.Int(req.MaxTokens),
		Temperature: openai.Float(req.Temperature),
	}

	if req.Stream != nil {
		return o.stream(ctx, params, req.Stream)
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", o.classify(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", ErrMalformed)
	}
	return checkText(resp.Choices[0].Message.Content)
}

func (o *OpenAI) stream(ctx context.Context, params openai.ChatCompletionNewParams, callback func(string)) (string, error) {
	stream := o.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	var sb strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			sb.WriteString(delta)
			callback(delta)
		}
	}
	if err := stream.Err(); err != nil {
		return "", o.classify(ctx, err)
	}
	return checkText(sb.String())
}

func (o *OpenAI) classify(ctx context.Context, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return classify(ctx, err, apiErr.StatusCode)
	}
	return classify(ctx, err, 0)
}
