// Package agent provides the default task executor backed by the OpenAI API.
//
// Scheduled tasks store a natural-language prompt; this executor hands the
// prompt to a chat completion and returns the model's text. It is the
// minimal concrete form of the agent/tool layer collaborator and can be
// swapped for a richer orchestrator behind the same interface.
package agent

import (
	"context"
	"fmt"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// systemPrompt frames scheduled-task prompts for the model.
const systemPrompt = "You are a personal assistant running a scheduled task for your user. " +
	"Carry out the task described in the prompt and reply with the result as a short message to the user."

// Executor runs scheduled-task prompts through OpenAI chat completions.
type Executor struct {
	client openai.Client
	model  openai.ChatModel
}

// NewExecutor initializes an executor using the OPENAI_API_KEY environment variable.
func NewExecutor() (*Executor, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	return &Executor{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  openai.ChatModelGPT4oMini,
	}, nil
}

// Execute runs the prompt and returns the completion text.
func (e *Executor) Execute(ctx context.Context, prompt string) (string, error) {
	resp, err := e.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: e.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// EchoExecutor is a trivial executor that returns the prompt unchanged.
// Useful when no API key is configured and in tests.
type EchoExecutor struct{}

// Execute returns the prompt verbatim.
func (EchoExecutor) Execute(ctx context.Context, prompt string) (string, error) {
	return prompt, nil
}
