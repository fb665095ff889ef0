// Package chat lets the user converse with the model about the active
// dataset. The dataset context travels as a system message built from the
// typed grid's column metadata; the pipeline itself is not involved.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"gridchat/internal/ingest"
)

// ErrChat marks any failure of a chat round-trip. Same posture as schema
// inference: fatal, no retry, the user re-asks.
var ErrChat = errors.New("chat: request failed")

// Message is one turn of the conversation as kept in session state.
// Role is "user" or "assistant".
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Config mirrors inference.Config; BaseURL is a test seam.
type Config struct {
	Model   string
	APIKey  string
	BaseURL string
}

type Client struct {
	api   openai.Client
	model openai.ChatModel
}

func New(cfg Config) *Client {
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := openai.ChatModel(cfg.Model)
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}
	return &Client{api: openai.NewClient(opts...), model: model}
}

// Ask sends the dataset context, the prior transcript, and the new question,
// and returns the assistant's reply.
func (c *Client) Ask(ctx context.Context, datasetContext string, history []Message, question string) (string, error) {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+2)
	msgs = append(msgs, openai.SystemMessage(datasetContext))
	for _, m := range history {
		if m.Role == "assistant" {
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		} else {
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}
	msgs = append(msgs, openai.UserMessage(question))

	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: msgs,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrChat, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: completion has no choices", ErrChat)
	}
	return resp.Choices[0].Message.Content, nil
}

// DatasetSummary renders the system-message context for a grid: filename,
// row count, and one line per column with its type and description.
func DatasetSummary(filename string, grid *ingest.TypedGrid) string {
	var b strings.Builder
	b.WriteString("You answer questions about a tabular dataset the user uploaded.\n")
	fmt.Fprintf(&b, "File: %s. Rows: %d. Columns:\n", filename, len(grid.Data))
	for _, c := range grid.Columns {
		fmt.Fprintf(&b, "- %s (%s)", c.Name, c.Type)
		if c.Description != "" {
			fmt.Fprintf(&b, ": %s", c.Description)
		}
		b.WriteByte('\n')
	}
	b.WriteString("Answer concisely and only about this dataset.")
	return b.String()
}
