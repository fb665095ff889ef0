// Package inference asks an external chat-completion service to classify
// each column of a sampled dataset into the closed type set and to describe
// it. The response is requested in JSON-object mode and validated at this
// boundary; everything past it works with typed schema values.
package inference

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"gridchat/internal/schema"
)

// ErrInference marks any failure of the schema-inference round-trip:
// transport errors, non-success status, empty completions, and malformed
// response bodies. Fatal to the ingestion attempt; there is no retry here,
// the user retries by resubmitting the upload.
var ErrInference = errors.New("inference: schema request failed")

const systemPrompt = "You classify the columns of delimited tabular data. " +
	"For every column you are given, pick exactly one type from this set: " +
	"TEXT, INTEGER, NUMERIC, DATE, TIMESTAMP. Respond with a single JSON object " +
	`of the form {"columns":[{"name":"...","type":"...","description":"..."}]} ` +
	"with one entry per column, keeping the column names you were given and a " +
	"short one-sentence description each. Respond with JSON only."

// Config controls the inference client. BaseURL is a test seam and an escape
// hatch for proxies; empty means the SDK default.
type Config struct {
	Model   string
	APIKey  string
	BaseURL string
}

// Client performs schema inference through the chat-completions API.
type Client struct {
	api   openai.Client
	model openai.ChatModel
}

func New(cfg Config) *Client {
	// MaxRetries(0): retry policy belongs to the caller (resubmission),
	// not to this client.
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

// InferSchema sends the header row plus the sampled data rows, joined with
// the detected delimiter, and parses the structured schema response.
//
// The service's type judgments are not checked against the closed set;
// an out-of-set type string passes through (downstream treats it as
// text-like). Shape violations are rejected via schema.ParseResponse.
func (c *Client) InferSchema(ctx context.Context, delim rune, headers []string, sample [][]string) (schema.Response, error) {
	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(buildPrompt(delim, headers, sample)),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		return schema.Response{}, fmt.Errorf("%w: %v", ErrInference, err)
	}
	if len(resp.Choices) == 0 {
		return schema.Response{}, fmt.Errorf("%w: completion has no choices", ErrInference)
	}

	parsed, err := schema.ParseResponse([]byte(resp.Choices[0].Message.Content))
	if err != nil {
		return schema.Response{}, fmt.Errorf("%w: %v", ErrInference, err)
	}
	return parsed, nil
}

func buildPrompt(delim rune, headers []string, sample [][]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The field delimiter is %q.\n", delim)
	b.WriteString("Header row:\n")
	b.WriteString(strings.Join(headers, string(delim)))
	b.WriteString("\nSample rows:\n")
	for _, row := range sample {
		b.WriteString(strings.Join(row, string(delim)))
		b.WriteByte('\n')
	}
	return b.String()
}
