package ingest

import (
	"context"

	"gridchat/internal/schema"
)

// sampleRows is how many data rows accompany the header in the inference
// request. Enough for the model to see value shapes, small enough to keep
// the prompt cheap.
const sampleRows = 5

// Inferrer classifies columns from a small sample. Implemented by
// internal/inference; tests substitute a fake.
type Inferrer interface {
	InferSchema(ctx context.Context, delim rune, headers []string, sample [][]string) (schema.Response, error)
}

// Pipeline runs the full ingestion sequence: detect delimiter, tokenize,
// infer a schema from a sample, resolve it against the actual headers, and
// materialize the typed grid.
//
// The pipeline has no mutual exclusion, cancellation, or retry of its own.
// The caller arbitrates concurrent runs and owns timeout policy via ctx;
// each Run owns every intermediate value it creates.
type Pipeline struct {
	inferrer Inferrer
}

func NewPipeline(inf Inferrer) *Pipeline {
	return &Pipeline{inferrer: inf}
}

// Run ingests raw file text into a typed grid.
//
// Errors: ErrEmptyInput / ErrDuplicateHeader from tokenization, or whatever
// the inferrer returns, all fatal to this attempt. Re-running on identical
// input with an identical inference response yields a deep-equal grid.
func (p *Pipeline) Run(ctx context.Context, text string) (*TypedGrid, error) {
	delim := DetectDelimiter(text)

	headers, rows, err := Tokenize(text, delim)
	if err != nil {
		return nil, err
	}

	sample := rows
	if len(sample) > sampleRows {
		sample = sample[:sampleRows]
	}

	resp, err := p.inferrer.InferSchema(ctx, delim, headers, sample)
	if err != nil {
		return nil, err
	}

	resolved := ResolveColumns(headers, resp)
	grid := Materialize(headers, rows, resolved, resp)
	return &grid, nil
}
