package ingest

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyInput is returned by Tokenize when the input contains no non-empty
// lines after trimming. Fatal to the ingestion attempt.
var ErrEmptyInput = errors.New("ingest: input contains no non-empty lines")

// ErrDuplicateHeader is returned by Tokenize when two header fields are equal
// after trimming. Letting a later duplicate win silently in the per-row
// mapping would lose data, so duplicates are rejected up front.
var ErrDuplicateHeader = errors.New("ingest: duplicate header")

// Tokenize splits raw text into a header row and data rows using delim.
//
// Lines are split on line breaks and trimmed; lines that are empty after
// trimming are discarded. The first surviving line is the header row. Fields
// are trimmed. A data row with fewer fields than the header is returned
// as-is; missing trailing fields are filled in at materialization time.
func Tokenize(text string, delim rune) (headers []string, rows [][]string, err error) {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return nil, nil, ErrEmptyInput
	}

	headers = splitFields(lines[0], delim)
	seen := make(map[string]struct{}, len(headers))
	for _, h := range headers {
		if _, dup := seen[h]; dup {
			return nil, nil, fmt.Errorf("%w: %q", ErrDuplicateHeader, h)
		}
		seen[h] = struct{}{}
	}

	rows = make([][]string, 0, len(lines)-1)
	for _, line := range lines[1:] {
		rows = append(rows, splitFields(line, delim))
	}
	return headers, rows, nil
}

func splitFields(line string, delim rune) []string {
	parts := strings.Split(line, string(delim))
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
