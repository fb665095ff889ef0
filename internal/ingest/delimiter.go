// Package ingest implements the delimited-file ingestion pipeline: delimiter
// detection, row tokenization, schema resolution against an inferred column
// schema, and materialization of a typed in-memory grid.
//
// Design constraints:
//   - Tokenization is quoting-unaware on purpose. Fields that legitimately
//     contain the chosen delimiter inside quotes will be mis-split; that is
//     the documented contract, not a defect.
//   - Materialization is lossy-but-non-fatal: a malformed numeric cell
//     becomes nil, never an error. One bad cell must not abort a grid.
//   - Every pipeline invocation owns its intermediates; nothing is shared
//     across concurrent runs.
package ingest

import "strings"

// DetectDelimiter inspects only the first line of text and picks the column
// separator. Pipe wins only when it strictly outnumbers commas; a line with
// neither character falls back to comma (single-column input).
func DetectDelimiter(text string) rune {
	line := text
	if i := strings.IndexAny(text, "\r\n"); i >= 0 {
		line = text[:i]
	}
	if strings.Count(line, "|") > strings.Count(line, ",") {
		return '|'
	}
	return ','
}
