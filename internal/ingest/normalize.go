package ingest

import (
	"strings"
	"unicode"

	"gridchat/internal/schema"
)

// NormalizeHeaderKey projects a header string onto the case-insensitive,
// whitespace/underscore-stripped key used to associate a raw header with its
// inferred column schema. The inference service may return "Customer ID"
// for a file header spelled "customer_id"; both normalize to "customerid".
//
// The projection is deterministic and order-independent; keys are never
// persisted, only recomputed on demand.
func NormalizeHeaderKey(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if r == '_' || unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ResolveColumns associates each actual header with its inferred schema
// entry via normalized-key lookup. A header with no match stays untyped:
// TEXT with no description. The returned slice is aligned with headers and
// carries the raw header spelling, not the model's.
func ResolveColumns(headers []string, resp schema.Response) []schema.Column {
	byKey := make(map[string]schema.Column, len(resp.Columns))
	for _, c := range resp.Columns {
		byKey[NormalizeHeaderKey(c.Name)] = c
	}

	out := make([]schema.Column, len(headers))
	for i, h := range headers {
		resolved := schema.Column{Name: h, Type: schema.TypeText}
		if c, ok := byKey[NormalizeHeaderKey(h)]; ok {
			resolved.Type = c.Type
			resolved.Description = c.Description
		}
		out[i] = resolved
	}
	return out
}
