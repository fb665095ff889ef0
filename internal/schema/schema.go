// Package schema defines the column schema produced by the inference
// service and the parse-and-validate step applied at that boundary.
//
// The type set is closed on our side (TEXT, INTEGER, NUMERIC, DATE,
// TIMESTAMP), but the inference service is not trusted to stay inside it:
// an out-of-set type string is preserved as-is and downstream consumers
// must treat anything that is not INTEGER or NUMERIC as text-like.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ColumnType is the inferred data type of a single column.
type ColumnType string

const (
	TypeText      ColumnType = "TEXT"
	TypeInteger   ColumnType = "INTEGER"
	TypeNumeric   ColumnType = "NUMERIC"
	TypeDate      ColumnType = "DATE"
	TypeTimestamp ColumnType = "TIMESTAMP"
)

// IsNumeric reports whether t drives numeric grid behavior (filtering,
// formatting, aggregation). Everything else, including unknown type strings
// returned by the inference service, is text-like.
func IsNumeric(t ColumnType) bool {
	return t == TypeInteger || t == TypeNumeric
}

// Column is one inferred column: the name as the model spelled it, its type,
// and a short human-readable description.
type Column struct {
	Name        string     `json:"name"`
	Type        ColumnType `json:"type"`
	Description string     `json:"description"`
}

// Response is the full schema returned by the inference service for one
// uploaded file. It is created once per upload and immutable thereafter.
type Response struct {
	Columns []Column `json:"columns"`
}

// ParseResponse decodes and validates the JSON object the inference service
// returns inside its message content.
//
// Validation is about shape, not type membership: a response without a
// columns array, or with a column whose name is empty after trimming, is
// rejected. Type strings outside the closed set pass through unchanged.
func ParseResponse(data []byte) (Response, error) {
	var r Response
	if err := json.Unmarshal(data, &r); err != nil {
		return Response{}, fmt.Errorf("schema: decode response: %w", err)
	}
	if len(r.Columns) == 0 {
		return Response{}, fmt.Errorf("schema: response has no columns")
	}
	for i, c := range r.Columns {
		if strings.TrimSpace(c.Name) == "" {
			return Response{}, fmt.Errorf("schema: column %d has an empty name", i)
		}
	}
	return r, nil
}
