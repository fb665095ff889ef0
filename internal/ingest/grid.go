package ingest

import (
	"strconv"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"gridchat/internal/schema"
)

// FilterKind selects the filter UI a column gets in the rendering layer.
type FilterKind string

const (
	FilterText    FilterKind = "text"
	FilterNumeric FilterKind = "numeric"
)

// numericAggregations is the whitelist of aggregation functions offered for
// INTEGER and NUMERIC columns.
var numericAggregations = []string{"sum", "avg", "min", "max", "count"}

// GridColumn is the presentation-ready descriptor for one column: the raw
// header name combined with its resolved type and derived UI behavior.
type GridColumn struct {
	Name        string            `json:"name"`
	Type        schema.ColumnType `json:"type"`
	Description string            `json:"description,omitempty"`

	Sortable           bool       `json:"sortable"`
	Filter             FilterKind `json:"filter"`
	Aggregations       []string   `json:"aggregations,omitempty"`
	DefaultAggregation string     `json:"default_aggregation,omitempty"`
}

// GridRow maps a header name to a typed cell value: string, int64, float64,
// or nil. Every row carries a value for every header.
type GridRow map[string]any

// TypedGrid is the terminal artifact of one ingestion: typed rows plus
// column metadata plus the raw inferred schema. It is replaced wholesale on
// each new upload, never mutated incrementally.
type TypedGrid struct {
	Columns []GridColumn    `json:"columns"`
	Data    []GridRow       `json:"data"`
	Schema  schema.Response `json:"schema"`
}

var gridPrinter = message.NewPrinter(language.English)

// FormatValue renders a cell for display. Numeric columns get locale-aware
// digit grouping with at most two fraction digits; nil renders as the empty
// string; everything else passes through.
func (c GridColumn) FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int64:
		if schema.IsNumeric(c.Type) {
			return gridPrinter.Sprintf("%v", number.Decimal(t, number.MaxFractionDigits(2), number.MinFractionDigits(0)))
		}
		return strconv.FormatInt(t, 10)
	case float64:
		if schema.IsNumeric(c.Type) {
			return gridPrinter.Sprintf("%v", number.Decimal(t, number.MaxFractionDigits(2), number.MinFractionDigits(0)))
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return gridPrinter.Sprintf("%v", t)
	}
}

// Materialize applies the resolved per-header schema to every data row and
// produces the typed grid. resolved must be aligned with headers (see
// ResolveColumns); resp is retained verbatim on the grid.
//
// Coercion policy (deliberately lossy, never fatal):
//   - INTEGER: base-10 parse; empty or unparsable cells become nil.
//   - NUMERIC: float parse; empty or unparsable cells become nil. The parser
//     rejects grouped strings like "1,234.5" outright, so they become nil.
//   - any other type: the trimmed string passes through; an empty string is
//     retained as "" (not nil). A row that ran short of the header count is
//     padded with "" before coercion, so short rows yield nil for numeric
//     columns and "" for text-like columns.
func Materialize(headers []string, rows [][]string, resolved []schema.Column, resp schema.Response) TypedGrid {
	cols := make([]GridColumn, len(headers))
	for i, h := range headers {
		c := GridColumn{
			Name:        h,
			Type:        resolved[i].Type,
			Description: resolved[i].Description,
			Sortable:    true,
			Filter:      FilterText,
		}
		if schema.IsNumeric(c.Type) {
			c.Filter = FilterNumeric
			c.Aggregations = append([]string(nil), numericAggregations...)
			c.DefaultAggregation = "sum"
		}
		cols[i] = c
	}

	data := make([]GridRow, 0, len(rows))
	for _, raw := range rows {
		row := make(GridRow, len(headers))
		for i, h := range headers {
			cell := ""
			if i < len(raw) {
				cell = raw[i]
			}
			row[h] = coerceCell(cell, resolved[i].Type)
		}
		data = append(data, row)
	}

	return TypedGrid{Columns: cols, Data: data, Schema: resp}
}

func coerceCell(cell string, t schema.ColumnType) any {
	switch t {
	case schema.TypeInteger:
		n, err := strconv.ParseInt(cell, 10, 64)
		if err != nil {
			return nil
		}
		return n
	case schema.TypeNumeric:
		f, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return nil
		}
		return f
	default:
		return cell
	}
}
