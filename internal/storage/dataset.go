package storage

import (
	"fmt"

	"gridchat/internal/ingest"
	"gridchat/internal/schema"
)

// Dataset is a materialized grid flattened into insert order: a table spec,
// the normalized column names, and one []any per row with nil for cells the
// grid could not coerce.
type Dataset struct {
	Table   string
	Spec    TableSpec
	Columns []string
	Rows    [][]any
}

// DatasetFromGrid prepares a grid for persistence. Column names are
// normalized for SQL; distinct headers that collapse to the same identifier
// get a positional suffix so the DDL stays valid.
func DatasetFromGrid(filename string, grid *ingest.TypedGrid) Dataset {
	table := TableNameFromFilename(filename)

	seen := make(map[string]bool, len(grid.Columns))
	cols := make([]ColumnSpec, len(grid.Columns))
	names := make([]string, len(grid.Columns))
	for i, c := range grid.Columns {
		n := NormalizeIdentifier(c.Name)
		if n == "" {
			n = fmt.Sprintf("column_%d", i+1)
		}
		if seen[n] {
			n = fmt.Sprintf("%s_%d", n, i+1)
		}
		seen[n] = true

		cols[i] = ColumnSpec{Name: n, Type: c.Type}
		names[i] = n
	}

	rows := make([][]any, len(grid.Data))
	for i, r := range grid.Data {
		row := make([]any, len(grid.Columns))
		for j, c := range grid.Columns {
			v := r[c.Name]
			// Backends with real date types reject "" where they accept NULL.
			if v == "" && (c.Type == schema.TypeDate || c.Type == schema.TypeTimestamp) {
				v = nil
			}
			row[j] = v
		}
		rows[i] = row
	}

	return Dataset{
		Table:   table,
		Spec:    TableSpec{Name: table, Columns: cols},
		Columns: names,
		Rows:    rows,
	}
}
