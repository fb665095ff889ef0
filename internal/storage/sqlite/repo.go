// Package sqlite is the embedded storage backend. Timestamps and dates stay
// as TEXT; SQLite's affinity rules make anything else a round-trip hazard.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"gridchat/internal/schema"
	"gridchat/internal/storage"
)

// maxParams stays under the portable SQLITE_MAX_VARIABLE_NUMBER floor.
const maxParams = 999

type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("sqlite", New)
}

func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

func (r *Repo) EnsureTable(ctx context.Context, spec storage.TableSpec) error {
	ddl, err := buildCreateSQL(spec)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", spec.Name, err)
	}
	return nil
}

func (r *Repo) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	batch := maxParams / len(columns)
	if batch < 1 {
		batch = 1
	}

	var total int64
	for start := 0; start < len(rows); start += batch {
		end := start + batch
		if end > len(rows) {
			end = len(rows)
		}
		n, err := r.insertBatch(ctx, table, columns, rows[start:end])
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (r *Repo) insertBatch(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	q, args := buildInsertSQL(table, columns, rows)
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func buildCreateSQL(spec storage.TableSpec) (string, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return "", fmt.Errorf("sqlite: table name is empty")
	}
	if len(spec.Columns) == 0 {
		return "", fmt.Errorf("sqlite: table %s has no columns", spec.Name)
	}

	parts := make([]string, 0, len(spec.Columns))
	for _, c := range spec.Columns {
		parts = append(parts, fmt.Sprintf("%s %s", sqlIdent(c.Name), columnDDL(c.Type)))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n);", sqlIdent(spec.Name), strings.Join(parts, ",\n  ")), nil
}

func buildInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	colList := make([]string, 0, len(columns))
	for _, c := range columns {
		colList = append(colList, sqlIdent(c))
	}
	placeholders := "(" + strings.TrimRight(strings.Repeat("?,", len(columns)), ",") + ")"

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(sqlIdent(table))
	b.WriteString(" (")
	b.WriteString(strings.Join(colList, ", "))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(placeholders)
		args = append(args, row...)
	}
	return b.String(), args
}

func columnDDL(t schema.ColumnType) string {
	switch t {
	case schema.TypeInteger:
		return "INTEGER"
	case schema.TypeNumeric:
		return "REAL"
	default:
		return "TEXT"
	}
}

func sqlIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
