package mssql

import (
	"testing"

	"gridchat/internal/schema"
	"gridchat/internal/storage"
)

func TestBuildCreateSQL(t *testing.T) {
	t.Parallel()

	spec := storage.TableSpec{
		Name: "people",
		Columns: []storage.ColumnSpec{
			{Name: "name", Type: schema.TypeText},
			{Name: "age", Type: schema.TypeInteger},
			{Name: "score", Type: schema.TypeNumeric},
		},
	}

	ddl, err := buildCreateSQL(spec)
	if err != nil {
		t.Fatalf("buildCreateSQL() error: %v", err)
	}

	want := "IF OBJECT_ID(N'people', N'U') IS NULL CREATE TABLE [people] (\n" +
		"  [name] NVARCHAR(MAX),\n" +
		"  [age] BIGINT,\n" +
		"  [score] FLOAT\n" +
		");"
	if ddl != want {
		t.Fatalf("ddl = %q, want %q", ddl, want)
	}
}

func TestBuildInsertSQL(t *testing.T) {
	t.Parallel()

	q, args := buildInsertSQL("people", []string{"name", "age"}, [][]any{
		{"Alice", int64(30)},
		{"Bob", nil},
	})

	want := "INSERT INTO [people] ([name], [age]) VALUES (@p1, @p2), (@p3, @p4)"
	if q != want {
		t.Fatalf("sql = %q, want %q", q, want)
	}
	if len(args) != 4 {
		t.Fatalf("args = %d, want 4", len(args))
	}
}

func TestSQLIdentEscapesBrackets(t *testing.T) {
	t.Parallel()

	if got := sqlIdent("a]b"); got != "[a]]b]" {
		t.Fatalf("sqlIdent = %q", got)
	}
}
