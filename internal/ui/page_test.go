package ui

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridchat/internal/chat"
	"gridchat/internal/ingest"
	"gridchat/internal/schema"
	"gridchat/internal/session"
)

func renderDoc(t *testing.T, s session.State) *goquery.Document {
	t.Helper()
	var b strings.Builder
	require.NoError(t, Dashboard(s).Render(&b))

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(b.String()))
	require.NoError(t, err)
	return doc
}

func TestDashboardEmptyState(t *testing.T) {
	t.Parallel()

	doc := renderDoc(t, session.State{ID: "s1"})

	assert.Equal(t, 1, doc.Find(`form[action="/api/upload"]`).Length())
	assert.Equal(t, 1, doc.Find(`input[type="file"][name="file"]`).Length())
	assert.Equal(t, 2, doc.Find(`select[name="action"] option`).Length())
	assert.Contains(t, doc.Find(".card.grid").Text(), "No dataset loaded.")
	assert.Contains(t, doc.Find(".card.chat").Text(), "Upload a dataset")
	assert.Equal(t, 0, doc.Find(".banner.error").Length())
}

func TestDashboardRendersGrid(t *testing.T) {
	t.Parallel()

	grid := &ingest.TypedGrid{
		Columns: []ingest.GridColumn{
			{Name: "name", Type: schema.TypeText, Description: "person name", Filter: ingest.FilterText},
			{Name: "amount", Type: schema.TypeInteger, Filter: ingest.FilterNumeric},
		},
		Data: []ingest.GridRow{
			{"name": "Alice", "amount": int64(1234567)},
			{"name": "Bob", "amount": nil},
		},
	}
	doc := renderDoc(t, session.State{ID: "s1", Filename: "people.csv", Grid: grid})

	headers := doc.Find("table.data-table thead th")
	require.Equal(t, 2, headers.Length())
	assert.Contains(t, headers.First().Text(), "name")
	assert.Equal(t, "person name", headers.First().AttrOr("title", ""))
	assert.Contains(t, headers.Last().Text(), "INTEGER")

	rows := doc.Find("table.data-table tbody tr")
	require.Equal(t, 2, rows.Length())

	// Numeric cells carry grouping separators; nil cells render empty.
	first := rows.First().Find("td")
	assert.Equal(t, "Alice", first.First().Text())
	assert.Equal(t, "1,234,567", first.Last().Text())
	assert.Equal(t, "", rows.Last().Find("td").Last().Text())
	assert.Equal(t, 2, doc.Find("td.numeric").Length())

	assert.Contains(t, doc.Find(".card.grid .muted").Text(), "people.csv: 2 rows, 2 columns")
}

func TestDashboardRendersChatAndErrors(t *testing.T) {
	t.Parallel()

	grid := &ingest.TypedGrid{
		Columns: []ingest.GridColumn{{Name: "n", Type: schema.TypeInteger}},
		Data:    []ingest.GridRow{{"n": int64(1)}},
	}
	s := session.State{
		ID:       "s1",
		Filename: "x.csv",
		Grid:     grid,
		Messages: []chat.Message{
			{Role: "user", Content: "how many rows?"},
			{Role: "assistant", Content: "one"},
		},
		LastError: "inference: schema request failed",
	}
	doc := renderDoc(t, s)

	msgs := doc.Find(".transcript .message")
	require.Equal(t, 2, msgs.Length())
	assert.True(t, msgs.First().HasClass("user"))
	assert.Contains(t, msgs.Last().Text(), "one")

	assert.Equal(t, 1, doc.Find(`form[action="/api/chat"] input[name="question"]`).Length())
	assert.Contains(t, doc.Find(".banner.error").Text(), "schema request failed")
}

func TestDashboardShowsIngestResult(t *testing.T) {
	t.Parallel()

	doc := renderDoc(t, session.State{ID: "s1", Filename: "people.csv", Table: "people", RowsStored: 42})

	assert.Contains(t, doc.Find(".card.upload .muted").Text(), `Stored 42 rows in table "people".`)
}
