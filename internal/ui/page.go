// Package ui renders the dashboard as server-side HTML. Pages are pure
// functions of session state; all mutation goes through the JSON API, so a
// plain form POST and a fetch() call hit the same handlers.
package ui

import (
	"fmt"
	"net/http"

	gomponents "maragu.dev/gomponents"
	html "maragu.dev/gomponents/html"

	"gridchat/internal/session"
)

// RenderHTML writes a page node with the proper content type.
func RenderHTML(w http.ResponseWriter, status int, node gomponents.Node) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = node.Render(w)
}

// Dashboard is the single page of the application: upload form, the active
// grid, and the dataset chat transcript.
func Dashboard(s session.State) gomponents.Node {
	return html.HTML(
		html.Lang("en"),
		html.Head(
			html.Meta(html.Charset("utf-8")),
			html.Meta(html.Name("viewport"), html.Content("width=device-width, initial-scale=1")),
			html.TitleEl(gomponents.Text("Grid Chat")),
			html.Link(html.Rel("stylesheet"), html.Href("/static/app.css")),
		),
		html.Body(
			html.Main(
				html.Class("layout"),
				html.H1(html.Class("page-title"), gomponents.Text("Grid Chat")),
				errorBanner(s),
				uploadCard(s),
				gridCard(s),
				chatCard(s),
			),
		),
	)
}

func errorBanner(s session.State) gomponents.Node {
	if s.LastError == "" {
		return nil
	}
	return html.Div(html.Class("banner error"), gomponents.Text(s.LastError))
}

func uploadCard(s session.State) gomponents.Node {
	var status gomponents.Node
	switch {
	case s.UploadBusy || s.IngestBusy:
		status = html.P(html.Class("muted"), gomponents.Text("Working on "+s.Filename+"..."))
	case s.Table != "":
		status = html.P(html.Class("muted"),
			gomponents.Text(fmt.Sprintf("Stored %d rows in table %q.", s.RowsStored, s.Table)))
	case s.Filename != "":
		status = html.P(html.Class("muted"), gomponents.Text("Loaded "+s.Filename+"."))
	}

	return html.Div(
		html.Class("card upload"),
		html.H2(gomponents.Text("Upload a delimited file")),
		html.Form(
			html.Method("post"),
			html.Action("/api/upload"),
			html.EncType("multipart/form-data"),
			html.Input(html.Type("file"), html.Name("file"), html.Required()),
			html.Select(
				html.Name("action"),
				html.Option(html.Value("grid"), gomponents.Text("Preview as grid")),
				html.Option(html.Value("database"), gomponents.Text("Push to database")),
			),
			html.Button(html.Type("submit"), gomponents.Text("Upload")),
		),
		status,
	)
}

func gridCard(s session.State) gomponents.Node {
	if s.Grid == nil {
		return html.Div(
			html.Class("card grid empty"),
			html.H2(gomponents.Text("Dataset")),
			html.P(html.Class("muted"), gomponents.Text("No dataset loaded.")),
		)
	}
	grid := s.Grid

	head := make([]gomponents.Node, 0, len(grid.Columns))
	for _, c := range grid.Columns {
		head = append(head, html.Th(
			html.TitleAttr(c.Description),
			gomponents.Text(c.Name),
			html.Span(html.Class("type"), gomponents.Text(string(c.Type))),
		))
	}

	rows := make([]gomponents.Node, 0, len(grid.Data))
	for _, r := range grid.Data {
		cells := make([]gomponents.Node, 0, len(grid.Columns))
		for _, c := range grid.Columns {
			cls := "cell"
			if c.Filter == "numeric" {
				cls = "cell numeric"
			}
			cells = append(cells, html.Td(html.Class(cls), gomponents.Text(c.FormatValue(r[c.Name]))))
		}
		rows = append(rows, html.Tr(gomponents.Group(cells)))
	}

	return html.Div(
		html.Class("card grid"),
		html.H2(gomponents.Text("Dataset")),
		html.P(html.Class("muted"),
			gomponents.Text(fmt.Sprintf("%s: %d rows, %d columns", s.Filename, len(grid.Data), len(grid.Columns)))),
		html.Div(
			html.Class("table-wrap"),
			html.Table(
				html.Class("data-table"),
				html.THead(html.Tr(gomponents.Group(head))),
				html.TBody(gomponents.Group(rows)),
			),
		),
	)
}

func chatCard(s session.State) gomponents.Node {
	transcript := make([]gomponents.Node, 0, len(s.Messages))
	for _, m := range s.Messages {
		transcript = append(transcript, html.Div(
			html.Class("message "+m.Role),
			html.Strong(gomponents.Text(m.Role+": ")),
			gomponents.Text(m.Content),
		))
	}

	var body gomponents.Node
	if s.Grid == nil {
		body = html.P(html.Class("muted"), gomponents.Text("Upload a dataset to start a conversation."))
	} else {
		body = gomponents.Group([]gomponents.Node{
			html.Div(html.Class("transcript"), gomponents.Group(transcript)),
			html.Form(
				html.Method("post"),
				html.Action("/api/chat"),
				html.Input(html.Type("text"), html.Name("question"),
					html.Placeholder("Ask about this dataset"), html.Required()),
				html.Button(html.Type("submit"), gomponents.Text("Ask")),
			),
		})
	}

	return html.Div(
		html.Class("card chat"),
		html.H2(gomponents.Text("Chat")),
		body,
	)
}
