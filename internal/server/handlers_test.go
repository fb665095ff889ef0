package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridchat/internal/chat"
	"gridchat/internal/inference"
	"gridchat/internal/ingest"
	"gridchat/internal/schema"
	"gridchat/internal/storage"
)

type stubInferrer struct {
	resp schema.Response
	err  error
}

func (f *stubInferrer) InferSchema(ctx context.Context, delim rune, headers []string, sample [][]string) (schema.Response, error) {
	return f.resp, f.err
}

type fakeChatter struct {
	askFunc func(ctx context.Context, datasetContext string, history []chat.Message, question string) (string, error)
}

func (f *fakeChatter) Ask(ctx context.Context, datasetContext string, history []chat.Message, question string) (string, error) {
	return f.askFunc(ctx, datasetContext, history, question)
}

type fakeRepo struct {
	ensureFunc func(ctx context.Context, spec storage.TableSpec) error
	insertFunc func(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)
}

func (f *fakeRepo) Close() {}
func (f *fakeRepo) EnsureTable(ctx context.Context, spec storage.TableSpec) error {
	if f.ensureFunc == nil {
		return nil
	}
	return f.ensureFunc(ctx, spec)
}
func (f *fakeRepo) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if f.insertFunc == nil {
		return int64(len(rows)), nil
	}
	return f.insertFunc(ctx, table, columns, rows)
}

func defaultInferrer() *stubInferrer {
	return &stubInferrer{resp: schema.Response{Columns: []schema.Column{
		{Name: "name", Type: schema.TypeText, Description: "person name"},
		{Name: "age", Type: schema.TypeInteger, Description: "age in years"},
	}}}
}

type testEnv struct {
	srv     *Server
	handler http.Handler
	cookies []*http.Cookie
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	if opts.Pipeline == nil {
		opts.Pipeline = ingest.NewPipeline(defaultInferrer())
	}
	if opts.Chatter == nil {
		opts.Chatter = &fakeChatter{askFunc: func(context.Context, string, []chat.Message, string) (string, error) {
			return "a reply", nil
		}}
	}
	opts.Log = log.New(io.Discard, "", 0)
	srv := New(opts)
	return &testEnv{srv: srv, handler: srv.Router()}
}

// do runs a request through the router, carrying session cookies between calls.
func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	for _, c := range e.cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	if cs := rec.Result().Cookies(); len(cs) > 0 {
		e.cookies = append(e.cookies, cs...)
	}
	return rec
}

func multipartUpload(t *testing.T, filename, content, action string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	if action != "" {
		require.NoError(t, mw.WriteField("action", action))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

const peopleCSV = "name,age\nAlice,30\nBob,\n"

func TestUploadGrid(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Options{})

	rec := env.do(multipartUpload(t, "people.csv", peopleCSV, "grid"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var grid ingest.TypedGrid
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &grid))
	require.Len(t, grid.Columns, 2)
	assert.Equal(t, "name", grid.Columns[0].Name)
	assert.Equal(t, ingest.FilterNumeric, grid.Columns[1].Filter)
	require.Len(t, grid.Data, 2)
	assert.Equal(t, float64(30), grid.Data[0]["age"]) // json numbers decode as float64
	assert.Nil(t, grid.Data[1]["age"])

	// The grid is now readable through the session.
	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/grid", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Alice")
}

func TestUploadDefaultsToGridAction(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Options{})

	rec := env.do(multipartUpload(t, "people.csv", peopleCSV, ""))
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestUploadBadInputs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		req        func(t *testing.T) *http.Request
		wantStatus int
	}{
		{
			name:       "empty file",
			req:        func(t *testing.T) *http.Request { return multipartUpload(t, "e.csv", "  \n\n", "grid") },
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "duplicate header",
			req:        func(t *testing.T) *http.Request { return multipartUpload(t, "d.csv", "a,a\n1,2\n", "grid") },
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown action",
			req:        func(t *testing.T) *http.Request { return multipartUpload(t, "p.csv", peopleCSV, "teleport") },
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "not multipart",
			req: func(t *testing.T) *http.Request {
				return httptest.NewRequest(http.MethodPost, "/api/upload", strings.NewReader("plain"))
			},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t, Options{})
			rec := env.do(tt.req(t))
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), "error")
		})
	}
}

func TestUploadInferenceFailureIsBadGateway(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Options{
		Pipeline: ingest.NewPipeline(&stubInferrer{err: fmt.Errorf("%w: model unavailable", inference.ErrInference)}),
	})

	rec := env.do(multipartUpload(t, "p.csv", peopleCSV, "grid"))
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	// The failure lands in the session for the page banner.
	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/grid", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUploadTooLarge(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Options{MaxUploadBytes: 16})

	rec := env.do(multipartUpload(t, "p.csv", peopleCSV, "grid"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadDatabase(t *testing.T) {
	t.Parallel()

	var gotSpec storage.TableSpec
	var gotTable string
	var gotRows [][]any
	repo := &fakeRepo{
		ensureFunc: func(ctx context.Context, spec storage.TableSpec) error {
			gotSpec = spec
			return nil
		},
		insertFunc: func(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
			gotTable = table
			gotRows = rows
			return int64(len(rows)), nil
		},
	}
	env := newTestEnv(t, Options{Repo: repo})

	rec := env.do(multipartUpload(t, "People Export.csv", peopleCSV, "database"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Table      string `json:"table"`
		RowsStored int64  `json:"rows_stored"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "people_export", resp.Table)
	assert.Equal(t, int64(2), resp.RowsStored)

	assert.Equal(t, "people_export", gotSpec.Name)
	assert.Equal(t, "people_export", gotTable)
	require.Len(t, gotRows, 2)
	assert.Equal(t, []any{"Alice", int64(30)}, gotRows[0])
	assert.Equal(t, []any{"Bob", nil}, gotRows[1])

	// The pushed dataset is also visible as the session grid.
	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/grid", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUploadDatabaseWithoutBackend(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Options{})

	rec := env.do(multipartUpload(t, "p.csv", peopleCSV, "database"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestUploadDatabaseStorageFailure(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Options{Repo: &fakeRepo{
		insertFunc: func(context.Context, string, []string, [][]any) (int64, error) {
			return 0, errors.New("connection refused")
		},
	}})

	rec := env.do(multipartUpload(t, "p.csv", peopleCSV, "database"))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func chatRequest(question string) *http.Request {
	body, _ := json.Marshal(map[string]string{"question": question})
	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestChatWithoutDatasetConflicts(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Options{})

	rec := env.do(chatRequest("how many rows?"))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestChatFlow(t *testing.T) {
	t.Parallel()

	var gotContext string
	var gotHistory [][]chat.Message
	chatter := &fakeChatter{askFunc: func(ctx context.Context, datasetContext string, history []chat.Message, question string) (string, error) {
		gotContext = datasetContext
		gotHistory = append(gotHistory, append([]chat.Message(nil), history...))
		return "answer to " + question, nil
	}}
	env := newTestEnv(t, Options{Chatter: chatter})

	rec := env.do(multipartUpload(t, "people.csv", peopleCSV, "grid"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(chatRequest("first?"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "answer to first?", resp["reply"])

	assert.Contains(t, gotContext, "people.csv")
	assert.Contains(t, gotContext, "age (INTEGER)")
	assert.Empty(t, gotHistory[0])

	// The second question carries the first exchange as history.
	rec = env.do(chatRequest("second?"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, gotHistory, 2)
	require.Len(t, gotHistory[1], 2)
	assert.Equal(t, "first?", gotHistory[1][0].Content)
	assert.Equal(t, "answer to first?", gotHistory[1][1].Content)
}

func TestChatBadRequests(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Options{})

	rec := env.do(chatRequest("   "))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec = env.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatUpstreamFailure(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Options{Chatter: &fakeChatter{
		askFunc: func(context.Context, string, []chat.Message, string) (string, error) {
			return "", fmt.Errorf("%w: timeout", chat.ErrChat)
		},
	}})

	rec := env.do(multipartUpload(t, "p.csv", peopleCSV, "grid"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(chatRequest("q"))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestGridWithoutDataset(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Options{})

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/grid", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIndexServesDashboard(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Options{})

	rec := env.do(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "Grid Chat")

	// First contact mints a session cookie.
	require.NotEmpty(t, env.cookies)
	assert.Equal(t, sessionCookie, env.cookies[0].Name)
}

func TestStylesheetIsServed(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Options{})

	rec := env.do(httptest.NewRequest(http.MethodGet, "/static/app.css", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/css")
	assert.Contains(t, rec.Body.String(), ".data-table")
}

// Browser form posts are answered with a redirect; the page re-reads state.
func TestFormPostsRedirect(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, Options{})

	req := multipartUpload(t, "people.csv", peopleCSV, "grid")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	rec := env.do(req)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want int
	}{
		{ingest.ErrEmptyInput, http.StatusBadRequest},
		{fmt.Errorf("%w: %q", ingest.ErrDuplicateHeader, "a"), http.StatusBadRequest},
		{fmt.Errorf("%w: boom", inference.ErrInference), http.StatusBadGateway},
		{fmt.Errorf("%w: boom", chat.ErrChat), http.StatusBadGateway},
		{ErrNoDataset, http.StatusConflict},
		{errors.New("anything else"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
