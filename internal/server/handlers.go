package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"gridchat/internal/chat"
	"gridchat/internal/inference"
	"gridchat/internal/ingest"
	"gridchat/internal/metrics"
	"gridchat/internal/session"
	"gridchat/internal/storage"
	"gridchat/internal/ui"
)

const sessionCookie = "grid_session"

// sessionState resolves the caller's session, minting a cookie on first
// contact. A stale cookie keeps its id; the store recreates it on dispatch.
func (s *Server) sessionState(w http.ResponseWriter, r *http.Request) session.State {
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		if st, ok := s.sessions.Get(c.Value); ok {
			return st
		}
		return session.State{ID: c.Value}
	}

	st := s.sessions.Create()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    st.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return st
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	st := s.sessionState(w, r)
	ui.RenderHTML(w, http.StatusOK, ui.Dashboard(st))
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	st := s.sessionState(w, r)

	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("parse upload: %w", err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("missing file field: %w", err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, s.maxUploadBytes+1))
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("read upload: %w", err))
		return
	}
	if int64(len(data)) > s.maxUploadBytes {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("file exceeds %d byte limit", s.maxUploadBytes))
		return
	}

	action := r.FormValue("action")
	if action == "" {
		action = "grid"
	}

	switch action {
	case "grid":
		s.uploadGrid(w, r, st, header.Filename, string(data))
	case "database":
		s.uploadDatabase(w, r, st, header.Filename, string(data))
	default:
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("unknown action %q", action))
	}
}

func (s *Server) uploadGrid(w http.ResponseWriter, r *http.Request, st session.State, filename, text string) {
	start := time.Now()
	s.sessions.Dispatch(st.ID, session.UploadStarted{Filename: filename})

	grid, err := s.pipeline.Run(r.Context(), text)
	if err != nil {
		s.sessions.Dispatch(st.ID, session.UploadFailed{Err: err.Error()})
		s.observeUpload("grid", "error", start, err)
		s.log.Printf("upload %q failed: %v", filename, err)
		s.writeError(w, r, statusFor(err), err)
		return
	}

	s.sessions.Dispatch(st.ID, session.GridReady{Filename: filename, Grid: grid})
	s.observeUpload("grid", "ok", start, nil)
	metrics.IncCounter(metrics.RowsTotal, float64(len(grid.Data)), metrics.Labels{"kind": "grid"})
	s.log.Printf("upload %q: %d rows, %d columns", filename, len(grid.Data), len(grid.Columns))

	s.respond(w, r, http.StatusOK, grid)
}

func (s *Server) uploadDatabase(w http.ResponseWriter, r *http.Request, st session.State, filename, text string) {
	start := time.Now()
	s.sessions.Dispatch(st.ID, session.IngestStarted{Filename: filename})

	fail := func(status int, err error) {
		s.sessions.Dispatch(st.ID, session.IngestFailed{Err: err.Error()})
		s.observeUpload("database", "error", start, err)
		s.log.Printf("ingest %q failed: %v", filename, err)
		s.writeError(w, r, status, err)
	}

	if s.repo == nil {
		fail(http.StatusServiceUnavailable, errors.New("no storage backend configured"))
		return
	}

	grid, err := s.pipeline.Run(r.Context(), text)
	if err != nil {
		fail(statusFor(err), err)
		return
	}

	ds := storage.DatasetFromGrid(filename, grid)
	if err := s.repo.EnsureTable(r.Context(), ds.Spec); err != nil {
		fail(http.StatusBadGateway, err)
		return
	}
	n, err := s.repo.InsertRows(r.Context(), ds.Table, ds.Columns, ds.Rows)
	if err != nil {
		fail(http.StatusBadGateway, err)
		return
	}

	s.sessions.Dispatch(st.ID, session.GridReady{Filename: filename, Grid: grid})
	s.sessions.Dispatch(st.ID, session.IngestFinished{Table: ds.Table, Rows: n})
	s.observeUpload("database", "ok", start, nil)
	metrics.IncCounter(metrics.RowsTotal, float64(n), metrics.Labels{"kind": "stored"})
	s.log.Printf("ingest %q: stored %d rows in %s", filename, n, ds.Table)

	s.respond(w, r, http.StatusOK, map[string]any{"table": ds.Table, "rows_stored": n})
}

func (s *Server) handleGrid(w http.ResponseWriter, r *http.Request) {
	st := s.sessionState(w, r)
	if st.Grid == nil {
		s.writeError(w, r, http.StatusNotFound, ErrNoDataset)
		return
	}
	s.respond(w, r, http.StatusOK, st.Grid)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	st := s.sessionState(w, r)

	question, err := readQuestion(r)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if st.Grid == nil {
		s.writeError(w, r, http.StatusConflict, ErrNoDataset)
		return
	}

	history := st.Messages
	s.sessions.Dispatch(st.ID, session.ChatAsked{Question: question})

	start := time.Now()
	reply, err := s.chatter.Ask(r.Context(), chat.DatasetSummary(st.Filename, st.Grid), history, question)
	if err != nil {
		s.sessions.Dispatch(st.ID, session.ChatFailed{Err: err.Error()})
		s.observeChat("error", start)
		s.log.Printf("chat failed: %v", err)
		s.writeError(w, r, statusFor(err), err)
		return
	}

	s.sessions.Dispatch(st.ID, session.ChatAnswered{Reply: reply})
	s.observeChat("ok", start)

	s.respond(w, r, http.StatusOK, map[string]string{"reply": reply})
}

func readQuestion(r *http.Request) (string, error) {
	var question string
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var body struct {
			Question string `json:"question"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return "", fmt.Errorf("parse chat request: %w", err)
		}
		question = body.Question
	} else {
		question = r.FormValue("question")
	}

	question = strings.TrimSpace(question)
	if question == "" {
		return "", errors.New("question must not be empty")
	}
	return question, nil
}

// statusFor maps pipeline and chat failures onto HTTP statuses: malformed
// input is the client's fault, upstream model failures are a bad gateway.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ingest.ErrEmptyInput), errors.Is(err, ingest.ErrDuplicateHeader):
		return http.StatusBadRequest
	case errors.Is(err, inference.ErrInference), errors.Is(err, chat.ErrChat):
		return http.StatusBadGateway
	case errors.Is(err, ErrNoDataset):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// wantsHTML distinguishes the page's plain form posts from API clients.
func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

// respond redirects browsers back to the page (the session already holds the
// new state) and serves JSON to everyone else.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, status int, v any) {
	if wantsHTML(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	if wantsHTML(r) {
		// Failure dispatches already stored the message for the banner.
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func (s *Server) observeUpload(action, status string, start time.Time, err error) {
	labels := metrics.Labels{"action": action, "status": status}
	metrics.IncCounter(metrics.UploadsTotal, 1, labels)
	metrics.ObserveHistogram(metrics.UploadDurationSeconds, time.Since(start).Seconds(), labels)

	if status == "ok" {
		metrics.IncCounter(metrics.InferenceTotal, 1, metrics.Labels{"status": "ok"})
	} else if errors.Is(err, inference.ErrInference) {
		metrics.IncCounter(metrics.InferenceTotal, 1, metrics.Labels{"status": "error"})
	}
}

func (s *Server) observeChat(status string, start time.Time) {
	metrics.IncCounter(metrics.ChatTotal, 1, metrics.Labels{"status": status})
	metrics.ObserveHistogram(metrics.ChatDurationSeconds, time.Since(start).Seconds(), metrics.Labels{"status": status})
}
