// Package server exposes the dashboard over HTTP: one HTML page plus a small
// JSON API the page's forms and scripts both use. Handlers are thin; every
// state change goes through the session store's dispatch.
package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"gridchat/internal/chat"
	"gridchat/internal/ingest"
	"gridchat/internal/session"
	"gridchat/internal/storage"
	"gridchat/internal/ui"
)

// ErrNoDataset is returned for chat and grid reads before any upload.
var ErrNoDataset = errors.New("no dataset loaded for this session")

// Ingestor turns raw delimited text into a typed grid.
type Ingestor interface {
	Run(ctx context.Context, text string) (*ingest.TypedGrid, error)
}

// Chatter answers a question about the active dataset.
type Chatter interface {
	Ask(ctx context.Context, datasetContext string, history []chat.Message, question string) (string, error)
}

type Options struct {
	Log      *log.Logger
	Pipeline Ingestor
	Chatter  Chatter

	// Repo is the storage backend for database pushes. Nil disables them.
	Repo storage.Repository

	// MaxUploadBytes caps multipart uploads. Zero means 32 MiB.
	MaxUploadBytes int64
}

type Server struct {
	log      *log.Logger
	pipeline Ingestor
	chatter  Chatter
	repo     storage.Repository
	sessions *session.Store

	maxUploadBytes int64
}

func New(opts Options) *Server {
	logger := opts.Log
	if logger == nil {
		logger = log.Default()
	}
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 32 << 20
	}
	return &Server{
		log:            logger,
		pipeline:       opts.Pipeline,
		chatter:        opts.Chatter,
		repo:           opts.Repo,
		sessions:       session.NewStore(),
		maxUploadBytes: maxUpload,
	}
}

// Router builds the HTTP handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
	}))

	r.Get("/", s.handleIndex)
	r.Get("/static/app.css", ui.ServeCSS)
	r.Post("/api/upload", s.handleUpload)
	r.Get("/api/grid", s.handleGrid)
	r.Post("/api/chat", s.handleChat)

	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Printf("%s %s -> %d (%s)", r.Method, r.URL.Path, ww.Status(), time.Since(start).Round(time.Millisecond))
	})
}
