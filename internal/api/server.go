package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"docrag/internal/session"
)

// Server is the HTTP API over a single document session.
type Server struct {
	router         chi.Router
	sess           *session.Session
	log            *slog.Logger
	validate       *validator.Validate
	maxUploadBytes int64
}

// NewServer creates and configures the HTTP server.
func NewServer(sess *session.Session, log *slog.Logger, maxUploadBytes int64) *Server {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 20 << 20
	}
	s := &Server{
		sess:           sess,
		log:            log,
		validate:       validator.New(),
		maxUploadBytes: maxUploadBytes,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/documents", s.handleLoadDocument)
		r.Delete("/documents", s.handleResetDocument)
		r.Post("/query", s.handleQuery)
		r.Get("/stats", s.handleStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
