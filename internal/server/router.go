package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Handler builds the API router. No global request timeout is installed:
// full-file streams legitimately run for minutes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireSecret)

		r.Route("/upload/file", func(r chi.Router) {
			r.Post("/init", s.handleUploadInit)
			r.Delete("/pending/all", s.handlePurgePending)
			r.Post("/{id}/chunk", s.handleUploadChunk)
			r.Get("/{id}/chunks", s.handleStoredChunks)
			r.Post("/{id}/finalize", s.handleFinalize)
			r.Post("/{id}/abort", s.handleAbort)
		})

		r.Route("/files", func(r chi.Router) {
			r.Get("/", s.handleListFiles)
			r.Get("/search", s.handleSearchFiles)
			r.Delete("/trash", s.handleEmptyTrash)
			r.Get("/{id}", s.handleGetFile)
			r.Post("/{id}/restore", s.handleRestoreFile)
			r.Delete("/{id}", s.handleDeleteFile)
		})

		r.Get("/download/{id}", s.handleDownload)
		r.Get("/stream/file/{id}", s.handleStream)

		r.Route("/system", func(r chi.Router) {
			r.Get("/health", s.handleHealth)
			r.Get("/stats", s.handleStats)
			r.Post("/backup", s.handleBackup)
		})
	})

	return r
}
