package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nekodrive/nekodrive/internal/index"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// statusParam validates the ?status= filter, defaulting to active. Pending
// files are internal upload state and not listable.
func statusParam(r *http.Request) (string, bool) {
	switch status := r.URL.Query().Get("status"); status {
	case "", index.StatusActive:
		return index.StatusActive, true
	case index.StatusTrashed:
		return index.StatusTrashed, true
	default:
		return "", false
	}
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	status, ok := statusParam(r)
	if !ok {
		s.writeValidationError(w, "status must be active or trashed")
		return
	}

	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxListLimit {
			s.writeValidationError(w, "limit must be between 1 and 1000")
			return
		}

		limit = n
	}

	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeValidationError(w, "offset must be non-negative")
			return
		}

		offset = n
	}

	files, total, err := s.index.ListFiles(r.Context(), status, limit, offset)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if files == nil {
		files = []index.File{}
	}

	s.writeData(w, http.StatusOK, map[string]any{
		"files":  files,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func (s *Server) handleSearchFiles(w http.ResponseWriter, r *http.Request) {
	status, ok := statusParam(r)
	if !ok {
		s.writeValidationError(w, "status must be active or trashed")
		return
	}

	files, err := s.index.SearchFiles(r.Context(), r.URL.Query().Get("q"), status)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if files == nil {
		files = []index.File{}
	}

	s.writeData(w, http.StatusOK, map[string]any{"files": files})
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "id")

	f, err := s.index.GetFile(r.Context(), fileID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	chunks, err := s.index.GetChunks(r.Context(), fileID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if chunks == nil {
		chunks = []index.Chunk{}
	}

	s.writeData(w, http.StatusOK, map[string]any{
		"file":   f,
		"chunks": chunks,
	})
}

func (s *Server) handleRestoreFile(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "id")

	if err := s.engine.RestoreFile(r.Context(), fileID); err != nil {
		s.respondError(w, r, err)
		return
	}

	s.writeData(w, http.StatusOK, map[string]any{
		"id":     fileID,
		"status": index.StatusActive,
	})
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "id")

	outcome, err := s.engine.DeleteFile(r.Context(), fileID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	s.writeData(w, http.StatusOK, map[string]any{
		"id":     fileID,
		"status": outcome,
	})
}

func (s *Server) handleEmptyTrash(w http.ResponseWriter, r *http.Request) {
	n, err := s.engine.EmptyTrash(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	s.writeData(w, http.StatusOK, map[string]any{"deleted": n})
}
