package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/nekodrive/nekodrive/internal/discord"
	"github.com/nekodrive/nekodrive/internal/index"
	"github.com/nekodrive/nekodrive/internal/transfer"
)

// envelope is the uniform response shape of the JSON API.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Details string `json:"details,omitempty"`
}

func (s *Server) writeData(w http.ResponseWriter, status int, data any) {
	s.writeJSON(w, status, envelope{Success: true, Data: data})
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, envelope{Success: false, Error: message})
}

func (s *Server) writeValidationError(w http.ResponseWriter, details string) {
	s.writeJSON(w, http.StatusBadRequest, envelope{
		Success: false,
		Error:   "validation failed",
		Details: details,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("writing response failed", slog.String("error", err.Error()))
	}
}

// respondError maps engine and index errors onto the API's error kinds.
// Detailed diagnostics stay in the logs; clients get stable short strings.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var upstream *discord.UpstreamError

	switch {
	case errors.Is(err, index.ErrConflict):
		s.writeError(w, http.StatusConflict, "file already exists")
	case errors.Is(err, transfer.ErrUploadAborted):
		s.writeError(w, http.StatusNotFound, "upload session not found")
	case errors.Is(err, index.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, transfer.ErrInvalidChunkIndex):
		s.writeError(w, http.StatusBadRequest, "cannot resolve chunk index")
	case errors.Is(err, transfer.ErrRangeNotSatisfiable):
		s.writeError(w, http.StatusRequestedRangeNotSatisfiable, "range not satisfiable")
	case errors.Is(err, transfer.ErrBackupUnconfigured):
		s.writeError(w, http.StatusBadRequest, "backup channel not configured")
	case errors.As(err, &upstream):
		s.logger.Error("upstream store failure",
			slog.String("path", r.URL.Path),
			slog.Int("status", upstream.StatusCode),
			slog.String("error", err.Error()),
		)
		s.writeError(w, http.StatusBadGateway, "upstream store error")
	default:
		s.logger.Error("internal error",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}
