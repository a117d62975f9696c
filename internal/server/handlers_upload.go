package server

import (
	"bufio"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nekodrive/nekodrive/internal/index"
)

// initRequest is the body of POST /api/upload/file/init. The iv and salt
// strings are opaque to the server; clients use them for their own
// decryption and the server only stores them.
type initRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Size int64  `json:"size"`
	Type string `json:"type"`
	IV   string `json:"iv"`
	Salt string `json:"salt"`
}

func (s *Server) handleUploadInit(w http.ResponseWriter, r *http.Request) {
	var req initRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeValidationError(w, "invalid JSON body")
		return
	}

	switch {
	case req.ID == "":
		s.writeValidationError(w, "id is required")
		return
	case req.Name == "":
		s.writeValidationError(w, "name is required")
		return
	case req.Size < 0:
		s.writeValidationError(w, "size must be non-negative")
		return
	}

	err := s.engine.InitUpload(r.Context(), index.File{
		ID:   req.ID,
		Name: req.Name,
		Size: req.Size,
		Type: req.Type,
		IV:   req.IV,
		Salt: req.Salt,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	s.writeData(w, http.StatusCreated, map[string]any{
		"id":     req.ID,
		"status": index.StatusPending,
	})
}

func (s *Server) handleUploadChunk(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "id")

	idx, err := s.engine.ResolveChunkIndex(r.Context(), fileID,
		r.Header.Get("X-Chunk-Number"), r.Header.Get("Content-Range"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	// Reject empty bodies before anything is uploaded. Peeking also covers
	// chunked requests where ContentLength is unknown.
	body := bufio.NewReader(r.Body)
	if _, err := body.Peek(1); err != nil {
		s.writeValidationError(w, "empty chunk body")
		return
	}

	messageID, err := s.engine.UploadChunk(r.Context(), fileID, idx, body)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	s.writeData(w, http.StatusOK, map[string]any{
		"messageId": messageID,
		"index":     idx,
	})
}

func (s *Server) handleStoredChunks(w http.ResponseWriter, r *http.Request) {
	indexes, err := s.engine.StoredChunkIndexes(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	s.writeData(w, http.StatusOK, map[string]any{"chunks": indexes})
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "id")
	skipBackup := r.URL.Query().Get("skip_backup") == "true"

	if err := s.engine.Finalize(r.Context(), fileID, skipBackup); err != nil {
		s.respondError(w, r, err)
		return
	}

	s.writeData(w, http.StatusOK, map[string]any{
		"id":     fileID,
		"status": index.StatusActive,
	})
}

func (s *Server) handleAbort(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Abort(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.respondError(w, r, err)
		return
	}

	s.writeData(w, http.StatusOK, map[string]any{"aborted": true})
}

func (s *Server) handlePurgePending(w http.ResponseWriter, r *http.Request) {
	n, err := s.engine.PurgePending(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	s.writeData(w, http.StatusOK, map[string]any{"purged": n})
}
