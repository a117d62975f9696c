package server

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nekodrive/nekodrive/internal/index"
)

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "id")

	f, err := s.index.GetFile(r.Context(), fileID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if raw := r.URL.Query().Get("index"); raw != "" {
		idx, convErr := strconv.Atoi(raw)
		if convErr != nil || idx < 0 {
			s.writeValidationError(w, "index must be a non-negative integer")
			return
		}

		s.serveChunk(w, r, f, idx)

		return
	}

	s.serveFullStream(w, r, f)
}

// serveChunk proxies the body of one chunk. Clients downloading for local
// decryption fetch chunk by chunk, so the response is the raw ciphertext
// blob with its exact length.
func (s *Server) serveChunk(w http.ResponseWriter, r *http.Request, f *index.File, idx int) {
	c, err := s.index.GetChunk(r.Context(), f.ID, idx)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	body, err := s.engine.FetchChunk(r.Context(), c)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(c.Size, 10))
	w.Header().Set("Content-Disposition", contentDisposition(f.Name, false))
	w.Header().Set("Cache-Control", "no-store")

	if _, err := io.Copy(w, body); err != nil {
		s.logger.Debug("chunk proxy interrupted",
			slog.String("file_id", f.ID),
			slog.Int("idx", idx),
			slog.String("error", err.Error()),
		)
	}
}

// serveFullStream emits the concatenated chunk bodies from start_chunk
// onward, in order, with windowed prefetching underneath.
func (s *Server) serveFullStream(w http.ResponseWriter, r *http.Request, f *index.File) {
	startChunk := 0
	if raw := r.URL.Query().Get("start_chunk"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeValidationError(w, "start_chunk must be a non-negative integer")
			return
		}

		startChunk = n
	}

	chunks, err := s.index.GetChunks(r.Context(), f.ID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if startChunk > len(chunks) {
		s.writeValidationError(w, "start_chunk beyond stored chunks")
		return
	}

	chunks = chunks[startChunk:]

	var total int64
	for _, c := range chunks {
		total += c.Size
	}

	inline := r.URL.Query().Get("inline") == "true"

	contentType := f.Type
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(total, 10))
	w.Header().Set("Content-Disposition", contentDisposition(f.Name, inline))

	if len(chunks) == 0 {
		return
	}

	// Headers are out the door; failures past this point can only cut the
	// connection short.
	if err := s.engine.StreamChunks(r.Context(), w, chunks); err != nil {
		s.logger.Debug("full stream interrupted",
			slog.String("file_id", f.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "id")

	f, err := s.index.GetFile(r.Context(), fileID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	start, end, ok := parseRangeHeader(r.Header.Get("Range"), f.Size)
	if !ok {
		s.writeError(w, http.StatusRequestedRangeNotSatisfiable, "range not satisfiable")
		return
	}

	win, body, err := s.engine.OpenRange(r.Context(), f, start, end)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer body.Close()

	contentType := f.Type
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Length", strconv.FormatInt(win.Length, 10))
	w.Header().Set("Content-Range",
		fmt.Sprintf("bytes %d-%d/%d", win.GlobalStart, win.GlobalEnd, win.TotalSize))
	w.WriteHeader(http.StatusPartialContent)

	if _, err := io.Copy(w, body); err != nil {
		s.logger.Debug("range stream interrupted",
			slog.String("file_id", f.ID),
			slog.String("error", err.Error()),
		)
	}
}

// parseRangeHeader interprets a single-range "bytes=start-end" header
// against a file of the given size, with defaults when the header is absent.
// Suffix ranges ("bytes=-n") and open ends ("bytes=n-") are supported;
// multi-range and malformed headers are not satisfiable.
func parseRangeHeader(header string, size int64) (start, end int64, ok bool) {
	if size == 0 {
		return 0, 0, false
	}

	if header == "" {
		return 0, size - 1, true
	}

	spec, found := strings.CutPrefix(header, "bytes=")
	if !found || strings.Contains(spec, ",") {
		return 0, 0, false
	}

	startStr, endStr, found := strings.Cut(spec, "-")
	if !found {
		return 0, 0, false
	}

	if startStr == "" {
		// Suffix range: the last n bytes.
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n <= 0 {
			return 0, 0, false
		}

		if n > size {
			n = size
		}

		return size - n, size - 1, true
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 || start >= size {
		return 0, 0, false
	}

	end = size - 1

	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil || end < start {
			return 0, 0, false
		}

		if end >= size {
			end = size - 1
		}
	}

	return start, end, true
}

// contentDisposition builds an RFC 5987 disposition header so names survive
// any UTF-8 content.
func contentDisposition(name string, inline bool) string {
	kind := "attachment"
	if inline {
		kind = "inline"
	}

	return fmt.Sprintf("%s; filename*=UTF-8''%s", kind, percentEncode(name))
}

// percentEncode escapes everything outside RFC 5987's attr-char set.
func percentEncode(value string) string {
	var b strings.Builder

	for i := 0; i < len(value); i++ {
		c := value[i]

		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteByte(c)
		case strings.ContainsRune("!#$&+-.^_`|~", rune(c)):
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}

	return b.String()
}
