package server

import (
	"net/http"
	"runtime"
	"time"
)

// healthTTL caches the external-store probe so health checks polled by
// orchestrators do not hammer the chat API.
const healthTTL = 30 * time.Second

type discordHealth struct {
	OK        bool   `json:"ok"`
	LatencyMS int64  `json:"latencyMs"`
	Error     string `json:"error,omitempty"`
}

// checkDiscord returns the cached health snapshot, probing anew when the
// cache is older than healthTTL. The probe runs outside the lock so a slow
// upstream cannot queue health checks behind it; concurrent cache misses
// may probe more than once, last writer wins.
func (s *Server) checkDiscord(r *http.Request) *discordHealth {
	s.healthMu.Lock()
	if s.healthSnap != nil && time.Since(s.healthChecked) < healthTTL {
		snap := s.healthSnap
		s.healthMu.Unlock()

		return snap
	}
	s.healthMu.Unlock()

	snap := &discordHealth{}

	latency, err := s.pinger.Ping(r.Context())
	if err != nil {
		snap.Error = err.Error()
	} else {
		snap.OK = true
		snap.LatencyMS = latency.Milliseconds()
	}

	s.healthMu.Lock()
	s.healthSnap = snap
	s.healthChecked = time.Now()
	s.healthMu.Unlock()

	return snap
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if _, err := s.index.Stats(r.Context()); err != nil {
		dbOK = false
	}

	ds := s.checkDiscord(r)

	status := "ok"
	if !dbOK || !ds.OK {
		status = "degraded"
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	s.writeData(w, http.StatusOK, map[string]any{
		"status":   status,
		"database": map[string]any{"ok": dbOK},
		"discord":  ds,
		"uptime":   int64(time.Since(s.startedAt).Seconds()),
		"memory": map[string]any{
			"allocBytes": mem.Alloc,
			"sysBytes":   mem.Sys,
		},
		"version": s.version,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.index.Stats(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	s.writeData(w, http.StatusOK, stats)
}

func (s *Server) handleBackup(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Backup(r.Context()); err != nil {
		s.respondError(w, r, err)
		return
	}

	s.writeData(w, http.StatusOK, map[string]any{"backedUp": true})
}
