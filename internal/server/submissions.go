package server

import (
	"net/http"

	"github.com/go-chi/httplog/v2"

	"form-intake/internal/submission"
)

// handleListSubmissions handles GET /api/submissions: every record,
// newest first, never cached.
func (s *Server) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	logger := httplog.LogEntry(r.Context())

	subs, err := s.cfg.Store.ListNewestFirst(r.Context())
	if err != nil {
		logger.Error("failed to list submissions", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch submissions")
		return
	}
	if subs == nil {
		subs = []submission.Submission{}
	}

	h := w.Header()
	h.Set("Cache-Control", "no-store, max-age=0")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
	writeJSON(w, http.StatusOK, subs)
}
