package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/httplog/v2"

	"form-intake/internal/submission"
)

const snapshotErrorEvent = "event: error\ndata: {\"error\":\"Failed to fetch submissions\"}\n\n"

// handleSubmissionStream handles GET /api/subscriptions/submissions.
//
// The client first receives one "snapshot" event with every record,
// newest first, then one default event per record created while it stays
// connected. The write hook is registered before the snapshot is read so
// nothing created in between is missed; such records are already in the
// snapshot and are not pushed twice.
func (s *Server) handleSubmissionStream(w http.ResponseWriter, r *http.Request) {
	logger := httplog.LogEntry(r.Context())

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")

	updates := make(chan submission.Submission, s.cfg.StreamBuffer)
	overflow := make(chan struct{})
	var overflowOnce sync.Once

	deregister := s.cfg.Hooks.Register(func(_ context.Context, sub submission.Submission) {
		select {
		case updates <- sub:
		default:
			overflowOnce.Do(func() { close(overflow) })
		}
	})
	defer deregister()

	s.metrics.StreamOpened()
	defer s.metrics.StreamClosed()

	sw := &sseWriter{w: w, flusher: flusher}

	subs, err := s.cfg.Store.ListNewestFirst(r.Context())
	if err != nil {
		logger.Error("failed to read submissions for stream", "error", err)
		_ = sw.write(snapshotErrorEvent)
		return
	}
	if subs == nil {
		subs = []submission.Submission{}
	}

	inSnapshot := make(map[string]struct{}, len(subs))
	for _, sub := range subs {
		inSnapshot[sub.ID] = struct{}{}
	}

	if err := sw.event("snapshot", subs); err != nil {
		logger.Debug("stream client gone", "error", err)
		return
	}

	keepAlive := time.NewTicker(s.cfg.StreamKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.done:
			return
		case <-overflow:
			logger.Warn("stream buffer overflow, closing so the client resyncs", "buffer", s.cfg.StreamBuffer)
			return
		case <-keepAlive.C:
			err = sw.write(": keep-alive\n\n")
		case sub := <-updates:
			if _, dup := inSnapshot[sub.ID]; dup {
				delete(inSnapshot, sub.ID)
				continue
			}
			err = sw.event("", sub)
		}
		if err != nil {
			logger.Debug("stream client gone", "error", err)
			return
		}
	}
}

type sseWriter struct {
	w       io.Writer
	flusher http.Flusher
}

func (s *sseWriter) write(frame string) error {
	if _, err := io.WriteString(s.w, frame); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// event writes v as a JSON data line. An empty name leaves the event
// type at the SSE default, "message".
func (s *sseWriter) event(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	frame := "data: " + string(data) + "\n\n"
	if name != "" {
		frame = "event: " + name + "\n" + frame
	}
	return s.write(frame)
}
