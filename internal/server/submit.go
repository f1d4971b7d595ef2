package server

import (
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/go-chi/httplog/v2"

	"form-intake/internal/ingest"
	"form-intake/internal/storage"
	"form-intake/internal/submission"
)

// multipartMemory is how much of a multipart body is held in memory;
// larger files spill to temporary files.
const multipartMemory = 32 << 20

type submitResponse struct {
	Success bool                  `json:"success"`
	Data    submission.Submission `json:"data"`
}

// handleSubmit handles POST /api/submit. The body is multipart form data
// with the text fields name, email and phone and any number of
// "documents" and "images" file parts. Scalars are not validated.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	logger := httplog.LogEntry(r.Context())
	start := time.Now()

	// A missing storage configuration fails before the body is read.
	if s.cfg.Files != nil {
		if _, err := s.cfg.Files.Open(r.Context()); errors.Is(err, storage.ErrNotConfigured) {
			s.rejectUnconfigured(w, logger)
			return
		}
	}

	if s.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	}

	form, err := parseSubmitForm(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			logger.Warn("submission too large", "limit", tooLarge.Limit)
			s.metrics.RecordSubmissionFailure("too_large")
			writeError(w, http.StatusRequestEntityTooLarge, "Submission too large")
			return
		}
		logger.Error("failed to parse submission", "error", err)
		s.metrics.RecordSubmissionFailure("parse")
		writeError(w, http.StatusInternalServerError, "Failed to process submission")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	sub, err := s.cfg.Submitter.Submit(r.Context(), form)
	if err != nil {
		if errors.Is(err, ingest.ErrStorageNotConfigured) {
			s.rejectUnconfigured(w, logger)
			return
		}
		step := ingest.FailedStep(err)
		logger.Error("submission failed", "step", step, "error", err)
		s.metrics.RecordSubmissionFailure(string(step))
		writeError(w, http.StatusInternalServerError, "Failed to process submission")
		return
	}

	s.metrics.RecordSubmission(time.Since(start))
	logger.Info("submission stored",
		"submission_id", sub.ID,
		"documents", len(sub.Documents),
		"images", len(sub.Images),
	)
	writeJSON(w, http.StatusOK, submitResponse{Success: true, Data: sub})
}

func (s *Server) rejectUnconfigured(w http.ResponseWriter, logger *slog.Logger) {
	logger.Error("storage configuration missing")
	s.metrics.RecordSubmissionFailure("config")
	writeError(w, http.StatusInternalServerError, "Google Drive configuration missing")
}

func parseSubmitForm(r *http.Request) (ingest.Form, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return ingest.Form{}, err
	}
	mf := r.MultipartForm

	return ingest.Form{
		Name:      firstValue(mf, "name"),
		Email:     firstValue(mf, "email"),
		Phone:     firstValue(mf, "phone"),
		Documents: attachments(mf.File["documents"]),
		Images:    attachments(mf.File["images"]),
	}, nil
}

func firstValue(mf *multipart.Form, key string) string {
	if vs := mf.Value[key]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

func attachments(headers []*multipart.FileHeader) []ingest.Attachment {
	out := make([]ingest.Attachment, 0, len(headers))
	for _, fh := range headers {
		out = append(out, ingest.Attachment{
			Filename:    SanitizeFilename(fh.Filename),
			ContentType: contentTypeOf(fh),
			Size:        fh.Size,
			Open: func() (io.ReadCloser, error) {
				return fh.Open()
			},
		})
	}
	return out
}
