package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"form-intake/internal/ingest"
	"form-intake/internal/storage/storagetest"
	"form-intake/internal/submission"
)

var adaFields = map[string]string{
	"name":  "Ada Lovelace",
	"email": "ada@example.com",
	"phone": "+1-555-0100",
}

func TestSubmit_AdaLovelace(t *testing.T) {
	env := newTestEnv(t)

	pdf := append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte{'x'}, 2048)...)
	rr := serve(env, multipartRequest(t, adaFields, filePart{"documents", "notes.pdf", pdf}))

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp := decode[submitResponse](t, rr)
	assert.True(t, resp.Success)
	assert.Equal(t, "Ada Lovelace", resp.Data.Name)
	assert.Equal(t, "ada@example.com", resp.Data.Email)
	assert.Equal(t, "+1-555-0100", resp.Data.Phone)
	assert.Len(t, resp.Data.Documents, 1)
	assert.Len(t, resp.Data.Images, 0)
	assert.NotEmpty(t, resp.Data.ID)

	assert.Equal(t, 1, env.count(t))

	folders := env.files.Folders()
	require.Len(t, folders, 1)
	assert.True(t, strings.HasPrefix(folders[0].Name, "Ada Lovelace - "))
}

func TestSubmit_ZeroFiles(t *testing.T) {
	env := newTestEnv(t)

	rr := serve(env, multipartRequest(t, adaFields))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"documents":[]`)
	assert.Contains(t, rr.Body.String(), `"images":[]`)
	resp := decode[submitResponse](t, rr)
	assert.Equal(t, "Ada Lovelace", resp.Data.Name)
}

func TestSubmit_ManyFilesGetDistinctLinks(t *testing.T) {
	env := newTestEnv(t)

	rr := serve(env, multipartRequest(t, adaFields,
		filePart{"documents", "a.pdf", []byte("a")},
		filePart{"documents", "b.pdf", []byte("b")},
		filePart{"documents", "c.pdf", []byte("c")},
		filePart{"images", "x.png", []byte("x")},
		filePart{"images", "y.png", []byte("y")},
	))

	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode[submitResponse](t, rr)
	require.Len(t, resp.Data.Documents, 3)
	require.Len(t, resp.Data.Images, 2)

	seen := map[string]bool{}
	for _, l := range append(resp.Data.Documents, resp.Data.Images...) {
		assert.False(t, seen[l], "duplicate link %s", l)
		seen[l] = true
	}
	assert.Equal(t, int64(5), env.metrics.Snapshot().FilesUploadedTotal)
}

func TestSubmit_UploadFailureWritesNothing(t *testing.T) {
	env := newTestEnv(t)
	env.files.FailUpload = func(name string) error {
		if name == "b.png" {
			return errors.New("drive quota exceeded")
		}
		return nil
	}

	rr := serve(env, multipartRequest(t, adaFields,
		filePart{"images", "a.png", []byte("a")},
		filePart{"images", "b.png", []byte("b")},
	))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "Failed to process submission", decode[errorResponse](t, rr).Error)
	assert.Zero(t, env.count(t))
	assert.Equal(t, int64(1), env.metrics.Snapshot().SubmissionFailures["upload"])
}

func TestSubmit_StorageNotConfigured(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.Files = storagetest.Unconfigured{}
	})

	rr := serve(env, multipartRequest(t, adaFields, filePart{"documents", "cv.pdf", []byte("pdf")}))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "Google Drive configuration missing", decode[errorResponse](t, rr).Error)
	assert.Zero(t, env.count(t))
	assert.Empty(t, env.files.Folders())
}

// countingReader records whether the handler touched the request body.
type countingReader struct {
	r    io.Reader
	read int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.read += n
	return n, err
}

func TestSubmit_StorageCheckedBeforeBodyIsRead(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		contentType string
		maxBytes    int64
	}{
		{"malformed body", "garbage", "text/plain", 0},
		{"oversized body", strings.Repeat("x", 4096), "multipart/form-data; boundary=xyz", 16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, func(c *Config) {
				c.Files = storagetest.Unconfigured{}
				c.MaxUploadBytes = tt.maxBytes
			})

			body := &countingReader{r: strings.NewReader(tt.body)}
			req := httptest.NewRequest(http.MethodPost, "/api/submit", body)
			req.Header.Set("Content-Type", tt.contentType)
			rr := serve(env, req)

			assert.Equal(t, http.StatusInternalServerError, rr.Code)
			assert.Equal(t, "Google Drive configuration missing", decode[errorResponse](t, rr).Error)
			assert.Zero(t, body.read)
			assert.Equal(t, map[string]int64{"config": 1}, env.metrics.Snapshot().SubmissionFailures)
		})
	}
}

func TestSubmit_NotMultipart(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/submit", strings.NewReader(`{"name":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	rr := serve(env, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "Failed to process submission", decode[errorResponse](t, rr).Error)
	assert.Zero(t, env.count(t))
}

func TestSubmit_TooLarge(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.MaxUploadBytes = 1024
	})

	rr := serve(env, multipartRequest(t, adaFields,
		filePart{"documents", "big.pdf", bytes.Repeat([]byte{'x'}, 4096)},
	))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	assert.Equal(t, "Submission too large", decode[errorResponse](t, rr).Error)
	assert.Zero(t, env.count(t))
}

func TestSubmit_RateLimited(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.SubmitRate = 2
		c.SubmitWindow = time.Minute
	})

	for i := 0; i < 2; i++ {
		rr := serve(env, multipartRequest(t, adaFields))
		require.Equal(t, http.StatusOK, rr.Code)
	}

	rr := serve(env, multipartRequest(t, adaFields))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "Too many submissions", decode[errorResponse](t, rr).Error)
	assert.Equal(t, 2, env.count(t))

	// Listing is not limited.
	rr = serve(env, httptest.NewRequest(http.MethodGet, "/api/submissions", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

type stubSubmitter struct {
	err error
}

func (s stubSubmitter) Submit(ctx context.Context, form ingest.Form) (submission.Submission, error) {
	return submission.Submission{}, s.err
}

func TestSubmit_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
		reason  string
	}{
		{"config", ingest.ErrStorageNotConfigured, "Google Drive configuration missing", "config"},
		{"folder", &ingest.StepError{Step: ingest.StepFolder, Err: errors.New("x")}, "Failed to process submission", "folder"},
		{"persist", &ingest.StepError{Step: ingest.StepPersist, Err: errors.New("x")}, "Failed to process submission", "persist"},
		{"unclassified", errors.New("x"), "Failed to process submission", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, func(c *Config) {
				c.Submitter = stubSubmitter{err: tt.err}
			})

			rr := serve(env, multipartRequest(t, adaFields))

			assert.Equal(t, http.StatusInternalServerError, rr.Code)
			assert.Equal(t, tt.wantMsg, decode[errorResponse](t, rr).Error)
			assert.Equal(t, int64(1), env.metrics.Snapshot().SubmissionFailures[tt.reason])
		})
	}
}
