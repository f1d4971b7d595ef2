package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"form-intake/internal/ingest"
	"form-intake/internal/storage/storagetest"
	"form-intake/internal/submission"
)

type testEnv struct {
	srv     *Server
	mem     *submission.MemStore
	store   *submission.Observed
	hooks   *submission.Hooks
	files   *storagetest.Fake
	metrics *Metrics
}

// newTestEnv builds a server over an in-memory store and a fake file
// store. Mutators run before the pipeline is built, so replacing Files
// also changes where submissions upload to.
func newTestEnv(t *testing.T, mutate ...func(*Config)) *testEnv {
	t.Helper()

	env := &testEnv{
		mem:     submission.NewMemStore(),
		hooks:   submission.NewHooks(),
		files:   storagetest.New(),
		metrics: NewMetrics(),
	}
	env.store = submission.Observe(env.mem, env.hooks)

	cfg := Config{
		Addr:            ":0",
		Build:           BuildInfo{Version: "test", Commit: "abc123"},
		Logger:          NewLogger(LogConfig{Level: "error"}),
		StreamKeepAlive: time.Hour,
		StreamBuffer:    64,
		Store:           env.store,
		Hooks:           env.hooks,
		Files:           env.files,
		Metrics:         env.metrics,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	if cfg.Submitter == nil {
		cfg.Submitter = ingest.NewPipeline(cfg.Files, env.store, ingest.Options{
			OnUpload: env.metrics.RecordFileUploaded,
		})
	}

	env.srv = New(cfg)
	t.Cleanup(func() { _ = env.srv.Shutdown(context.Background()) })
	return env
}

func (e *testEnv) count(t *testing.T) int {
	t.Helper()
	n, err := e.mem.Count(context.Background())
	require.NoError(t, err)
	return n
}

type filePart struct {
	field    string
	filename string
	body     []byte
}

func multipartBody(t *testing.T, fields map[string]string, files ...filePart) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		w, err := mw.CreateFormFile(f.field, f.filename)
		require.NoError(t, err)
		_, err = w.Write(f.body)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func multipartRequest(t *testing.T, fields map[string]string, files ...filePart) *http.Request {
	t.Helper()

	body, contentType := multipartBody(t, fields, files...)
	req := httptest.NewRequest(http.MethodPost, "/api/submit", body)
	req.Header.Set("Content-Type", contentType)
	return req
}

func serve(env *testEnv, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestSecurityHeaders(t *testing.T) {
	env := newTestEnv(t)

	rr := serve(env, httptest.NewRequest(http.MethodGet, "/live", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-referrer", rr.Header().Get("Referrer-Policy"))
	assert.NotEmpty(t, rr.Header().Get("Content-Security-Policy"))
}

func TestCORS_AllowsConfiguredOrigin(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.CORSOrigins = []string{"https://dashboard.example"}
	})

	req := httptest.NewRequest(http.MethodGet, "/api/submissions", nil)
	req.Header.Set("Origin", "https://dashboard.example")
	rr := serve(env, req)
	assert.Equal(t, "https://dashboard.example", rr.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/submissions", nil)
	req.Header.Set("Origin", "https://evil.example")
	rr = serve(env, req)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t)

	rr := serve(env, httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = serve(env, httptest.NewRequest(http.MethodGet, "/api/submit", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestParseLevel(t *testing.T) {
	tests := map[string]string{
		"debug":   "DEBUG",
		"INFO":    "INFO",
		"warn":    "WARN",
		"error":   "ERROR",
		"":        "INFO",
		"verbose": "INFO",
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in).String(), in)
	}
}
