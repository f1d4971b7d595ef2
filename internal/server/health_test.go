package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"form-intake/internal/storage"
	"form-intake/internal/storage/storagetest"
)

type fakeRow struct{ err error }

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if p, ok := dest[0].(*int); ok {
		*p = 1
	}
	return nil
}

type fakeDB struct{ err error }

func (d fakeDB) Ping(ctx context.Context) error { return d.err }

func (d fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return fakeRow{err: d.err}
}

type failingCheck struct{ *storagetest.Fake }

func (f failingCheck) Open(ctx context.Context) (storage.FileStore, error) { return f, nil }

func (failingCheck) Check(ctx context.Context) error { return errors.New("bucket gone") }

func TestHandleLive(t *testing.T) {
	env := newTestEnv(t)

	rr := serve(env, httptest.NewRequest(http.MethodGet, "/live", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"alive"}`, rr.Body.String())
}

func TestHandleReady(t *testing.T) {
	tests := []struct {
		name string
		db   Database
		want int
	}{
		{"memory store", nil, http.StatusOK},
		{"database up", fakeDB{}, http.StatusOK},
		{"database down", fakeDB{err: errors.New("refused")}, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, func(c *Config) { c.DB = tt.db })

			rr := serve(env, httptest.NewRequest(http.MethodGet, "/ready", nil))
			assert.Equal(t, tt.want, rr.Code)
		})
	}
}

func TestHandleHealth(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		code      int
		status    HealthStatus
		component string
		compState ComponentStatus
	}{
		{
			name:      "all up",
			mutate:    func(c *Config) { c.DB = fakeDB{} },
			code:      http.StatusOK,
			status:    HealthStatusHealthy,
			component: "database",
			compState: ComponentStatusUp,
		},
		{
			name:      "storage not configured",
			mutate:    func(c *Config) { c.Files = storagetest.Unconfigured{} },
			code:      http.StatusOK,
			status:    HealthStatusDegraded,
			component: "storage",
			compState: ComponentStatusDegraded,
		},
		{
			name:      "storage check failing",
			mutate:    func(c *Config) { c.Files = failingCheck{storagetest.New()} },
			code:      http.StatusServiceUnavailable,
			status:    HealthStatusUnhealthy,
			component: "storage",
			compState: ComponentStatusDown,
		},
		{
			name:      "database down",
			mutate:    func(c *Config) { c.DB = fakeDB{err: errors.New("refused")} },
			code:      http.StatusServiceUnavailable,
			status:    HealthStatusUnhealthy,
			component: "database",
			compState: ComponentStatusDown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.mutate)

			rr := serve(env, httptest.NewRequest(http.MethodGet, "/health", nil))

			require.Equal(t, tt.code, rr.Code)
			h := decode[Health](t, rr)
			assert.Equal(t, tt.status, h.Status)
			assert.Equal(t, "test", h.Version)
			require.Contains(t, h.Components, tt.component)
			assert.Equal(t, tt.compState, h.Components[tt.component].Status)
			assert.Contains(t, h.Components, "submissions")
		})
	}
}

func TestDetermineOverallHealth(t *testing.T) {
	assert.Equal(t, HealthStatusHealthy, determineOverallHealth(map[string]ComponentHealth{
		"a": {Status: ComponentStatusUp},
	}))
	assert.Equal(t, HealthStatusDegraded, determineOverallHealth(map[string]ComponentHealth{
		"a": {Status: ComponentStatusUp},
		"b": {Status: ComponentStatusDegraded},
	}))
	assert.Equal(t, HealthStatusUnhealthy, determineOverallHealth(map[string]ComponentHealth{
		"a": {Status: ComponentStatusDegraded},
		"b": {Status: ComponentStatusDown},
	}))
}
