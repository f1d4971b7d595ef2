package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"

	"form-intake/internal/storage"
)

// Database is the part of *pgxpool.Pool the probes need.
type Database interface {
	Ping(ctx context.Context) error
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// HealthStatus represents the overall health of the system
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// ComponentStatus represents the health of an individual component
type ComponentStatus string

const (
	ComponentStatusUp       ComponentStatus = "up"
	ComponentStatusDown     ComponentStatus = "down"
	ComponentStatusDegraded ComponentStatus = "degraded"
)

// Health represents the complete health check response
type Health struct {
	Status     HealthStatus               `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents the health of a single system component
type ComponentHealth struct {
	Status    ComponentStatus `json:"status"`
	Message   string          `json:"message,omitempty"`
	LatencyMs float64         `json:"latency_ms,omitempty"`
	Details   any             `json:"details,omitempty"`
}

// HandleHealth reports every component. Degraded still answers 200.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.checkHealth(r.Context())

	statusCode := http.StatusOK
	if health.Status == HealthStatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, health)
}

// HandleReady is the readiness probe: the database must answer.
func (s *Server) HandleReady(w http.ResponseWriter, r *http.Request) {
	if s.cfg.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		var one int
		if err := s.cfg.DB.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":  "not_ready",
				"message": "database unavailable",
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleLive answers as long as the process serves HTTP.
func (s *Server) HandleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "alive",
	})
}

func (s *Server) checkHealth(ctx context.Context) Health {
	health := Health{
		Timestamp:  time.Now().UTC(),
		Version:    s.cfg.Build.Version,
		Components: make(map[string]ComponentHealth),
	}

	if s.cfg.DB != nil {
		health.Components["database"] = s.checkDatabaseHealth(ctx)
	}
	health.Components["submissions"] = s.checkStoreHealth(ctx)
	health.Components["storage"] = s.checkStorageHealth(ctx)

	health.Status = determineOverallHealth(health.Components)
	return health
}

func (s *Server) checkDatabaseHealth(ctx context.Context) ComponentHealth {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.cfg.DB.Ping(ctx); err != nil {
		return ComponentHealth{
			Status:  ComponentStatusDown,
			Message: "database ping failed: " + err.Error(),
		}
	}

	latency := time.Since(start).Milliseconds()
	status := ComponentStatusUp
	message := "database healthy"
	if latency > 1000 {
		status = ComponentStatusDegraded
		message = "database latency high"
	}

	return ComponentHealth{
		Status:    status,
		Message:   message,
		LatencyMs: float64(latency),
	}
}

func (s *Server) checkStoreHealth(ctx context.Context) ComponentHealth {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	n, err := s.cfg.Store.Count(ctx)
	if err != nil {
		return ComponentHealth{
			Status:  ComponentStatusDown,
			Message: "could not count submissions: " + err.Error(),
		}
	}
	return ComponentHealth{
		Status:  ComponentStatusUp,
		Details: map[string]int{"count": n},
	}
}

// checkStorageHealth reports a missing storage configuration as degraded:
// the service still lists and streams, only new submissions fail.
func (s *Server) checkStorageHealth(ctx context.Context) ComponentHealth {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	fs, err := s.cfg.Files.Open(ctx)
	if errors.Is(err, storage.ErrNotConfigured) {
		return ComponentHealth{
			Status:  ComponentStatusDegraded,
			Message: "storage not configured",
		}
	}
	if err == nil {
		err = fs.Check(ctx)
	}
	if err != nil {
		return ComponentHealth{
			Status:  ComponentStatusDown,
			Message: "storage check failed: " + err.Error(),
		}
	}

	latency := time.Since(start).Milliseconds()
	status := ComponentStatusUp
	message := "storage healthy"
	if latency > 2000 {
		status = ComponentStatusDegraded
		message = "storage latency high"
	}

	return ComponentHealth{
		Status:    status,
		Message:   message,
		LatencyMs: float64(latency),
	}
}

func determineOverallHealth(components map[string]ComponentHealth) HealthStatus {
	var (
		downCount     int
		degradedCount int
	)

	for _, component := range components {
		switch component.Status {
		case ComponentStatusDown:
			downCount++
		case ComponentStatusDegraded:
			degradedCount++
		}
	}

	if downCount > 0 {
		return HealthStatusUnhealthy
	}
	if degradedCount > 0 {
		return HealthStatusDegraded
	}
	return HealthStatusHealthy
}
