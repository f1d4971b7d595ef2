package server

import (
	"log/slog"
	"strings"
	"time"

	"github.com/go-chi/httplog/v2"
)

// quietRoutes are probe and scrape endpoints that would otherwise flood
// the request log.
var quietRoutes = []string{"/health", "/ready", "/live", "/metrics"}

type LogConfig struct {
	Service string
	Env     string
	Version string
	// Format is "json" or "text"; production always logs JSON.
	Format string
	Level  string
}

// NewLogger builds the request logger. Its embedded *slog.Logger is also
// the application logger for code that runs outside a request.
func NewLogger(cfg LogConfig) *httplog.Logger {
	if cfg.Service == "" {
		cfg.Service = "form-intake"
	}

	return httplog.NewLogger(cfg.Service, httplog.Options{
		JSON:             cfg.Format == "json" || cfg.Env == "production",
		LogLevel:         parseLevel(cfg.Level),
		Concise:          true,
		RequestHeaders:   false,
		MessageFieldName: "message",
		Tags: map[string]string{
			"version": cfg.Version,
			"env":     cfg.Env,
		},
		QuietDownRoutes: quietRoutes,
		QuietDownPeriod: 10 * time.Second,
	})
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return level
}
