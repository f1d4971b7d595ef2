// Package config loads the service configuration from the environment.
//
// Values are read through viper with AutomaticEnv, so every key below is
// also the name of the environment variable that overrides it. Storage
// credentials are optional here: a missing Drive or MinIO setting fails
// the submissions that need it, not the process.
package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"form-intake/internal/storage"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Build struct {
	Version string
	Commit  string
}

type Webhook struct {
	URL     string
	Secret  string
	Retries int
}

func (w Webhook) Enabled() bool {
	return w.URL != ""
}

type Config struct {
	Addr  string
	Env   string
	Build Build

	LogFormat string
	LogLevel  string

	Store       string
	DatabaseURL string

	Storage storage.Config

	MaxUploadBytes    int64
	UploadConcurrency int
	CleanupOnFailure  bool

	SubmitRate   int
	SubmitWindow time.Duration

	CORSOrigins []string

	StreamKeepAlive time.Duration
	StreamBuffer    int

	Webhook Webhook
}

// Production reports whether the service runs with production defaults
// (JSON logs).
func (c *Config) Production() bool {
	return c.Env == "production"
}

var defaults = map[string]any{
	"INTAKE_ADDR":               ":8080",
	"INTAKE_ENV":                "development",
	"INTAKE_VERSION":            "dev",
	"INTAKE_COMMIT":             "unknown",
	"INTAKE_LOG_FORMAT":         "text",
	"INTAKE_LOG_LEVEL":          "info",
	"INTAKE_STORE":              StorePostgres,
	"INTAKE_STORAGE_BACKEND":    storage.BackendDrive,
	"INTAKE_S3_LINK_TTL":        "168h",
	"INTAKE_MAX_UPLOAD_BYTES":   "0",
	"INTAKE_UPLOAD_CONCURRENCY": "0",
	"INTAKE_CLEANUP_ON_FAILURE": "false",
	"INTAKE_SUBMIT_RATE":        "0",
	"INTAKE_SUBMIT_WINDOW":      "1m",
	"INTAKE_CORS_ORIGINS":       "*",
	"INTAKE_STREAM_KEEPALIVE":   "15s",
	"INTAKE_STREAM_BUFFER":      "64",
	"INTAKE_WEBHOOK_RETRIES":    "3",
}

// Load reads the configuration. Values that cannot be parsed are
// collected and reported together; semantic checks are left to Validate.
func Load() (*Config, error) {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.AutomaticEnv()

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	p := parser{v: v, val: NewValidator()}

	cfg := &Config{
		Addr: v.GetString("INTAKE_ADDR"),
		Env:  v.GetString("INTAKE_ENV"),
		Build: Build{
			Version: v.GetString("INTAKE_VERSION"),
			Commit:  v.GetString("INTAKE_COMMIT"),
		},
		LogFormat:   strings.ToLower(v.GetString("INTAKE_LOG_FORMAT")),
		LogLevel:    strings.ToLower(v.GetString("INTAKE_LOG_LEVEL")),
		Store:       strings.ToLower(v.GetString("INTAKE_STORE")),
		DatabaseURL: v.GetString("DATABASE_URL"),
		Storage: storage.Config{
			Backend: strings.ToLower(v.GetString("INTAKE_STORAGE_BACKEND")),
			Drive: storage.DriveConfig{
				FolderID:    v.GetString("GOOGLE_DRIVE_FOLDER_ID"),
				ClientEmail: v.GetString("GOOGLE_CLIENT_EMAIL"),
				PrivateKey:  unescapeKey(v.GetString("GOOGLE_PRIVATE_KEY")),
			},
			MinIO: storage.MinIOConfig{
				Endpoint:  v.GetString("INTAKE_S3_ENDPOINT"),
				AccessKey: v.GetString("INTAKE_S3_ACCESS_KEY"),
				SecretKey: v.GetString("INTAKE_S3_SECRET_KEY"),
				Bucket:    v.GetString("INTAKE_BUCKET"),
				PublicURL: v.GetString("INTAKE_S3_PUBLIC_URL"),
				LinkTTL:   p.durationOf("INTAKE_S3_LINK_TTL"),
			},
		},
		MaxUploadBytes:    p.int64Of("INTAKE_MAX_UPLOAD_BYTES"),
		UploadConcurrency: p.intOf("INTAKE_UPLOAD_CONCURRENCY"),
		CleanupOnFailure:  p.boolOf("INTAKE_CLEANUP_ON_FAILURE"),
		SubmitRate:        p.intOf("INTAKE_SUBMIT_RATE"),
		SubmitWindow:      p.durationOf("INTAKE_SUBMIT_WINDOW"),
		CORSOrigins:       splitList(v.GetString("INTAKE_CORS_ORIGINS")),
		StreamKeepAlive:   p.durationOf("INTAKE_STREAM_KEEPALIVE"),
		StreamBuffer:      p.intOf("INTAKE_STREAM_BUFFER"),
		Webhook: Webhook{
			URL:     v.GetString("INTAKE_WEBHOOK_URL"),
			Secret:  v.GetString("INTAKE_WEBHOOK_SECRET"),
			Retries: p.intOf("INTAKE_WEBHOOK_RETRIES"),
		},
	}

	if p.val.HasErrors() {
		return nil, p.val
	}
	return cfg, nil
}

// unescapeKey expands literal "\n" sequences. PEM keys pasted into a
// single-line env var usually arrive that way.
func unescapeKey(k string) string {
	return strings.ReplaceAll(k, `\n`, "\n")
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// parser reads typed values and records the ones that do not parse.
type parser struct {
	v   *viper.Viper
	val *Validator
}

func (p parser) raw(key string) string {
	return strings.TrimSpace(p.v.GetString(key))
}

func (p parser) intOf(key string) int {
	n, err := strconv.Atoi(p.raw(key))
	if err != nil {
		p.val.AddError(key, "must be a valid integer")
		return 0
	}
	return n
}

func (p parser) int64Of(key string) int64 {
	n, err := strconv.ParseInt(p.raw(key), 10, 64)
	if err != nil {
		p.val.AddError(key, "must be a valid integer")
		return 0
	}
	return n
}

func (p parser) boolOf(key string) bool {
	b, err := strconv.ParseBool(p.raw(key))
	if err != nil {
		p.val.AddError(key, "must be true or false")
		return false
	}
	return b
}

func (p parser) durationOf(key string) time.Duration {
	d, err := time.ParseDuration(p.raw(key))
	if err != nil {
		p.val.AddError(key, "must be a valid duration (e.g. 15s, 1m, 168h)")
		return 0
	}
	return d
}
