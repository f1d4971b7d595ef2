package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"form-intake/internal/storage"
)

// ValidationError is one rejected configuration value.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validator collects configuration errors so that all of them can be
// reported at once. A Validator with errors is itself an error.
type Validator struct {
	errors []ValidationError
}

func NewValidator() *Validator {
	return &Validator{
		errors: make([]ValidationError, 0),
	}
}

func (v *Validator) AddError(field, message string) {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Message: message,
	})
}

func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

func (v *Validator) Errors() []ValidationError {
	return v.errors
}

func (v *Validator) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "configuration validation failed with %d error(s):\n", len(v.errors))
	for i, err := range v.errors {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

func (v *Validator) ValidateRequired(key, value string) {
	if value == "" {
		v.AddError(key, "required environment variable not set")
	}
}

// ValidateURL accepts empty values; pair it with ValidateRequired when
// the URL is mandatory.
func (v *Validator) ValidateURL(key, value string) {
	if value == "" {
		return
	}

	parsed, err := url.Parse(value)
	if err != nil {
		v.AddError(key, fmt.Sprintf("invalid URL format: %v", err))
		return
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		v.AddError(key, "URL must use http or https scheme")
		return
	}
	if parsed.Host == "" {
		v.AddError(key, "URL must have a host")
	}
}

// ValidateAddr checks a listen address of the form "host:port" or ":port".
func (v *Validator) ValidateAddr(key, value string) {
	if value == "" {
		v.AddError(key, "listen address must not be empty")
		return
	}

	i := strings.LastIndex(value, ":")
	if i < 0 {
		v.AddError(key, "listen address must contain a port")
		return
	}

	port, err := strconv.Atoi(value[i+1:])
	if err != nil {
		v.AddError(key, "port must be a number")
		return
	}

	if port < 0 || port > 65535 {
		v.AddError(key, "port must be between 0 and 65535")
	}
}

func (v *Validator) ValidateEnum(key, value string, allowed []string) {
	for _, opt := range allowed {
		if value == opt {
			return
		}
	}

	v.AddError(key, fmt.Sprintf("must be one of: %s (got: %s)", strings.Join(allowed, ", "), value))
}

func (v *Validator) ValidateNonNegative(key string, value int64) {
	if value < 0 {
		v.AddError(key, "must not be negative")
	}
}

func (v *Validator) ValidatePositive(key string, value int64) {
	if value <= 0 {
		v.AddError(key, "must be a positive number")
	}
}

// Validate performs the semantic startup checks. The process refuses to
// start when it returns an error.
func (c *Config) Validate() error {
	v := NewValidator()

	v.ValidateAddr("INTAKE_ADDR", c.Addr)
	v.ValidateEnum("INTAKE_ENV", c.Env, []string{"development", "staging", "production"})
	v.ValidateEnum("INTAKE_LOG_FORMAT", c.LogFormat, []string{"text", "json"})
	v.ValidateEnum("INTAKE_LOG_LEVEL", c.LogLevel, []string{"debug", "info", "warn", "error"})

	v.ValidateEnum("INTAKE_STORE", c.Store, []string{StorePostgres, StoreMemory})
	if c.Store == StorePostgres {
		v.ValidateRequired("DATABASE_URL", c.DatabaseURL)
		if c.DatabaseURL != "" &&
			!strings.HasPrefix(c.DatabaseURL, "postgres://") &&
			!strings.HasPrefix(c.DatabaseURL, "postgresql://") {
			v.AddError("DATABASE_URL", "must be a valid PostgreSQL connection string")
		}
	}

	v.ValidateEnum("INTAKE_STORAGE_BACKEND", c.Storage.Backend, []string{storage.BackendDrive, storage.BackendMinIO})
	if ep := c.Storage.MinIO.Endpoint; strings.Contains(ep, "://") {
		v.ValidateURL("INTAKE_S3_ENDPOINT", ep)
	}
	v.ValidateURL("INTAKE_S3_PUBLIC_URL", c.Storage.MinIO.PublicURL)
	v.ValidatePositive("INTAKE_S3_LINK_TTL", int64(c.Storage.MinIO.LinkTTL))

	v.ValidateNonNegative("INTAKE_MAX_UPLOAD_BYTES", c.MaxUploadBytes)
	v.ValidateNonNegative("INTAKE_UPLOAD_CONCURRENCY", int64(c.UploadConcurrency))
	v.ValidateNonNegative("INTAKE_SUBMIT_RATE", int64(c.SubmitRate))
	if c.SubmitRate > 0 {
		v.ValidatePositive("INTAKE_SUBMIT_WINDOW", int64(c.SubmitWindow))
	}

	if len(c.CORSOrigins) == 0 {
		v.AddError("INTAKE_CORS_ORIGINS", "must list at least one origin")
	}

	v.ValidatePositive("INTAKE_STREAM_KEEPALIVE", int64(c.StreamKeepAlive))
	v.ValidatePositive("INTAKE_STREAM_BUFFER", int64(c.StreamBuffer))

	v.ValidateURL("INTAKE_WEBHOOK_URL", c.Webhook.URL)
	v.ValidateNonNegative("INTAKE_WEBHOOK_RETRIES", int64(c.Webhook.Retries))

	if v.HasErrors() {
		return v
	}
	return nil
}

// Warnings lists optional settings whose absence changes behaviour in a
// way operators usually want to know about.
func (c *Config) Warnings() []string {
	var warnings []string

	switch c.Storage.Backend {
	case storage.BackendDrive:
		if !c.Storage.Drive.Complete() {
			warnings = append(warnings, "Google Drive credentials incomplete - submissions will fail until GOOGLE_DRIVE_FOLDER_ID, GOOGLE_CLIENT_EMAIL and GOOGLE_PRIVATE_KEY are set")
		}
	case storage.BackendMinIO:
		if !c.Storage.MinIO.Complete() {
			warnings = append(warnings, "MinIO settings incomplete - submissions will fail until INTAKE_S3_ENDPOINT, INTAKE_S3_ACCESS_KEY, INTAKE_S3_SECRET_KEY and INTAKE_BUCKET are set")
		}
	}

	if c.Store == StoreMemory {
		warnings = append(warnings, "INTAKE_STORE=memory - submissions are lost on restart")
	}

	if c.Production() && c.LogFormat != "json" {
		warnings = append(warnings, "INTAKE_LOG_FORMAT is not json in production")
	}

	if c.Webhook.Enabled() && c.Webhook.Secret == "" {
		warnings = append(warnings, "INTAKE_WEBHOOK_SECRET not set - webhook deliveries are unsigned")
	}

	return warnings
}
