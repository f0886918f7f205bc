// Package config loads Puzzle Post settings from the environment.
//
// Every setting has a default. Values that are present but malformed are
// reported as errors instead of being silently replaced, and all problems
// found in one pass are returned together.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ServerConfig controls the HTTP listener and the API surface.
type ServerConfig struct {
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	GinMode           string // debug|release|test
	APIBasePath       string
	SwaggerEnabled    bool
}

// LogConfig controls zerolog output.
type LogConfig struct {
	Level  string // debug|info|warn|error|fatal|panic
	Pretty bool
}

// StorageConfig locates the SQLite database and the image directory.
type StorageConfig struct {
	DBPath         string
	UploadDir      string
	UploadBaseURL  string // URL prefix images are served under
	MaxUploadBytes int64
}

// MessagingConfig bounds user-authored messages.
type MessagingConfig struct {
	MaxContentRunes int
	IdempotencyTTL  time.Duration
}

// RateConfig is the per-client token bucket.
type RateConfig struct {
	RPS   float64
	Burst int
}

// CORSConfig lists allowed browser origins. Empty means any.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig holds HSTS settings.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig configures OTLP trace export.
type OTELConfig struct {
	Enabled     bool
	Endpoint    string // host:port of the collector
	Insecure    bool
	ServiceName string
	SampleRatio float64 // in [0,1]
}

// Config is the complete application configuration.
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Storage   StorageConfig
	Messaging MessagingConfig
	Rate      RateConfig
	CORS      CORSConfig
	Security  SecurityConfig
	OTEL      OTELConfig
}

// MustLoad is Load for process startup.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads the environment, normalizes and validates it.
func Load() (Config, error) {
	e := &envReader{lookup: os.LookupEnv}

	cfg := Config{
		Server: ServerConfig{
			Port:              e.str("PORT", "8080"),
			ReadTimeout:       e.duration("READ_TIMEOUT", 15*time.Second),
			ReadHeaderTimeout: e.duration("READ_HEADER_TIMEOUT", 10*time.Second),
			WriteTimeout:      e.duration("WRITE_TIMEOUT", 20*time.Second),
			IdleTimeout:       e.duration("IDLE_TIMEOUT", time.Minute),
			MaxHeaderBytes:    e.integer("MAX_HEADER_BYTES", 1<<20),
			GinMode:           ginMode(e.str("GIN_MODE", "release")),
			APIBasePath:       cleanPrefix(e.str("API_BASE_PATH", "/api/v1")),
			SwaggerEnabled:    e.flag("SWAGGER_ENABLED", false),
		},
		Log: LogConfig{
			Level:  logLevel(e.str("LOG_LEVEL", "info")),
			Pretty: e.flag("LOG_PRETTY", false),
		},
		Storage: StorageConfig{
			DBPath:         strings.TrimSpace(e.str("DB_PATH", "puzzles.db")),
			UploadDir:      strings.TrimSpace(e.str("UPLOAD_DIR", "uploads")),
			UploadBaseURL:  cleanPrefix(e.str("UPLOAD_BASE_URL", "/uploads")),
			MaxUploadBytes: int64(e.integer("MAX_UPLOAD_BYTES", 5<<20)),
		},
		Messaging: MessagingConfig{
			MaxContentRunes: e.integer("MAX_MESSAGE_RUNES", 1000),
			IdempotencyTTL:  e.duration("IDEMPOTENCY_TTL", 24*time.Hour),
		},
		Rate: RateConfig{
			RPS:   e.float("RATE_RPS", 5),
			Burst: e.integer("RATE_BURST", 10),
		},
		CORS: CORSConfig{
			AllowedOrigins: commaList(e.str("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: e.flag("ENABLE_HSTS", false),
			HSTSMaxAge: e.duration("HSTS_MAX_AGE", 180*24*time.Hour),
		},
		OTEL: OTELConfig{
			Enabled:     e.flag("OTEL_ENABLED", false),
			Endpoint:    e.str("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    e.flag("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: e.str("OTEL_SERVICE_NAME", "puzzle-post"),
			SampleRatio: e.float("OTEL_TRACES_SAMPLER_ARG", 1),
		},
	}

	if err := errors.Join(append(e.errs, cfg.validate()...)...); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() []error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	s := c.Server
	check(strings.TrimSpace(s.Port) != "", "PORT must not be empty")
	check(s.ReadTimeout > 0 && s.ReadHeaderTimeout > 0 && s.WriteTimeout > 0 && s.IdleTimeout > 0,
		"timeouts must be positive durations")
	check(s.MaxHeaderBytes > 0, "MAX_HEADER_BYTES must be > 0")
	check(c.Log.Level != "", "LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")

	check(c.Storage.DBPath != "", "DB_PATH must not be empty")
	check(c.Storage.UploadDir != "", "UPLOAD_DIR must not be empty")
	check(c.Storage.MaxUploadBytes > 0, "MAX_UPLOAD_BYTES must be > 0")

	check(c.Messaging.MaxContentRunes >= 1, "MAX_MESSAGE_RUNES must be >= 1")
	check(c.Messaging.IdempotencyTTL > 0, "IDEMPOTENCY_TTL must be > 0")

	check(c.Rate.RPS >= 0, "RATE_RPS must be >= 0")
	check(c.Rate.Burst >= 1, "RATE_BURST must be >= 1")
	check(c.Security.HSTSMaxAge >= 0, "HSTS_MAX_AGE must be >= 0")
	check(c.OTEL.SampleRatio >= 0 && c.OTEL.SampleRatio <= 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	return errs
}

// envReader reads typed values and remembers every malformed one.
type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

// raw returns the value for key; unset and empty are the same.
func (e *envReader) raw(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (e *envReader) fail(key, v, want string) {
	e.errs = append(e.errs, fmt.Errorf("%s: %q is not a valid %s", key, v, want))
}

func (e *envReader) str(key, def string) string {
	if v, ok := e.raw(key); ok {
		return v
	}
	return def
}

func (e *envReader) integer(key string, def int) int {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		e.fail(key, v, "integer")
		return def
	}
	return n
}

func (e *envReader) float(key string, def float64) float64 {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		e.fail(key, v, "number")
		return def
	}
	return f
}

func (e *envReader) duration(key string, def time.Duration) time.Duration {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		e.fail(key, v, "duration")
		return def
	}
	return d
}

func (e *envReader) flag(key string, def bool) bool {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	}
	e.fail(key, v, "boolean")
	return def
}

// logLevel lowercases lvl and maps "warning" to "warn". Unknown levels
// become "" so validate can reject them.
func logLevel(lvl string) string {
	lvl = strings.ToLower(strings.TrimSpace(lvl))
	switch lvl {
	case "warning":
		return "warn"
	case "debug", "info", "warn", "error", "fatal", "panic":
		return lvl
	}
	return ""
}

// ginMode falls back to release for anything gin does not know.
func ginMode(m string) string {
	m = strings.ToLower(strings.TrimSpace(m))
	switch m {
	case "debug", "release", "test":
		return m
	}
	return "release"
}

func commaList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// cleanPrefix turns p into "/a/b" form. Blank becomes "/".
func cleanPrefix(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	return "/" + p
}
