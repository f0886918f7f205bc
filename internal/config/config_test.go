package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMustLoad_PanicsOnInvalidConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose")
	require.Panics(t, func() { _ = MustLoad() })
}

func TestLoad_Defaults(t *testing.T) {
	// Empty values count as unset.
	for _, k := range []string{"PORT", "GIN_MODE", "LOG_LEVEL", "API_BASE_PATH", "DB_PATH", "UPLOAD_DIR",
		"UPLOAD_BASE_URL", "MAX_UPLOAD_BYTES", "MAX_MESSAGE_RUNES", "IDEMPOTENCY_TTL", "OTEL_ENABLED", "OTEL_SERVICE_NAME"} {
		t.Setenv(k, "")
	}
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "8080", cfg.Server.Port)
	require.Equal(t, "release", cfg.Server.GinMode)
	require.Equal(t, "/api/v1", cfg.Server.APIBasePath)
	require.Equal(t, "info", cfg.Log.Level)
	require.Equal(t, StorageConfig{
		DBPath:         "puzzles.db",
		UploadDir:      "uploads",
		UploadBaseURL:  "/uploads",
		MaxUploadBytes: 5 << 20,
	}, cfg.Storage)
	require.Equal(t, MessagingConfig{MaxContentRunes: 1000, IdempotencyTTL: 24 * time.Hour}, cfg.Messaging)
	require.False(t, cfg.OTEL.Enabled)
	require.Equal(t, "puzzle-post", cfg.OTEL.ServiceName)
}

func TestLoad_OverridesAndNormalization(t *testing.T) {
	env := map[string]string{
		"PORT":                "8088",
		"READ_TIMEOUT":        "2s",
		"READ_HEADER_TIMEOUT": "1s",
		"WRITE_TIMEOUT":       "3s",
		"IDLE_TIMEOUT":        "4s",
		"MAX_HEADER_BYTES":    "8192",
		"GIN_MODE":            "weird",
		"API_BASE_PATH":       "api/v2/",
		"SWAGGER_ENABLED":     "on",

		"LOG_LEVEL":  "Warning",
		"LOG_PRETTY": "yes",

		"DB_PATH":          "db.sqlite",
		"UPLOAD_DIR":       "/var/lib/puzzles",
		"UPLOAD_BASE_URL":  "static/img/",
		"MAX_UPLOAD_BYTES": "1024",

		"MAX_MESSAGE_RUNES": "280",
		"IDEMPOTENCY_TTL":   "48h",
		"RATE_RPS":          "2.5",
		"RATE_BURST":        " 3 ",

		"CORS_ALLOWED_ORIGINS": " https://a.com , , http://b ",
		"ENABLE_HSTS":          "TRUE",
		"HSTS_MAX_AGE":         "24h",

		"OTEL_ENABLED":                "1",
		"OTEL_EXPORTER_OTLP_ENDPOINT": "otel:4317",
		"OTEL_EXPORTER_OTLP_INSECURE": "0",
		"OTEL_SERVICE_NAME":           "svc",
		"OTEL_TRACES_SAMPLER_ARG":     "0.75",
	}
	for k, v := range env {
		t.Setenv(k, v)
	}

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, ServerConfig{
		Port:              "8088",
		ReadTimeout:       2 * time.Second,
		ReadHeaderTimeout: time.Second,
		WriteTimeout:      3 * time.Second,
		IdleTimeout:       4 * time.Second,
		MaxHeaderBytes:    8192,
		GinMode:           "release",
		APIBasePath:       "/api/v2",
		SwaggerEnabled:    true,
	}, cfg.Server)
	require.Equal(t, LogConfig{Level: "warn", Pretty: true}, cfg.Log)
	require.Equal(t, StorageConfig{
		DBPath:         "db.sqlite",
		UploadDir:      "/var/lib/puzzles",
		UploadBaseURL:  "/static/img",
		MaxUploadBytes: 1024,
	}, cfg.Storage)
	require.Equal(t, MessagingConfig{MaxContentRunes: 280, IdempotencyTTL: 48 * time.Hour}, cfg.Messaging)
	require.Equal(t, RateConfig{RPS: 2.5, Burst: 3}, cfg.Rate)
	require.Equal(t, []string{"https://a.com", "http://b"}, cfg.CORS.AllowedOrigins)
	require.Equal(t, SecurityConfig{EnableHSTS: true, HSTSMaxAge: 24 * time.Hour}, cfg.Security)
	require.Equal(t, OTELConfig{
		Enabled:     true,
		Endpoint:    "otel:4317",
		Insecure:    false,
		ServiceName: "svc",
		SampleRatio: 0.75,
	}, cfg.OTEL)
}

// Each case triggers exactly one error.
func TestLoad_Errors(t *testing.T) {
	cases := []struct {
		name, key, val, want string
	}{
		{"invalid log level", "LOG_LEVEL", "verbose", "LOG_LEVEL"},
		{"blank port", "PORT", "   ", "PORT must not be empty"},
		{"zero timeout", "READ_TIMEOUT", "0s", "timeouts must be positive"},
		{"zero header bytes", "MAX_HEADER_BYTES", "0", "MAX_HEADER_BYTES"},
		{"blank db path", "DB_PATH", "   ", "DB_PATH must not be empty"},
		{"blank upload dir", "UPLOAD_DIR", "  ", "UPLOAD_DIR must not be empty"},
		{"zero upload size", "MAX_UPLOAD_BYTES", "0", "MAX_UPLOAD_BYTES"},
		{"zero message runes", "MAX_MESSAGE_RUNES", "0", "MAX_MESSAGE_RUNES"},
		{"negative rps", "RATE_RPS", "-1", "RATE_RPS"},
		{"zero burst", "RATE_BURST", "0", "RATE_BURST"},
		{"negative hsts", "HSTS_MAX_AGE", "-1s", "HSTS_MAX_AGE"},
		{"zero idempotency ttl", "IDEMPOTENCY_TTL", "0s", "IDEMPOTENCY_TTL"},
		{"sample ratio above 1", "OTEL_TRACES_SAMPLER_ARG", "1.5", "OTEL_TRACES_SAMPLER_ARG"},

		{"malformed number", "RATE_RPS", "x", `RATE_RPS: "x" is not a valid number`},
		{"malformed integer", "RATE_BURST", "nope", `RATE_BURST: "nope" is not a valid integer`},
		{"malformed duration", "IDLE_TIMEOUT", "zzz", `IDLE_TIMEOUT: "zzz" is not a valid duration`},
		{"malformed boolean", "ENABLE_HSTS", "maybe", `ENABLE_HSTS: "maybe" is not a valid boolean`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.val)
			_, err := Load()
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoad_ReportsEveryProblem(t *testing.T) {
	t.Setenv("PORT", " ")
	t.Setenv("RATE_BURST", "many")
	t.Setenv("MAX_MESSAGE_RUNES", "0")

	_, err := Load()
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{"PORT", "RATE_BURST", "MAX_MESSAGE_RUNES"} {
		require.Contains(t, msg, want)
	}
	require.Len(t, strings.Split(msg, "\n"), 3)
}

func TestEnvReader_Flag(t *testing.T) {
	vals := map[string]string{}
	e := &envReader{lookup: func(k string) (string, bool) { v, ok := vals[k]; return v, ok }}

	for _, v := range []string{"1", "TRUE", " yes ", "Y", "On"} {
		vals["B"] = v
		require.True(t, e.flag("B", false), v)
	}
	for _, v := range []string{"0", "False", " no ", "n", "OFF"} {
		vals["B"] = v
		require.False(t, e.flag("B", true), v)
	}
	require.True(t, e.flag("UNSET", true))
	require.Empty(t, e.errs)

	vals["B"] = "maybe"
	require.True(t, e.flag("B", true))
	require.Len(t, e.errs, 1)
}

func TestHelpers(t *testing.T) {
	require.Nil(t, commaList(""))
	require.Equal(t, []string{"a", "b", "c"}, commaList(" a, ,b ,  c  ,"))

	for in, want := range map[string]string{"": "/", "v1": "/v1", "/v1/": "/v1", " / ": "/", "uploads//": "/uploads"} {
		require.Equal(t, want, cleanPrefix(in), in)
	}

	require.Equal(t, "warn", logLevel(" WARNING "))
	require.Equal(t, "debug", logLevel("Debug"))
	require.Empty(t, logLevel("trace"))

	require.Equal(t, "test", ginMode("TEST"))
	require.Equal(t, "release", ginMode(""))
}
