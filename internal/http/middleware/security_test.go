package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func serveSecurity(t *testing.T, opt SecurityOptions, pre gin.HandlerFunc, mutate func(*http.Request)) http.Header {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if pre != nil {
		r.Use(pre)
	}
	r.Use(SecurityHeaders(opt))
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	if mutate != nil {
		mutate(req)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Header()
}

func TestSecurityHeaders_Baseline(t *testing.T) {
	h := serveSecurity(t, SecurityOptions{}, nil, nil)

	if h.Get("X-Content-Type-Options") != "nosniff" ||
		h.Get("X-Frame-Options") != "DENY" ||
		h.Get("Referrer-Policy") != "no-referrer" ||
		h.Get("Cross-Origin-Resource-Policy") != "same-site" {
		t.Fatalf("baseline headers missing: %#v", h)
	}
	if h.Get("Permissions-Policy") != "" || h.Get("Cache-Control") != "" || h.Get("Strict-Transport-Security") != "" {
		t.Fatalf("unexpected optional headers: %#v", h)
	}
	if got := h.Get("Access-Control-Expose-Headers"); got != "X-Request-ID, ETag, Idempotency-Replayed" {
		t.Fatalf("expose headers = %q", got)
	}
}

func TestSecurityHeaders_ExposeMergesWithoutDuplicates(t *testing.T) {
	pre := func(c *gin.Context) {
		c.Header("Access-Control-Expose-Headers", "X-Total-Count, etag")
		c.Next()
	}
	h := serveSecurity(t, SecurityOptions{}, pre, nil)
	got := h.Get("Access-Control-Expose-Headers")
	if got != "X-Total-Count, etag, X-Request-ID, Idempotency-Replayed" {
		t.Fatalf("expose headers = %q", got)
	}
}

func TestSecurityHeaders_Options(t *testing.T) {
	h := serveSecurity(t, SecurityOptions{Revalidate: true, EnablePolicy: true}, nil, nil)
	if h.Get("Cache-Control") != "private, no-cache" {
		t.Fatalf("Cache-Control = %q", h.Get("Cache-Control"))
	}
	if !strings.Contains(h.Get("Permissions-Policy"), "camera=()") || h.Get("X-Permitted-Cross-Domain-Policies") != "none" {
		t.Fatalf("policy headers missing: %#v", h)
	}
}

func TestSecurityHeaders_HSTSOnlyOverHTTPS(t *testing.T) {
	opt := SecurityOptions{EnableHSTS: true, HSTSMaxAge: 24 * time.Hour}

	if h := serveSecurity(t, opt, nil, nil); h.Get("Strict-Transport-Security") != "" {
		t.Fatalf("HSTS must not be sent over plain HTTP")
	}

	h := serveSecurity(t, opt, nil, func(r *http.Request) { r.Header.Set("X-Forwarded-Proto", "HTTPS") })
	if got := h.Get("Strict-Transport-Security"); got != "max-age=86400; includeSubDomains; preload" {
		t.Fatalf("HSTS via proxy = %q", got)
	}

	h = serveSecurity(t, SecurityOptions{EnableHSTS: true}, nil, func(r *http.Request) { r.TLS = &tls.ConnectionState{} })
	if got := h.Get("Strict-Transport-Security"); !strings.HasPrefix(got, "max-age=15552000;") {
		t.Fatalf("HSTS default max-age = %q", got)
	}
}
