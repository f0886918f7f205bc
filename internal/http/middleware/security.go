// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides SecurityHeaders, a hardening middleware for a JSON API
// behind a reverse proxy that also serves uploaded puzzle images.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// exposedHeaders are response headers browser clients need to read: the
// correlation ID, thread/listing validators and the idempotent replay marker.
var exposedHeaders = []string{requestIDHeader, "ETag", "Idempotency-Replayed"}

// SecurityOptions configures SecurityHeaders.
type SecurityOptions struct {
	// EnableHSTS emits Strict-Transport-Security on HTTPS requests. Enable
	// only when traffic is HTTPS end-to-end.
	EnableHSTS bool
	// HSTSMaxAge defaults to 180 days when not positive.
	HSTSMaxAge time.Duration
	// Revalidate sets Cache-Control: private, no-cache so clients keep
	// responses but must revalidate them (ETag / If-None-Match).
	Revalidate bool
	// EnablePolicy adds Permissions-Policy and
	// X-Permitted-Cross-Domain-Policies.
	EnablePolicy bool
}

// SecurityHeaders adds baseline hardening headers to every response:
// nosniff, frame denial, no-referrer and a same-site resource policy so
// stored images are not hot-linked cross-site. The options above add HSTS,
// cache revalidation and feature policies.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	maxAge := int(opt.HSTSMaxAge.Seconds())
	if maxAge <= 0 {
		maxAge = int((180 * 24 * time.Hour).Seconds())
	}
	hsts := "max-age=" + strconv.Itoa(maxAge) + "; includeSubDomains; preload"

	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cross-Origin-Resource-Policy", "same-site")

		if opt.EnablePolicy {
			h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()")
			h.Set("X-Permitted-Cross-Domain-Policies", "none")
		}
		if opt.Revalidate {
			h.Set("Cache-Control", "private, no-cache")
		}
		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}
		exposeHeaders(h, exposedHeaders...)

		c.Next()
	}
}

// exposeHeaders appends names to Access-Control-Expose-Headers without
// clobbering or duplicating what is already there.
func exposeHeaders(h http.Header, names ...string) {
	const hdr = "Access-Control-Expose-Headers"
	cur := h.Get(hdr)
	have := map[string]struct{}{}
	for _, p := range strings.Split(cur, ",") {
		if p = strings.TrimSpace(p); p != "" {
			have[strings.ToLower(p)] = struct{}{}
		}
	}
	for _, n := range names {
		if _, ok := have[strings.ToLower(n)]; ok {
			continue
		}
		if cur == "" {
			cur = n
		} else {
			cur += ", " + n
		}
		have[strings.ToLower(n)] = struct{}{}
	}
	h.Set(hdr, cur)
}

// isHTTPS reports whether the request used HTTPS directly or via a proxy that
// set X-Forwarded-Proto: https.
func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
