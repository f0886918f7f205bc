package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/sfreeley/puzzle-post/internal/services"
)

// newResponseRouter serves a single GET /x handled by h, with a fixed request
// ID and a request-scoped logger writing to buf.
func newResponseRouter(buf *bytes.Buffer, h gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	logger := zerolog.New(buf)
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("X-Request-ID", "rid-1")
		c.Set("logger", &logger)
		c.Next()
	})
	r.GET("/x", h)
	return r
}

func serveX(r *gin.Engine) (*httptest.ResponseRecorder, ErrorResponse) {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	var resp ErrorResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func Test_fail_500_LogsAndBody(t *testing.T) {
	var buf bytes.Buffer
	r := newResponseRouter(&buf, func(c *gin.Context) {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "kaboom")
	})

	w, resp := serveX(r)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", w.Code)
	}
	if resp.RequestID != "rid-1" || resp.Code != ErrCodeInternal || resp.Message != "kaboom" {
		t.Fatalf("unexpected body: %+v", resp)
	}
	if !strings.Contains(buf.String(), `"level":"error"`) {
		t.Fatalf("expected error log, got: %s", buf.String())
	}
}

func Test_fail_4xx_NotLogged(t *testing.T) {
	var buf bytes.Buffer
	r := newResponseRouter(&buf, func(c *gin.Context) {
		Fail(c, http.StatusNotFound, ErrCodeNotFound, "nope")
	})

	w, resp := serveX(r)
	if w.Code != http.StatusNotFound || resp.Code != ErrCodeNotFound || resp.Message != "nope" {
		t.Fatalf("unexpected: %d %+v", w.Code, resp)
	}
	if buf.Len() != 0 {
		t.Fatalf("4xx should not be logged: %s", buf.String())
	}
}

func Test_failErr_MapsKinds(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{services.ErrInvalidState, http.StatusConflict, ErrCodeInvalidState},
		{services.ErrNotOwner, http.StatusForbidden, ErrCodeForbidden},
		{services.ErrNotRecipient, http.StatusForbidden, ErrCodeForbidden},
		{services.ErrNotParty, http.StatusForbidden, ErrCodeForbidden},
		{services.ErrEmptyContent, http.StatusBadRequest, ErrCodeBadRequest},
		{services.ErrInvalidInput, http.StatusBadRequest, ErrCodeBadRequest},
		{services.ErrNotFound, http.StatusNotFound, ErrCodeNotFound},
		{services.ErrConflict, http.StatusConflict, ErrCodeConflict},
		// Wrapped typed errors keep their kind.
		{fmt.Errorf("outer: %w", services.ErrNotOwner), http.StatusForbidden, ErrCodeForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.code+"/"+tc.err.Error(), func(t *testing.T) {
			var buf bytes.Buffer
			r := newResponseRouter(&buf, func(c *gin.Context) { failErr(c, tc.err) })
			w, resp := serveX(r)
			if w.Code != tc.status || resp.Code != tc.code {
				t.Fatalf("got %d %q; want %d %q", w.Code, resp.Code, tc.status, tc.code)
			}
			if resp.Message == "" {
				t.Fatal("message should carry the service error text")
			}
		})
	}
}

func Test_failErr_UntypedIsOpaque500(t *testing.T) {
	var buf bytes.Buffer
	var recorded []*gin.Error
	r := newResponseRouter(&buf, func(c *gin.Context) {
		failErr(c, errors.New("disk on fire"))
		recorded = c.Errors
	})

	w, resp := serveX(r)
	if w.Code != http.StatusInternalServerError || resp.Code != ErrCodeInternal {
		t.Fatalf("unexpected: %d %+v", w.Code, resp)
	}
	if strings.Contains(resp.Message, "disk") {
		t.Fatalf("internal detail leaked: %q", resp.Message)
	}
	if len(recorded) != 1 {
		t.Fatalf("error should be attached to the context, got %d", len(recorded))
	}
}

func Test_SuccessHelpers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ok", func(c *gin.Context) { ok(c, http.StatusCreated, gin.H{"ok": true}) })
	r.DELETE("/gone", func(c *gin.Context) { noContent(c) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	if w.Code != http.StatusCreated || !strings.Contains(w.Body.String(), `"ok":true`) {
		t.Fatalf("ok: %d %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/gone", nil))
	if w.Code != http.StatusNoContent || w.Body.Len() != 0 {
		t.Fatalf("noContent: %d %q", w.Code, w.Body.String())
	}
}

func Test_weakETag(t *testing.T) {
	if got := weakETag("thread", "p:u", 0, nil); got != `W/"thread:p:u:0:0"` {
		t.Fatalf("got %s", got)
	}
}
