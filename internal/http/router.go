// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, compression, identity, idempotency, and rate
// limiting.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	_ "github.com/sfreeley/puzzle-post/docs"
	"github.com/sfreeley/puzzle-post/internal/config"
	"github.com/sfreeley/puzzle-post/internal/http/handlers"
	"github.com/sfreeley/puzzle-post/internal/http/middleware"
	"github.com/sfreeley/puzzle-post/internal/repo"
	"github.com/sfreeley/puzzle-post/internal/services"
	"github.com/sfreeley/puzzle-post/internal/storage"
)

// corsHeaders are the request headers browser clients may send.
var corsHeaders = []string{
	"Origin", "Content-Type", "Accept", "Authorization",
	"If-None-Match", middleware.UserIDHeader, middleware.HeaderIdempotencyKey,
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the public API under cfg.Server.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter (sized for base64 images)
//  6. Metrics
//  7. CORS, security headers, gzip
//
// Inside the API group: Identity, then the idempotency validator (so replays
// are scoped to the caller), then the per-user rate limiter, which lets
// replays through.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, store storage.Store, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.Logger(middleware.LogOptions{
		MaskHeaders: []string{"X-API-Key"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Body size limit: a base64 image inflates by 4/3, plus the JSON around it
	r.Use(limitBody(cfg.Storage.MaxUploadBytes*4/3 + 64<<10))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) CORS posture (allow all if none configured), security headers, gzip
	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins))
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		Revalidate:   true,
		EnablePolicy: true,
	}))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.Server.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Stored images
	if cfg.Storage.UploadBaseURL != "/" && cfg.Storage.UploadDir != "" {
		r.Static(cfg.Storage.UploadBaseURL, cfg.Storage.UploadDir)
	}

	// Dependency injection: services ← db/store
	msgSvc := &services.MessageService{
		DB:              db,
		MaxContentRunes: cfg.Messaging.MaxContentRunes,
		IdempotencyTTL:  cfg.Messaging.IdempotencyTTL,
	}
	userSvc := &services.UserService{DB: db}
	puzzleSvc := &services.PuzzleService{DB: db, Store: store, Locale: language.English}
	negoSvc := &services.NegotiationService{DB: db, Messages: msgSvc}
	h := handlers.New(userSvc, puzzleSvc, negoSvc, msgSvc)

	rl := middleware.NewRateLimiter(cfg.Rate.RPS, cfg.Rate.Burst, middleware.KeyByUserOrIP())
	idem := middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200},
		func(ctx context.Context, userID, puzzleID, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, userID, puzzleID, key, now)
			if err != nil {
				return false, err
			}
			return rec != nil, nil
		},
	)

	base := groupWithPrefix(r, cfg.Server.APIBasePath)

	// Registration is the only anonymous endpoint.
	base.POST("/users", rl.Handler(), h.CreateUser)

	api := base.Group("", middleware.Identity(), idem, rl.Handler())
	{
		// Users
		api.GET("/users/:id", h.GetUser)

		// Catalog
		api.GET("/categories", h.ListCategories)
		api.POST("/puzzles", h.CreatePuzzle)
		api.GET("/puzzles", h.BrowsePuzzles)
		api.GET("/puzzles/mine", h.ListMyPuzzles)
		api.GET("/puzzles/:id", h.GetPuzzle)
		api.DELETE("/puzzles/:id", h.DeletePuzzle)

		// Negotiation
		api.POST("/puzzles/:id/request", h.RequestPuzzle)
		api.POST("/puzzles/:id/approve", h.ApproveRequest)
		api.POST("/puzzles/:id/decline", h.DeclineRequest)
		api.POST("/puzzles/:id/complete", h.CompletePuzzle)

		// Messages
		api.POST("/puzzles/:id/messages", h.SendMessage)
		api.GET("/puzzles/:id/messages/:userId", h.GetThread)
		api.DELETE("/puzzles/:id/messages/:userId", h.DeleteThread)
		api.GET("/messages/threads", h.ListThreads)
		api.GET("/messages/unread", h.UnreadCount)
		api.POST("/messages/:id/read", h.MarkRead)
		api.DELETE("/messages/:id", h.DeleteMessage)
	}
}

// corsMiddleware returns gin-contrib/cors configured for origins. With no
// origins every origin is allowed and ACAO: * is forced even on requests
// without an Origin header; otherwise allow-listed origins are echoed.
func corsMiddleware(origins []string) gin.HandlerFunc {
	base := cors.Config{
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     corsHeaders,
		ExposeHeaders:    []string{"X-Request-ID", "ETag", "Idempotency-Replayed", "Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}

	var force gin.HandlerFunc
	if len(origins) == 0 {
		base.AllowAllOrigins = true
		force = func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}
	} else {
		base.AllowOrigins = origins
		allowed := make(map[string]struct{}, len(origins))
		for _, o := range origins {
			allowed[o] = struct{}{}
		}
		force = func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
		}
	}

	mw := cors.New(base)
	return func(c *gin.Context) {
		force(c)
		mw(c)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
