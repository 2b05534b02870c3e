// Package router provides HTTP routing, middleware configuration, and server setup for the web application
package router

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/amirphl/docnum/app/dto"
	"github.com/amirphl/docnum/app/handlers"
	"github.com/amirphl/docnum/app/middleware"
	"github.com/amirphl/docnum/utils"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cache"
	"github.com/gofiber/fiber/v3/middleware/compress"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/helmet"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/hashicorp/go-hclog"
)

// Router interface for HTTP routing
type Router interface {
	SetupRoutes()
	Start(address string) error
	Shutdown(ctx context.Context) error
	GetApp() *fiber.App
}

// HealthChecker reports whether a dependency is reachable
type HealthChecker func(ctx context.Context) error

// Config holds the HTTP settings the router needs
type Config struct {
	BodyLimit       int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	AllowOrigins    []string
	APIRateLimit    int
	GenerateLimit   int
	GenerateWindow  time.Duration
	AccessLog       bool
	DocumentTypeTTL time.Duration
}

// Handlers groups the endpoint handlers
type Handlers struct {
	Numbers       handlers.NumberHandlerInterface
	History       handlers.HistoryHandlerInterface
	DocumentTypes handlers.DocumentTypeHandlerInterface
	Audit         handlers.AuditHandlerInterface
}

// FiberRouter implements Router using Fiber v3
type FiberRouter struct {
	app      *fiber.App
	cfg      Config
	handlers Handlers
	auth     *middleware.AuthMiddleware
	health   map[string]HealthChecker
	logger   hclog.Logger
}

// NewFiberRouter creates a new Fiber router
func NewFiberRouter(cfg Config, h Handlers, health map[string]HealthChecker, log hclog.Logger) Router {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	if cfg.BodyLimit <= 0 {
		cfg.BodyLimit = 1024 * 1024
	}
	if cfg.APIRateLimit <= 0 {
		cfg.APIRateLimit = 2000
	}
	if cfg.GenerateLimit <= 0 {
		cfg.GenerateLimit = 30
	}
	if cfg.GenerateWindow <= 0 {
		cfg.GenerateWindow = time.Minute
	}
	if cfg.DocumentTypeTTL <= 0 {
		cfg.DocumentTypeTTL = time.Minute
	}

	r := &FiberRouter{
		cfg:      cfg,
		handlers: h,
		auth:     middleware.NewAuthMiddleware(),
		health:   health,
		logger:   log.Named("http"),
	}

	r.app = fiber.New(fiber.Config{
		AppName:      "Document Numbering API",
		ServerHeader: "docnum",
		ErrorHandler: r.errorHandler,
		BodyLimit:    cfg.BodyLimit,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})

	return r
}

// SetupRoutes configures all application routes
func (r *FiberRouter) SetupRoutes() {
	r.logger.Debug("setting up routes")

	r.setupMiddleware()

	api := r.app.Group("/api/v1")

	// Health check route (no rate limiting, no actor)
	api.Get("/health", r.healthCheck)

	api.Use(limiter.New(limiter.Config{
		Max:          r.cfg.APIRateLimit,
		Expiration:   1 * time.Minute,
		KeyGenerator: func(c fiber.Ctx) string { return c.IP() },
		LimitReached: rateLimitReached,
		Next: func(c fiber.Ctx) bool {
			return c.Path() == "/api/v1/health"
		},
	}))

	api.Use(r.auth.Authenticate())

	numbers := api.Group("/numbers")
	generateLimiter := limiter.New(limiter.Config{
		Max:          r.cfg.GenerateLimit,
		Expiration:   r.cfg.GenerateWindow,
		KeyGenerator: middleware.ActorKey,
		LimitReached: rateLimitReached,
	})
	numbers.Post("/generate", generateLimiter, r.handlers.Numbers.Generate)
	numbers.Post("/correct", r.auth.RequireAdmin(), r.handlers.Numbers.Correct)

	api.Get("/sequences", r.handlers.Numbers.ListSequences)

	api.Get("/document-types", cache.New(cache.Config{
		Expiration:          r.cfg.DocumentTypeTTL,
		DisableCacheControl: false,
	}), r.handlers.DocumentTypes.ListActive)
	api.Patch("/document-types/:code", r.auth.RequireAdmin(), r.handlers.DocumentTypes.SetActive)

	audit := api.Group("/audit", r.auth.RequireAdmin())
	audit.Get("/", r.handlers.Audit.List)
	audit.Get("/:id", r.handlers.Audit.Get)

	history := api.Group("/history")
	history.Get("/", r.handlers.History.List)
	history.Get("/statistics", r.handlers.History.Statistics)
	history.Get("/export", r.handlers.History.Export)
	history.Get("/:id", r.handlers.History.Get)

	r.app.Use(r.notFoundHandler)
}

func rateLimitReached(c fiber.Ctx) error {
	return c.Status(fiber.StatusTooManyRequests).JSON(dto.APIResponse{
		Success: false,
		Message: "Too many requests. Please try again later.",
		Error: dto.ErrorDetail{
			Code: "RATE_LIMIT_EXCEEDED",
		},
	})
}

func (r *FiberRouter) setupMiddleware() {
	// Request ID middleware - must be first
	r.app.Use(requestid.New(requestid.Config{
		Header: "X-Request-ID",
		Generator: func() string {
			return generateRequestID()
		},
	}))

	r.app.Use(helmet.New(helmet.Config{
		XSSProtection:             "1; mode=block",
		ContentTypeNosniff:        "nosniff",
		XFrameOptions:             "DENY",
		HSTSMaxAge:                31536000,
		ContentSecurityPolicy:     "default-src 'none'; frame-ancestors 'none';",
		ReferrerPolicy:            "strict-origin-when-cross-origin",
		CrossOriginResourcePolicy: "cross-origin",
		XDownloadOptions:          "noopen",
		XPermittedCrossDomain:     "none",
	}))

	if len(r.cfg.AllowOrigins) > 0 {
		r.app.Use(cors.New(cors.Config{
			AllowOrigins: r.cfg.AllowOrigins,
			AllowMethods: []string{"GET", "POST", "PATCH", "HEAD", "OPTIONS"},
			AllowHeaders: []string{
				"Origin",
				"Content-Type",
				"Accept",
				"X-Request-ID",
				middleware.ActorIDHeader,
				middleware.ActorNameHeader,
				middleware.ActorRoleHeader,
			},
			ExposeHeaders: []string{
				"X-Request-ID",
				"Content-Disposition",
				"Retry-After",
			},
			MaxAge: utils.CORSMaxAge,
		}))
	}

	r.app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
		Next: func(c fiber.Ctx) bool {
			// xlsx is already a zip archive
			return strings.Contains(c.Path(), "/export") && c.Query("format") == "xlsx"
		},
	}))

	if r.cfg.AccessLog {
		r.app.Use(logger.New(logger.Config{
			Format:     `{"time":"${time}","request_id":"${locals:requestid}","level":"info","method":"${method}","path":"${path}","ip":"${ip}","status":${status},"latency":"${latency}","bytes_out":${bytesSent}}` + "\n",
			TimeFormat: time.RFC3339,
			TimeZone:   "UTC",
			Next: func(c fiber.Ctx) bool {
				return c.Path() == "/api/v1/health"
			},
		}))
	}

	r.app.Use(middleware.Metrics())

	r.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c fiber.Ctx, e any) {
			r.logger.Error("panic while serving request",
				"request_id", requestid.FromContext(c),
				"error", e,
				"path", c.Path(),
				"method", c.Method(),
				"ip", c.IP(),
			)
		},
	}))
}

// Start starts the HTTP server
func (r *FiberRouter) Start(address string) error {
	return r.app.Listen(address, fiber.ListenConfig{DisableStartupMessage: true})
}

// Shutdown stops accepting connections and waits for in-flight requests
func (r *FiberRouter) Shutdown(ctx context.Context) error {
	return r.app.ShutdownWithContext(ctx)
}

// GetApp returns the Fiber app instance
func (r *FiberRouter) GetApp() *fiber.App {
	return r.app
}

func (r *FiberRouter) healthCheck(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	checks := fiber.Map{}
	healthy := true
	for name, check := range r.health {
		if err := check(ctx); err != nil {
			healthy = false
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}

	status := fiber.StatusOK
	message := "Service is healthy"
	if !healthy {
		status = fiber.StatusServiceUnavailable
		message = "Service is degraded"
	}

	return c.Status(status).JSON(dto.APIResponse{
		Success: healthy,
		Message: message,
		Data: fiber.Map{
			"status":    map[bool]string{true: "ok", false: "degraded"}[healthy],
			"timestamp": utils.UTCNow().Unix(),
			"timezone":  utils.LocalLocation().String(),
			"checks":    checks,
			"service":   "docnum-api",
		},
	})
}

func (r *FiberRouter) notFoundHandler(c fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(dto.APIResponse{
		Success: false,
		Message: "The requested resource was not found",
		Error: dto.ErrorDetail{
			Code: "NOT_FOUND",
			Details: fiber.Map{
				"path":       c.Path(),
				"method":     c.Method(),
				"request_id": requestid.FromContext(c),
			},
		},
	})
}

func (r *FiberRouter) errorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "An internal server error occurred"
	errorCode := "INTERNAL_ERROR"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		if code < fiber.StatusInternalServerError {
			message = e.Message
			errorCode = "REQUEST_ERROR"
		}
	}

	if code >= fiber.StatusInternalServerError {
		r.logger.Error("request failed", "status", code, "path", c.Path(), "error", err)
	}

	return c.Status(code).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code: errorCode,
			Details: fiber.Map{
				"timestamp":  utils.UTCNow().Unix(),
				"request_id": requestid.FromContext(c),
			},
		},
	})
}

func generateRequestID() string {
	bytes := make([]byte, 8)
	_, _ = rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
