// Package server contains the HTTP and WebSocket handlers of the catalog API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	_ "github.com/morroware/FEC-STL-sub000/docs" // swagger docs
	"github.com/morroware/FEC-STL-sub000/internal/config"
	"github.com/morroware/FEC-STL-sub000/internal/featureflags"
	"github.com/morroware/FEC-STL-sub000/internal/middleware"
	"github.com/morroware/FEC-STL-sub000/internal/models"
	"github.com/morroware/FEC-STL-sub000/internal/notifications"
	"github.com/morroware/FEC-STL-sub000/internal/repository"
	"github.com/morroware/FEC-STL-sub000/internal/service"
	"github.com/morroware/FEC-STL-sub000/internal/storage"
)

// Deps are the already-initialized dependencies of a Server.
type Deps struct {
	Store repository.Store
	Files *storage.FileStore
	// Redis is optional. Without it rate limits, the token blacklist and the
	// category cache are skipped and activity is broadcast locally.
	Redis *redis.Client
	// Registry receives the HTTP metrics. Nil means the default registry.
	Registry prometheus.Registerer
}

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	store          repository.Store
	files          *storage.FileStore
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc
	notifier       *notifications.Notifier
	hub            *notifications.Hub
	featureFlags   *featureflags.Manager
	limits         service.UploadLimits
	actionTable    map[string]fiber.Handler

	auth       *service.AuthService
	models     *service.ModelService
	uploads    *service.UploadService
	categories *service.CategoryService
	users      *service.UserService
}

// NewServer wires the services on top of deps.
func NewServer(cfg *config.Config, deps Deps) (*Server, error) {
	if deps.Store == nil || deps.Files == nil {
		return nil, errors.New("server needs a store and a file store")
	}

	s := &Server{
		config:         cfg,
		store:          deps.Store,
		files:          deps.Files,
		redis:          deps.Redis,
		promMiddleware: middleware.InitMetrics("fecstl-api", deps.Registry),
		featureFlags:   featureflags.NewManager(cfg.FeatureFlags),
		limits:         service.LimitsFromConfig(cfg),
		hub:            notifications.NewHub(),
	}
	if deps.Redis != nil {
		s.notifier = notifications.NewNotifier(deps.Redis)
	}

	var events notifications.Publisher = notifications.NopPublisher{}
	if s.activityEnabled() {
		events = notifications.NewFeed(s.hub, s.notifier)
	}

	s.auth = service.NewAuthService(deps.Store.Users(), cfg.JWTSecret)
	s.models = service.NewModelService(deps.Store, deps.Files, events)
	s.uploads = service.NewUploadService(deps.Store, deps.Files, events, s.limits)
	s.categories = service.NewCategoryService(deps.Store.Categories())
	s.users = service.NewUserService(deps.Store)
	s.actionTable = s.actions()
	return s, nil
}

// activityEnabled reports whether the global activity feed is switched on.
func (s *Server) activityEnabled() bool {
	return s.featureFlags.Enabled(featureflags.ActivityFeed, "")
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.ContextMiddleware())
	app.Use(middleware.TracingMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	// Model files are fetched cross-origin by viewers, so CORP is relaxed.
	app.Use(helmet.New(helmet.Config{
		CrossOriginResourcePolicy: "cross-origin",
	}))

	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so rejected requests still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: origins != "*",
		ExposeHeaders:    "Content-Disposition",
		MaxAge:           86400,
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(models.ErrorResponse{
				Error: "Too many requests, please try again later.",
				Code:  "RATE_LIMITED",
			})
		},
	}))
}

// Rate limits of the sensitive endpoints, shared by the REST routes and the
// action dispatcher.
const (
	registerLimit  = 5
	registerWindow = 10 * time.Minute
	loginLimit     = 10
	loginWindow    = 5 * time.Minute
	uploadLimit    = 10
	uploadWindow   = 10 * time.Minute
)

// SetupRoutes configures all routes for the application. Authorization is
// decided by the services, so most groups only resolve the caller and let
// anonymous requests through to get the same 401 the action endpoint gives.
func (s *Server) SetupRoutes(app *fiber.App) {
	authOptional := middleware.AuthOptional(s.auth)

	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	app.Get("/uploads/:name", s.ServeUpload)

	api := app.Group("/api")
	api.Get("/metrics/dashboard", monitor.New(monitor.Config{
		Title: "FEC STL Catalog Metrics",
	}))
	api.Get("/swagger/*", swagger.HandlerDefault)

	// Single endpoint for clients that speak the action protocol.
	api.All("/action", authOptional, s.Action)

	auth := api.Group("/auth", authOptional)
	auth.Post("/register", middleware.RateLimit(s.redis, registerLimit, registerWindow, "register"), s.Register)
	auth.Post("/login", middleware.RateLimit(s.redis, loginLimit, loginWindow, "login"), s.Login)
	auth.Post("/logout", s.Logout)
	auth.Get("/me", s.CheckAuth)

	modelRoutes := api.Group("/models", authOptional)
	modelRoutes.Get("/", s.GetModels)
	modelRoutes.Post("/", middleware.RateLimit(s.redis, uploadLimit, uploadWindow, "upload"), s.UploadModel)
	// Define specific /:id/:resource routes BEFORE generic /:id route
	modelRoutes.Get("/:id/download", s.DownloadModel)
	modelRoutes.Post("/:id/like", s.LikeModel)
	modelRoutes.Post("/:id/favorite", s.FavoriteModel)
	modelRoutes.Get("/:id", s.GetModel)
	modelRoutes.Put("/:id", s.UpdateModel)
	modelRoutes.Delete("/:id", s.DeleteModel)

	categories := api.Group("/categories", authOptional)
	categories.Get("/", s.GetCategories)
	categories.Post("/", s.CreateCategory)
	categories.Put("/:id", s.UpdateCategory)
	categories.Delete("/:id", s.DeleteCategory)

	users := api.Group("/users", authOptional)
	users.Get("/", s.GetUsers)
	users.Get("/me/favorites", s.GetFavorites)
	users.Get("/:id/models", s.GetUserModels)
	users.Get("/:id", s.GetUser)
	users.Put("/:id", s.UpdateUser)
	users.Delete("/:id", s.DeleteUser)

	api.Get("/stats", s.GetStats)

	api.Get("/ws/activity", authOptional, s.requireActivity, websocketUpgrade, s.ActivityWebSocket())

	admin := api.Group("/admin", middleware.AuthRequired(s.auth), middleware.AdminRequired)
	admin.Get("/feature-flags", s.GetFeatureFlags)
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests. Redis is optional, so an
// unconfigured Redis does not make the service unready; a failing one does.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	storeStatus := "healthy"
	if err := s.store.Ping(ctx); err != nil {
		middleware.Logger.WarnContext(ctx, "store ping failed", slog.String("error", err.Error()))
		storeStatus = "unhealthy"
	}

	redisStatus := "disabled"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if storeStatus != "healthy" || redisStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status":  overallStatus,
		"backend": s.store.Backend(),
		"checks": fiber.Map{
			"store": storeStatus,
			"redis": redisStatus,
		},
		"time": time.Now(),
	})
}

// bodyLimit allows one full upload plus room for the form fields.
func (s *Server) bodyLimit() int {
	total := s.limits.MaxModelBytes*int64(s.limits.MaxFiles) + s.limits.MaxPhotoBytes*int64(s.limits.MaxPhotos)
	return int(total) + 4*1024*1024
}

// App builds the Fiber application with every middleware and route.
func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:   "FEC STL Catalog",
		BodyLimit: s.bodyLimit(),
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fe *fiber.Error
			if errors.As(err, &fe) && fe.Code < fiber.StatusInternalServerError {
				return models.RespondWithError(c, fe.Code, errors.New(fe.Message))
			}
			middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", slog.String("error", err.Error()))
			return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
		},
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// Start starts the server
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	s.app = s.App()

	if s.notifier != nil && s.activityEnabled() {
		go func() {
			if err := s.hub.StartWiring(s.shutdownCtx, s.notifier); err != nil {
				middleware.Logger.Error("failed to start hub wiring",
					slog.String("hub", s.hub.Name()), slog.String("error", err.Error()))
			}
		}()
	}

	middleware.Logger.Info("server starting",
		slog.String("port", s.config.Port), slog.String("backend", s.store.Backend()))
	if err := s.app.Listen(":" + s.config.Port); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	if err := s.hub.Shutdown(ctx); err != nil {
		middleware.Logger.Error("error shutting down hub", slog.String("hub", s.hub.Name()), slog.String("error", err.Error()))
	}

	if err := s.store.Close(); err != nil {
		middleware.Logger.Error("error closing store", slog.String("error", err.Error()))
	}

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			middleware.Logger.Error("error closing redis", slog.String("error", err.Error()))
		}
	}

	middleware.Logger.Info("server shutdown complete")
	return nil
}
