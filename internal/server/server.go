// Package server contains the HTTP handlers for the application's API endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"scribe/internal/auth"
	"scribe/internal/bootstrap"
	"scribe/internal/config"
	"scribe/internal/database"
	"scribe/internal/mailer"
	"scribe/internal/middleware"
	"scribe/internal/models"
	"scribe/internal/notifications"
	"scribe/internal/repository"
	"scribe/internal/service"
	"scribe/internal/storage"
)

// multipartOverhead is the body allowance on top of MAX_UPLOAD_BYTES for
// multipart boundaries and headers.
const multipartOverhead = 1 << 20

// Server holds all dependencies and provides handlers
type Server struct {
	config      *config.Config
	db          *gorm.DB
	redis       *redis.Client
	app         *fiber.App
	tokens      *auth.TokenCodec
	maintenance *service.Maintenance
	notifier    *notifications.Notifier
	hub         *notifications.Hub
	shutdownFn  context.CancelFunc

	authService         *service.AuthService
	postService         *service.PostService
	attachmentService   *service.AttachmentService
	notificationService *service.NotificationService
}

// Option overrides a collaborator built by NewServerWithDeps.
type Option func(*options)

type options struct {
	hasher auth.PasswordHasher
	mailer mailer.Mailer
	clock  auth.Clock
}

// WithHasher replaces the default argon2id hasher.
func WithHasher(h auth.PasswordHasher) Option {
	return func(o *options) { o.hasher = h }
}

// WithMailer replaces the redis outbox / log mailer.
func WithMailer(m mailer.Mailer) Option {
	return func(o *options) { o.mailer = m }
}

// WithClock replaces the wall clock used for tokens and expiry.
func WithClock(c auth.Clock) Option {
	return func(o *options) { o.clock = c }
}

// NewServer initializes the runtime (database, redis, admin account) and
// builds the server on top of it.
func NewServer(ctx context.Context, cfg *config.Config, rt bootstrap.Options) (*Server, error) {
	db, redisClient, err := bootstrap.InitRuntime(ctx, cfg, rt)
	if err != nil {
		return nil, err
	}
	return NewServerWithDeps(cfg, db, redisClient)
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// redisClient may be nil; caching and the outbox are then disabled.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, opts ...Option) (*Server, error) {
	o := options{clock: auth.RealClock{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.hasher == nil {
		o.hasher = auth.NewArgon2Hasher(nil)
	}
	if o.mailer == nil {
		o.mailer = mailer.New(redisClient, cfg.MailOutboxKey, !cfg.IsProduction())
	}

	tokens, err := auth.NewTokenCodec(cfg.JWTSecret, cfg.JWTTTL(), cfg.JWTIssuer, o.clock)
	if err != nil {
		return nil, fmt.Errorf("token codec: %w", err)
	}
	store, err := storage.NewFilesystemStore(cfg.StorageRoot)
	if err != nil {
		return nil, fmt.Errorf("attachment storage: %w", err)
	}

	userRepo := repository.NewUserRepository(db)
	resets := service.NewResetTokenStore(repository.NewResetTokenRepository(db), cfg.ResetTTL(), o.clock)
	authService, err := service.NewAuthService(userRepo, o.hasher, tokens, resets, o.mailer)
	if err != nil {
		return nil, fmt.Errorf("auth service: %w", err)
	}
	notifier := notifications.NewNotifier(redisClient)
	notificationService := service.NewNotificationService(
		repository.NewNotificationRepository(db), notifier, cfg.MaxPageSize)
	postService := service.NewPostService(repository.NewPostRepository(db), notificationService, cfg.MaxPageSize)
	attachmentService := service.NewAttachmentService(
		postService, repository.NewAttachmentRepository(db), store, cfg.MaxUploadBytes, o.clock)

	s := &Server{
		config:              cfg,
		db:                  db,
		redis:               redisClient,
		tokens:              tokens,
		notifier:            notifier,
		hub:                 notifications.NewHub(),
		authService:         authService,
		postService:         postService,
		attachmentService:   attachmentService,
		notificationService: notificationService,
		maintenance:         service.NewMaintenance(attachmentService, resets, cfg.OrphanSweepInterval()),
	}

	app := fiber.New(fiber.Config{
		AppName:      "scribe",
		BodyLimit:    int(cfg.MaxUploadBytes) + multipartOverhead,
		ErrorHandler: s.errorHandler,
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	s.app = app
	return s, nil
}

// App exposes the fiber application, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.ContextMiddleware())
	app.Use(helmet.New())
	origins := s.config.AllowedOrigins
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		// fiber refuses credentials with a wildcard origin.
		AllowCredentials: origins != "*",
		MaxAge:           86400,
	}))
	if s.config.MetricsEnabled {
		middleware.InitMetrics(app, "scribe", "/metrics")
	}
	app.Use(middleware.TracingMiddleware())
	app.Use(middleware.Authenticate(s.tokens))
	app.Use(middleware.RequestDeadline(s.config.RequestTimeout()))
	app.Use(middleware.StructuredLogger())
}

func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	api := app.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.Post("/join", s.Join)
	authGroup.Post("/login", s.Login)
	authGroup.Get("/logout", s.Logout)
	authGroup.Post("/find-password", s.RequestPasswordReset)
	authGroup.Put("/find-password/:token", s.ApplyPasswordReset)

	posts := api.Group("/posts")
	posts.Get("/", s.GetPosts)
	posts.Get("/:id", s.GetPost)
	posts.Get("/:id/attachments", s.ListAttachments)
	posts.Get("/:id/downloadFile/:fileId", s.DownloadFile)
	posts.Post("/", middleware.RequireAuth, s.CreatePost)
	posts.Put("/:id", middleware.RequireAuth, s.UpdatePost)
	posts.Delete("/:id", middleware.RequireAuth, s.DeletePost)
	posts.Post("/:id/enable", middleware.RequireAuth, s.EnablePost)
	posts.Post("/:id/unable", middleware.RequireAuth, s.DisablePost)
	posts.Post("/:id/uploadFile", middleware.RequireAuth, s.UploadFile)

	notes := api.Group("/notifications", middleware.RequireAuth)
	notes.Get("/", s.GetNotifications)
	notes.Post("/:id/dismiss", s.DismissNotification)
	notes.Get("/ws", requireUpgrade, s.NotificationStream())
}

func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now().UTC(),
	})
}

// ReadinessCheck reports 503 when the database is unreachable. Redis is
// optional; its state is reported but does not fail readiness.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	if err := database.Ping(ctx, s.db); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "unavailable"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overall := "healthy"
	if dbStatus != "healthy" {
		status = fiber.StatusServiceUnavailable
		overall = "unhealthy"
	} else if redisStatus == "unhealthy" {
		overall = "degraded"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overall,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now().UTC(),
	})
}

// errorHandler maps errors that escape handlers (and fiber's own routing and
// body-limit errors) onto the error envelope.
func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		switch fe.Code {
		case fiber.StatusRequestEntityTooLarge:
			return s.respondError(c, models.NewTooLargeError(s.config.MaxUploadBytes))
		case fiber.StatusNotFound:
			return s.respondError(c, &models.AppError{Code: models.CodeNotFound, Message: fe.Message})
		}
		if fe.Code < fiber.StatusInternalServerError {
			return c.Status(fe.Code).JSON(models.ErrorResponse{
				Status:  "error",
				Code:    models.CodeBadRequest,
				Message: fe.Message,
			})
		}
	}
	return s.respondError(c, err)
}

// Start launches background maintenance and blocks serving HTTP.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownFn = cancel
	s.maintenance.Start(ctx)
	if err := s.hub.Listen(ctx, s.notifier); err != nil {
		middleware.Logger.Warn("notification relay unavailable", slog.String("error", err.Error()))
	}

	middleware.Logger.Info("server starting", slog.String("port", s.config.Port))
	return s.app.Listen(":" + s.config.Port)
}

// Shutdown drains HTTP traffic, stops maintenance and closes storage clients.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdownFn != nil {
		s.shutdownFn()
		select {
		case <-s.maintenance.Done():
		case <-ctx.Done():
		}
	}

	s.hub.Shutdown()

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	if s.authService != nil {
		if err := s.authService.Wait(ctx); err != nil {
			middleware.Logger.Warn("pending reset deliveries abandoned", slog.String("error", err.Error()))
		}
	}

	if err := database.Close(s.db); err != nil {
		middleware.Logger.Error("error closing database", slog.String("error", err.Error()))
	}

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			middleware.Logger.Error("error closing redis", slog.String("error", err.Error()))
		}
	}

	middleware.Logger.Info("server shutdown complete")
	return nil
}
