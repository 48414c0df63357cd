// Package server wires configuration, storage, services, and HTTP
// routes into a runnable Novamarkt API server.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"

	"github.com/novamarkt/platform/internal/admin"
	"github.com/novamarkt/platform/internal/audit"
	"github.com/novamarkt/platform/internal/config"
	"github.com/novamarkt/platform/internal/conversation"
	"github.com/novamarkt/platform/internal/fraud"
	"github.com/novamarkt/platform/internal/idgen"
	"github.com/novamarkt/platform/internal/listing"
	"github.com/novamarkt/platform/internal/logging"
	"github.com/novamarkt/platform/internal/metrics"
	"github.com/novamarkt/platform/internal/moderation"
	"github.com/novamarkt/platform/internal/order"
	"github.com/novamarkt/platform/internal/payments"
	"github.com/novamarkt/platform/internal/ratelimit"
	"github.com/novamarkt/platform/internal/realtime"
	"github.com/novamarkt/platform/internal/security"
	"github.com/novamarkt/platform/internal/traces"
	"github.com/novamarkt/platform/internal/trust"
	"github.com/novamarkt/platform/internal/user"
	"github.com/novamarkt/platform/internal/validation"
)

// Server is the assembled Novamarkt API server.
type Server struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *sql.DB // nil in memory mode

	users         user.Store
	audits        audit.Store
	listings      listing.Store
	conversations conversation.Store
	signals       fraud.Store
	orders        order.Store

	provider   payments.Provider
	engine     *fraud.Engine
	trustSvc   *trust.Service
	listingSvc *listing.Service
	convSvc    *conversation.Service
	orderSvc   *order.Service

	hub     *realtime.Hub
	limiter *ratelimit.Limiter
	sweeper *order.Sweeper

	router  *gin.Engine
	httpSrv *http.Server

	ready        atomic.Bool
	cancelRunCtx context.CancelFunc
}

// trustRefreshAdapter narrows *trust.Service to the error-only refresh
// signature the user handlers depend on.
type trustRefreshAdapter struct {
	svc *trust.Service
}

func (a trustRefreshAdapter) Refresh(ctx context.Context, userID string) error {
	_, err := a.svc.Refresh(ctx, userID)
	return err
}

// New builds a fully wired server from configuration. With DATABASE_URL
// set the stores run on PostgreSQL; otherwise everything lives in
// process memory (demo/development mode).
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{cfg: cfg, logger: logger}

	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			return nil, fmt.Errorf("ping database: %w", err)
		}
		logger.Info("connected to PostgreSQL", "dsn", maskDSN(cfg.DatabaseURL))

		s.db = db
		s.users = user.NewPostgresStore(db)
		s.audits = audit.NewPostgresStore(db)
		s.listings = listing.NewPostgresStore(db)
		s.conversations = conversation.NewPostgresStore(db)
		s.signals = fraud.NewPostgresStore(db)
		s.orders = order.NewPostgresStore(db)
		s.trustSvc = trust.NewService(s.users, s.orders, s.signals, trust.NewPostgresSnapshotStore(db))
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory storage")
		listings := listing.NewMemoryStore()
		audits := audit.NewMemoryStore()

		s.users = user.NewMemoryStore()
		s.audits = audits
		s.listings = listings
		s.conversations = conversation.NewMemoryStore()
		s.signals = fraud.NewMemoryStore()
		s.orders = order.NewMemoryStore(listings, audits)
		s.trustSvc = trust.NewService(s.users, s.orders, s.signals, trust.NewMemorySnapshotStore())
	}

	providerName := "stripe"
	var payouts payments.Transferrer
	if cfg.StripeSecretKey != "" {
		sp := payments.NewStripeProvider(cfg.StripeSecretKey, cfg.StripeWebhookSecret)
		s.provider, payouts = sp, sp
	} else {
		logger.Warn("STRIPE_SECRET_KEY not set, using fake payment provider")
		fp := payments.NewFakeProvider()
		s.provider, payouts = fp, fp
		providerName = "fake"
	}

	s.hub = realtime.NewHub(logger)
	s.limiter = ratelimit.New(time.Minute)

	s.engine = fraud.NewEngine(s.signals, s.audits, s.listings, s.conversations, s.orders)
	s.listingSvc = listing.NewService(s.listings, s.users, s.trustSvc, s.engine, s.audits)

	moderator := moderation.NewService(s.engine, s.audits)
	s.convSvc = conversation.NewService(s.conversations, s.listings, moderator, s.engine, s.audits, s.hub)

	s.orderSvc = order.NewService(
		s.orders, s.listings, s.users, s.provider, s.audits, s.trustSvc, s.hub,
		order.Config{
			FeeRateBPS:   cfg.FeeRateBPS,
			Currency:     cfg.Currency,
			ReleaseAfter: cfg.AutoReleaseAfter,
			ProviderName: providerName,
		},
		order.WithPayouts(payouts),
	)
	s.sweeper = order.NewSweeper(s.orderSvc, cfg.AutoReleaseInterval)

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		s.logger.Error("panic recovered", "panic", recovered, "path", c.Request.URL.Path)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "internal server error",
		})
	}))
	s.router.Use(security.HeadersMiddleware())
	s.router.Use(security.CORSMiddleware(s.cfg.AllowedOrigins))
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))
	s.router.Use(identityMiddleware())
	s.router.Use(s.limiter.Middleware("global", s.cfg.RateLimitRPM, time.Minute))
	s.router.Use(metrics.Middleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
}

// identityMiddleware picks up the caller identity established by the
// upstream auth layer. Requests without it stay anonymous; handlers that
// need an actor reject those themselves.
func identityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if actorID := c.GetHeader("X-User-ID"); actorID != "" {
			c.Set("actorID", actorID)
		}
		c.Next()
	}
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = idgen.New()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
			"request_id", logging.RequestID(c.Request.Context()),
		}
		switch {
		case status >= 500:
			s.logger.Error("request", attrs...)
		case status >= 400:
			s.logger.Warn("request", attrs...)
		default:
			s.logger.Info("request", attrs...)
		}
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"env":       s.cfg.Env,
			"websocket": s.hub.Stats(),
		})
	})
	s.router.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "alive"})
	})
	s.router.GET("/health/ready", func(c *gin.Context) {
		if !s.ready.Load() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	s.router.GET("/metrics", metrics.Handler())
	s.router.GET("/ws", func(c *gin.Context) {
		s.hub.HandleWebSocket(c.Writer, c.Request)
	})

	orderHandler := order.NewHandler(s.orderSvc)

	api := s.router.Group("/api/v1")
	user.NewHandler(s.users, trustRefreshAdapter{svc: s.trustSvc}, s.audits).RegisterRoutes(api)
	listing.NewHandler(s.listingSvc).RegisterRoutes(api)
	conversation.NewHandler(s.convSvc).RegisterRoutes(api)
	trust.NewHandler(s.trustSvc).RegisterRoutes(api)
	orderHandler.RegisterRoutes(api)

	// Provider callbacks authenticate by signature, not by user header.
	orderHandler.RegisterWebhook(s.router.Group("/api/v1"), s.provider)

	adminGroup := s.router.Group("/api/v1/admin", admin.RequireSecret(s.cfg.AdminSecret))
	admin.NewHandler(s.users, s.signals, s.engine, s.trustSvc, s.orderSvc, s.audits).RegisterRoutes(adminGroup)
}

// Run starts the server and blocks until a shutdown signal arrives or
// the listener fails.
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(logging.WithLogger(ctx, s.logger))
	s.cancelRunCtx = cancel

	shutdownTraces, err := traces.Init(runCtx, s.cfg.OTLPEndpoint, s.logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	go s.hub.Run(runCtx)
	s.sweeper.Start(runCtx)
	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	s.ready.Store(true)
	s.logger.Info("server started", "port", s.cfg.Port, "env", s.cfg.Env)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		s.shutdown(shutdownTraces)
		return err
	case sig := <-quit:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
	}
	return s.shutdown(shutdownTraces)
}

// shutdown drains in-flight work and releases resources in reverse
// start order.
func (s *Server) shutdown(shutdownTraces func(context.Context) error) error {
	s.ready.Store(false)

	// Give load balancers a moment to observe the readiness flip before
	// the listener closes.
	if s.cfg.IsProduction() {
		time.Sleep(5 * time.Second)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var firstErr error
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("http shutdown failed", "error", err)
		firstErr = err
	}

	s.sweeper.Stop()
	s.cancelRunCtx() // stops hub, DB stats collector
	s.limiter.Stop()

	if err := shutdownTraces(shutdownCtx); err != nil {
		s.logger.Error("trace shutdown failed", "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close failed", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	s.logger.Info("server stopped")
	return firstErr
}

// maskDSN hides credentials in a connection string for logging.
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "<unparseable>"
	}
	if u.User != nil {
		u.User = url.User(u.User.Username())
	}
	return u.Redacted()
}
