// Package server exposes the admin HTTP API over the engine and ban history.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"golang.org/x/net/netutil"
	"golang.org/x/time/rate"

	"failguard/internal/auth"
	"failguard/internal/config"
	"failguard/internal/domain"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 5 * time.Second
	defaultMaxConns   = 64
)

// Engine is the part of the ban engine the API drives.
type Engine interface {
	ListBanned() []domain.BanRecord
	ListTracked() []domain.FailureRecord
	GetBanInfo(address string) (domain.BanRecord, bool)
	BlockManually(ctx context.Context, address string, duration time.Duration, reason string) domain.BanDecision
	UnblockManually(ctx context.Context, address string) error
	ClearTracking(address string) bool
}

// HistoryStore is the read side of the durable ban history.
type HistoryStore interface {
	ListBetween(ctx context.Context, from, to time.Time) ([]domain.BanRecord, error)
	GetLatestFor(ctx context.Context, address string) (*domain.BanRecord, error)
	GetStatistics(ctx context.Context) (domain.BanStatistics, error)
}

type Server struct {
	engine       Engine
	store        HistoryStore
	issuer       *auth.Issuer
	passwordHash string
	loginLimiter *rate.Limiter
	now          func() time.Time
}

func New(engine Engine, store HistoryStore, issuer *auth.Issuer, passwordHash string) *Server {
	return &Server{
		engine:       engine,
		store:        store,
		issuer:       issuer,
		passwordHash: passwordHash,
		loginLimiter: rate.NewLimiter(rate.Every(time.Second), 5),
		now:          time.Now,
	}
}

func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", s.healthz)
	router.POST("/login", s.loginUser)

	private := router.Group("/", auth.RequireAuth(s.issuer))
	private.GET("/bans", s.listBans)
	private.GET("/bans/:address", s.getBan)
	private.POST("/bans", s.blockAddress)
	private.DELETE("/bans/:address", s.unblockAddress)
	private.GET("/tracked", s.listTracked)
	private.DELETE("/tracked/:address", s.clearTracked)
	private.GET("/history", s.history)
	private.GET("/stats", s.stats)

	log.Debug("Routes opened")
	return router
}

// Serve listens on cfg.Listen until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, cfg config.APIConfig) error {
	listener, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("api: listen on %s: %w", cfg.Listen, err)
	}

	maxConns := cfg.MaxConnections
	if maxConns <= 0 {
		maxConns = defaultMaxConns
	}
	listener = netutil.LimitListener(listener, maxConns)

	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting admin API", "address", listener.Addr().String(), "max_connections", maxConns)
		errCh <- srv.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api shutdown: %w", err)
	}
	log.Info("Admin API stopped")
	return nil
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("api request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"client", c.ClientIP())
	}
}

func writeError(c *gin.Context, msg string, status int) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
