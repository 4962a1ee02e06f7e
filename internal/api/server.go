package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"liquidity-sniper/config"
	"liquidity-sniper/internal/warehouse"
)

// Server is the thin HTTP shell over the backtest core.
type Server struct {
	cfg    *config.Config
	loader *warehouse.Loader
	logger zerolog.Logger
	http   *http.Server
}

// NewServer builds the gin router and handlers.
func NewServer(cfg *config.Config, loader *warehouse.Loader, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		loader: loader,
		logger: logger.With().Str("component", "api").Logger(),
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.ServerConfig.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", s.handleHealth)

	apiGroup := router.Group("/api")
	{
		apiGroup.POST("/backtest/run", s.handleRunBacktest)
		apiGroup.GET("/backtest/cache", s.handleCacheStats)
		apiGroup.DELETE("/backtest/cache", s.handleClearCache)
	}

	s.http = &http.Server{
		Addr:    ":" + cfg.ServerConfig.Port,
		Handler: router,
	}
	return s
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.http.Addr).Msg("http server listening")
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func errorResponse(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}
