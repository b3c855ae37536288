// Package httpserver is the REST and websocket-upgrade surface of the game
// server, built on Gin.
package httpserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rpssl/gameserver/internal/config"
	"github.com/rpssl/gameserver/internal/game/lobby"
	"github.com/rpssl/gameserver/internal/game/moves"
	"github.com/rpssl/gameserver/internal/game/play"
	"github.com/rpssl/gameserver/internal/transport/ws"
)

// Server serves the REST API, the websocket endpoint, metrics, and health.
// It implements the lifecycle Service contract via Start and Stop.
type Server struct {
	cfg    config.ServerConfig
	engine *gin.Engine
	srv    *http.Server
	logger *zap.Logger
}

// NewServer builds the router and wires all endpoints.
//
// Precondition: all collaborators are non-nil; cfg has been validated.
func NewServer(
	cfg config.Config,
	hub *ws.Hub,
	coordinator *lobby.Coordinator,
	games *play.Manager,
	registry *prometheus.Registry,
	logger *zap.Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	auth := AuthMiddleware(cfg.Auth.JWTSecret, logger)

	api := engine.Group("/api", auth)
	api.GET("/choices", handleChoices)
	api.GET("/choice", handleRandomChoice(games))
	api.POST("/play", handlePlay(games))
	api.GET("/rooms", handleRooms(coordinator))

	engine.GET("/ws", auth, func(c *gin.Context) {
		identity, ok := IdentityFromContext(c)
		if !ok {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		hub.Serve(c.Writer, c.Request, identity)
	})

	return &Server{
		cfg:    cfg.Server,
		engine: engine,
		logger: logger,
	}
}

// Engine exposes the router for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Start listens on the configured address and blocks until shutdown.
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:    s.cfg.Addr(),
		Handler: s.engine,
	}
	s.logger.Info("http server listening", zap.String("addr", s.cfg.Addr()))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop drains in-flight requests within the configured shutdown timeout.
func (s *Server) Stop() {
	if s.srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		s.logger.Warn("http server shutdown failed", zap.Error(err))
	}
}

// handleChoices lists the five playable moves.
func handleChoices(c *gin.Context) {
	c.JSON(http.StatusOK, moves.Choices())
}

// handleRandomChoice draws a computer-picked move.
func handleRandomChoice(games *play.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		choice, err := games.RandomChoice(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": "random number service unavailable"})
			return
		}
		c.JSON(http.StatusOK, choice)
	}
}

type playRequest struct {
	Player int `json:"player"`
}

// handlePlay runs a single-player round against the computer.
func handlePlay(games *play.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req playRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body"})
			return
		}
		result, err := games.Play(c.Request.Context(), req.Player)
		if err != nil {
			if _, rangeErr := moves.FromID(req.Player); rangeErr != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": rangeErr.Error()})
				return
			}
			c.JSON(http.StatusBadGateway, gin.H{"error": "random number service unavailable"})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// handleRooms lists open rooms with their occupancy.
func handleRooms(coordinator *lobby.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		rooms, err := coordinator.ListRooms(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list rooms"})
			return
		}
		c.JSON(http.StatusOK, rooms)
	}
}
