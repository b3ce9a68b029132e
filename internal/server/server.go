package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	etlerr "github.com/carewh-lab/carewh/internal/core/errors"
	"github.com/carewh-lab/carewh/internal/orchestrator"
	"github.com/gin-gonic/gin"
)

type Server struct {
	Engine *gin.Engine
	Addr   string
	coord  *orchestrator.Coordinator
}

func New(addr string, coord *orchestrator.Coordinator, mode string) *Server {
	if mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()

	s := &Server{
		Engine: r,
		Addr:   addr,
		coord:  coord,
	}

	r.GET("/health", s.healthHandler)

	v1 := r.Group("/v1")
	v1.POST("/runs", s.triggerRunHandler)
	v1.GET("/runs/last", s.lastRunHandler)
	v1.GET("/verification", s.verificationHandler)

	return s
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := s.coord.Ping(ctx); err != nil {
		slog.Error("[Server] Health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"source":    "connected",
		"warehouse": "connected",
	})
}

func (s *Server) triggerRunHandler(c *gin.Context) {
	report, err := s.coord.Run(c.Request.Context())
	switch {
	case err == nil:
		c.JSON(http.StatusOK, report)
	case errors.Is(err, etlerr.ErrRunInProgress):
		c.JSON(http.StatusConflict, etlerr.ErrorResponse{
			ErrorType: etlerr.HttpRunInProgress,
			Message:   err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, etlerr.ErrorResponse{
			ErrorType: etlerr.HttpRunFailed,
			Message:   err.Error(),
			Details:   report,
		})
	}
}

func (s *Server) lastRunHandler(c *gin.Context) {
	report := s.coord.Last()
	if report == nil {
		c.JSON(http.StatusNotFound, etlerr.ErrorResponse{
			ErrorType: etlerr.HttpReportNotFound,
			Message:   "no run has completed since the server started",
		})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) verificationHandler(c *gin.Context) {
	v, err := s.coord.Verify(c.Request.Context())
	if err != nil {
		slog.Error("[Server] Verification failed", "error", err)
		if errors.Is(err, etlerr.ErrConnection) {
			c.JSON(http.StatusServiceUnavailable, etlerr.ErrorResponse{
				ErrorType: etlerr.HttpStoreUnreachable,
				Message:   err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, etlerr.ErrorResponse{
			ErrorType: etlerr.HttpInternalError,
			Message:   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, v)
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.Addr,
		Handler: s.Engine,
	}

	slog.Info("[Server] Starting HTTP server", "address", s.Addr)

	go func() {
		<-ctx.Done()
		slog.Info("[Server] Stopping HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("[Server] HTTP server forced to shutdown", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
