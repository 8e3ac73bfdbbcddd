package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pulseboard/pulseboard/backend/internal/api/routes"
	"github.com/pulseboard/pulseboard/backend/internal/config"
	"github.com/pulseboard/pulseboard/backend/internal/logger"
)

const (
	readHeaderTimeout = 10 * time.Second
	drainTimeout      = 5 * time.Second
)

// Server owns the status API router and its listener.
type Server struct {
	Engine *gin.Engine
	addr   string
}

// New builds the router. Gin runs in debug mode only for development.
func New(svc *routes.Services, cfg config.Config) (*Server, error) {
	mode := gin.ReleaseMode
	if cfg.Environment == "development" {
		mode = gin.DebugMode
	}
	gin.SetMode(mode)

	router := gin.New()
	if err := routes.Register(router, svc, cfg); err != nil {
		return nil, fmt.Errorf("register routes: %w", err)
	}
	return &Server{Engine: router, addr: net.JoinHostPort("", cfg.HTTPPort)}, nil
}

// Run serves until ctx is cancelled, then gives in-flight requests drainTimeout
// to finish.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Engine,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	case <-ctx.Done():
	}

	logger.Component("http").Info("draining HTTP connections")
	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
	defer cancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}
