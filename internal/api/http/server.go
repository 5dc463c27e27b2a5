package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"oraclehub/internal/config"
	"time"

	"gitlab.com/nevasik7/alerting/logger"
)

type Server struct {
	log logger.Logger
	srv *http.Server
}

func NewServer(log logger.Logger, cfg *config.HTTPConfig, handler http.Handler) *Server {
	// sane defaults
	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 15 * time.Second
	}
	idleTimeout := cfg.IdleTimeout
	if idleTimeout <= 0 {
		idleTimeout = 60 * time.Second
	}

	return &Server{
		log: log,
		srv: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadTimeout:       readTimeout,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       idleTimeout,
		},
	}
}

// Start binds the listener synchronously and serves in the background.
// Serve errors other than a graceful close are sent to errCh.
func (s *Server) Start(errCh chan<- error) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.log.Infof("HTTP server listening, addr=%s", ln.Addr().String())

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Infof("HTTP server shutting down")
	return s.srv.Shutdown(ctx)
}
