// Package server runs the hub HTTP endpoint and stops it on signals.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const stopWaitTime = 5 * time.Second

type Config struct {
	Host string `env:"HOST" envDefault:""`
	Port string `env:"PORT" envDefault:"9090"`
}

type Server struct {
	name   string
	srv    *http.Server
	logger *slog.Logger
}

func New(name string, cfg Config, handler http.Handler, logger *slog.Logger) *Server {
	return &Server{
		name: name,
		srv: &http.Server{
			Addr:              net.JoinHostPort(cfg.Host, cfg.Port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

func (s *Server) Addr() string {
	return s.srv.Addr
}

// Start blocks until the server stops. A graceful Stop is not an error.
func (s *Server) Start() error {
	s.logger.Info(fmt.Sprintf("%s service http server listening at %s", s.name, s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), stopWaitTime)
	defer cancel()

	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("%s service error occurred during shutdown at %s: %w", s.name, s.srv.Addr, err)
	}
	s.logger.Info(fmt.Sprintf("%s service shutdown of http at %s", s.name, s.srv.Addr))

	return nil
}

// StopSignalHandler stops the servers and cancels ctx on SIGINT or SIGTERM,
// or stops them when ctx is done.
func StopSignalHandler(ctx context.Context, cancel context.CancelFunc, logger *slog.Logger, name string, servers ...*Server) error {
	c := make(chan os.Signal, 2)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(c)

	var err error
	select {
	case sig := <-c:
		defer cancel()
		logger.Info(fmt.Sprintf("%s service shutdown by signal: %s", name, sig))
	case <-ctx.Done():
	}

	for _, s := range servers {
		err = errors.Join(err, s.Stop())
	}

	return err
}
