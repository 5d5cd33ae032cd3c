// Package service runs the HTTP endpoints exposed next to the benchmark loop.
package service

import (
	"context"
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-bench/metrics"
)

const (
	HealthzHost = "0.0.0.0"
	HealthzPort = 8081
)

type Service struct {
	Healthz *HealthzServer
	log     log.Logger
}

func New(logger log.Logger) *Service {
	if logger == nil {
		logger = log.Root()
	}
	return &Service{
		Healthz: NewHealthzServer(logger),
		log:     logger,
	}
}

// Start serves the healthz endpoints on addr in the background.
func (s *Service) Start(ctx context.Context, addr string) {
	s.log.Info("service starting")

	go func() {
		s.log.Info("starting healthz server", "addr", addr)
		if err := s.Healthz.Start(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("error starting healthz server", "err", err)
			metrics.RecordErrorDetails("healthz_start", err)
		}
	}()

	s.log.Info("service started")
}

func (s *Service) Shutdown() {
	s.log.Info("service shutting down")

	if err := s.Healthz.Shutdown(); err != nil {
		s.log.Warn("failed to stop healthz server", "err", err)
	}
	s.log.Info("healthz stopped")

	s.log.Info("service stopped")
}
