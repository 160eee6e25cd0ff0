// Package metrics define telemetry primitives to use across components. it uses the prometheus format.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Config for the metrics exporter.
type Config struct {
	Enabled bool   `mapstructure:"metrics"`
	Address string `mapstructure:"metrics-address"`
}

// DefaultConfig keeps the exporter disabled.
func DefaultConfig() Config {
	return Config{Address: "127.0.0.1:9090"}
}

// Server exposes /metrics over http.
type Server struct {
	logger *zap.Logger
	srv    *http.Server
	ln     net.Listener
}

// StartMetricsServer begins listening and supplying metrics on address/metrics.
func StartMetricsServer(logger *zap.Logger, address string) (*Server, error) {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	s := &Server{
		logger: logger,
		srv:    &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		ln:     ln,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	logger.Info("metrics server started", zap.Stringer("address", ln.Addr()))
	return s, nil
}

// Addr is the address the server listens on.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Stop shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
