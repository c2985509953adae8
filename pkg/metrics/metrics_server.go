/*
Copyright 2022 The Numaproj Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/numaproj/udf-worker/pkg/shared/logging"
)

// metricsServer runs an HTTP server to expose metrics and a liveness endpoint.
type metricsServer struct {
	addr              string
	readHeaderTimeout time.Duration
}

type Option func(*metricsServer)

// WithReadHeaderTimeout sets the read header timeout of the HTTP server
func WithReadHeaderTimeout(d time.Duration) Option {
	return func(m *metricsServer) {
		m.readHeaderTimeout = d
	}
}

// NewMetricsServer returns a Prometheus metrics server listening on addr.
func NewMetricsServer(addr string, opts ...Option) *metricsServer {
	m := new(metricsServer)
	m.addr = addr
	m.readHeaderTimeout = 5 * time.Second
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Start binds the listener and serves in the background. It returns the bound
// address and a shutdown function.
func (ms *metricsServer) Start(ctx context.Context) (net.Addr, func(ctx context.Context) error, error) {
	log := logging.FromContext(ctx)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	ln, err := net.Listen("tcp", ms.addr)
	if err != nil {
		return nil, nil, err
	}
	httpServer := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: ms.readHeaderTimeout,
	}

	go func() {
		log.Infow("Starting metrics HTTP server", zap.String("addr", ln.Addr().String()))
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("Metrics server stopped", zap.Error(err))
		}
		log.Info("Metrics server shutdown")
	}()
	return ln.Addr(), httpServer.Shutdown, nil
}
