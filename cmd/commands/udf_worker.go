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

package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	udfworker "github.com/numaproj/udf-worker"
	"github.com/numaproj/udf-worker/pkg/config"
	"github.com/numaproj/udf-worker/pkg/metrics"
	"github.com/numaproj/udf-worker/pkg/shared/logging"
	"github.com/numaproj/udf-worker/pkg/udf/builtin"
	"github.com/numaproj/udf-worker/pkg/udf/connector"
	"github.com/numaproj/udf-worker/pkg/udf/worker"
)

func NewServeCommand() *cobra.Command {
	var configFile string

	command := &cobra.Command{
		Use:   "serve",
		Short: "Read the host port from stdin, connect back and serve one session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(config.New(), cmd.Flags(), configFile)
			if err != nil {
				return err
			}
			v := udfworker.GetVersion()
			log := logging.NewLogger(logging.WithDebug(cfg.Debug)).Named("serve")
			log.Infow("Starting udf worker", "version", v)
			metrics.BuildInfo.WithLabelValues(v.Version, v.Platform).Set(1)

			parent := cmd.Context()
			if parent == nil {
				parent = context.Background()
			}
			ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx = logging.WithLogger(ctx, log)

			if cfg.MetricsAddr != "" {
				_, shutdown, err := metrics.NewMetricsServer(cfg.MetricsAddr).Start(ctx)
				if err != nil {
					return fmt.Errorf("failed to start metrics server: %w", err)
				}
				defer func() {
					sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					if err := shutdown(sctx); err != nil {
						log.Warnw("Failed to shutdown metrics server", zap.Error(err))
					}
				}()
			}

			port, err := connector.ReadPort(cmd.InOrStdin())
			if err != nil {
				return err
			}
			streams, err := connector.Dial(ctx, port, cfg.ConnectorOptions()...)
			if err != nil {
				return err
			}
			log.Infow("Connected to host", zap.Int("port", port), zap.Stringer("local", streams.LocalAddr()))

			// a blocked read only returns once the input direction is shut down
			done := make(chan struct{})
			defer close(done)
			go func() {
				select {
				case <-ctx.Done():
					log.Info("Shutting down input")
					_ = streams.CloseRead()
				case <-done:
				}
			}()

			h := worker.New(builtin.NewRegistry(), worker.WithMaxFrameSize(cfg.MaxFrameSize))
			return h.ServeStreams(ctx, streams)
		},
	}
	command.Flags().StringVar(&configFile, "config", "", "optional config file (yaml, toml or json)")
	config.AddFlags(command.Flags())
	return command
}
