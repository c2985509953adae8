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

// Package config loads the worker configuration from flags, UDF_WORKER_* environment
// variables and an optional config file, in that order of precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/numaproj/udf-worker/pkg/udf/connector"
	"github.com/numaproj/udf-worker/pkg/udf/protocol"
)

const EnvPrefix = "UDF_WORKER"

const (
	KeyHost         = "host"
	KeyDialTimeout  = "dial-timeout"
	KeyBufferSize   = "buffer-size"
	KeyMaxFrameSize = "max-frame-size"
	KeyMetricsAddr  = "metrics-addr"
	KeyDebug        = "debug"
)

// WorkerConfig is the configuration of one worker process.
type WorkerConfig struct {
	Host         string        `mapstructure:"host"`
	DialTimeout  time.Duration `mapstructure:"dial-timeout"`
	BufferSize   int           `mapstructure:"buffer-size"`
	MaxFrameSize int           `mapstructure:"max-frame-size"`
	MetricsAddr  string        `mapstructure:"metrics-addr"`
	Debug        bool          `mapstructure:"debug"`
}

// New returns a viper instance with defaults and environment binding set up.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyHost, connector.DefaultHost)
	v.SetDefault(KeyDialTimeout, connector.DefaultDialTimeout)
	v.SetDefault(KeyBufferSize, connector.DefaultBufferSize)
	v.SetDefault(KeyMaxFrameSize, protocol.DefaultMaxFrameSize)
	v.SetDefault(KeyMetricsAddr, "")
	v.SetDefault(KeyDebug, false)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// AddFlags registers the configuration flags on fs.
func AddFlags(fs *pflag.FlagSet) {
	fs.String(KeyHost, connector.DefaultHost, "address of the host process")
	fs.Duration(KeyDialTimeout, connector.DefaultDialTimeout, "timeout of one connection attempt")
	fs.Int(KeyBufferSize, connector.DefaultBufferSize, "buffer size of the input and output streams")
	fs.Int(KeyMaxFrameSize, protocol.DefaultMaxFrameSize, "largest accepted frame payload, in bytes")
	fs.String(KeyMetricsAddr, "", "serve prometheus metrics on this address, disabled when empty")
	fs.Bool(KeyDebug, false, "enable development logging")
}

// Load reads the optional config file, binds fs and decodes the result.
func Load(v *viper.Viper, fs *pflag.FlagSet, file string) (*WorkerConfig, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %q: %w", file, err)
		}
	}
	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}
	c := &WorkerConfig{}
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks value ranges.
func (c *WorkerConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%s must not be empty", KeyHost)
	}
	if c.DialTimeout <= 0 {
		return fmt.Errorf("%s must be positive, got %s", KeyDialTimeout, c.DialTimeout)
	}
	if c.BufferSize < 16 {
		return fmt.Errorf("%s must be at least 16, got %d", KeyBufferSize, c.BufferSize)
	}
	if c.MaxFrameSize < 1 || c.MaxFrameSize > protocol.DefaultMaxFrameSize {
		return fmt.Errorf("%s must be in [1, %d], got %d", KeyMaxFrameSize, protocol.DefaultMaxFrameSize, c.MaxFrameSize)
	}
	return nil
}

// ConnectorOptions maps the configuration onto connector options.
func (c *WorkerConfig) ConnectorOptions() []connector.Option {
	return []connector.Option{
		connector.WithHost(c.Host),
		connector.WithDialTimeout(c.DialTimeout),
		connector.WithBufferSize(c.BufferSize),
	}
}
