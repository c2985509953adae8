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

// Package connector opens the duplex channel between a worker and its host.
//
// The host listens on a loopback port and tells the worker which one through the
// worker's standard input. The worker dials back and splits the connection into an
// input and an output stream that are buffered and closed independently.
package connector

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/numaproj/udf-worker/pkg/shared/logging"
	"github.com/numaproj/udf-worker/pkg/udferr"
)

const (
	DefaultHost        = "127.0.0.1"
	DefaultBufferSize  = 65536
	DefaultDialTimeout = 10 * time.Second
)

// DefaultDialBackoff retries a refused dial a few times before giving up.
var DefaultDialBackoff = wait.Backoff{
	Steps:    5,
	Duration: 50 * time.Millisecond,
	Factor:   2.0,
	Jitter:   0.1,
}

type options struct {
	host        string
	dialTimeout time.Duration
	bufferSize  int
	backoff     wait.Backoff
}

// Option to apply different options
type Option func(*options)

// WithHost overrides the loopback address to dial.
func WithHost(host string) Option {
	return func(o *options) {
		o.host = host
	}
}

// WithDialTimeout sets the timeout of a single dial attempt.
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) {
		o.dialTimeout = d
	}
}

// WithBufferSize sets the buffer size of each stream.
func WithBufferSize(n int) Option {
	return func(o *options) {
		o.bufferSize = n
	}
}

// WithBackoff sets the retry policy for refused dials.
func WithBackoff(b wait.Backoff) Option {
	return func(o *options) {
		o.backoff = b
	}
}

func newOptions(opts ...Option) *options {
	o := &options{
		host:        DefaultHost,
		dialTimeout: DefaultDialTimeout,
		bufferSize:  DefaultBufferSize,
		backoff:     DefaultDialBackoff,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if o.bufferSize <= 0 {
		o.bufferSize = DefaultBufferSize
	}
	if o.backoff.Steps < 1 {
		o.backoff.Steps = 1
	}
	return o
}

// ReadPort reads the host's port from the first line of r.
func ReadPort(r io.Reader) (int, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return 0, udferr.Wrap(udferr.Setup, err, "failed to read port")
	}
	text := strings.TrimSpace(line)
	port, err := strconv.Atoi(text)
	if err != nil {
		return 0, udferr.Wrap(udferr.Setup, err, fmt.Sprintf("malformed port %q", text))
	}
	if port < 1 || port > 65535 {
		return 0, udferr.New(udferr.Setup, fmt.Sprintf("port %d out of range", port))
	}
	return port, nil
}

// Streams are the two directions of one connection.
type Streams struct {
	In  *bufio.Reader
	Out *bufio.Writer

	conn      net.Conn
	closeOnce sync.Once
	closeErr  error
}

// Dial connects to the host on port and returns its streams.
func Dial(ctx context.Context, port int, opts ...Option) (*Streams, error) {
	o := newOptions(opts...)
	log := logging.FromContext(ctx)
	addr := net.JoinHostPort(o.host, strconv.Itoa(port))
	dialer := &net.Dialer{Timeout: o.dialTimeout}

	var conn net.Conn
	var lastErr error
	attempt := 0
	err := wait.ExponentialBackoffWithContext(ctx, o.backoff, func(ctx context.Context) (bool, error) {
		attempt++
		c, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			lastErr = err
			log.Warnw("Failed to connect to host, retrying", "addr", addr, "attempt", attempt, "error", err)
			return false, nil
		}
		conn = c
		return true, nil
	})
	if err != nil {
		if lastErr == nil {
			lastErr = err
		}
		return nil, udferr.Wrap(udferr.Setup, lastErr, fmt.Sprintf("failed to connect to %s", addr))
	}
	log.Infow("Connected to host", "addr", addr)
	return FromConn(conn, opts...), nil
}

// FromConn splits an established connection into streams.
func FromConn(conn net.Conn, opts ...Option) *Streams {
	o := newOptions(opts...)
	return &Streams{
		In:   bufio.NewReaderSize(conn, o.bufferSize),
		Out:  bufio.NewWriterSize(conn, o.bufferSize),
		conn: conn,
	}
}

// Flush writes any buffered output.
func (s *Streams) Flush() error {
	return s.Out.Flush()
}

// Write writes to the buffered output.
func (s *Streams) Write(p []byte) (int, error) {
	return s.Out.Write(p)
}

// Read reads from the buffered input.
func (s *Streams) Read(p []byte) (int, error) {
	return s.In.Read(p)
}

// CloseRead shuts down the input direction only.
func (s *Streams) CloseRead() error {
	if c, ok := s.conn.(interface{ CloseRead() error }); ok {
		return c.CloseRead()
	}
	return nil
}

// CloseWrite flushes and shuts down the output direction only.
func (s *Streams) CloseWrite() error {
	err := s.Out.Flush()
	if c, ok := s.conn.(interface{ CloseWrite() error }); ok {
		err = multierr.Append(err, c.CloseWrite())
	}
	return err
}

// Close flushes pending output and closes the connection. It is safe to call more than once.
func (s *Streams) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = multierr.Combine(s.Out.Flush(), s.conn.Close())
	})
	return s.closeErr
}

// LocalAddr is the worker side address of the connection.
func (s *Streams) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}
