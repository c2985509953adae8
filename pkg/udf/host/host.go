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

// Package host is the query side of the worker protocol: it listens on a loopback
// port, starts a worker process, hands it the port and drives a session.
package host

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/numaproj/udf-worker/pkg/shared/logging"
	"github.com/numaproj/udf-worker/pkg/udf/command"
	"github.com/numaproj/udf-worker/pkg/udf/connector"
	"github.com/numaproj/udf-worker/pkg/udf/protocol"
	"github.com/numaproj/udf-worker/pkg/udferr"
)

type options struct {
	bufferSize   int
	maxFrameSize int
	env          []string
}

// Option to apply different options
type Option func(*options)

// WithBufferSize sets the stream buffer size of accepted connections.
func WithBufferSize(n int) Option {
	return func(o *options) {
		o.bufferSize = n
	}
}

// WithMaxFrameSize bounds the size of result frames.
func WithMaxFrameSize(n int) Option {
	return func(o *options) {
		o.maxFrameSize = n
	}
}

// WithEnv appends environment variables for launched workers.
func WithEnv(env ...string) Option {
	return func(o *options) {
		o.env = append(o.env, env...)
	}
}

// Host listens for exactly one worker connection per Accept or Launch.
type Host struct {
	ln   *net.TCPListener
	opts *options
}

// Listen opens a listener on an ephemeral loopback port.
func Listen(opts ...Option) (*Host, error) {
	o := &options{
		bufferSize:   connector.DefaultBufferSize,
		maxFrameSize: protocol.DefaultMaxFrameSize,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	ln, err := net.Listen("tcp", net.JoinHostPort(connector.DefaultHost, "0"))
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	return &Host{ln: ln.(*net.TCPListener), opts: o}, nil
}

// Port is the port a worker must connect to.
func (h *Host) Port() int {
	return h.ln.Addr().(*net.TCPAddr).Port
}

// Close stops listening.
func (h *Host) Close() error {
	return h.ln.Close()
}

type acceptResult struct {
	conn net.Conn
	err  error
}

// Accept waits for one worker to connect, until ctx is done.
func (h *Host) Accept(ctx context.Context) (*Worker, error) {
	return h.accept(ctx, nil)
}

func (h *Host) accept(ctx context.Context, p *process) (*Worker, error) {
	var exited <-chan error
	if p != nil {
		exited = p.exited
	}
	ch := make(chan acceptResult, 1)
	go func() {
		c, err := h.ln.Accept()
		ch <- acceptResult{conn: c, err: err}
	}()
	select {
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("failed to accept worker connection: %w", r.err)
		}
		return h.newWorker(r.conn), nil
	case err := <-exited:
		p.done, p.err = true, err
		h.unblockAccept(ch)
		return nil, fmt.Errorf("worker exited before connecting: %v", err)
	case <-ctx.Done():
		h.unblockAccept(ch)
		return nil, fmt.Errorf("failed to accept worker connection: %w", ctx.Err())
	}
}

// unblockAccept expires the pending Accept and discards whatever it returns.
func (h *Host) unblockAccept(ch <-chan acceptResult) {
	_ = h.ln.SetDeadline(time.Now())
	if r := <-ch; r.conn != nil {
		_ = r.conn.Close()
	}
	_ = h.ln.SetDeadline(time.Time{})
}

func (h *Host) newWorker(conn net.Conn) *Worker {
	s := connector.FromConn(conn, connector.WithBufferSize(h.opts.bufferSize))
	return &Worker{
		streams: s,
		reader:  protocol.NewReader(s.In, h.opts.maxFrameSize),
	}
}

// Launch starts the worker binary at path, writes the port to its standard input and
// waits for it to connect. The worker's stdout and stderr are inherited.
func (h *Host) Launch(ctx context.Context, path string, args ...string) (*Worker, error) {
	log := logging.FromContext(ctx)
	cmd := exec.Command(path, args...)
	cmd.Env = append(os.Environ(), h.opts.env...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start worker %q: %w", path, err)
	}
	exited := make(chan error, 1)
	go func() {
		exited <- cmd.Wait()
	}()
	p := &process{cmd: cmd, exited: exited}

	_, err = stdin.Write([]byte(strconv.Itoa(h.Port()) + "\n"))
	err = multierr.Append(err, stdin.Close())
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("failed to send port to worker: %w", err), p.kill())
	}

	w, err := h.accept(ctx, p)
	if err != nil {
		return nil, multierr.Append(err, p.kill())
	}
	log.Infow("Worker connected", zap.Int("pid", cmd.Process.Pid), zap.Int("port", h.Port()))
	w.process = p
	return w, nil
}

type process struct {
	cmd    *exec.Cmd
	exited chan error
	done   bool
	err    error
}

// waitTimeout reports whether the process exited within timeout.
func (p *process) waitTimeout(timeout time.Duration) bool {
	if p.done {
		return true
	}
	select {
	case p.err = <-p.exited:
		p.done = true
		return true
	case <-time.After(timeout):
		return false
	}
}

func (p *process) kill() error {
	if p.done {
		return nil
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	p.err = <-p.exited
	p.done = true
	return nil
}

// Worker is the host side of one session.
type Worker struct {
	streams *connector.Streams
	reader  *protocol.Reader
	process *process
}

// SendCommand writes the command frame and the tuple width.
func (w *Worker) SendCommand(d *command.Descriptor, width int) error {
	payload, err := d.Encode()
	if err != nil {
		return err
	}
	if err := protocol.WriteFrame(w.streams, payload); err != nil {
		return err
	}
	if err := protocol.WriteInt(w.streams, int32(width)); err != nil {
		return err
	}
	return w.streams.Flush()
}

// Apply sends one tuple and waits for its result. An exception reported by the
// worker is returned as a *udferr.RemoteError, after which the session is over.
func (w *Worker) Apply(tuple []byte) ([]byte, error) {
	if err := protocol.WriteFrame(w.streams, tuple); err != nil {
		return nil, err
	}
	if err := w.streams.Flush(); err != nil {
		return nil, fmt.Errorf("failed to flush tuple: %w", err)
	}
	return w.ReadResult()
}

// ReadResult reads the next result frame.
func (w *Worker) ReadResult() ([]byte, error) {
	result, err := w.reader.ReadFrame()
	if err == nil {
		return result, nil
	}
	var se *protocol.SentinelError
	if errors.As(err, &se) && se.Length == protocol.ExceptionThrown {
		trace, terr := w.reader.ReadFrame()
		if terr != nil {
			return nil, fmt.Errorf("failed to read exception trace: %w", terr)
		}
		return nil, &udferr.RemoteError{Trace: string(trace)}
	}
	return nil, fmt.Errorf("failed to read result: %w", err)
}

// Finish ends the input of the session. The worker drains it and ends cleanly.
func (w *Worker) Finish() error {
	return w.streams.CloseWrite()
}

// Close closes the connection and stops the worker process if it is still running.
func (w *Worker) Close() error {
	err := w.streams.Close()
	if w.process != nil {
		if !w.process.waitTimeout(5 * time.Second) {
			err = multierr.Append(err, w.process.kill())
		}
	}
	return err
}

// ExitErr returns the exit status of a launched worker once it has exited.
func (w *Worker) ExitErr() error {
	if w.process == nil || !w.process.done {
		return nil
	}
	return w.process.err
}
