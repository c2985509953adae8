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

/*
Package worker serves one udf session over a pair of streams.

A session reads a command frame and a tuple width, then answers every tuple frame
with exactly one result frame, flushed before the next tuple is read. It ends when
the input is exhausted, or after the first failure has been reported to the host
with an exception frame.
*/
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/numaproj/udf-worker/pkg/metrics"
	"github.com/numaproj/udf-worker/pkg/shared/logging"
	"github.com/numaproj/udf-worker/pkg/udf/command"
	"github.com/numaproj/udf-worker/pkg/udf/connector"
	"github.com/numaproj/udf-worker/pkg/udf/protocol"
	"github.com/numaproj/udf-worker/pkg/udferr"
)

// State is the position of a session in its lifecycle.
type State int

const (
	AwaitCommand State = iota
	AwaitWidth
	ServingLoop
	Clean
	Failed
)

func (s State) String() string {
	switch s {
	case AwaitCommand:
		return "AwaitCommand"
	case AwaitWidth:
		return "AwaitWidth"
	case ServingLoop:
		return "ServingLoop"
	case Clean:
		return "Terminated(Clean)"
	case Failed:
		return "Terminated(Failed)"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Writer is a buffered output stream.
type Writer interface {
	io.Writer
	Flush() error
}

const unknownFunction = "unknown"

// Handler owns one session. It is not safe for concurrent use and serves once.
type Handler struct {
	resolver     command.Resolver
	maxFrameSize int
	sessionID    string
	state        State
	processed    int64
}

// Option to apply different options
type Option func(*Handler)

// WithMaxFrameSize bounds the size of incoming frames.
func WithMaxFrameSize(n int) Option {
	return func(h *Handler) {
		h.maxFrameSize = n
	}
}

// WithSessionID overrides the generated session id used in logs.
func WithSessionID(id string) Option {
	return func(h *Handler) {
		h.sessionID = id
	}
}

// New returns a Handler resolving commands with resolver.
func New(resolver command.Resolver, opts ...Option) *Handler {
	h := &Handler{
		resolver:     resolver,
		maxFrameSize: protocol.DefaultMaxFrameSize,
		sessionID:    uuid.NewString(),
		state:        AwaitCommand,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// State returns the current state of the session.
func (h *Handler) State() State {
	return h.state
}

// Processed returns the number of result frames written.
func (h *Handler) Processed() int64 {
	return h.processed
}

// ServeStreams serves a session on s and closes s when the session ends.
func (h *Handler) ServeStreams(ctx context.Context, s *connector.Streams) error {
	err := h.Serve(ctx, s.In, s.Out)
	if cerr := s.Close(); cerr != nil {
		logging.FromContext(ctx).Warnw("Failed to close connection", zap.String("session", h.sessionID), zap.Error(cerr))
		if err == nil {
			err = cerr
		}
	}
	return err
}

// Serve runs the session until in is exhausted or a failure happens. It returns nil
// after a clean end, and the error that was reported to the host otherwise.
func (h *Handler) Serve(ctx context.Context, in io.Reader, out Writer) error {
	if h.state != AwaitCommand {
		return fmt.Errorf("session %s already served, state %s", h.sessionID, h.state)
	}
	log := logging.FromContext(ctx).With(zap.String("session", h.sessionID))
	ctx = logging.WithLogger(ctx, log)
	r := protocol.NewReader(in, h.maxFrameSize)

	cmd, uerr := h.readCommand(r)
	if uerr != nil {
		return h.fail(ctx, out, unknownFunction, uerr)
	}
	fn := cmd.Descriptor.Name

	h.state = AwaitWidth
	width, uerr := h.readWidth(r, cmd)
	if uerr != nil {
		return h.fail(ctx, out, fn, uerr)
	}
	log.Infow("Session started", zap.String("function", fn), zap.Int("tupleWidth", width),
		zap.String("inputType", string(cmd.Input)), zap.String("outputType", string(cmd.Output)))

	h.state = ServingLoop
	for {
		if ctx.Err() != nil {
			log.Infow("Session cancelled", zap.Int64("processed", h.processed))
			return h.finish(fn)
		}
		payload, err := r.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				log.Infow("Input exhausted, session finished", zap.Int64("processed", h.processed))
				return h.finish(fn)
			}
			if ctx.Err() != nil {
				log.Infow("Session cancelled while reading", zap.Int64("processed", h.processed), zap.Error(err))
				return h.finish(fn)
			}
			return h.fail(ctx, out, fn, udferr.Wrap(udferr.Protocol, err, fmt.Sprintf("failed to read tuple %d", h.processed)))
		}
		if len(payload) != width {
			return h.fail(ctx, out, fn, udferr.New(udferr.Protocol,
				fmt.Sprintf("tuple %d has %d bytes, tuple width is %d", h.processed, len(payload), width)))
		}
		metrics.ReadBytesCount.WithLabelValues(fn).Add(float64(len(payload)))

		start := time.Now()
		result, err := cmd.Apply(ctx, h.processed, payload)
		if err != nil {
			return h.fail(ctx, out, fn, executionError(h.processed, err))
		}
		if err := protocol.WriteFrame(out, result); err != nil {
			return h.fail(ctx, out, fn, udferr.Wrap(udferr.Protocol, err, fmt.Sprintf("failed to write result %d", h.processed)))
		}
		if err := out.Flush(); err != nil {
			return h.fail(ctx, out, fn, udferr.Wrap(udferr.Protocol, err, fmt.Sprintf("failed to flush result %d", h.processed)))
		}
		h.processed++
		metrics.TuplesCount.WithLabelValues(fn).Inc()
		metrics.WriteBytesCount.WithLabelValues(fn).Add(float64(len(result)))
		metrics.TupleProcessingTime.WithLabelValues(fn).Observe(float64(time.Since(start).Microseconds()))
	}
}

func (h *Handler) readCommand(r *protocol.Reader) (*command.Command, *udferr.UDFError) {
	payload, err := r.ReadFrame()
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, udferr.Wrap(udferr.Setup, err, "failed to read command")
	}
	cmd, err := command.New(payload, h.resolver)
	if err != nil {
		return nil, udferr.Wrap(udferr.Setup, err, "failed to load command")
	}
	return cmd, nil
}

func (h *Handler) readWidth(r *protocol.Reader, cmd *command.Command) (int, *udferr.UDFError) {
	width, err := r.ReadInt()
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return 0, udferr.Wrap(udferr.Setup, err, "failed to read tuple width")
	}
	if err := cmd.CheckWidth(int(width)); err != nil {
		return 0, udferr.Wrap(udferr.Setup, err, "invalid tuple width")
	}
	return int(width), nil
}

func executionError(index int64, err error) *udferr.UDFError {
	ue := udferr.Wrap(udferr.Execution, err, fmt.Sprintf("tuple %d", index))
	var pe *command.PanicError
	if errors.As(err, &pe) {
		ue = ue.WithTrace(string(pe.Stack))
	}
	return ue
}

func (h *Handler) finish(fn string) error {
	h.state = Clean
	metrics.SessionsCount.WithLabelValues(fn, "clean").Inc()
	return nil
}

// fail reports uerr to the host and ends the session. A failure to report is only
// logged, and returned alongside uerr.
func (h *Handler) fail(ctx context.Context, out Writer, fn string, uerr *udferr.UDFError) error {
	log := logging.FromContext(ctx)
	h.state = Failed
	metrics.SessionsCount.WithLabelValues(fn, "failed").Inc()
	metrics.SessionErrorsCount.WithLabelValues(fn, uerr.ErrorKind().String()).Inc()

	trace := uerr.Trace()
	log.Errorw("Session failed", zap.String("function", fn), zap.Int64("processed", h.processed), zap.Error(uerr))
	if err := writeException(out, trace); err != nil {
		log.Errorw("Failed to report exception to host", zap.Error(err), zap.String("trace", trace))
		return multierr.Append(uerr, udferr.Wrap(udferr.Reporting, err, "failed to report exception"))
	}
	return uerr
}

func writeException(out Writer, trace string) error {
	if err := protocol.WriteSentinel(out, protocol.ExceptionThrown); err != nil {
		return err
	}
	if err := protocol.WriteFrame(out, []byte(trace)); err != nil {
		return err
	}
	return out.Flush()
}
