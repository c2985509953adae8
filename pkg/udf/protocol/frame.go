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

// Package protocol implements the framing used between a host process and a udf worker.
//
// Every unit on the wire is a 4 byte big-endian signed length followed by that many
// payload bytes. Negative lengths are reserved sentinels and carry no payload.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// SpecialLength is a reserved, negative frame length signaling a control event.
type SpecialLength int32

const (
	EndOfDataSection SpecialLength = -1
	ExceptionThrown  SpecialLength = -2
	Timing           SpecialLength = -3
	EndOfStream      SpecialLength = -4
	Null             SpecialLength = -5
)

func (s SpecialLength) String() string {
	switch s {
	case EndOfDataSection:
		return "END_OF_DATA_SECTION"
	case ExceptionThrown:
		return "EXCEPTION_THROWN"
	case Timing:
		return "TIMING_DATA"
	case EndOfStream:
		return "END_OF_STREAM"
	case Null:
		return "NULL"
	default:
		return fmt.Sprintf("SpecialLength(%d)", int32(s))
	}
}

// DefaultMaxFrameSize bounds the payload of a single frame.
const DefaultMaxFrameSize = 64 * 1024 * 1024 // 64 MB

const headerSize = 4

// SentinelError is returned by ReadFrame when a sentinel arrives where a payload was expected.
type SentinelError struct {
	Length SpecialLength
}

func (e *SentinelError) Error() string {
	return fmt.Sprintf("unexpected sentinel %s", e.Length)
}

// ErrFrameTooLarge is returned for lengths above the configured maximum.
var ErrFrameTooLarge = errors.New("frame payload too large")

// ReadInt reads one fixed-width, big-endian int32 that is not frame wrapped.
// It returns io.EOF only if no byte was available.
func ReadInt(r io.Reader) (int32, error) {
	var b [headerSize]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b[:])), nil
}

// WriteInt writes one big-endian int32.
func WriteInt(w io.Writer, v int32) error {
	var b [headerSize]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	if _, err := w.Write(b[:]); err != nil {
		return fmt.Errorf("writing int: %w", err)
	}
	return nil
}

// WriteSentinel writes a sentinel length with no payload.
func WriteSentinel(w io.Writer, s SpecialLength) error {
	return WriteInt(w, int32(s))
}

// Reader reads frames from an input stream.
type Reader struct {
	r            io.Reader
	maxFrameSize int
}

// NewReader returns a Reader; maxFrameSize <= 0 means DefaultMaxFrameSize.
func NewReader(r io.Reader, maxFrameSize int) *Reader {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &Reader{r: r, maxFrameSize: maxFrameSize}
}

// ReadInt reads one raw int32 from the underlying stream.
func (fr *Reader) ReadInt() (int32, error) {
	return ReadInt(fr.r)
}

// ReadFrame reads one length-prefixed payload.
//
// A clean end of stream before the header returns io.EOF unwrapped. A stream that ends
// inside a frame returns an error wrapping io.ErrUnexpectedEOF. A negative length
// returns a *SentinelError.
func (fr *Reader) ReadFrame() ([]byte, error) {
	n, err := ReadInt(fr.r)
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("reading frame header: %w", err)
	}
	if n < 0 {
		return nil, &SentinelError{Length: SpecialLength(n)}
	}
	if int(n) > fr.maxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}
	payload := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(fr.r, payload); err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, fmt.Errorf("reading frame payload: %w", err)
		}
	}
	return payload, nil
}

// ReadFrame reads one frame with the default size limit.
func ReadFrame(r io.Reader) ([]byte, error) {
	return NewReader(r, DefaultMaxFrameSize).ReadFrame()
}

// WriteFrame writes one length-prefixed payload. It does not flush.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > DefaultMaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}
	if _, err := w.Write(EncodeFrame(payload)); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

// EncodeFrame returns the wire bytes for payload.
func EncodeFrame(payload []byte) []byte {
	b := make([]byte, headerSize+len(payload))
	binary.BigEndian.PutUint32(b, uint32(len(payload)))
	copy(b[headerSize:], payload)
	return b
}
