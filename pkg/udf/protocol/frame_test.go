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

package protocol

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadFrame(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte("hello")))
	require.NoError(t, WriteFrame(&buf, []byte{}))
	assert.Equal(t, []byte{0, 0, 0, 5, 'h', 'e', 'l', 'l', 'o', 0, 0, 0, 0}, buf.Bytes())

	r := NewReader(&buf, 0)
	p, err := r.ReadFrame()
	assert.NoError(t, err)
	assert.Equal(t, []byte("hello"), p)
	p, err = r.ReadFrame()
	assert.NoError(t, err)
	assert.Empty(t, p)
	_, err = r.ReadFrame()
	assert.Equal(t, io.EOF, err)
}

func TestEncodeFrame_Idempotent(t *testing.T) {
	for _, payload := range [][]byte{{}, {0x01}, []byte("some tuple payload"), bytes.Repeat([]byte{0xff}, 1024)} {
		wire := EncodeFrame(payload)
		decoded, err := ReadFrame(bytes.NewReader(wire))
		require.NoError(t, err)
		assert.Equal(t, wire, EncodeFrame(decoded))
	}
}

func TestReadFrame_Truncated(t *testing.T) {
	t.Run("partial header", func(t *testing.T) {
		_, err := ReadFrame(bytes.NewReader([]byte{0, 0}))
		assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	})

	t.Run("partial payload", func(t *testing.T) {
		_, err := ReadFrame(bytes.NewReader([]byte{0, 0, 0, 4, 1, 2}))
		assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	})

	t.Run("missing payload", func(t *testing.T) {
		_, err := ReadFrame(bytes.NewReader([]byte{0, 0, 0, 4}))
		assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	})
}

func TestReadFrame_Sentinel(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSentinel(&buf, EndOfStream))
	_, err := ReadFrame(&buf)
	var se *SentinelError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, EndOfStream, se.Length)
	assert.Contains(t, err.Error(), "END_OF_STREAM")
}

func TestReadFrame_TooLarge(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteInt(&buf, 17))
	_, err := NewReader(&buf, 16).ReadFrame()
	assert.True(t, errors.Is(err, ErrFrameTooLarge))
}

func TestReadWriteInt(t *testing.T) {
	var buf bytes.Buffer
	for _, v := range []int32{0, 1, 4, -1, 1 << 30, -1 << 31} {
		require.NoError(t, WriteInt(&buf, v))
	}
	r := NewReader(&buf, 0)
	for _, want := range []int32{0, 1, 4, -1, 1 << 30, -1 << 31} {
		got, err := r.ReadInt()
		assert.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := r.ReadInt()
	assert.Equal(t, io.EOF, err)
}

func TestSpecialLength(t *testing.T) {
	all := []SpecialLength{EndOfDataSection, ExceptionThrown, Timing, EndOfStream, Null}
	seen := map[SpecialLength]bool{}
	for _, s := range all {
		assert.Less(t, int32(s), int32(0))
		assert.False(t, seen[s])
		seen[s] = true
	}
	assert.Equal(t, "EXCEPTION_THROWN", ExceptionThrown.String())
	assert.Equal(t, "SpecialLength(-9)", SpecialLength(-9).String())
}
