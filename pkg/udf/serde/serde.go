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

// Package serde converts tuple payloads into Go values and results back into payloads.
package serde

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

// Type names the value type of a tuple or a result.
type Type string

const (
	Int    Type = "int"    // 4 byte big-endian int32
	Long   Type = "long"   // 8 byte big-endian int64
	Float  Type = "float"  // 4 byte IEEE 754
	Double Type = "double" // 8 byte IEEE 754
	Bool   Type = "bool"   // 1 byte, 0 or 1
	String Type = "string" // UTF-8, any length
	Bytes  Type = "bytes"  // raw, any length
)

// ParseType returns the Type for s; the empty string means Bytes.
func ParseType(s string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(s))); t {
	case "":
		return Bytes, nil
	case Int, Long, Float, Double, Bool, String, Bytes:
		return t, nil
	default:
		return "", fmt.Errorf("unsupported value type %q", s)
	}
}

// Width is the fixed encoded size of t, or 0 if any size is allowed.
func (t Type) Width() int {
	switch t {
	case Int, Float:
		return 4
	case Long, Double:
		return 8
	case Bool:
		return 1
	default:
		return 0
	}
}

// Zero returns a value of the Go type Decode produces for t.
func (t Type) Zero() interface{} {
	switch t {
	case Int, Long:
		return 0
	case Float, Double:
		return float64(0)
	case Bool:
		return false
	case String:
		return ""
	default:
		return []byte{}
	}
}

// Accepts reports whether every value Decode produces for from can be encoded as t,
// integral floats aside.
func (t Type) Accepts(from Type) bool {
	_, err := t.Encode(from.Zero())
	return err == nil
}

// Decode converts one payload into a Go value: int, float64, bool, string or []byte.
func (t Type) Decode(b []byte) (interface{}, error) {
	if w := t.Width(); w > 0 && len(b) != w {
		return nil, fmt.Errorf("%s value needs %d bytes, got %d", t, w, len(b))
	}
	switch t {
	case Int:
		return int(int32(binary.BigEndian.Uint32(b))), nil
	case Long:
		return int(int64(binary.BigEndian.Uint64(b))), nil
	case Float:
		return float64(math.Float32frombits(binary.BigEndian.Uint32(b))), nil
	case Double:
		return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
	case Bool:
		switch b[0] {
		case 0:
			return false, nil
		case 1:
			return true, nil
		default:
			return nil, fmt.Errorf("invalid bool byte 0x%02x", b[0])
		}
	case String:
		if !utf8.Valid(b) {
			return nil, fmt.Errorf("string value is not valid UTF-8")
		}
		return string(b), nil
	case Bytes:
		out := make([]byte, len(b))
		copy(out, b)
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value type %q", t)
	}
}

// Encode converts a value returned by a command into a payload of type t.
func (t Type) Encode(v interface{}) ([]byte, error) {
	switch t {
	case Int:
		i, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		if i < math.MinInt32 || i > math.MaxInt32 {
			return nil, fmt.Errorf("value %d overflows int", i)
		}
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, uint32(int32(i)))
		return b, nil
	case Long:
		i, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, uint64(i))
		return b, nil
	case Float:
		f, err := toFloat64(v)
		if err != nil {
			return nil, err
		}
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, math.Float32bits(float32(f)))
		return b, nil
	case Double:
		f, err := toFloat64(v)
		if err != nil {
			return nil, err
		}
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, math.Float64bits(f))
		return b, nil
	case Bool:
		bv, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("cannot encode %T as bool", v)
		}
		if bv {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case String:
		switch w := v.(type) {
		case string:
			return []byte(w), nil
		case []byte:
			return w, nil
		case fmt.Stringer:
			return []byte(w.String()), nil
		default:
			return []byte(fmt.Sprintf("%v", v)), nil
		}
	case Bytes:
		switch w := v.(type) {
		case nil:
			return []byte{}, nil
		case []byte:
			return w, nil
		case string:
			return []byte(w), nil
		default:
			return nil, fmt.Errorf("cannot encode %T as bytes", v)
		}
	default:
		return nil, fmt.Errorf("unsupported value type %q", t)
	}
}

func toInt64(v interface{}) (int64, error) {
	switch w := v.(type) {
	case int:
		return int64(w), nil
	case int8:
		return int64(w), nil
	case int16:
		return int64(w), nil
	case int32:
		return int64(w), nil
	case int64:
		return w, nil
	case uint:
		if uint64(w) > math.MaxInt64 {
			return 0, fmt.Errorf("value %d overflows long", w)
		}
		return int64(w), nil
	case uint8:
		return int64(w), nil
	case uint16:
		return int64(w), nil
	case uint32:
		return int64(w), nil
	case uint64:
		if w > math.MaxInt64 {
			return 0, fmt.Errorf("value %d overflows long", w)
		}
		return int64(w), nil
	case float32:
		return floatToInt64(float64(w))
	case float64:
		return floatToInt64(w)
	default:
		return 0, fmt.Errorf("cannot encode %T as an integer", v)
	}
}

func floatToInt64(f float64) (int64, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("value %v is not an integer", f)
	}
	return int64(f), nil
}

func toFloat64(v interface{}) (float64, error) {
	switch w := v.(type) {
	case float64:
		return w, nil
	case float32:
		return float64(w), nil
	default:
		i, err := toInt64(v)
		if err != nil {
			return 0, fmt.Errorf("cannot encode %T as a float", v)
		}
		return float64(i), nil
	}
}
