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

// Package command decodes the command frame that opens every session.
//
// Executable code never crosses the wire. The host sends a descriptor naming a
// function from a closed registry together with its arguments and the value types of
// tuples and results.
package command

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/numaproj/udf-worker/pkg/udf/function"
	"github.com/numaproj/udf-worker/pkg/udf/serde"
)

// Descriptor is the JSON payload of a command frame.
type Descriptor struct {
	Name       string            `json:"name"`
	Args       []string          `json:"args,omitempty"`
	KWArgs     map[string]string `json:"kwargs,omitempty"`
	InputType  string            `json:"inputType,omitempty"`
	OutputType string            `json:"outputType,omitempty"`
}

// Decode parses a command frame payload.
func Decode(payload []byte) (*Descriptor, error) {
	if len(payload) == 0 {
		return nil, errors.New("empty command payload")
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	d := &Descriptor{}
	if err := dec.Decode(d); err != nil {
		return nil, fmt.Errorf("failed to decode command descriptor: %w", err)
	}
	if d.Name == "" {
		return nil, errors.New("command descriptor has no function name")
	}
	return d, nil
}

// Encode returns the command frame payload for d.
func (d *Descriptor) Encode() ([]byte, error) {
	return json.Marshal(d)
}

// Resolver turns a descriptor into a callable. It rejects functions whose results
// cannot be encoded as output.
type Resolver interface {
	Resolve(d *Descriptor, input, output serde.Type) (function.Handle, error)
}

// Command is a resolved descriptor, owned by one session.
type Command struct {
	Descriptor *Descriptor
	Input      serde.Type
	Output     serde.Type
	handle     function.Handle
}

// New decodes payload and resolves the named function.
func New(payload []byte, r Resolver) (*Command, error) {
	d, err := Decode(payload)
	if err != nil {
		return nil, err
	}
	in, err := serde.ParseType(d.InputType)
	if err != nil {
		return nil, fmt.Errorf("input type: %w", err)
	}
	out, err := serde.ParseType(d.OutputType)
	if err != nil {
		return nil, fmt.Errorf("output type: %w", err)
	}
	h, err := r.Resolve(d, in, out)
	if err != nil {
		return nil, err
	}
	return &Command{Descriptor: d, Input: in, Output: out, handle: h}, nil
}

// CheckWidth validates a session's tuple width against the input type.
func (c *Command) CheckWidth(width int) error {
	if width < 1 {
		return fmt.Errorf("size of tuple should not be less than 1, got %d", width)
	}
	if w := c.Input.Width(); w > 0 && w != width {
		return fmt.Errorf("input type %s needs tuple width %d, got %d", c.Input, w, width)
	}
	return nil
}

// PanicError is a panic raised by a function, recovered with its stack.
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("function panicked: %v", e.Value)
}

// Apply decodes one tuple payload, invokes the function and encodes the result.
func (c *Command) Apply(ctx context.Context, index int64, payload []byte) ([]byte, error) {
	v, err := c.Input.Decode(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode tuple %d: %w", index, err)
	}
	result, err := c.invoke(ctx, function.Tuple{Index: index, Value: v, Payload: payload})
	if err != nil {
		return nil, err
	}
	b, err := c.Output.Encode(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result of tuple %d: %w", index, err)
	}
	return b, nil
}

func (c *Command) invoke(ctx context.Context, t function.Tuple) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return c.handle(ctx, t)
}
