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

package filter

import (
	"context"
	"fmt"

	"github.com/numaproj/udf-worker/pkg/shared/expr"
	"github.com/numaproj/udf-worker/pkg/udf/function"
)

type filter struct {
	program *expr.Program
}

// New returns a function reporting whether each tuple matches the boolean "expression" kwarg.
func New(args map[string]string) (function.Handle, error) {
	expression, existing := args["expression"]
	if !existing {
		return nil, fmt.Errorf("missing \"expression\"")
	}
	program, err := expr.Compile(expression)
	if err != nil {
		return nil, err
	}
	f := filter{program: program}
	return func(ctx context.Context, tuple function.Tuple) (interface{}, error) {
		return f.apply(tuple)
	}, nil
}

func (f filter) apply(tuple function.Tuple) (bool, error) {
	result, err := f.program.Run(tuple.Value, tuple.Payload)
	if err != nil {
		return false, err
	}
	matched, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("unable to cast expression result '%v' to bool", result)
	}
	return matched, nil
}
