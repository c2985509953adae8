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

package expr

import (
	"fmt"

	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"
)

// Program is an expression compiled once and run against many tuples.
type Program struct {
	expression string
	program    *vm.Program
}

// Compile parses the expression once. Identifiers are resolved when the program runs.
func Compile(expression string) (*Program, error) {
	program, err := expr.Compile(expression)
	if err != nil {
		return nil, fmt.Errorf("unable to compile expression '%s': %s", expression, err)
	}
	return &Program{expression: expression, program: program}, nil
}

// Run executes the compiled program for one tuple.
func (p *Program) Run(value interface{}, msg []byte) (interface{}, error) {
	result, err := expr.Run(p.program, Env(value, msg))
	if err != nil {
		return nil, fmt.Errorf("unable to execute expression '%s': %v", p.expression, err)
	}
	return result, nil
}

// String returns the source expression.
func (p *Program) String() string {
	return p.expression
}
