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

package builtin

import (
	"fmt"
	"sort"
	"sync"

	"github.com/numaproj/udf-worker/pkg/udf/builtin/cat"
	"github.com/numaproj/udf-worker/pkg/udf/builtin/filter"
	"github.com/numaproj/udf-worker/pkg/udf/builtin/mapper"
	"github.com/numaproj/udf-worker/pkg/udf/builtin/numeric"
	"github.com/numaproj/udf-worker/pkg/udf/command"
	"github.com/numaproj/udf-worker/pkg/udf/function"
	"github.com/numaproj/udf-worker/pkg/udf/serde"
)

// Factory builds the function for one session from the descriptor arguments and the
// declared value types of tuples and results.
type Factory func(args []string, kwargs map[string]string, input, output serde.Type) (function.Handle, error)

// Registry is the closed set of functions a worker can run. Both ends of the
// connection agree on names; new functions are compiled into the worker and
// added with Register.
type Registry struct {
	lock      sync.RWMutex
	factories map[string]Factory
}

var _ command.Resolver = (*Registry)(nil)

// NewRegistry returns a registry holding the builtin functions.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.mustRegister("cat", func(_ []string, _ map[string]string, input, output serde.Type) (function.Handle, error) {
		if err := checkResults(output, input); err != nil {
			return nil, err
		}
		return cat.New(), nil
	})
	r.mustRegister("filter", func(_ []string, kwargs map[string]string, _, output serde.Type) (function.Handle, error) {
		if err := checkResults(output, serde.Bool); err != nil {
			return nil, err
		}
		return filter.New(kwargs)
	})
	r.mustRegister("map", func(_ []string, kwargs map[string]string, _, _ serde.Type) (function.Handle, error) {
		return mapper.New(kwargs)
	})
	r.mustRegister("negate", func(_ []string, _ map[string]string, input, output serde.Type) (function.Handle, error) {
		if err := checkResults(output, input); err != nil {
			return nil, err
		}
		return numeric.NewNegate(input)
	})
	r.mustRegister("abs", func(_ []string, _ map[string]string, input, output serde.Type) (function.Handle, error) {
		if err := checkResults(output, input); err != nil {
			return nil, err
		}
		return numeric.NewAbs(input)
	})
	return r
}

// checkResults fails when results of type result cannot be encoded as output, so a
// mismatch is caught before the first tuple.
func checkResults(output, result serde.Type) error {
	if !output.Accepts(result) {
		return fmt.Errorf("results are %s, output type %s cannot hold them", result, output)
	}
	return nil
}

// Register adds a function under name. Names are unique.
func (r *Registry) Register(name string, f Factory) error {
	if name == "" || f == nil {
		return fmt.Errorf("function name and factory are required")
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("function %q is already registered", name)
	}
	r.factories[name] = f
	return nil
}

func (r *Registry) mustRegister(name string, f Factory) {
	if err := r.Register(name, f); err != nil {
		panic(err)
	}
}

// Names lists the registered function names in order.
func (r *Registry) Names() []string {
	r.lock.RLock()
	defer r.lock.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve builds the function named by the descriptor.
func (r *Registry) Resolve(d *command.Descriptor, input, output serde.Type) (function.Handle, error) {
	r.lock.RLock()
	f, ok := r.factories[d.Name]
	r.lock.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unrecognized function %q", d.Name)
	}
	h, err := f(d.Args, d.KWArgs, input, output)
	if err != nil {
		return nil, fmt.Errorf("function %q: %w", d.Name, err)
	}
	return h, nil
}
