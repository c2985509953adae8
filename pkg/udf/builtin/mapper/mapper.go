package mapper

import (
	"context"
	"fmt"

	"github.com/numaproj/udf-worker/pkg/shared/expr"
	"github.com/numaproj/udf-worker/pkg/udf/function"
)

// New returns a function that evaluates the "expression" kwarg for every tuple and
// sends back its result. The expression is compiled once per session.
func New(args map[string]string) (function.Handle, error) {
	expression, existing := args["expression"]
	if !existing {
		return nil, fmt.Errorf("missing \"expression\"")
	}
	program, err := expr.Compile(expression)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, tuple function.Tuple) (interface{}, error) {
		return program.Run(tuple.Value, tuple.Payload)
	}, nil
}
