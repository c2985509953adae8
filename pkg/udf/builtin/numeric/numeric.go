// Package numeric holds argument free arithmetic functions over int, long, float and double tuples.
package numeric

import (
	"context"
	"fmt"

	"github.com/numaproj/udf-worker/pkg/udf/function"
	"github.com/numaproj/udf-worker/pkg/udf/serde"
)

// NewNegate returns a function that negates each tuple.
func NewNegate(input serde.Type) (function.Handle, error) {
	return unary(input, func(i int) int { return -i }, func(f float64) float64 { return -f })
}

// NewAbs returns a function that takes the absolute value of each tuple.
func NewAbs(input serde.Type) (function.Handle, error) {
	return unary(input,
		func(i int) int {
			if i < 0 {
				return -i
			}
			return i
		},
		func(f float64) float64 {
			if f < 0 {
				return -f
			}
			return f
		})
}

func unary(input serde.Type, onInt func(int) int, onFloat func(float64) float64) (function.Handle, error) {
	switch input {
	case serde.Int, serde.Long, serde.Float, serde.Double:
	default:
		return nil, fmt.Errorf("numeric function needs a numeric input type, got %s", input)
	}
	return func(ctx context.Context, tuple function.Tuple) (interface{}, error) {
		switch v := tuple.Value.(type) {
		case int:
			return onInt(v), nil
		case float64:
			return onFloat(v), nil
		default:
			return nil, fmt.Errorf("tuple %d: %T is not numeric", tuple.Index, tuple.Value)
		}
	}, nil
}
