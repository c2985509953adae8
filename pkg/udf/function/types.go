// Package function defines the shape of a function applied to every tuple of a session.
package function

import "context"

// Tuple is one decoded input of a session. It lives for a single loop iteration.
type Tuple struct {
	// Index is the zero based position of the tuple in its session.
	Index int64
	// Value is the payload decoded by the command's input type.
	Value interface{}
	// Payload is the raw frame payload.
	Payload []byte
}

// Handle applies a command to one tuple and returns the value to send back.
type Handle func(ctx context.Context, tuple Tuple) (interface{}, error)
