package command

import (
	"fmt"
	"log/slog"
)

// Result is the boundary form of a command outcome, shared by the UI and
// the tool executor: {ok: true, value} or {ok: false, error}.
type Result[T any] struct {
	OK    bool      `json:"ok"`
	Value T         `json:"value,omitempty"`
	Error string    `json:"error,omitempty"`
	Code  ErrorCode `json:"code,omitempty"`
}

// Wrap converts a (value, error) pair into a Result.
func Wrap[T any](v T, err error) Result[T] {
	if err != nil {
		var zero T
		return Result[T]{Value: zero, Error: err.Error(), Code: Code(err)}
	}
	return Result[T]{OK: true, Value: v}
}

// Run calls fn and converts its outcome, including a panic, into a Result.
// Nothing escapes: a panic becomes an INTERNAL failure.
func Run[T any](logger *slog.Logger, fn func() (T, error)) (res Result[T]) {
	defer func() {
		if r := recover(); r != nil {
			if logger != nil {
				logger.Error("command panicked", "panic", r)
			}
			res = Result[T]{Error: fmt.Sprintf("internal error: %v", r), Code: CodeInternal}
		}
	}()
	v, err := fn()
	return Wrap(v, err)
}
