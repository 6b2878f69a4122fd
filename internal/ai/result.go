package ai

// Result is the outcome of a best-effort model call. When Fallback is set,
// Value holds the safe default and Err the cause (for logging only).
type Result[T any] struct {
	Value    T
	Fallback bool
	Err      error
}

// Ok wraps a successful model answer.
func Ok[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

// FallbackOf wraps the default payload returned after a failed call.
func FallbackOf[T any](v T, err error) Result[T] {
	return Result[T]{Value: v, Fallback: true, Err: err}
}
