// Package result provides a two-variant outcome type for pipelines whose
// expected failures are business outcomes rather than program errors.
package result

// Result holds either a success value or a failure reason, never both.
type Result[T any] struct {
	value  T
	reason error
}

// Success wraps a value.
func Success[T any](value T) Result[T] {
	return Result[T]{value: value}
}

// Failure wraps a reason. A nil reason is not a failure; callers must
// always supply one.
func Failure[T any](reason error) Result[T] {
	if reason == nil {
		panic("result: Failure called with nil reason")
	}
	return Result[T]{reason: reason}
}

// From converts a conventional (value, error) pair.
func From[T any](value T, err error) Result[T] {
	if err != nil {
		return Failure[T](err)
	}
	return Success(value)
}

// Failed reports whether r holds a failure reason.
func (r Result[T]) Failed() bool {
	return r.reason != nil
}

// Value returns the success value, or the zero value for a failure.
func (r Result[T]) Value() T {
	return r.value
}

// Reason returns the failure reason, or nil for a success.
func (r Result[T]) Reason() error {
	return r.reason
}

// Unwrap returns the conventional (value, error) pair.
func (r Result[T]) Unwrap() (T, error) {
	return r.value, r.reason
}

// OrElse returns the success value or the result of f applied to the reason.
func (r Result[T]) OrElse(f func(reason error) T) T {
	if r.reason != nil {
		return f(r.reason)
	}
	return r.value
}

// Map transforms a success value. Failures pass through untouched.
func Map[T, U any](r Result[T], f func(T) U) Result[U] {
	if r.reason != nil {
		return Result[U]{reason: r.reason}
	}
	return Success(f(r.value))
}

// FlatMap chains a fallible step. The first failure short-circuits every
// later step.
func FlatMap[T, U any](r Result[T], f func(T) Result[U]) Result[U] {
	if r.reason != nil {
		return Result[U]{reason: r.reason}
	}
	return f(r.value)
}

// Fold collapses r into a single value.
func Fold[T, U any](r Result[T], onFailure func(error) U, onSuccess func(T) U) U {
	if r.reason != nil {
		return onFailure(r.reason)
	}
	return onSuccess(r.value)
}
