package fn

// Option[T] holds a value or nothing. Lookups that may legitimately find
// nothing return an Option instead of a sentinel error.
type Option[T any] struct {
	val  T
	some bool
}

// Some wraps v.
func Some[T any](v T) Option[T] {
	return Option[T]{val: v, some: true}
}

// None returns the empty Option.
func None[T any]() Option[T] {
	return Option[T]{}
}

// IsSome reports whether a value is present.
func (o Option[T]) IsSome() bool { return o.some }

// IsNone reports whether the Option is empty.
func (o Option[T]) IsNone() bool { return !o.some }

// Get returns the value and whether it was present.
func (o Option[T]) Get() (T, bool) { return o.val, o.some }

// UnwrapOr returns the value or fallback when empty.
func (o Option[T]) UnwrapOr(fallback T) T {
	if !o.some {
		return fallback
	}
	return o.val
}

// First returns the first element of items, if any.
func First[T any](items []T) Option[T] {
	if len(items) == 0 {
		return None[T]()
	}
	return Some(items[0])
}
