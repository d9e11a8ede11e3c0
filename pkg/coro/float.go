package coro

import (
	"errors"
	"fmt"
	"math"
	"time"

	"golang.org/x/exp/constraints"
)

// Float is the time representation a scheduler is instantiated over.
// Values are logical seconds.
type Float interface {
	constraints.Float
}

// Number is any numeric type WaitUntilZero can compare against zero.
type Number interface {
	constraints.Integer | constraints.Float
}

// ErrNotRepresentable is returned by FromSeconds when a finite number of
// seconds does not fit in the target representation.
var ErrNotRepresentable = errors.New("seconds not representable")

// Now is the "continue at the next tick" suspension value.
func Now[T Float]() T {
	return 0
}

// Undefined is the splice-request suspension value (NaN).
func Undefined[T Float]() T {
	return T(math.NaN())
}

// PollAgain is the "advance again next tick" suspension value (-Inf).
func PollAgain[T Float]() T {
	return T(math.Inf(-1))
}

// Never is a delay that never elapses (+Inf).
func Never[T Float]() T {
	return T(math.Inf(1))
}

// IsUndefined reports whether v requests a splice.
func IsUndefined[T Float](v T) bool {
	return v != v
}

// IsPollAgain reports whether v is the poll-again sentinel.
func IsPollAgain[T Float](v T) bool {
	return math.IsInf(float64(v), -1)
}

// Seconds converts a duration to logical seconds in T.
func Seconds[T Float](d time.Duration) T {
	return T(d.Seconds())
}

// FromSeconds converts s to T, failing when a finite input overflows T.
func FromSeconds[T Float](s float64) (T, error) {
	v := T(s)
	if !math.IsInf(s, 0) && math.IsInf(float64(v), 0) {
		return 0, fmt.Errorf("%g: %w", s, ErrNotRepresentable)
	}
	return v, nil
}
