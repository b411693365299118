package api

import "time"

// Clock supplies order timestamps. The book never reads a clock
// itself; the hosting layer does, and tests substitute a fixed one.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// RealClock returns a Clock backed by the system clock.
func RealClock() Clock { return realClock{} }
