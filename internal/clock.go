package internal

import "time"

// Clock abstracts wall-clock time and delayed callbacks.
// AfterFunc returns a stop function with the semantics of time.Timer.Stop.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) (stop func() bool)
}

type realClock struct{}

// RealClock returns a Clock backed by the time package
func RealClock() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}
