package gate

import "time"

// Clock supplies the current time as unix seconds. The gate assumes the
// clock is monotonic non-decreasing; a clock that moves backwards can
// shrink recorded expiries and is not defended against.
type Clock interface {
	Now() uint64
}

type systemClock struct{}

func (systemClock) Now() uint64 {
	return uint64(time.Now().UTC().Unix())
}

func SystemClock() Clock {
	return systemClock{}
}

// ClockFunc adapts a plain function to the Clock interface.
type ClockFunc func() uint64

func (f ClockFunc) Now() uint64 {
	return f()
}
