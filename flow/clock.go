package flow

import "time"

// Clock abstracts wall-clock time so the flow's timers can be driven by a
// fake clock in tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

// Timer is a single-shot timer armed through a Clock.
type Timer interface {
	// Stop disarms the timer. It reports whether the timer was stopped
	// before firing.
	Stop() bool
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// SystemClock is the real-time clock used outside of tests.
var SystemClock Clock = systemClock{}
