package protocol

import "time"

// Timer is a pending callback scheduled by a Clock.
type Timer interface {
	Stop() bool
}

// Clock is the time source of the client. Tests substitute a manual one.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// RealClock uses the time package.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
