package usecase

import "time"

// Clock abstracts wall time so tick advancement and manipulation phase
// transitions can be driven deterministically in tests.
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }
