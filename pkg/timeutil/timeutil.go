package timeutil

import (
	"math"
	"math/rand"
	"time"
)

// MaxDuration returns the largest of durations, or 0 when durations is empty.
func MaxDuration(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}
	max := durations[0]
	for _, d := range durations[1:] {
		if d > max {
			max = d
		}
	}
	return max
}

// ComputeJitter returns a random duration in [0, max), or 0 when max is not positive.
func ComputeJitter(max time.Duration, rng rand.Rand) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rng.Int63n(int64(max)))
}

// ExponentialBackoffDelay returns initialDuration * multiplier^(backoffCount-1),
// capped at maxDuration, plus a random jitter in [0, jitter). Counts below 1 count as 1.
func ExponentialBackoffDelay(backoffCount int, jitter time.Duration, rng rand.Rand, backoffParam BackoffParam) time.Duration {
	if backoffCount < 1 {
		backoffCount = 1
	}
	delay := float64(backoffParam.InitialDuration()) * math.Pow(backoffParam.Multiplier(), float64(backoffCount-1))
	if capped := float64(backoffParam.MaxDuration()); delay > capped {
		delay = capped
	}
	return time.Duration(delay) + ComputeJitter(jitter, rng)
}

// DurationPtr is a helper function to create a pointer to a time.Duration
func DurationPtr(d time.Duration) *time.Duration {
	return &d
}

// Sleeper abstracts time.Sleep so callers can be driven deterministically in
// tests without real wall-clock waits.
type Sleeper interface {
	Sleep(d time.Duration)
}

// RealSleeper sleeps using the real system clock.
type RealSleeper struct{}

// NewRealSleeper constructs a Sleeper backed by time.Sleep.
func NewRealSleeper() RealSleeper {
	return RealSleeper{}
}

func (RealSleeper) Sleep(d time.Duration) {
	time.Sleep(d)
}
