package timeutil

import (
	"math"
	"math/rand"
	"time"
)

// durationPtr is a helper function to create a pointer to a time.Duration
func DurationPtr(d time.Duration) *time.Duration {
	return &d
}

// MaxDuration returns the largest duration in durations, or 0 if empty.
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

// ComputeJitter returns a uniformly random duration in [0, max).
// max <= 0 returns 0.
func ComputeJitter(max time.Duration, rng rand.Rand) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rng.Int63n(int64(max)))
}

// ExponentialBackoffDelay computes the delay before the given backoff
// attempt count (1-indexed), applying backoffParam's multiplier and cap,
// then adding up to `jitter` of uniformly random extra delay.
func ExponentialBackoffDelay(
	backoffCount int,
	jitter time.Duration,
	rng rand.Rand,
	backoffParam BackoffParam,
) time.Duration {
	if backoffCount < 1 {
		backoffCount = 1
	}

	base := float64(backoffParam.InitialDuration()) * math.Pow(backoffParam.Multiplier(), float64(backoffCount-1))
	delay := time.Duration(base)

	if max := backoffParam.MaxDuration(); max > 0 && delay > max {
		delay = max
	}

	return delay + ComputeJitter(jitter, rng)
}
