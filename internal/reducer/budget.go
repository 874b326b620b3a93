package reducer

import (
	"errors"
	"fmt"
	"math"
)

const (
	// MaxBitrateBps caps the first-pass bitrate regardless of the estimate.
	MaxBitrateBps uint64 = 2_500_000

	// RetryBitrateBps is the fixed bitrate used on every retry.
	RetryBitrateBps uint64 = 1_000_000

	// MinTargetDurationSeconds is the decay ladder floor.
	MinTargetDurationSeconds = 5.0

	// FirstPassFrameRate and RetryFrameRate are the sink frame rates.
	FirstPassFrameRate = 30
	RetryFrameRate     = 24

	// Re-encoding overhead and container metadata make the arithmetic
	// estimate optimistic.
	safetyMargin = 0.9

	firstRetryDecay = 0.8
	retryDecay      = 0.7
)

// PlanAttempt computes the plan for the given attempt index. It is a pure
// function of its arguments.
//
// Attempt 0 estimates the duration that fits the ceiling at the source's
// average byte rate and the bitrate that fills the ceiling over that
// duration. Later attempts use a fixed low bitrate and decay the duration
// geometrically (x0.8 once, then x0.7), failing with ErrSizeTargetUnreachable
// once the duration would drop below MinTargetDurationSeconds.
func PlanAttempt(sourceSize uint64, sourceDuration float64, ceiling uint64, attempt int) (ReductionPlan, error) {
	if !validDuration(sourceDuration) {
		return ReductionPlan{}, fmt.Errorf("%w: invalid duration %v", ErrUnreadableMedia, sourceDuration)
	}
	if ceiling == 0 {
		return ReductionPlan{}, errors.New("ceiling must be positive")
	}
	if attempt < 0 {
		return ReductionPlan{}, fmt.Errorf("invalid attempt index %d", attempt)
	}

	target := firstPassDuration(sourceSize, sourceDuration, ceiling)
	if attempt == 0 {
		bitrate := math.Floor(float64(ceiling) * 8 * safetyMargin / target)
		if bitrate > float64(MaxBitrateBps) {
			bitrate = float64(MaxBitrateBps)
		}
		return ReductionPlan{
			Attempt:               0,
			TargetDurationSeconds: target,
			TargetBitrateBps:      uint64(bitrate),
			FrameRate:             FirstPassFrameRate,
		}, nil
	}

	for i := 1; i <= attempt; i++ {
		target = decay(target, i)
		if target < MinTargetDurationSeconds {
			return ReductionPlan{}, fmt.Errorf("%w: attempt %d would target %.2fs, below the %.0fs floor",
				ErrSizeTargetUnreachable, attempt, target, MinTargetDurationSeconds)
		}
	}

	return ReductionPlan{
		Attempt:               attempt,
		TargetDurationSeconds: target,
		TargetBitrateBps:      RetryBitrateBps,
		FrameRate:             RetryFrameRate,
	}, nil
}

// MaxAttempts returns how many attempts (first pass included) the decay
// ladder allows for a source.
func MaxAttempts(sourceSize uint64, sourceDuration float64, ceiling uint64) int {
	if !validDuration(sourceDuration) || ceiling == 0 {
		return 0
	}
	target := firstPassDuration(sourceSize, sourceDuration, ceiling)
	attempts := 1
	for i := 1; ; i++ {
		target = decay(target, i)
		if target < MinTargetDurationSeconds {
			return attempts
		}
		attempts++
	}
}

func firstPassDuration(sourceSize uint64, sourceDuration float64, ceiling uint64) float64 {
	bytesPerSecond := float64(sourceSize) / sourceDuration
	if bytesPerSecond <= 0 {
		return sourceDuration
	}
	return math.Min(sourceDuration, float64(ceiling)/bytesPerSecond*safetyMargin)
}

func decay(previous float64, retry int) float64 {
	if retry == 1 {
		return previous * firstRetryDecay
	}
	return previous * retryDecay
}
