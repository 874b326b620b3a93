package workers

import (
	"os"
	"runtime"
	"strconv"
)

// EnvOverride names the environment variable that overrides every
// computed worker count.
const EnvOverride = "REDUCE_WORKERS"

// Count returns the number of workers for a given task type.
// It respects container CPU limits via GOMAXPROCS.
//
// The limit parameter caps the worker count; use 0 for no limit.
// Can be overridden with the REDUCE_WORKERS environment variable.
func Count(multiplier float64, limit int) int {
	if override := os.Getenv(EnvOverride); override != "" {
		if count, err := strconv.Atoi(override); err == nil && count > 0 {
			if limit > 0 && count > limit {
				return limit
			}
			return count
		}
	}

	// GOMAXPROCS follows the container CPU limit
	workers := int(float64(runtime.GOMAXPROCS(0)) * multiplier)

	if workers < 1 {
		workers = 1
	}
	if limit > 0 && workers > limit {
		workers = limit
	}

	return workers
}

// ForCPU returns worker count for CPU-bound tasks (1 per CPU).
func ForCPU(limit int) int {
	return Count(1.0, limit)
}

// ForIO returns worker count for I/O-bound tasks (2 per CPU).
func ForIO(limit int) int {
	return Count(2.0, limit)
}

// ForReduction returns how many reductions may run at once. Each reduction
// keeps a decoder and an encoder busy, so it gets half the CPUs.
func ForReduction(limit int) int {
	return Count(0.5, limit)
}
