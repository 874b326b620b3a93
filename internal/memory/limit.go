package memory

import (
	"math"
	"os"
	"runtime/debug"
	"strconv"
	"strings"

	"video-reducer/internal/logging"
	"video-reducer/internal/metrics"
)

// DefaultMemoryRatio is the share of the container limit given to the Go
// heap. The rest is left for the FFmpeg children, which decode and encode
// outside the Go heap.
const DefaultMemoryRatio = 0.6

// cgroupMemoryMax is the cgroup v2 limit file.
var cgroupMemoryMax = "/sys/fs/cgroup/memory.max"

// Limit describes how GOMEMLIMIT was configured.
type Limit struct {
	// Source is "GOMEMLIMIT", "MEMORY_LIMIT", "cgroup" or "none".
	Source string
	// ContainerLimit is the container memory limit in bytes (0 if unknown).
	ContainerLimit int64
	// GoMemLimit is the resulting soft limit in bytes (0 if none).
	GoMemLimit int64
	// Ratio is the share of ContainerLimit used (0 if not applicable).
	Ratio float64
}

// Configured reports whether a soft memory limit is in effect.
func (l Limit) Configured() bool {
	return l.GoMemLimit > 0
}

// ConfigureLimit sets the Go soft memory limit from the environment. Call it
// early in main, before sources are buffered.
//
// An explicit GOMEMLIMIT wins. Otherwise MEMORY_LIMIT (bytes, usually from
// the Kubernetes Downward API) or the cgroup v2 limit is scaled by
// MEMORY_RATIO (default DefaultMemoryRatio).
func ConfigureLimit() Limit {
	if env := os.Getenv("GOMEMLIMIT"); env != "" {
		l := Limit{Source: "GOMEMLIMIT"}
		if current := debug.SetMemoryLimit(-1); current > 0 && current < math.MaxInt64 {
			l.GoMemLimit = current
		}
		logging.Info("GOMEMLIMIT set via environment: %s", env)
		metrics.GoMemLimitBytes.Set(float64(l.GoMemLimit))
		return l
	}

	containerLimit, source := containerLimit()
	if containerLimit <= 0 {
		logging.Debug("No container memory limit found, GOMEMLIMIT not configured")
		return Limit{Source: "none"}
	}

	ratio := ratioFromEnv()
	goMemLimit := int64(float64(containerLimit) * ratio)
	debug.SetMemoryLimit(goMemLimit)
	metrics.GoMemLimitBytes.Set(float64(goMemLimit))

	logging.Info("Configured GOMEMLIMIT: %s (%.0f%% of %s %s limit)",
		formatBytes(goMemLimit), ratio*100, formatBytes(containerLimit), source)

	return Limit{
		Source:         source,
		ContainerLimit: containerLimit,
		GoMemLimit:     goMemLimit,
		Ratio:          ratio,
	}
}

func containerLimit() (int64, string) {
	if s := os.Getenv("MEMORY_LIMIT"); s != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil || n <= 0 {
			logging.Warn("Ignoring invalid MEMORY_LIMIT %q", s)
			return 0, ""
		}
		return n, "MEMORY_LIMIT"
	}

	data, err := os.ReadFile(cgroupMemoryMax)
	if err != nil {
		return 0, ""
	}
	s := strings.TrimSpace(string(data))
	if s == "max" {
		return 0, ""
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, ""
	}
	return n, "cgroup"
}

func ratioFromEnv() float64 {
	s := os.Getenv("MEMORY_RATIO")
	if s == "" {
		return DefaultMemoryRatio
	}
	r, err := strconv.ParseFloat(s, 64)
	if err != nil || r <= 0 || r > 1 {
		logging.Warn("MEMORY_RATIO %q out of range (0.0-1.0), using default %.2f", s, DefaultMemoryRatio)
		return DefaultMemoryRatio
	}
	return r
}

// formatBytes formats bytes into human-readable string
func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return strconv.FormatInt(b, 10) + " B"
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return strconv.FormatFloat(float64(b)/float64(div), 'f', 1, 64) + " " + string("KMGTPE"[exp]) + "iB"
}
