package reducer

import (
	"math"
	"time"
)

// DefaultCeiling is the maximum size in bytes of a reduced video (10 MiB).
const DefaultCeiling uint64 = 10 * 1024 * 1024

// SourceMedia is the caller-owned video to reduce. Data is never modified.
type SourceMedia struct {
	Name     string
	MimeType string
	Data     []byte
}

// Size returns the source size in bytes.
func (s SourceMedia) Size() uint64 {
	return uint64(len(s.Data))
}

// MediaMetadata is what the probe learns about a source.
type MediaMetadata struct {
	DurationSeconds float64 `json:"durationSeconds"`
	Width           uint32  `json:"width"`
	Height          uint32  `json:"height"`
}

// Valid reports whether the duration is finite and positive and both
// dimensions are non-zero.
func (m MediaMetadata) Valid() bool {
	return validDuration(m.DurationSeconds) && m.Width > 0 && m.Height > 0
}

func validDuration(d float64) bool {
	return d > 0 && !math.IsInf(d, 0) && !math.IsNaN(d)
}

// ReductionPlan holds the encoding parameters of one attempt.
type ReductionPlan struct {
	Attempt               int     `json:"attempt"`
	TargetDurationSeconds float64 `json:"targetDurationSeconds"`
	TargetBitrateBps      uint64  `json:"targetBitrateBps"`
	FrameRate             int     `json:"frameRate"`
}

// TargetDuration returns the target duration as a time.Duration.
func (p ReductionPlan) TargetDuration() time.Duration {
	return time.Duration(p.TargetDurationSeconds * float64(time.Second))
}

// Outcome is the state of a single attempt.
type Outcome int

const (
	// OutcomePending means the attempt is still encoding.
	OutcomePending Outcome = iota
	// OutcomeAccepted means the candidate fits under the ceiling.
	OutcomeAccepted
	// OutcomeRetryNeeded means the candidate is still too large.
	OutcomeRetryNeeded
	// OutcomeFailed means the attempt ended with an error.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeAccepted:
		return "accepted"
	case OutcomeRetryNeeded:
		return "retry_needed"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the accepted output of a reduction request. Once returned it is
// owned by the caller.
type Result struct {
	Data      []byte
	MimeType  string
	Reencoded bool
	Attempts  int
	Plan      ReductionPlan
}

// Size returns the result size in bytes.
func (r *Result) Size() uint64 {
	return uint64(len(r.Data))
}
