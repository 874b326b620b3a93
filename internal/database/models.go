package database

import "time"

// Outcome is how a reduction request ended.
type Outcome string

const (
	// OutcomePassthrough means the source already fit and was returned unchanged.
	OutcomePassthrough Outcome = "passthrough"
	// OutcomeReencoded means an encoded candidate was accepted.
	OutcomeReencoded Outcome = "reencoded"
	// OutcomeFailed means the request ended with an error.
	OutcomeFailed Outcome = "failed"
)

// Reduction is one row of the reduction history.
type Reduction struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	SourceHash string        `json:"sourceHash"`
	SourceSize int64         `json:"sourceSize"`
	ResultSize int64         `json:"resultSize"`
	MimeType   string        `json:"mimeType,omitempty"`
	Attempts   int           `json:"attempts"`
	Outcome    Outcome       `json:"outcome"`
	ErrorKind  string        `json:"errorKind,omitempty"`
	Duration   time.Duration `json:"-"`
	DurationMs int64         `json:"durationMs"`
	CreatedAt  time.Time     `json:"createdAt"`
}

// ReductionPage is a page of history, newest first.
type ReductionPage struct {
	Items  []Reduction `json:"items"`
	Total  int         `json:"total"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}
