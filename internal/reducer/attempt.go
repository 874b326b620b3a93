package reducer

import (
	"bytes"

	"video-reducer/internal/logging"
)

type release struct {
	name string
	fn   func() error
}

// attempt is the mutable context of one plan-encode-evaluate pass. It owns
// every resource acquired for the pass and releases them in reverse order.
type attempt struct {
	plan     ReductionPlan
	mimeType string
	chunks   [][]byte
	frames   int
	outcome  Outcome
	releases []release
	log      *logging.Logger
}

func newAttempt(plan ReductionPlan, log *logging.Logger) *attempt {
	return &attempt{plan: plan, outcome: OutcomePending, log: log}
}

// own registers a resource to be released when the attempt ends.
func (a *attempt) own(name string, fn func() error) {
	a.releases = append(a.releases, release{name: name, fn: fn})
}

// release frees every owned resource, newest first. It is safe to call more
// than once.
func (a *attempt) release() {
	for i := len(a.releases) - 1; i >= 0; i-- {
		r := a.releases[i]
		if err := r.fn(); err != nil {
			a.log.Warn("failed to release %s: %v", r.name, err)
		}
	}
	a.releases = nil
}

// candidate concatenates the emitted chunks in emission order.
func (a *attempt) candidate() []byte {
	var size int
	for _, c := range a.chunks {
		size += len(c)
	}
	buf := bytes.NewBuffer(make([]byte, 0, size))
	for _, c := range a.chunks {
		buf.Write(c)
	}
	return buf.Bytes()
}
