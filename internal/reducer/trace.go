package reducer

import "context"

// Trace holds optional hooks called during a single Reduce call. Any field
// may be nil. Hooks run on the goroutine calling Reduce and must not block.
type Trace struct {
	// Probed is called after metadata was read successfully.
	Probed func(meta MediaMetadata)

	// AttemptStarted is called before an attempt acquires any resource.
	AttemptStarted func(plan ReductionPlan)

	// AttemptDone is called when an attempt finishes. candidateSize is zero
	// when the attempt failed.
	AttemptDone func(plan ReductionPlan, candidateSize uint64, outcome Outcome)
}

type traceKey struct{}

// WithTrace returns a context that makes Reduce report progress to t.
func WithTrace(ctx context.Context, t *Trace) context.Context {
	return context.WithValue(ctx, traceKey{}, t)
}

// ContextTrace returns the Trace attached to ctx, or nil.
func ContextTrace(ctx context.Context) *Trace {
	t, _ := ctx.Value(traceKey{}).(*Trace)
	return t
}

func (t *Trace) probed(meta MediaMetadata) {
	if t != nil && t.Probed != nil {
		t.Probed(meta)
	}
}

func (t *Trace) attemptStarted(plan ReductionPlan) {
	if t != nil && t.AttemptStarted != nil {
		t.AttemptStarted(plan)
	}
}

func (t *Trace) attemptDone(plan ReductionPlan, candidateSize uint64, outcome Outcome) {
	if t != nil && t.AttemptDone != nil {
		t.AttemptDone(plan, candidateSize, outcome)
	}
}
