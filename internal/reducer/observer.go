package reducer

// Observer receives reduction events. internal/metrics provides the
// Prometheus implementation; a nil Observer is replaced by a no-op.
type Observer interface {
	// ObserveAttempt is called once per finished attempt.
	ObserveAttempt(plan ReductionPlan, candidateSize uint64, outcome Outcome, durationSeconds float64)

	// ObserveResult is called once per Reduce call.
	ObserveResult(reencoded bool, attempts int, sourceSize, resultSize uint64, err error, durationSeconds float64)
}

type nopObserver struct{}

func (nopObserver) ObserveAttempt(ReductionPlan, uint64, Outcome, float64) {}

func (nopObserver) ObserveResult(bool, int, uint64, uint64, error, float64) {}
