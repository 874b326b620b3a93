package metrics

import (
	"strconv"

	"video-reducer/internal/filesystem"
	"video-reducer/internal/reducer"
)

// filesystemObserver implements filesystem.Observer using the Prometheus
// metrics declared in this package.
type filesystemObserver struct{}

// NewFilesystemObserver creates an observer that records filesystem metrics
// into the Prometheus counters and histograms declared in metrics.go.
func NewFilesystemObserver() filesystem.Observer {
	return &filesystemObserver{}
}

func (o *filesystemObserver) ObserveOperation(volume, operation string, durationSeconds float64, err error) {
	FilesystemOperationDuration.WithLabelValues(volume, operation).Observe(durationSeconds)
	if err != nil {
		FilesystemOperationErrors.WithLabelValues(volume, operation).Inc()
	}
}

func (o *filesystemObserver) ObserveRetryAttempt(retryOp, volume string) {
	FilesystemRetryAttempts.WithLabelValues(retryOp, volume).Inc()
}

func (o *filesystemObserver) ObserveRetrySuccess(retryOp, volume string) {
	FilesystemRetrySuccess.WithLabelValues(retryOp, volume).Inc()
}

func (o *filesystemObserver) ObserveRetryFailure(retryOp, volume string) {
	FilesystemRetryFailures.WithLabelValues(retryOp, volume).Inc()
}

func (o *filesystemObserver) ObserveRetryDuration(retryOp, volume string, durationSeconds float64) {
	FilesystemRetryDuration.WithLabelValues(retryOp, volume).Observe(durationSeconds)
}

func (o *filesystemObserver) ObserveStaleError(retryOp, volume string) {
	FilesystemStaleErrors.WithLabelValues(retryOp, volume).Inc()
}

// reducerObserver implements reducer.Observer.
type reducerObserver struct{}

// NewReducerObserver creates an observer that records reduction attempts and
// results.
func NewReducerObserver() reducer.Observer {
	return &reducerObserver{}
}

func (o *reducerObserver) ObserveAttempt(plan reducer.ReductionPlan, candidateSize uint64, outcome reducer.Outcome, durationSeconds float64) {
	ReductionAttemptsTotal.WithLabelValues(attemptLabel(plan.Attempt), outcome.String()).Inc()
	ReductionAttemptDuration.Observe(durationSeconds)
	ReductionTargetBitrate.Observe(float64(plan.TargetBitrateBps))
	if candidateSize > 0 {
		ReductionCandidateBytes.Observe(float64(candidateSize))
	}
}

func (o *reducerObserver) ObserveResult(reencoded bool, attempts int, sourceSize, _ uint64, err error, durationSeconds float64) {
	result := ResultLabel(reencoded, err)
	ReductionsTotal.WithLabelValues(result, reducer.Kind(err)).Inc()
	ReductionDuration.WithLabelValues(result).Observe(durationSeconds)
	ReductionSourceBytes.Observe(float64(sourceSize))
	if attempts > 0 {
		ReductionAttemptsPerRequest.Observe(float64(attempts))
	}
}

// ResultLabel classifies a finished reduction.
func ResultLabel(reencoded bool, err error) string {
	switch {
	case err != nil:
		return "failed"
	case reencoded:
		return "reencoded"
	default:
		return "passthrough"
	}
}

// attemptLabel caps the attempt label so its cardinality stays bounded.
func attemptLabel(attempt int) string {
	if attempt >= maxAttemptLabel {
		return strconv.Itoa(maxAttemptLabel) + "+"
	}
	return strconv.Itoa(attempt)
}

const maxAttemptLabel = 5
