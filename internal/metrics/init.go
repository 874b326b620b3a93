package metrics

import (
	"video-reducer/internal/reducer"
)

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	// --- Reduction results (per result × error kind) ---
	ReductionsTotal.WithLabelValues("passthrough", "none")
	ReductionsTotal.WithLabelValues("reencoded", "none")
	for _, kind := range reducer.Kinds() {
		ReductionsTotal.WithLabelValues("failed", kind)
	}
	for _, result := range []string{"passthrough", "reencoded", "failed"} {
		ReductionDuration.WithLabelValues(result)
	}

	// --- Encode attempts (per attempt index × outcome) ---
	outcomes := []reducer.Outcome{reducer.OutcomeAccepted, reducer.OutcomeRetryNeeded, reducer.OutcomeFailed}
	for i := 0; i <= maxAttemptLabel; i++ {
		for _, o := range outcomes {
			ReductionAttemptsTotal.WithLabelValues(attemptLabel(i), o.String())
		}
	}

	// --- Filesystem operation metrics (per volume × operation) ---
	volumes := []string{"sources", "work", "database", "unknown"}
	fsOps := []string{"read", "write", "stat"}

	for _, vol := range volumes {
		for _, op := range fsOps {
			FilesystemOperationDuration.WithLabelValues(vol, op)
			FilesystemOperationErrors.WithLabelValues(vol, op)
		}
	}

	// --- Filesystem retry metrics (per retry-operation × volume) ---
	retryOps := []string{"stat", "open", "write"}

	for _, op := range retryOps {
		for _, vol := range volumes {
			FilesystemRetryAttempts.WithLabelValues(op, vol)
			FilesystemRetrySuccess.WithLabelValues(op, vol)
			FilesystemRetryFailures.WithLabelValues(op, vol)
			FilesystemStaleErrors.WithLabelValues(op, vol)
			FilesystemRetryDuration.WithLabelValues(op, vol)
		}
	}

	// --- Uploads ---
	for _, rt := range []string{"image", "video"} {
		UploadsTotal.WithLabelValues(rt, "success")
		UploadsTotal.WithLabelValues(rt, "error")
		UploadDuration.WithLabelValues(rt)
	}

	// --- DB query operations ---
	for _, op := range []string{"initialize_schema", "record_reduction", "list_reductions", "count_reductions", "get_reduction"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}

	for _, file := range []string{"main", "wal", "shm"} {
		DBSizeBytes.WithLabelValues(file)
	}
}
