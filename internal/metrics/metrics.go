package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "video_reducer_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "video_reducer_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.005, 0.05, 0.25, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "video_reducer_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "video_reducer_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "video_reducer_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBSizeBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "video_reducer_db_size_bytes",
			Help: "Size of SQLite database files in bytes",
		},
		[]string{"file"}, // "main", "wal", "shm"
	)

	ReductionHistoryRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "video_reducer_history_records",
			Help: "Number of reductions recorded in the history table",
		},
	)
)

// Reducer metrics
var (
	ReductionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "video_reducer_reductions_total",
			Help: "Total number of reduction requests by result and error kind",
		},
		[]string{"result", "error_kind"}, // result: "passthrough", "reencoded", "failed"
	)

	ReductionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "video_reducer_reduction_duration_seconds",
			Help:    "Wall-clock duration of reduction requests in seconds",
			Buckets: []float64{0.01, 1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"result"},
	)

	ReductionAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "video_reducer_attempts_total",
			Help: "Total number of encode attempts by attempt index and outcome",
		},
		[]string{"attempt", "outcome"},
	)

	ReductionAttemptDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "video_reducer_attempt_duration_seconds",
			Help:    "Duration of a single encode attempt in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		},
	)

	ReductionAttemptsPerRequest = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "video_reducer_attempts_per_request",
			Help:    "Number of encode attempts needed per re-encoded request",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 8},
		},
	)

	ReductionSourceBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "video_reducer_source_bytes",
			Help:    "Size of submitted sources in bytes",
			Buckets: prometheus.ExponentialBuckets(1<<20, 2, 10), // 1 MiB .. 512 MiB
		},
	)

	ReductionCandidateBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "video_reducer_candidate_bytes",
			Help:    "Size of encoded candidates in bytes",
			Buckets: prometheus.ExponentialBuckets(256<<10, 2, 10), // 256 KiB .. 128 MiB
		},
	)

	ReductionTargetBitrate = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "video_reducer_target_bitrate_bps",
			Help:    "Target bitrate chosen by the budget calculator",
			Buckets: []float64{250_000, 500_000, 1_000_000, 1_500_000, 2_000_000, 2_500_000},
		},
	)

	ReductionsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "video_reducer_reductions_in_progress",
			Help: "Number of reduction requests currently being processed",
		},
	)
)

// Transcoder metrics
var (
	FFmpegProcessesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "video_reducer_ffmpeg_processes_active",
			Help: "Number of FFmpeg and ffprobe child processes currently running",
		},
	)
)

// Upload metrics
var (
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "video_reducer_uploads_total",
			Help: "Total number of media host uploads",
		},
		[]string{"resource_type", "status"},
	)

	UploadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "video_reducer_upload_duration_seconds",
			Help:    "Media host upload duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"resource_type"},
	)
)

// Filesystem metrics
var (
	FilesystemOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "video_reducer_filesystem_operation_duration_seconds",
			Help:    "Filesystem operation duration in seconds by volume and operation",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"volume", "operation"},
	)

	FilesystemOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "video_reducer_filesystem_operation_errors_total",
			Help: "Total number of failed filesystem operations by volume and operation",
		},
		[]string{"volume", "operation"},
	)

	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "video_reducer_filesystem_retry_attempts_total",
			Help: "Total number of filesystem operation retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "video_reducer_filesystem_retry_success_total",
			Help: "Total number of filesystem operations that succeeded after retrying",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "video_reducer_filesystem_retry_failures_total",
			Help: "Total number of filesystem operations that failed after all retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "video_reducer_filesystem_stale_errors_total",
			Help: "Total number of stale NFS file handle errors",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "video_reducer_filesystem_retry_duration_seconds",
			Help:    "Total time spent in retried filesystem operations",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"operation", "volume"},
	)
)

// Memory metrics
var (
	GoMemLimitBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "video_reducer_gomemlimit_bytes",
			Help: "Configured Go soft memory limit in bytes (0 if none)",
		},
	)

	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "video_reducer_memory_usage_ratio",
			Help: "Heap in use as a fraction of the soft memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "video_reducer_memory_paused",
			Help: "1 while new reductions are held back for memory pressure",
		},
	)

	MemoryPausesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "video_reducer_memory_pauses_total",
			Help: "Number of times new reductions were held back for memory pressure",
		},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "video_reducer_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
