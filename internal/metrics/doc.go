// Package metrics provides Prometheus instrumentation for video-reducer.
//
// All metrics are prefixed with "video_reducer_" to avoid naming collisions
// with other applications.
//
// # Metric Categories
//
// ## HTTP Metrics
//
//   - HTTPRequestsTotal: Counter of total requests by method, path, and status
//   - HTTPRequestDuration: Histogram of request duration by method and path
//   - HTTPRequestsInFlight: Gauge of currently processing requests
//
// ## Reducer Metrics
//
// Recorded through the reducer.Observer returned by NewReducerObserver:
//   - ReductionsTotal: Counter by result (passthrough/reencoded/failed) and error kind
//   - ReductionDuration: Histogram of request duration by result
//   - ReductionAttemptsTotal: Counter of encode attempts by attempt index and outcome
//   - ReductionAttemptDuration: Histogram of single attempt duration
//   - ReductionAttemptsPerRequest: Histogram of attempts per request
//   - ReductionSourceBytes / ReductionCandidateBytes: size histograms
//   - ReductionTargetBitrate: Histogram of planned bitrates
//   - ReductionsInProgress: Gauge maintained by the HTTP handlers
//
// ## Database, Transcoder and Upload Metrics
//
//   - DBQueryTotal, DBQueryDuration, DBSizeBytes, ReductionHistoryRecords
//   - FFmpegProcessesActive: sampled by the Collector
//   - UploadsTotal, UploadDuration
//
// ## Filesystem Metrics
//
// Recorded through the filesystem.Observer returned by NewFilesystemObserver,
// including retry and stale NFS handle counters.
//
// # Usage
//
// Metrics are registered automatically with promauto. Call InitializeMetrics
// once at startup so every label combination is exported from the first
// scrape, then expose promhttp.Handler():
//
//	metrics.InitializeMetrics()
//	router.Handle("/metrics", promhttp.Handler())
//
// Gauges that reflect external state are refreshed by a Collector:
//
//	collector := metrics.NewCollector(provider, time.Minute)
//	collector.Start()
//	defer collector.Stop()
package metrics
