// Package main provides the entry point for the video-reducer service.
//
// video-reducer accepts video uploads over HTTP and shrinks any that exceed
// the configured size ceiling (10 MiB by default) before they are returned
// or forwarded to the managed media host. Videos already under the ceiling
// pass through untouched.
//
// # Application Lifecycle
//
//  1. Memory Configuration: Sets GOMEMLIMIT from environment or cgroup limits
//  2. Configuration Loading: Reads environment variables and validates directories
//  3. Metrics: Registers Prometheus collectors and filesystem observers
//  4. Database Initialization: Opens the SQLite reduction history
//  5. Component Initialization:
//     - Transcoder: FFmpeg-backed playback and encoding sinks
//     - Reducer: Probe, budget, frame relay and retry controller
//     - Upload client: Media host uploads (when UPLOAD_CLOUD_NAME is set)
//     - Event hub: Fan-out of reduction progress to websocket subscribers
//     - Memory monitor: Holds new reductions while the heap is near its limit
//  6. HTTP Server Setup: Configures routes and middleware, then starts serving
//  7. Graceful Shutdown: Handles SIGINT/SIGTERM and stops components in order
//
// # HTTP Server
//
// Two HTTP servers run side by side:
//
//  1. Main Server (default port 8080):
//     - POST /api/reduce: multipart file in, reduced video out
//     - POST /api/upload: reduce if needed, then upload to the media host
//     - GET /api/reductions, GET /api/reductions/{id}: reduction history
//     - GET /api/events: websocket stream of reduction progress
//     - /health, /healthz, /livez, /readyz, /version
//
//  2. Metrics Server (default port 9090, optional):
//     - Prometheus metrics endpoint (/metrics)
//     - Health check endpoint (/health)
//
// # Environment Variables
//
//   - PORT: Main HTTP server port (default: 8080)
//   - METRICS_PORT: Metrics server port (default: 9090)
//   - METRICS_ENABLED: Enable metrics server (default: true)
//   - DATABASE_DIR: Directory for the SQLite history (default: /database)
//   - WORK_DIR: Scratch directory for playback files (default: OS temp dir)
//   - MAX_VIDEO_SIZE: Size ceiling in bytes (default: 10485760)
//   - MAX_WIDTH: Widest frame the encoder is fed (default: 1280)
//   - MAX_REQUEST_SIZE: Largest accepted request body
//   - FFMPEG_PATH, FFPROBE_PATH: FFmpeg binaries (default: from PATH)
//   - PROBE_TIMEOUT, FINALIZE_TIMEOUT: Metadata and encoder flush bounds
//   - UPLOAD_CLOUD_NAME, UPLOAD_PRESET, UPLOAD_BASE_URL, UPLOAD_TIMEOUT: Media host
//   - REDUCE_WORKERS: Concurrent reductions (default: derived from CPU count)
//   - LOG_LEVEL: Logging level (debug/info/warn/error)
//   - LOG_HEALTH_CHECKS: Log health probe requests (default: true)
//   - GOMEMLIMIT, MEMORY_LIMIT, MEMORY_RATIO: Go soft memory limit
//
// # Graceful Shutdown
//
//  1. Close the event hub (websocket clients receive a going-away frame)
//  2. Stop the memory monitor (requests waiting for headroom get 503)
//  3. Stop accepting new HTTP requests and drain in-flight ones (30s timeout)
//  4. Stop metrics collector
//  5. Kill remaining FFmpeg processes and remove playback files
//  6. Shutdown metrics server (if running)
//  7. Close database connections
//
// # Build Requirements
//
// CGO is required for SQLite. FFmpeg and ffprobe must be available at
// runtime; without them the service reports not ready and oversized
// videos are rejected.
//
//	go build -o video-reducer ./cmd/video-reducer
//
// # Related Packages
//
//   - [video-reducer/internal/reducer]: Reduction pipeline
//   - [video-reducer/internal/transcoder]: FFmpeg playback and encoders
//   - [video-reducer/internal/handlers]: HTTP request handlers
//   - [video-reducer/internal/middleware]: HTTP middleware (logging, metrics, compression)
//   - [video-reducer/internal/database]: Reduction history
//   - [video-reducer/internal/startup]: Configuration and initialization
package main
