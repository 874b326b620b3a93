// Package startup handles application initialization, configuration loading,
// and startup/shutdown logging.
//
// # Configuration
//
// All configuration is loaded from environment variables via [LoadConfig]:
//
//   - PORT: HTTP server port (default: 8080)
//   - METRICS_PORT: Prometheus metrics server port (default: 9090)
//   - METRICS_ENABLED: Enable or disable metrics server (default: true)
//   - DATABASE_DIR: Directory for the reduction history database (default: /database)
//   - WORK_DIR: Directory for temporary playback files (default: $TMPDIR/video-reducer)
//   - MAX_VIDEO_SIZE: Size ceiling in bytes (default: 10485760)
//   - MAX_REQUEST_SIZE: Largest accepted request body in bytes (default: 512 MiB)
//   - FFMPEG_PATH, FFPROBE_PATH: FFmpeg binaries (default: looked up in PATH)
//   - DISPLAY_RATE: Rendering opportunities per second during playback (default: 60)
//   - MAX_WIDTH: Widest frame the rasterizer keeps, 0 for no limit (default: 1280)
//   - PROBE_TIMEOUT: Bound on the metadata probe (default: 30s)
//   - FINALIZE_TIMEOUT: Bound on encoder finalization after stop (default: 10s)
//   - UPLOAD_CLOUD_NAME: Media host account; uploads are disabled when unset
//   - UPLOAD_PRESET: Unsigned upload preset (default: nelf_uploads)
//   - UPLOAD_BASE_URL: Media host API base (default: https://api.cloudinary.com/v1_1)
//   - UPLOAD_TIMEOUT: Bound on a single upload (default: 2m)
//   - LOG_LEVEL: Logging level - debug, info, warn, error (default: info)
//   - LOG_HEALTH_CHECKS: Log health check requests (default: true)
//
// A malformed MAX_VIDEO_SIZE is a configuration error. Other malformed
// values are logged and replaced by their defaults.
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo]:
//
//	go build -ldflags "-X video-reducer/internal/startup.Version=1.0.0" ./cmd/video-reducer
//
// # Lifecycle Logging
//
//   - [LogDatabaseInit]: Database initialization timing
//   - [LogTranscoderInit]: FFmpeg availability
//   - [LogHTTPRoutes]: Registered HTTP routes (debug level)
//   - [LogServerStarted]: Server endpoints and startup duration
//   - [LogShutdownInitiated], [LogShutdownStep], [LogShutdownComplete]: Graceful shutdown
package startup
