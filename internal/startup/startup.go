package startup

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"video-reducer/internal/logging"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// Config holds all application configuration
type Config struct {
	Port            string
	MetricsPort     string
	DatabaseDir     string
	WorkDir         string
	LogHealthChecks bool
	MetricsEnabled  bool

	// Reduction
	MaxVideoSize    uint64
	MaxRequestSize  int64
	FFmpegPath      string
	FFprobePath     string
	DisplayRate     int
	MaxWidth        int
	ProbeTimeout    time.Duration
	FinalizeTimeout time.Duration

	// Media host uploads
	UploadCloudName string
	UploadPreset    string
	UploadBaseURL   string
	UploadTimeout   time.Duration

	// Derived
	DatabasePath  string
	UploadEnabled bool
}

// Defaults for values that are parsed rather than used verbatim.
const (
	DefaultMaxVideoSize    = 10 * 1024 * 1024
	DefaultMaxRequestSize  = 512 * 1024 * 1024
	DefaultDisplayRate     = 60
	DefaultMaxWidth        = 1280
	DefaultProbeTimeout    = 30 * time.Second
	DefaultFinalizeTimeout = 10 * time.Second
	DefaultUploadTimeout   = 2 * time.Minute
)

// LoadConfig loads and validates configuration from environment variables
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	config, err := configFromEnv()
	if err != nil {
		return nil, err
	}
	logConfig(config)

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")

	if err := ensureDirectory(config.DatabaseDir, "database"); err != nil {
		return nil, fmt.Errorf("database directory error: %w", err)
	}
	if err := testWriteAccess(config.DatabaseDir); err != nil {
		return nil, fmt.Errorf("database directory is not writable (required for database): %w", err)
	}
	logging.Info("  [OK] Database directory is writable")

	if err := ensureDirectory(config.WorkDir, "work"); err != nil {
		return nil, fmt.Errorf("work directory error: %w", err)
	}
	if err := testWriteAccess(config.WorkDir); err != nil {
		return nil, fmt.Errorf("work directory is not writable (required for playback files): %w", err)
	}
	logging.Info("  [OK] Work directory is writable")

	logging.Info("")
	logging.Info("  Feature availability:")
	logging.Info("    Reduction:   ENABLED (ceiling %s)", formatBytes(int64(config.MaxVideoSize)))
	logging.Info("    Uploads:     %s", enabledString(config.UploadEnabled))
	logging.Info("    Metrics:     %s", enabledString(config.MetricsEnabled))

	return config, nil
}

// configFromEnv reads the environment without touching the filesystem.
func configFromEnv() (*Config, error) {
	databaseDir, err := filepath.Abs(getEnv("DATABASE_DIR", "/database"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database directory path: %w", err)
	}
	workDir, err := filepath.Abs(getEnv("WORK_DIR", filepath.Join(os.TempDir(), "video-reducer")))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve work directory path: %w", err)
	}

	maxVideoSize, err := getEnvUint("MAX_VIDEO_SIZE", DefaultMaxVideoSize)
	if err != nil {
		return nil, err
	}
	if maxVideoSize == 0 {
		return nil, fmt.Errorf("MAX_VIDEO_SIZE must be positive")
	}

	config := &Config{
		Port:            getEnv("PORT", "8080"),
		MetricsPort:     getEnv("METRICS_PORT", "9090"),
		DatabaseDir:     databaseDir,
		WorkDir:         workDir,
		LogHealthChecks: getEnvBool("LOG_HEALTH_CHECKS", true),
		MetricsEnabled:  getEnvBool("METRICS_ENABLED", true),

		MaxVideoSize:    maxVideoSize,
		MaxRequestSize:  int64(getEnvInt("MAX_REQUEST_SIZE", DefaultMaxRequestSize)),
		FFmpegPath:      getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:     getEnv("FFPROBE_PATH", "ffprobe"),
		DisplayRate:     getEnvInt("DISPLAY_RATE", DefaultDisplayRate),
		MaxWidth:        getEnvInt("MAX_WIDTH", DefaultMaxWidth),
		ProbeTimeout:    getEnvDuration("PROBE_TIMEOUT", DefaultProbeTimeout),
		FinalizeTimeout: getEnvDuration("FINALIZE_TIMEOUT", DefaultFinalizeTimeout),

		UploadCloudName: getEnv("UPLOAD_CLOUD_NAME", ""),
		UploadPreset:    getEnv("UPLOAD_PRESET", "nelf_uploads"),
		UploadBaseURL:   strings.TrimRight(getEnv("UPLOAD_BASE_URL", "https://api.cloudinary.com/v1_1"), "/"),
		UploadTimeout:   getEnvDuration("UPLOAD_TIMEOUT", DefaultUploadTimeout),

		DatabasePath: filepath.Join(databaseDir, "video-reducer.db"),
	}
	config.UploadEnabled = config.UploadCloudName != ""

	if config.DisplayRate <= 0 {
		logging.Warn("  Invalid DISPLAY_RATE, using default: %d", DefaultDisplayRate)
		config.DisplayRate = DefaultDisplayRate
	}
	if config.MaxWidth < 0 {
		config.MaxWidth = 0
	}
	if config.MaxRequestSize < int64(config.MaxVideoSize) {
		logging.Warn("  MAX_REQUEST_SIZE is below MAX_VIDEO_SIZE, raising it")
		config.MaxRequestSize = int64(config.MaxVideoSize)
	}

	return config, nil
}

func logConfig(c *Config) {
	logging.Info("  PORT:                %s", c.Port)
	logging.Info("  METRICS_PORT:        %s", c.MetricsPort)
	logging.Info("  METRICS_ENABLED:     %v", c.MetricsEnabled)
	logging.Info("  DATABASE_DIR:        %s", c.DatabaseDir)
	logging.Info("  WORK_DIR:            %s", c.WorkDir)
	logging.Info("  MAX_VIDEO_SIZE:      %d (%s)", c.MaxVideoSize, formatBytes(int64(c.MaxVideoSize)))
	logging.Info("  MAX_REQUEST_SIZE:    %s", formatBytes(c.MaxRequestSize))
	logging.Info("  FFMPEG_PATH:         %s", c.FFmpegPath)
	logging.Info("  FFPROBE_PATH:        %s", c.FFprobePath)
	logging.Info("  DISPLAY_RATE:        %d", c.DisplayRate)
	logging.Info("  MAX_WIDTH:           %d", c.MaxWidth)
	logging.Info("  PROBE_TIMEOUT:       %v", c.ProbeTimeout)
	logging.Info("  FINALIZE_TIMEOUT:    %v", c.FinalizeTimeout)
	if c.UploadEnabled {
		logging.Info("  UPLOAD_CLOUD_NAME:   %s", c.UploadCloudName)
		logging.Info("  UPLOAD_PRESET:       %s", c.UploadPreset)
		logging.Info("  UPLOAD_BASE_URL:     %s", c.UploadBaseURL)
	} else {
		logging.Info("  UPLOAD_CLOUD_NAME:   (not set, uploads disabled)")
	}
	logging.Info("  LOG_HEALTH_CHECKS:   %v", c.LogHealthChecks)
	logging.Info("  LOG_LEVEL:           %s", logging.GetLevel())
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

// LogDatabaseInit logs database initialization
func LogDatabaseInit(duration time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DATABASE INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  [OK] Database initialized in %v", duration)
}

// LogTranscoderInit logs transcoder initialization and checks FFmpeg
func LogTranscoderInit(ffmpegPath string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("TRANSCODER INITIALIZATION")
	logging.Info("------------------------------------------------------------")

	if err := checkFFmpeg(ffmpegPath); err != nil {
		logging.Warn("  FFmpeg check failed: %v", err)
		logging.Warn("  Oversized videos will be rejected until FFmpeg is available")
		return
	}
	logging.Info("  [OK] FFmpeg is available")
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   route.GetName(),
			})
		}
		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs all registered HTTP routes
func LogHTTPRoutes(router *mux.Router, logHealthChecks bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("HTTP SERVER SETUP")
	logging.Info("------------------------------------------------------------")

	if logging.IsDebugEnabled() {
		routes, err := GetRoutes(router)
		if err != nil {
			logging.Warn("error walking routes: %v", err)
		}

		sort.Slice(routes, func(i, j int) bool {
			if routes[i].Path != routes[j].Path {
				return routes[i].Path < routes[j].Path
			}
			return routes[i].Method < routes[j].Method
		})

		logging.Debug("  Registered routes (%d total):", len(routes))
		for _, route := range routes {
			logging.Debug("    %-6s %s", route.Method, route.Path)
		}
	}

	logging.Info("  HTTP logging enabled")
	if logHealthChecks {
		logging.Info("    Health check logging: ON")
	} else {
		logging.Info("    Health check logging: OFF (set LOG_HEALTH_CHECKS=true to enable)")
	}
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with all endpoint information
func LogServerStarted(config ServerConfig) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SERVER STARTED")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("")
	logging.Info("  Endpoints:")
	logging.Info("    Application:   http://0.0.0.0:%s", config.Port)
	if config.MetricsEnabled {
		logging.Info("    Metrics:       http://0.0.0.0:%s/metrics", config.MetricsPort)
	} else {
		logging.Info("    Metrics:       DISABLED")
	}
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
	logging.Info("")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

func printBanner() {
	banner := `
------------------------------------------------------------
          _     _                          _
  __   __(_) __| | ___  ___    _ __ ___  __| |_   _  ___ ___ _ __
  \ \ / /| |/ _' |/ _ \/ _ \  | '__/ _ \/ _' | | | |/ __/ _ \ '__|
   \ V / | | (_| |  __/ (_) | | | |  __/ (_| | |_| | (_|  __/ |
    \_/  |_|\__,_|\___|\___/  |_|  \___|\__,_|\__,_|\___\___|_|

------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
		logging.Info("  CPU model:       %s", infos[0].ModelName)
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		logging.Info("  Memory:          %s total, %s available", formatBytes(int64(vm.Total)), formatBytes(int64(vm.Available)))
	} else {
		logging.Debug("  Memory:          unavailable (%v)", err)
	}

	if logging.IsDebugEnabled() {
		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}

	logging.Info("")
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}

func checkFFmpeg(ffmpegPath string) error {
	path, err := exec.LookPath(ffmpegPath)
	if err != nil {
		return fmt.Errorf("%s not found in PATH", ffmpegPath)
	}
	logging.Debug("  FFmpeg path: %s", path)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, path, "-version").Output()
	if err != nil {
		return fmt.Errorf("failed to get ffmpeg version: %w", err)
	}

	if first, _, _ := strings.Cut(string(output), "\n"); first != "" {
		logging.Info("  %s", strings.TrimSpace(first))
	}
	return nil
}

// formatBytes renders a byte count using binary units.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		logging.Warn("Invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

// getEnvUint returns an error for malformed values instead of the default.
func getEnvUint(key string, defaultValue uint64) (uint64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, value, err)
	}
	return parsed, nil
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		logging.Warn("Invalid duration for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}
