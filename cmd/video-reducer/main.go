package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"video-reducer/internal/canvas"
	"video-reducer/internal/database"
	"video-reducer/internal/events"
	"video-reducer/internal/filesystem"
	"video-reducer/internal/handlers"
	"video-reducer/internal/logging"
	"video-reducer/internal/memory"
	"video-reducer/internal/metrics"
	"video-reducer/internal/middleware"
	"video-reducer/internal/reducer"
	"video-reducer/internal/startup"
	"video-reducer/internal/transcoder"
	"video-reducer/internal/upload"
	"video-reducer/internal/workers"
)

const (
	shutdownTimeout   = 30 * time.Second
	collectorInterval = time.Minute
)

func main() {
	startTime := time.Now()

	// Before anything buffers a source.
	memory.ConfigureLimit()

	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	metrics.InitializeMetrics()
	metrics.SetAppInfo(startup.Version, startup.Commit, startup.GoVersion)
	filesystem.SetObserver(metrics.NewFilesystemObserver())
	filesystem.SetDefaultVolumeResolver(filesystem.NewVolumeResolver(map[string]string{
		"work":     config.WorkDir,
		"database": config.DatabaseDir,
	}))

	dbStart := time.Now()
	db, err := database.New(context.Background(), config.DatabasePath)
	if err != nil {
		startup.LogFatal("Failed to initialize database: %v", err)
	}
	startup.LogDatabaseInit(time.Since(dbStart))

	startup.LogTranscoderInit(config.FFmpegPath)
	trans := transcoder.New(transcoder.Config{
		FFmpegPath:  config.FFmpegPath,
		FFprobePath: config.FFprobePath,
		WorkDir:     config.WorkDir,
		DisplayRate: config.DisplayRate,
		MaxWidth:    config.MaxWidth,
	})

	red := reducer.New(trans, canvas.New(config.MaxWidth), trans, reducer.Config{
		Ceiling:         config.MaxVideoSize,
		ProbeTimeout:    config.ProbeTimeout,
		FinalizeTimeout: config.FinalizeTimeout,
	}, reducer.WithObserver(metrics.NewReducerObserver()))

	uploader := upload.New(upload.Config{
		BaseURL:   config.UploadBaseURL,
		CloudName: config.UploadCloudName,
		Preset:    config.UploadPreset,
		Timeout:   config.UploadTimeout,
	}, nil)

	hub := events.NewHub(events.DefaultBuffer)

	h := handlers.New(red, db, uploader, hub, config)
	h.SetReadinessCheck(trans.Available)
	concurrency := workers.ForReduction(0)
	h.SetConcurrency(concurrency)
	logging.Info("  Concurrent reductions: %d", concurrency)

	monitor := memory.NewMonitor(memory.DefaultConfig())
	monitor.Start()
	h.SetMemoryGate(monitor)

	router := setupRouter(h)
	startup.LogHTTPRoutes(router, config.LogHealthChecks)

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	handler := middleware.RequestID(middleware.Logger(loggingConfig)(router))

	srv := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		// Uploads of large sources and reduced blobs are bounded per
		// request instead of server-wide.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	var metricsSrv *http.Server
	var collector *metrics.Collector
	if config.MetricsEnabled {
		collector = metrics.NewCollector(&statsAdapter{processes: trans, history: db}, collectorInterval)
		collector.Start()

		metricsSrv = newMetricsServer(config.MetricsPort)
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error("Metrics server error: %v", err)
			}
		}()
	}

	go handleShutdown(srv, shutdownDeps{
		metricsSrv: metricsSrv,
		collector:  collector,
		hub:        hub,
		monitor:    monitor,
		trans:      trans,
		db:         db,
	})

	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})

	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		startup.LogFatal("Server error: %v", err)
	}

	// ListenAndServe returns as soon as Shutdown starts; wait for it to finish.
	<-shutdownDone
}

func setupRouter(h *handlers.Handlers) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))

	// Health check endpoints
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/reduce", h.ReduceVideo).Methods("POST")
	api.HandleFunc("/upload", h.UploadMedia).Methods("POST")
	api.HandleFunc("/events", h.StreamEvents).Methods("GET")

	history := api.PathPrefix("/reductions").Subrouter()
	history.Use(middleware.Compression(middleware.DefaultCompressionConfig()))
	history.HandleFunc("", h.ListReductions).Methods("GET")
	history.HandleFunc("/{id}", h.GetReduction).Methods("GET")

	return r
}

func newMetricsServer(port string) *http.Server {
	m := http.NewServeMux()
	m.Handle("/metrics", promhttp.Handler())
	m.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok"))
	})

	return &http.Server{
		Addr:         ":" + port,
		Handler:      m,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}
}

// processCounter reports running ffmpeg children.
type processCounter interface {
	ActiveProcesses() int
}

// historyStats reports the size of the reduction history.
type historyStats interface {
	CountReductions(ctx context.Context) (int, error)
	FileSizes() map[string]int64
}

// statsAdapter implements metrics.StatsProvider.
type statsAdapter struct {
	processes processCounter
	history   historyStats
}

func (a *statsAdapter) GetStats() metrics.Stats {
	stats := metrics.Stats{ActiveProcesses: a.processes.ActiveProcesses()}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	count, err := a.history.CountReductions(ctx)
	if err != nil {
		logging.Warn("failed to count reductions for metrics: %v", err)
	}
	stats.HistoryRecords = count
	stats.DBFileSizes = a.history.FileSizes()
	return stats
}

type shutdownDeps struct {
	metricsSrv *http.Server
	collector  *metrics.Collector
	hub        *events.Hub
	monitor    *memory.Monitor
	trans      *transcoder.Transcoder
	db         *database.Database
}

var shutdownDone = make(chan struct{})

func handleShutdown(srv *http.Server, deps shutdownDeps) {
	defer close(shutdownDone)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Websocket connections are hijacked and not tracked by Shutdown.
	startup.LogShutdownStep("Closing event streams")
	deps.hub.Close()
	startup.LogShutdownStepComplete("Event streams closed")

	// Requests still waiting for memory headroom fail fast instead of
	// holding up Shutdown.
	startup.LogShutdownStep("Stopping memory monitor")
	deps.monitor.Stop()
	startup.LogShutdownStepComplete("Memory monitor stopped")

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Error("HTTP server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	if deps.collector != nil {
		startup.LogShutdownStep("Stopping metrics collector")
		deps.collector.Stop()
		startup.LogShutdownStepComplete("Metrics collector stopped")
	}

	startup.LogShutdownStep("Cleaning up transcoder")
	deps.trans.Cleanup()
	startup.LogShutdownStepComplete("Transcoder cleanup complete")

	if deps.metricsSrv != nil {
		startup.LogShutdownStep("Shutting down metrics server")
		if err := deps.metricsSrv.Shutdown(ctx); err != nil {
			logging.Error("Metrics server shutdown error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Metrics server stopped")
		}
	}

	startup.LogShutdownStep("Closing database")
	if err := deps.db.Close(); err != nil {
		logging.Error("Database close error: %v", err)
	} else {
		startup.LogShutdownStepComplete("Database closed")
	}

	startup.LogShutdownComplete()
}
