package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"video-reducer/internal/batch"
	"video-reducer/internal/canvas"
	"video-reducer/internal/database"
	"video-reducer/internal/filesystem"
	"video-reducer/internal/mediatypes"
	"video-reducer/internal/memory"
	"video-reducer/internal/reducer"
	"video-reducer/internal/transcoder"
	"video-reducer/internal/workers"
)

const (
	// Default timeout for database operations
	defaultTimeout = 30 * time.Second
	// Default number of history rows shown
	defaultHistoryLimit = 20
	databaseFile        = "video-reducer.db"
)

// errUsage marks errors caused by bad arguments; usage is printed for them.
var errUsage = errors.New("invalid usage")

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(2)
	}

	// Create a context that cancels on interrupt signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nInterrupted, shutting down...")
		cancel()
	}()

	memory.ConfigureLimit()

	err := run(ctx, os.Args[1], os.Args[2:], os.Stdout, os.Stderr)
	switch {
	case err == nil:
	case errors.Is(err, errUsage):
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		printUsage(os.Stderr)
		os.Exit(2)
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command string, args []string, stdout, stderr io.Writer) error {
	switch command {
	case "reduce":
		return reduceCommand(ctx, args, stdout, stderr)
	case "watch":
		return watchCommand(ctx, args, stderr)
	case "history":
		return historyCommand(ctx, args, stdout)
	case "help", "-h", "--help":
		printUsage(stdout)
		return nil
	default:
		return fmt.Errorf("%w: unknown command %s", errUsage, sanitizeCommand(command))
	}
}

// sanitizeCommand returns a safe representation of a command string for display.
// Anything outside [a-zA-Z0-9_-] is replaced with '_'.
func sanitizeCommand(cmd string) string {
	var b strings.Builder
	b.Grow(len(cmd))
	for _, r := range cmd {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Video Reducer")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage: reduce-video <command> [flags] [paths...]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  reduce   - Reduce video files and directories")
	fmt.Fprintln(w, "  watch    - Reduce videos as they appear in a directory")
	fmt.Fprintln(w, "  history  - Show recent reductions")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Run 'reduce-video <command> -h' for command flags.")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Environment:")
	fmt.Fprintln(w, "  DATABASE_DIR   - Record history in this directory")
	fmt.Fprintln(w, "  MAX_VIDEO_SIZE - Size ceiling in bytes (default: 10485760)")
	fmt.Fprintln(w, "  FFMPEG_PATH    - FFmpeg binary (default: ffmpeg)")
	fmt.Fprintln(w, "  FFPROBE_PATH   - ffprobe binary (default: ffprobe)")
	fmt.Fprintf(w, "  %s - Concurrent reductions\n", workers.EnvOverride)
}

// options are the flags shared by reduce and watch.
type options struct {
	ceiling     uint64
	maxWidth    int
	ffmpeg      string
	ffprobe     string
	workDir     string
	workers     int
	outputDir   string
	suffix      string
	overwrite   bool
	dbPath      string
	reportPath  string
	toStdout    bool
	settle      time.Duration
	maxFileSize int64
}

func (o *options) register(fs *flag.FlagSet) {
	fs.Uint64Var(&o.ceiling, "ceiling", envUint("MAX_VIDEO_SIZE", reducer.DefaultCeiling), "size ceiling in bytes")
	fs.IntVar(&o.maxWidth, "max-width", 1280, "widest frame fed to the encoder (0 = source width)")
	fs.StringVar(&o.ffmpeg, "ffmpeg", envString("FFMPEG_PATH", "ffmpeg"), "FFmpeg binary")
	fs.StringVar(&o.ffprobe, "ffprobe", envString("FFPROBE_PATH", "ffprobe"), "ffprobe binary")
	fs.StringVar(&o.workDir, "work-dir", envString("WORK_DIR", filepath.Join(os.TempDir(), "video-reducer")), "scratch directory")
	fs.IntVar(&o.workers, "workers", 0, "concurrent reductions (0 = auto)")
	fs.StringVar(&o.outputDir, "out", "", "write outputs here instead of next to the sources")
	fs.StringVar(&o.suffix, "suffix", batch.DefaultSuffix, "inserted before the extension of outputs")
	fs.BoolVar(&o.overwrite, "overwrite", false, "replace existing outputs")
	fs.StringVar(&o.dbPath, "db", defaultDatabasePath(), "record history in this SQLite file (empty = off)")
	fs.Int64Var(&o.maxFileSize, "max-file-size", 0, "skip sources larger than this many bytes (0 = no limit)")
}

func defaultDatabasePath() string {
	if dir := os.Getenv("DATABASE_DIR"); dir != "" {
		return filepath.Join(dir, databaseFile)
	}
	return ""
}

func (o *options) batchConfig() batch.Config {
	cfg := batch.DefaultConfig()
	if o.workers > 0 {
		cfg.Workers = o.workers
	}
	cfg.OutputDir = o.outputDir
	cfg.Suffix = o.suffix
	cfg.Overwrite = o.overwrite
	cfg.MaxFileSize = o.maxFileSize
	return cfg
}

// newReducer wires the FFmpeg backend into a reducer. The returned cleanup
// kills leftover FFmpeg processes.
func (o *options) newReducer() (*reducer.Reducer, func()) {
	trans := transcoder.New(transcoder.Config{
		FFmpegPath:  o.ffmpeg,
		FFprobePath: o.ffprobe,
		WorkDir:     o.workDir,
		MaxWidth:    o.maxWidth,
	})
	cfg := reducer.DefaultConfig()
	cfg.Ceiling = o.ceiling
	return reducer.New(trans, canvas.New(o.maxWidth), trans, cfg), trans.Cleanup
}

// runner is a batch runner with its memory monitor.
type runner struct {
	*batch.Runner
	monitor *memory.Monitor
}

func (r runner) stop() {
	r.monitor.Stop()
}

func (o *options) newRunner(red batch.Reducer, db *database.Database) runner {
	rn := batch.NewRunner(red, o.batchConfig())
	if db != nil {
		rn.SetRecorder(db)
	}
	monitor := memory.NewMonitor(memory.DefaultConfig())
	monitor.Start()
	rn.SetMemoryGate(monitor)
	return runner{Runner: rn, monitor: monitor}
}

// openHistory opens the history database, or returns nil when disabled.
func openHistory(ctx context.Context, path string) (*database.Database, error) {
	if path == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := database.New(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history %s: %w", path, err)
	}
	return db, nil
}

func closeHistory(db *database.Database, stderr io.Writer) {
	if db == nil {
		return
	}
	if err := db.Close(); err != nil {
		fmt.Fprintf(stderr, "Warning: failed to close database: %v\n", err)
	}
}

func reduceCommand(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var opts options
	fs := flag.NewFlagSet("reduce", flag.ContinueOnError)
	fs.SetOutput(stderr)
	opts.register(fs)
	fs.StringVar(&opts.reportPath, "report", "", "write a YAML report to this file")
	fs.BoolVar(&opts.toStdout, "stdout", false, "write the single reduced file to stdout")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("%w: reduce needs at least one file or directory", errUsage)
	}
	if opts.toStdout {
		if fs.NArg() != 1 {
			return fmt.Errorf("%w: -stdout takes exactly one file", errUsage)
		}
		if isTerminal(stdout) {
			return errors.New("refusing to write video data to a terminal; redirect stdout")
		}
	}

	red, cleanup := opts.newReducer()
	defer cleanup()

	if opts.toStdout {
		return reduceToWriter(ctx, red, fs.Arg(0), opts.maxFileSize, stdout)
	}

	db, err := openHistory(ctx, opts.dbPath)
	if err != nil {
		return err
	}
	defer closeHistory(db, stderr)

	rn := opts.newRunner(red, db)
	defer rn.stop()
	report, runErr := rn.Run(ctx, fs.Args())

	fmt.Fprintln(stderr, report.Summary())
	if opts.reportPath != "" {
		if err := batch.WriteReport(opts.reportPath, report); err != nil {
			return errors.Join(runErr, err)
		}
	}
	if runErr != nil {
		return runErr
	}
	if report.Failed > 0 {
		return fmt.Errorf("%d of %d files failed", report.Failed, len(report.Files))
	}
	return nil
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// singleReducer is the part of the reducer reduceToWriter needs.
type singleReducer interface {
	Reduce(ctx context.Context, src reducer.SourceMedia) (*reducer.Result, error)
}

func reduceToWriter(ctx context.Context, red singleReducer, path string, maxSize int64, w io.Writer) error {
	data, err := filesystem.ReadFileWithRetry(path, maxSize, filesystem.DefaultRetryConfig())
	if err != nil {
		return err
	}
	res, err := red.Reduce(ctx, reducer.SourceMedia{
		Name:     filepath.Base(path),
		MimeType: mediatypes.GetMimeType(strings.ToLower(filepath.Ext(path))),
		Data:     data,
	})
	if err != nil {
		return fmt.Errorf("failed to reduce %s (%s): %w", path, reducer.Kind(err), err)
	}
	_, err = w.Write(res.Data)
	return err
}

func watchCommand(ctx context.Context, args []string, stderr io.Writer) error {
	var opts options
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	opts.register(fs)
	fs.DurationVar(&opts.settle, "settle", batch.DefaultSettle, "quiet period before a new file is reduced")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: watch takes exactly one directory", errUsage)
	}

	red, cleanup := opts.newReducer()
	defer cleanup()

	db, err := openHistory(ctx, opts.dbPath)
	if err != nil {
		return err
	}
	defer closeHistory(db, stderr)

	rn := opts.newRunner(red, db)
	defer rn.stop()

	w, err := batch.NewWatcher(fs.Arg(0), rn.Runner, batch.WatchConfig{
		Settle: opts.settle,
		OnResult: func(res batch.FileResult) {
			if res.Error != "" {
				fmt.Fprintf(stderr, "%s: %s (%s)\n", res.Path, res.Error, res.ErrorKind)
				return
			}
			fmt.Fprintf(stderr, "%s: %s %d -> %d bytes\n", res.Path, res.Outcome, res.SourceSize, res.ResultSize)
		},
	})
	if err != nil {
		return err
	}
	return w.Run(ctx)
}

func historyCommand(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(stdout)
	dbPath := fs.String("db", defaultDatabasePath(), "SQLite history file")
	limit := fs.Int("n", defaultHistoryLimit, "number of rows")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if *dbPath == "" {
		return fmt.Errorf("%w: no history database; set DATABASE_DIR or -db", errUsage)
	}
	if _, err := os.Stat(*dbPath); err != nil {
		return fmt.Errorf("history database %s: %w", *dbPath, err)
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	db, err := database.New(ctx, *dbPath)
	if err != nil {
		return err
	}
	defer closeHistory(db, os.Stderr)

	page, err := db.ListReductions(ctx, *limit, 0)
	if err != nil {
		return err
	}
	return printHistory(stdout, page)
}

func printHistory(w io.Writer, page *database.ReductionPage) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CREATED\tNAME\tOUTCOME\tSOURCE\tRESULT\tATTEMPTS\tDURATION")
	for _, r := range page.Items {
		outcome := string(r.Outcome)
		if r.ErrorKind != "" {
			outcome += " (" + r.ErrorKind + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%v\n",
			r.CreatedAt.Local().Format(time.DateTime), r.Name, outcome,
			r.SourceSize, r.ResultSize, r.Attempts, time.Duration(r.DurationMs)*time.Millisecond)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d of %d reductions\n", len(page.Items), page.Total)
	return err
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envUint(key string, def uint64) uint64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil && n > 0 {
			return n
		}
	}
	return def
}
