package batch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"video-reducer/internal/database"
	"video-reducer/internal/filesystem"
	"video-reducer/internal/logging"
	"video-reducer/internal/mediatypes"
	"video-reducer/internal/metrics"
	"video-reducer/internal/reducer"
	"video-reducer/internal/workers"
)

// DefaultSuffix is inserted before the extension of reduced copies.
const DefaultSuffix = ".reduced"

// Reducer shrinks one source below its ceiling.
type Reducer interface {
	Reduce(ctx context.Context, src reducer.SourceMedia) (*reducer.Result, error)
	Ceiling() uint64
}

// MemoryGate holds back new reductions under memory pressure.
type MemoryGate interface {
	Wait(ctx context.Context) error
}

// Recorder stores the outcome of a reduction.
type Recorder interface {
	RecordReduction(ctx context.Context, r *database.Reduction) error
}

// Config configures a Runner.
type Config struct {
	// Workers is the number of concurrent reductions (0 = auto).
	Workers int
	// OutputDir receives reduced copies. Empty means next to the source.
	OutputDir string
	// Suffix is inserted before the extension of output files.
	Suffix string
	// MaxFileSize refuses larger sources without reading them (0 = no limit).
	MaxFileSize int64
	// ChannelBuffer is the size of the job queue.
	ChannelBuffer int
	// SkipHidden skips files and directories starting with ".".
	SkipHidden bool
	// Overwrite replaces existing output files instead of skipping the source.
	Overwrite bool
}

// DefaultConfig returns defaults sized for the host.
func DefaultConfig() Config {
	return Config{
		Workers:       workers.ForReduction(0),
		Suffix:        DefaultSuffix,
		ChannelBuffer: 64,
		SkipHidden:    true,
	}
}

// Runner reduces files with a fixed pool of workers.
type Runner struct {
	red      Reducer
	recorder Recorder
	memory   MemoryGate
	config   Config
	retry    filesystem.RetryConfig
	log      *logging.Logger

	processed atomic.Int64
	reencoded atomic.Int64
	failed    atomic.Int64
}

// NewRunner creates a runner. Zero fields of config take their defaults.
func NewRunner(red Reducer, config Config) *Runner {
	defaults := DefaultConfig()
	if config.Workers <= 0 {
		config.Workers = defaults.Workers
	}
	if config.Suffix == "" {
		config.Suffix = defaults.Suffix
	}
	if config.ChannelBuffer <= 0 {
		config.ChannelBuffer = defaults.ChannelBuffer
	}
	return &Runner{
		red:    red,
		config: config,
		retry:  filesystem.DefaultRetryConfig(),
		log:    logging.Component("batch"),
	}
}

// SetRecorder enables history recording for every processed file.
func (rn *Runner) SetRecorder(rec Recorder) {
	rn.recorder = rec
}

// SetMemoryGate makes workers wait for memory headroom before each file.
func (rn *Runner) SetMemoryGate(g MemoryGate) {
	rn.memory = g
}

// Stats returns counters accumulated over the runner's lifetime.
func (rn *Runner) Stats() (processed, reencoded, failed int64) {
	return rn.processed.Load(), rn.reencoded.Load(), rn.failed.Load()
}

// Run reduces every video under paths. Directories are walked recursively.
// The returned report lists files in the order they finished. An error is
// returned only when a path cannot be walked or ctx ends; per-file failures
// are in the report.
func (rn *Runner) Run(ctx context.Context, paths []string) (*Report, error) {
	report := newReport(rn.red.Ceiling(), rn.config.Workers)
	rn.log.Info("Starting batch with %d workers", rn.config.Workers)

	jobs := make(chan string, rn.config.ChannelBuffer)
	results := make(chan FileResult, rn.config.ChannelBuffer)

	var wg sync.WaitGroup
	for i := 0; i < rn.config.Workers; i++ {
		wg.Add(1)
		go rn.worker(ctx, i, jobs, results, &wg)
	}

	var collectorWg sync.WaitGroup
	collectorWg.Add(1)
	go func() {
		defer collectorWg.Done()
		for res := range results {
			report.add(res)
		}
	}()

	var walkErr error
	for _, p := range paths {
		if err := rn.enqueue(ctx, p, jobs); err != nil {
			walkErr = errors.Join(walkErr, err)
		}
	}

	close(jobs)
	wg.Wait()
	close(results)
	collectorWg.Wait()

	report.finish()
	rn.log.Info("Batch complete: %d files, %d re-encoded, %d failed in %v",
		len(report.Files), report.Reencoded, report.Failed, report.Duration)

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, walkErr
}

// enqueue sends root, or every video below it, to the workers.
func (rn *Runner) enqueue(ctx context.Context, root string, jobs chan<- string) error {
	info, err := filesystem.StatWithRetry(root, rn.retry)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return send(ctx, jobs, root)
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return fs.SkipAll
		}
		if err != nil {
			rn.log.Warn("Error accessing path %s: %v", path, err)
			return nil
		}
		if path != root && rn.config.SkipHidden && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !rn.Wants(path) {
			return nil
		}
		if err := send(ctx, jobs, path); err != nil {
			return fs.SkipAll
		}
		return nil
	})
}

func send(ctx context.Context, jobs chan<- string, path string) error {
	select {
	case jobs <- path:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wants reports whether path names a video this runner should process.
// Outputs of earlier runs are skipped.
func (rn *Runner) Wants(path string) bool {
	name := filepath.Base(path)
	if rn.config.SkipHidden && strings.HasPrefix(name, ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	if mediatypes.GetFileType(ext) != mediatypes.FileTypeVideo {
		return false
	}
	return !strings.HasSuffix(strings.TrimSuffix(name, filepath.Ext(name)), rn.config.Suffix)
}

func (rn *Runner) worker(ctx context.Context, id int, jobs <-chan string, results chan<- FileResult, wg *sync.WaitGroup) {
	defer wg.Done()
	rn.log.Debug("Worker %d started", id)

	for path := range jobs {
		if ctx.Err() != nil {
			return
		}
		if err := rn.waitMemory(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			// Keep draining so enqueue never blocks on a pool with no readers.
			results <- rn.rejected(path, "memory_stopped", err)
			continue
		}
		results <- rn.Process(ctx, path)
	}

	rn.log.Debug("Worker %d finished", id)
}

func (rn *Runner) waitMemory(ctx context.Context) error {
	if rn.memory == nil {
		return nil
	}
	return rn.memory.Wait(ctx)
}

// rejected is the result for a file that was dequeued but never reduced.
func (rn *Runner) rejected(path, kind string, err error) FileResult {
	res := FileResult{Path: path}
	res.fail(kind, err)
	rn.processed.Add(1)
	rn.failed.Add(1)
	rn.log.Warn("Skipping %s: %v", path, err)
	return res
}

// Process reduces a single file and writes its output.
func (rn *Runner) Process(ctx context.Context, path string) FileResult {
	start := time.Now()
	res := FileResult{Path: path}
	defer func() {
		res.Duration = time.Since(start)
		rn.processed.Add(1)
		switch res.Outcome {
		case database.OutcomeReencoded:
			rn.reencoded.Add(1)
		case database.OutcomeFailed:
			rn.failed.Add(1)
		}
	}()

	data, err := filesystem.ReadFileWithRetry(path, rn.config.MaxFileSize, rn.retry)
	if err != nil {
		res.fail("read_error", err)
		rn.log.Warn("Skipping %s: %v", path, err)
		return res
	}
	src := reducer.SourceMedia{
		Name:     filepath.Base(path),
		MimeType: mediatypes.GetMimeType(strings.ToLower(filepath.Ext(path))),
		Data:     data,
	}
	res.SourceSize = int64(src.Size())

	out, err := rn.red.Reduce(ctx, src)
	rn.record(ctx, src, out, err, time.Since(start))
	if err != nil {
		res.fail(reducer.Kind(err), err)
		rn.log.Warn("Failed to reduce %s: %v", path, err)
		return res
	}

	res.ResultSize = int64(out.Size())
	res.Attempts = out.Attempts
	res.MimeType = out.MimeType
	res.Outcome = database.OutcomePassthrough
	if out.Reencoded {
		res.Outcome = database.OutcomeReencoded
	}

	if !out.Reencoded && rn.config.OutputDir == "" {
		rn.log.Debug("%s already fits (%d bytes)", path, res.SourceSize)
		return res
	}

	target := rn.OutputPath(path, out.MimeType)
	if !rn.config.Overwrite {
		if _, err := filesystem.StatWithRetry(target, rn.retry); err == nil {
			res.fail("output_exists", fmt.Errorf("%s already exists", target))
			return res
		}
	}
	if err := filesystem.WriteFileWithRetry(target, out.Data, 0o644, rn.retry); err != nil {
		res.fail("write_error", err)
		rn.log.Error("Failed to write %s: %v", target, err)
		return res
	}
	res.Output = target

	rn.log.Info("%s: %d -> %d bytes (%s, %d attempts)",
		src.Name, res.SourceSize, res.ResultSize, res.Outcome, res.Attempts)
	return res
}

// OutputPath returns where the reduced copy of path is written.
func (rn *Runner) OutputPath(path, mimeType string) string {
	dir := rn.config.OutputDir
	if dir == "" {
		dir = filepath.Dir(path)
	}
	name := filepath.Base(path)
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	ext := mediatypes.ExtensionFor(mimeType, name)
	return filepath.Join(dir, stem+rn.config.Suffix+ext)
}

func (rn *Runner) record(ctx context.Context, src reducer.SourceMedia, res *reducer.Result, err error, elapsed time.Duration) {
	if rn.recorder == nil {
		return
	}
	row := &database.Reduction{
		Name:       src.Name,
		SourceHash: database.HashSource(src.Data),
		SourceSize: int64(src.Size()),
		MimeType:   src.MimeType,
		Outcome:    database.Outcome(metrics.ResultLabel(res != nil && res.Reencoded, err)),
		Duration:   elapsed,
	}
	if err != nil {
		row.ErrorKind = reducer.Kind(err)
	}
	if res != nil {
		row.ResultSize = int64(res.Size())
		row.MimeType = res.MimeType
		row.Attempts = res.Attempts
	}
	if recErr := rn.recorder.RecordReduction(context.WithoutCancel(ctx), row); recErr != nil {
		rn.log.Error("failed to record reduction of %s: %v", src.Name, recErr)
	}
}
