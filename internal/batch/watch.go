package batch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultSettle is how long a file must stay unchanged before it is reduced.
const DefaultSettle = 2 * time.Second

// WatchConfig configures a Watcher.
type WatchConfig struct {
	// Settle is the quiet period after the last write event (0 = DefaultSettle).
	Settle time.Duration
	// OnResult is called after each file is processed. Optional.
	OnResult func(FileResult)
}

// Watcher reduces videos as they appear under a directory.
type Watcher struct {
	rn      *Runner
	fs      *fsnotify.Watcher
	dir     string
	config  WatchConfig
	pending map[string]time.Time // path -> time of the last event seen for it
}

// NewWatcher starts watching dir and every directory below it. Events that
// arrive before Run are queued by fsnotify and handled once Run starts.
func NewWatcher(dir string, rn *Runner, config WatchConfig) (*Watcher, error) {
	if config.Settle <= 0 {
		config.Settle = DefaultSettle
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	count, err := addDirectories(fsw, dir, rn.config.SkipHidden)
	if err != nil {
		_ = fsw.Close()
		return nil, err
	}
	rn.log.Info("Watching %s (%d directories, settle %v)", dir, count, config.Settle)

	return &Watcher{
		rn:      rn,
		fs:      fsw,
		dir:     dir,
		config:  config,
		pending: make(map[string]time.Time),
	}, nil
}

// Run processes settled files one at a time until ctx ends, then closes the
// watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() {
		if err := w.fs.Close(); err != nil {
			w.rn.log.Error("failed to close file watcher: %v", err)
		}
	}()

	ticker := time.NewTicker(w.config.Settle / 4)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.rn.log.Error("Watcher error: %v", err)

		case now := <-ticker.C:
			for _, path := range settled(w.pending, now, w.config.Settle) {
				delete(w.pending, path)
				if _, err := os.Stat(path); err != nil {
					continue
				}
				var res FileResult
				if err := w.rn.waitMemory(ctx); err != nil {
					if ctx.Err() != nil {
						return nil
					}
					res = w.rn.rejected(path, "memory_stopped", err)
				} else {
					res = w.rn.Process(ctx, path)
				}
				if w.config.OnResult != nil {
					w.config.OnResult(res)
				}
			}

		case <-ctx.Done():
			return nil
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	rn := w.rn
	if rn.config.SkipHidden && hiddenBelow(w.dir, event.Name) {
		return
	}

	switch {
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		delete(w.pending, event.Name)

	case event.Op&fsnotify.Create != 0:
		info, err := os.Stat(event.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			if n, err := addDirectories(w.fs, event.Name, rn.config.SkipHidden); err != nil {
				rn.log.Warn("failed to watch new directory %s: %v", event.Name, err)
			} else {
				rn.log.Debug("Added %d new directories to watcher under %s", n, event.Name)
			}
			return
		}
		if rn.Wants(event.Name) {
			w.pending[event.Name] = time.Now()
		}

	case event.Op&fsnotify.Write != 0:
		if rn.Wants(event.Name) {
			w.pending[event.Name] = time.Now()
		}
	}
}

// hiddenBelow reports whether any component of path below root starts with
// a dot. Hidden ancestors of root itself do not count.
func hiddenBelow(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return false
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if part != ".." && strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}

// settled returns the pending paths whose last event is at least settle old,
// oldest first.
func settled(pending map[string]time.Time, now time.Time, settle time.Duration) []string {
	var ready []string
	for path, last := range pending {
		if now.Sub(last) >= settle {
			ready = append(ready, path)
		}
	}
	slices.SortFunc(ready, func(a, b string) int {
		return pending[a].Compare(pending[b])
	})
	return ready
}

// addDirectories watches root and every directory below it.
func addDirectories(watcher *fsnotify.Watcher, root string, skipHidden bool) (int, error) {
	count := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && skipHidden && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		count++
		return nil
	})
	return count, err
}
