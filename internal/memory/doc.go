// Package memory keeps the service inside its container memory limit.
//
// A reduction holds the whole source, every chunk of the current candidate
// and the reduced result in memory, while two FFmpeg children decode and
// encode outside the Go heap. Without a soft limit the Go runtime has no
// reason to collect before the container is OOM-killed.
//
// # Configuration
//
// Call [ConfigureLimit] early in main, before any source is buffered:
//
//	limit := memory.ConfigureLimit()
//
// The soft limit comes from, in order:
//
//   - GOMEMLIMIT: Standard Go environment variable; used as is.
//   - MEMORY_LIMIT: Container limit in bytes, usually from the Kubernetes
//     Downward API, scaled by MEMORY_RATIO.
//   - The cgroup v2 memory.max file, scaled by MEMORY_RATIO.
//
// MEMORY_RATIO defaults to 0.6. Each running reduction keeps two FFmpeg
// processes busy, so a larger share than a pure Go service would leave is
// reserved for them.
//
//	env:
//	- name: MEMORY_LIMIT
//	  valueFrom:
//	    resourceFieldRef:
//	      resource: limits.memory
//
// # Backpressure
//
// A [Monitor] samples heap usage against the soft limit. Once usage crosses
// the critical water mark new reductions wait in [Monitor.Wait] until it
// drops below the high water mark again. Running reductions are never
// interrupted.
//
//	monitor := memory.NewMonitor(memory.DefaultConfig())
//	monitor.Start()
//	defer monitor.Stop()
//
//	if err := monitor.Wait(ctx); err != nil {
//	    return err // request canceled while waiting
//	}
package memory
