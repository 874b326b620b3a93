/*
Package workers provides utilities for determining worker pool sizes in
containerized environments.

Go sets GOMAXPROCS from the container CPU limit, while runtime.NumCPU still
reports the host's CPUs. Worker counts here are derived from GOMAXPROCS:

	numWorkers := workers.ForCPU(8)       // 1 per CPU, max 8
	numWorkers := workers.ForIO(16)       // 2 per CPU, max 16
	numWorkers := workers.ForReduction(4) // 1 per 2 CPUs, max 4

A video reduction runs an FFmpeg decoder and an FFmpeg encoder side by side,
so ForReduction budgets two CPUs per concurrent request. The reduce-video CLI
uses it to size its batch pool.

# Environment Variable Override

All functions respect the REDUCE_WORKERS environment variable:

	env:
	- name: REDUCE_WORKERS
	  value: "2"

Values that are not positive integers are ignored. The limit passed by the
caller still caps an override.
*/
package workers
