// Package batch reduces video files from disk.
//
// A [Runner] walks the given files and directories and feeds every video it
// finds to a fixed pool of workers. Each file is an independent reduction
// request; a failure on one file is reported and the batch continues.
//
//	runner := batch.NewRunner(red, batch.DefaultConfig())
//	report, err := runner.Run(ctx, []string{"/incoming"})
//
// Reduced copies are written next to their source as "<name>.reduced<ext>"
// or into Config.OutputDir. Files that already fit under the ceiling are
// left alone unless an output directory is set, in which case they are
// copied there unchanged so the directory holds one upload-ready file per
// source.
//
// # Watching
//
// A [Watcher] keeps a directory under fsnotify observation and hands each new
// or rewritten video to the runner once it has stopped changing for the
// settle interval. New subdirectories are watched as they appear.
//
// # Reports
//
// A [Report] summarizes a run and can be written as YAML with [WriteReport].
package batch
