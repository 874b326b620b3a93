// Package logging provides a simple leveled logging interface for the
// video reducer.
//
// It supports the following log levels:
//   - DEBUG: Verbose debugging information (attempt state transitions)
//   - INFO: General operational messages
//   - WARN: Warning conditions
//   - ERROR: Error conditions
//   - FATAL: Fatal errors that terminate the application
//
// The log level is configured via the LOG_LEVEL environment variable.
// Component loggers prefix every line with a component name and an optional
// request identifier.
package logging
