// Package middleware provides HTTP middleware for video-reducer.
//
// It includes:
//   - Request IDs (X-Request-ID, generated with github.com/google/uuid)
//   - Request logging in W3C Extended Log Format
//   - Prometheus request metrics labeled by mux route template
//   - gzip compression for JSON responses
package middleware
