// Package handlers provides the HTTP handlers for the video-reducer API.
//
// It includes handlers for:
//   - Reducing an uploaded video below the size ceiling (POST /api/reduce)
//   - Uploading media to the media host, reducing videos first (POST /api/upload)
//   - Browsing the reduction history (GET /api/reductions)
//   - Live reduction progress over a websocket (GET /api/events)
//   - Health, readiness and version information
//
// Reducer errors map to status codes: unreadable media and playback errors
// are 422, a missing encoder is 503, an unreachable size target is 413 and
// anything else is 500.
package handlers
