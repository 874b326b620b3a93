package handlers

import (
	"errors"
	"net/http"

	"video-reducer/internal/memory"
	"video-reducer/internal/reducer"
)

// statusForError maps a reducer error to an HTTP status code.
func statusForError(err error) int {
	switch {
	case errors.Is(err, reducer.ErrUnreadableMedia), errors.Is(err, reducer.ErrPlayback):
		return http.StatusUnprocessableEntity
	case errors.Is(err, reducer.ErrEncodingUnavailable), errors.Is(err, memory.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, reducer.ErrSizeTargetUnreachable):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// messageForError returns a client-facing message. Internal failures are
// not described in detail.
func messageForError(err error) string {
	if errors.Is(err, memory.ErrStopped) {
		return "the service is shutting down"
	}
	return reducer.Message(err)
}

func writeReductionError(w http.ResponseWriter, err error) {
	writeJSONErrorKind(w, messageForError(err), reducer.Kind(err), statusForError(err))
}
