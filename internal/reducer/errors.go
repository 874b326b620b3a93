package reducer

import (
	"context"
	"errors"
)

// Sentinel errors returned by Reduce. Every error returned by this package
// wraps exactly one of them (or a context error).
var (
	// ErrUnreadableMedia means the probe could not establish a valid duration
	// and dimensions for the source.
	ErrUnreadableMedia = errors.New("unreadable media")

	// ErrEncodingUnavailable means none of the preferred output encodings is
	// supported by the encoder backend.
	ErrEncodingUnavailable = errors.New("no supported output encoding")

	// ErrPlayback means the source could not be played back. It is never
	// retried since the same failure would recur.
	ErrPlayback = errors.New("playback error")

	// ErrSizeTargetUnreachable means the decay ladder reached its duration
	// floor without producing a candidate under the ceiling.
	ErrSizeTargetUnreachable = errors.New("size target unreachable")

	// ErrEncoderFailure means the encoding sink crashed or never acknowledged
	// a stop request.
	ErrEncoderFailure = errors.New("encoder failure")
)

// Kind returns a stable label for err, suitable for metrics and storage.
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrUnreadableMedia):
		return "unreadable_media"
	case errors.Is(err, ErrEncodingUnavailable):
		return "encoding_unavailable"
	case errors.Is(err, ErrPlayback):
		return "playback_error"
	case errors.Is(err, ErrSizeTargetUnreachable):
		return "size_target_unreachable"
	case errors.Is(err, ErrEncoderFailure):
		return "encoder_failure"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}

// Message returns a description of err that is safe to show to clients. It
// never includes paths or backend output carried by the wrapped error.
func Message(err error) string {
	switch {
	case errors.Is(err, ErrUnreadableMedia):
		return "the video could not be read"
	case errors.Is(err, ErrPlayback):
		return "the video failed during playback"
	case errors.Is(err, ErrEncodingUnavailable):
		return "no supported video encoder is available"
	case errors.Is(err, ErrSizeTargetUnreachable):
		return "the video cannot be reduced below the size limit"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "the reduction was canceled"
	default:
		return "the video could not be reduced"
	}
}

// Kinds lists every label Kind can return for a non-nil error.
func Kinds() []string {
	return []string{
		"unreadable_media",
		"encoding_unavailable",
		"playback_error",
		"size_target_unreachable",
		"encoder_failure",
		"canceled",
		"internal",
	}
}
