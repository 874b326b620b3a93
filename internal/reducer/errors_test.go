package reducer

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "none"},
		{fmt.Errorf("probe: %w", ErrUnreadableMedia), "unreadable_media"},
		{ErrEncodingUnavailable, "encoding_unavailable"},
		{fmt.Errorf("%w: decode", ErrPlayback), "playback_error"},
		{ErrSizeTargetUnreachable, "size_target_unreachable"},
		{ErrEncoderFailure, "encoder_failure"},
		{context.Canceled, "canceled"},
		{context.DeadlineExceeded, "canceled"},
		{errors.New("boom"), "internal"},
	}

	for _, tt := range tests {
		if got := Kind(tt.err); got != tt.want {
			t.Errorf("Kind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestKindsCoverNonNilKinds(t *testing.T) {
	known := map[string]bool{}
	for _, k := range Kinds() {
		known[k] = true
	}
	for _, err := range []error{ErrUnreadableMedia, ErrEncodingUnavailable, ErrPlayback,
		ErrSizeTargetUnreachable, ErrEncoderFailure, context.Canceled, errors.New("x")} {
		if !known[Kind(err)] {
			t.Errorf("Kinds() is missing %q", Kind(err))
		}
	}
}

func TestMessageHidesDetail(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("ffprobe /tmp/w/src.mp4: %w", ErrUnreadableMedia), "the video could not be read"},
		{fmt.Errorf("%w: decoder stderr: moov atom not found", ErrPlayback), "the video failed during playback"},
		{ErrSizeTargetUnreachable, "the video cannot be reduced below the size limit"},
		{context.Canceled, "the reduction was canceled"},
		{errors.New("write /tmp/w/out.webm: no space left on device"), "the video could not be reduced"},
	}

	for _, tt := range tests {
		if got := Message(tt.err); got != tt.want {
			t.Errorf("Message(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
