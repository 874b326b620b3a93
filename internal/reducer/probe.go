package reducer

import (
	"context"
	"fmt"
	"time"

	"video-reducer/internal/logging"
)

// DefaultProbeTimeout bounds how long the probe waits for metadata.
const DefaultProbeTimeout = 30 * time.Second

// Probe opens a transient playback handle on src, reads its metadata and
// releases the handle. It fails with ErrUnreadableMedia if the source cannot
// be opened, the metadata does not arrive within timeout, or the duration or
// dimensions are invalid. Cancellation of ctx is reported as ctx.Err().
func Probe(ctx context.Context, player Player, src SourceMedia, timeout time.Duration) (MediaMetadata, error) {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pb, err := player.Open(probeCtx, src)
	if err != nil {
		return MediaMetadata{}, probeError(ctx, "open", err)
	}
	defer func() {
		if err := pb.Close(); err != nil {
			logging.Warn("failed to release probe handle for %s: %v", src.Name, err)
		}
	}()

	meta, err := pb.Metadata(probeCtx)
	if err != nil {
		return MediaMetadata{}, probeError(ctx, "read metadata", err)
	}

	if !validDuration(meta.DurationSeconds) {
		return MediaMetadata{}, fmt.Errorf("%w: %s has invalid duration %v", ErrUnreadableMedia, src.Name, meta.DurationSeconds)
	}
	if meta.Width == 0 || meta.Height == 0 {
		return MediaMetadata{}, fmt.Errorf("%w: %s has invalid dimensions %dx%d", ErrUnreadableMedia, src.Name, meta.Width, meta.Height)
	}

	return meta, nil
}

func probeError(parent context.Context, step string, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	return fmt.Errorf("%w: %s: %v", ErrUnreadableMedia, step, err)
}
