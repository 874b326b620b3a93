package reducer

import (
	"context"
	"image"
	"time"
)

// Player opens sources for decoding and playback.
type Player interface {
	// Open allocates a transient playback handle for src. The caller must
	// Close the handle on every path.
	Open(ctx context.Context, src SourceMedia) (Playback, error)
}

// Playback is a single decodable handle on a source.
type Playback interface {
	// Metadata blocks until duration and native dimensions are known.
	Metadata(ctx context.Context) (MediaMetadata, error)

	// Ready is closed once playback can start.
	Ready() <-chan struct{}

	// Play starts playback from time zero.
	Play() error

	// Pause stops playback. Paused reports true afterwards.
	Pause()

	// Paused reports whether playback is not currently advancing. A handle
	// that was never played is paused.
	Paused() bool

	// Ended reports whether playback reached the end of the source.
	Ended() bool

	// Position is the media time of the current frame in seconds.
	Position() float64

	// Frame returns the current visual frame, or nil before the first one.
	Frame() image.Image

	// RenderTicks delivers one value per rendering opportunity.
	RenderTicks() <-chan time.Time

	// Errors delivers decoding failures.
	Errors() <-chan error

	Close() error
}

// Rasterizer creates off-screen drawable surfaces.
type Rasterizer interface {
	NewSurface(width, height int) (Surface, error)
}

// Surface is an off-screen frame buffer that can be wrapped as a live source.
type Surface interface {
	// Draw copies frame onto the surface, scaling it to the surface size.
	Draw(frame image.Image) error

	// Capture wraps the surface as a live source sampled at fps.
	Capture(fps int) LiveSource

	Close() error
}

// LiveSource is a continuously sampled visual source.
type LiveSource interface {
	// Snapshot returns a copy of the current contents.
	Snapshot() image.Image
	FrameRate() int
	Bounds() image.Rectangle
}

// SinkConfig configures an encoding sink.
type SinkConfig struct {
	MimeType   string
	BitrateBps uint64
	FrameRate  int
	// Timeslice is how often buffered output is emitted as a chunk.
	Timeslice time.Duration
}

// Encoders reports supported output encodings and starts sinks.
type Encoders interface {
	Supported(mimeType string) bool
	Start(ctx context.Context, src LiveSource, cfg SinkConfig) (Sink, error)
}

// Sink consumes a live source and emits compressed chunks until stopped.
type Sink interface {
	// Chunks delivers output in emission order. It is closed once the sink
	// has finalized after Stop.
	Chunks() <-chan []byte

	// Errors delivers encoder failures.
	Errors() <-chan error

	// Stop requests finalization. It is safe to call more than once.
	Stop()

	// Active reports whether the sink is still recording.
	Active() bool

	MimeType() string

	Close() error
}

// Timer is a stoppable one-shot timer.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

// Clock creates timers. It exists so the guard timer can be driven in tests.
type Clock interface {
	NewTimer(d time.Duration) Timer
}

type systemClock struct{}

type systemTimer struct {
	t *time.Timer
}

// SystemClock returns a Clock backed by the time package.
func SystemClock() Clock {
	return systemClock{}
}

func (systemClock) NewTimer(d time.Duration) Timer {
	return systemTimer{t: time.NewTimer(d)}
}

func (s systemTimer) C() <-chan time.Time { return s.t.C }
func (s systemTimer) Stop() bool          { return s.t.Stop() }
