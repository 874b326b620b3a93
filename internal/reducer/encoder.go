package reducer

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultGuardSlack is added to the target duration to arm the guard timer.
	DefaultGuardSlack = 500 * time.Millisecond

	// DefaultTimeslice is how often the sink emits buffered output.
	DefaultTimeslice = time.Second

	// DefaultFinalizeTimeout bounds the wait for the sink after a stop request.
	DefaultFinalizeTimeout = 10 * time.Second
)

// frameRelay plays a source and copies every rendered frame onto a surface
// that feeds an encoding sink.
type frameRelay struct {
	player          Player
	rasterizer      Rasterizer
	encoders        Encoders
	clock           Clock
	guardSlack      time.Duration
	timeslice       time.Duration
	finalizeTimeout time.Duration
}

// run executes one attempt and returns the candidate blob. All resources
// acquired for the attempt are released before run returns.
func (f *frameRelay) run(ctx context.Context, src SourceMedia, meta MediaMetadata, a *attempt) ([]byte, error) {
	defer a.release()

	mimeType, ok := selectEncoding(f.encoders, a.plan.Attempt)
	if !ok {
		return nil, fmt.Errorf("%w: tried %s", ErrEncodingUnavailable, strings.Join(Preferences(a.plan.Attempt), ", "))
	}

	pb, err := f.player.Open(ctx, src)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: open %s: %v", ErrPlayback, src.Name, err)
	}
	a.own("playback handle", pb.Close)

	surface, err := f.rasterizer.NewSurface(int(meta.Width), int(meta.Height))
	if err != nil {
		return nil, fmt.Errorf("create %dx%d surface: %w", meta.Width, meta.Height, err)
	}
	a.own("surface", surface.Close)

	sink, err := f.encoders.Start(ctx, surface.Capture(a.plan.FrameRate), SinkConfig{
		MimeType:   mimeType,
		BitrateBps: a.plan.TargetBitrateBps,
		FrameRate:  a.plan.FrameRate,
		Timeslice:  f.timeslice,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: start %s sink: %v", ErrEncoderFailure, mimeType, err)
	}
	a.own("sink", func() error {
		sink.Stop()
		return sink.Close()
	})

	a.mimeType = mimeType
	if m := sink.MimeType(); m != "" {
		a.mimeType = m
	}

	guard := f.clock.NewTimer(a.plan.TargetDuration() + f.guardSlack)
	a.own("guard timer", stopTimer(guard))

	a.log.Debug("attempt %d encoding %s at %d bps, %d fps, target %.2fs",
		a.plan.Attempt, a.mimeType, a.plan.TargetBitrateBps, a.plan.FrameRate, a.plan.TargetDurationSeconds)

	if err := f.relay(ctx, a, pb, surface, sink, guard); err != nil {
		return nil, err
	}
	return a.candidate(), nil
}

// relay is the sampling loop. It returns once the sink has finalized, or on
// the first terminal error.
func (f *frameRelay) relay(ctx context.Context, a *attempt, pb Playback, surface Surface, sink Sink, guard Timer) error {
	var (
		ready    = pb.Ready()
		ticks    <-chan time.Time
		guardC   = guard.C()
		finalize <-chan time.Time
		chunks   = sink.Chunks()
		target   = a.plan.TargetDurationSeconds
	)

	stopSampling := func(reason string) {
		ticks = nil
		if finalize != nil {
			return
		}
		a.log.Debug("attempt %d stopping sink: %s", a.plan.Attempt, reason)
		sink.Stop()
		ft := f.clock.NewTimer(f.finalizeTimeout)
		a.own("finalize timer", stopTimer(ft))
		finalize = ft.C()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-pb.Errors():
			return fmt.Errorf("%w: %v", ErrPlayback, err)

		case err := <-sink.Errors():
			return fmt.Errorf("%w: %v", ErrEncoderFailure, err)

		case <-ready:
			ready = nil
			if finalize != nil {
				continue
			}
			if err := pb.Play(); err != nil {
				return fmt.Errorf("%w: play: %v", ErrPlayback, err)
			}
			ticks = pb.RenderTicks()

		case <-ticks:
			if pb.Ended() || pb.Paused() || pb.Position() >= target {
				stopSampling(fmt.Sprintf("playback at %.2fs", pb.Position()))
				continue
			}
			frame := pb.Frame()
			if frame == nil {
				continue
			}
			if err := surface.Draw(frame); err != nil {
				a.log.Warn("attempt %d failed to draw frame: %v", a.plan.Attempt, err)
				stopSampling("draw failed")
				continue
			}
			a.frames++

		case <-guardC:
			guardC = nil
			stopSampling("guard timer fired")
			pb.Pause()

		case <-finalize:
			return fmt.Errorf("%w: sink did not finalize within %v", ErrEncoderFailure, f.finalizeTimeout)

		case chunk, ok := <-chunks:
			if !ok {
				return f.finalized(a, sink)
			}
			if len(chunk) > 0 {
				a.chunks = append(a.chunks, chunk)
			}
		}
	}
}

func (f *frameRelay) finalized(a *attempt, sink Sink) error {
	select {
	case err := <-sink.Errors():
		return fmt.Errorf("%w: %v", ErrEncoderFailure, err)
	default:
	}
	if a.frames == 0 {
		return fmt.Errorf("%w: no frames were relayed before the sink finalized", ErrPlayback)
	}
	return nil
}

func stopTimer(t Timer) func() error {
	return func() error {
		t.Stop()
		return nil
	}
}
