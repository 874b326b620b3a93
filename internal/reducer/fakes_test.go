package reducer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"
)

// tracker counts resource acquire and release events per kind.
type tracker struct {
	mu       sync.Mutex
	acquired map[string]int
	released map[string]int
}

func newTracker() *tracker {
	return &tracker{acquired: map[string]int{}, released: map[string]int{}}
}

func (t *tracker) acquire(kind string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.acquired[kind]++
}

func (t *tracker) release(kind string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.released[kind]++
}

func (t *tracker) count(kind string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.acquired[kind]
}

func (t *tracker) balanced() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for kind, n := range t.acquired {
		if t.released[kind] != n {
			return fmt.Errorf("%s: acquired %d, released %d", kind, n, t.released[kind])
		}
	}
	for kind, n := range t.released {
		if _, ok := t.acquired[kind]; !ok {
			return fmt.Errorf("%s: released %d, never acquired", kind, n)
		}
	}
	return nil
}

type fakePlayer struct {
	t          *tracker
	meta       MediaMetadata
	metaErr    error
	blockMeta  bool
	openErr    error
	neverReady bool
	playErr    error
	runtimeErr error
	// step is how far playback advances per relayed frame; 0 stalls.
	step float64
}

func (p *fakePlayer) Open(_ context.Context, _ SourceMedia) (Playback, error) {
	if p.openErr != nil {
		return nil, p.openErr
	}
	p.t.acquire("playback")
	pb := &fakePlayback{
		p:     p,
		ready: make(chan struct{}),
		ticks: make(chan time.Time),
		errs:  make(chan error, 1),
		done:  make(chan struct{}),
		frame: image.NewUniform(color.Gray{Y: 128}),
	}
	if !p.neverReady {
		close(pb.ready)
	}
	return pb, nil
}

type fakePlayback struct {
	p     *fakePlayer
	ready chan struct{}
	ticks chan time.Time
	errs  chan error
	done  chan struct{}
	frame image.Image

	mu        sync.Mutex
	playing   bool
	ended     bool
	pos       float64
	closeOnce sync.Once
}

func (b *fakePlayback) Metadata(ctx context.Context) (MediaMetadata, error) {
	if b.p.blockMeta {
		<-ctx.Done()
		return MediaMetadata{}, ctx.Err()
	}
	return b.p.meta, b.p.metaErr
}

func (b *fakePlayback) Ready() <-chan struct{} { return b.ready }

func (b *fakePlayback) Play() error {
	if b.p.playErr != nil {
		return b.p.playErr
	}
	b.mu.Lock()
	b.playing = true
	b.mu.Unlock()

	if b.p.runtimeErr != nil {
		b.errs <- b.p.runtimeErr
	}

	go func() {
		for {
			select {
			case <-b.done:
				return
			case b.ticks <- time.Now():
			}
		}
	}()
	return nil
}

func (b *fakePlayback) Pause() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.playing = false
}

func (b *fakePlayback) Paused() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.playing
}

func (b *fakePlayback) Ended() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ended
}

func (b *fakePlayback) Position() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pos
}

func (b *fakePlayback) Frame() image.Image {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pos += b.p.step
	if b.pos >= b.p.meta.DurationSeconds {
		b.ended = true
		b.playing = false
	}
	return b.frame
}

func (b *fakePlayback) RenderTicks() <-chan time.Time { return b.ticks }

func (b *fakePlayback) Errors() <-chan error { return b.errs }

func (b *fakePlayback) Close() error {
	b.closeOnce.Do(func() {
		close(b.done)
		b.p.t.release("playback")
	})
	return nil
}

type fakeRasterizer struct {
	t       *tracker
	drawErr error

	mu    sync.Mutex
	draws int
}

func (r *fakeRasterizer) NewSurface(width, height int) (Surface, error) {
	r.t.acquire("surface")
	return &fakeSurface{r: r, bounds: image.Rect(0, 0, width, height)}, nil
}

type fakeSurface struct {
	r      *fakeRasterizer
	bounds image.Rectangle
	once   sync.Once
}

func (s *fakeSurface) Draw(image.Image) error {
	if s.r.drawErr != nil {
		return s.r.drawErr
	}
	s.r.mu.Lock()
	s.r.draws++
	s.r.mu.Unlock()
	return nil
}

func (s *fakeSurface) Capture(fps int) LiveSource {
	return fakeLive{fps: fps, bounds: s.bounds}
}

func (s *fakeSurface) Close() error {
	s.once.Do(func() { s.r.t.release("surface") })
	return nil
}

type fakeLive struct {
	fps    int
	bounds image.Rectangle
}

func (l fakeLive) Snapshot() image.Image   { return image.NewRGBA(l.bounds) }
func (l fakeLive) FrameRate() int          { return l.fps }
func (l fakeLive) Bounds() image.Rectangle { return l.bounds }

type fakeEncoders struct {
	t *tracker
	// supported lists the supported MIME types; nil supports everything.
	supported map[string]bool
	startErr  error
	sinkErr   error
	hang      bool
	// outputs holds the chunk sizes emitted per attempt; the last entry
	// repeats for later attempts.
	outputs [][]int

	mu      sync.Mutex
	configs []SinkConfig
}

func (e *fakeEncoders) Supported(mimeType string) bool {
	if e.supported == nil {
		return true
	}
	return e.supported[mimeType]
}

func (e *fakeEncoders) Start(_ context.Context, _ LiveSource, cfg SinkConfig) (Sink, error) {
	if e.startErr != nil {
		return nil, e.startErr
	}
	e.mu.Lock()
	idx := len(e.configs)
	e.configs = append(e.configs, cfg)
	e.mu.Unlock()

	var sizes []int
	if len(e.outputs) > 0 {
		sizes = e.outputs[len(e.outputs)-1]
		if idx < len(e.outputs) {
			sizes = e.outputs[idx]
		}
	}

	e.t.acquire("sink")
	s := &fakeSink{
		e:      e,
		cfg:    cfg,
		sizes:  sizes,
		chunks: make(chan []byte),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
		active: true,
	}
	if e.sinkErr != nil {
		s.errs <- e.sinkErr
	}
	return s, nil
}

func (e *fakeEncoders) started() []SinkConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]SinkConfig(nil), e.configs...)
}

type fakeSink struct {
	e      *fakeEncoders
	cfg    SinkConfig
	sizes  []int
	chunks chan []byte
	errs   chan error
	done   chan struct{}

	mu        sync.Mutex
	active    bool
	stopOnce  sync.Once
	closeOnce sync.Once
}

func (s *fakeSink) Chunks() <-chan []byte { return s.chunks }
func (s *fakeSink) Errors() <-chan error  { return s.errs }
func (s *fakeSink) MimeType() string      { return s.cfg.MimeType }

func (s *fakeSink) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *fakeSink) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.active = false
		s.mu.Unlock()
		if s.e.hang {
			return
		}
		go func() {
			for i, n := range s.sizes {
				chunk := bytes.Repeat([]byte{byte(i + 1)}, n)
				select {
				case s.chunks <- chunk:
				case <-s.done:
					return
				}
			}
			close(s.chunks)
		}()
	})
}

func (s *fakeSink) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.e.t.release("sink")
	})
	return nil
}

// fakeClock hands out timers that only fire when the test says so.
type fakeClock struct {
	t *tracker

	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	clock *fakeClock
	d     time.Duration
	c     chan time.Time
	once  sync.Once
}

func (c *fakeClock) NewTimer(d time.Duration) Timer {
	c.t.acquire("timer")
	ft := &fakeTimer{clock: c, d: d, c: make(chan time.Time, 1)}
	c.mu.Lock()
	c.timers = append(c.timers, ft)
	c.mu.Unlock()
	return ft
}

func (t *fakeTimer) C() <-chan time.Time { return t.c }

func (t *fakeTimer) Stop() bool {
	t.once.Do(func() { t.clock.t.release("timer") })
	return true
}

// fire triggers the first timer created with duration d.
func (c *fakeClock) fire(d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.timers {
		if t.d == d {
			t.c <- time.Now()
			return nil
		}
	}
	return errors.New("no timer with that duration")
}

func (c *fakeClock) has(d time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.timers {
		if t.d == d {
			return true
		}
	}
	return false
}
