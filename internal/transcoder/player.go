package transcoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"video-reducer/internal/canvas"
	"video-reducer/internal/mediatypes"
	"video-reducer/internal/reducer"
)

// errNotReady is returned by Play before the first frame is decoded.
var errNotReady = errors.New("playback not ready")

// Open implements reducer.Player. The source bytes are copied to a temporary
// file that lives exactly as long as the returned handle.
func (t *Transcoder) Open(ctx context.Context, src reducer.SourceMedia) (reducer.Playback, error) {
	f, err := os.CreateTemp(t.cfg.WorkDir, "reduce-*"+mediatypes.ExtensionFor(src.MimeType, src.Name))
	if err != nil {
		return nil, fmt.Errorf("failed to create playback file: %w", err)
	}
	path := f.Name()

	_, writeErr := f.Write(src.Data)
	closeErr := f.Close()
	if writeErr != nil || closeErr != nil {
		if err := os.Remove(path); err != nil {
			t.log.Warn("failed to remove playback file %s: %v", path, err)
		}
		return nil, fmt.Errorf("failed to write playback file: %w", errors.Join(writeErr, closeErr))
	}

	pctx, cancel := context.WithCancel(ctx)
	return &playback{
		t:      t,
		path:   path,
		ctx:    pctx,
		cancel: cancel,
		ready:  make(chan struct{}),
		errs:   make(chan error, 1),
		ticker: time.NewTicker(time.Second / time.Duration(t.cfg.DisplayRate)),
	}, nil
}

// playback decodes a source to raw RGBA frames, paced to wall-clock time
// once Play is called.
type playback struct {
	t      *Transcoder
	path   string
	ctx    context.Context
	cancel context.CancelFunc
	ready  chan struct{}
	errs   chan error
	ticker *time.Ticker
	wg     sync.WaitGroup

	probeOnce sync.Once
	info      *VideoInfo
	probeErr  error

	startOnce sync.Once
	cmd       *exec.Cmd
	procID    string
	stdout    io.Reader
	stderr    bytes.Buffer
	waitOnce  sync.Once
	waitErr   error
	width     int
	height    int
	interval  time.Duration

	mu      sync.Mutex
	frame   *image.NRGBA
	index   int
	playing bool
	ended   bool
	pauseCh chan struct{}
	paceEnd chan struct{} // closed when the current pace goroutine exits

	closeOnce sync.Once
}

func (p *playback) probe(ctx context.Context) (*VideoInfo, error) {
	p.probeOnce.Do(func() {
		p.info, p.probeErr = p.t.ProbeFile(ctx, p.path)
	})
	return p.info, p.probeErr
}

func (p *playback) Metadata(ctx context.Context) (reducer.MediaMetadata, error) {
	info, err := p.probe(ctx)
	if err != nil {
		return reducer.MediaMetadata{}, err
	}
	if info.Width < 0 || info.Height < 0 {
		return reducer.MediaMetadata{}, fmt.Errorf("invalid dimensions %dx%d", info.Width, info.Height)
	}
	return reducer.MediaMetadata{
		DurationSeconds: info.Duration,
		Width:           uint32(info.Width),
		Height:          uint32(info.Height),
	}, nil
}

// Ready starts the decoder on first use.
func (p *playback) Ready() <-chan struct{} {
	p.startOnce.Do(func() {
		p.wg.Add(1)
		go p.prepare()
	})
	return p.ready
}

func (p *playback) prepare() {
	defer p.wg.Done()

	info, err := p.probe(p.ctx)
	if err != nil {
		p.fail(err)
		return
	}

	p.width, p.height = canvas.New(p.t.cfg.MaxWidth).Dimensions(info.Width, info.Height)
	if p.width == 0 {
		p.fail(fmt.Errorf("invalid dimensions %dx%d", info.Width, info.Height))
		return
	}
	p.interval = time.Duration(float64(time.Second) / info.FrameRate)

	cmd := exec.CommandContext(p.ctx, p.t.cfg.FFmpegPath, decodeArgs(p.path, p.width, p.height)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		p.fail(fmt.Errorf("failed to create stdout pipe: %w", err))
		return
	}
	cmd.Stderr = &p.stderr

	if err := cmd.Start(); err != nil {
		p.fail(fmt.Errorf("failed to start ffmpeg decoder: %w", err))
		return
	}
	p.mu.Lock()
	p.cmd = cmd
	p.stdout = stdout
	p.mu.Unlock()
	p.procID = p.t.track(cmd)

	frame, err := p.readFrame()
	if err != nil {
		if p.ctx.Err() == nil {
			_ = p.finish()
			p.fail(fmt.Errorf("decoder produced no frames: %w - %s", err, strings.TrimSpace(p.stderr.String())))
		}
		return
	}

	p.mu.Lock()
	p.frame = frame
	p.mu.Unlock()
	close(p.ready)
}

func (p *playback) readFrame() (*image.NRGBA, error) {
	buf := make([]byte, p.width*p.height*4)
	if _, err := io.ReadFull(p.stdout, buf); err != nil {
		return nil, err
	}
	return &image.NRGBA{Pix: buf, Stride: p.width * 4, Rect: image.Rect(0, 0, p.width, p.height)}, nil
}

func (p *playback) finish() error {
	p.waitOnce.Do(func() {
		p.waitErr = p.cmd.Wait()
	})
	return p.waitErr
}

func (p *playback) Play() error {
	select {
	case <-p.ready:
	default:
		return errNotReady
	}

	p.mu.Lock()
	if p.playing || p.ended {
		p.mu.Unlock()
		return nil
	}
	prev := p.paceEnd
	p.mu.Unlock()

	// A paused pace can still be inside readFrame. Only one goroutine may
	// read the decoder output at a time.
	if prev != nil {
		select {
		case <-prev:
		case <-p.ctx.Done():
			return p.ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playing || p.ended || p.paceEnd != prev {
		return nil
	}
	p.playing = true
	p.pauseCh = make(chan struct{})
	p.paceEnd = make(chan struct{})
	p.wg.Add(1)
	go p.pace(p.pauseCh, p.paceEnd, p.index)
	return nil
}

// pace reads one frame per source frame interval.
func (p *playback) pace(pause <-chan struct{}, done chan<- struct{}, base int) {
	defer p.wg.Done()
	defer close(done)

	start := time.Now()
	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	for i := 1; ; i++ {
		timer.Reset(time.Until(start.Add(time.Duration(i) * p.interval)))
		select {
		case <-p.ctx.Done():
			return
		case <-pause:
			return
		case <-timer.C:
		}
		select {
		case <-pause:
			return
		default:
		}

		frame, err := p.readFrame()
		if err != nil {
			if p.ctx.Err() != nil {
				return
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				if werr := p.finish(); werr != nil {
					p.fail(fmt.Errorf("decoder failed: %w - %s", werr, strings.TrimSpace(p.stderr.String())))
				}
				p.mu.Lock()
				p.ended = true
				p.playing = false
				p.mu.Unlock()
				return
			}
			p.fail(fmt.Errorf("failed to read frame: %w", err))
			return
		}

		p.mu.Lock()
		p.frame = frame
		p.index = base + i
		p.mu.Unlock()
	}
}

func (p *playback) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playing {
		p.playing = false
		close(p.pauseCh)
	}
}

func (p *playback) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.playing
}

func (p *playback) Ended() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ended
}

func (p *playback) Position() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return float64(p.index) * p.interval.Seconds()
}

func (p *playback) Frame() image.Image {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.frame == nil {
		return nil
	}
	return p.frame
}

func (p *playback) RenderTicks() <-chan time.Time {
	return p.ticker.C
}

func (p *playback) Errors() <-chan error {
	return p.errs
}

func (p *playback) fail(err error) {
	select {
	case p.errs <- err:
	default:
	}
}

// Close stops the decoder and removes the playback file.
func (p *playback) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.cancel()
		p.ticker.Stop()
		p.wg.Wait()

		p.mu.Lock()
		cmd := p.cmd
		p.mu.Unlock()
		if cmd != nil {
			_ = p.finish()
			p.t.untrack(p.procID)
		}

		if rmErr := os.Remove(p.path); rmErr != nil && !os.IsNotExist(rmErr) {
			err = fmt.Errorf("failed to remove playback file: %w", rmErr)
		}
	})
	return err
}

func decodeArgs(path string, width, height int) []string {
	return []string{
		"-hide_banner",
		"-v", "error",
		"-nostdin",
		"-i", path,
		"-an", "-sn",
		"-vf", fmt.Sprintf("scale=%d:%d", width, height),
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-",
	}
}
