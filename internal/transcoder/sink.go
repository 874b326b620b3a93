package transcoder

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/image/draw"

	"video-reducer/internal/reducer"
)

// outputFormat describes how a MIME type is produced by FFmpeg.
type outputFormat struct {
	encoder string
	muxer   string
	args    []string
}

var outputFormats = map[string]outputFormat{
	"video/webm;codecs=vp9,opus": {
		encoder: "libvpx-vp9",
		muxer:   "webm",
		args:    []string{"-deadline", "realtime", "-cpu-used", "8", "-row-mt", "1"},
	},
	"video/webm;codecs=vp8,opus": {
		encoder: "libvpx",
		muxer:   "webm",
		args:    []string{"-deadline", "realtime", "-cpu-used", "8"},
	},
	"video/webm;codecs=vp8": {
		encoder: "libvpx",
		muxer:   "webm",
		args:    []string{"-deadline", "realtime", "-cpu-used", "8"},
	},
	"video/webm": {
		encoder: "libvpx",
		muxer:   "webm",
		args:    []string{"-deadline", "realtime", "-cpu-used", "8"},
	},
	"video/mp4": {
		encoder: "libx264",
		muxer:   "mp4",
		// Fragmented output so the muxer never needs to seek on a pipe.
		args: []string{"-preset", "veryfast", "-tune", "zerolatency", "-movflags", "frag_keyframe+empty_moov+default_base_moof"},
	},
}

func normalizeMime(mimeType string) string {
	return strings.ReplaceAll(strings.ToLower(mimeType), " ", "")
}

// Supported implements reducer.Encoders.
func (t *Transcoder) Supported(mimeType string) bool {
	f, ok := outputFormats[normalizeMime(mimeType)]
	if !ok {
		return false
	}
	return t.availableEncoders()[f.encoder]
}

// availableEncoders lists the video encoders compiled into FFmpeg. The list
// is read once per Transcoder.
func (t *Transcoder) availableEncoders() map[string]bool {
	t.encodersOnce.Do(func() {
		out, err := exec.Command(t.cfg.FFmpegPath, "-hide_banner", "-encoders").Output()
		if err != nil {
			t.encodersErr = err
			t.encoders = map[string]bool{}
			t.log.Warn("Failed to list ffmpeg encoders, reduction is unavailable: %v", err)
			return
		}
		t.encoders = parseEncoderList(out)
		t.log.Debug("ffmpeg reports %d video encoders", len(t.encoders))
	})
	return t.encoders
}

// parseEncoderList parses the output of "ffmpeg -encoders", keeping only video
// encoders.
//
//	V....D libx264              libx264 H.264 / AVC / MPEG-4 AVC
func parseEncoderList(out []byte) map[string]bool {
	encoders := make(map[string]bool)
	scanner := bufio.NewScanner(bytes.NewReader(out))
	listing := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !listing {
			listing = strings.HasPrefix(line, "---")
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 || !strings.HasPrefix(fields[0], "V") {
			continue
		}
		encoders[fields[1]] = true
	}
	return encoders
}

// Start implements reducer.Encoders. The returned sink samples src at the
// configured frame rate and pipes raw frames into FFmpeg.
func (t *Transcoder) Start(ctx context.Context, src reducer.LiveSource, cfg reducer.SinkConfig) (reducer.Sink, error) {
	f, ok := outputFormats[normalizeMime(cfg.MimeType)]
	if !ok {
		return nil, fmt.Errorf("unsupported encoding %q", cfg.MimeType)
	}
	if cfg.FrameRate <= 0 {
		return nil, fmt.Errorf("invalid frame rate %d", cfg.FrameRate)
	}
	if cfg.Timeslice <= 0 {
		cfg.Timeslice = reducer.DefaultTimeslice
	}

	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid source bounds %v", bounds)
	}

	sctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(sctx, t.cfg.FFmpegPath, encodeArgs(f, width, height, cfg)...)

	s := &sink{
		t:      t,
		src:    src,
		cfg:    cfg,
		width:  width,
		height: height,
		ctx:    sctx,
		cancel: cancel,
		cmd:    cmd,
		chunks: make(chan []byte, 4),
		errs:   make(chan error, 1),
		stopCh: make(chan struct{}),
	}
	cmd.Stderr = &s.stderr

	var err error
	if s.stdin, err = cmd.StdinPipe(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	if s.stdout, err = cmd.StdoutPipe(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start ffmpeg encoder: %w", err)
	}

	s.procID = t.track(cmd)
	s.active.Store(true)
	t.log.Debug("Started %s encoder %dx%d@%dfps %d bps (pid %d)",
		f.encoder, width, height, cfg.FrameRate, cfg.BitrateBps, cmd.Process.Pid)

	s.wg.Add(2)
	go s.feed()
	go s.drain()
	return s, nil
}

func encodeArgs(f outputFormat, width, height int, cfg reducer.SinkConfig) []string {
	bitrate := strconv.FormatUint(cfg.BitrateBps, 10)
	args := []string{
		"-hide_banner",
		"-v", "error",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", width, height),
		"-r", strconv.Itoa(cfg.FrameRate),
		"-i", "-",
		"-an",
		"-c:v", f.encoder,
		"-b:v", bitrate,
		"-maxrate", bitrate,
		"-bufsize", strconv.FormatUint(cfg.BitrateBps*2, 10),
		"-pix_fmt", "yuv420p",
	}
	args = append(args, f.args...)
	return append(args, "-f", f.muxer, "-")
}

// sink is a running FFmpeg encoder fed from a live source.
type sink struct {
	t      *Transcoder
	src    reducer.LiveSource
	cfg    reducer.SinkConfig
	width  int
	height int

	ctx    context.Context
	cancel context.CancelFunc
	cmd    *exec.Cmd
	procID string
	stdin  io.WriteCloser
	stdout io.Reader
	stderr bytes.Buffer

	chunks chan []byte
	errs   chan error
	stopCh chan struct{}
	wg     sync.WaitGroup
	active atomic.Bool

	stopOnce  sync.Once
	closeOnce sync.Once
	waitOnce  sync.Once
	waitErr   error
}

// feed writes one snapshot per frame interval until stopped. Closing stdin
// tells FFmpeg to finalize the container.
func (s *sink) feed() {
	defer s.wg.Done()
	defer func() {
		if err := s.stdin.Close(); err != nil && s.ctx.Err() == nil {
			s.t.log.Debug("closing encoder stdin: %v", err)
		}
	}()

	ticker := time.NewTicker(time.Second / time.Duration(s.cfg.FrameRate))
	defer ticker.Stop()

	buf := make([]byte, s.width*s.height*4)
	for {
		select {
		case <-s.stopCh:
			return
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}

		if _, err := s.stdin.Write(pixels(s.src.Snapshot(), buf, s.width, s.height)); err != nil {
			if s.ctx.Err() == nil {
				s.fail(fmt.Errorf("failed to write frame: %w", err))
			}
			return
		}
	}
}

// pixels returns tightly packed RGBA bytes for img, converting through buf
// when img is not already an NRGBA image of the expected size.
func pixels(img image.Image, buf []byte, width, height int) []byte {
	rect := image.Rect(0, 0, width, height)
	if n, ok := img.(*image.NRGBA); ok && n.Rect == rect && n.Stride == width*4 {
		return n.Pix
	}

	dst := &image.NRGBA{Pix: buf, Stride: width * 4, Rect: rect}
	if img == nil {
		clear(buf)
		return buf
	}
	draw.Draw(dst, rect, img, img.Bounds().Min, draw.Src)
	return buf
}

// drain collects encoder output and emits it every timeslice and once more
// at EOF. Errors are reported before the chunk stream closes.
func (s *sink) drain() {
	defer s.wg.Done()
	defer close(s.chunks)

	var pending bytes.Buffer
	last := time.Now()
	buf := make([]byte, 64*1024)

	for {
		n, err := s.stdout.Read(buf)
		if n > 0 {
			pending.Write(buf[:n])
		}
		if pending.Len() > 0 && (err != nil || time.Since(last) >= s.cfg.Timeslice) {
			if !s.emit(bytes.Clone(pending.Bytes())) {
				return
			}
			pending.Reset()
			last = time.Now()
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && s.ctx.Err() == nil {
				s.fail(fmt.Errorf("failed to read encoder output: %w", err))
			}
			break
		}
	}

	if err := s.finish(); err != nil && s.ctx.Err() == nil {
		s.fail(fmt.Errorf("ffmpeg encoder exited: %w - %s", err, strings.TrimSpace(s.stderr.String())))
	}
	s.active.Store(false)
}

func (s *sink) emit(chunk []byte) bool {
	select {
	case s.chunks <- chunk:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *sink) fail(err error) {
	select {
	case s.errs <- err:
	default:
	}
}

func (s *sink) finish() error {
	s.waitOnce.Do(func() {
		s.waitErr = s.cmd.Wait()
	})
	return s.waitErr
}

func (s *sink) Chunks() <-chan []byte { return s.chunks }

func (s *sink) Errors() <-chan error { return s.errs }

// Stop asks the encoder to finalize. Remaining output still arrives on Chunks.
func (s *sink) Stop() {
	s.stopOnce.Do(func() {
		s.active.Store(false)
		close(s.stopCh)
	})
}

func (s *sink) Active() bool { return s.active.Load() }

func (s *sink) MimeType() string { return s.cfg.MimeType }

// Close kills the encoder if it is still running and waits for it to exit.
func (s *sink) Close() error {
	s.closeOnce.Do(func() {
		s.Stop()
		s.cancel()
		s.wg.Wait()
		_ = s.finish()
		s.t.untrack(s.procID)
	})
	return nil
}

// Available reports whether FFmpeg could be queried for encoders.
func (t *Transcoder) Available() error {
	t.availableEncoders()
	return t.encodersErr
}
