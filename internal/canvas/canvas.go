// Package canvas provides in-memory rasterizer surfaces used by the frame
// relay: decoded frames are drawn onto a surface and the surface is sampled
// by the encoding sink as a live source.
package canvas

import (
	"errors"
	"image"
	"image/color"
	"sync"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"

	"video-reducer/internal/reducer"
)

// ErrClosed is returned when drawing onto a closed surface.
var ErrClosed = errors.New("surface closed")

// Rasterizer creates surfaces. A zero MaxWidth keeps the source width.
type Rasterizer struct {
	MaxWidth int
}

// New returns a rasterizer that limits surfaces to maxWidth pixels wide.
func New(maxWidth int) *Rasterizer {
	return &Rasterizer{MaxWidth: maxWidth}
}

// NewSurface creates a black surface. Dimensions are scaled down to MaxWidth
// keeping the aspect ratio and rounded down to even values, which yuv420
// encoders require.
func (r *Rasterizer) NewSurface(width, height int) (reducer.Surface, error) {
	w, h := r.Dimensions(width, height)
	if w == 0 || h == 0 {
		return nil, errors.New("surface dimensions must be positive")
	}
	return &Surface{img: imaging.New(w, h, color.Black)}, nil
}

// Dimensions returns the surface size used for a width x height source.
func (r *Rasterizer) Dimensions(width, height int) (int, int) {
	if width <= 0 || height <= 0 {
		return 0, 0
	}
	if r != nil && r.MaxWidth > 0 && width > r.MaxWidth {
		height = height * r.MaxWidth / width
		width = r.MaxWidth
	}
	return even(width), even(height)
}

func even(n int) int {
	n &^= 1
	if n < 2 {
		return 2
	}
	return n
}

// Surface is a mutex-guarded NRGBA frame buffer.
type Surface struct {
	mu     sync.RWMutex
	img    *image.NRGBA
	draws  int
	closed bool
}

// Draw copies frame onto the surface, scaling it when sizes differ.
func (s *Surface) Draw(frame image.Image) error {
	if frame == nil {
		return errors.New("nil frame")
	}

	s.mu.RLock()
	bounds := s.img.Bounds()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	src := frame
	if frame.Bounds().Size() != bounds.Size() {
		src = imaging.Resize(frame, bounds.Dx(), bounds.Dy(), imaging.Linear)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	draw.Copy(s.img, image.Point{}, src, src.Bounds(), draw.Src, nil)
	s.draws++
	return nil
}

// Draws returns how many frames have been drawn.
func (s *Surface) Draws() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.draws
}

// Capture wraps the surface as a live source.
func (s *Surface) Capture(fps int) reducer.LiveSource {
	return &liveSource{s: s, fps: fps}
}

// Close releases the frame buffer.
func (s *Surface) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type liveSource struct {
	s   *Surface
	fps int
}

func (l *liveSource) Snapshot() image.Image {
	l.s.mu.RLock()
	defer l.s.mu.RUnlock()
	return imaging.Clone(l.s.img)
}

func (l *liveSource) FrameRate() int { return l.fps }

func (l *liveSource) Bounds() image.Rectangle {
	l.s.mu.RLock()
	defer l.s.mu.RUnlock()
	return l.s.img.Bounds()
}
