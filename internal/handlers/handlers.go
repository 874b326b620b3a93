package handlers

import (
	"context"
	"sync/atomic"
	"time"

	"video-reducer/internal/database"
	"video-reducer/internal/events"
	"video-reducer/internal/reducer"
	"video-reducer/internal/startup"
	"video-reducer/internal/streaming"
	"video-reducer/internal/upload"
)

// Reducer runs a reduction request.
type Reducer interface {
	Reduce(ctx context.Context, src reducer.SourceMedia) (*reducer.Result, error)
	Ceiling() uint64
}

// History stores finished reductions.
type History interface {
	RecordReduction(ctx context.Context, r *database.Reduction) error
	ListReductions(ctx context.Context, limit, offset int) (*database.ReductionPage, error)
	GetReduction(ctx context.Context, id string) (*database.Reduction, error)
}

// Uploader posts files to the media host.
type Uploader interface {
	Configured() bool
	UploadImage(ctx context.Context, f upload.File, folder string) (*upload.Result, error)
	UploadVideo(ctx context.Context, f upload.File, folder string) (*upload.Result, error)
}

// MemoryGate holds back new reductions under memory pressure.
type MemoryGate interface {
	Wait(ctx context.Context) error
}

// Handlers holds the dependencies of the HTTP handlers. history, uploader
// and hub may be nil; the routes that need them then answer 503.
type Handlers struct {
	reducer  Reducer
	history  History
	uploader Uploader
	hub      *events.Hub

	maxRequestSize int64
	stream         streaming.TimeoutWriterConfig
	readiness      func() error
	slots          chan struct{}
	memory         MemoryGate

	startTime  time.Time
	inProgress atomic.Int64
}

// New creates the handlers.
func New(red Reducer, history History, uploader Uploader, hub *events.Hub, config *startup.Config) *Handlers {
	maxRequest := int64(startup.DefaultMaxRequestSize)
	if config != nil && config.MaxRequestSize > 0 {
		maxRequest = config.MaxRequestSize
	}
	return &Handlers{
		reducer:        red,
		history:        history,
		uploader:       uploader,
		hub:            hub,
		maxRequestSize: maxRequest,
		stream:         streaming.DefaultTimeoutWriterConfig(),
		startTime:      time.Now(),
	}
}

// SetReadinessCheck installs the check behind /readyz and /health, usually
// the transcoder's ffmpeg availability.
func (h *Handlers) SetReadinessCheck(check func() error) {
	h.readiness = check
}

// SetConcurrency limits how many reductions run at once; later requests
// wait for a slot or for their context to end. n <= 0 removes the limit.
func (h *Handlers) SetConcurrency(n int) {
	if n <= 0 {
		h.slots = nil
		return
	}
	h.slots = make(chan struct{}, n)
}

// SetMemoryGate makes new reductions wait while g reports memory pressure.
func (h *Handlers) SetMemoryGate(g MemoryGate) {
	h.memory = g
}

// acquire waits for a reduction slot and for memory headroom. The returned
// func releases the slot.
func (h *Handlers) acquire(ctx context.Context) (func(), error) {
	release := func() {}
	if h.slots != nil {
		select {
		case h.slots <- struct{}{}:
			release = func() { <-h.slots }
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if h.memory != nil {
		if err := h.memory.Wait(ctx); err != nil {
			release()
			return nil, err
		}
	}
	return release, nil
}

func (h *Handlers) ready() error {
	if h.readiness == nil {
		return nil
	}
	return h.readiness()
}
