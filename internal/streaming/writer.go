package streaming

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"video-reducer/internal/logging"
)

// Sentinel errors for streaming operations.
var (
	// ErrWriteTimeout indicates that a single write exceeded the configured
	// timeout, typically because the client reads too slowly.
	ErrWriteTimeout = errors.New("write timeout exceeded")

	// ErrClientGone indicates that the client disconnected before the
	// response completed.
	ErrClientGone = errors.New("client disconnected")

	// ErrStreamCanceled indicates that the writer was closed.
	ErrStreamCanceled = errors.New("stream canceled")
)

// TimeoutWriterConfig configures the timeout writer behavior
type TimeoutWriterConfig struct {
	// WriteTimeout bounds each chunk write
	WriteTimeout time.Duration
	// ChunkSize splits large writes; 0 writes as received
	ChunkSize int
}

// DefaultTimeoutWriterConfig returns sensible defaults
func DefaultTimeoutWriterConfig() TimeoutWriterConfig {
	return TimeoutWriterConfig{
		WriteTimeout: 30 * time.Second,
		ChunkSize:    64 * 1024,
	}
}

// TimeoutWriter wraps an http.ResponseWriter with timeout protection
type TimeoutWriter struct {
	w            http.ResponseWriter
	ctx          context.Context
	cancel       context.CancelFunc
	config       TimeoutWriterConfig
	flusher      http.Flusher
	startTime    time.Time
	mu           sync.Mutex
	bytesWritten int64
	closed       bool
}

// NewTimeoutWriter creates a new timeout-protected writer
func NewTimeoutWriter(ctx context.Context, w http.ResponseWriter, config TimeoutWriterConfig) *TimeoutWriter {
	writerCtx, cancel := context.WithCancel(ctx)
	tw := &TimeoutWriter{
		w:         w,
		ctx:       writerCtx,
		cancel:    cancel,
		config:    config,
		startTime: time.Now(),
	}
	if flusher, ok := w.(http.Flusher); ok {
		tw.flusher = flusher
	}
	return tw
}

// Write implements io.Writer, splitting p into chunks that are each bounded
// by WriteTimeout.
func (tw *TimeoutWriter) Write(p []byte) (int, error) {
	tw.mu.Lock()
	closed := tw.closed
	tw.mu.Unlock()
	if closed {
		return 0, ErrStreamCanceled
	}

	total := 0
	for len(p) > 0 {
		if err := tw.ctx.Err(); err != nil {
			return total, tw.contextError()
		}

		size := len(p)
		if tw.config.ChunkSize > 0 && size > tw.config.ChunkSize {
			size = tw.config.ChunkSize
		}

		n, err := tw.writeWithTimeout(p[:size])
		total += n
		if err != nil {
			return total, err
		}
		p = p[size:]

		if tw.flusher != nil {
			tw.flusher.Flush()
		}
	}
	return total, nil
}

// writeWithTimeout performs a single write with timeout
func (tw *TimeoutWriter) writeWithTimeout(p []byte) (int, error) {
	type writeResult struct {
		n   int
		err error
	}
	resultCh := make(chan writeResult, 1)

	go func() {
		n, err := tw.w.Write(p)
		resultCh <- writeResult{n, err}
	}()

	var timeout <-chan time.Time
	if tw.config.WriteTimeout > 0 {
		timer := time.NewTimer(tw.config.WriteTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case result := <-resultCh:
		tw.mu.Lock()
		tw.bytesWritten += int64(result.n)
		tw.mu.Unlock()
		return result.n, result.err

	case <-timeout:
		tw.cancel()
		return 0, ErrWriteTimeout

	case <-tw.ctx.Done():
		return 0, tw.contextError()
	}
}

// contextError maps the writer context state to a sentinel.
func (tw *TimeoutWriter) contextError() error {
	tw.mu.Lock()
	closed := tw.closed
	tw.mu.Unlock()
	if closed {
		return ErrStreamCanceled
	}
	return ErrClientGone
}

// Close marks the writer as closed
func (tw *TimeoutWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if !tw.closed {
		tw.closed = true
		tw.cancel()
	}
	return nil
}

// Stats returns streaming statistics
func (tw *TimeoutWriter) Stats() (bytesWritten int64, duration time.Duration) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.bytesWritten, time.Since(tw.startTime)
}

// StreamWithTimeout copies r to the response with timeout protection.
func StreamWithTimeout(ctx context.Context, w http.ResponseWriter, r io.Reader, config TimeoutWriterConfig) error {
	tw := NewTimeoutWriter(ctx, w, config)
	defer func() {
		if err := tw.Close(); err != nil {
			logging.Warn("Failed to close timeout writer: %v", err)
		}
	}()

	_, err := io.Copy(tw, r)

	bytesWritten, duration := tw.Stats()
	logging.Debug("Stream completed: %d bytes in %v", bytesWritten, duration)
	return err
}

// WriteBlob sends an in-memory media blob with its length and content type
// set, bounded by the writer timeouts.
func WriteBlob(ctx context.Context, w http.ResponseWriter, data []byte, contentType string, config TimeoutWriterConfig) error {
	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Content-Length", strconv.Itoa(len(data)))
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	return StreamWithTimeout(ctx, w, bytes.NewReader(data), config)
}
