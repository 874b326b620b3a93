package streaming

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestDefaultTimeoutWriterConfig(t *testing.T) {
	config := DefaultTimeoutWriterConfig()

	if config.WriteTimeout != 30*time.Second {
		t.Errorf("Expected WriteTimeout=30s, got %v", config.WriteTimeout)
	}
	if config.ChunkSize != 64*1024 {
		t.Errorf("Expected ChunkSize=64KB, got %d", config.ChunkSize)
	}
}

// countingRecorder counts Write calls on top of httptest.ResponseRecorder.
type countingRecorder struct {
	*httptest.ResponseRecorder
	writes atomic.Int32
}

func (c *countingRecorder) Write(p []byte) (int, error) {
	c.writes.Add(1)
	return c.ResponseRecorder.Write(p)
}

func TestWriteChunks(t *testing.T) {
	rec := &countingRecorder{ResponseRecorder: httptest.NewRecorder()}
	tw := NewTimeoutWriter(context.Background(), rec, TimeoutWriterConfig{WriteTimeout: time.Second, ChunkSize: 4})
	defer tw.Close()

	n, err := tw.Write([]byte("0123456789"))
	if err != nil || n != 10 {
		t.Fatalf("Write() = %d, %v; want 10, nil", n, err)
	}
	if got := rec.writes.Load(); got != 3 {
		t.Errorf("underlying writes = %d, want 3", got)
	}
	if rec.Body.String() != "0123456789" {
		t.Errorf("body = %q", rec.Body.String())
	}
	if written, _ := tw.Stats(); written != 10 {
		t.Errorf("Stats() bytes = %d, want 10", written)
	}
}

func TestWriteAfterClose(t *testing.T) {
	tw := NewTimeoutWriter(context.Background(), httptest.NewRecorder(), DefaultTimeoutWriterConfig())
	if err := tw.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if _, err := tw.Write([]byte("x")); !errors.Is(err, ErrStreamCanceled) {
		t.Errorf("Write() error = %v, want ErrStreamCanceled", err)
	}
}

func TestWriteClientGone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tw := NewTimeoutWriter(ctx, httptest.NewRecorder(), DefaultTimeoutWriterConfig())
	defer tw.Close()

	if _, err := tw.Write([]byte("x")); !errors.Is(err, ErrClientGone) {
		t.Errorf("Write() error = %v, want ErrClientGone", err)
	}
}

// blockingWriter never completes a write until released.
type blockingWriter struct {
	header  http.Header
	release chan struct{}
}

func (b *blockingWriter) Header() http.Header { return b.header }
func (b *blockingWriter) WriteHeader(int)     {}
func (b *blockingWriter) Write(p []byte) (int, error) {
	<-b.release
	return len(p), nil
}

func TestWriteTimeout(t *testing.T) {
	bw := &blockingWriter{header: http.Header{}, release: make(chan struct{})}
	defer close(bw.release)

	tw := NewTimeoutWriter(context.Background(), bw, TimeoutWriterConfig{WriteTimeout: 20 * time.Millisecond})
	defer tw.Close()

	start := time.Now()
	_, err := tw.Write([]byte("stalled"))
	if !errors.Is(err, ErrWriteTimeout) {
		t.Fatalf("Write() error = %v, want ErrWriteTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Write() took %v, want about 20ms", elapsed)
	}
}

func TestStreamWithTimeout(t *testing.T) {
	rec := httptest.NewRecorder()
	data := strings.Repeat("a", 200*1024)

	if err := StreamWithTimeout(context.Background(), rec, strings.NewReader(data), DefaultTimeoutWriterConfig()); err != nil {
		t.Fatalf("StreamWithTimeout() error = %v", err)
	}
	if rec.Body.Len() != len(data) {
		t.Errorf("body length = %d, want %d", rec.Body.Len(), len(data))
	}
}

func TestWriteBlob(t *testing.T) {
	rec := httptest.NewRecorder()
	data := bytes.Repeat([]byte{0x1a, 0x45, 0xdf, 0xa3}, 1000)

	if err := WriteBlob(context.Background(), rec, data, "video/webm", DefaultTimeoutWriterConfig()); err != nil {
		t.Fatalf("WriteBlob() error = %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "video/webm" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := rec.Header().Get("Content-Length"); got != "4000" {
		t.Errorf("Content-Length = %q, want 4000", got)
	}
	if !bytes.Equal(rec.Body.Bytes(), data) {
		t.Error("body does not match blob")
	}
}
