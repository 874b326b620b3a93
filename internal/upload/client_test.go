package upload

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"video-reducer/internal/metrics"
)

type captured struct {
	path     string
	preset   string
	folder   string
	fileName string
	fileType string
	data     []byte
}

// newHost starts a fake media host that records the last request and
// answers with status and body.
func newHost(t *testing.T, status int, body string) (*httptest.Server, func() captured) {
	t.Helper()
	var mu sync.Mutex
	var last captured

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
		}

		c := captured{
			path:   r.URL.Path,
			preset: r.FormValue("upload_preset"),
			folder: r.FormValue("folder"),
		}
		if f, hdr, err := r.FormFile("file"); err == nil {
			c.fileName = hdr.Filename
			c.fileType = hdr.Header.Get("Content-Type")
			c.data, _ = io.ReadAll(f)
			f.Close()
		}

		mu.Lock()
		last = c
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)

	return srv, func() captured {
		mu.Lock()
		defer mu.Unlock()
		return last
	}
}

const okBody = `{"public_id":"nelf/videos/abc","url":"http://res.example/abc.webm","secure_url":"https://res.example/abc.webm","width":640,"height":360,"format":"webm","bytes":4096}`

func TestUploadAutoDetectsResourceType(t *testing.T) {
	tests := []struct {
		mime     string
		wantPath string
	}{
		{"video/webm", "/demo/video/upload"},
		{"video/mp4; codecs=avc1", "/demo/video/upload"},
		{"image/png", "/demo/image/upload"},
		{"application/pdf", "/demo/image/upload"},
		{"", "/demo/image/upload"},
	}

	for _, tt := range tests {
		t.Run(tt.mime, func(t *testing.T) {
			srv, last := newHost(t, http.StatusOK, okBody)
			c := New(Config{BaseURL: srv.URL, CloudName: "demo"}, srv.Client())

			if _, err := c.Upload(context.Background(), File{Name: "f", MimeType: tt.mime, Data: []byte("x")}, "", "auto"); err != nil {
				t.Fatalf("Upload: %v", err)
			}
			if got := last().path; got != tt.wantPath {
				t.Errorf("path = %q, want %q", got, tt.wantPath)
			}
		})
	}
}

func TestUploadSendsFormFields(t *testing.T) {
	srv, last := newHost(t, http.StatusOK, okBody)
	c := New(Config{BaseURL: srv.URL + "/", CloudName: "demo", Preset: "custom"}, srv.Client())

	res, err := c.UploadVideo(context.Background(), File{Name: "clip.webm", MimeType: "video/webm", Data: []byte("webm-bytes")}, "")
	if err != nil {
		t.Fatalf("UploadVideo: %v", err)
	}

	got := last()
	if got.path != "/demo/video/upload" {
		t.Errorf("path = %q", got.path)
	}
	if got.preset != "custom" {
		t.Errorf("upload_preset = %q, want custom", got.preset)
	}
	if got.folder != DefaultVideoFolder {
		t.Errorf("folder = %q, want %q", got.folder, DefaultVideoFolder)
	}
	if got.fileName != "clip.webm" || got.fileType != "video/webm" || string(got.data) != "webm-bytes" {
		t.Errorf("file part = %q %q %q", got.fileName, got.fileType, got.data)
	}

	want := Result{
		URL:       "https://res.example/abc.webm",
		PublicID:  "nelf/videos/abc",
		SecureURL: "https://res.example/abc.webm",
		Width:     640,
		Height:    360,
		Format:    "webm",
		Bytes:     4096,
	}
	if *res != want {
		t.Errorf("result = %+v, want %+v", *res, want)
	}
}

func TestUploadImageDefaults(t *testing.T) {
	srv, last := newHost(t, http.StatusOK, `{"public_id":"p","url":"http://res.example/p.png"}`)
	c := New(Config{BaseURL: srv.URL, CloudName: "demo"}, srv.Client())

	res, err := c.UploadImage(context.Background(), File{Name: "flyer.png", MimeType: "image/png", Data: []byte("png")}, "")
	if err != nil {
		t.Fatalf("UploadImage: %v", err)
	}

	got := last()
	if got.folder != DefaultImageFolder || got.preset != DefaultPreset {
		t.Errorf("folder/preset = %q/%q", got.folder, got.preset)
	}
	if res.URL != "http://res.example/p.png" {
		t.Errorf("URL = %q, want the plain url when secure_url is missing", res.URL)
	}
	if res.SecureURL != "" {
		t.Errorf("SecureURL = %q, want empty", res.SecureURL)
	}
}

func TestUploadExplicitFolder(t *testing.T) {
	srv, last := newHost(t, http.StatusOK, okBody)
	c := New(Config{BaseURL: srv.URL, CloudName: "demo"}, srv.Client())

	if _, err := c.Upload(context.Background(), File{Name: "a", MimeType: "video/mp4"}, "events/2024", ""); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if got := last().folder; got != "events/2024" {
		t.Errorf("folder = %q", got)
	}

	if _, err := c.Upload(context.Background(), File{Name: "a", MimeType: "video/mp4"}, "", ""); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if got := last().folder; got != DefaultFolder {
		t.Errorf("folder = %q, want %q", got, DefaultFolder)
	}
}

func TestUploadErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"host message", http.StatusBadRequest, `{"error":{"message":"Upload preset not found"}}`, "Upload preset not found"},
		{"empty message", http.StatusBadRequest, `{"error":{"message":""}}`, "Upload failed"},
		{"non json", http.StatusBadGateway, `<html>bad gateway</html>`, "Upload failed"},
		{"no error object", http.StatusUnauthorized, `{}`, "Upload failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newHost(t, tt.status, tt.body)
			c := New(Config{BaseURL: srv.URL, CloudName: "demo"}, srv.Client())

			_, err := c.Upload(context.Background(), File{Name: "a", MimeType: "image/png"}, "", "")
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("err = %v, want *APIError", err)
			}
			if apiErr.StatusCode != tt.status || apiErr.Message != tt.wantMsg {
				t.Errorf("APIError = %+v, want %d %q", apiErr, tt.status, tt.wantMsg)
			}
		})
	}
}

func TestUploadMalformedSuccessBody(t *testing.T) {
	srv, _ := newHost(t, http.StatusOK, `not json`)
	c := New(Config{BaseURL: srv.URL, CloudName: "demo"}, srv.Client())

	_, err := c.Upload(context.Background(), File{Name: "a", MimeType: "image/png"}, "", "")
	if err == nil || !strings.Contains(err.Error(), "decode upload response") {
		t.Errorf("err = %v, want a decode error", err)
	}
}

func TestUploadNotConfigured(t *testing.T) {
	c := New(Config{}, nil)
	if c.Configured() {
		t.Error("Configured() = true without a cloud name")
	}
	_, err := c.Upload(context.Background(), File{Name: "a"}, "", "")
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
}

func TestUploadContextCanceled(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	c := New(Config{BaseURL: srv.URL, CloudName: "demo"}, srv.Client())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Upload(ctx, File{Name: "a", MimeType: "video/mp4"}, "", "")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestUploadRecordsMetrics(t *testing.T) {
	srv, _ := newHost(t, http.StatusInternalServerError, `{}`)
	c := New(Config{BaseURL: srv.URL, CloudName: "demo"}, srv.Client())

	counter := metrics.UploadsTotal.WithLabelValues("video", "error")
	before := testutil.ToFloat64(counter)

	_, _ = c.UploadVideo(context.Background(), File{Name: "a", MimeType: "video/webm"}, "")

	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("error counter delta = %v, want 1", got)
	}
}

func TestNewDefaults(t *testing.T) {
	c := New(Config{CloudName: "demo"}, nil)
	if c.Endpoint("video") != DefaultBaseURL+"/demo/video/upload" {
		t.Errorf("Endpoint = %q", c.Endpoint("video"))
	}
	if c.cfg.Preset != DefaultPreset {
		t.Errorf("Preset = %q", c.cfg.Preset)
	}
	if c.http.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v", c.http.Timeout)
	}
}
