package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"video-reducer/internal/logging"
	"video-reducer/internal/mediatypes"
	"video-reducer/internal/metrics"
)

const (
	DefaultBaseURL     = "https://api.cloudinary.com/v1_1"
	DefaultPreset      = "nelf_uploads"
	DefaultFolder      = "nelf"
	DefaultImageFolder = "nelf/flyers"
	DefaultVideoFolder = "nelf/videos"
	DefaultTimeout     = 2 * time.Minute

	// maxResponseSize bounds how much of a response body is read.
	maxResponseSize = 1 << 20
)

// ErrNotConfigured is returned when no cloud name is set.
var ErrNotConfigured = errors.New("upload cloud name is not configured")

// APIError is a non-2xx response from the media host.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("upload failed (HTTP %d): %s", e.StatusCode, e.Message)
}

// Config configures a Client.
type Config struct {
	BaseURL   string
	CloudName string
	Preset    string
	Timeout   time.Duration
}

// Client posts files to the media host. It is safe for concurrent use.
type Client struct {
	cfg  Config
	http *http.Client
	log  *logging.Logger
}

// File is an in-memory file to upload.
type File struct {
	Name     string
	MimeType string
	Data     []byte
}

// Result describes an uploaded asset. URL prefers the secure URL.
type Result struct {
	URL       string `json:"url"`
	PublicID  string `json:"publicId"`
	SecureURL string `json:"secureUrl"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	Format    string `json:"format,omitempty"`
	Bytes     int64  `json:"bytes,omitempty"`
}

// apiResponse is the host's JSON body.
type apiResponse struct {
	URL       string `json:"url"`
	SecureURL string `json:"secure_url"`
	PublicID  string `json:"public_id"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Format    string `json:"format"`
	Bytes     int64  `json:"bytes"`
	Error     *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// New creates a Client. httpClient may be nil, in which case one with
// cfg.Timeout is created.
func New(cfg Config, httpClient *http.Client) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Preset == "" {
		cfg.Preset = DefaultPreset
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, http: httpClient, log: logging.Component("upload")}
}

// Configured reports whether a cloud name is set.
func (c *Client) Configured() bool {
	return c.cfg.CloudName != ""
}

// Endpoint returns the upload URL for a resource type.
func (c *Client) Endpoint(resourceType string) string {
	return fmt.Sprintf("%s/%s/%s/upload", c.cfg.BaseURL, c.cfg.CloudName, resourceType)
}

// Upload posts f into folder. An empty resourceType (or "auto") is derived
// from the MIME type: image/* is image, video/* is video, anything else is
// image. An empty folder uses DefaultFolder.
func (c *Client) Upload(ctx context.Context, f File, folder, resourceType string) (*Result, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	if resourceType == "" || resourceType == "auto" {
		resourceType = string(mediatypes.ResourceType(f.MimeType))
	}
	if folder == "" {
		folder = DefaultFolder
	}

	start := time.Now()
	res, err := c.post(ctx, f, folder, resourceType)

	status := "success"
	if err != nil {
		status = "error"
		c.log.Warn("upload of %s (%s, %d bytes) failed: %v", f.Name, resourceType, len(f.Data), err)
	} else {
		c.log.Info("uploaded %s as %s (%d bytes) in %v", f.Name, res.PublicID, len(f.Data), time.Since(start).Round(time.Millisecond))
	}
	metrics.UploadsTotal.WithLabelValues(resourceType, status).Inc()
	metrics.UploadDuration.WithLabelValues(resourceType).Observe(time.Since(start).Seconds())

	return res, err
}

// UploadImage uploads into folder, or DefaultImageFolder when empty.
func (c *Client) UploadImage(ctx context.Context, f File, folder string) (*Result, error) {
	if folder == "" {
		folder = DefaultImageFolder
	}
	return c.Upload(ctx, f, folder, "image")
}

// UploadVideo uploads into folder, or DefaultVideoFolder when empty.
func (c *Client) UploadVideo(ctx context.Context, f File, folder string) (*Result, error) {
	if folder == "" {
		folder = DefaultVideoFolder
	}
	return c.Upload(ctx, f, folder, "video")
}

func (c *Client) post(ctx context.Context, f File, folder, resourceType string) (*Result, error) {
	body, contentType, err := encodeForm(f, c.cfg.Preset, folder)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint(resourceType), body)
	if err != nil {
		return nil, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read upload response: %w", err)
	}

	var parsed apiResponse
	decodeErr := json.Unmarshal(raw, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := "Upload failed"
		if decodeErr == nil && parsed.Error != nil && parsed.Error.Message != "" {
			msg = parsed.Error.Message
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode upload response: %w", decodeErr)
	}

	url := parsed.SecureURL
	if url == "" {
		url = parsed.URL
	}
	return &Result{
		URL:       url,
		PublicID:  parsed.PublicID,
		SecureURL: parsed.SecureURL,
		Width:     parsed.Width,
		Height:    parsed.Height,
		Format:    parsed.Format,
		Bytes:     parsed.Bytes,
	}, nil
}

// encodeForm builds the multipart body. The file part carries the
// declared MIME type instead of multipart's octet-stream default.
func encodeForm(f File, preset, folder string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	name := f.Name
	if name == "" {
		name = "upload"
	}
	mimeType := f.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	h.Set("Content-Type", mimeType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(f.Data); err != nil {
		return nil, "", fmt.Errorf("write file part: %w", err)
	}

	for _, field := range [][2]string{{"upload_preset", preset}, {"folder", folder}} {
		if err := mw.WriteField(field[0], field[1]); err != nil {
			return nil, "", fmt.Errorf("write %s field: %w", field[0], err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart body: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}
