package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"video-reducer/internal/database"
	"video-reducer/internal/logging"
	"video-reducer/internal/mediatypes"
	"video-reducer/internal/metrics"
	"video-reducer/internal/middleware"
	"video-reducer/internal/reducer"
	"video-reducer/internal/streaming"
)

// multipartMemory is how much of a multipart form is held in memory before
// spilling to temp files.
const multipartMemory = 32 << 20

// Response headers describing a reduction.
const (
	HeaderReductionID       = "X-Reduction-Id"
	HeaderReductionAttempts = "X-Reduction-Attempts"
	HeaderReencoded         = "X-Reduction-Reencoded"
	HeaderOriginalSize      = "X-Original-Size"
)

// readSource reads the "file" part of a multipart request into memory.
func (h *Handlers) readSource(w http.ResponseWriter, r *http.Request) (reducer.SourceMedia, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxRequestSize)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return reducer.SourceMedia{}, &requestError{
				status: http.StatusRequestEntityTooLarge,
				msg:    fmt.Sprintf("request exceeds %d bytes", tooLarge.Limit),
			}
		}
		return reducer.SourceMedia{}, badRequest("expected a multipart form")
	}

	file, hdr, err := r.FormFile("file")
	if err != nil {
		return reducer.SourceMedia{}, badRequest("missing file field")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return reducer.SourceMedia{}, fmt.Errorf("read upload %s: %w", hdr.Filename, err)
	}
	if len(data) == 0 {
		return reducer.SourceMedia{}, badRequest("file is empty")
	}

	name := filepath.Base(hdr.Filename)
	return reducer.SourceMedia{
		Name:     name,
		MimeType: mediatypes.DetectMimeType(hdr.Header.Get("Content-Type"), name),
		Data:     data,
	}, nil
}

// reduceSource runs one reduction, publishing progress and recording it in
// the history. The returned ID is the history row, or "" when nothing was
// recorded.
func (h *Handlers) reduceSource(ctx context.Context, src reducer.SourceMedia) (*reducer.Result, string, error) {
	requestID := middleware.RequestIDFrom(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	release, err := h.acquire(ctx)
	if err != nil {
		return nil, "", err
	}
	defer release()

	h.inProgress.Add(1)
	metrics.ReductionsInProgress.Inc()
	defer func() {
		h.inProgress.Add(-1)
		metrics.ReductionsInProgress.Dec()
	}()

	if h.hub != nil {
		ctx = reducer.WithTrace(ctx, h.hub.Trace(requestID, src.Name))
	}

	start := time.Now()
	res, err := h.reducer.Reduce(ctx, src)
	elapsed := time.Since(start)

	if h.hub != nil {
		h.hub.Finish(requestID, src.Name, res, err)
	}

	// A client disconnect cancels ctx; the outcome is still recorded.
	id := h.record(context.WithoutCancel(ctx), src, res, err, elapsed)
	return res, id, err
}

func (h *Handlers) record(ctx context.Context, src reducer.SourceMedia, res *reducer.Result, err error, elapsed time.Duration) string {
	if h.history == nil {
		return ""
	}

	row := &database.Reduction{
		Name:       src.Name,
		SourceHash: database.HashSource(src.Data),
		SourceSize: int64(src.Size()),
		MimeType:   src.MimeType,
		Outcome:    database.Outcome(metrics.ResultLabel(res != nil && res.Reencoded, err)),
		Duration:   elapsed,
	}
	if err != nil {
		row.ErrorKind = reducer.Kind(err)
	}
	if res != nil {
		row.ResultSize = int64(res.Size())
		row.MimeType = res.MimeType
		row.Attempts = res.Attempts
	}

	if recErr := h.history.RecordReduction(ctx, row); recErr != nil {
		logging.Error("failed to record reduction of %s: %v", src.Name, recErr)
		return ""
	}
	return row.ID
}

// ReduceVideo accepts a multipart "file" and answers with the video itself
// when it already fits under the ceiling, or with a re-encoded copy that
// does.
func (h *Handlers) ReduceVideo(w http.ResponseWriter, r *http.Request) {
	src, err := h.readSource(w, r)
	if err != nil {
		writeRequestError(w, err)
		return
	}
	if !mediatypes.IsVideo(src.MimeType) {
		writeJSONError(w, "only video files can be reduced", http.StatusUnsupportedMediaType)
		return
	}

	res, id, err := h.reduceSource(r.Context(), src)
	if err != nil {
		writeReductionError(w, err)
		return
	}

	hdr := w.Header()
	if id != "" {
		hdr.Set(HeaderReductionID, id)
	}
	hdr.Set(HeaderReductionAttempts, strconv.Itoa(res.Attempts))
	hdr.Set(HeaderReencoded, strconv.FormatBool(res.Reencoded))
	hdr.Set(HeaderOriginalSize, strconv.FormatUint(src.Size(), 10))
	hdr.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": outputName(src.Name, res.MimeType),
	}))

	if err := streaming.WriteBlob(r.Context(), w, res.Data, res.MimeType, h.stream); err != nil {
		logging.Warn("failed to send reduced %s: %v", src.Name, err)
	}
}

// outputName swaps the extension of name for one matching mimeType.
func outputName(name, mimeType string) string {
	ext := mediatypes.ExtensionFor(mimeType, name)
	base := strings.TrimSuffix(name, filepath.Ext(name))
	if base == "" {
		base = "video"
	}
	return base + ext
}
