package handlers

import (
	"errors"
	"net/http"

	"video-reducer/internal/logging"
	"video-reducer/internal/mediatypes"
	"video-reducer/internal/upload"
)

// ReductionSummary describes the reduction that preceded an upload.
type ReductionSummary struct {
	ID           string `json:"id,omitempty"`
	Reencoded    bool   `json:"reencoded"`
	Attempts     int    `json:"attempts"`
	OriginalSize uint64 `json:"originalSize"`
	Size         uint64 `json:"size"`
	MimeType     string `json:"mimeType"`
}

// UploadResponse is returned by UploadMedia.
type UploadResponse struct {
	Upload    *upload.Result    `json:"upload"`
	Reduction *ReductionSummary `json:"reduction,omitempty"`
}

// UploadMedia sends the multipart "file" to the media host into the
// optional "folder". Videos are reduced below the ceiling first; images go
// up unchanged.
func (h *Handlers) UploadMedia(w http.ResponseWriter, r *http.Request) {
	if h.uploader == nil || !h.uploader.Configured() {
		writeJSONError(w, "uploads are not configured", http.StatusServiceUnavailable)
		return
	}

	src, err := h.readSource(w, r)
	if err != nil {
		writeRequestError(w, err)
		return
	}
	folder := r.FormValue("folder")
	ctx := r.Context()

	var resp UploadResponse
	switch mediatypes.ResourceType(src.MimeType) {
	case mediatypes.FileTypeVideo:
		res, id, err := h.reduceSource(ctx, src)
		if err != nil {
			writeReductionError(w, err)
			return
		}
		resp.Reduction = &ReductionSummary{
			ID:           id,
			Reencoded:    res.Reencoded,
			Attempts:     res.Attempts,
			OriginalSize: src.Size(),
			Size:         res.Size(),
			MimeType:     res.MimeType,
		}
		resp.Upload, err = h.uploader.UploadVideo(ctx, upload.File{
			Name:     outputName(src.Name, res.MimeType),
			MimeType: mediatypes.BaseMimeType(res.MimeType),
			Data:     res.Data,
		}, folder)
		if err != nil {
			writeUploadError(w, err)
			return
		}

	default:
		resp.Upload, err = h.uploader.UploadImage(ctx, upload.File{
			Name:     src.Name,
			MimeType: src.MimeType,
			Data:     src.Data,
		}, folder)
		if err != nil {
			writeUploadError(w, err)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, resp)
}

func writeUploadError(w http.ResponseWriter, err error) {
	var apiErr *upload.APIError
	switch {
	case errors.Is(err, upload.ErrNotConfigured):
		writeJSONError(w, "uploads are not configured", http.StatusServiceUnavailable)
	case errors.As(err, &apiErr):
		writeJSONError(w, apiErr.Message, http.StatusBadGateway)
	default:
		logging.Error("upload failed: %v", err)
		writeJSONError(w, "upload failed", http.StatusBadGateway)
	}
}
