package mediatypes

import (
	"path/filepath"
	"strings"
)

// FileType represents the type of a media file.
type FileType string

const (
	// FileTypeImage represents an image file.
	FileTypeImage FileType = "image"
	// FileTypeVideo represents a video file.
	FileTypeVideo FileType = "video"
	// FileTypeOther represents an unknown or unsupported file type.
	FileTypeOther FileType = "other"
)

// ImageExtensions maps file extensions to whether they are supported image formats.
var ImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
	".heic": true,
}

// VideoExtensions maps file extensions to whether they are supported video formats.
var VideoExtensions = map[string]bool{
	".mp4":  true,
	".webm": true,
	".mkv":  true,
	".mov":  true,
	".m4v":  true,
	".avi":  true,
	".3gp":  true,
}

// MimeTypes maps file extensions to their MIME types.
var MimeTypes = map[string]string{
	// Images
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".heic": "image/heic",

	// Videos
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
	".mov":  "video/quicktime",
	".m4v":  "video/x-m4v",
	".avi":  "video/x-msvideo",
	".3gp":  "video/3gpp",
}

// GetFileType returns the FileType for a given file extension.
// The extension should be lowercase and include the leading dot (e.g., ".mp4").
func GetFileType(ext string) FileType {
	if ImageExtensions[ext] {
		return FileTypeImage
	}
	if VideoExtensions[ext] {
		return FileTypeVideo
	}
	return FileTypeOther
}

// GetMimeType returns the MIME type for a given file extension.
// Returns "application/octet-stream" if the extension is not recognized.
func GetMimeType(ext string) string {
	if mime, ok := MimeTypes[ext]; ok {
		return mime
	}
	return "application/octet-stream"
}

// BaseMimeType strips parameters such as codecs from a MIME type and
// lowercases it: "video/webm;codecs=vp8" becomes "video/webm".
func BaseMimeType(mimeType string) string {
	base, _, _ := strings.Cut(mimeType, ";")
	return strings.ToLower(strings.TrimSpace(base))
}

// IsVideo reports whether the MIME type names a video.
func IsVideo(mimeType string) bool {
	return strings.HasPrefix(BaseMimeType(mimeType), "video/")
}

// ResourceType classifies an upload for the media host. Anything that is not
// a video is sent as an image.
func ResourceType(mimeType string) FileType {
	if IsVideo(mimeType) {
		return FileTypeVideo
	}
	return FileTypeImage
}

// ExtensionFor returns a file extension for the MIME type, falling back to
// the extension of name. Returns "" when neither is known.
func ExtensionFor(mimeType, name string) string {
	base := BaseMimeType(mimeType)
	// Prefer the canonical extension when several map to the same type.
	switch base {
	case "video/mp4":
		return ".mp4"
	case "image/jpeg":
		return ".jpg"
	}
	for ext, mime := range MimeTypes {
		if mime == base {
			return ext
		}
	}

	ext := strings.ToLower(filepath.Ext(name))
	if GetFileType(ext) != FileTypeOther {
		return ext
	}
	return ""
}

// DetectMimeType returns mimeType when it is set and generic types are not
// in play, otherwise the type implied by the file name.
func DetectMimeType(mimeType, name string) string {
	base := BaseMimeType(mimeType)
	if base != "" && base != "application/octet-stream" {
		return strings.TrimSpace(mimeType)
	}
	return GetMimeType(strings.ToLower(filepath.Ext(name)))
}
