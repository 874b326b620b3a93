// Package mediatypes provides shared type definitions and utilities for media file
// handling across video-reducer.
//
// This package exists as a dependency-free foundation that can be imported by other
// packages without creating import cycles. It contains primitive types, constants,
// and pure utility functions with no external dependencies beyond the standard library.
//
// # File Types
//
// The package defines a FileType enum for categorizing media files:
//
//	mediatypes.FileTypeImage // Supported image formats (jpg, png, gif, etc.)
//	mediatypes.FileTypeVideo // Supported video formats (mp4, webm, mov, etc.)
//	mediatypes.FileTypeOther // Unrecognized or unsupported files
//
// # MIME Types
//
// GetMimeType maps an extension to a MIME type. DetectMimeType prefers a
// type reported by the client and falls back to the extension:
//
//	mimeType := mediatypes.DetectMimeType(header.Get("Content-Type"), filename)
//
// ResourceType classifies a MIME type the way the media host expects
// (video or image), and ExtensionFor goes the other way when a temporary
// file needs a recognizable name.
package mediatypes
