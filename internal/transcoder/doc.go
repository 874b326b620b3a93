// Package transcoder provides the FFmpeg-backed playback and encoding
// collaborators of the video reducer.
//
// It supports:
//   - Video metadata extraction with ffprobe (duration, resolution, frame rate)
//   - Real-time paced decoding of a source to raw RGBA frames (playback)
//   - Encoding sinks that sample a live source and emit WebM or MP4 chunks
//   - Detection of the encoders compiled into the local FFmpeg build
//
// FFmpeg and ffprobe must be installed and available in the system PATH or
// configured explicitly.
package transcoder
