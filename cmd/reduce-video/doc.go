// Command reduce-video shrinks video files on disk below the upload size
// ceiling using the same pipeline as the video-reducer service.
//
// Usage:
//
//	reduce-video <command> [flags] [paths...]
//
// Commands:
//
//	reduce   Reduce the given files and every video below the given
//	         directories. Each file is an independent request; a failure
//	         on one file does not stop the others. Reduced copies are
//	         written as "<name>.reduced<ext>" next to the source, or into
//	         -out. With -report a YAML summary is written. With -stdout a
//	         single reduced file is written to standard output, which must
//	         not be a terminal.
//
//	watch    Keep reducing videos as they are copied into a directory.
//	         A file is picked up once it has not changed for -settle.
//
//	history  List recent reductions from the SQLite history.
//
// Environment:
//
//	DATABASE_DIR    - Record history in this directory (default: off)
//	MAX_VIDEO_SIZE  - Size ceiling in bytes (default: 10485760)
//	FFMPEG_PATH     - FFmpeg binary (default: ffmpeg)
//	FFPROBE_PATH    - ffprobe binary (default: ffprobe)
//	WORK_DIR        - Scratch directory for playback files
//	REDUCE_WORKERS  - Concurrent reductions (default: derived from CPU count)
//
// Exit status is 0 when every file was reduced or already fit, 1 when any
// file failed and 2 on a usage error.
package main
