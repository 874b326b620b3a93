package transcoder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"video-reducer/internal/logging"
)

// Config configures the FFmpeg backend.
type Config struct {
	FFmpegPath  string
	FFprobePath string
	// WorkDir holds the temporary copies of sources being played back.
	WorkDir string
	// DisplayRate is the number of rendering opportunities per second.
	DisplayRate int
	// MaxWidth caps the decoded frame width; 0 keeps the source width.
	MaxWidth int
}

// DefaultConfig returns defaults that rely on binaries in PATH.
func DefaultConfig() Config {
	return Config{
		FFmpegPath:  "ffmpeg",
		FFprobePath: "ffprobe",
		WorkDir:     os.TempDir(),
		DisplayRate: 60,
		MaxWidth:    1280,
	}
}

// Transcoder implements reducer.Player and reducer.Encoders on top of FFmpeg.
type Transcoder struct {
	cfg       Config
	processes map[string]*exec.Cmd
	processMu sync.Mutex

	encodersOnce sync.Once
	encoders     map[string]bool
	encodersErr  error

	log *logging.Logger
}

// VideoInfo contains information about a video file.
type VideoInfo struct {
	Duration  float64 `json:"duration"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Codec     string  `json:"codec"`
	FrameRate float64 `json:"frameRate"`
}

// New creates a new Transcoder instance.
func New(cfg Config) *Transcoder {
	def := DefaultConfig()
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = def.FFmpegPath
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = def.FFprobePath
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = def.WorkDir
	}
	if cfg.DisplayRate <= 0 {
		cfg.DisplayRate = def.DisplayRate
	}

	return &Transcoder{
		cfg:       cfg,
		processes: make(map[string]*exec.Cmd),
		log:       logging.Component("transcoder"),
	}
}

// ProbeFile retrieves duration, dimension and frame rate information about a
// video file.
func (t *Transcoder) ProbeFile(ctx context.Context, filePath string) (*VideoInfo, error) {
	cmd := exec.CommandContext(ctx, t.cfg.FFprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		filePath,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe error: %w - %s", err, strings.TrimSpace(stderr.String()))
	}

	return parseProbeOutput(stdout.Bytes())
}

type probeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
		Duration     string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// errNoVideoStream is returned when a file has no video stream.
var errNoVideoStream = errors.New("no video stream")

func parseProbeOutput(data []byte) (*VideoInfo, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	for _, s := range out.Streams {
		if s.CodecType != "video" {
			continue
		}
		info := &VideoInfo{
			Width:     s.Width,
			Height:    s.Height,
			Codec:     s.CodecName,
			FrameRate: parseFrameRate(s.AvgFrameRate),
		}
		if info.FrameRate == 0 {
			info.FrameRate = parseFrameRate(s.RFrameRate)
		}
		if info.FrameRate == 0 {
			info.FrameRate = 30
		}

		// Some containers only report duration per stream; "N/A" parses to 0
		info.Duration, _ = strconv.ParseFloat(out.Format.Duration, 64)
		if info.Duration == 0 {
			info.Duration, _ = strconv.ParseFloat(s.Duration, 64)
		}
		return info, nil
	}

	return nil, errNoVideoStream
}

// parseFrameRate parses ffprobe rates such as "30000/1001" or "25".
func parseFrameRate(s string) float64 {
	num, den, found := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil || n <= 0 {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d <= 0 {
		return 0
	}
	return n / d
}

// track registers a running process so Cleanup can stop it.
func (t *Transcoder) track(cmd *exec.Cmd) string {
	id := uuid.NewString()
	t.processMu.Lock()
	t.processes[id] = cmd
	t.processMu.Unlock()
	return id
}

func (t *Transcoder) untrack(id string) {
	t.processMu.Lock()
	delete(t.processes, id)
	t.processMu.Unlock()
}

// ActiveProcesses returns the number of running FFmpeg processes.
func (t *Transcoder) ActiveProcesses() int {
	t.processMu.Lock()
	defer t.processMu.Unlock()
	return len(t.processes)
}

// Cleanup stops all active FFmpeg processes.
func (t *Transcoder) Cleanup() {
	t.processMu.Lock()
	defer t.processMu.Unlock()

	for id, cmd := range t.processes {
		if cmd.Process != nil {
			t.log.Info("Killing ffmpeg process %s (pid %d)", id, cmd.Process.Pid)
			if err := cmd.Process.Kill(); err != nil {
				t.log.Warn("failed to kill ffmpeg process %s: %v", id, err)
			}
		}
	}
}
