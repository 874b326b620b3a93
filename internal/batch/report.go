package batch

import (
	"fmt"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"video-reducer/internal/database"
	"video-reducer/internal/filesystem"
)

// FileResult is the outcome of one file.
type FileResult struct {
	Path       string           `yaml:"path"`
	Output     string           `yaml:"output,omitempty"`
	MimeType   string           `yaml:"mime_type,omitempty"`
	SourceSize int64            `yaml:"source_size"`
	ResultSize int64            `yaml:"result_size,omitempty"`
	Attempts   int              `yaml:"attempts"`
	Outcome    database.Outcome `yaml:"outcome"`
	ErrorKind  string           `yaml:"error_kind,omitempty"`
	Error      string           `yaml:"error,omitempty"`
	Duration   time.Duration    `yaml:"duration"`
}

func (r *FileResult) fail(kind string, err error) {
	r.Outcome = database.OutcomeFailed
	r.ErrorKind = kind
	r.Error = err.Error()
}

// Report summarizes a batch run.
type Report struct {
	Started     time.Time     `yaml:"started"`
	Finished    time.Time     `yaml:"finished"`
	Duration    time.Duration `yaml:"duration"`
	Ceiling     uint64        `yaml:"ceiling"`
	Workers     int           `yaml:"workers"`
	Passthrough int           `yaml:"passthrough"`
	Reencoded   int           `yaml:"reencoded"`
	Failed      int           `yaml:"failed"`
	BytesIn     int64         `yaml:"bytes_in"`
	BytesOut    int64         `yaml:"bytes_out"`
	Files       []FileResult  `yaml:"files"`

	mu sync.Mutex
}

func newReport(ceiling uint64, workers int) *Report {
	return &Report{
		Started: time.Now(),
		Ceiling: ceiling,
		Workers: workers,
		Files:   []FileResult{},
	}
}

func (r *Report) add(res FileResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Files = append(r.Files, res)
	r.BytesIn += res.SourceSize
	switch res.Outcome {
	case database.OutcomeFailed:
		r.Failed++
		return
	case database.OutcomeReencoded:
		r.Reencoded++
	default:
		r.Passthrough++
	}
	r.BytesOut += res.ResultSize
}

func (r *Report) finish() {
	r.Finished = time.Now()
	r.Duration = r.Finished.Sub(r.Started)
}

// Summary is a one-line description of the run.
func (r *Report) Summary() string {
	return fmt.Sprintf("%d files: %d passthrough, %d re-encoded, %d failed (%d -> %d bytes) in %v",
		len(r.Files), r.Passthrough, r.Reencoded, r.Failed, r.BytesIn, r.BytesOut, r.Duration.Round(time.Millisecond))
}

// YAML renders the report. Durations are written as strings like "1m30s".
func (r *Report) YAML() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return yaml.Marshal(r)
}

// WriteReport writes the report as YAML to path.
func WriteReport(path string, r *Report) error {
	data, err := r.YAML()
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return filesystem.WriteFileWithRetry(path, data, 0o644, filesystem.DefaultRetryConfig())
}
