package metrics

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"video-reducer/internal/reducer"
)

func TestResultLabel(t *testing.T) {
	tests := []struct {
		name      string
		reencoded bool
		err       error
		want      string
	}{
		{"passthrough", false, nil, "passthrough"},
		{"reencoded", true, nil, "reencoded"},
		{"failed", false, reducer.ErrPlayback, "failed"},
		{"failed after reencode", true, errors.New("boom"), "failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResultLabel(tt.reencoded, tt.err); got != tt.want {
				t.Errorf("ResultLabel() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAttemptLabel(t *testing.T) {
	tests := map[int]string{0: "0", 1: "1", 4: "4", 5: "5+", 12: "5+"}
	for in, want := range tests {
		if got := attemptLabel(in); got != want {
			t.Errorf("attemptLabel(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestReducerObserverRecordsResult(t *testing.T) {
	obs := NewReducerObserver()
	err := fmt.Errorf("wrapped: %w", reducer.ErrSizeTargetUnreachable)

	counter := ReductionsTotal.WithLabelValues("failed", "size_target_unreachable")
	before := testutil.ToFloat64(counter)

	obs.ObserveResult(true, 3, 20<<20, 0, err, 12.5)

	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("ReductionsTotal delta = %v, want 1", got)
	}
}

func TestReducerObserverRecordsAttempt(t *testing.T) {
	obs := NewReducerObserver()
	plan := reducer.ReductionPlan{Attempt: 1, TargetDurationSeconds: 30, TargetBitrateBps: 1_000_000, FrameRate: 24}

	counter := ReductionAttemptsTotal.WithLabelValues("1", "retry_needed")
	before := testutil.ToFloat64(counter)

	obs.ObserveAttempt(plan, 11<<20, reducer.OutcomeRetryNeeded, 31)

	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("ReductionAttemptsTotal delta = %v, want 1", got)
	}
}

func TestFilesystemObserverCountsErrors(t *testing.T) {
	obs := NewFilesystemObserver()
	counter := FilesystemOperationErrors.WithLabelValues("sources", "read")
	before := testutil.ToFloat64(counter)

	obs.ObserveOperation("sources", "read", 0.01, nil)
	obs.ObserveOperation("sources", "read", 0.01, errors.New("io"))

	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("FilesystemOperationErrors delta = %v, want 1", got)
	}
}

func TestInitializeMetricsDoesNotPanic(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("InitializeMetrics panicked: %v", r)
		}
	}()
	InitializeMetrics()
	InitializeMetrics()
}

func TestSetAppInfo(t *testing.T) {
	SetAppInfo("1.2.3", "abc123", "go1.25")
	if got := testutil.ToFloat64(AppInfo.WithLabelValues("1.2.3", "abc123", "go1.25")); got != 1 {
		t.Errorf("AppInfo = %v, want 1", got)
	}
}

type mockStatsProvider struct {
	mu    sync.Mutex
	calls int
	stats Stats
}

func (m *mockStatsProvider) GetStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.stats
}

func (m *mockStatsProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func TestCollectorCollectsImmediately(t *testing.T) {
	provider := &mockStatsProvider{stats: Stats{
		ActiveProcesses: 3,
		HistoryRecords:  42,
		DBFileSizes:     map[string]int64{"main": 4096},
	}}

	c := NewCollector(provider, time.Hour)
	c.Start()
	deadline := time.Now().Add(2 * time.Second)
	for provider.callCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	c.Stop()

	if provider.callCount() == 0 {
		t.Fatal("collector never called provider")
	}
	if got := testutil.ToFloat64(FFmpegProcessesActive); got != 3 {
		t.Errorf("FFmpegProcessesActive = %v, want 3", got)
	}
	if got := testutil.ToFloat64(ReductionHistoryRecords); got != 42 {
		t.Errorf("ReductionHistoryRecords = %v, want 42", got)
	}
	if got := testutil.ToFloat64(DBSizeBytes.WithLabelValues("main")); got != 4096 {
		t.Errorf("DBSizeBytes{main} = %v, want 4096", got)
	}
}

func TestCollectorNilProvider(t *testing.T) {
	c := NewCollector(nil, 10*time.Millisecond)
	c.Start()
	time.Sleep(30 * time.Millisecond)
	c.Stop()
}
