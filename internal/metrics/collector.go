package metrics

import (
	"time"

	"video-reducer/internal/logging"
)

// StatsProvider interface for collecting stats
type StatsProvider interface {
	GetStats() Stats
}

// Stats holds the current statistics
type Stats struct {
	ActiveProcesses int
	HistoryRecords  int
	DBFileSizes     map[string]int64 // keyed by "main", "wal", "shm"
}

// Collector periodically collects and updates gauge metrics
type Collector struct {
	statsProvider StatsProvider
	interval      time.Duration
	stopChan      chan struct{}
	done          chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		interval:      interval,
		stopChan:      make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection and waits for the loop to exit
func (c *Collector) Stop() {
	close(c.stopChan)
	<-c.done
}

func (c *Collector) collectLoop() {
	defer close(c.done)

	// Collect immediately on start
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	if c.statsProvider == nil {
		return
	}

	stats := c.statsProvider.GetStats()

	FFmpegProcessesActive.Set(float64(stats.ActiveProcesses))
	ReductionHistoryRecords.Set(float64(stats.HistoryRecords))
	for file, size := range stats.DBFileSizes {
		DBSizeBytes.WithLabelValues(file).Set(float64(size))
	}

	logging.Debug("Metrics collected: ffmpeg_processes=%d, history_records=%d",
		stats.ActiveProcesses, stats.HistoryRecords)
}
