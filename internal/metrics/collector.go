package metrics

import (
	"os"
	"runtime"
	"time"

	"image-tagger/internal/logging"
)

// StatsProvider reports library totals for the Collector.
type StatsProvider interface {
	GetStats() Stats
}

// Stats holds the current statistics
type Stats struct {
	RecordsByStatus map[string]int
	ActiveFolders   int
	InactiveFolders int
	Fingerprints    int
	OpenConnections int
}

// Collector periodically collects and updates metrics
type Collector struct {
	statsProvider StatsProvider
	dbPath        string
	interval      time.Duration
	stopChan      chan struct{}
}

// NewCollector creates a new metrics collector. dbPath may be empty to skip
// database file sizes.
func NewCollector(provider StatsProvider, dbPath string, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		dbPath:        dbPath,
		interval:      interval,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection
func (c *Collector) Stop() {
	close(c.stopChan)
}

func (c *Collector) collectLoop() {
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
	c.collectRuntime()
	c.collectDBSize()

	if c.statsProvider == nil {
		return
	}

	stats := c.statsProvider.GetStats()

	for _, status := range []string{"pending", "processing", "completed", "failed"} {
		RecordsByStatus.WithLabelValues(status).Set(float64(stats.RecordsByStatus[status]))
	}
	FoldersTotal.WithLabelValues("active").Set(float64(stats.ActiveFolders))
	FoldersTotal.WithLabelValues("inactive").Set(float64(stats.InactiveFolders))
	FingerprintsTotal.Set(float64(stats.Fingerprints))
	DBConnectionsOpen.Set(float64(stats.OpenConnections))

	logging.Debug("Metrics collected: records=%v, folders=%d, fingerprints=%d",
		stats.RecordsByStatus, stats.ActiveFolders+stats.InactiveFolders, stats.Fingerprints)
}

func (c *Collector) collectRuntime() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	GoMemAllocBytes.Set(float64(m.Alloc))
	GoGoroutines.Set(float64(runtime.NumGoroutine()))
}

func (c *Collector) collectDBSize() {
	if c.dbPath == "" {
		return
	}
	for label, suffix := range map[string]string{"main": "", "wal": "-wal", "shm": "-shm"} {
		info, err := os.Stat(c.dbPath + suffix)
		if err != nil {
			DBSizeBytes.WithLabelValues(label).Set(0)
			continue
		}
		DBSizeBytes.WithLabelValues(label).Set(float64(info.Size()))
	}
}
