package metrics

import (
	"time"

	"media-conversions/internal/logging"
)

// StatsProvider interface for collecting stats
type StatsProvider interface {
	GetStats() Stats
}

// QueueDepthProvider reports the number of pending conversion jobs.
type QueueDepthProvider interface {
	Depth() int
}

// Stats holds the current statistics
type Stats struct {
	TotalMedia   int
	TrashedMedia int
}

// Collector periodically collects and updates metrics
type Collector struct {
	statsProvider StatsProvider
	queue         QueueDepthProvider
	interval      time.Duration
	stopChan      chan struct{}
}

// NewCollector creates a new metrics collector. queue may be nil.
func NewCollector(provider StatsProvider, queue QueueDepthProvider, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		queue:         queue,
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
	if c.queue != nil {
		QueueDepth.Set(float64(c.queue.Depth()))
	}

	if c.statsProvider == nil {
		return
	}

	stats := c.statsProvider.GetStats()

	MediaTotal.WithLabelValues("active").Set(float64(stats.TotalMedia - stats.TrashedMedia))
	MediaTotal.WithLabelValues("trashed").Set(float64(stats.TrashedMedia))

	logging.Debug("Metrics collected: media=%d, trashed=%d", stats.TotalMedia, stats.TrashedMedia)
}
