package metrics

import "time"

// Stats is a snapshot of engine-wide counters a Collector polls
// periodically and publishes as gauges. No type in this module implements
// it; the caller that starts a Collector supplies its own.
type Stats interface {
	// EntityCounts returns the number of live entities per (tenant, type).
	EntityCounts() map[[2]string]int
	// SchemaCounts returns the number of registered schemas per tenant.
	SchemaCounts() map[string]int
	// VectorIndexSizes returns indexed vector counts per (tenant, type).
	VectorIndexSizes() map[[2]string]int
	// WalSequences returns the current WAL sequence per tenant.
	WalSequences() map[string]uint64
	// QueueDepth returns the number of tasks currently queued in the
	// background worker.
	QueueDepth() int
}

// Collector polls a Stats source on an interval and publishes the result
// as Prometheus gauges, the same shape the teacher's cluster collector
// used for node/service/raft gauges.
type Collector struct {
	stats    Stats
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a new metrics collector over the given stats source.
func NewCollector(stats Stats) *Collector {
	return &Collector{
		stats:    stats,
		interval: 15 * time.Second,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics on a background goroutine.
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	for key, count := range c.stats.EntityCounts() {
		EntitiesTotal.WithLabelValues(key[0], key[1]).Set(float64(count))
	}

	for tenant, count := range c.stats.SchemaCounts() {
		SchemasRegisteredTotal.WithLabelValues(tenant).Set(float64(count))
	}

	for key, count := range c.stats.VectorIndexSizes() {
		VectorIndexSize.WithLabelValues(key[0], key[1]).Set(float64(count))
	}

	for tenant, seq := range c.stats.WalSequences() {
		WalSequence.WithLabelValues(tenant).Set(float64(seq))
	}

	WorkerQueueDepth.Set(float64(c.stats.QueueDepth()))
}
