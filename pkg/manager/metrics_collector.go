package manager

import (
	"sync"
	"time"
)

// StatusCollector periodically asks the manager to republish its engine
// status, keeping the stored status and the gauges fresh between commands.
type StatusCollector struct {
	manager  *Manager
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewStatusCollector creates a collector posting every interval
func NewStatusCollector(mgr *Manager, interval time.Duration) *StatusCollector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &StatusCollector{
		manager:  mgr,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting
func (c *StatusCollector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		// Collect immediately on start
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

// Stop stops the collector
func (c *StatusCollector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

func (c *StatusCollector) collect() {
	c.manager.Post(Command{Kind: CommandRecordStatus, Source: "status-collector"})
}
