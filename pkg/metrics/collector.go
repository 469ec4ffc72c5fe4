package metrics

import (
	"context"
	"time"

	"github.com/cuemby/hypernet/pkg/types"
)

// ValueSource reports every node's local scalar, as the coordinator's value
// query does
type ValueSource interface {
	QueryAll(ctx context.Context) (map[types.Label]uint64, error)
}

// Collector periodically queries a running cube and exports how many nodes
// answered and how many have been visited
type Collector struct {
	source   ValueSource
	interval time.Duration
	timeout  time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(source ValueSource, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		source:   source,
		interval: interval,
		timeout:  interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
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
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	// partial results still count; the error only says some nodes failed
	values, _ := c.source.QueryAll(ctx)

	visited := 0
	for _, v := range values {
		if v != 0 {
			visited++
		}
	}
	CubeNodesReachable.Set(float64(len(values)))
	CubeNodesVisited.Set(float64(visited))
}
