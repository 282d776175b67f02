package metrics

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/foxzi/fundry/internal/ledger"
)

// LedgerSource exposes the ledger reads the collector polls.
type LedgerSource interface {
	Pool(ctx context.Context) (ledger.PoolStats, error)
	Campaigns(ctx context.Context, filter ledger.ListFilter) ([]ledger.Campaign, error)
}

// Collector periodically refreshes pool and system gauges from the ledger.
type Collector struct {
	metrics     *Metrics
	source      LedgerSource
	storagePath string
	interval    time.Duration
	logger      *slog.Logger
	startTime   time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewCollector creates a new gauge collector
func NewCollector(m *Metrics, source LedgerSource, storagePath string, interval time.Duration, logger *slog.Logger) *Collector {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Collector{
		metrics:     m,
		source:      source,
		storagePath: storagePath,
		interval:    interval,
		logger:      logger,
		startTime:   time.Now(),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the background collection loop
func (c *Collector) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		c.collect(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stopCh:
				return
			case <-ticker.C:
				c.collect(ctx)
			}
		}
	}()
}

// Stop stops the collection loop
func (c *Collector) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

func (c *Collector) collect(ctx context.Context) {
	c.metrics.UptimeSeconds.Set(time.Since(c.startTime).Seconds())
	c.metrics.Goroutines.Set(float64(runtime.NumGoroutine()))

	if c.storagePath != "" {
		if info, err := os.Stat(c.storagePath); err == nil {
			c.metrics.StorageUsedBytes.Set(float64(info.Size()))
		}
	}

	pool, err := c.source.Pool(ctx)
	if err != nil {
		c.logger.Warn("failed to collect pool stats", "error", err)
		return
	}
	c.metrics.PoolBalance.Set(float64(pool.Total))
	c.metrics.PoolCommitted.Set(float64(pool.Committed))
	c.metrics.PoolFree.Set(float64(pool.Free))

	open, err := c.source.Campaigns(ctx, ledger.ListFilter{OnlyOpen: true})
	if err != nil {
		c.logger.Warn("failed to collect campaign stats", "error", err)
		return
	}
	c.metrics.CampaignsOpen.Set(float64(len(open)))
}
