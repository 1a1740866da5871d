// Package monitor owns the sampling history and the cached bucket series
// and drives the sample, record, prune, aggregate cycle.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"hostpulse/internal/aggregate"
	"hostpulse/internal/history"
	"hostpulse/internal/models"
)

// Unavailable is reported in usage labels when an on-demand read times out.
const Unavailable = "unavailable"

const gib = 1 << 30

type Sampler interface {
	Sample(ctx context.Context) models.Snapshot
}

// Archive receives a copy of every recorded sample.
type Archive interface {
	InsertSample(ctx context.Context, s models.Snapshot) error
}

type Options struct {
	Retention    time.Duration
	BucketCount  int
	BucketWidth  time.Duration
	StatsTimeout time.Duration
	Location     *time.Location
}

type Monitor struct {
	opts    Options
	sampler Sampler
	store   *history.Store
	archive Archive
	log     *slog.Logger
	now     func() time.Time

	// cycleMu serializes whole cycles; mu guards the cached series.
	cycleMu sync.Mutex
	mu      sync.RWMutex
	series  []models.Bucket
}

// New loads the persisted history, prunes it and computes the initial
// series so queries have data before the first cycle completes. archive
// may be nil.
func New(opts Options, sampler Sampler, store *history.Store, archive Archive, logger *slog.Logger) *Monitor {
	if opts.Retention <= 0 {
		opts.Retention = 6 * time.Hour
	}
	if opts.BucketCount <= 0 {
		opts.BucketCount = 6
	}
	if opts.BucketWidth <= 0 {
		opts.BucketWidth = time.Hour
	}
	if opts.StatsTimeout <= 0 {
		opts.StatsTimeout = 5 * time.Second
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	m := &Monitor{opts: opts, sampler: sampler, store: store, archive: archive, log: logger, now: time.Now}
	m.init()
	return m
}

func (m *Monitor) init() {
	m.store.Load()
	now := m.now()
	if removed, err := m.store.Prune(now, m.opts.Retention); err != nil {
		m.log.Error("persist pruned history", "err", err)
	} else if removed > 0 {
		m.log.Info("pruned stale history at startup", "removed", removed)
	}
	m.setSeries(aggregate.Buckets(m.store.Window(), now, m.opts.BucketCount, m.opts.BucketWidth, m.opts.Location))
}

// Cycle samples the host, records the sample, prunes the window and
// recomputes the cached series. Failures are logged and never abort the
// process. A cycle started after ctx is done is skipped, and a sample
// interrupted by cancellation is discarded.
func (m *Monitor) Cycle(ctx context.Context) {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()
	if ctx.Err() != nil {
		return
	}
	start := time.Now()

	snap := m.sampler.Sample(ctx)
	if ctx.Err() != nil {
		m.log.Info("cycle abandoned", "err", ctx.Err())
		return
	}

	if err := m.store.Append(snap.Sample); err != nil {
		m.log.Error("persist history", "err", err)
	}
	now := m.now()
	removed, err := m.store.Prune(now, m.opts.Retention)
	if err != nil {
		m.log.Error("persist pruned history", "err", err)
	}
	if m.archive != nil {
		if err := m.archive.InsertSample(ctx, snap); err != nil {
			m.log.Warn("archive sample", "err", err)
		}
	}
	window := m.store.Window()
	m.setSeries(aggregate.Buckets(window, now, m.opts.BucketCount, m.opts.BucketWidth, m.opts.Location))

	m.log.Info("cycle completed",
		"cpu_pct", snap.CPU,
		"ram_pct", snap.RAM,
		"ping_ms", pingValue(snap.Ping),
		"has_ping", snap.Ping != nil,
		"samples", len(window),
		"pruned", removed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// Series returns the cached bucket series from the last cycle.
func (m *Monitor) Series() []models.Bucket {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Bucket, len(m.series))
	copy(out, m.series)
	return out
}

// CurrentStats takes a fresh on-demand sample, independent of the
// scheduled cycle, bounded by the stats timeout. On timeout it returns
// a placeholder with the cached series.
func (m *Monitor) CurrentStats(ctx context.Context) models.Stats {
	ctx, cancel := context.WithTimeout(ctx, m.opts.StatsTimeout)
	defer cancel()

	ch := make(chan models.Snapshot, 1)
	go func() { ch <- m.sampler.Sample(ctx) }()

	select {
	case snap := <-ch:
		return models.Stats{
			CPUUsage: CPULabel(snap.CPU),
			RAMUsage: MemoryLabel(snap.MemUsedBytes, snap.MemTotalBytes),
			PingMs:   pingValue(snap.Ping),
			Series:   m.Series(),
		}
	case <-ctx.Done():
		m.log.Warn("on-demand stats timed out", "timeout", m.opts.StatsTimeout, "err", ctx.Err())
		return models.Stats{CPUUsage: Unavailable, RAMUsage: Unavailable, Series: m.Series()}
	}
}

func (m *Monitor) setSeries(series []models.Bucket) {
	m.mu.Lock()
	m.series = series
	m.mu.Unlock()
}

func CPULabel(pct float64) string {
	return fmt.Sprintf("%.1f%% / 100%%", pct)
}

func MemoryLabel(used, total uint64) string {
	return fmt.Sprintf("%.2fGB / %.2fGB", float64(used)/gib, float64(total)/gib)
}

func pingValue(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
