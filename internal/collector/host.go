package collector

import (
	"context"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"hostpulse/internal/models"
)

// Pinger measures round-trip latency. A nil result means no reading.
type Pinger interface {
	Ping(ctx context.Context) *float64
}

// HostSampler produces one Snapshot per call. Every sub-measurement
// degrades to a zero value or a missing reading instead of failing.
type HostSampler struct {
	interval time.Duration
	probe    Pinger
	log      *slog.Logger

	cpuTimes func(ctx context.Context) ([]cpu.TimesStat, error)
	memory   func(ctx context.Context) (*mem.VirtualMemoryStat, error)
	now      func() time.Time
}

func NewHostSampler(interval time.Duration, probe Pinger, logger *slog.Logger) *HostSampler {
	if interval <= 0 {
		interval = time.Second
	}
	return &HostSampler{
		interval: interval,
		probe:    probe,
		log:      logger,
		cpuTimes: func(ctx context.Context) ([]cpu.TimesStat, error) { return cpu.TimesWithContext(ctx, true) },
		memory:   mem.VirtualMemoryWithContext,
		now:      time.Now,
	}
}

func (h *HostSampler) Sample(ctx context.Context) models.Snapshot {
	snap := models.Snapshot{Sample: models.Sample{Time: h.now().UTC()}}

	// The probe overlaps the CPU wait; both are bounded.
	pingCh := make(chan *float64, 1)
	if h.probe != nil {
		go func() { pingCh <- h.probe.Ping(ctx) }()
	} else {
		pingCh <- nil
	}

	snap.CPU = h.sampleCPU(ctx)

	if v, err := h.memory(ctx); err != nil {
		h.log.Debug("read memory", "err", err)
	} else if v != nil && v.Total > 0 {
		used := uint64(0)
		if v.Available < v.Total {
			used = v.Total - v.Available
		}
		snap.MemTotalBytes = v.Total
		snap.MemUsedBytes = used
		snap.RAM = float64(used) / float64(v.Total) * 100
	}

	snap.Ping = <-pingCh
	return snap
}

func (h *HostSampler) sampleCPU(ctx context.Context) float64 {
	before, err := h.cpuTimes(ctx)
	if err != nil {
		h.log.Debug("read cpu times", "err", err)
		return 0
	}
	t := time.NewTimer(h.interval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return 0
	case <-t.C:
	}
	after, err := h.cpuTimes(ctx)
	if err != nil {
		h.log.Debug("read cpu times", "err", err)
		return 0
	}
	return busyPercent(before, after)
}

// busyPercent sums per-core deltas between two snapshots. Snapshots with
// different core counts (hot-plug) are not comparable and yield 0.
func busyPercent(before, after []cpu.TimesStat) float64 {
	if len(before) == 0 || len(before) != len(after) {
		return 0
	}
	var idle, total float64
	for i := range before {
		idle += after[i].Idle - before[i].Idle
		total += coreTicks(after[i]) - coreTicks(before[i])
	}
	if total <= 0 {
		return 0
	}
	pct := 100 - idle/total*100
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	}
	return pct
}

func coreTicks(t cpu.TimesStat) float64 {
	return t.User + t.Nice + t.System + t.Irq + t.Idle
}
