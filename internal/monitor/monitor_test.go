package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"hostpulse/internal/collector"
	"hostpulse/internal/history"
	"hostpulse/internal/models"
)

func TestCycleRecordsAndAggregates(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newTestStore(t)
	seed := []models.Sample{
		{Time: now.Add(-7 * time.Hour), CPU: 99, RAM: 99},
		{Time: now.Add(-90 * time.Minute), CPU: 50, RAM: 60, Ping: ptr(15)},
	}
	writeHistory(t, store.Path(), seed)

	archive := &fakeArchive{}
	sampler := &fakeSampler{snap: models.Snapshot{Sample: models.Sample{Time: now.Add(-30 * time.Minute), CPU: 10, RAM: 20, Ping: ptr(5)}}}
	m := newTestMonitor(t, store, sampler, archive, now)

	if got := store.Len(); got != 1 {
		t.Fatalf("window after startup prune = %d, want 1", got)
	}

	m.Cycle(context.Background())

	series := m.Series()
	if len(series) != 6 {
		t.Fatalf("series len = %d, want 6", len(series))
	}
	if b := series[5]; b.AvgCPU != 10 || b.AvgRAM != 20 || b.AvgPing != 5 {
		t.Fatalf("newest bucket = %+v", b)
	}
	if b := series[4]; b.AvgCPU != 50 || b.AvgRAM != 60 || b.AvgPing != 15 {
		t.Fatalf("second bucket = %+v", b)
	}
	for i := 0; i < 4; i++ {
		if series[i] != (models.Bucket{Label: series[i].Label}) {
			t.Fatalf("bucket %d not zero-filled: %+v", i, series[i])
		}
	}
	if len(archive.got) != 1 {
		t.Fatalf("archived = %d, want 1", len(archive.got))
	}

	reloaded := history.NewStore(store.Path(), discard()).Load()
	if len(reloaded) != 2 {
		t.Fatalf("persisted window = %d, want 2", len(reloaded))
	}
}

func TestCycleSurvivesArchiveAndPersistFailures(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("seed blocker: %v", err)
	}
	store := history.NewStore(filepath.Join(blocker, "history.json"), discard())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sampler := &fakeSampler{snap: models.Snapshot{Sample: models.Sample{Time: now.Add(-time.Minute), CPU: 42, RAM: 42}}}
	m := newTestMonitor(t, store, sampler, &fakeArchive{err: errors.New("disk full")}, now)

	m.Cycle(context.Background())
	m.Cycle(context.Background())

	if store.Len() != 2 {
		t.Fatalf("in-memory window = %d, want 2", store.Len())
	}
	if got := m.Series()[5].AvgCPU; got != 42 {
		t.Fatalf("newest cpu = %d, want 42", got)
	}
}

func TestCycleSkippedAfterShutdown(t *testing.T) {
	store := newTestStore(t)
	sampler := &fakeSampler{}
	m := newTestMonitor(t, store, sampler, nil, time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m.Cycle(ctx)
	if sampler.calls.Load() != 0 || store.Len() != 0 {
		t.Fatalf("cycle ran after cancellation: calls=%d len=%d", sampler.calls.Load(), store.Len())
	}
}

func TestCyclesAreSerialized(t *testing.T) {
	store := newTestStore(t)
	sampler := &fakeSampler{delay: 20 * time.Millisecond}
	m := newTestMonitor(t, store, sampler, nil, time.Now())

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Cycle(context.Background())
		}()
	}
	wg.Wait()
	if got := sampler.maxInFlight.Load(); got != 1 {
		t.Fatalf("max concurrent cycles = %d, want 1", got)
	}
	if store.Len() != 5 {
		t.Fatalf("window = %d, want 5", store.Len())
	}
}

func TestCurrentStatsLabels(t *testing.T) {
	store := newTestStore(t)
	sampler := &fakeSampler{snap: models.Snapshot{
		Sample:        models.Sample{CPU: 42.34, RAM: 20, Ping: ptr(18.5)},
		MemUsedBytes:  3447000000,
		MemTotalBytes: 16 << 30,
	}}
	m := newTestMonitor(t, store, sampler, nil, time.Now())

	st := m.CurrentStats(context.Background())
	if st.CPUUsage != "42.3% / 100%" {
		t.Fatalf("cpu label = %q", st.CPUUsage)
	}
	if st.RAMUsage != "3.21GB / 16.00GB" {
		t.Fatalf("ram label = %q", st.RAMUsage)
	}
	if st.PingMs != 18.5 {
		t.Fatalf("ping = %v, want 18.5", st.PingMs)
	}
	if len(st.Series) != 6 {
		t.Fatalf("series len = %d, want 6", len(st.Series))
	}
}

func TestCurrentStatsMissingPingIsZero(t *testing.T) {
	store := newTestStore(t)
	m := newTestMonitor(t, store, &fakeSampler{snap: models.Snapshot{Sample: models.Sample{CPU: 1}}}, nil, time.Now())
	if st := m.CurrentStats(context.Background()); st.PingMs != 0 {
		t.Fatalf("ping = %v, want 0", st.PingMs)
	}
}

func TestCurrentStatsTimeoutReturnsPlaceholder(t *testing.T) {
	store := newTestStore(t)
	m := newTestMonitor(t, store, blockingSampler{}, nil, time.Now())
	m.opts.StatsTimeout = 50 * time.Millisecond

	start := time.Now()
	st := m.CurrentStats(context.Background())
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("CurrentStats took %s", elapsed)
	}
	if st.CPUUsage != Unavailable || st.RAMUsage != Unavailable || st.PingMs != 0 {
		t.Fatalf("placeholder = %+v", st)
	}
	if len(st.Series) != 6 {
		t.Fatalf("series len = %d, want 6", len(st.Series))
	}
}

func TestCurrentStatsProbeTimeoutYieldsZeroPing(t *testing.T) {
	probe := &collector.Probe{Bin: "sleep", Args: []string{"10"}, Timeout: 100 * time.Millisecond}
	sampler := collector.NewHostSampler(10*time.Millisecond, probe, discard())
	m := New(Options{StatsTimeout: 3 * time.Second}, sampler, newTestStore(t), nil, discard())

	start := time.Now()
	st := m.CurrentStats(context.Background())
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("CurrentStats took %s, want within the stats timeout", elapsed)
	}
	if st.PingMs != 0 {
		t.Fatalf("ping = %v, want 0", st.PingMs)
	}
	if st.CPUUsage == Unavailable {
		t.Fatalf("expected a real reading, got placeholder")
	}
}

func TestLabels(t *testing.T) {
	if got := CPULabel(0); got != "0.0% / 100%" {
		t.Fatalf("CPULabel(0) = %q", got)
	}
	if got := MemoryLabel(0, 0); got != "0.00GB / 0.00GB" {
		t.Fatalf("MemoryLabel(0,0) = %q", got)
	}
}

type fakeSampler struct {
	snap  models.Snapshot
	delay time.Duration

	calls       atomic.Int64
	inFlight    atomic.Int64
	maxInFlight atomic.Int64
}

func (f *fakeSampler) Sample(ctx context.Context) models.Snapshot {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		cur := f.maxInFlight.Load()
		if n <= cur || f.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	snap := f.snap
	if snap.Time.IsZero() {
		snap.Time = time.Now().UTC()
	}
	return snap
}

type blockingSampler struct{}

func (blockingSampler) Sample(ctx context.Context) models.Snapshot {
	<-ctx.Done()
	return models.Snapshot{}
}

type fakeArchive struct {
	mu  sync.Mutex
	got []models.Snapshot
	err error
}

func (f *fakeArchive) InsertSample(_ context.Context, s models.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.got = append(f.got, s)
	return nil
}

func newTestMonitor(t *testing.T, store *history.Store, sampler Sampler, archive *fakeArchive, now time.Time) *Monitor {
	t.Helper()
	opts := Options{Retention: 6 * time.Hour, BucketCount: 6, BucketWidth: time.Hour, StatsTimeout: 2 * time.Second, Location: time.UTC}
	var a Archive
	if archive != nil {
		a = archive
	}
	m := &Monitor{opts: opts, sampler: sampler, store: store, archive: a, log: discard(), now: func() time.Time { return now }}
	m.init()
	return m
}

func newTestStore(t *testing.T) *history.Store {
	t.Helper()
	return history.NewStore(filepath.Join(t.TempDir(), "history.json"), discard())
}

func writeHistory(t *testing.T, path string, window []models.Sample) {
	t.Helper()
	b, err := json.Marshal(window)
	if err != nil {
		t.Fatalf("marshal history: %v", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("write history: %v", err)
	}
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func ptr(v float64) *float64 { return &v }
