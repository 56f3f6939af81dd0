package profiler

import (
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-pipeline/common"
)

// Phase names a timed section of a frame.
type Phase string

// Frame phases timed by the compositor.
const (
	PhaseCollect Phase = "collect"
	PhaseExtract Phase = "extract"
	PhasePrepare Phase = "prepare"
	PhaseDraw    Phase = "draw"
	PhaseFlush   Phase = "flush"
)

// PhaseStats is the accumulated time of one phase over the current interval.
type PhaseStats struct {
	Total time.Duration
	Max   time.Duration
	Count int
}

// Average returns the mean duration of the phase, 0 when it never ran.
func (s PhaseStats) Average() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

// Snapshot is the state reported at the end of an interval.
type Snapshot struct {
	FPS          float64
	Frames       int
	Phases       map[Phase]PhaseStats
	HeapMB       float64
	SysMB        float64
	AllocRateMB  float64
	GCCount      uint32
	LastPauseUs  uint64
	MaxPauseUs   uint64
	IntervalTime time.Duration
}

// Profiler tracks frame rate, per-phase timings and memory statistics.
// Outputs stats through the package logger at a configurable interval.
type Profiler struct {
	mu             *sync.Mutex
	frameCount     int
	lastTime       time.Time
	updateInterval time.Duration
	clock          func() time.Time
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64
	phases         map[Phase]PhaseStats
	last           Snapshot
}

// NewProfiler creates a new Profiler.
// Update interval defaults to 1 second.
//
// Parameters:
//   - opts: functional options (interval, clock)
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(opts ...ProfilerBuilderOption) *Profiler {
	p := &Profiler{
		mu:             &sync.Mutex{},
		updateInterval: time.Second,
		clock:          time.Now,
		phases:         make(map[Phase]PhaseStats),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.lastTime = p.clock()
	return p
}

// Begin starts timing a phase. The returned function stops it.
//
// Parameters:
//   - phase: the phase being timed
//
// Returns:
//   - func(): records the elapsed time when called
func (p *Profiler) Begin(phase Phase) func() {
	if p == nil {
		return func() {}
	}
	start := p.clock()
	return func() {
		p.Record(phase, p.clock().Sub(start))
	}
}

// Record adds a measured duration to a phase.
//
// Parameters:
//   - phase: the phase
//   - d: the measured duration
func (p *Profiler) Record(phase Phase, d time.Duration) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.phases[phase]
	s.Total += d
	s.Count++
	s.Max = max(s.Max, d)
	p.phases[phase] = s
}

// Last returns the snapshot of the last completed interval.
func (p *Profiler) Last() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Tick should be called once per frame to track frame timing.
// Logs performance statistics when the update interval has elapsed.
// Statistics include: FPS, phase timings, heap usage, allocation rate, GC count/pause times, total memory.
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Tick() bool {
	if p == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.frameCount++
	currentTime := p.clock()
	elapsed := currentTime.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return false
	}

	runtime.ReadMemStats(&p.memStats)
	// Alloc: live heap, TotalAlloc: cumulative churn, Sys: process footprint.
	snap := Snapshot{
		FPS:          float64(p.frameCount) / elapsed.Seconds(),
		Frames:       p.frameCount,
		Phases:       p.phases,
		HeapMB:       float64(p.memStats.Alloc) / 1024 / 1024,
		SysMB:        float64(p.memStats.Sys) / 1024 / 1024,
		AllocRateMB:  float64(p.memStats.TotalAlloc-p.lastTotalAlloc) / 1024 / 1024 / elapsed.Seconds(),
		GCCount:      p.memStats.NumGC,
		IntervalTime: elapsed,
	}

	gcCount := p.memStats.NumGC
	if gcCount > 0 {
		// PauseNs is a circular buffer of the last 256 GC pauses.
		snap.LastPauseUs = p.memStats.PauseNs[(gcCount-1)%256] / 1000
		startIdx := p.lastGCCount
		if gcCount-startIdx > 256 {
			startIdx = gcCount - 256
		}
		for i := startIdx; i < gcCount; i++ {
			snap.MaxPauseUs = max(snap.MaxPauseUs, p.memStats.PauseNs[i%256]/1000)
		}
	}

	attrs := []any{
		slog.Float64("fps", snap.FPS),
		slog.Float64("heap_mb", snap.HeapMB),
		slog.Float64("alloc_rate_mb", snap.AllocRateMB),
		slog.Uint64("gc", uint64(snap.GCCount)),
		slog.Uint64("gc_last_pause_us", snap.LastPauseUs),
		slog.Uint64("gc_max_pause_us", snap.MaxPauseUs),
		slog.Float64("sys_mb", snap.SysMB),
	}
	for _, phase := range []Phase{PhaseCollect, PhaseExtract, PhasePrepare, PhaseDraw, PhaseFlush} {
		if s, ok := snap.Phases[phase]; ok {
			attrs = append(attrs, slog.Duration(string(phase), s.Average()))
		}
	}
	common.Logger().Info("frame stats", attrs...)

	p.last = snap
	p.frameCount = 0
	p.lastTime = currentTime
	p.lastGCCount = gcCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	p.phases = make(map[Phase]PhaseStats)
	return true
}
