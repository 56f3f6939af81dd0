package profiler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func TestTickReportsAfterInterval(t *testing.T) {
	clock := &fakeClock{now: time.Unix(100, 0)}
	p := NewProfiler(WithUpdateInterval(time.Second), WithClock(clock.Now))

	for range 29 {
		clock.now = clock.now.Add(33 * time.Millisecond)
		assert.False(t, p.Tick())
	}
	clock.now = clock.now.Add(100 * time.Millisecond)
	assert.True(t, p.Tick())

	snap := p.Last()
	assert.Equal(t, 30, snap.Frames)
	assert.InDelta(t, 30/1.057, snap.FPS, 0.01)
	assert.False(t, p.Tick(), "the interval restarts")
}

func TestPhaseTimings(t *testing.T) {
	clock := &fakeClock{now: time.Unix(100, 0)}
	p := NewProfiler(WithClock(clock.Now))

	stop := p.Begin(PhasePrepare)
	clock.now = clock.now.Add(4 * time.Millisecond)
	stop()
	p.Record(PhasePrepare, 2*time.Millisecond)
	p.Record(PhaseDraw, time.Millisecond)

	clock.now = clock.now.Add(time.Second)
	assert.True(t, p.Tick())

	phases := p.Last().Phases
	assert.Equal(t, PhaseStats{Total: 6 * time.Millisecond, Max: 4 * time.Millisecond, Count: 2}, phases[PhasePrepare])
	assert.Equal(t, 3*time.Millisecond, phases[PhasePrepare].Average())
	assert.Equal(t, 1, phases[PhaseDraw].Count)
	assert.Zero(t, PhaseStats{}.Average())
}

func TestNilProfilerIsNoop(t *testing.T) {
	var p *Profiler
	p.Begin(PhaseCollect)()
	p.Record(PhaseCollect, time.Second)
	assert.False(t, p.Tick())
}
