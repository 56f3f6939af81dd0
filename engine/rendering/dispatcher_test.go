package rendering

import (
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDispatcherVisitsEveryIndexOnce(t *testing.T) {
	tests := []struct {
		name      string
		workers   int
		batchSize int
		n         int
	}{
		{name: "inline", workers: 0, batchSize: 0, n: 100},
		{name: "below batch size", workers: 4, batchSize: 64, n: 10},
		{name: "pooled", workers: 4, batchSize: 8, n: 1000},
		{name: "uneven chunks", workers: 3, batchSize: 1, n: 17},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDispatcher(tt.workers, tt.batchSize)
			hits := make([]int32, tt.n)
			d.ForEach(tt.n, func(i int) {
				atomic.AddInt32(&hits[i], 1)
			})
			for i, h := range hits {
				assert.EqualValues(t, 1, h, "index %d", i)
			}
		})
	}
}

func TestDispatcherZeroIterations(t *testing.T) {
	called := false
	NewDispatcher(2, 1).ForEach(0, func(int) { called = true })
	assert.False(t, called)
}

func TestNilDispatcherRunsInline(t *testing.T) {
	var d *Dispatcher
	sum := 0
	d.ForEach(4, func(i int) { sum += i })
	assert.Equal(t, 6, sum)
	assert.Zero(t, d.Workers())
}

func TestDispatcherRaisesTaskPanicOnCaller(t *testing.T) {
	d := NewDispatcher(2, 1)
	assert.Equal(t, 2, d.Workers())
	assert.PanicsWithValue(t, "rendering: dispatcher task panicked: boom", func() {
		d.ForEach(8, func(i int) {
			if i == 5 {
				panic("boom")
			}
		})
	})

	var count atomic.Int32
	d.ForEach(8, func(int) { count.Add(1) })
	assert.EqualValues(t, 8, count.Load(), "the pool keeps working after a panic")
}

func TestDispatcherInlinePanicPropagates(t *testing.T) {
	assert.Panics(t, func() {
		NewDispatcher(0, 0).ForEach(3, func(int) { panic("inline") })
	})
}

func TestDispatcherCloseStopsWorkers(t *testing.T) {
	before := runtime.NumGoroutine()
	dispatchers := make([]*Dispatcher, 10)
	for i := range dispatchers {
		dispatchers[i] = NewDispatcher(8, 1)
		dispatchers[i].ForEach(64, func(int) {})
	}
	assert.Greater(t, runtime.NumGoroutine(), before)

	for _, d := range dispatchers {
		d.Close()
		d.Close()
	}
	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before
	}, 2*time.Second, 10*time.Millisecond)

	sum := 0
	dispatchers[0].ForEach(4, func(i int) { sum += i })
	assert.Equal(t, 6, sum)
}
