package profiler

import "time"

// ProfilerBuilderOption is a functional option used to configure a Profiler during construction.
type ProfilerBuilderOption func(*Profiler)

// WithUpdateInterval sets how often stats are logged.
//
// Parameters:
//   - interval: the reporting interval, ignored when not positive
//
// Returns:
//   - ProfilerBuilderOption: option function to apply
func WithUpdateInterval(interval time.Duration) ProfilerBuilderOption {
	return func(p *Profiler) {
		if interval > 0 {
			p.updateInterval = interval
		}
	}
}

// WithClock replaces time.Now.
//
// Parameters:
//   - clock: the time source
//
// Returns:
//   - ProfilerBuilderOption: option function to apply
func WithClock(clock func() time.Time) ProfilerBuilderOption {
	return func(p *Profiler) {
		if clock != nil {
			p.clock = clock
		}
	}
}
