package loop

import (
	"log"
	"sync/atomic"
	"time"
)

// SensorAdvancer is the sensor driver's per-tick hook. Advance must issue
// at most one bus operation and return without blocking.
type SensorAdvancer interface {
	Advance(tick uint32)
}

// MotorHook is the motor-control computation invoked every tick. The
// algorithms behind it are outside this module; the loop only gives them
// their time slot.
type MotorHook func(tick uint32)

// Loop is the fixed-period control loop. The motor hook runs first each
// tick; the sensor driver advances afterwards, in the slack left over, so
// sensor work can never displace control-critical work. Everything in the
// tick body runs in this single goroutine.
type Loop struct {
	period time.Duration
	motor  MotorHook
	sensor SensorAdvancer

	tick     atomic.Uint32
	overruns atomic.Uint64
}

// New creates a loop with the given tick period. motor may be nil.
func New(period time.Duration, motor MotorHook, sensor SensorAdvancer) *Loop {
	return &Loop{period: period, motor: motor, sensor: sensor}
}

// Now returns the current tick counter. Safe from any goroutine; the
// telemetry encoder uses it to derive sample staleness.
func (l *Loop) Now() uint32 {
	return l.tick.Load()
}

// Overruns reports how many ticks exceeded their period budget.
func (l *Loop) Overruns() uint64 {
	return l.overruns.Load()
}

// Step runs exactly one tick body. Exposed for tests and for callers
// driving the loop from their own timer.
func (l *Loop) Step() {
	t := l.tick.Add(1)
	start := time.Now()
	if l.motor != nil {
		l.motor(t)
	}
	l.sensor.Advance(t)
	if elapsed := time.Since(start); elapsed > l.period {
		n := l.overruns.Add(1)
		log.Printf("loop: tick %d overran budget (%v > %v, overrun %d)", t, elapsed, l.period, n)
	}
}

// Run drives the loop from a fixed-period ticker until stop is closed.
func (l *Loop) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(l.period)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			l.Step()
		}
	}
}
