// Package clock implements the monotonic playhead used by playback and
// export: a PTS value that advances with wall time unless paused, and that
// can be nudged forward without ever retreating.
package clock

import (
	"math"
	"sync/atomic"
	"time"
)

// Clock is the canonical playhead. One instance backs a single playback or
// export session. All fields are accessed through atomics so the audio
// callback thread and the main thread never need a mutex to read or update
// it.
type Clock struct {
	pts        atomic.Uint64 // float64 bits
	lastUpdate atomic.Uint64 // float64 bits, monotonic seconds
	paused     atomic.Bool
}

// New returns a Clock starting at pts 0.0, paused.
func New() *Clock {
	c := &Clock{}
	c.pts.Store(f64bits(0))
	c.lastUpdate.Store(f64bits(nowSeconds()))
	c.paused.Store(true)
	return c
}

// Get returns the current playhead: the stored pts while paused, or pts plus
// elapsed wall time since the last update/resume while running.
func (c *Clock) Get() float64 {
	if c.paused.Load() {
		return f64val(c.pts.Load())
	}
	elapsed := nowSeconds() - f64val(c.lastUpdate.Load())
	return f64val(c.pts.Load()) + elapsed
}

// Set forces the playhead to pts, rebasing the wall-time reference.
func (c *Clock) Set(pts float64) {
	c.pts.Store(f64bits(pts))
	c.lastUpdate.Store(f64bits(nowSeconds()))
}

// SetIfForward only applies Set if pts is not behind the current Get() by
// more than tolerance seconds. This is how the audio callback thread is
// allowed to advance the clock without ever retreating it mid-playback.
func (c *Clock) SetIfForward(pts float64, tolerance float64) {
	if pts >= c.Get()-tolerance {
		c.Set(pts)
	}
}

// Pause freezes the clock at its current value.
func (c *Clock) Pause() {
	c.Set(c.Get())
	c.paused.Store(true)
}

// Resume rebases the wall-time reference and lets the clock advance again.
func (c *Clock) Resume() {
	c.lastUpdate.Store(f64bits(nowSeconds()))
	c.paused.Store(false)
}

// IsPaused reports whether the clock is currently frozen.
func (c *Clock) IsPaused() bool {
	return c.paused.Load()
}

func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

func f64bits(v float64) uint64 {
	return math.Float64bits(v)
}

func f64val(bits uint64) float64 {
	return math.Float64frombits(bits)
}
