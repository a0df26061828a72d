// Package mixer implements AudioMixer, the single point where every
// active clip's decoded audio converges into one interleaved float32
// stream and where the master playback clock gets its authoritative
// updates. Grounded on
// original_source/src/media/AudioMixer.{h,cpp}, with one deliberate
// redesign: where the original unconditionally calls masterClock.set()
// once a source's frame is accepted, this mixer uses Clock.SetIfForward
// during normal playback, and adds an explicit pre-roll discard check the
// original doesn't have.
package mixer

import (
	"sync"
	"time"

	"github.com/Wad67/video-editor/internal/clock"
	"github.com/Wad67/video-editor/internal/queue"
)

const (
	// OutputSampleRate is the mixer's fixed output rate; every
	// AudioDecoder resamples to this rate before its frames ever reach
	// the mixer.
	OutputSampleRate = 48000
	// OutputChannels is the mixer's fixed interleaved channel count.
	OutputChannels = 2
)

// Tuning holds the mixer's configurable timing tolerances, normally
// sourced from internal/config.PlaybackConfig.
type Tuning struct {
	ClockForwardTolerance float64
	SeekLockTimeout       time.Duration
	SeekAcceptTolerance   float64
	PrerollDiscardSlack   float64
}

// DefaultTuning matches this engine's built-in constants.
func DefaultTuning() Tuning {
	return Tuning{
		ClockForwardTolerance: 0.1,
		SeekLockTimeout:       1000 * time.Millisecond,
		SeekAcceptTolerance:   3.0,
		PrerollDiscardSlack:   0.05,
	}
}

// ClipTimeMapper resolves a source-time PTS to the track volume/mute state
// and the timeline-time mapping a mix source needs. clip/track are narrow
// interfaces rather than *timeline.Clip/*timeline.Track so this package
// doesn't need to import internal/timeline.
type ClipTimeMapper interface {
	// ToTimelineTime maps a source PTS (seconds) to timeline time
	// (seconds).
	ToTimelineTime(sourcePTS float64) float64
	// SourceIn is the clip's source-in point, used for pre-roll discard.
	SourceIn() float64
}

// TrackGain exposes the per-track mix controls a Source reads every
// fillBuffer call.
type TrackGain interface {
	Muted() bool
	Volume() float32
}

// Source is one clip's contribution to the mix.
type Source struct {
	Queue *queue.AudioFrameQueue
	Clip  ClipTimeMapper // nil if this source has no clip context (rare)
	Track TrackGain

	frameByteOffset int
}

// Mixer combines every active Source into one interleaved float32 stream
// and drives the master Clock from the PTS of each frame it starts reading.
// Safe for concurrent use: fillBuffer runs on the audio device's callback
// thread while setSources/clearSources/lockClockForSeek run on the main
// thread.
type Mixer struct {
	mu sync.Mutex

	tuning Tuning

	sources []*Source
	tempBuf []float32

	clockLocked    bool
	seekTargetTime float64
	clockLockedAt  time.Time
}

// New returns an empty Mixer using the given tuning.
func New(tuning Tuning) *Mixer { return &Mixer{tuning: tuning} }

// SetSources atomically replaces the active source set, resetting every
// source's partial-frame read state.
func (m *Mixer) SetSources(sources []*Source) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sources {
		s.frameByteOffset = 0
	}
	m.sources = sources
}

// ClearSources empties the active source set.
func (m *Mixer) ClearSources() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources = nil
}

// HasSources reports whether the mixer currently has any source.
func (m *Mixer) HasSources() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sources) > 0
}

// LockClockForSeek suppresses clock updates from stale pre-seek audio until
// a frame near targetTime arrives, or the tuning's SeekLockTimeout elapses, whichever
// comes first.
func (m *Mixer) LockClockForSeek(targetTime float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clockLocked = true
	m.seekTargetTime = targetTime
	m.clockLockedAt = time.Now()
}

// FillBuffer mixes every unmuted source into out (interleaved float32,
// frames*OutputChannels long), clamping the result to [-1, 1]. Called from
// the audio device callback thread; it must never block on decode — sources
// that have nothing ready contribute silence for this call via TryPeek's
// non-blocking read.
func (m *Mixer) FillBuffer(out []float32, frames int, masterClock *clock.Clock) {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := frames * OutputChannels
	for i := range out[:total] {
		out[i] = 0
	}
	if len(m.sources) == 0 {
		return
	}
	if cap(m.tempBuf) < total {
		m.tempBuf = make([]float32, total)
	}
	buf := m.tempBuf[:total]

	for _, src := range m.sources {
		if src.Queue == nil {
			continue
		}
		if src.Track != nil && src.Track.Muted() {
			continue
		}
		volume := float32(1.0)
		if src.Track != nil {
			volume = src.Track.Volume()
		}

		n := m.readSource(src, buf, frames, masterClock)
		if n <= 0 {
			continue
		}
		samples := n * OutputChannels
		for i := 0; i < samples; i++ {
			out[i] += buf[i] * volume
		}
	}

	for i := 0; i < total; i++ {
		if out[i] > 1.0 {
			out[i] = 1.0
		} else if out[i] < -1.0 {
			out[i] = -1.0
		}
	}
}

// readSource fills up to frames interleaved frames from src into buf,
// zero-filling any shortfall (an underrun plays as silence). Must be
// called with m.mu held.
func (m *Mixer) readSource(src *Source, buf []float32, frames int, masterClock *clock.Clock) int {
	written := 0

	for written < frames {
		frame, ok := src.Queue.TryPeek()
		if !ok {
			break
		}

		if src.frameByteOffset == 0 {
			sourcePTS := frame.PTS

			if src.Clip != nil && sourcePTS < src.Clip.SourceIn()-m.tuning.PrerollDiscardSlack {
				src.Queue.DropFront()
				src.frameByteOffset = 0
				continue
			}

			timelineTime := sourcePTS
			if src.Clip != nil {
				timelineTime = src.Clip.ToTimelineTime(sourcePTS)
			}

			if m.clockLocked {
				agedOut := time.Since(m.clockLockedAt) > m.tuning.SeekLockTimeout
				nearTarget := timelineTime >= m.seekTargetTime-m.tuning.SeekAcceptTolerance
				if nearTarget || agedOut {
					m.clockLocked = false
					masterClock.Set(timelineTime)
				} else {
					src.Queue.DropFront()
					src.frameByteOffset = 0
					continue
				}
			} else {
				masterClock.SetIfForward(timelineTime, m.tuning.ClockForwardTolerance)
			}
		}

		frameSamples := len(frame.Samples) - src.frameByteOffset
		needed := (frames - written) * OutputChannels

		if frameSamples <= needed {
			copy(buf[written*OutputChannels:], frame.Samples[src.frameByteOffset:])
			written += frameSamples / OutputChannels
			src.frameByteOffset = 0
			src.Queue.DropFront()
		} else {
			copy(buf[written*OutputChannels:written*OutputChannels+needed], frame.Samples[src.frameByteOffset:src.frameByteOffset+needed])
			src.frameByteOffset += needed
			written += needed / OutputChannels
		}
	}

	for i := written * OutputChannels; i < frames*OutputChannels && i < len(buf); i++ {
		buf[i] = 0
	}

	return written
}
