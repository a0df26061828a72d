// Package playback implements TimelinePlayback, the orchestrator that
// turns a timeline.Timeline into moving pictures and sound: it activates
// and deactivates clip.Players as the playhead crosses clip boundaries,
// keeps the mixer's source list in sync, and exposes the transport API
// (play/pause/stop/seek) an external UI drives. Grounded on
// original_source/src/timeline/TimelinePlayback.{h,cpp}, with the
// Vulkan-specific texture/upload plumbing dropped (out of scope) and its
// RGBA-buffer-per-track hold state kept as trackLayerState.
package playback

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Wad67/video-editor/internal/clip"
	"github.com/Wad67/video-editor/internal/clock"
	"github.com/Wad67/video-editor/internal/codec"
	"github.com/Wad67/video-editor/internal/config"
	"github.com/Wad67/video-editor/internal/mixer"
	"github.com/Wad67/video-editor/internal/timeline"
)

// State is the transport state machine.
type State int

const (
	Stopped State = iota
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "stopped"
	}
}

// AudioOutput is the pull-model audio device this package drives. The
// concrete implementation (a platform audio API binding) lives outside
// this module's scope; Playback only needs enough of it to start/stop the
// device and read back its queued-sample latency for clock correction.
type AudioOutput interface {
	StartWithMixer(m *mixer.Mixer, masterClock *clock.Clock)
	Pause()
	Resume()
	// QueuedSeconds is how much audio is buffered in the device but not
	// yet audible — used to correct the reported playhead so external
	// callers see picture-accurate time, not decode-ahead time.
	QueuedSeconds() float64
}

// Layer is one compositable output: either a freshly decoded/staged RGBA
// buffer or (when the clip player produced nothing new this tick) the
// previously emitted buffer for that track.
type Layer struct {
	RGBA    []byte
	Width   int
	Height  int
	TrackID uint32
}

type trackLayerState struct {
	lastBuffer []byte
	lastWidth  int
	lastHeight int
}

// Stats is an optional observability struct a caller can attach to see
// periodic frame-pacing counters, mirroring the original engine's
// stderr debug line but surfaced as structured slog output instead.
type Stats struct {
	logger       *slog.Logger
	newFrames    uint64
	heldFrames   uint64
	fpsWindow    time.Time
	fpsFrames    uint64
	videoFPS     float64
	lastLog      time.Time
}

// NewStats returns a Stats that logs a debug summary roughly once a
// second via logger.
func NewStats(logger *slog.Logger) *Stats {
	now := time.Now()
	return &Stats{logger: logger, fpsWindow: now, lastLog: now}
}

func (s *Stats) recordFrame(isNew bool) {
	if s == nil {
		return
	}
	if isNew {
		s.newFrames++
		s.fpsFrames++
	} else {
		s.heldFrames++
	}
}

func (s *Stats) maybeLog(currentTime, duration float64, activeClips, layers int, audioOn bool) {
	if s == nil {
		return
	}
	now := time.Now()
	if elapsed := now.Sub(s.fpsWindow).Seconds(); elapsed >= 0.5 {
		s.videoFPS = float64(s.fpsFrames) / elapsed
		s.fpsFrames = 0
		s.fpsWindow = now
	}
	if now.Sub(s.lastLog).Seconds() < 1.0 {
		return
	}
	s.logger.Debug("timeline playback",
		"time", currentTime, "duration", duration,
		"active_clips", activeClips, "layers", layers,
		"video_fps", s.videoFPS,
		"new_frames", s.newFrames, "held_frames", s.heldFrames,
		"audio", audioOn)
	s.newFrames = 0
	s.heldFrames = 0
	s.lastLog = now
}

// Playback owns the pool of active clip.Players, the AudioMixer, and the
// master Clock, and makes the timeline authoritative for playback.
type Playback struct {
	mu sync.Mutex

	timeline *timeline.Timeline
	backend  codec.Backend
	audio    AudioOutput
	stats    *Stats

	outputSampleRate int
	tuning           config.PlaybackConfig

	state        State
	masterClock  *clock.Clock
	mixer        *mixer.Mixer
	players      map[uint32]*clip.Player
	activeClips  map[uint32]bool
	trackStates  map[uint32]*trackLayerState
	audioStarted bool
}

// New returns a Playback bound to tl, decoding through backend. audio may
// be nil (video-only operation, e.g. under test). tuning supplies the
// activation lookahead, mixer clock tolerances, and video frame-selection
// tolerances; pass config.Default().Playback for the engine's built-in
// values.
func New(tl *timeline.Timeline, backend codec.Backend, audio AudioOutput, outputSampleRate int, tuning config.PlaybackConfig) *Playback {
	return &Playback{
		timeline:         tl,
		backend:          backend,
		audio:            audio,
		outputSampleRate: outputSampleRate,
		tuning:           tuning,
		masterClock:      clock.New(),
		mixer:            mixer.New(mixerTuning(tuning)),
		players:          make(map[uint32]*clip.Player),
		activeClips:      make(map[uint32]bool),
		trackStates:      make(map[uint32]*trackLayerState),
	}
}

func mixerTuning(p config.PlaybackConfig) mixer.Tuning {
	return mixer.Tuning{
		ClockForwardTolerance: p.ClockForwardToleranceSeconds,
		SeekLockTimeout:       time.Duration(p.SeekLockTimeoutMillis) * time.Millisecond,
		SeekAcceptTolerance:   p.SeekAcceptToleranceSeconds,
		PrerollDiscardSlack:   p.PrerollDiscardSlackSeconds,
	}
}

// SetStats attaches an optional observability sink.
func (p *Playback) SetStats(s *Stats) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats = s
}

func (p *Playback) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Playback) MasterClock() *clock.Clock { return p.masterClock }

// FillAudio is the audio device's pull callback: it mixes frames worth of
// interleaved float32 samples into out and reports how many seconds of
// audio the device has buffered but not yet played, for GetCurrentTime's
// latency correction. A real AudioOutput binding calls this from its own
// callback thread instead of touching the mixer directly.
func (p *Playback) FillAudio(out []float32, frames int) (queuedSeconds float64) {
	p.mixer.FillBuffer(out, frames, p.masterClock)
	if p.audio != nil {
		return p.audio.QueuedSeconds()
	}
	return 0
}

// Duration is the timeline's total duration.
func (p *Playback) Duration() float64 {
	return p.timeline.TotalDuration()
}

// GetCurrentTime returns the audio-device-corrected playhead: the master
// clock minus however much audio is buffered ahead in the device, or the
// raw clock when audio isn't running.
func (p *Playback) GetCurrentTime() float64 {
	p.mu.Lock()
	audioOn := p.audio != nil && p.audioStarted
	p.mu.Unlock()

	if audioOn {
		return p.masterClock.Get() - p.audio.QueuedSeconds()
	}
	return p.masterClock.Get()
}

// Play starts or resumes playback.
func (p *Playback) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == Paused {
		p.masterClock.Resume()
		for _, pl := range p.players {
			pl.Resume()
		}
		if p.audio != nil && p.audioStarted {
			p.audio.Resume()
		}
		p.state = Playing
		return
	}
	if p.state == Playing {
		return
	}

	duration := p.timeline.TotalDuration()
	startPos := p.masterClock.Get()
	if startPos < 0 || (duration > 0 && startPos >= duration) {
		startPos = 0
	}
	p.masterClock.Set(startPos)
	p.masterClock.Resume()
	p.audioStarted = false

	if p.audio != nil {
		p.audio.StartWithMixer(p.mixer, p.masterClock)
	}

	p.state = Playing
	p.updateLocked()

	if p.audio != nil && p.mixer.HasSources() {
		p.audio.Resume()
		p.audioStarted = true
	}
}

// Pause freezes the clock and the audio device.
func (p *Playback) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != Playing {
		return
	}
	p.masterClock.Pause()
	for _, pl := range p.players {
		pl.Pause()
	}
	if p.audio != nil && p.audioStarted {
		p.audio.Pause()
	}
	p.state = Paused
}

// TogglePlayPause flips between Playing and Paused.
func (p *Playback) TogglePlayPause() {
	if p.State() == Playing {
		p.Pause()
	} else {
		p.Play()
	}
}

// Stop tears down every active clip player and resets the clock to 0.
func (p *Playback) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == Stopped {
		return
	}

	for _, pl := range p.players {
		pl.Stop()
		pl.Close()
	}
	p.players = make(map[uint32]*clip.Player)
	p.activeClips = make(map[uint32]bool)
	p.mixer.ClearSources()

	if p.audio != nil {
		p.audio.Pause()
	}

	p.masterClock.Set(0)
	p.masterClock.Pause()
	p.audioStarted = false
	p.state = Stopped
}

// Seek clamps t to the timeline's duration, tears down every active clip
// player, locks the mixer clock, and reactivates whatever clips cover t.
func (p *Playback) Seek(t float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	duration := p.timeline.TotalDuration()
	if t < 0 {
		t = 0
	}
	if t > duration {
		t = duration
	}

	if p.audio != nil && p.audioStarted {
		p.audio.Pause()
	}

	p.masterClock.Set(t)

	for _, pl := range p.players {
		pl.Stop()
		pl.Close()
	}
	p.players = make(map[uint32]*clip.Player)
	p.activeClips = make(map[uint32]bool)
	p.mixer.ClearSources()

	p.mixer.LockClockForSeek(t)

	if p.state != Stopped {
		p.updateLocked()
		if p.audio != nil && p.state == Playing && p.mixer.HasSources() {
			p.audio.Resume()
			p.audioStarted = true
		}
	}
}

// Update activates/deactivates clip players based on the current playhead.
// Call this once per UI tick; PrepareFrame does not call it, so the call
// site is left to the caller, matching the original's per-frame `update()`
// tick.
func (p *Playback) Update() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updateLocked()
}

func (p *Playback) updateLocked() {
	if p.state == Stopped {
		return
	}

	now := p.masterClock.Get()
	lookahead := now + p.tuning.ActivationLookaheadSeconds

	needed := make(map[uint32]bool)
	for _, track := range p.timeline.Tracks() {
		if !track.Visible && track.Type != timeline.TrackAudio {
			continue
		}
		if track.Type == timeline.TrackImage {
			continue
		}
		for _, clipID := range track.ClipIDs {
			c, ok := p.timeline.Clip(clipID)
			if !ok {
				continue
			}
			if c.TimelineEnd() > now && c.TimelineStart < lookahead {
				needed[clipID] = true
			}
		}
	}

	var toRemove []uint32
	for clipID := range p.activeClips {
		if !needed[clipID] {
			toRemove = append(toRemove, clipID)
		}
	}

	if len(toRemove) > 0 {
		// Cleared before destroying any player so the audio callback can
		// never dereference a queue belonging to a player about to be
		// closed.
		p.mixer.ClearSources()
	}
	for _, clipID := range toRemove {
		p.deactivateClipLocked(clipID)
	}

	sourcesChanged := len(toRemove) > 0
	for clipID := range needed {
		if !p.activeClips[clipID] {
			if p.activateClipLocked(clipID, now) {
				sourcesChanged = true
			}
		}
	}

	if sourcesChanged {
		p.rebuildAudioSourcesLocked()
		if p.audio != nil && !p.audioStarted && p.state == Playing && p.mixer.HasSources() {
			p.audio.Resume()
			p.audioStarted = true
		}
	}
}

func (p *Playback) activateClipLocked(clipID uint32, now float64) bool {
	c, ok := p.timeline.Clip(clipID)
	if !ok {
		return false
	}
	track, ok := p.timeline.Track(c.TrackID)
	if !ok {
		return false
	}
	asset, ok := p.timeline.Asset(c.AssetID)
	if !ok {
		return false
	}

	needVideo := track.Type == timeline.TrackVideo && asset.HasVideo
	needAudio := track.Type == timeline.TrackAudio && asset.HasAudio
	if !needVideo && !needAudio {
		return false
	}

	player, err := clip.Open(p.backend, asset.Path, needVideo, needAudio, p.outputSampleRate)
	if err != nil {
		if p.stats != nil {
			p.stats.logger.Warn("failed to open clip", "clip_id", clipID, "path", asset.Path, "error", err)
		}
		return false
	}
	if p.tuning.VideoFrameSkipToleranceFactor > 0 || p.tuning.VideoFrameHoldToleranceFactor > 0 {
		player.SetFrameTolerances(p.tuning.VideoFrameSkipToleranceFactor, p.tuning.VideoFrameHoldToleranceFactor)
	}
	player.Play()

	if now >= c.TimelineStart {
		player.Seek(c.ToSourceTime(now))
	}

	p.players[clipID] = player
	p.activeClips[clipID] = true
	return true
}

func (p *Playback) deactivateClipLocked(clipID uint32) {
	player, ok := p.players[clipID]
	if !ok {
		delete(p.activeClips, clipID)
		return
	}
	player.Stop()
	player.Close()
	delete(p.players, clipID)
	delete(p.activeClips, clipID)
}

func (p *Playback) rebuildAudioSourcesLocked() {
	var sources []*mixer.Source
	for clipID, player := range p.players {
		if !player.HasAudio() {
			continue
		}
		c, ok := p.timeline.Clip(clipID)
		if !ok {
			continue
		}
		track, ok := p.timeline.Track(c.TrackID)
		if !ok || track.Type != timeline.TrackAudio {
			continue
		}
		sources = append(sources, &mixer.Source{
			Queue: player.AudioFrameQueue(),
			Clip:  clipTimeMapper{c},
			Track: trackGain{track},
		})
	}
	p.mixer.SetSources(sources)
}

type clipTimeMapper struct{ c *timeline.Clip }

func (m clipTimeMapper) ToTimelineTime(sourcePTS float64) float64 {
	return (sourcePTS - m.c.SourceIn) + m.c.TimelineStart
}
func (m clipTimeMapper) SourceIn() float64 { return m.c.SourceIn }

type trackGain struct{ t *timeline.Track }

func (g trackGain) Muted() bool     { return g.t.Muted }
func (g trackGain) Volume() float32 { return g.t.Volume }

// PrepareFrame walks the timeline's tracks bottom-to-top and returns the
// ordered list of layers the external compositor should draw this tick,
// newest track last (on top).
func (p *Playback) PrepareFrame() ([]Layer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.timeline == nil {
		return nil, fmt.Errorf("playback: no timeline set")
	}

	now := p.currentTimeLocked()
	var layers []Layer

	for _, track := range p.timeline.Tracks() {
		if !track.Visible || track.Type == timeline.TrackAudio {
			continue
		}

		c, ok := p.timeline.ActiveClipOnTrack(track.ID, now)
		if !ok {
			continue
		}
		asset, ok := p.timeline.Asset(c.AssetID)
		if !ok {
			continue
		}

		switch track.Type {
		case timeline.TrackImage:
			if len(asset.ImageBytes) == 0 || asset.Width <= 0 || asset.Height <= 0 {
				continue
			}
			layers = append(layers, Layer{RGBA: asset.ImageBytes, Width: asset.Width, Height: asset.Height, TrackID: track.ID})

		case timeline.TrackVideo:
			player, ok := p.players[c.ID]
			if !ok {
				continue
			}
			sourceTime := c.ToSourceTime(now)
			rgba, w, h, isNew := player.GetVideoFrameAtTime(sourceTime)

			state := p.trackStates[track.ID]
			if state == nil {
				state = &trackLayerState{}
				p.trackStates[track.ID] = state
			}

			if rgba == nil || w <= 0 || h <= 0 {
				p.stats.recordFrame(false)
				if state.lastBuffer != nil {
					layers = append(layers, Layer{RGBA: state.lastBuffer, Width: state.lastWidth, Height: state.lastHeight, TrackID: track.ID})
				}
				continue
			}

			p.stats.recordFrame(isNew)
			if !isNew {
				if state.lastBuffer != nil {
					layers = append(layers, Layer{RGBA: state.lastBuffer, Width: state.lastWidth, Height: state.lastHeight, TrackID: track.ID})
				}
				continue
			}

			state.lastBuffer = rgba
			state.lastWidth = w
			state.lastHeight = h
			layers = append(layers, Layer{RGBA: rgba, Width: w, Height: h, TrackID: track.ID})
		}
	}

	p.stats.maybeLog(now, p.timeline.TotalDuration(), len(p.activeClips), len(layers), p.audioStarted)
	return layers, nil
}

func (p *Playback) currentTimeLocked() float64 {
	if p.audio != nil && p.audioStarted {
		return p.masterClock.Get() - p.audio.QueuedSeconds()
	}
	return p.masterClock.Get()
}
