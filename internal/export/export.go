// Package export implements ExportSession, the offline render path that
// walks a timeline frame-by-frame at a fixed output fps, composites every
// visible track into one RGBA buffer, mixes the covering audio clips, and
// hands both to an encoder/muxer pair. Grounded on
// original_source/src/export/ExportSession.{h,cpp}.
//
// The concrete video/audio encoders and container muxer are out of this
// module's scope — VideoEncoder, AudioEncoder, and Muxer are specified
// here only as the interfaces ExportSession drives them through. A real
// implementation plugs in an FFmpeg-backed encoder the same way
// internal/codec plugs in a demux/decode backend.
package export

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Wad67/video-editor/internal/clip"
	"github.com/Wad67/video-editor/internal/clock"
	"github.com/Wad67/video-editor/internal/codec"
	"github.com/Wad67/video-editor/internal/config"
	"github.com/Wad67/video-editor/internal/mixer"
	"github.com/Wad67/video-editor/internal/timeline"
)

// State is ExportSession's lifecycle.
type State int

const (
	Idle State = iota
	Running
	Completed
	Failed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return "idle"
	}
}

// activeClipLookahead is the export loop's own activation window, smaller
// than playback's interactive lookahead because export never seeks ahead
// of the frame it's currently compositing.
const activeClipLookahead = 0.5 // seconds

const (
	videoFrameWaitAttempts = 50
	videoFrameWaitInterval = 10 * time.Millisecond
	audioFrameWaitAttempts = 100
	audioFrameWaitInterval = 5 * time.Millisecond
)

// Packet is one encoded access unit handed to a Muxer.
type Packet struct {
	Data        []byte
	PTS         int64
	DTS         int64
	StreamIndex int
}

// VideoEncoder encodes composited RGBA frames into a bitstream.
type VideoEncoder interface {
	Init(settings config.ExportSettings) error
	TimeBase() codec.Rational
	EncodeFrame(rgba []byte, width, height int, frameIndex int64, emit func(Packet)) error
	Flush(emit func(Packet)) error
	Shutdown() error
}

// AudioEncoder encodes interleaved float32 samples into a bitstream.
type AudioEncoder interface {
	Init(settings config.ExportSettings) error
	TimeBase() codec.Rational
	Encode(samples []float32, numSamples int, emit func(Packet)) error
	Flush(emit func(Packet)) error
	Shutdown() error
}

// Muxer writes encoded packets from both streams into one output
// container.
type Muxer interface {
	Open(path string) error
	AddVideoStream(timeBase codec.Rational) (streamIndex int, err error)
	AddAudioStream(timeBase codec.Rational) (streamIndex int, err error)
	WriteHeader() error
	WritePacket(pkt Packet) error
	WriteTrailer() error
	Close() error
}

// ExportSession renders a Timeline to a file on a background goroutine.
// One ExportSession handles exactly one run at a time; Start returns false
// if a render is already in progress.
type ExportSession struct {
	backend      codec.Backend
	videoEncoder VideoEncoder
	audioEncoder AudioEncoder
	muxer        Muxer
	logger       *slog.Logger

	timelineCopy *timeline.Timeline
	settings     config.ExportSettings

	clipPlayers   map[uint32]*clip.Player
	activeClipIDs map[uint32]bool
	audioMixer    *mixer.Mixer
	exportClock   *clock.Clock

	audioBuffer []float32

	wg sync.WaitGroup

	state           atomic.Int32
	cancelRequested atomic.Bool
	progress        atomic.Value // float64
	framesEncoded   atomic.Int64
	totalFrames     atomic.Int64

	errMu   sync.Mutex
	errMsg  string
}

// New returns an ExportSession that decodes through backend and drives the
// given encoder/muxer implementations.
func New(backend codec.Backend, videoEncoder VideoEncoder, audioEncoder AudioEncoder, muxer Muxer, logger *slog.Logger) *ExportSession {
	s := &ExportSession{
		backend:      backend,
		videoEncoder: videoEncoder,
		audioEncoder: audioEncoder,
		muxer:        muxer,
		logger:       logger,
		audioMixer:   mixer.New(mixer.DefaultTuning()),
		exportClock:  clock.New(),
	}
	s.progress.Store(0.0)
	return s
}

func (s *ExportSession) State() State          { return State(s.state.Load()) }
func (s *ExportSession) Progress() float64     { return s.progress.Load().(float64) }
func (s *ExportSession) FramesEncoded() int64  { return s.framesEncoded.Load() }
func (s *ExportSession) TotalFrames() int64    { return s.totalFrames.Load() }

func (s *ExportSession) ErrorMessage() string {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.errMsg
}

// Start begins rendering tl with settings on a background goroutine.
// Returns false (without starting) if a render is already running.
func (s *ExportSession) Start(tl *timeline.Timeline, settings config.ExportSettings) bool {
	if s.State() == Running {
		return false
	}
	s.wg.Wait()

	s.timelineCopy = tl
	s.settings = settings
	s.state.Store(int32(Running))
	s.cancelRequested.Store(false)
	s.progress.Store(0.0)
	s.framesEncoded.Store(0)
	s.clipPlayers = make(map[uint32]*clip.Player)
	s.activeClipIDs = make(map[uint32]bool)
	s.errMu.Lock()
	s.errMsg = ""
	s.errMu.Unlock()

	s.wg.Add(1)
	go s.exportLoop()
	return true
}

// Cancel requests the export loop stop at its next frame boundary.
func (s *ExportSession) Cancel() { s.cancelRequested.Store(true) }

// Wait blocks until the current (or most recent) run's goroutine exits.
func (s *ExportSession) Wait() { s.wg.Wait() }

func (s *ExportSession) fail(msg string) {
	s.logger.Error("export failed", "error", msg)
	s.errMu.Lock()
	s.errMsg = msg
	s.errMu.Unlock()
	s.state.Store(int32(Failed))
}

func (s *ExportSession) exportLoop() {
	defer s.wg.Done()

	s.logger.Info("starting export", "output", s.settings.OutputPath)

	if err := s.muxer.Open(s.settings.OutputPath); err != nil {
		s.fail(fmt.Sprintf("opening output file %q: %v", s.settings.OutputPath, err))
		return
	}

	if err := s.videoEncoder.Init(s.settings); err != nil {
		s.fail(fmt.Sprintf("video encoder init: %v", err))
		s.muxer.Close()
		return
	}
	videoIdx, err := s.muxer.AddVideoStream(s.videoEncoder.TimeBase())
	if err != nil {
		s.fail(fmt.Sprintf("adding video stream: %v", err))
		s.videoEncoder.Shutdown()
		s.muxer.Close()
		return
	}

	if err := s.audioEncoder.Init(s.settings); err != nil {
		s.fail(fmt.Sprintf("audio encoder init: %v", err))
		s.videoEncoder.Shutdown()
		s.muxer.Close()
		return
	}
	audioIdx, err := s.muxer.AddAudioStream(s.audioEncoder.TimeBase())
	if err != nil {
		s.fail(fmt.Sprintf("adding audio stream: %v", err))
		s.audioEncoder.Shutdown()
		s.videoEncoder.Shutdown()
		s.muxer.Close()
		return
	}

	if err := s.muxer.WriteHeader(); err != nil {
		s.fail(fmt.Sprintf("writing container header: %v", err))
		s.audioEncoder.Shutdown()
		s.videoEncoder.Shutdown()
		s.muxer.Close()
		return
	}

	duration := s.timelineCopy.TotalDuration()
	if s.settings.EndTime > 0 && s.settings.EndTime < duration {
		duration = s.settings.EndTime
	}
	startTime := s.settings.StartTime
	exportDuration := duration - startTime
	if exportDuration <= 0 {
		s.fail("export range is empty")
		s.muxer.WriteTrailer()
		s.muxer.Close()
		return
	}

	totalFrames := int64(exportDuration * s.settings.FPS)
	s.totalFrames.Store(totalFrames)

	composite := make([]byte, s.settings.Width*s.settings.Height*4)

	s.exportClock.Set(startTime)
	s.exportClock.Pause()

	frameDuration := 1.0 / s.settings.FPS
	samplesPerFrame := int(float64(s.settings.AudioSampleRate)*frameDuration) + 1
	s.audioBuffer = make([]float32, samplesPerFrame*s.settings.AudioChannels)

	s.logger.Info("exporting", "total_frames", totalFrames, "duration", exportDuration, "fps", s.settings.FPS)

	exportStart := time.Now()

	var frame int64
	for ; frame < totalFrames; frame++ {
		if s.cancelRequested.Load() {
			s.state.Store(int32(Cancelled))
			s.logger.Info("export cancelled", "frame", frame, "total_frames", totalFrames)
			break
		}

		currentTime := startTime + float64(frame)*frameDuration
		s.exportClock.Set(currentTime)

		s.updateActiveClips(currentTime)

		s.compositeFrame(currentTime, composite, s.settings.Width, s.settings.Height)

		if err := s.videoEncoder.EncodeFrame(composite, s.settings.Width, s.settings.Height, frame, func(pkt Packet) {
			pkt.StreamIndex = videoIdx
			s.muxer.WritePacket(pkt)
		}); err != nil {
			s.fail(fmt.Sprintf("encoding video frame %d: %v", frame, err))
			break
		}

		s.encodeAudioForFrame(frameDuration, audioIdx)

		s.framesEncoded.Store(frame + 1)
		s.progress.Store(float64(frame+1) / float64(totalFrames))

		if (frame+1)%100 == 0 || frame+1 == totalFrames {
			elapsed := time.Since(exportStart).Seconds()
			fps := float64(frame+1) / elapsed
			eta := float64(totalFrames-frame-1) / fps
			s.logger.Info("export progress",
				"frame", frame+1, "total_frames", totalFrames,
				"pct", 100*float64(frame+1)/float64(totalFrames),
				"fps", fps, "eta_seconds", eta)
		}
	}

	s.videoEncoder.Flush(func(pkt Packet) {
		pkt.StreamIndex = videoIdx
		s.muxer.WritePacket(pkt)
	})
	s.audioEncoder.Flush(func(pkt Packet) {
		pkt.StreamIndex = audioIdx
		s.muxer.WritePacket(pkt)
	})

	s.muxer.WriteTrailer()

	for _, player := range s.clipPlayers {
		player.Stop()
		player.Close()
	}
	s.clipPlayers = make(map[uint32]*clip.Player)
	s.activeClipIDs = make(map[uint32]bool)
	s.audioMixer.ClearSources()
	s.audioEncoder.Shutdown()
	s.videoEncoder.Shutdown()
	s.muxer.Close()

	if s.State() == Running {
		s.state.Store(int32(Completed))
		elapsed := time.Since(exportStart).Seconds()
		s.logger.Info("export complete", "elapsed_seconds", elapsed, "avg_fps", float64(totalFrames)/elapsed)
	}
}

func (s *ExportSession) updateActiveClips(t float64) {
	lookahead := t + activeClipLookahead

	needed := make(map[uint32]bool)
	for _, track := range s.timelineCopy.Tracks() {
		if !track.Visible && track.Type != timeline.TrackAudio {
			continue
		}
		if track.Type == timeline.TrackImage {
			continue
		}
		for _, clipID := range track.ClipIDs {
			c, ok := s.timelineCopy.Clip(clipID)
			if !ok {
				continue
			}
			if c.TimelineEnd() > t && c.TimelineStart < lookahead {
				needed[clipID] = true
			}
		}
	}

	var toRemove []uint32
	for clipID := range s.activeClipIDs {
		if !needed[clipID] {
			toRemove = append(toRemove, clipID)
		}
	}
	if len(toRemove) > 0 {
		s.audioMixer.ClearSources()
	}
	for _, clipID := range toRemove {
		s.deactivateClip(clipID)
	}

	sourcesChanged := len(toRemove) > 0
	for clipID := range needed {
		if !s.activeClipIDs[clipID] {
			if s.activateClip(clipID) {
				sourcesChanged = true
			}
		}
	}

	if sourcesChanged {
		s.rebuildAudioSources()
	}
}

func (s *ExportSession) activateClip(clipID uint32) bool {
	c, ok := s.timelineCopy.Clip(clipID)
	if !ok {
		return false
	}
	track, ok := s.timelineCopy.Track(c.TrackID)
	if !ok {
		return false
	}
	asset, ok := s.timelineCopy.Asset(c.AssetID)
	if !ok {
		return false
	}

	needVideo := track.Type == timeline.TrackVideo && asset.HasVideo
	needAudio := track.Type == timeline.TrackAudio && asset.HasAudio
	if !needVideo && !needAudio {
		return false
	}

	player, err := clip.Open(s.backend, asset.Path, needVideo, needAudio, mixer.OutputSampleRate)
	if err != nil {
		s.logger.Warn("failed to open clip for export", "clip_id", clipID, "path", asset.Path, "error", err)
		return false
	}
	player.Play()

	currentTime := s.exportClock.Get()
	if currentTime >= c.TimelineStart {
		player.Seek(c.ToSourceTime(currentTime))
	}

	s.clipPlayers[clipID] = player
	s.activeClipIDs[clipID] = true
	return true
}

func (s *ExportSession) deactivateClip(clipID uint32) {
	if player, ok := s.clipPlayers[clipID]; ok {
		player.Stop()
		player.Close()
		delete(s.clipPlayers, clipID)
	}
	delete(s.activeClipIDs, clipID)
}

func (s *ExportSession) rebuildAudioSources() {
	var sources []*mixer.Source
	for clipID, player := range s.clipPlayers {
		if !player.HasAudio() {
			continue
		}
		c, ok := s.timelineCopy.Clip(clipID)
		if !ok {
			continue
		}
		track, ok := s.timelineCopy.Track(c.TrackID)
		if !ok || track.Type != timeline.TrackAudio {
			continue
		}
		sources = append(sources, &mixer.Source{
			Queue: player.AudioFrameQueue(),
			Clip:  exportClipTimeMapper{c},
			Track: exportTrackGain{track},
		})
	}
	s.audioMixer.SetSources(sources)
}

type exportClipTimeMapper struct{ c *timeline.Clip }

func (m exportClipTimeMapper) ToTimelineTime(sourcePTS float64) float64 {
	return (sourcePTS - m.c.SourceIn) + m.c.TimelineStart
}
func (m exportClipTimeMapper) SourceIn() float64 { return m.c.SourceIn }

type exportTrackGain struct{ t *timeline.Track }

func (g exportTrackGain) Muted() bool     { return g.t.Muted }
func (g exportTrackGain) Volume() float32 { return g.t.Volume }

// compositeFrame fills out (outW*outH*4 RGBA bytes) from every visible
// track's active clip at time t, bottom-to-top, resizing through the
// codec backend's Scaler when a clip's native dimensions don't match the
// export target.
func (s *ExportSession) compositeFrame(t float64, out []byte, outW, outH int) {
	for i := range out {
		out[i] = 0
	}

	scaler := s.backend.NewScaler()

	for _, track := range s.timelineCopy.Tracks() {
		if !track.Visible || track.Type == timeline.TrackAudio {
			continue
		}

		c, ok := s.timelineCopy.ActiveClipOnTrack(track.ID, t)
		if !ok {
			continue
		}
		asset, ok := s.timelineCopy.Asset(c.AssetID)
		if !ok {
			continue
		}

		var srcPixels []byte
		var srcW, srcH int

		switch track.Type {
		case timeline.TrackImage:
			if len(asset.ImageBytes) == 0 {
				continue
			}
			srcPixels, srcW, srcH = asset.ImageBytes, asset.Width, asset.Height

		case timeline.TrackVideo:
			player, ok := s.clipPlayers[c.ID]
			if !ok {
				continue
			}
			sourceTime := c.ToSourceTime(t)

			for attempt := 0; attempt < videoFrameWaitAttempts; attempt++ {
				var isNew bool
				srcPixels, srcW, srcH, isNew = player.GetVideoFrameAtTime(sourceTime)
				_ = isNew
				if srcPixels != nil && srcW > 0 && srcH > 0 {
					break
				}
				time.Sleep(videoFrameWaitInterval)
			}
		}

		if srcPixels == nil || srcW <= 0 || srcH <= 0 {
			continue
		}

		if srcW == outW && srcH == outH {
			copy(out, srcPixels)
			continue
		}

		resized, err := scaler.Scale(codec.DecodedVideoFrame{Width: srcW, Height: srcH, Format: codec.PixelFormatRGBA, RGBA: srcPixels}, outW, outH)
		if err != nil {
			s.logger.Warn("composite resize failed", "track_id", track.ID, "error", err)
			continue
		}
		copy(out, resized)
	}
}

// encodeAudioForFrame mixes frameDuration seconds of audio from the
// currently active clips and hands the result to the audio encoder.
// Decode threads run asynchronously and may not have produced a frame by
// the time export first reads, so this waits (bounded) for at least one
// source to have something ready rather than encoding silence it didn't
// need to.
func (s *ExportSession) encodeAudioForFrame(frameDuration float64, audioStreamIndex int) {
	numSamples := int(float64(s.settings.AudioSampleRate) * frameDuration)
	if numSamples <= 0 {
		return
	}
	if len(s.audioBuffer) < numSamples*s.settings.AudioChannels {
		s.audioBuffer = make([]float32, numSamples*s.settings.AudioChannels)
	}

	if s.audioMixer.HasSources() {
		for attempt := 0; attempt < audioFrameWaitAttempts; attempt++ {
			hasFrames := false
			for _, player := range s.clipPlayers {
				if player.HasAudio() && player.AudioFrameQueueSize() > 0 {
					hasFrames = true
					break
				}
			}
			if hasFrames {
				break
			}
			time.Sleep(audioFrameWaitInterval)
		}
	}

	s.audioMixer.FillBuffer(s.audioBuffer, numSamples, s.exportClock)

	s.audioEncoder.Encode(s.audioBuffer, numSamples, func(pkt Packet) {
		pkt.StreamIndex = audioStreamIndex
		s.muxer.WritePacket(pkt)
	})
}
