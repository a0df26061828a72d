// Package clip implements ClipPlayer, the per-clip on-demand decoder.
// Grounded on original_source/src/timeline/ClipPlayer.{h,cpp} for the
// demux loop, stream selection, seek handling, and the asymmetric
// GetVideoFrameAtTime tolerance window, and on
// modules/framesupplier/internal/supplier.go's
// context+cancel+sync.WaitGroup goroutine lifecycle idiom for the demux
// thread.
package clip

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Wad67/video-editor/internal/codec"
	"github.com/Wad67/video-editor/internal/media"
	"github.com/Wad67/video-editor/internal/queue"
)

// Player is one ClipPlayer: it decodes on demand from a source file for a
// caller-specified mix of streams and exposes just-in-time reads. It does
// not pace itself against wall-clock time — the caller drives it with a
// target source time derived from the timeline's master clock.
type Player struct {
	backend  codec.Backend
	mediaFile *media.MediaFile

	videoDecoder *media.VideoDecoder
	audioDecoder *media.AudioDecoder

	videoStreamIdx int
	audioStreamIdx int

	videoPacketQueue *queue.PacketQueue
	videoFrameQueue  *queue.VideoFrameQueue
	audioPacketQueue *queue.PacketQueue
	audioFrameQueue  *queue.AudioFrameQueue

	demuxCtx    context.Context
	demuxCancel context.CancelFunc
	demuxWG     sync.WaitGroup

	seekRequested atomic.Bool
	seekTarget    atomic.Uint64 // float64 bits, seconds

	active atomic.Bool

	currentFrame       []byte
	currentFrameWidth  int
	currentFrameHeight int
	firstFrameReceived bool

	skipToleranceFactor float64
	holdToleranceFactor float64

	traceID string
	logger  *slog.Logger
}

// SetFrameTolerances overrides GetVideoFrameAtTime's asymmetric window,
// normally sourced from internal/config.PlaybackConfig. skip and hold are
// in units of frame duration; Open defaults them to 2.0/0.5.
func (p *Player) SetFrameTolerances(skip, hold float64) {
	p.skipToleranceFactor = skip
	p.holdToleranceFactor = hold
}

// Open opens path and, per stream selection, only builds the decode
// pipeline for the streams the caller actually needs. Opening with
// needVideo=false must not create the video decoder at all: an
// uncoupled decoder whose queue is never drained would block the demux
// thread and deadlock the whole clip.
func Open(backend codec.Backend, path string, needVideo, needAudio bool, outputSampleRate int) (*Player, error) {
	mf, err := media.Open(backend, path)
	if err != nil {
		return nil, err
	}

	traceID := uuid.New().String()
	p := &Player{
		backend:             backend,
		mediaFile:           mf,
		videoStreamIdx:      -1,
		audioStreamIdx:      -1,
		skipToleranceFactor: 2.0,
		holdToleranceFactor: 0.5,
		traceID:             traceID,
		logger:              slog.Default().With("trace_id", traceID, "path", path),
	}

	if needVideo && mf.HasVideo() {
		params, _ := mf.VideoParams()
		vd, err := media.NewVideoDecoder(backend, params)
		if err != nil {
			mf.Close()
			return nil, fmt.Errorf("clip: opening video decoder for %q: %w", path, err)
		}
		p.videoDecoder = vd
		p.videoStreamIdx = mf.VideoStreamIndex()
		p.videoPacketQueue = queue.NewPacketQueue(queue.DefaultPacketCapacity)
		p.videoFrameQueue = queue.NewVideoFrameQueue(queue.DefaultVideoFrameCapacity)
		p.currentFrameWidth = vd.Width()
		p.currentFrameHeight = vd.Height()
		p.currentFrame = make([]byte, vd.Width()*vd.Height()*4)
	}

	if needAudio && mf.HasAudio() {
		params, _ := mf.AudioParams()
		ad, err := media.NewAudioDecoder(backend, params, outputSampleRate)
		if err != nil {
			// Matches original_source/ClipPlayer.cpp's open(): an audio
			// decoder failure doesn't fail the whole open if video is
			// usable, it just drops the audio stream.
			p.audioStreamIdx = -1
		} else {
			p.audioDecoder = ad
			p.audioStreamIdx = mf.AudioStreamIndex()
			p.audioPacketQueue = queue.NewPacketQueue(queue.DefaultPacketCapacity)
			p.audioFrameQueue = queue.NewAudioFrameQueue(queue.DefaultAudioFrameCapacity)
		}
	}

	if p.videoDecoder == nil && p.audioDecoder == nil {
		mf.Close()
		return nil, fmt.Errorf("clip: %q has neither a usable video nor audio stream for the requested mix", path)
	}

	return p, nil
}

// TraceID identifies this player instance in log lines, the way the
// teacher's capture frames carry a per-frame TraceID.
func (p *Player) TraceID() string { return p.traceID }

func (p *Player) HasVideo() bool { return p.videoDecoder != nil }
func (p *Player) HasAudio() bool { return p.audioDecoder != nil }

func (p *Player) VideoWidth() int {
	if p.videoDecoder == nil {
		return 0
	}
	return p.videoDecoder.Width()
}

func (p *Player) VideoHeight() int {
	if p.videoDecoder == nil {
		return 0
	}
	return p.videoDecoder.Height()
}

func (p *Player) AudioSampleRate() int {
	if p.audioDecoder == nil {
		return 48000
	}
	return p.audioDecoder.SampleRate()
}

func (p *Player) AudioChannels() int {
	if p.audioDecoder == nil {
		return 2
	}
	return p.audioDecoder.Channels()
}

func (p *Player) AudioTimeBase() codec.Rational {
	if p.audioDecoder == nil {
		return codec.Rational{Num: 1, Den: 48000}
	}
	return p.audioDecoder.TimeBase()
}

// AudioFrameQueue exposes the decoded audio ring so the mixer can pull
// from it directly.
func (p *Player) AudioFrameQueue() *queue.AudioFrameQueue { return p.audioFrameQueue }

func (p *Player) VideoFrameQueueSize() int {
	if p.videoFrameQueue == nil {
		return 0
	}
	return p.videoFrameQueue.Size()
}

func (p *Player) VideoPacketQueueSize() int {
	if p.videoPacketQueue == nil {
		return 0
	}
	return p.videoPacketQueue.Size()
}

func (p *Player) AudioFrameQueueSize() int {
	if p.audioFrameQueue == nil {
		return 0
	}
	return p.audioFrameQueue.Size()
}

func (p *Player) AudioPacketQueueSize() int {
	if p.audioPacketQueue == nil {
		return 0
	}
	return p.audioPacketQueue.Size()
}

func (p *Player) IsActive() bool       { return p.active.Load() }
func (p *Player) SetActive(active bool) { p.active.Store(active) }

// Play starts the decoder threads and the demux thread.
func (p *Player) Play() {
	if p.videoDecoder != nil {
		p.videoPacketQueue.Start()
		p.videoFrameQueue.Start()
		p.videoDecoder.Start(p.videoPacketQueue, p.videoFrameQueue)
	}
	if p.audioDecoder != nil {
		p.audioPacketQueue.Start()
		p.audioFrameQueue.Start()
		p.audioDecoder.Start(p.audioPacketQueue, p.audioFrameQueue)
	}

	p.demuxCtx, p.demuxCancel = context.WithCancel(context.Background())
	p.demuxWG.Add(1)
	go p.demuxLoop()

	p.active.Store(true)
	p.firstFrameReceived = false
	p.logger.Debug("clip player started", "has_video", p.HasVideo(), "has_audio", p.HasAudio())
}

// Pause/Resume are no-ops: ClipPlayer doesn't own a clock of its own, the
// master clock drives frame selection.
func (p *Player) Pause()  {}
func (p *Player) Resume() {}

func (p *Player) Stop() {
	p.stopThreads()
	p.active.Store(false)
	p.firstFrameReceived = false
}

// Seek requests a seek to sourceSeconds; the demux thread picks it up on
// its next loop iteration.
func (p *Player) Seek(sourceSeconds float64) {
	duration := p.mediaFile.Duration()
	if sourceSeconds < 0 {
		sourceSeconds = 0
	}
	if duration > 0 && sourceSeconds > duration {
		sourceSeconds = duration
	}
	p.seekTarget.Store(float64bits(sourceSeconds))
	p.seekRequested.Store(true)
	p.logger.Debug("seek requested", "target_seconds", sourceSeconds)
}

func (p *Player) Close() error {
	p.stopThreads()
	if p.videoDecoder != nil {
		p.videoDecoder.Close()
	}
	if p.audioDecoder != nil {
		p.audioDecoder.Close()
	}
	return p.mediaFile.Close()
}

func (p *Player) stopThreads() {
	if p.demuxCancel != nil {
		p.demuxCancel()
	}
	if p.videoPacketQueue != nil {
		p.videoPacketQueue.Abort()
	}
	if p.audioPacketQueue != nil {
		p.audioPacketQueue.Abort()
	}
	if p.videoFrameQueue != nil {
		p.videoFrameQueue.Abort()
	}
	if p.audioFrameQueue != nil {
		p.audioFrameQueue.Abort()
	}

	if p.videoDecoder != nil {
		p.videoDecoder.Stop()
	}
	if p.audioDecoder != nil {
		p.audioDecoder.Stop()
	}
	p.demuxWG.Wait()

	if p.videoPacketQueue != nil {
		p.videoPacketQueue.Flush()
		p.videoPacketQueue.Start()
	}
	if p.audioPacketQueue != nil {
		p.audioPacketQueue.Flush()
		p.audioPacketQueue.Start()
	}
	if p.videoFrameQueue != nil {
		p.videoFrameQueue.Flush()
		p.videoFrameQueue.Start()
	}
	if p.audioFrameQueue != nil {
		p.audioFrameQueue.Flush()
		p.audioFrameQueue.Start()
	}
}

func (p *Player) demuxLoop() {
	defer p.demuxWG.Done()

	demuxer := p.mediaFile.Demuxer()

	for {
		if p.demuxCtx.Err() != nil {
			return
		}

		if p.seekRequested.Load() {
			target := float64frombits(p.seekTarget.Load())
			timestamp := int64(target * 1_000_000) // microsecond units, AV_TIME_BASE-compatible
			_ = demuxer.Seek(timestamp)

			if p.videoDecoder != nil {
				p.videoPacketQueue.Flush()
				p.videoFrameQueue.Flush()
			}
			if p.audioDecoder != nil {
				p.audioPacketQueue.Flush()
				p.audioFrameQueue.Flush()
			}
			p.firstFrameReceived = false
			p.seekRequested.Store(false)
		}

		pkt, err := demuxer.ReadPacket()
		if err != nil {
			if err == codec.ErrEOF || err == codec.ErrAgain {
				time.Sleep(10 * time.Millisecond)
				continue
			}
			p.logger.Error("demux read failed, stopping demux loop", "error", err)
			return
		}

		switch pkt.StreamIndex {
		case p.videoStreamIdx:
			if p.videoDecoder != nil {
				_ = p.videoPacketQueue.Push(queue.Packet{
					Data: append([]byte(nil), pkt.Payload...),
					PTS:  pkt.PTS,
					DTS:  pkt.DTS,
				})
			}
		case p.audioStreamIdx:
			if p.audioDecoder != nil {
				_ = p.audioPacketQueue.Push(queue.Packet{
					Data: append([]byte(nil), pkt.Payload...),
					PTS:  pkt.PTS,
					DTS:  pkt.DTS,
				})
			}
		}
		// Packets for streams we don't need are silently dropped.
	}
}
