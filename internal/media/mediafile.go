// Package media owns the per-stream decode machinery: MediaFile probes a
// source and opens its demuxer, and VideoDecoder/AudioDecoder each own a
// single codec.Decoder behind a dedicated goroutine, reading from a
// queue.PacketQueue and writing into a queue.VideoFrameQueue or
// queue.AudioFrameQueue. Grounded on
// original_source/src/media/{MediaFile,VideoDecoder,AudioDecoder}.{h,cpp}
// for the algorithm and on
// modules/framesupplier/internal/supplier.go for the
// context+cancel+sync.WaitGroup goroutine lifecycle idiom.
package media

import (
	"fmt"

	"github.com/Wad67/video-editor/internal/codec"
)

// MediaFile probes a path for stream metadata and, once opened, owns the
// demux context that its ClipPlayer's VideoDecoder/AudioDecoder packet
// queues are fed from.
type MediaFile struct {
	backend  codec.Backend
	path     string
	probe    codec.ProbeResult
	demuxer  codec.Demuxer
	videoIdx int
	audioIdx int
}

// Open probes path and opens its demuxer. videoIdx/audioIdx are -1 if the
// file has no such stream.
func Open(backend codec.Backend, path string) (*MediaFile, error) {
	probe, err := backend.Probe(path)
	if err != nil {
		return nil, fmt.Errorf("media: probing %q: %w", path, err)
	}

	demuxer, err := backend.OpenDemuxer(path)
	if err != nil {
		return nil, fmt.Errorf("media: opening demuxer for %q: %w", path, err)
	}

	mf := &MediaFile{
		backend:  backend,
		path:     path,
		probe:    probe,
		demuxer:  demuxer,
		videoIdx: -1,
		audioIdx: -1,
	}
	for _, s := range probe.Streams {
		switch s.Params.Kind {
		case codec.StreamVideo:
			if mf.videoIdx < 0 {
				mf.videoIdx = s.Index
			}
		case codec.StreamAudio:
			if mf.audioIdx < 0 {
				mf.audioIdx = s.Index
			}
		}
	}
	return mf, nil
}

func (m *MediaFile) Close() error {
	if m.demuxer != nil {
		return m.demuxer.Close()
	}
	return nil
}

func (m *MediaFile) Demuxer() codec.Demuxer { return m.demuxer }
func (m *MediaFile) Duration() float64      { return m.probe.Duration }
func (m *MediaFile) VideoStreamIndex() int  { return m.videoIdx }
func (m *MediaFile) AudioStreamIndex() int  { return m.audioIdx }
func (m *MediaFile) HasVideo() bool         { return m.videoIdx >= 0 }
func (m *MediaFile) HasAudio() bool         { return m.audioIdx >= 0 }

func (m *MediaFile) VideoParams() (codec.CodecParams, bool) {
	return m.paramsForIndex(m.videoIdx)
}

func (m *MediaFile) AudioParams() (codec.CodecParams, bool) {
	return m.paramsForIndex(m.audioIdx)
}

func (m *MediaFile) paramsForIndex(idx int) (codec.CodecParams, bool) {
	if idx < 0 {
		return codec.CodecParams{}, false
	}
	for _, s := range m.probe.Streams {
		if s.Index == idx {
			return s.Params, true
		}
	}
	return codec.CodecParams{}, false
}
