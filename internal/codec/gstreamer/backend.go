// Package gstreamer implements codec.Backend on top of
// github.com/tinyzimmer/go-gst, grounded on
// modules/stream-capture/internal/rtsp/{pipeline,callbacks}.go's pipeline
// construction and appsink-pull idiom.
//
// GStreamer's element-graph model doesn't split cleanly into "demux, then
// decode" the way astiav does: a decodebin fuses container parsing, codec
// selection, and decoding into one black box, and the natural place to
// land decoded output is an appsink already configured for a target caps
// (RGBA video, interleaved float audio). So this backend's Demuxer runs
// the whole filesrc-to-appsink pipeline and its ReadPacket already returns
// decoded bytes; its Decoder implementation is a thin pass-through that
// exists only to satisfy codec.Backend's shape, not to do further decode
// work. This is the trade that keeps the same Backend interface usable
// with either gstreamer or ffmpeg underneath a clip player.
package gstreamer

import (
	"fmt"
	"sync"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/Wad67/video-editor/internal/codec"
)

const (
	videoStreamIndex = 0
	audioStreamIndex = 1

	mixerSampleRate = 48000
	mixerChannels   = 2
)

// Backend is stateless; every Probe/OpenDemuxer call builds its own
// pipeline, matching the demuxer-per-clip ownership this contract
// requires.
type Backend struct {
	once sync.Once
}

func New() *Backend { return &Backend{} }

func (b *Backend) init() {
	b.once.Do(func() { gst.Init(nil) })
}

func (b *Backend) NewScaler() codec.Scaler       { return newScaler() }
func (b *Backend) NewResampler() codec.Resampler { return newResampler() }

// Probe runs the pipeline just long enough to read the negotiated caps off
// each appsink, then tears it down. GStreamer has a dedicated Discoverer
// API for this in C, but go-gst's public surface only exposes
// pipeline/element/appsink bindings (see
// modules/stream-capture/internal/rtsp/pipeline.go), so probing is done
// the same way stream shape is discovered there: build the pipeline,
// read caps, stop.
func (b *Backend) Probe(path string) (codec.ProbeResult, error) {
	b.init()

	pipeline, videoSink, audioSink, err := buildDecodePipeline(path)
	if err != nil {
		return codec.ProbeResult{}, err
	}
	defer pipeline.Destroy()

	if err := pipeline.SetState(gst.StatePaused); err != nil {
		return codec.ProbeResult{}, fmt.Errorf("gstreamer: probing %q: %w", path, err)
	}
	pipeline.GetState(gst.StatePaused, 5*time.Second)

	result := codec.ProbeResult{}
	if caps := videoSink.GetStaticPad("sink").GetCurrentCaps(); caps != nil {
		if s := caps.GetStructureAt(0); s != nil {
			w, _ := s.GetValue("width")
			h, _ := s.GetValue("height")
			width, _ := w.(int)
			height, _ := h.(int)
			result.Streams = append(result.Streams, codec.StreamInfo{
				Index: videoStreamIndex,
				Params: codec.CodecParams{
					Kind:      codec.StreamVideo,
					CodecName: "gst-decoded-rgba",
					Width:     width,
					Height:    height,
					TimeBase:  codec.Rational{Num: 1, Den: 1_000_000_000},
				},
			})
		}
	}
	if audioSink != nil {
		result.Streams = append(result.Streams, codec.StreamInfo{
			Index: audioStreamIndex,
			Params: codec.CodecParams{
				Kind:       codec.StreamAudio,
				CodecName:  "gst-decoded-f32",
				SampleRate: mixerSampleRate,
				Channels:   mixerChannels,
				TimeBase:   codec.Rational{Num: 1, Den: 1_000_000_000},
			},
		})
	}

	if d, ok := pipeline.QueryDuration(gst.FormatTime); ok {
		result.Duration = float64(d) / float64(time.Second)
	}

	_ = pipeline.SetState(gst.StateNull)
	return result, nil
}

func buildDecodePipeline(path string) (*gst.Pipeline, *app.Sink, *app.Sink, error) {
	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, nil, nil, fmt.Errorf("gstreamer: creating pipeline: %w", err)
	}

	src, err := gst.NewElement("filesrc")
	if err != nil {
		return nil, nil, nil, fmt.Errorf("gstreamer: creating filesrc: %w", err)
	}
	src.SetProperty("location", path)

	decodebin, err := gst.NewElement("decodebin")
	if err != nil {
		return nil, nil, nil, fmt.Errorf("gstreamer: creating decodebin: %w", err)
	}

	if err := pipeline.AddMany(src, decodebin); err != nil {
		return nil, nil, nil, fmt.Errorf("gstreamer: adding elements: %w", err)
	}
	if err := src.Link(decodebin); err != nil {
		return nil, nil, nil, fmt.Errorf("gstreamer: linking filesrc to decodebin: %w", err)
	}

	videoSink, err := newAppendedSink(pipeline, "video/x-raw,format=RGBA", "videoconvert")
	if err != nil {
		return nil, nil, nil, err
	}
	audioSink, err := newAppendedSink(pipeline, fmt.Sprintf("audio/x-raw,format=F32LE,channels=%d,rate=%d,layout=interleaved", mixerChannels, mixerSampleRate), "audioconvert", "audioresample")
	if err != nil {
		return nil, nil, nil, err
	}

	// decodebin's source pads appear dynamically once it has sniffed the
	// container; link each one to the matching branch as it shows up,
	// following the same pad-added linking idiom as
	// modules/stream-capture/internal/rtsp/pipeline.go.
	decodebin.Connect("pad-added", func(_ *gst.Element, pad *gst.Pad) {
		caps := pad.GetCurrentCaps()
		if caps == nil {
			return
		}
		structure := caps.GetStructureAt(0)
		if structure == nil {
			return
		}
		name := structure.Name()

		var branch *gst.Element
		switch {
		case hasPrefix(name, "video/"):
			branch = videoSink.branchEntry
		case hasPrefix(name, "audio/"):
			branch = audioSink.branchEntry
		default:
			return
		}
		if branch == nil {
			return
		}
		sinkPad := branch.GetStaticPad("sink")
		if sinkPad == nil || sinkPad.IsLinked() {
			return
		}
		pad.Link(sinkPad)
	})

	return pipeline, videoSink.sink, audioSink.sink, nil
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// appendedSink is an appsink plus the first element of the conversion
// chain feeding it, which is what decodebin's dynamic pad actually links
// against.
type appendedSink struct {
	branchEntry *gst.Element
	sink        *app.Sink
}

func newAppendedSink(pipeline *gst.Pipeline, capsFilter string, chain ...string) (*appendedSink, error) {
	var elements []*gst.Element
	for _, name := range chain {
		el, err := gst.NewElement(name)
		if err != nil {
			return nil, fmt.Errorf("gstreamer: creating %s: %w", name, err)
		}
		elements = append(elements, el)
	}

	capsEl, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("gstreamer: creating capsfilter: %w", err)
	}
	caps := gst.NewCapsFromString(capsFilter)
	capsEl.SetProperty("caps", caps)

	appSink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("gstreamer: creating appsink: %w", err)
	}
	appSink.SetProperty("sync", false)

	all := append(append([]*gst.Element{}, elements...), capsEl, appSink.Element)
	if err := pipeline.AddMany(all...); err != nil {
		return nil, fmt.Errorf("gstreamer: adding sink chain: %w", err)
	}
	if err := gst.ElementLinkMany(all...); err != nil {
		return nil, fmt.Errorf("gstreamer: linking sink chain: %w", err)
	}

	return &appendedSink{branchEntry: elements[0], sink: appSink}, nil
}
