package gstreamer

import (
	"fmt"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/Wad67/video-editor/internal/codec"
)

func (b *Backend) OpenDemuxer(path string) (codec.Demuxer, error) {
	b.init()

	pipeline, videoSink, audioSink, err := buildDecodePipeline(path)
	if err != nil {
		return nil, err
	}
	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		pipeline.Destroy()
		return nil, fmt.Errorf("gstreamer: starting pipeline for %q: %w", path, err)
	}

	return &demuxer{
		pipeline:  pipeline,
		videoSink: videoSink,
		audioSink: audioSink,
		streams: []codec.StreamInfo{
			{Index: videoStreamIndex, Params: codec.CodecParams{Kind: codec.StreamVideo, CodecName: "gst-decoded-rgba"}},
			{Index: audioStreamIndex, Params: codec.CodecParams{Kind: codec.StreamAudio, CodecName: "gst-decoded-f32", SampleRate: mixerSampleRate, Channels: mixerChannels}},
		},
	}, nil
}

// demuxer polls the video appsink it owns first and then the audio one,
// returning the first sample that is ready. Since decoding already happened
// inside the pipeline (see package doc), the "packet" handed back already
// carries fully decoded, converted bytes — video as RGBA, audio as
// interleaved float32 — with the demuxed/decoded split collapsed into one
// step.
type demuxer struct {
	pipeline  *gst.Pipeline
	videoSink *app.Sink
	audioSink *app.Sink
	streams   []codec.StreamInfo
	eof       bool
}

func (d *demuxer) Streams() []codec.StreamInfo { return d.streams }

func (d *demuxer) ReadPacket() (codec.Packet, error) {
	if d.eof {
		return codec.Packet{}, codec.ErrEOF
	}

	if pkt, ok := d.pullFrom(d.videoSink, videoStreamIndex); ok {
		return pkt, nil
	}
	if pkt, ok := d.pullFrom(d.audioSink, audioStreamIndex); ok {
		return pkt, nil
	}

	if d.videoSink.IsEOS() && (d.audioSink == nil || d.audioSink.IsEOS()) {
		d.eof = true
		return codec.Packet{}, codec.ErrEOF
	}
	// Neither sink had a sample ready on this pass but the pipeline isn't
	// done; the ClipPlayer's demux loop polls, so a brief miss is fine.
	return codec.Packet{}, codec.ErrAgain
}

func (d *demuxer) pullFrom(sink *app.Sink, streamIndex int) (codec.Packet, bool) {
	if sink == nil {
		return codec.Packet{}, false
	}
	sample := sink.TryPullSample(10 * time.Millisecond)
	if sample == nil {
		return codec.Packet{}, false
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return codec.Packet{}, false
	}
	mapInfo := buffer.Map(gst.MapRead)
	defer buffer.Unmap()

	data := append([]byte(nil), mapInfo.Bytes()...)
	pts := int64(buffer.PresentationTimestamp())

	return codec.Packet{
		StreamIndex: streamIndex,
		Payload:     data,
		PTS:         pts,
		DTS:         pts,
	}, true
}

func (d *demuxer) Seek(timestamp int64) error {
	return d.pipeline.SeekSimple(gst.FormatTime, gst.SeekFlagFlush|gst.SeekFlagAccurate, timestamp)
}

func (d *demuxer) Close() error {
	_ = d.pipeline.SetState(gst.StateNull)
	d.pipeline.Destroy()
	return nil
}
