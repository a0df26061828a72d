package gstreamer

import (
	"github.com/Wad67/video-editor/internal/codec"
)

// decoder is a pass-through: the pipeline already decoded and converted
// the sample by the time demuxer.ReadPacket returned it, so SendPacket
// just hands the bytes back for the matching Receive call to unpack.
// It exists so this package satisfies codec.Backend's shape; ClipPlayer
// treats it exactly like the ffmpeg backend's real decoder.
type decoder struct {
	kind   codec.StreamKind
	width  int
	height int
	sampleRate int
	channels   int
	pending codec.Packet
	has     bool
}

func (b *Backend) OpenDecoder(params codec.CodecParams) (codec.Decoder, error) {
	return &decoder{
		kind:       params.Kind,
		width:      params.Width,
		height:     params.Height,
		sampleRate: params.SampleRate,
		channels:   params.Channels,
	}, nil
}

func (d *decoder) SendPacket(pkt codec.Packet) error {
	d.pending = pkt
	d.has = true
	return nil
}

func (d *decoder) ReceiveVideoFrame() (codec.DecodedVideoFrame, error) {
	if !d.has || d.kind != codec.StreamVideo {
		return codec.DecodedVideoFrame{}, codec.ErrAgain
	}
	d.has = false
	return codec.DecodedVideoFrame{
		PTS:    d.pending.PTS,
		Width:  d.width,
		Height: d.height,
		Format: codec.PixelFormatRGBA,
		RGBA:   d.pending.Payload,
	}, nil
}

func (d *decoder) ReceiveAudioFrame() (codec.DecodedAudioFrame, error) {
	if !d.has || d.kind != codec.StreamAudio {
		return codec.DecodedAudioFrame{}, codec.ErrAgain
	}
	d.has = false
	return codec.DecodedAudioFrame{
		PTS:        d.pending.PTS,
		NumSamples: len(d.pending.Payload) / 4 / max(d.channels, 1),
		SampleRate: d.sampleRate,
		Channels:   d.channels,
		Format:     codec.SampleFormatF32Interleaved,
		Data:       [][]byte{d.pending.Payload},
	}, nil
}

func (d *decoder) FlushBuffers() {
	d.has = false
}

func (d *decoder) Close() error { return nil }
