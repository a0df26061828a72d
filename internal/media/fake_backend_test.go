package media

import (
	"sync"

	"github.com/Wad67/video-editor/internal/codec"
)

// fakeBackend is an in-memory codec.Backend for testing VideoDecoder and
// AudioDecoder without a real codec library: Probe/OpenDemuxer return
// canned data, and OpenDecoder returns a decoder that yields one
// synthetic frame per packet sent to it.
type fakeBackend struct {
	mu     sync.Mutex
	probe  codec.ProbeResult
	packets []codec.Packet
}

func newFakeBackend(probe codec.ProbeResult) *fakeBackend {
	return &fakeBackend{probe: probe}
}

func (b *fakeBackend) Probe(path string) (codec.ProbeResult, error) { return b.probe, nil }

func (b *fakeBackend) OpenDemuxer(path string) (codec.Demuxer, error) {
	return &fakeDemuxer{backend: b}, nil
}

func (b *fakeBackend) OpenDecoder(params codec.CodecParams) (codec.Decoder, error) {
	return &fakeDecoder{kind: params.Kind, width: params.Width, height: params.Height, channels: params.Channels}, nil
}

func (b *fakeBackend) NewScaler() codec.Scaler       { return fakeScaler{} }
func (b *fakeBackend) NewResampler() codec.Resampler { return fakeResampler{} }

type fakeDemuxer struct{ backend *fakeBackend }

func (d *fakeDemuxer) Streams() []codec.StreamInfo { return d.backend.probe.Streams }
func (d *fakeDemuxer) ReadPacket() (codec.Packet, error) {
	return codec.Packet{}, codec.ErrEOF
}
func (d *fakeDemuxer) Seek(int64) error { return nil }
func (d *fakeDemuxer) Close() error     { return nil }

// fakeDecoder yields exactly one frame per SendPacket call, then ErrAgain
// until the next SendPacket — enough to exercise the decoder goroutine's
// pop/send/receive/commit loop without needing real bitstreams.
type fakeDecoder struct {
	kind     codec.StreamKind
	width    int
	height   int
	channels int

	mu      sync.Mutex
	pending *codec.Packet
}

func (d *fakeDecoder) SendPacket(pkt codec.Packet) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := pkt
	d.pending = &p
	return nil
}

func (d *fakeDecoder) ReceiveVideoFrame() (codec.DecodedVideoFrame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending == nil {
		return codec.DecodedVideoFrame{}, codec.ErrAgain
	}
	pts := d.pending.PTS
	d.pending = nil
	return codec.DecodedVideoFrame{
		PTS:    pts,
		Width:  d.width,
		Height: d.height,
		Format: codec.PixelFormatRGBA,
		RGBA:   make([]byte, d.width*d.height*4),
	}, nil
}

func (d *fakeDecoder) ReceiveAudioFrame() (codec.DecodedAudioFrame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending == nil {
		return codec.DecodedAudioFrame{}, codec.ErrAgain
	}
	pts := d.pending.PTS
	d.pending = nil
	return codec.DecodedAudioFrame{
		PTS:        pts,
		NumSamples: 128,
		SampleRate: 44100,
		Channels:   d.channels,
		Format:     codec.SampleFormatF32Interleaved,
		Data:       [][]byte{make([]byte, 128*d.channels*4)},
	}, nil
}

func (d *fakeDecoder) FlushBuffers() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = nil
}

func (d *fakeDecoder) Close() error { return nil }

type fakeScaler struct{}

func (fakeScaler) Scale(frame codec.DecodedVideoFrame, dstWidth, dstHeight int) ([]byte, error) {
	return make([]byte, dstWidth*dstHeight*4), nil
}

type fakeResampler struct{}

func (fakeResampler) Resample(frame codec.DecodedAudioFrame, dstSampleRate int) ([]float32, error) {
	return make([]float32, frame.NumSamples*2), nil
}
