package clip

import (
	"sync"

	"github.com/Wad67/video-editor/internal/codec"
)

// fakeBackend is a minimal in-memory codec.Backend exercising Player's
// stream-selection and demux-loop logic without a real codec library. It
// produces packetsEach packets in total, alternating between the streams,
// before reporting EOF (a Seek resets the count), and its decoder yields
// one synthetic frame per packet sent to it.
type fakeBackend struct {
	streams      []codec.StreamInfo
	duration     float64
	packetsEach  int
}

func (b *fakeBackend) Probe(path string) (codec.ProbeResult, error) {
	return codec.ProbeResult{Streams: b.streams, Duration: b.duration}, nil
}

func (b *fakeBackend) OpenDemuxer(path string) (codec.Demuxer, error) {
	return &fakeDemuxer{backend: b, remaining: b.packetsEach}, nil
}

func (b *fakeBackend) OpenDecoder(params codec.CodecParams) (codec.Decoder, error) {
	return &fakeDecoder{kind: params.Kind, width: params.Width, height: params.Height, channels: params.Channels}, nil
}

func (b *fakeBackend) NewScaler() codec.Scaler       { return fakeScaler{} }
func (b *fakeBackend) NewResampler() codec.Resampler { return fakeResampler{} }

type fakeDemuxer struct {
	backend   *fakeBackend
	mu        sync.Mutex
	remaining int
	pts       int64
	seeks     int
}

func (d *fakeDemuxer) Streams() []codec.StreamInfo { return d.backend.streams }

func (d *fakeDemuxer) ReadPacket() (codec.Packet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.remaining <= 0 {
		return codec.Packet{}, codec.ErrEOF
	}
	d.remaining--
	d.pts += 3000

	// Alternate between the two streams so both packet queues see traffic.
	idx := 0
	if len(d.backend.streams) > 1 && d.remaining%2 == 0 {
		idx = 1
	}
	return codec.Packet{StreamIndex: d.backend.streams[idx].Index, PTS: d.pts, DTS: d.pts}, nil
}

func (d *fakeDemuxer) Seek(ts int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seeks++
	d.remaining = d.backend.packetsEach
	return nil
}

func (d *fakeDemuxer) Close() error { return nil }

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
	return codec.DecodedVideoFrame{PTS: pts, Width: d.width, Height: d.height, Format: codec.PixelFormatRGBA, RGBA: make([]byte, d.width*d.height*4)}, nil
}

func (d *fakeDecoder) ReceiveAudioFrame() (codec.DecodedAudioFrame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending == nil {
		return codec.DecodedAudioFrame{}, codec.ErrAgain
	}
	pts := d.pending.PTS
	d.pending = nil
	return codec.DecodedAudioFrame{PTS: pts, NumSamples: 64, SampleRate: 44100, Channels: d.channels, Format: codec.SampleFormatF32Interleaved, Data: [][]byte{make([]byte, 64*d.channels*4)}}, nil
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
