package playback

import (
	"sync"

	"github.com/Wad67/video-editor/internal/clock"
	"github.com/Wad67/video-editor/internal/codec"
	"github.com/Wad67/video-editor/internal/mixer"
)

// fakeBackend is a minimal in-memory codec.Backend for exercising
// Playback's activation/deactivation and frame-hold logic without a real
// codec library, mirroring internal/clip's test double.
type fakeBackend struct {
	videoWidth, videoHeight int
}

func (b *fakeBackend) Probe(path string) (codec.ProbeResult, error) {
	return codec.ProbeResult{
		Duration: 30,
		Streams: []codec.StreamInfo{
			{Index: 0, Params: codec.CodecParams{Kind: codec.StreamVideo, Width: b.videoWidth, Height: b.videoHeight, TimeBase: codec.Rational{Num: 1, Den: 90000}, FrameRate: codec.Rational{Num: 30, Den: 1}}},
			{Index: 1, Params: codec.CodecParams{Kind: codec.StreamAudio, Channels: 2, SampleRate: 44100, TimeBase: codec.Rational{Num: 1, Den: 44100}}},
		},
	}, nil
}

func (b *fakeBackend) OpenDemuxer(path string) (codec.Demuxer, error) {
	return &fakeDemuxer{backend: b}, nil
}

func (b *fakeBackend) OpenDecoder(params codec.CodecParams) (codec.Decoder, error) {
	return &fakeDecoder{kind: params.Kind, width: b.videoWidth, height: b.videoHeight, channels: params.Channels}, nil
}

func (b *fakeBackend) NewScaler() codec.Scaler       { return fakeScaler{} }
func (b *fakeBackend) NewResampler() codec.Resampler { return fakeResampler{} }

type fakeDemuxer struct {
	backend *fakeBackend
	mu      sync.Mutex
	pts     int64
}

func (d *fakeDemuxer) Streams() []codec.StreamInfo {
	p, _ := d.backend.Probe("")
	return p.Streams
}

func (d *fakeDemuxer) ReadPacket() (codec.Packet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pts += 3000
	idx := int(d.pts/3000) % 2
	return codec.Packet{StreamIndex: idx, PTS: d.pts, DTS: d.pts}, nil
}

func (d *fakeDemuxer) Seek(ts int64) error { return nil }
func (d *fakeDemuxer) Close() error        { return nil }

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

// fakeAudioOutput is a no-op AudioOutput that reports zero queued latency.
type fakeAudioOutput struct {
	mu      sync.Mutex
	started bool
	paused  bool
}

func (a *fakeAudioOutput) StartWithMixer(m *mixer.Mixer, c *clock.Clock) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.started = true
	a.paused = false
}

func (a *fakeAudioOutput) Pause() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.paused = true
}

func (a *fakeAudioOutput) Resume() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.paused = false
}

func (a *fakeAudioOutput) QueuedSeconds() float64 { return 0 }
