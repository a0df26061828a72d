package export

import (
	"sync"

	"github.com/Wad67/video-editor/internal/codec"
	"github.com/Wad67/video-editor/internal/config"
)

// fakeBackend is a minimal in-memory codec.Backend, mirroring
// internal/clip and internal/playback's test doubles.
type fakeBackend struct {
	videoWidth, videoHeight int
}

func (b *fakeBackend) Probe(path string) (codec.ProbeResult, error) {
	return codec.ProbeResult{
		Duration: 10,
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

// fakeVideoEncoder/fakeAudioEncoder/fakeMuxer are no-op encoder/muxer
// doubles that just count calls, so ExportSession's orchestration logic
// can be tested without a real encoder library.
type fakeVideoEncoder struct {
	mu           sync.Mutex
	framesEncoded int
	flushed      bool
}

func (e *fakeVideoEncoder) Init(settings config.ExportSettings) error { return nil }
func (e *fakeVideoEncoder) TimeBase() codec.Rational                  { return codec.Rational{Num: 1, Den: 30} }
func (e *fakeVideoEncoder) EncodeFrame(rgba []byte, width, height int, frameIndex int64, emit func(Packet)) error {
	e.mu.Lock()
	e.framesEncoded++
	e.mu.Unlock()
	emit(Packet{PTS: frameIndex, DTS: frameIndex})
	return nil
}
func (e *fakeVideoEncoder) Flush(emit func(Packet)) error {
	e.mu.Lock()
	e.flushed = true
	e.mu.Unlock()
	return nil
}
func (e *fakeVideoEncoder) Shutdown() error { return nil }

type fakeAudioEncoder struct {
	mu       sync.Mutex
	calls    int
	flushed  bool
}

func (e *fakeAudioEncoder) Init(settings config.ExportSettings) error { return nil }
func (e *fakeAudioEncoder) TimeBase() codec.Rational                  { return codec.Rational{Num: 1, Den: 48000} }
func (e *fakeAudioEncoder) Encode(samples []float32, numSamples int, emit func(Packet)) error {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	emit(Packet{})
	return nil
}
func (e *fakeAudioEncoder) Flush(emit func(Packet)) error {
	e.mu.Lock()
	e.flushed = true
	e.mu.Unlock()
	return nil
}
func (e *fakeAudioEncoder) Shutdown() error { return nil }

type fakeMuxer struct {
	mu           sync.Mutex
	opened       bool
	openPath     string
	headerWritten bool
	trailerWritten bool
	closed       bool
	packets      []Packet
}

func (m *fakeMuxer) Open(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opened = true
	m.openPath = path
	return nil
}
func (m *fakeMuxer) AddVideoStream(timeBase codec.Rational) (int, error) { return 0, nil }
func (m *fakeMuxer) AddAudioStream(timeBase codec.Rational) (int, error) { return 1, nil }
func (m *fakeMuxer) WriteHeader() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.headerWritten = true
	return nil
}
func (m *fakeMuxer) WritePacket(pkt Packet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.packets = append(m.packets, pkt)
	return nil
}
func (m *fakeMuxer) WriteTrailer() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trailerWritten = true
	return nil
}
func (m *fakeMuxer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
