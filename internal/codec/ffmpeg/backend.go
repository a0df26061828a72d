// Package ffmpeg implements codec.Backend on top of
// github.com/asticode/go-astiav. It is grounded on
// other_examples/asticode-go-astiflow__demuxer.go's raw astiav calls
// (AllocFormatContext, OpenInput, FindStreamInfo, ReadFrame, SeekFrame,
// RescaleQ) used directly rather than through astiflow's node-graph
// wrapper, which targets live pipeline orchestration this package doesn't
// need.
package ffmpeg

import (
	"fmt"

	"github.com/asticode/go-astiav"

	"github.com/Wad67/video-editor/internal/codec"
)

// Backend is a stateless codec.Backend; every call opens its own
// astiav.FormatContext / CodecContext, matching the demuxer-per-clip,
// decoder-per-stream ownership this contract requires.
type Backend struct{}

func New() *Backend { return &Backend{} }

func (b *Backend) Probe(path string) (codec.ProbeResult, error) {
	fc := astiav.AllocFormatContext()
	if fc == nil {
		return codec.ProbeResult{}, fmt.Errorf("ffmpeg: allocating format context failed")
	}
	defer fc.Free()

	if err := fc.OpenInput(path, nil, nil); err != nil {
		return codec.ProbeResult{}, fmt.Errorf("ffmpeg: opening %q: %w", path, err)
	}
	defer fc.CloseInput()

	if err := fc.FindStreamInfo(nil); err != nil {
		return codec.ProbeResult{}, fmt.Errorf("ffmpeg: probing %q: %w", path, err)
	}

	result := codec.ProbeResult{}
	for _, s := range fc.Streams() {
		info, ok := streamInfoFromStream(s)
		if !ok {
			continue
		}
		result.Streams = append(result.Streams, info)
	}
	if fc.Duration() > 0 {
		result.Duration = float64(astiav.RescaleQ(fc.Duration(), astiav.NewRational(1, int(astiav.TimeBase)), astiav.NewRational(1, 1000))) / 1000
	}
	return result, nil
}

func streamInfoFromStream(s *astiav.Stream) (codec.StreamInfo, bool) {
	params := s.CodecParameters()
	tb := s.TimeBase()

	var kind codec.StreamKind
	switch params.MediaType() {
	case astiav.MediaTypeVideo:
		kind = codec.StreamVideo
	case astiav.MediaTypeAudio:
		kind = codec.StreamAudio
	default:
		return codec.StreamInfo{}, false
	}

	cp := codec.CodecParams{
		Kind:      kind,
		CodecName: params.CodecID().String(),
		TimeBase:  codec.Rational{Num: tb.Num(), Den: tb.Den()},
	}
	if kind == codec.StreamVideo {
		cp.Width = params.Width()
		cp.Height = params.Height()
		fr := s.AvgFrameRate()
		cp.FrameRate = codec.Rational{Num: fr.Num(), Den: fr.Den()}
	} else {
		cp.SampleRate = params.SampleRate()
		cp.Channels = params.ChannelLayout().Channels()
	}
	if extra := params.ExtraData(); len(extra) > 0 {
		cp.Extradata = append([]byte(nil), extra...)
	}

	return codec.StreamInfo{Index: s.Index(), Params: cp}, true
}

func (b *Backend) OpenDemuxer(path string) (codec.Demuxer, error) {
	fc := astiav.AllocFormatContext()
	if fc == nil {
		return nil, fmt.Errorf("ffmpeg: allocating format context failed")
	}
	if err := fc.OpenInput(path, nil, nil); err != nil {
		fc.Free()
		return nil, fmt.Errorf("ffmpeg: opening %q: %w", path, err)
	}
	if err := fc.FindStreamInfo(nil); err != nil {
		fc.CloseInput()
		fc.Free()
		return nil, fmt.Errorf("ffmpeg: probing %q: %w", path, err)
	}

	streams := make([]codec.StreamInfo, 0, len(fc.Streams()))
	for _, s := range fc.Streams() {
		if info, ok := streamInfoFromStream(s); ok {
			streams = append(streams, info)
		}
	}

	return &demuxer{fc: fc, pkt: astiav.AllocPacket(), streams: streams}, nil
}

type demuxer struct {
	fc      *astiav.FormatContext
	pkt     *astiav.Packet
	streams []codec.StreamInfo
}

func (d *demuxer) Streams() []codec.StreamInfo { return d.streams }

func (d *demuxer) ReadPacket() (codec.Packet, error) {
	d.pkt.Unref()
	if err := d.fc.ReadFrame(d.pkt); err != nil {
		if err == astiav.ErrEof {
			return codec.Packet{}, codec.ErrEOF
		}
		return codec.Packet{}, fmt.Errorf("ffmpeg: reading packet: %w", err)
	}
	return codec.Packet{
		StreamIndex: d.pkt.StreamIndex(),
		Payload:     append([]byte(nil), d.pkt.Data()...),
		PTS:         d.pkt.Pts(),
		DTS:         d.pkt.Dts(),
	}, nil
}

func (d *demuxer) Seek(timestamp int64) error {
	return d.fc.SeekFrame(-1, timestamp, astiav.NewSeekFlags(astiav.SeekFlagBackward))
}

func (d *demuxer) Close() error {
	d.pkt.Free()
	d.fc.CloseInput()
	d.fc.Free()
	return nil
}

func (b *Backend) OpenDecoder(params codec.CodecParams) (codec.Decoder, error) {
	codecID, err := codecIDFromName(params.CodecName)
	if err != nil {
		return nil, err
	}

	avCodec := astiav.FindDecoder(codecID)
	if avCodec == nil {
		return nil, fmt.Errorf("ffmpeg: no decoder registered for %s", params.CodecName)
	}

	cc := astiav.AllocCodecContext(avCodec)
	if cc == nil {
		return nil, fmt.Errorf("ffmpeg: allocating codec context failed")
	}

	if params.Kind == codec.StreamVideo {
		cc.SetWidth(params.Width)
		cc.SetHeight(params.Height)
	} else {
		cc.SetSampleRate(params.SampleRate)
	}
	if len(params.Extradata) > 0 {
		cc.SetExtraData(params.Extradata)
	}
	cc.SetTimeBase(astiav.NewRational(params.TimeBase.Num, params.TimeBase.Den))

	if err := cc.Open(avCodec, nil); err != nil {
		cc.Free()
		return nil, fmt.Errorf("ffmpeg: opening decoder: %w", err)
	}

	return &decoder{cc: cc, frame: astiav.AllocFrame(), kind: params.Kind}, nil
}

func codecIDFromName(name string) (astiav.CodecID, error) {
	id := astiav.FindCodecIDByName(name)
	if id == astiav.CodecIDNone {
		return 0, fmt.Errorf("ffmpeg: unknown codec name %q", name)
	}
	return id, nil
}

type decoder struct {
	cc    *astiav.CodecContext
	frame *astiav.Frame
	kind  codec.StreamKind
}

func (d *decoder) SendPacket(pkt codec.Packet) error {
	avPkt := astiav.AllocPacket()
	defer avPkt.Free()

	if err := avPkt.FromData(pkt.Payload); err != nil {
		return fmt.Errorf("ffmpeg: wrapping packet data: %w", err)
	}
	avPkt.SetPts(pkt.PTS)
	avPkt.SetDts(pkt.DTS)

	if err := d.cc.SendPacket(avPkt); err != nil {
		return fmt.Errorf("ffmpeg: send packet: %w", err)
	}
	return nil
}

func (d *decoder) ReceiveVideoFrame() (codec.DecodedVideoFrame, error) {
	if err := d.cc.ReceiveFrame(d.frame); err != nil {
		if err == astiav.ErrEagain {
			return codec.DecodedVideoFrame{}, codec.ErrAgain
		}
		return codec.DecodedVideoFrame{}, fmt.Errorf("ffmpeg: receive video frame: %w", err)
	}
	defer d.frame.Unref()

	pts := d.frame.Pts()
	if pts == astiav.NoPtsValue {
		pts = d.frame.BestEffortTimestamp()
	}

	out := codec.DecodedVideoFrame{
		PTS:    pts,
		Width:  d.frame.Width(),
		Height: d.frame.Height(),
		Format: pixelFormatFromAstiav(d.frame.PixelFormat()),
	}
	for i, plane := range d.frame.Data() {
		if plane == nil {
			break
		}
		out.Planes = append(out.Planes, append([]byte(nil), plane...))
		out.Stride = append(out.Stride, d.frame.Linesize()[i])
	}
	return out, nil
}

func (d *decoder) ReceiveAudioFrame() (codec.DecodedAudioFrame, error) {
	if err := d.cc.ReceiveFrame(d.frame); err != nil {
		if err == astiav.ErrEagain {
			return codec.DecodedAudioFrame{}, codec.ErrAgain
		}
		return codec.DecodedAudioFrame{}, fmt.Errorf("ffmpeg: receive audio frame: %w", err)
	}
	defer d.frame.Unref()

	pts := d.frame.Pts()
	if pts == astiav.NoPtsValue {
		pts = d.frame.BestEffortTimestamp()
	}

	out := codec.DecodedAudioFrame{
		PTS:        pts,
		NumSamples: d.frame.NbSamples(),
		SampleRate: d.frame.SampleRate(),
		Channels:   d.frame.ChannelLayout().Channels(),
		Format:     sampleFormatFromAstiav(d.frame.SampleFormat()),
	}
	for _, plane := range d.frame.Data() {
		if plane == nil {
			break
		}
		out.Data = append(out.Data, append([]byte(nil), plane...))
	}
	return out, nil
}

func (d *decoder) FlushBuffers() {
	d.cc.FlushBuffers()
}

func (d *decoder) Close() error {
	d.frame.Free()
	d.cc.Free()
	return nil
}

func pixelFormatFromAstiav(f astiav.PixelFormat) codec.PixelFormat {
	switch f {
	case astiav.PixelFormatYuv420P:
		return codec.PixelFormatYUV420P
	case astiav.PixelFormatNv12:
		return codec.PixelFormatNV12
	case astiav.PixelFormatRgba:
		return codec.PixelFormatRGBA
	default:
		return codec.PixelFormatUnknown
	}
}

func sampleFormatFromAstiav(f astiav.SampleFormat) codec.SampleFormat {
	switch f {
	case astiav.SampleFormatS16:
		return codec.SampleFormatS16
	case astiav.SampleFormatFltp:
		return codec.SampleFormatFLTP
	default:
		return codec.SampleFormatUnknown
	}
}

func (b *Backend) NewScaler() codec.Scaler       { return newScaler() }
func (b *Backend) NewResampler() codec.Resampler { return newResampler() }
