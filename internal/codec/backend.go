// Package codec defines the external media library contract this engine
// depends on: probing, demuxing, decoding, scaling, and resampling. It is
// deliberately backend-agnostic — internal/codec/ffmpeg and
// internal/codec/gstreamer both implement Backend, so a ClipPlayer never
// imports a codec library directly.
package codec

import "io"

// StreamKind identifies what a probed or demuxed stream carries.
type StreamKind int

const (
	StreamUnknown StreamKind = iota
	StreamVideo
	StreamAudio
)

func (k StreamKind) String() string {
	switch k {
	case StreamVideo:
		return "video"
	case StreamAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// CodecParams describes a stream's codec configuration as carried in a
// container, before any decoder is opened.
type CodecParams struct {
	Kind       StreamKind
	CodecName  string
	TimeBase   Rational
	FrameRate  Rational
	Width      int
	Height     int
	SampleRate int
	Channels   int

	// Extradata holds codec-specific init data (SPS/PPS, etc.) a decoder
	// needs at open time. Owned by the probe/demux layer; callers must not
	// mutate it.
	Extradata []byte
}

// Rational mirrors a container timebase or frame rate as a fraction,
// avoiding floating point drift when converting stream PTS to seconds.
type Rational struct {
	Num int
	Den int
}

// Seconds converts a PTS or duration expressed in this rational's units
// to seconds.
func (r Rational) Seconds(units int64) float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(units) * float64(r.Num) / float64(r.Den)
}

// StreamInfo is one entry of a Probe result.
type StreamInfo struct {
	Index  int
	Params CodecParams
}

// ProbeResult is what probing a file before opening it for playback yields.
type ProbeResult struct {
	Streams  []StreamInfo
	Duration float64 // seconds
}

// Packet is a single compressed access unit read from a Demuxer.
type Packet struct {
	StreamIndex int
	Payload     []byte
	PTS         int64
	DTS         int64
}

// ErrEOF is returned by Demuxer.ReadPacket when the input is exhausted.
var ErrEOF = io.EOF

// Demuxer reads packets from an opened container. Implementations are not
// required to be safe for concurrent use — this contract assigns exactly
// one goroutine (the clip's demux thread) to a given Demuxer.
type Demuxer interface {
	Streams() []StreamInfo
	ReadPacket() (Packet, error)
	Seek(timestamp int64) error
	Close() error
}

// DecodedVideoFrame is a decoder's raw output before scaling to RGBA.
// Backends that decode straight to RGBA (as the gstreamer adapter does, by
// configuring the pipeline's final caps) may leave Planes/LineSize empty
// and populate RGBA directly; Scaler.Scale treats a frame with a non-nil
// RGBA as already converted.
type DecodedVideoFrame struct {
	PTS    int64
	Width  int
	Height int
	Format PixelFormat
	Planes [][]byte
	Stride []int
	RGBA   []byte
}

// PixelFormat names a decoder's native output layout prior to scaling.
type PixelFormat int

const (
	PixelFormatUnknown PixelFormat = iota
	PixelFormatYUV420P
	PixelFormatNV12
	PixelFormatRGBA
)

// DecodedAudioFrame is a decoder's raw output before resampling.
type DecodedAudioFrame struct {
	PTS        int64
	NumSamples int
	SampleRate int
	Channels   int
	Format     SampleFormat
	Data       [][]byte // one slice per plane; single-element for interleaved formats
}

// SampleFormat names a decoder's native sample layout prior to resampling.
type SampleFormat int

const (
	SampleFormatUnknown SampleFormat = iota
	SampleFormatS16
	SampleFormatFLTP
	SampleFormatF32Interleaved
)

// ErrAgain is returned by Decoder.ReceiveVideoFrame/ReceiveAudioFrame when more packets must be
// sent before a frame is available, mirroring FFmpeg's EAGAIN convention
// (a sendPacket/receiveFrame shape).
var ErrAgain = errAgain{}

type errAgain struct{}

func (errAgain) Error() string { return "codec: decoder needs more input" }

// Decoder wraps a single stream's codec context. Exactly one goroutine may
// call into a given Decoder — no codec context is ever touched from more
// than one thread.
type Decoder interface {
	SendPacket(pkt Packet) error
	ReceiveVideoFrame() (DecodedVideoFrame, error)
	ReceiveAudioFrame() (DecodedAudioFrame, error)
	FlushBuffers()
	Close() error
}

// Scaler converts a decoded video frame to RGBA at a target size,
// resizing if the source dimensions differ from the destination.
type Scaler interface {
	Scale(frame DecodedVideoFrame, dstWidth, dstHeight int) ([]byte, error)
}

// Resampler converts a decoded audio frame to interleaved float32 stereo
// at a target sample rate.
type Resampler interface {
	Resample(frame DecodedAudioFrame, dstSampleRate int) ([]float32, error)
}

// Backend is the full external media library contract: probing a file,
// opening a demuxer against it, opening a decoder for one of its streams,
// and building the scaler/resampler each decoded stream needs. A single
// Backend value is stateless and safe to share; the objects it returns are
// not.
type Backend interface {
	Probe(path string) (ProbeResult, error)
	OpenDemuxer(path string) (Demuxer, error)
	OpenDecoder(params CodecParams) (Decoder, error)
	NewScaler() Scaler
	NewResampler() Resampler
}
