package ffmpeg

import (
	"fmt"
	"math"

	"github.com/asticode/go-astiav"

	"github.com/Wad67/video-editor/internal/codec"
)

// resampler wraps astiav's swresample binding, converting any decoder's
// native sample layout to interleaved float32 stereo at the mixer's fixed
// output rate.
type resampler struct {
	swr        *astiav.SoftwareResampleContext
	srcRate    int
	srcFmt     astiav.SampleFormat
	srcLayout  astiav.ChannelLayout
	dstRate    int
}

func newResampler() *resampler {
	return &resampler{}
}

func (r *resampler) Resample(frame codec.DecodedAudioFrame, dstSampleRate int) ([]float32, error) {
	srcFmt := astiavSampleFormat(frame.Format)
	srcLayout := astiav.ChannelLayoutDefault(frame.Channels)

	if r.swr == nil || r.srcRate != frame.SampleRate || r.srcFmt != srcFmt || r.dstRate != dstSampleRate {
		if r.swr != nil {
			r.swr.Free()
		}
		dstLayout := astiav.ChannelLayoutDefault(2)
		swr, err := astiav.CreateSoftwareResampleContext(
			srcLayout, srcFmt, frame.SampleRate,
			dstLayout, astiav.SampleFormatFlt, dstSampleRate,
		)
		if err != nil {
			return nil, fmt.Errorf("ffmpeg: creating resample context: %w", err)
		}
		r.swr = swr
		r.srcRate, r.srcFmt, r.srcLayout, r.dstRate = frame.SampleRate, srcFmt, srcLayout, dstSampleRate
	}

	src := astiav.AllocFrame()
	defer src.Free()
	src.SetSampleRate(frame.SampleRate)
	src.SetSampleFormat(srcFmt)
	src.SetChannelLayout(srcLayout)
	src.SetNbSamples(frame.NumSamples)
	if err := src.AllocBuffer(0); err != nil {
		return nil, fmt.Errorf("ffmpeg: wrapping source samples: %w", err)
	}
	for i, p := range frame.Data {
		if i >= len(src.Data()) {
			break
		}
		copy(src.Data()[i], p)
	}

	dstSamples := int(int64(frame.NumSamples)*int64(dstSampleRate)/int64(frame.SampleRate)) + 32
	dst := astiav.AllocFrame()
	defer dst.Free()
	dst.SetSampleRate(dstSampleRate)
	dst.SetSampleFormat(astiav.SampleFormatFlt)
	dst.SetChannelLayout(astiav.ChannelLayoutDefault(2))
	dst.SetNbSamples(dstSamples)
	if err := dst.AllocBuffer(0); err != nil {
		return nil, fmt.Errorf("ffmpeg: allocating resample destination: %w", err)
	}

	converted, err := r.swr.ConvertFrame(src, dst)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: resample: %w", err)
	}

	raw := dst.Data()[0]
	n := converted * 2 // stereo interleaved
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = float32frombytes(raw, i*4)
	}
	return out, nil
}

func float32frombytes(b []byte, offset int) float32 {
	bits := uint32(b[offset]) | uint32(b[offset+1])<<8 | uint32(b[offset+2])<<16 | uint32(b[offset+3])<<24
	return math.Float32frombits(bits)
}

func astiavSampleFormat(f codec.SampleFormat) astiav.SampleFormat {
	switch f {
	case codec.SampleFormatS16:
		return astiav.SampleFormatS16
	case codec.SampleFormatFLTP:
		return astiav.SampleFormatFltp
	default:
		return astiav.SampleFormatNone
	}
}
