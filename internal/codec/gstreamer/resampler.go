package gstreamer

import (
	"math"

	"github.com/Wad67/video-editor/internal/codec"
)

// resampler is a pass-through: the decode pipeline's audioresample element
// already negotiated the mixer's fixed output rate (mixerSampleRate,
// mixerChannels) via the appsink's capsfilter, so by the time a frame
// reaches here there is nothing left to convert.
type resampler struct{}

func newResampler() *resampler { return &resampler{} }

func (r *resampler) Resample(frame codec.DecodedAudioFrame, dstSampleRate int) ([]float32, error) {
	samples := make([]float32, len(frame.Data[0])/4)
	for i := range samples {
		off := i * 4
		bits := uint32(frame.Data[0][off]) | uint32(frame.Data[0][off+1])<<8 | uint32(frame.Data[0][off+2])<<16 | uint32(frame.Data[0][off+3])<<24
		samples[i] = math.Float32frombits(bits)
	}
	return samples, nil
}
