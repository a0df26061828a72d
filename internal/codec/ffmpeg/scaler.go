package ffmpeg

import (
	"fmt"

	"github.com/asticode/go-astiav"

	"github.com/Wad67/video-editor/internal/codec"
)

// scaler wraps astiav's swscale binding, lazily (re)allocating the
// underlying context whenever the source or destination geometry changes
// — the common case is a fixed size across a clip's whole decode run, so
// this amortizes to one allocation per ClipPlayer.
type scaler struct {
	sws                  *astiav.SoftwareScaleContext
	srcW, srcH           int
	srcFmt               astiav.PixelFormat
	dstW, dstH           int
	dst                  *astiav.Frame
}

func newScaler() *scaler {
	return &scaler{dst: astiav.AllocFrame()}
}

func (s *scaler) Scale(frame codec.DecodedVideoFrame, dstWidth, dstHeight int) ([]byte, error) {
	if frame.RGBA != nil {
		// Already RGBA (e.g. handed back from a backend that converts in
		// the decode step): returned as-is at the same size, otherwise the
		// resize still goes through swscale below for a single code path.
		if frame.Width == dstWidth && frame.Height == dstHeight {
			return append([]byte(nil), frame.RGBA...), nil
		}
		frame.Planes = [][]byte{frame.RGBA}
		frame.Format = codec.PixelFormatRGBA
	}

	srcFmt := astiavPixelFormat(frame.Format)

	if s.sws == nil || s.srcW != frame.Width || s.srcH != frame.Height || s.srcFmt != srcFmt || s.dstW != dstWidth || s.dstH != dstHeight {
		if s.sws != nil {
			s.sws.Free()
		}
		sws, err := astiav.CreateSoftwareScaleContext(
			frame.Width, frame.Height, srcFmt,
			dstWidth, dstHeight, astiav.PixelFormatRgba,
			astiav.NewSoftwareScaleContextFlags(astiav.SoftwareScaleContextFlagBilinear),
		)
		if err != nil {
			return nil, fmt.Errorf("ffmpeg: creating scale context: %w", err)
		}
		s.sws = sws
		s.srcW, s.srcH, s.srcFmt = frame.Width, frame.Height, srcFmt
		s.dstW, s.dstH = dstWidth, dstHeight

		s.dst.Unref()
		s.dst.SetWidth(dstWidth)
		s.dst.SetHeight(dstHeight)
		s.dst.SetPixelFormat(astiav.PixelFormatRgba)
		if err := s.dst.AllocBuffer(1); err != nil {
			return nil, fmt.Errorf("ffmpeg: allocating scale destination: %w", err)
		}
	}

	src := astiav.AllocFrame()
	defer src.Free()
	src.SetWidth(frame.Width)
	src.SetHeight(frame.Height)
	src.SetPixelFormat(srcFmt)
	if err := src.AllocBuffer(1); err != nil {
		return nil, fmt.Errorf("ffmpeg: wrapping source planes: %w", err)
	}
	planes := src.Data()
	for i, p := range frame.Planes {
		if i >= len(planes) {
			break
		}
		copy(planes[i], p)
	}

	if err := s.sws.ScaleFrame(src, s.dst); err != nil {
		return nil, fmt.Errorf("ffmpeg: scale: %w", err)
	}

	out := s.dst.Data()[0]
	return append([]byte(nil), out[:dstWidth*dstHeight*4]...), nil
}

func astiavPixelFormat(f codec.PixelFormat) astiav.PixelFormat {
	switch f {
	case codec.PixelFormatYUV420P:
		return astiav.PixelFormatYuv420P
	case codec.PixelFormatNV12:
		return astiav.PixelFormatNv12
	case codec.PixelFormatRGBA:
		return astiav.PixelFormatRgba
	default:
		return astiav.PixelFormatNone
	}
}
