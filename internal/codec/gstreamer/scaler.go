package gstreamer

import (
	"fmt"

	"github.com/Wad67/video-editor/internal/codec"
)

// scaler handles the one case the pipeline's fixed-size RGBA caps can't:
// a clip displayed at a different size than its source (e.g. picture-in-
// picture, or an export target resolution). The decode pipeline always
// negotiates RGBA at source resolution; resizing to an arbitrary
// destination is therefore still a nearest-neighbor software pass here
// rather than a second GStreamer element, since re-opening the pipeline's
// caps per requested size would mean one pipeline per destination size.
type scaler struct{}

func newScaler() *scaler { return &scaler{} }

func (s *scaler) Scale(frame codec.DecodedVideoFrame, dstWidth, dstHeight int) ([]byte, error) {
	if frame.Format != codec.PixelFormatRGBA {
		return nil, fmt.Errorf("gstreamer: scaler only accepts RGBA input, got %v", frame.Format)
	}
	if frame.Width == dstWidth && frame.Height == dstHeight {
		return frame.RGBA, nil
	}

	out := make([]byte, dstWidth*dstHeight*4)
	for y := 0; y < dstHeight; y++ {
		srcY := y * frame.Height / dstHeight
		for x := 0; x < dstWidth; x++ {
			srcX := x * frame.Width / dstWidth
			srcOff := (srcY*frame.Width + srcX) * 4
			dstOff := (y*dstWidth + x) * 4
			copy(out[dstOff:dstOff+4], frame.RGBA[srcOff:srcOff+4])
		}
	}
	return out, nil
}
