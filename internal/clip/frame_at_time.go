package clip

// GetVideoFrameAtTime implements the asymmetric frame
// selection. targetPts is in seconds on the clip's own source timeline.
// Returns the RGBA buffer to display, its dimensions, and whether this
// call produced a newly decoded frame (false means "hold the previous
// buffer").
//
// The tolerance is asymmetric: a frame whose presentation time is within
// half a frame ahead of target is "now enough" and gets displayed; a
// frame that's behind by more than two frame durations is stale and gets
// skipped rather than shown late. This mirrors
// original_source/src/timeline/ClipPlayer.cpp's getVideoFrameAtTime
// exactly.
func (p *Player) GetVideoFrameAtTime(targetPts float64) (rgba []byte, width, height int, isNewFrame bool) {
	if p.videoDecoder == nil {
		return nil, 0, 0, false
	}

	width = p.currentFrameWidth
	height = p.currentFrameHeight

	frame, ok := p.videoFrameQueue.TryPeek()
	if !ok {
		return p.currentFrame, width, height, false
	}

	timeBase := p.videoDecoder.TimeBase()
	frameDuration := 1.0 / p.videoDecoder.FrameRateHz()
	ptsSec := timeBase.Seconds(int64(frame.PTS))

	for ptsSec < targetPts-frameDuration*p.skipToleranceFactor {
		p.videoFrameQueue.Pop()
		frame, ok = p.videoFrameQueue.TryPeek()
		if !ok {
			return p.currentFrame, width, height, false
		}
		ptsSec = timeBase.Seconds(int64(frame.PTS))
	}

	if ptsSec > targetPts+frameDuration*p.holdToleranceFactor {
		return p.currentFrame, width, height, false
	}

	if len(p.currentFrame) != len(frame.Pix) {
		p.currentFrame = make([]byte, len(frame.Pix))
	}
	copy(p.currentFrame, frame.Pix)
	p.videoFrameQueue.Pop()
	p.firstFrameReceived = true

	return p.currentFrame, width, height, true
}
