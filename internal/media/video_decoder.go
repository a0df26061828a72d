package media

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Wad67/video-editor/internal/codec"
	"github.com/Wad67/video-editor/internal/queue"
)

// popTimeout is how long the decoder thread waits on an empty packet
// queue before looping back to check for shutdown.
const popTimeout = 50 * time.Millisecond

// VideoDecoder owns a single video codec.Decoder and the scaler that
// converts its native output to packed RGBA. Exactly one goroutine
// (the one Start spawns) ever touches decoder or scaler.
type VideoDecoder struct {
	decoder   codec.Decoder
	scaler    codec.Scaler
	timeBase  codec.Rational
	frameRate codec.Rational
	width     int
	height    int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startedMu sync.Mutex
	started   bool
}

// NewVideoDecoder opens a decoder and scaler for params.
func NewVideoDecoder(backend codec.Backend, params codec.CodecParams) (*VideoDecoder, error) {
	dec, err := backend.OpenDecoder(params)
	if err != nil {
		return nil, fmt.Errorf("media: opening video decoder: %w", err)
	}
	return &VideoDecoder{
		decoder:   dec,
		scaler:    backend.NewScaler(),
		timeBase:  params.TimeBase,
		frameRate: params.FrameRate,
		width:     params.Width,
		height:    params.Height,
	}, nil
}

func (d *VideoDecoder) Width() int               { return d.width }
func (d *VideoDecoder) Height() int              { return d.height }
func (d *VideoDecoder) TimeBase() codec.Rational { return d.timeBase }

// FrameRateHz returns the stream's average frame rate in frames per
// second, used to derive frameDuration for ClipPlayer's tolerance window.
func (d *VideoDecoder) FrameRateHz() float64 {
	if d.frameRate.Den == 0 || d.frameRate.Num == 0 {
		return 30 // a sane fallback; avg_frame_rate is occasionally 0/0 on some containers
	}
	return float64(d.frameRate.Num) / float64(d.frameRate.Den)
}

// Start spawns the decoder thread. It pops packets from pq, decodes and
// scales them, and commits RGBA frames into fq, until Stop is called.
func (d *VideoDecoder) Start(pq *queue.PacketQueue, fq *queue.VideoFrameQueue) {
	d.startedMu.Lock()
	defer d.startedMu.Unlock()
	if d.started {
		return
	}
	d.started = true

	d.ctx, d.cancel = context.WithCancel(context.Background())
	d.wg.Add(1)
	go d.run(pq, fq)
}

func (d *VideoDecoder) Stop() {
	d.startedMu.Lock()
	defer d.startedMu.Unlock()
	if !d.started {
		return
	}
	d.cancel()
	d.wg.Wait()
	d.started = false
}

func (d *VideoDecoder) Close() error {
	return d.decoder.Close()
}

func (d *VideoDecoder) run(pq *queue.PacketQueue, fq *queue.VideoFrameQueue) {
	defer d.wg.Done()

	serial := pq.CurrentSerial()

	for {
		if d.ctx.Err() != nil {
			return
		}

		pkt, ok := pq.Pop(popTimeout)
		if !ok {
			continue
		}

		if current := pq.CurrentSerial(); current != serial {
			d.decoder.FlushBuffers()
			serial = current
		}

		if err := d.decoder.SendPacket(queue2codecPacket(pkt)); err != nil {
			continue
		}

		for {
			frame, err := d.decoder.ReceiveVideoFrame()
			if err != nil {
				break // codec.ErrAgain or EOF-equivalent: need another packet
			}

			rgba, err := d.scaler.Scale(frame, d.width, d.height)
			if err != nil {
				continue
			}

			slot, err := fq.AcquireWriteSlot()
			if err != nil {
				return // aborted
			}
			slot.Pix = append(slot.Pix[:0], rgba...)
			slot.Width = d.width
			slot.Height = d.height
			slot.Stride = d.width * 4
			// PTS stays in the stream's native time base; ClipPlayer
			// converts to seconds at read time (mirrors
			// ClipPlayer.cpp's getVideoFrameAtTime, which multiplies by
			// av_q2d(timeBase) only when peeking, not at decode time).
			slot.PTS = float64(frame.PTS)
			fq.Commit()
		}
	}
}

func queue2codecPacket(pkt queue.Packet) codec.Packet {
	return codec.Packet{
		StreamIndex: pkt.StreamIndex,
		Payload:     pkt.Data,
		PTS:         pkt.PTS,
		DTS:         pkt.DTS,
	}
}
