package media

import (
	"context"
	"fmt"
	"sync"

	"github.com/Wad67/video-editor/internal/codec"
	"github.com/Wad67/video-editor/internal/queue"
)

// AudioDecoder mirrors VideoDecoder's goroutine shape but resamples to
// interleaved float32 stereo at a fixed output rate instead of scaling to
// RGBA. The output frame's PTS is carried through unconverted (still in
// the source codec's time base); the mixer is what converts it to
// seconds, since it also has to reconcile it against the master clock.
type AudioDecoder struct {
	decoder    codec.Decoder
	resampler  codec.Resampler
	timeBase   codec.Rational
	outRate    int
	outChannels int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startedMu sync.Mutex
	started   bool
}

func NewAudioDecoder(backend codec.Backend, params codec.CodecParams, outputSampleRate int) (*AudioDecoder, error) {
	dec, err := backend.OpenDecoder(params)
	if err != nil {
		return nil, fmt.Errorf("media: opening audio decoder: %w", err)
	}
	return &AudioDecoder{
		decoder:     dec,
		resampler:   backend.NewResampler(),
		timeBase:    params.TimeBase,
		outRate:     outputSampleRate,
		outChannels: 2,
	}, nil
}

func (d *AudioDecoder) SampleRate() int          { return d.outRate }
func (d *AudioDecoder) Channels() int            { return d.outChannels }
func (d *AudioDecoder) TimeBase() codec.Rational { return d.timeBase }

func (d *AudioDecoder) Start(pq *queue.PacketQueue, fq *queue.AudioFrameQueue) {
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

func (d *AudioDecoder) Stop() {
	d.startedMu.Lock()
	defer d.startedMu.Unlock()
	if !d.started {
		return
	}
	d.cancel()
	d.wg.Wait()
	d.started = false
}

func (d *AudioDecoder) Close() error {
	return d.decoder.Close()
}

func (d *AudioDecoder) run(pq *queue.PacketQueue, fq *queue.AudioFrameQueue) {
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
			frame, err := d.decoder.ReceiveAudioFrame()
			if err != nil {
				break
			}

			samples, err := d.resampler.Resample(frame, d.outRate)
			if err != nil {
				continue
			}

			// PTS is the input frame's PTS, codec time base preserved —
			// the mixer is what converts it to seconds, since it also has
			// to reconcile it against the master clock.
			if err := fq.Push(queue.AudioFrame{
				Samples:    samples,
				Channels:   d.outChannels,
				SampleRate: d.outRate,
				PTS:        float64(frame.PTS),
			}); err != nil {
				return // aborted
			}
		}
	}
}
