package queue

import "sync"

// DefaultAudioFrameCapacity matches original_source/src/media/FrameQueue.h's
// audio ring, which is sized larger than the video ring because audio
// frames are cheap and decoded in smaller, more numerous chunks.
const DefaultAudioFrameCapacity = 32

// AudioFrame is a decoded, resampled block of interleaved float32 samples.
// Unlike VideoFrame, Samples is not pooled across frames: resampled audio
// varies in sample count frame to frame, so a ring of fixed-size buffers
// would either truncate or waste space.
type AudioFrame struct {
	Samples    []float32
	Channels   int
	SampleRate int
	PTS        float64
	Serial     int
}

// AudioFrameQueue is a bounded FIFO of decoded audio frames. It uses the
// same Push/Pop control surface as PacketQueue rather than VideoFrameQueue's
// acquire/commit slots, because audio frames aren't a fixed size and so
// can't be decoded in place into a pre-allocated buffer.
type AudioFrameQueue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond

	items    []AudioFrame
	capacity int
	serial   int
	aborted  bool
}

func NewAudioFrameQueue(capacity int) *AudioFrameQueue {
	if capacity <= 0 {
		capacity = DefaultAudioFrameCapacity
	}
	q := &AudioFrameQueue{capacity: capacity}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

func (q *AudioFrameQueue) Push(frame AudioFrame) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) >= q.capacity && !q.aborted {
		q.notFull.Wait()
	}
	if q.aborted {
		return ErrAborted
	}

	frame.Serial = q.serial
	q.items = append(q.items, frame)
	q.notEmpty.Signal()
	return nil
}

// Pop removes and returns the oldest frame, discarding any stale (pre-Flush)
// entries along the way. ok is false only on abort; unlike PacketQueue,
// callers (the mixer) pull audio on demand rather than on a timed decoder
// loop, so there is no timeout variant.
func (q *AudioFrameQueue) Pop() (frame AudioFrame, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		for len(q.items) == 0 && !q.aborted {
			q.notEmpty.Wait()
		}
		if q.aborted {
			return AudioFrame{}, false
		}

		entry := q.items[0]
		q.items = q.items[1:]
		q.notFull.Signal()

		if entry.Serial != q.serial {
			continue
		}
		return entry, true
	}
}

// TryPop is the non-blocking form used by the mixer's fill callback, which
// must never stall the audio device thread waiting on a decoder.
func (q *AudioFrameQueue) TryPop() (frame AudioFrame, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if len(q.items) == 0 {
			return AudioFrame{}, false
		}
		entry := q.items[0]
		q.items = q.items[1:]
		q.notFull.Signal()

		if entry.Serial != q.serial {
			continue
		}
		return entry, true
	}
}

// TryPeek returns the oldest ready frame without removing it, discarding any
// stale (pre-Flush) entries it finds in front of it. The mixer uses this to
// read a frame incrementally across several fillBuffer calls, only advancing
// the queue with DropFront once the frame is fully consumed.
func (q *AudioFrameQueue) TryPeek() (frame AudioFrame, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if len(q.items) == 0 {
			return AudioFrame{}, false
		}
		if q.items[0].Serial != q.serial {
			q.items = q.items[1:]
			q.notFull.Signal()
			continue
		}
		return q.items[0], true
	}
}

// DropFront removes the oldest frame once the mixer has fully consumed it.
func (q *AudioFrameQueue) DropFront() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) > 0 {
		q.items = q.items[1:]
		q.notFull.Signal()
	}
}

func (q *AudioFrameQueue) Flush() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = q.items[:0]
	q.serial++
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}

func (q *AudioFrameQueue) Abort() {
	q.mu.Lock()
	q.aborted = true
	q.mu.Unlock()
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}

func (q *AudioFrameQueue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.aborted = false
}

func (q *AudioFrameQueue) CurrentSerial() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.serial
}

func (q *AudioFrameQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
