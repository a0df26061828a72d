// Package queue implements the bounded mailboxes that connect a clip's
// demux thread to its decoder threads, and its decoder threads to the
// consumers that read decoded frames.
//
// All three queue types (PacketQueue, VideoFrameQueue, AudioFrameQueue)
// share one concurrency idiom, grounded on
// modules/framesupplier/internal/{inbox,worker_slot}.go and
// modules/framebus/internal/bus/bus.go: a sync.Mutex-guarded slice or
// ring plus sync.Cond signalling, rather than an unbuffered channel.
// Unlike those mailboxes (single-slot,
// overwrite-on-publish, "latest frame wins"), these queues are bounded FIFOs
// that apply backpressure — a full queue blocks its producer rather than
// dropping data — because decode order and presentation order must be
// preserved exactly.
//
// Flush serials are the cross-thread signal that lets a seek discard
// in-flight packets/frames without touching a codec context from more than
// one goroutine: the flusher bumps the queue's serial, and a consumer that
// pops an entry tagged with an older serial silently discards it and pops
// again.
package queue
