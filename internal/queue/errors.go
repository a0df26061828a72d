package queue

import "errors"

// ErrAborted is returned by Push (and AcquireWriteSlot) once Abort has been
// called. The Pop/Peek methods report an abort or a timeout with ok=false
// instead of an error.
var ErrAborted = errors.New("queue: aborted")
