package blockcopy

// apcQueueDepth bounds a slot's completion queue. A slot has at most one
// I/O in flight, so one slot position is for its completion and the rest
// absorb controller wake-ups.
const apcQueueDepth = 4

// ioContext is the per-slot state for one outstanding read-then-write pair.
// A context is created once at startup and keeps the same buffer for the
// engine's lifetime. All fields except the queue are mutated only by the
// owning worker goroutine, including inside the completion routines it
// executes, so they need no synchronization.
type ioContext struct {
	// buf is the slot's fixed transfer buffer: length blockSize, base
	// address aligned to the destination sector size.
	buf []byte

	// offset is the source offset of the in-flight operation; the paired
	// write reuses it.
	offset int64

	// writeBytes is the padded length of the pending write:
	// ceil(readBytes, sectorSize).
	writeBytes int64

	// completed is set by a completion routine when the slot is free to
	// claim the next block (write finished, or read ended in error/EOF).
	completed bool

	// owner routes completion routines back to the engine instance.
	owner *Copier

	// apc delivers completion routines to the owning worker. The worker's
	// cooperative wait is a blocking receive from this queue, so every
	// routine runs on the goroutine that owns the slot.
	apc chan func()
}

func newIOContext(owner *Copier, blockSize int64, sectorSize int32) *ioContext {
	return &ioContext{
		buf:   allocAligned(blockSize, sectorSize),
		owner: owner,
		apc:   make(chan func(), apcQueueDepth),
	}
}

// post delivers a completion routine to the owning worker.
func (x *ioContext) post(fn func()) {
	x.apc <- fn
}

// wake enqueues a no-op completion so a parked worker re-evaluates its loop
// condition. Best-effort: a full queue already has a delivery in flight
// that will wake the worker, and a worker that exited never drains again.
func (x *ioContext) wake() {
	select {
	case x.apc <- func() {}:
	default:
	}
}
