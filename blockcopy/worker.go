package blockcopy

// workerLoop is the body of one worker goroutine, bound to one slot for the
// whole copy. It primes a single read, then alternates between the
// cooperative wait and issuing the next read for its slot. All completion
// routines for the slot execute here, between waits.
func (c *Copier) workerLoop(x *ioContext) {
	if !c.issueRead(x) {
		c.opts.Log.Debugf("worker: no work at prime, exiting")
		return
	}

	// busy is true while the slot has a read or write in flight; the worker
	// keeps waiting for that completion even once the engine has errored.
	busy := true
	for busy || (!c.errored.Load() && !c.done()) {
		// Cooperative wait: returns after executing one completion
		// routine (or a controller wake-up) for this slot.
		fn := <-x.apc
		fn()

		if !x.completed {
			continue
		}
		x.completed = false
		busy = false

		if c.errored.Load() {
			c.opts.Log.Debugf("worker: error observed, terminating")
			break
		}
		if !c.readsDone.Load() {
			if !c.issueRead(x) {
				// Claim exhausted or the engine failed between the
				// check and the issue; either way the slot is idle
				// and this worker is finished.
				break
			}
			busy = true
		}
	}
}
