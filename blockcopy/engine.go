package blockcopy

import (
	"errors"
	"fmt"
	"io"
)

// claim hands out the next read offset in blockSize strides. Returns false
// when the source is exhausted, which also latches readsDone. Distinct
// callers never receive overlapping ranges: every successful fetch-add
// advances nextOffset by a full stride.
func (c *Copier) claim() (int64, bool) {
	off := c.nextOffset.Add(c.blockSize) - c.blockSize
	if off >= c.srcLength {
		c.readsDone.Store(true)
		return 0, false
	}
	return off, true
}

// issueRead claims the next block and submits an asynchronous read into the
// slot's buffer. Returns false when there is no more work: reads exhausted,
// engine errored, or nothing left to claim. Precondition: the slot has no
// I/O in flight.
func (c *Copier) issueRead(x *ioContext) bool {
	if c.readsDone.Load() || c.errored.Load() {
		return false
	}
	off, ok := c.claim()
	if !ok {
		c.opts.Log.Debugf("issueRead: offset claim exhausted at %d", c.srcLength)
		return false
	}
	n := c.blockSize
	if off+n > c.srcLength {
		n = c.srcLength - off
	}
	if n == 0 {
		c.readsDone.Store(true)
		return false
	}

	x.offset = off
	x.writeBytes = 0
	x.completed = false
	c.pending.Add(1)

	buf := x.buf[:n]
	go func() {
		m, err := x.owner.readAt(buf, off)
		x.post(func() { x.owner.onReadCompletion(x, m, err) })
	}()
	c.opts.Log.Debugf("issueRead: offset=%d bytes=%d pending=%d", off, n, c.pending.Load())
	return true
}

// onReadCompletion runs on the slot's owning worker, inside its cooperative
// wait. A successful read chains directly into the paired write after
// padding the length up to the destination sector size.
func (c *Copier) onReadCompletion(x *ioContext, m int, err error) {
	c.pending.Add(-1)

	switch {
	case err != nil && !errors.Is(err, io.EOF):
		c.fail(fmt.Errorf("%w: source offset %d: %v", ErrRead, x.offset, err))
		x.completed = true
		return
	case errors.Is(err, io.EOF) || m == 0:
		// End of input: terminate the read stream cleanly. Reads never
		// extend past the preflighted source length, so EOF here means the
		// source ended early; bytes delivered together with EOF are not
		// written.
		c.opts.Log.Debugf("read EOF at offset %d (%d bytes)", x.offset, m)
		c.readsDone.Store(true)
		x.completed = true
		return
	}

	c.bytesRead.Add(int64(m))

	// Unbuffered destination writes must be sector-multiples. Only the
	// final block can be short; pad it with zeros inside the buffer.
	p := int64(m)
	if rem := p % int64(c.sectorSize); rem != 0 {
		pad := int64(c.sectorSize) - rem
		if p+pad > c.blockSize {
			c.fail(fmt.Errorf("%w: cannot pad %d bytes to sector size %d within a %d byte block",
				ErrConfig, m, c.sectorSize, c.blockSize))
			x.completed = true
			return
		}
		clear(x.buf[p : p+pad])
		p += pad
	}
	x.writeBytes = p

	// Once errored the engine drains reads but issues no further writes.
	if c.errored.Load() {
		x.completed = true
		return
	}
	c.issueWrite(x)
}

// issueWrite submits the asynchronous write paired with the slot's last
// read, at the same offset and with the padded length.
func (c *Copier) issueWrite(x *ioContext) {
	x.completed = false
	c.pending.Add(1)

	buf := x.buf[:x.writeBytes]
	off := x.offset
	go func() {
		m, err := x.owner.writeAt(buf, off)
		x.post(func() { x.owner.onWriteCompletion(x, m, err) })
	}()
	c.opts.Log.Debugf("issueWrite: offset=%d bytes=%d pending=%d", off, x.writeBytes, c.pending.Load())
}

// onWriteCompletion runs on the slot's owning worker. It always sets
// completed so the worker can claim the next block or observe termination.
func (c *Copier) onWriteCompletion(x *ioContext, m int, err error) {
	c.pending.Add(-1)
	if err != nil {
		c.fail(fmt.Errorf("%w: destination offset %d: %v", ErrWrite, x.offset, err))
	}
	c.bytesWritten.Add(int64(m))
	x.completed = true
}
