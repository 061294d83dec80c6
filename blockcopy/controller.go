package blockcopy

import (
	"fmt"
	"os"
	"sync"
	"time"
)

const defaultProgressInterval = 100 * time.Millisecond

// Initialize runs the preflight: validates the configuration, discovers the
// source length, destination capacity and destination sector size through
// the DiskInfo adapter, and allocates the slot pool. The handles must stay
// open until Run returns; the Copier does not close them.
//
// All rejections wrap ErrConfig and leave no copy state behind.
func (c *Copier) Initialize(src, dst *os.File, srcPath, dstPath string) error {
	c.threads = c.opts.Threads
	if c.threads == 0 {
		c.threads = DefaultThreads
	}
	c.blockSize = c.opts.BlockSize
	if c.blockSize == 0 {
		c.blockSize = DefaultBlockSize
	}

	if c.threads < 1 || c.threads > MaxThreads {
		return fmt.Errorf("%w: thread count %d not in [1, %d]", ErrConfig, c.threads, MaxThreads)
	}
	if c.blockSize <= 0 {
		return fmt.Errorf("%w: block size %d must be positive", ErrConfig, c.blockSize)
	}
	if c.opts.Disk == nil {
		return fmt.Errorf("%w: no disk info adapter", ErrConfig)
	}

	c.opts.Log.Infof("source: %s", srcPath)
	c.opts.Log.Infof("destination: %s", dstPath)
	c.opts.Log.Infof("workers: %d, block size: %d bytes", c.threads, c.blockSize)

	var err error
	c.srcLength, err = c.opts.Disk.SourceLength(src)
	if err != nil {
		return fmt.Errorf("%w: cannot determine source length: %v", ErrConfig, err)
	}
	c.destCapacity, err = c.opts.Disk.DestinationCapacity(dst, dstPath)
	if err != nil {
		return fmt.Errorf("%w: cannot determine destination capacity: %v", ErrConfig, err)
	}
	if c.destCapacity < c.srcLength {
		return fmt.Errorf("%w: destination capacity %d bytes is smaller than source length %d bytes",
			ErrConfig, c.destCapacity, c.srcLength)
	}

	c.sectorSize = c.opts.SectorSize
	if c.sectorSize == 0 {
		c.sectorSize, err = c.opts.Disk.SectorSize(dst, dstPath)
		if err != nil {
			return fmt.Errorf("%w: cannot determine destination sector size: %v", ErrConfig, err)
		}
	}
	if c.sectorSize == 0 {
		if c.opts.ConfirmSectorFallback == nil || !c.opts.ConfirmSectorFallback(FallbackSectorSize) {
			return fmt.Errorf("%w: destination sector size unknown", ErrConfig)
		}
		c.opts.Log.Warningf("destination sector size unknown, assuming %d bytes", FallbackSectorSize)
		c.sectorSize = FallbackSectorSize
	}
	if c.sectorSize < 0 || c.sectorSize&(c.sectorSize-1) != 0 {
		return fmt.Errorf("%w: sector size %d is not a power of two", ErrConfig, c.sectorSize)
	}
	if c.blockSize%int64(c.sectorSize) != 0 {
		return fmt.Errorf("%w: block size %d is not a multiple of destination sector size %d",
			ErrConfig, c.blockSize, c.sectorSize)
	}

	c.opts.Log.Infof("source length: %d bytes", c.srcLength)
	c.opts.Log.Infof("destination capacity: %d bytes", c.destCapacity)
	c.opts.Log.Infof("destination sector size: %d bytes", c.sectorSize)

	c.slots = make([]*ioContext, 0, c.threads)
	for i := 0; i < c.threads; i++ {
		x := newIOContext(c, c.blockSize, c.sectorSize)
		if shift := alignmentShift(x.buf, int64(c.sectorSize)); shift != 0 {
			return fmt.Errorf("%w: slot %d buffer misaligned by %d bytes", ErrConfig, i, shift)
		}
		c.slots = append(c.slots, x)
	}

	c.src = src
	c.dst = dst
	c.readAt = src.ReadAt
	c.writeAt = dst.WriteAt
	return nil
}

// Run executes the copy: resets the engine counters, launches one worker
// per slot, reports progress until the termination predicate holds, wakes
// any still-parked workers, joins them and flushes the destination.
// Returns nil unless a read, write, padding or flush failure was recorded;
// otherwise returns the first recorded error.
func (c *Copier) Run() error {
	if c.src == nil || c.dst == nil || len(c.slots) == 0 {
		return fmt.Errorf("%w: Run before Initialize", ErrConfig)
	}

	c.nextOffset.Store(0)
	c.pending.Store(0)
	c.readsDone.Store(false)
	c.errored.Store(false)
	c.bytesRead.Store(0)
	c.bytesWritten.Store(0)

	c.opts.Log.Infof("starting block copy")

	var wg sync.WaitGroup
	for _, x := range c.slots {
		wg.Add(1)
		go func(x *ioContext) {
			defer wg.Done()
			c.workerLoop(x)
		}(x)
	}

	interval := c.opts.ProgressInterval
	if interval <= 0 {
		interval = defaultProgressInterval
	}
	tick := time.NewTicker(interval)
	defer tick.Stop()

	for !c.errored.Load() && !c.done() {
		<-tick.C
		if c.opts.OnProgress != nil {
			c.opts.OnProgress(c.Progress())
		}
	}

	// Workers whose slot saw its final completion before the predicate
	// held are re-parked in the cooperative wait; unblock them.
	for _, x := range c.slots {
		x.wake()
	}
	wg.Wait()

	if err := c.dst.Sync(); err != nil {
		c.fail(fmt.Errorf("%w: %v", ErrFlush, err))
	}

	if c.opts.OnProgress != nil {
		c.opts.OnProgress(c.Progress())
	}

	if c.errored.Load() {
		c.opts.Log.Errorf("block copy finished with errors")
		return c.err
	}
	c.opts.Log.Infof("block copy complete: read %d bytes, wrote %d bytes",
		c.bytesRead.Load(), c.bytesWritten.Load())
	return nil
}
