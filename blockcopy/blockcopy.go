// Package blockcopy implements a parallel block-level copy pipeline for raw
// volumes and disk-like sources.
//
// The pipeline keeps N block-sized I/O operations outstanding at once. Each
// of N workers owns exactly one I/O context (slot): a fixed sector-aligned
// buffer plus the bookkeeping for one in-flight read-then-write pair.
// Workers claim source offsets from a shared atomic counter in block
// strides, so no two workers ever copy overlapping ranges. A completed read
// chains directly into the write of the same slot; a completed write frees
// the slot for the next claim.
//
// Completion delivery is cooperative: the goroutine that performs an I/O
// posts a completion routine to the owning slot's queue, and the owning
// worker executes it while parked in its wait. Slot state is therefore
// touched by a single goroutine only, and the engine needs no locks beyond
// the shared atomics.
package blockcopy

import (
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/logesh11exe/BlockCopier/logutil"
)

// Defaults matching the classic invocation: four outstanding I/Os of one
// megabyte each.
const (
	DefaultThreads     = 4
	DefaultBlockSizeMB = 1
	DefaultBlockSize   = DefaultBlockSizeMB * 1024 * 1024

	// MaxThreads bounds the worker count; one slot buffer is pinned per
	// worker for the whole copy.
	MaxThreads = 64

	// FallbackSectorSize is assumed when the destination sector size
	// cannot be queried and the caller confirms the fallback.
	FallbackSectorSize = 4096
)

// Options configures a Copier.
type Options struct {
	// Threads is the number of workers, each owning one slot. 1..MaxThreads.
	Threads int

	// BlockSize is the claim stride and slot buffer length in bytes. Must
	// be a positive multiple of the destination sector size.
	BlockSize int64

	// SectorSize overrides sector-size discovery when non-zero.
	SectorSize int32

	// Disk supplies source length, destination capacity and destination
	// sector size during preflight.
	Disk DiskInfo

	// ConfirmSectorFallback is consulted when the sector size cannot be
	// queried. Returning true accepts FallbackSectorSize; nil or false
	// aborts initialization.
	ConfirmSectorFallback func(sectorSize int32) bool

	// OnProgress, when set, is invoked from the controller roughly every
	// ProgressInterval, and once more after the pipeline drains.
	OnProgress func(Progress)

	// ProgressInterval defaults to 100ms.
	ProgressInterval time.Duration

	// Log receives the engine's diagnostics. Nil discards them.
	Log *logutil.Logger
}

// Progress is a point-in-time snapshot of the copy counters.
type Progress struct {
	BytesRead    int64
	BytesWritten int64
	Pending      int64
	SourceLength int64
}

// Percent returns how much of the source has been written out, in [0,100].
func (p Progress) Percent() float64 {
	if p.SourceLength <= 0 {
		return 100
	}
	pct := float64(p.BytesWritten) * 100 / float64(p.SourceLength)
	if pct > 100 {
		pct = 100
	}
	return pct
}

// Copier streams the full byte range of a source device to a destination
// device. Create with New, then Initialize and Run exactly once.
type Copier struct {
	opts Options

	src *os.File
	dst *os.File

	srcLength    int64
	destCapacity int64
	sectorSize   int32
	blockSize    int64
	threads      int

	slots []*ioContext

	// Positional I/O seams; default to src.ReadAt / dst.WriteAt. Tests
	// substitute these to inject device faults.
	readAt  func(p []byte, off int64) (int, error)
	writeAt func(p []byte, off int64) (int, error)

	// nextOffset hands out read offsets in blockSize strides; the sole
	// serialization point for work distribution.
	nextOffset atomic.Int64

	// pending counts issued but not yet completed operations, reads and
	// writes alike.
	pending atomic.Int64

	readsDone atomic.Bool
	errored   atomic.Bool

	bytesRead    atomic.Int64
	bytesWritten atomic.Int64

	errOnce sync.Once
	err     error
}

// New returns an uninitialized Copier.
func New(opts Options) *Copier {
	return &Copier{opts: opts}
}

// Progress returns a snapshot of the copy counters.
func (c *Copier) Progress() Progress {
	return Progress{
		BytesRead:    c.bytesRead.Load(),
		BytesWritten: c.bytesWritten.Load(),
		Pending:      c.pending.Load(),
		SourceLength: c.srcLength,
	}
}

// SourceLength reports the source byte length determined at preflight.
func (c *Copier) SourceLength() int64 { return c.srcLength }

// SectorSize reports the destination sector size determined at preflight.
func (c *Copier) SectorSize() int32 { return c.sectorSize }

// BlockSize reports the configured block size.
func (c *Copier) BlockSize() int64 { return c.blockSize }

// fail records the first error, marks the engine errored and lets the
// pipeline drain. Later calls only reinforce the flag.
func (c *Copier) fail(err error) {
	c.errOnce.Do(func() {
		c.err = err
		c.opts.Log.Errorf("%v", err)
	})
	c.errored.Store(true)
}

// done reports the termination predicate: all reads issued and nothing in
// flight.
func (c *Copier) done() bool {
	return c.readsDone.Load() && c.pending.Load() == 0
}
