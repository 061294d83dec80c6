package blockcopy

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubDiskInfo reports fixed sizing facts, the way the platform adapters do
// after querying a real device.
type stubDiskInfo struct {
	srcLength    int64
	destCapacity int64
	sectorSize   int32
	sectorErr    error
}

func (d stubDiskInfo) SourceLength(*os.File) (int64, error) { return d.srcLength, nil }

func (d stubDiskInfo) DestinationCapacity(*os.File, string) (int64, error) {
	return d.destCapacity, nil
}

func (d stubDiskInfo) SectorSize(*os.File, string) (int32, error) {
	return d.sectorSize, d.sectorErr
}

// writeSourceFile creates a file of n bytes with a position-dependent
// pattern so any misplaced block shows up in a byte compare.
func writeSourceFile(t *testing.T, n int64) *os.File {
	t.Helper()
	f, err := os.Create(filepath.Join(t.TempDir(), "src.img"))
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	buf := make([]byte, 64*1024)
	var off int64
	for off < n {
		k := int64(len(buf))
		if n-off < k {
			k = n - off
		}
		for i := int64(0); i < k; i++ {
			buf[i] = byte((off + i) * 7)
		}
		_, err := f.WriteAt(buf[:k], off)
		require.NoError(t, err)
		off += k
	}
	return f
}

func createDestFile(t *testing.T, capacity int64) *os.File {
	t.Helper()
	f, err := os.Create(filepath.Join(t.TempDir(), "dst.img"))
	require.NoError(t, err)
	require.NoError(t, f.Truncate(capacity))
	t.Cleanup(func() { f.Close() })
	return f
}

func newTestCopier(t *testing.T, src, dst *os.File, di DiskInfo, threads int, blockSize int64) *Copier {
	t.Helper()
	c := New(Options{
		Threads:          threads,
		BlockSize:        blockSize,
		Disk:             di,
		ProgressInterval: time.Millisecond,
	})
	require.NoError(t, c.Initialize(src, dst, src.Name(), dst.Name()))
	return c
}

func readBack(t *testing.T, f *os.File, off, n int64) []byte {
	t.Helper()
	out := make([]byte, n)
	_, err := f.ReadAt(out, off)
	require.NoError(t, err)
	return out
}

// Two full blocks: no padding, exact byte coverage and conservation.
func TestCopyTwoFullBlocks(t *testing.T) {
	const (
		sectorSize = 512
		blockSize  = 4096
		srcLen     = 8192
	)
	src := writeSourceFile(t, srcLen)
	dst := createDestFile(t, srcLen)
	c := newTestCopier(t, src, dst,
		stubDiskInfo{srcLength: srcLen, destCapacity: srcLen, sectorSize: sectorSize}, 2, blockSize)

	require.NoError(t, c.Run())

	assert.Equal(t, int64(srcLen), c.Progress().BytesRead)
	assert.Equal(t, int64(srcLen), c.Progress().BytesWritten)
	assert.Equal(t, readBack(t, src, 0, srcLen), readBack(t, dst, 0, srcLen))
}

// A 508-byte tail pads to one full sector; the padding bytes must be zero.
func TestCopyUnalignedTail(t *testing.T) {
	const (
		sectorSize = 512
		blockSize  = 4096
		srcLen     = 8700
		padded     = 8704
	)
	src := writeSourceFile(t, srcLen)
	dst := createDestFile(t, 16384)
	c := newTestCopier(t, src, dst,
		stubDiskInfo{srcLength: srcLen, destCapacity: 16384, sectorSize: sectorSize}, 2, blockSize)

	require.NoError(t, c.Run())

	assert.Equal(t, int64(srcLen), c.Progress().BytesRead)
	assert.Equal(t, int64(padded), c.Progress().BytesWritten)
	assert.Equal(t, readBack(t, src, 0, srcLen), readBack(t, dst, 0, srcLen))
	assert.Equal(t, make([]byte, padded-srcLen), readBack(t, dst, srcLen, padded-srcLen),
		"tail padding must be zeros")
}

// An empty source completes immediately with zero bytes transferred.
func TestCopyEmptySource(t *testing.T) {
	src := writeSourceFile(t, 0)
	dst := createDestFile(t, 4096)
	c := newTestCopier(t, src, dst,
		stubDiskInfo{srcLength: 0, destCapacity: 4096, sectorSize: 512}, 2, 4096)

	require.NoError(t, c.Run())
	assert.Zero(t, c.Progress().BytesRead)
	assert.Zero(t, c.Progress().BytesWritten)
}

// Many workers over 64 full blocks plus a 100-byte tail: every byte lands at
// its own offset and only the final sector is padded.
func TestCopyManyWorkers(t *testing.T) {
	const (
		sectorSize = 512
		blockSize  = 4096
		srcLen     = 64*blockSize + 100
		capacity   = 65 * blockSize
	)
	src := writeSourceFile(t, srcLen)
	dst := createDestFile(t, capacity)
	c := newTestCopier(t, src, dst,
		stubDiskInfo{srcLength: srcLen, destCapacity: capacity, sectorSize: sectorSize}, 8, blockSize)

	require.NoError(t, c.Run())

	assert.Equal(t, int64(srcLen), c.Progress().BytesRead)
	assert.Equal(t, int64(srcLen+(sectorSize-srcLen%sectorSize)), c.Progress().BytesWritten)
	assert.Equal(t, readBack(t, src, 0, srcLen), readBack(t, dst, 0, srcLen))
}

// A single worker keeps exactly one operation outstanding and still copies
// everything.
func TestCopySingleWorker(t *testing.T) {
	const (
		blockSize = 4096
		srcLen    = 5 * blockSize
	)
	src := writeSourceFile(t, srcLen)
	dst := createDestFile(t, srcLen)

	var maxPending int64
	var mu sync.Mutex
	c := New(Options{
		Threads:          1,
		BlockSize:        blockSize,
		Disk:             stubDiskInfo{srcLength: srcLen, destCapacity: srcLen, sectorSize: 512},
		ProgressInterval: time.Millisecond,
		OnProgress: func(p Progress) {
			mu.Lock()
			if p.Pending > maxPending {
				maxPending = p.Pending
			}
			mu.Unlock()
		},
	})
	require.NoError(t, c.Initialize(src, dst, src.Name(), dst.Name()))
	require.NoError(t, c.Run())

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, maxPending, int64(1))
	assert.Equal(t, readBack(t, src, 0, srcLen), readBack(t, dst, 0, srcLen))
}

// Copying the same source twice yields byte-identical destination contents.
func TestCopyIdempotent(t *testing.T) {
	const (
		blockSize = 4096
		srcLen    = 3*blockSize + 700
		capacity  = 4 * blockSize
	)
	src := writeSourceFile(t, srcLen)

	run := func() []byte {
		dst := createDestFile(t, capacity)
		c := newTestCopier(t, src, dst,
			stubDiskInfo{srcLength: srcLen, destCapacity: capacity, sectorSize: 512}, 3, blockSize)
		require.NoError(t, c.Run())
		return readBack(t, dst, 0, capacity)
	}

	first := run()
	second := run()
	assert.True(t, bytes.Equal(first, second))
}

// A read error aborts the copy; in-flight operations drain and the error
// surfaces as ErrRead with the failing offset.
func TestReadErrorAborts(t *testing.T) {
	const (
		blockSize = 4096
		srcLen    = 16384
	)
	src := writeSourceFile(t, srcLen)
	dst := createDestFile(t, srcLen)
	c := newTestCopier(t, src, dst,
		stubDiskInfo{srcLength: srcLen, destCapacity: srcLen, sectorSize: 512}, 2, blockSize)

	realRead := c.readAt
	c.readAt = func(p []byte, off int64) (int, error) {
		if off == 8192 {
			return 0, fmt.Errorf("simulated device fault")
		}
		return realRead(p, off)
	}

	err := c.Run()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRead)
	assert.Contains(t, err.Error(), "8192")
}

// A write error aborts similarly; reads still drain, no new writes are
// issued, and no worker is left hanging.
func TestWriteErrorAborts(t *testing.T) {
	const (
		blockSize = 4096
		srcLen    = 16 * blockSize
	)
	src := writeSourceFile(t, srcLen)
	dst := createDestFile(t, srcLen)
	c := newTestCopier(t, src, dst,
		stubDiskInfo{srcLength: srcLen, destCapacity: srcLen, sectorSize: 512}, 4, blockSize)

	var failed failOnce
	realWrite := c.writeAt
	c.writeAt = func(p []byte, off int64) (int, error) {
		if failed.first() {
			return 0, fmt.Errorf("simulated write fault")
		}
		return realWrite(p, off)
	}

	done := make(chan error, 1)
	go func() { done <- c.Run() }()
	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrWrite)
	case <-time.After(10 * time.Second):
		t.Fatal("copy did not terminate after write error")
	}
}

// failOnce reports true exactly once.
type failOnce struct {
	mu   sync.Mutex
	done bool
}

func (a *failOnce) first() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.done {
		return false
	}
	a.done = true
	return true
}

// A source that ends earlier than its reported length terminates cleanly:
// the short read is classified as end of input, not a failure.
func TestEarlyEOFTerminates(t *testing.T) {
	const blockSize = 4096
	src := writeSourceFile(t, 2*blockSize)
	dst := createDestFile(t, 4*blockSize)
	// DiskInfo overstates the source length.
	c := newTestCopier(t, src, dst,
		stubDiskInfo{srcLength: 4 * blockSize, destCapacity: 4 * blockSize, sectorSize: 512}, 2, blockSize)

	require.NoError(t, c.Run())
	assert.Equal(t, readBack(t, src, 0, 2*blockSize), readBack(t, dst, 0, 2*blockSize))
}

// End of input on a read terminates the stream without issuing the paired
// write, even when the short read delivered bytes: only the full blocks
// preceding it are copied.
func TestEarlyEOFDiscardsPartialRead(t *testing.T) {
	const (
		sectorSize = 512
		blockSize  = 4096
		srcLen     = 2*blockSize + 700
	)
	src := writeSourceFile(t, srcLen)
	dst := createDestFile(t, 4*blockSize)
	// DiskInfo overstates the source length, so the tail block comes back
	// as a short read with EOF.
	c := newTestCopier(t, src, dst,
		stubDiskInfo{srcLength: 4 * blockSize, destCapacity: 4 * blockSize, sectorSize: sectorSize}, 2, blockSize)

	require.NoError(t, c.Run())
	assert.Equal(t, int64(2*blockSize), c.Progress().BytesRead)
	assert.Equal(t, int64(2*blockSize), c.Progress().BytesWritten)
	assert.Equal(t, readBack(t, src, 0, 2*blockSize), readBack(t, dst, 0, 2*blockSize))
	assert.Equal(t, make([]byte, blockSize), readBack(t, dst, 2*blockSize, blockSize),
		"no write may be issued for the short tail read")
}

func TestPreflightRejections(t *testing.T) {
	const blockSize = 4096
	cases := []struct {
		name    string
		threads int
		disk    stubDiskInfo
	}{
		{
			name:    "block size not a multiple of sector size",
			threads: 2,
			disk:    stubDiskInfo{srcLength: 8192, destCapacity: 8192, sectorSize: 4097},
		},
		{
			name:    "destination smaller than source",
			threads: 2,
			disk:    stubDiskInfo{srcLength: 11 * 512, destCapacity: 10 * 512, sectorSize: 512},
		},
		{
			name:    "too many threads",
			threads: 65,
			disk:    stubDiskInfo{srcLength: 8192, destCapacity: 8192, sectorSize: 512},
		},
		{
			name:    "negative thread count",
			threads: -1,
			disk:    stubDiskInfo{srcLength: 8192, destCapacity: 8192, sectorSize: 512},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src := writeSourceFile(t, 8192)
			dst := createDestFile(t, 16384)
			c := New(Options{Threads: tc.threads, BlockSize: blockSize, Disk: tc.disk})
			err := c.Initialize(src, dst, src.Name(), dst.Name())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrConfig)
		})
	}
}

// Unknown sector size: refused without confirmation, assumed with it.
func TestSectorSizeFallback(t *testing.T) {
	const blockSize = FallbackSectorSize
	src := writeSourceFile(t, blockSize)
	dst := createDestFile(t, 2*blockSize)
	disk := stubDiskInfo{srcLength: blockSize, destCapacity: 2 * blockSize, sectorSize: 0}

	c := New(Options{Threads: 1, BlockSize: blockSize, Disk: disk})
	err := c.Initialize(src, dst, src.Name(), dst.Name())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfig)

	c = New(Options{
		Threads:   1,
		BlockSize: blockSize,
		Disk:      disk,
		ConfirmSectorFallback: func(s int32) bool {
			assert.Equal(t, int32(FallbackSectorSize), s)
			return true
		},
		ProgressInterval: time.Millisecond,
	})
	require.NoError(t, c.Initialize(src, dst, src.Name(), dst.Name()))
	assert.Equal(t, int32(FallbackSectorSize), c.SectorSize())
	require.NoError(t, c.Run())
}

func TestRunBeforeInitialize(t *testing.T) {
	c := New(Options{})
	err := c.Run()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfig))
}

func TestProgressPercent(t *testing.T) {
	assert.Equal(t, float64(100), Progress{SourceLength: 0}.Percent())
	assert.InDelta(t, 50, Progress{SourceLength: 200, BytesWritten: 100}.Percent(), 0.01)
	assert.Equal(t, float64(100), Progress{SourceLength: 100, BytesWritten: 512}.Percent())
}
