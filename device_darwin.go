//go:build darwin

package main

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Disk ioctls from sys/disk.h; x/sys/unix does not carry them.
const (
	dkiocGetBlockSize  = 0x40046418 // _IOR('d', 24, uint32)
	dkiocGetBlockCount = 0x40086419 // _IOR('d', 25, uint64)
)

func deviceOpenFlag(_ string) int { return 0 }

// macOS has no O_DIRECT; F_NOCACHE turns off caching on the open handle.
func tuneDeviceHandle(f *os.File, path string) error {
	if !isDevicePath(path) {
		return nil
	}
	if _, err := unix.FcntlInt(f.Fd(), unix.F_NOCACHE, 1); err != nil {
		return fmt.Errorf("F_NOCACHE: %w", err)
	}
	return nil
}

// deviceByteSize multiplies the device's block size by its block count, the
// only length query Darwin offers for raw disks.
func deviceByteSize(f *os.File) (int64, error) {
	blockSize, err := unix.IoctlGetUint32(int(f.Fd()), dkiocGetBlockSize)
	if err != nil {
		return 0, fmt.Errorf("query device block size: %w", err)
	}
	blockCount, err := unix.IoctlGetInt(int(f.Fd()), dkiocGetBlockCount)
	if err != nil {
		return 0, fmt.Errorf("query device block count: %w", err)
	}
	return int64(blockSize) * int64(blockCount), nil
}

func deviceSectorSize(f *os.File) (int32, error) {
	ssz, err := unix.IoctlGetUint32(int(f.Fd()), dkiocGetBlockSize)
	if err != nil {
		return 0, fmt.Errorf("query sector size: %w", err)
	}
	return int32(ssz), nil
}
