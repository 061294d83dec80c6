//go:build linux

package main

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Block devices are opened O_DIRECT so transfers bypass the page cache;
// regular files stay buffered since O_DIRECT would reject the unaligned
// final block.
func deviceOpenFlag(path string) int {
	if isDevicePath(path) {
		return unix.O_DIRECT
	}
	return 0
}

func tuneDeviceHandle(_ *os.File, _ string) error { return nil }

// deviceByteSize asks the kernel for the block device's total length.
func deviceByteSize(f *os.File) (int64, error) {
	size, err := unix.IoctlGetInt(int(f.Fd()), unix.BLKGETSIZE64)
	if err != nil {
		return 0, fmt.Errorf("query device size: %w", err)
	}
	return int64(size), nil
}

// deviceSectorSize queries the physical sector size, falling back to the
// logical one. Zero is returned only when both queries fail, leaving the
// fallback decision to the caller.
func deviceSectorSize(f *os.File) (int32, error) {
	if ssz, err := unix.IoctlGetUint32(int(f.Fd()), unix.BLKPBSZGET); err == nil && ssz > 0 {
		return int32(ssz), nil
	}
	ssz, err := unix.IoctlGetUint32(int(f.Fd()), unix.BLKSSZGET)
	if err != nil {
		return 0, nil
	}
	return int32(ssz), nil
}
