//go:build !windows

package main

import (
	"fmt"
	"os"

	"github.com/logesh11exe/BlockCopier/blockcopy"
)

// openSourceDevice opens the source read-only with the platform's direct-I/O
// tuning applied when the path is a block device.
func openSourceDevice(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDONLY|deviceOpenFlag(path), 0)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	if err := tuneDeviceHandle(f, path); err != nil {
		f.Close()
		return nil, fmt.Errorf("tune source: %w", err)
	}
	return f, nil
}

// openDestDevice opens the destination write-only. The returned cleanup is a
// no-op on Unix; it exists for symmetry with the Windows volume unlock.
func openDestDevice(path string) (*os.File, func(), error) {
	f, err := os.OpenFile(path, os.O_WRONLY|deviceOpenFlag(path), 0)
	if err != nil {
		return nil, nil, fmt.Errorf("open destination: %w", err)
	}
	if err := tuneDeviceHandle(f, path); err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("tune destination: %w", err)
	}
	return f, func() {}, nil
}

func isDevicePath(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.Mode()&os.ModeDevice != 0
}

// unixDiskInfo implements blockcopy.DiskInfo for files and block devices.
type unixDiskInfo struct{}

func newDiskInfo() blockcopy.DiskInfo { return unixDiskInfo{} }

func (unixDiskInfo) SourceLength(f *os.File) (int64, error) {
	return fileOrDeviceSize(f)
}

func (unixDiskInfo) DestinationCapacity(f *os.File, _ string) (int64, error) {
	return fileOrDeviceSize(f)
}

func (unixDiskInfo) SectorSize(f *os.File, path string) (int32, error) {
	if !isDevicePath(path) {
		// Regular files accept any transfer length; writes are still
		// padded to this size.
		return 512, nil
	}
	return deviceSectorSize(f)
}

// fileOrDeviceSize resolves the byte length of an open handle from what it
// actually is: regular files answer through Stat, block devices through the
// OS-specific length query. Anything else (pipes, sockets) is rejected.
func fileOrDeviceSize(f *os.File) (int64, error) {
	st, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", f.Name(), err)
	}
	switch {
	case st.Mode().IsRegular():
		return st.Size(), nil
	case st.Mode()&os.ModeDevice != 0:
		return deviceByteSize(f)
	}
	return 0, fmt.Errorf("%s: unsupported file type %v", f.Name(), st.Mode())
}
