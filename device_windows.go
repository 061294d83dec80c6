//go:build windows

package main

import (
	"fmt"
	"os"
	"strings"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/logesh11exe/BlockCopier/blockcopy"
)

const (
	fsctlLockVolume     = 0x90018
	fsctlUnlockVolume   = 0x9001c
	fsctlDismountVolume = 0x90020

	ioctlDiskGetDriveGeometry   = 0x70000
	ioctlDiskGetDriveGeometryEx = 0x700a0
	ioctlDiskGetLengthInfo      = 0x7405c

	fileFlagNoBuffering    = 0x20000000
	fileFlagWriteThrough   = 0x80000000
	fileFlagSequentialScan = 0x08000000
)

type diskGeometry struct {
	Cylinders         int64
	MediaType         uint32
	TracksPerCylinder uint32
	SectorsPerTrack   uint32
	BytesPerSector    uint32
}

type diskGeometryEx struct {
	Geometry diskGeometry
	DiskSize int64
	Data     [1]byte
}

type lengthInformation struct {
	Length int64
}

// isDriveLetterPath reports whether path names a logical volume like \\.\F:
// (optionally with a trailing backslash) rather than a physical disk.
func isDriveLetterPath(path string) bool {
	if !strings.HasPrefix(path, `\\.\`) {
		return false
	}
	rest := strings.TrimSuffix(path[4:], `\`)
	if len(rest) != 2 || rest[1] != ':' {
		return false
	}
	c := rest[0]
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

func openDeviceHandle(path string, access, shareMode, flags uint32) (*os.File, error) {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return nil, err
	}
	h, err := windows.CreateFile(p, access, shareMode, nil, windows.OPEN_EXISTING, flags, 0)
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %w (run as administrator and close programs holding the device)", path, err)
	}
	f := os.NewFile(uintptr(h), path)
	if f == nil {
		windows.CloseHandle(h)
		return nil, fmt.Errorf("cannot wrap handle for %s", path)
	}
	return f, nil
}

// openSourceDevice opens the source (snapshot device, raw disk or file)
// unbuffered and read-only.
func openSourceDevice(path string) (*os.File, error) {
	return openDeviceHandle(path,
		windows.GENERIC_READ,
		windows.FILE_SHARE_READ,
		fileFlagNoBuffering|fileFlagSequentialScan)
}

// openDestDevice opens the destination unbuffered, write-through and
// unshared. Drive-letter volumes are locked and dismounted first; the
// returned cleanup unlocks and releases the volume and must be called after
// the destination handle is closed.
func openDestDevice(path string) (*os.File, func(), error) {
	volHandle, err := prepareDestVolume(path)
	if err != nil {
		return nil, nil, err
	}
	f, err := openDeviceHandle(path,
		windows.GENERIC_WRITE,
		0,
		fileFlagNoBuffering|fileFlagWriteThrough|fileFlagSequentialScan)
	if err != nil {
		releaseDestVolume(volHandle)
		return nil, nil, err
	}
	return f, func() { releaseDestVolume(volHandle) }, nil
}

// prepareDestVolume locks and dismounts a drive-letter volume so raw writes
// cannot race the filesystem. Physical-drive paths need no preparation.
func prepareDestVolume(path string) (windows.Handle, error) {
	if !isDriveLetterPath(path) {
		return 0, nil
	}
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0, err
	}
	h, err := windows.CreateFile(p,
		windows.GENERIC_READ|windows.GENERIC_WRITE,
		0, nil, windows.OPEN_EXISTING, 0, 0)
	if err != nil {
		return 0, fmt.Errorf("cannot open volume %s for locking (may need admin privileges): %w", path, err)
	}

	var ret uint32
	if err := windows.DeviceIoControl(h, fsctlLockVolume, nil, 0, nil, 0, &ret, nil); err != nil {
		windows.CloseHandle(h)
		if err == windows.ERROR_NOT_SUPPORTED {
			return 0, nil
		}
		return 0, fmt.Errorf("cannot lock volume %s (close programs using it): %w", path, err)
	}
	if err := windows.DeviceIoControl(h, fsctlDismountVolume, nil, 0, nil, 0, &ret, nil); err != nil {
		windows.DeviceIoControl(h, fsctlUnlockVolume, nil, 0, nil, 0, &ret, nil)
		windows.CloseHandle(h)
		if err == windows.ERROR_NOT_SUPPORTED {
			return 0, nil
		}
		return 0, fmt.Errorf("cannot dismount volume %s: %w", path, err)
	}
	return h, nil
}

func releaseDestVolume(h windows.Handle) {
	if h == 0 {
		return
	}
	var ret uint32
	windows.DeviceIoControl(h, fsctlUnlockVolume, nil, 0, nil, 0, &ret, nil)
	windows.CloseHandle(h)
}

// windowsDiskInfo implements blockcopy.DiskInfo over DeviceIoControl with
// the documented fallback chain for each query.
type windowsDiskInfo struct{}

func newDiskInfo() blockcopy.DiskInfo { return windowsDiskInfo{} }

func (windowsDiskInfo) SourceLength(f *os.File) (int64, error) {
	h := windows.Handle(f.Fd())
	if n, err := queryLengthInfo(h); err == nil {
		return n, nil
	}
	var size int64
	if err := windows.GetFileSizeEx(h, &size); err != nil {
		return 0, fmt.Errorf("query source size: %w", err)
	}
	return size, nil
}

func (windowsDiskInfo) DestinationCapacity(f *os.File, path string) (int64, error) {
	h := windows.Handle(f.Fd())
	if isDriveLetterPath(path) {
		// \\.\F: -> F:\ for the free-space query.
		root := strings.TrimSuffix(path[4:], `\`) + `\`
		if p, err := windows.UTF16PtrFromString(root); err == nil {
			var avail, total, free uint64
			if err := windows.GetDiskFreeSpaceEx(p, &avail, &total, &free); err == nil {
				return int64(total), nil
			}
		}
	}
	if n, err := queryLengthInfo(h); err == nil {
		return n, nil
	}
	var geo diskGeometryEx
	var ret uint32
	err := windows.DeviceIoControl(h, ioctlDiskGetDriveGeometryEx, nil, 0,
		(*byte)(unsafe.Pointer(&geo)), uint32(unsafe.Sizeof(geo)), &ret, nil)
	if err != nil {
		return 0, fmt.Errorf("query destination capacity: %w", err)
	}
	return geo.DiskSize, nil
}

// SectorSize returns 0 without error for logical drive handles, where the
// geometry IOCTL is routinely unsupported; the engine's fallback policy
// decides what happens then.
func (windowsDiskInfo) SectorSize(f *os.File, path string) (int32, error) {
	var geo diskGeometry
	var ret uint32
	err := windows.DeviceIoControl(windows.Handle(f.Fd()), ioctlDiskGetDriveGeometry, nil, 0,
		(*byte)(unsafe.Pointer(&geo)), uint32(unsafe.Sizeof(geo)), &ret, nil)
	if err != nil {
		if isDriveLetterPath(path) {
			return 0, nil
		}
		return 0, fmt.Errorf("query sector size: %w", err)
	}
	return int32(geo.BytesPerSector), nil
}

func queryLengthInfo(h windows.Handle) (int64, error) {
	var info lengthInformation
	var ret uint32
	err := windows.DeviceIoControl(h, ioctlDiskGetLengthInfo, nil, 0,
		(*byte)(unsafe.Pointer(&info)), uint32(unsafe.Sizeof(info)), &ret, nil)
	if err != nil {
		return 0, err
	}
	return info.Length, nil
}
