package main

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
)

// Device discovery for `device list`. Read-only; nothing here ever opens a
// device for writing.
type blockDevice struct {
	Path      string
	WholeDisk bool
	Detail    string // why it is excluded, or extra info for whole disks
	SizeBytes int64  // 0 when unknown
}

func listBlockDevices() ([]blockDevice, error) {
	switch runtime.GOOS {
	case "linux":
		return listSysBlock()
	case "darwin":
		return listDevDisks()
	case "windows":
		return listPhysicalDrives()
	}
	return nil, fmt.Errorf("device listing not supported on %s", runtime.GOOS)
}

// listSysBlock enumerates /sys/block, where only whole disks appear as
// top-level entries; their partitions are nested one level down. Sizes come
// from the sysfs size attribute, which counts 512-byte units regardless of
// the device's own sector size.
func listSysBlock() ([]blockDevice, error) {
	entries, err := os.ReadDir("/sys/block")
	if err != nil {
		return nil, fmt.Errorf("read /sys/block: %w", err)
	}
	var devs []blockDevice
	for _, e := range entries {
		name := e.Name()
		d := blockDevice{
			Path:      filepath.Join("/dev", name),
			WholeDisk: true,
			SizeBytes: sysBlockSize(name),
		}
		switch {
		case strings.HasPrefix(name, "loop") || strings.HasPrefix(name, "ram"):
			d.WholeDisk = false
			d.Detail = "virtual device"
		case strings.HasPrefix(name, "dm-") || strings.HasPrefix(name, "md"):
			d.WholeDisk = false
			d.Detail = "mapped device"
		case strings.HasPrefix(name, "sr") || strings.HasPrefix(name, "fd"):
			d.WholeDisk = false
			d.Detail = "removable media drive"
		}
		devs = append(devs, d)
		for _, p := range sysBlockPartitions(name) {
			devs = append(devs, blockDevice{
				Path:      filepath.Join("/dev", p),
				Detail:    "partition of " + name,
				SizeBytes: sysBlockSize(name + "/" + p),
			})
		}
	}
	return devs, nil
}

func sysBlockSize(rel string) int64 {
	raw, err := os.ReadFile(filepath.Join("/sys/block", rel, "size"))
	if err != nil {
		return 0
	}
	units, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return 0
	}
	return units * 512
}

// sysBlockPartitions returns the partition names nested under a whole-disk
// sysfs entry (sda -> sda1, nvme0n1 -> nvme0n1p1, ...).
func sysBlockPartitions(disk string) []string {
	entries, err := os.ReadDir(filepath.Join("/sys/block", disk))
	if err != nil {
		return nil
	}
	var parts []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), disk) {
			parts = append(parts, e.Name())
		}
	}
	return parts
}

var darwinDiskRE = regexp.MustCompile(`^r?disk(\d+)(s\d+.*)?$`)

// listDevDisks scans /dev for diskN / rdiskN nodes. Anything with a slice
// suffix (diskNsM) is a partition. The raw rdisk nodes are preferred for
// copying since they bypass the buffer cache.
func listDevDisks() ([]blockDevice, error) {
	entries, err := os.ReadDir("/dev")
	if err != nil {
		return nil, fmt.Errorf("read /dev: %w", err)
	}
	var devs []blockDevice
	for _, e := range entries {
		m := darwinDiskRE.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		d := blockDevice{Path: filepath.Join("/dev", e.Name())}
		if m[2] == "" {
			d.WholeDisk = true
			if strings.HasPrefix(e.Name(), "rdisk") {
				d.Detail = "raw node"
			}
		} else {
			d.Detail = "slice of disk" + m[1]
		}
		devs = append(devs, d)
	}
	return devs, nil
}

// listPhysicalDrives probes \\.\PhysicalDriveN paths. A drive that exists
// but is refused for insufficient privileges is still reported so the
// operator knows to retry elevated; any other open error counts as a miss.
func listPhysicalDrives() ([]blockDevice, error) {
	var devs []blockDevice
	misses := 0
	for i := 0; misses < 4 && i < 64; i++ {
		path := fmt.Sprintf(`\\.\PhysicalDrive%d`, i)
		f, err := os.Open(path)
		switch {
		case err == nil:
			f.Close()
			devs = append(devs, blockDevice{Path: path, WholeDisk: true})
			misses = 0
		case os.IsPermission(err):
			devs = append(devs, blockDevice{Path: path, Detail: "access denied, run elevated"})
			misses = 0
		default:
			misses++
		}
	}
	return devs, nil
}
