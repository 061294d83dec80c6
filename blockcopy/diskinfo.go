package blockcopy

import "os"

// DiskInfo is the only interface the engine consumes from the host: sizing
// and alignment facts about already-opened device handles. Implementations
// are platform-specific.
type DiskInfo interface {
	// SourceLength returns the total readable byte length of the source.
	SourceLength(f *os.File) (int64, error)

	// DestinationCapacity returns the total writable byte length of the
	// destination. The original path is supplied because some platforms
	// resolve capacity from the path rather than the handle.
	DestinationCapacity(f *os.File, path string) (int64, error)

	// SectorSize returns the destination's physical sector size in bytes.
	// Zero means unknown; the engine then applies its fallback policy.
	SectorSize(f *os.File, path string) (int32, error)
}
