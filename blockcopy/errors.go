package blockcopy

import "errors"

// Error kinds. Every failure returned by Initialize or Run wraps exactly one
// of these; match with errors.Is.
var (
	// ErrConfig covers preflight rejections: bad thread count or block
	// size, block size not a multiple of the sector size, destination
	// smaller than the source, buffer allocation or alignment failures.
	ErrConfig = errors.New("configuration error")

	// ErrRead is a non-EOF failure reading the source.
	ErrRead = errors.New("read failure")

	// ErrWrite is any failure writing the destination.
	ErrWrite = errors.New("write failure")

	// ErrFlush is a destination flush failure at shutdown.
	ErrFlush = errors.New("flush failure")
)
