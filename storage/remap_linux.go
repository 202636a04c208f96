//go:build linux

package storage

import (
	"os"

	"github.com/edsrzf/mmap-go"
	"golang.org/x/sys/unix"
)

// remap grows an existing mapping in place via mremap when the kernel
// supports it, falling back to unmap+remap on failure. mmap.MMap is just a
// []byte over the mapped region, so unix.Mremap can operate on it directly.
func remap(f *os.File, old mmap.MMap, newSize int) (mmap.MMap, error) {
	grown, err := unix.Mremap([]byte(old), newSize, unix.MREMAP_MAYMOVE)
	if err == nil {
		return mmap.MMap(grown), nil
	}

	if uerr := old.Unmap(); uerr != nil {
		return nil, uerr
	}
	return mmap.MapRegion(f, newSize, mmap.RDWR, 0, 0)
}
