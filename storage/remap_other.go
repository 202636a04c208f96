//go:build !linux

package storage

import (
	"os"

	"github.com/edsrzf/mmap-go"
)

// remap grows an existing mapping by unmapping and remapping the whole
// file. Platforms outside Linux (Darwin, Windows via mmap-go) have no
// portable mremap equivalent exposed through golang.org/x/sys, so this is
// the platform fallback named in spec §4.1's growth policy ("remap (or
// mremap when available)").
func remap(f *os.File, old mmap.MMap, newSize int) (mmap.MMap, error) {
	if err := old.Unmap(); err != nil {
		return nil, err
	}
	return mmap.MapRegion(f, newSize, mmap.RDWR, 0, 0)
}
