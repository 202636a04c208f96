//go:build !linux && !darwin

package storage

import "github.com/edsrzf/mmap-go"

// adviseRandom is a no-op on platforms (e.g. Windows) with no POSIX
// madvise equivalent reachable through golang.org/x/sys.
func adviseRandom(mm mmap.MMap) {}
