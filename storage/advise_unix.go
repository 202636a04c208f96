//go:build linux || darwin

package storage

import (
	"github.com/edsrzf/mmap-go"
	"golang.org/x/sys/unix"
)

// adviseRandom advises the kernel that the mapping will be accessed
// randomly (spec §4.1: "Advises random access"). Best effort: a failure
// here does not affect correctness, only read-ahead behavior.
func adviseRandom(mm mmap.MMap) {
	_ = unix.Madvise([]byte(mm), unix.MADV_RANDOM)
}
