// Package storage implements the memory-mapped, geometrically growable file
// region that every other package in this module is layered on. It owns the
// mapping, hands out scoped Accessors that pin the mapping against remap for
// their lifetime, and persists on Unmap.
package storage

import (
	"log/slog"
	"os"
	"sync"

	"github.com/edsrzf/mmap-go"

	"github.com/stonefire-chain/filehashmap/ferr"
)

// Config carries the per-store parameters a caller supplies at construction.
// The field names mirror spec §6's "Recognized options": MinimumCapacity is
// `minimum`, ExpansionPercent is `expansion`.
type Config struct {
	Path string
	// MinimumCapacity is the capacity floor a fresh file is grown to on first
	// Map, and the floor every subsequent Resize growth also respects.
	MinimumCapacity int64
	// ExpansionPercent is the percentage by which Reserve overshoots the
	// requested size when it has to grow, to amortize future growth.
	ExpansionPercent int64
	Logger           *slog.Logger
}

// Storage is the abstract byte-addressable growable region described in
// spec §4.1.
type Storage interface {
	Map() (bool, error)
	Flush() error
	Unmap() error
	Capacity() int64
	Logical() int64
	Mapped() bool
	Access() (Accessor, error)
	Resize(required int64) (Accessor, error)
	Reserve(required int64) (Accessor, error)
	Fault() error
}

type fileStorage struct {
	cfg  Config
	log  *slog.Logger
	file *os.File
	mm   mmap.MMap

	mu       sync.RWMutex
	capacity int64
	logical  int64
	mapped   bool
	fault    error
}

// New returns a Storage backed by cfg.Path. It does not map the file; call
// Map to do so.
func New(cfg Config) (Storage, error) {
	if cfg.MinimumCapacity < 1 {
		cfg.MinimumCapacity = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &fileStorage{cfg: cfg, log: cfg.Logger}, nil
}

// Map opens a read/write mapping of the entire file, growing an empty file
// to MinimumCapacity first. Idempotent: returns false if already mapped.
func (s *fileStorage) Map() (ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mapped {
		return false, nil
	}

	f, err := os.OpenFile(s.cfg.Path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		err = ferr.IOError{Op: "open", Err: err}
		s.fault = err
		return false, err
	}

	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		err = ferr.IOError{Op: "stat", Err: err}
		s.fault = err
		return false, err
	}

	size := st.Size()
	logical := size
	if size == 0 {
		size = s.cfg.MinimumCapacity
		if err = f.Truncate(size); err != nil {
			_ = f.Close()
			err = ferr.IOError{Op: "truncate", Err: err}
			s.fault = err
			return false, err
		}
		logical = 0
	}

	mm, err := mmap.MapRegion(f, int(size), mmap.RDWR, 0, 0)
	if err != nil {
		_ = f.Close()
		err = ferr.IOError{Op: "mmap", Err: err}
		s.fault = err
		return false, err
	}
	adviseRandom(mm)

	s.file = f
	s.mm = mm
	s.capacity = size
	s.logical = logical
	s.mapped = true
	s.fault = nil

	s.log.Debug("storage mapped", "path", s.cfg.Path, "capacity", size, "logical", logical)

	return true, nil
}

// Flush syncs [0, logical) to disk without unmapping. No-op if unmapped.
func (s *fileStorage) Flush() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.mapped {
		return nil
	}
	if err := s.mm.Flush(); err != nil {
		err = ferr.IOError{Op: "msync", Err: err}
		s.fault = err
		return err
	}
	return nil
}

// Unmap syncs, unmaps, truncates the file to logical_size, and fsyncs.
// Clears the mapped flag only after the unmap has actually completed -
// the C++ source this engine was ported from had this backwards (spec §9
// open question).
func (s *fileStorage) Unmap() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.mapped {
		return nil
	}

	if err := s.mm.Flush(); err != nil {
		err = ferr.IOError{Op: "msync", Err: err}
		s.fault = err
		return err
	}
	if err := s.mm.Unmap(); err != nil {
		err = ferr.IOError{Op: "munmap", Err: err}
		s.fault = err
		return err
	}
	if err := s.file.Truncate(s.logical); err != nil {
		err = ferr.IOError{Op: "truncate", Err: err}
		s.fault = err
		return err
	}
	if err := s.file.Sync(); err != nil {
		err = ferr.IOError{Op: "fsync", Err: err}
		s.fault = err
		return err
	}
	if err := s.file.Close(); err != nil {
		err = ferr.IOError{Op: "close", Err: err}
		s.fault = err
		return err
	}

	s.mm = nil
	s.file = nil
	s.mapped = false

	s.log.Debug("storage unmapped", "path", s.cfg.Path, "logical", s.logical)

	return nil
}

func (s *fileStorage) Capacity() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.capacity
}

func (s *fileStorage) Logical() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.logical
}

func (s *fileStorage) Mapped() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mapped
}

func (s *fileStorage) Fault() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fault
}

// Access returns a scoped handle pinning the mapping under a shared lock.
func (s *fileStorage) Access() (Accessor, error) {
	s.mu.RLock()
	if !s.mapped {
		s.mu.RUnlock()
		return nil, ferr.Closed{}
	}
	return &accessor{buf: s.mm[:s.logical], release: s.mu.RUnlock}, nil
}

// Resize sets logical_size = required, growing capacity to exactly
// max(MinimumCapacity, required) first if needed - no expansion overshoot.
func (s *fileStorage) Resize(required int64) (Accessor, error) {
	return s.growTo(required, false)
}

// Reserve is like Resize but growth, when needed, overshoots by
// ExpansionPercent to amortize future growth.
func (s *fileStorage) Reserve(required int64) (Accessor, error) {
	return s.growTo(required, true)
}

func (s *fileStorage) growTo(required int64, withExpansion bool) (Accessor, error) {
	s.mu.Lock() // exclusive upfront: emulates an upgrade lock, see spec §9

	if !s.mapped {
		s.mu.Unlock()
		return nil, ferr.Closed{}
	}

	if required > s.capacity {
		target := required
		if withExpansion && s.cfg.ExpansionPercent > 0 {
			target = required * (100 + s.cfg.ExpansionPercent) / 100
		}
		if target < s.cfg.MinimumCapacity {
			target = s.cfg.MinimumCapacity
		}

		if err := s.file.Truncate(target); err != nil {
			err = ferr.OutOfSpace{Err: err}
			s.fault = err
			s.mu.Unlock()
			return nil, err
		}

		mm, err := remap(s.file, s.mm, int(target))
		if err != nil {
			err = ferr.IOError{Op: "remap", Err: err}
			s.fault = err
			s.mu.Unlock()
			return nil, err
		}
		adviseRandom(mm)

		s.log.Info("storage grown", "path", s.cfg.Path, "from", s.capacity, "to", target)
		s.mm = mm
		s.capacity = target
	}

	s.logical = required

	// The accessor returned here holds the exclusive lock for its scope
	// rather than downgrading to shared: there is no atomic shared<->
	// exclusive upgrade primitive in the standard library (spec §9), and
	// releasing the exclusive lock before handing back an Accessor would
	// let a second grow interleave with this one's still-pending write.
	buf := s.mm[:s.logical]
	return &accessor{buf: buf, release: s.mu.Unlock}, nil
}
