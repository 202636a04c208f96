// Package arraymap implements the keyless record/slab store described in
// spec §4.5: a thin wrapper over one body-only storage, addressed purely by
// link.
package arraymap

import (
	"bytes"
	"fmt"

	"github.com/stonefire-chain/filehashmap/ferr"
	"github.com/stonefire-chain/filehashmap/link"
	"github.com/stonefire-chain/filehashmap/recordmgr"
)

// Map is a keyless array/slab store: Put allocates and writes, Get resolves
// a link and reads back.
type Map struct {
	mgr *recordmgr.Manager
}

// New returns a Map over mgr.
func New(mgr *recordmgr.Manager) *Map {
	return &Map{mgr: mgr}
}

// Put allocates space for r and encodes it there, returning the link it was
// written at.
func (m *Map) Put(r Record) (link.Link, error) {
	var n link.Link
	if m.mgr.IsSlab() {
		size := r.Size()
		if size <= 0 {
			return 0, fmt.Errorf("slab record must declare a positive size")
		}
		n = link.Link(size)
	} else {
		n = 1
	}

	l, err := m.mgr.Allocate(n)
	if err != nil {
		return 0, err
	}

	acc, err := m.mgr.GetLink(l)
	if err != nil {
		return 0, err
	}
	defer acc.Release()

	buf := acc.Bytes()
	var width int64
	if m.mgr.IsSlab() {
		width = int64(n)
	} else {
		width = m.mgr.Stride()
	}
	if int64(len(buf)) < width {
		return 0, ferr.NewCorrupt("allocated region shorter than declared record size")
	}

	sw := &sliceWriter{buf: buf[:width]}
	if err := r.ToData(sw); err != nil {
		return 0, fmt.Errorf("encode record: %w", err)
	}

	return l, nil
}

// Get resolves link and decodes its bytes into out.
func (m *Map) Get(l link.Link, out Record) error {
	acc, err := m.mgr.GetLink(l)
	if err != nil {
		return err
	}
	defer acc.Release()

	var width int64
	if m.mgr.IsSlab() {
		width = out.Size()
		if width <= 0 {
			return fmt.Errorf("slab record must declare a positive size to decode")
		}
	} else {
		width = m.mgr.Stride()
	}

	buf := acc.Bytes()
	if int64(len(buf)) < width {
		return ferr.NewCorrupt("stored region shorter than declared record size")
	}

	if err := out.FromData(bytes.NewReader(buf[:width])); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	return nil
}
