// Package recordmgr implements the record/slab manager described in spec
// §4.3: a Manager wraps one storage.Storage and interprets it either as a
// sequence of fixed-stride records (Stride > 0) or as an arena of
// caller-sized byte ranges addressed by offset (Stride == 0, "slab" mode).
package recordmgr

import (
	"sync"

	"github.com/stonefire-chain/filehashmap/ferr"
	"github.com/stonefire-chain/filehashmap/link"
	"github.com/stonefire-chain/filehashmap/storage"
)

// Manager allocates, truncates, and resolves links to raw byte ranges in a
// single storage.Storage.
type Manager struct {
	st     storage.Storage
	width  link.Width
	stride int64 // 0 means slab mode

	allocMu sync.Mutex
}

// New returns a Manager over st. stride == 0 selects slab mode (links are
// byte offsets, Allocate(n) reserves n bytes); stride > 0 selects record
// mode (links are record indices, Allocate(n) reserves n records).
func New(st storage.Storage, width link.Width, stride int64) *Manager {
	return &Manager{st: st, width: width, stride: stride}
}

// IsSlab reports whether this manager is in slab (variable-length) mode.
func (m *Manager) IsSlab() bool { return m.stride == 0 }

// Count returns the current end-of-body in link units: records in record
// mode, bytes in slab mode.
func (m *Manager) Count() link.Link {
	logical := m.st.Logical()
	if m.stride > 0 {
		return link.Link(logical / m.stride)
	}
	return link.Link(logical)
}

// unitSize returns the number of bytes one allocation unit occupies: the
// stride in record mode, 1 in slab mode (n is already a byte count there).
func (m *Manager) unitSize() int64 {
	if m.stride > 0 {
		return m.stride
	}
	return 1
}

// Allocate reserves a region of n units (records, or bytes in slab mode)
// and returns the link addressing its start. A request of the terminal
// value is a documented no-op that returns the terminal link unchanged.
//
// Two concurrent Allocate calls never receive overlapping ranges: the
// compute-then-grow sequence is serialized by an internal mutex, matching
// spec §4.3's "guarded by an internal allocation mutex".
func (m *Manager) Allocate(n link.Link) (link.Link, error) {
	if m.width.IsTerminal(n) {
		return n, nil
	}

	m.allocMu.Lock()
	defer m.allocMu.Unlock()

	start := m.Count()
	end := start + n
	if m.width.IsTerminal(end) || end > m.width.Max() {
		return 0, ferr.OutOfSpace{}
	}

	required := int64(end) * m.unitSize()

	acc, err := m.st.Reserve(required)
	if err != nil {
		return 0, err
	}
	acc.Release()

	return start, nil
}

// AllocateRun reserves a contiguous run of count records, each sized
// stride, as a single multi-record element (spec §3's "count*Size bytes
// for multi-record elements"). Only meaningful in record mode; in slab
// mode callers simply Allocate the total byte count directly.
func (m *Manager) AllocateRun(count link.Link) (link.Link, error) {
	return m.Allocate(count)
}

// Truncate sets the logical end of the body to link (recovery path). Fails
// if link is terminal or beyond the current count.
func (m *Manager) Truncate(l link.Link) error {
	if m.width.IsTerminal(l) {
		return ferr.NewCorrupt("cannot truncate to the terminal link")
	}
	if l > m.Count() {
		return ferr.NewCorrupt("truncate link is beyond current count")
	}

	acc, err := m.st.Resize(int64(l) * m.unitSize())
	if err != nil {
		return err
	}
	acc.Release()
	return nil
}

// Get returns an accessor spanning the whole body.
func (m *Manager) Get() (storage.Accessor, error) {
	return m.st.Access()
}

// GetLink returns an accessor beginning at the byte address of link,
// spanning to the end of the live region. Returns ferr.NotFound if link is
// terminal or out of range.
func (m *Manager) GetLink(l link.Link) (storage.Accessor, error) {
	if m.width.IsTerminal(l) || l < 0 || l >= m.Count() {
		return nil, ferr.NotFound{}
	}

	acc, err := m.st.Access()
	if err != nil {
		return nil, err
	}

	offset := int64(l) * m.unitSize()
	return &subAccessor{parent: acc, offset: offset}, nil
}

// Fault surfaces the storage's fault state.
func (m *Manager) Fault() error {
	return m.st.Fault()
}

// Space returns an estimate of free space remaining before the next grow:
// capacity minus logical size, in bytes.
func (m *Manager) Space() (int64, error) {
	return m.st.Capacity() - m.st.Logical(), nil
}

// Reload re-synchronizes the manager's view of the body after the
// underlying storage has been (re)mapped, validating that the logical size
// is a whole number of records in record mode.
func (m *Manager) Reload() error {
	if m.stride <= 0 {
		return nil
	}
	if m.st.Logical()%m.stride != 0 {
		return ferr.NewCorrupt("body size is not a whole number of records")
	}
	return nil
}

// Width returns the link width this manager was constructed with.
func (m *Manager) Width() link.Width { return m.width }

// Stride returns the fixed record size, or 0 in slab mode.
func (m *Manager) Stride() int64 { return m.stride }

// subAccessor offsets into a parent Accessor's live region. Release
// forwards to the parent; Bytes exposes only the suffix starting at offset.
type subAccessor struct {
	parent storage.Accessor
	offset int64
}

func (a *subAccessor) Bytes() []byte {
	return a.parent.Bytes()[a.offset:]
}

func (a *subAccessor) Release() {
	a.parent.Release()
}
