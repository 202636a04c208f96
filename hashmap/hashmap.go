// Package hashmap implements the chained-bucket hash index described in
// spec §4.6: one head over a header file composed with one record manager
// over a body file, connected by the deferred index commit protocol.
package hashmap

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"

	"github.com/stonefire-chain/filehashmap/ferr"
	"github.com/stonefire-chain/filehashmap/head"
	"github.com/stonefire-chain/filehashmap/link"
	"github.com/stonefire-chain/filehashmap/recordmgr"
	"github.com/stonefire-chain/filehashmap/storage"
)

type state int

const (
	stateClosed state = iota
	stateOpen
)

// Map composes a head.Head and a recordmgr.Manager into the hash-map
// lifecycle from spec §4.6: create/close/backup/restore plus key-indexed
// lookup and the deferred-commit write path.
type Map struct {
	head   *head.Head
	mgr    *recordmgr.Manager
	width  link.Width
	keyLen int
	log    *slog.Logger

	st state
}

// New returns a Map composed of h (the header) and mgr (the body). keyLen is
// the fixed key length in bytes every element carries ahead of its payload.
func New(h *head.Head, mgr *recordmgr.Manager, keyLen int, logger *slog.Logger) *Map {
	if logger == nil {
		logger = slog.Default()
	}
	return &Map{head: h, mgr: mgr, width: mgr.Width(), keyLen: keyLen, log: logger}
}

func (m *Map) elementHeaderSize() int64 {
	return int64(m.width.Bytes) + int64(m.keyLen)
}

// Create initializes both files: manager.Count() == head.BodyCount() == 0.
func (m *Map) Create() error {
	if err := m.head.Create(); err != nil {
		return err
	}
	if m.mgr.Count() != 0 {
		if err := m.mgr.Truncate(0); err != nil {
			return err
		}
	}
	m.st = stateOpen
	m.log.Info("hashmap created", "buckets", m.head.Buckets())
	return nil
}

// Open transitions an existing, already-created hash map into the Open
// state, the counterpart to Create for reopening files across process
// restarts (spec §4.6's Closed → Created → Open → Closed lifecycle).
func (m *Map) Open() error {
	ok, err := m.head.Verify()
	if err != nil {
		return err
	}
	if !ok {
		return ferr.NewCorrupt("header file size does not match its bucket count")
	}
	m.st = stateOpen
	return nil
}

func (m *Map) requireOpen() error {
	if m.st != stateOpen {
		return ferr.NotOpen{}
	}
	return nil
}

// Close persists manager.Count() into head.BodyCount, the authoritative
// count used by Restore after a crash.
func (m *Map) Close() error {
	if m.st != stateOpen {
		return ferr.NotOpen{}
	}
	if err := m.head.SetBodyCount(m.mgr.Count()); err != nil {
		return err
	}
	m.st = stateClosed
	m.log.Info("hashmap closed", "count", m.mgr.Count())
	return nil
}

// Backup is an idempotent snapshot: it persists manager.Count() into
// head.BodyCount without leaving the Open state.
func (m *Map) Backup() error {
	if m.st != stateOpen {
		return ferr.NotOpen{}
	}
	return m.head.SetBodyCount(m.mgr.Count())
}

// Restore truncates the body to head.BodyCount, discarding any elements
// allocated but never indexed before a crash (spec §4.6's recovery path).
func (m *Map) Restore() error {
	if m.st != stateOpen {
		return ferr.NotOpen{}
	}
	bc, err := m.head.BodyCount()
	if err != nil {
		return err
	}
	if err := m.mgr.Truncate(bc); err != nil {
		return err
	}
	m.log.Warn("hashmap restored", "body_count", bc)
	return nil
}

// Verify reports head.Verify() && head.BodyCount() == manager.Count().
func (m *Map) Verify() (bool, error) {
	ok, err := m.head.Verify()
	if err != nil || !ok {
		return false, err
	}
	bc, err := m.head.BodyCount()
	if err != nil {
		return false, err
	}
	return bc == m.mgr.Count(), nil
}

// elementHeader reads the [next][key] header of the element at l, without
// decoding the payload.
func (m *Map) elementHeader(l link.Link) (next link.Link, key []byte, release func(), err error) {
	acc, err := m.mgr.GetLink(l)
	if err != nil {
		return 0, nil, nil, err
	}
	buf := acc.Bytes()
	w := int64(m.width.Bytes)
	if int64(len(buf)) < w+int64(m.keyLen) {
		acc.Release()
		return 0, nil, nil, ferr.NewCorrupt("element shorter than its own header")
	}
	next = m.width.Decode(buf[:w])
	key = buf[w : w+int64(m.keyLen)]
	return next, key, acc.Release, nil
}

// First scans the bucket chain for key, returning the most recently
// inserted match, or the terminal link if none is found.
func (m *Map) First(key []byte) (link.Link, error) {
	if err := m.requireOpen(); err != nil {
		return 0, err
	}
	idx := m.head.Index(key)
	cur, err := m.head.Top(idx)
	if err != nil {
		return 0, err
	}
	for !m.width.IsTerminal(cur) {
		next, elemKey, release, err := m.elementHeader(cur)
		if err != nil {
			return 0, err
		}
		match := bytes.Equal(elemKey, key)
		release()
		if match {
			return cur, nil
		}
		cur = next
	}
	return m.width.Terminal(), nil
}

// Exists reports whether key has at least one element indexed.
func (m *Map) Exists(key []byte) (bool, error) {
	l, err := m.First(key)
	if err != nil {
		return false, err
	}
	return !m.width.IsTerminal(l), nil
}

// Iterator walks one bucket chain, yielding only the elements whose key
// equals the one Iterate was called with (spec §4.6 "it(key)").
type Iterator struct {
	m    *Map
	key  []byte
	next link.Link
	cur  link.Link
}

// Iterate returns a cursor positioned before the first match for key.
func (m *Map) Iterate(key []byte) (*Iterator, error) {
	idx := m.head.Index(key)
	top, err := m.head.Top(idx)
	if err != nil {
		return nil, err
	}
	return &Iterator{m: m, key: key, next: top, cur: m.width.Terminal()}, nil
}

// Advance moves to the next match along the chain, returning false once the
// chain is exhausted.
func (it *Iterator) Advance() (bool, error) {
	for !it.m.width.IsTerminal(it.next) {
		cur := it.next
		next, elemKey, release, err := it.m.elementHeader(cur)
		if err != nil {
			return false, err
		}
		match := bytes.Equal(elemKey, it.key)
		release()
		it.next = next
		if match {
			it.cur = cur
			return true, nil
		}
	}
	it.cur = it.m.width.Terminal()
	return false, nil
}

// Link returns the link Advance last positioned on.
func (it *Iterator) Link() link.Link { return it.cur }

// Release is a no-op: the iterator does not hold any accessor between
// Advance calls, but the method is kept so callers can defer it uniformly.
func (it *Iterator) Release() {}

// payloadBytes returns the accessor and the payload slice (past the
// [next][key] header) for the element at l.
func (m *Map) payloadBytes(l link.Link) (storage.Accessor, []byte, error) {
	acc, err := m.mgr.GetLink(l)
	if err != nil {
		return nil, nil, err
	}
	h := m.elementHeaderSize()
	buf := acc.Bytes()
	if int64(len(buf)) < h {
		acc.Release()
		return nil, nil, ferr.NewCorrupt("element shorter than its own header")
	}
	return acc, buf[h:], nil
}

// Get decodes the payload at link into out.
func (m *Map) Get(l link.Link, out Record) error {
	acc, payload, err := m.payloadBytes(l)
	if err != nil {
		return err
	}
	defer acc.Release()

	size := out.Size()
	if size > 0 && int64(len(payload)) < size {
		return ferr.NewCorrupt("payload shorter than record declares")
	}
	if size > 0 {
		payload = payload[:size]
	}
	if err := out.FromData(bytes.NewReader(payload)); err != nil {
		return fmt.Errorf("decode element payload: %w", err)
	}
	return nil
}

// GetIter decodes the payload at it's current position into out.
func (m *Map) GetIter(it *Iterator, out Record) error {
	return m.Get(it.Link(), out)
}

// Set overwrites the payload of an already-allocated element, leaving its
// next and key fields untouched.
func (m *Map) Set(l link.Link, e Record) error {
	acc, payload, err := m.payloadBytes(l)
	if err != nil {
		return err
	}
	defer acc.Release()

	size := e.Size()
	if size > 0 && int64(len(payload)) < size {
		return ferr.NewCorrupt("allocated element shorter than record declares")
	}
	w := boundedWriter{buf: payload}
	if err := e.ToData(&w); err != nil {
		return fmt.Errorf("encode element payload: %w", err)
	}
	return nil
}

// Allocate reserves space for n consecutive records without indexing them
// (spec §4.6 "allocate(n) -> Link", a low-level insert used together with
// Set and Commit to publish an element in two explicit steps).
func (m *Map) Allocate(n link.Link) (link.Link, error) {
	return m.mgr.Allocate(n)
}

// recordsFor returns how many stride-sized records e's payload needs, given
// this map's fixed per-element header. A Size of 0 is the supplemented
// zero-payload "presence" element (spec §9): it still occupies one record.
func (m *Map) recordsFor(e Record) (link.Link, error) {
	stride := m.mgr.Stride()
	if stride <= 0 {
		return 0, fmt.Errorf("hashmap requires a record-mode manager, got slab mode")
	}
	capacity := stride - m.elementHeaderSize()
	if capacity <= 0 {
		return 0, fmt.Errorf("manager stride %d too small for header of %d bytes", stride, m.elementHeaderSize())
	}
	size := e.Size()
	if size == 0 {
		return 1, nil
	}
	if size < 0 {
		return 0, fmt.Errorf("record declares negative size")
	}
	n := (size + capacity - 1) / capacity
	return link.Link(n), nil
}

// SetLink allocates space for e and writes its payload, leaving the key
// field unset and the element unindexed - the low-level half of Put that a
// caller can pair with an explicit Commit (spec §4.6 "set_link(e) -> Link").
func (m *Map) SetLink(e Record) (link.Link, error) {
	n, err := m.recordsFor(e)
	if err != nil {
		return 0, err
	}
	l, err := m.mgr.AllocateRun(n)
	if err != nil {
		return 0, err
	}

	acc, err := m.mgr.GetLink(l)
	if err != nil {
		return 0, err
	}
	defer acc.Release()

	buf := acc.Bytes()
	total := int64(n) * m.mgr.Stride()
	if int64(len(buf)) < total {
		return 0, ferr.NewCorrupt("allocated run shorter than requested")
	}
	h := m.elementHeaderSize()
	payload := buf[h:total]

	w := boundedWriter{buf: payload}
	if err := e.ToData(&w); err != nil {
		return 0, fmt.Errorf("encode element payload: %w", err)
	}
	return l, nil
}

// Commit writes key into the element at l and splices it into the bucket
// selected by key, completing the deferred index commit started by
// SetLink/Allocate (spec §4.6 "commit(link, key) -> bool").
func (m *Map) Commit(l link.Link, key []byte) error {
	if len(key) != m.keyLen {
		return fmt.Errorf("key length %d does not match configured key length %d", len(key), m.keyLen)
	}

	acc, err := m.mgr.GetLink(l)
	if err != nil {
		return err
	}
	defer acc.Release()

	buf := acc.Bytes()
	w := int64(m.width.Bytes)
	if int64(len(buf)) < w+int64(m.keyLen) {
		return ferr.NewCorrupt("element shorter than its own header")
	}
	copy(buf[w:w+int64(m.keyLen)], key)

	idx := m.head.Index(key)
	nextSlot := buf[:w]
	return m.head.Push(l, nextSlot, idx)
}

// PutLink allocates, writes the payload and key, and splices the new
// element into key's bucket, in that order - the deferred index commit
// protocol of spec §4.6: the payload and then the key are fully written
// before head.Push fills in the next slot and publishes the link in the
// bucket, so a reader can never observe a bucket-reachable element with a
// torn payload.
func (m *Map) PutLink(key []byte, e Record) (link.Link, error) {
	l, err := m.SetLink(e)
	if err != nil {
		return 0, err
	}
	if err := m.Commit(l, key); err != nil {
		return 0, err
	}
	return l, nil
}

// Put is PutLink without returning the link.
func (m *Map) Put(key []byte, e Record) error {
	_, err := m.PutLink(key, e)
	return err
}

// boundedWriter writes into a fixed-capacity slice without growing it.
type boundedWriter struct {
	buf []byte
	pos int
}

func (w *boundedWriter) Write(p []byte) (int, error) {
	n := copy(w.buf[w.pos:], p)
	w.pos += n
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}
