// Package head implements the hash-map header file described in spec §4.4:
// a body element count plus a fixed-size array of bucket head links.
package head

import (
	"sync"

	"github.com/stonefire-chain/filehashmap/ferr"
	"github.com/stonefire-chain/filehashmap/hashfunc"
	"github.com/stonefire-chain/filehashmap/link"
	"github.com/stonefire-chain/filehashmap/storage"
)

const stripeCount = 256

// Head wraps one storage.Storage dedicated to a hash-map header.
type Head struct {
	st      storage.Storage
	width   link.Width
	buckets int64
	alg     hashfunc.HashAlgorithm

	stripes [stripeCount]sync.Mutex
}

// New returns a Head over st with buckets slots, using alg to turn a key
// into a bucket index.
func New(st storage.Storage, width link.Width, buckets int64, alg hashfunc.HashAlgorithm) *Head {
	alg.SetTableSize(buckets)
	return &Head{st: st, width: width, buckets: buckets, alg: alg}
}

func (h *Head) headerSize() int64 {
	return int64(h.width.Bytes) + h.buckets*int64(h.width.Bytes)
}

// Create writes a fresh header: body_count = 0, every bucket = terminal.
func (h *Head) Create() error {
	acc, err := h.st.Resize(h.headerSize())
	if err != nil {
		return err
	}
	defer acc.Release()

	buf := acc.Bytes()
	h.width.Encode(buf[:h.width.Bytes], 0)

	term := h.width.Terminal()
	off := int64(h.width.Bytes)
	for i := int64(0); i < h.buckets; i++ {
		h.width.Encode(buf[off:off+int64(h.width.Bytes)], term)
		off += int64(h.width.Bytes)
	}

	return nil
}

// Verify performs the structural check from spec §4.4: file size equals
// W + N*W.
func (h *Head) Verify() (bool, error) {
	return h.st.Logical() == h.headerSize(), nil
}

// BodyCount reads the authoritative body element count persisted at the
// last clean close/backup.
func (h *Head) BodyCount() (link.Link, error) {
	acc, err := h.st.Access()
	if err != nil {
		return 0, err
	}
	defer acc.Release()

	buf := acc.Bytes()
	if int64(len(buf)) < int64(h.width.Bytes) {
		return 0, ferr.NewCorrupt("header shorter than one link width")
	}
	return h.width.Decode(buf[:h.width.Bytes]), nil
}

// SetBodyCount writes the body element count field.
func (h *Head) SetBodyCount(l link.Link) error {
	acc, err := h.st.Access()
	if err != nil {
		return err
	}
	defer acc.Release()

	buf := acc.Bytes()
	h.width.Encode(buf[:h.width.Bytes], l)
	return nil
}

// Buckets returns the bucket count N, fixed at Create time.
func (h *Head) Buckets() int64 { return h.buckets }

// Index returns fingerprint(key) mod N via the configured HashAlgorithm.
func (h *Head) Index(key []byte) int64 {
	return h.alg.Index(key)
}

func (h *Head) bucketOffset(index int64) int64 {
	return int64(h.width.Bytes) + index*int64(h.width.Bytes)
}

// Top returns the current head link of bucket index's chain.
func (h *Head) Top(index int64) (link.Link, error) {
	if index < 0 || index >= h.buckets {
		return 0, ferr.NewCorrupt("bucket index out of range")
	}

	acc, err := h.st.Access()
	if err != nil {
		return 0, err
	}
	defer acc.Release()

	off := h.bucketOffset(index)
	buf := acc.Bytes()
	return h.width.Decode(buf[off : off+int64(h.width.Bytes)]), nil
}

// Push splices newLink onto the head of bucket index's chain: it reads the
// current head into nextSlot (the W-byte "next" field at the start of the
// new element in the body), then sets bucket[index] = newLink. The read
// and the two writes happen under a bucket-striped mutex so a concurrent
// Push on the same bucket cannot interleave with this one (spec §4.4).
func (h *Head) Push(newLink link.Link, nextSlot []byte, index int64) error {
	if index < 0 || index >= h.buckets {
		return ferr.NewCorrupt("bucket index out of range")
	}

	mu := &h.stripes[index%stripeCount]
	mu.Lock()
	defer mu.Unlock()

	acc, err := h.st.Access()
	if err != nil {
		return err
	}
	defer acc.Release()

	off := h.bucketOffset(index)
	buf := acc.Bytes()

	oldHead := h.width.Decode(buf[off : off+int64(h.width.Bytes)])
	h.width.Encode(nextSlot, oldHead)
	h.width.Encode(buf[off:off+int64(h.width.Bytes)], newLink)

	return nil
}
