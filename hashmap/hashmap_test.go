//go:build unit

package hashmap

import (
	"encoding/binary"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stonefire-chain/filehashmap/hashfunc"
	"github.com/stonefire-chain/filehashmap/head"
	"github.com/stonefire-chain/filehashmap/hashmap/examples"
	"github.com/stonefire-chain/filehashmap/link"
	"github.com/stonefire-chain/filehashmap/recordmgr"
	"github.com/stonefire-chain/filehashmap/storage"
)

type payload struct {
	V uint64
}

func (p *payload) FromData(r io.Reader) error {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return err
	}
	p.V = binary.LittleEndian.Uint64(buf[:])
	return nil
}

func (p *payload) ToData(w io.Writer) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], p.V)
	_, err := w.Write(buf[:])
	return err
}

func (p *payload) Size() int64 { return 8 }

// wide is a payload that needs two records given the fixture's stride.
type wide struct {
	V [40]byte
}

func (w *wide) FromData(r io.Reader) error { _, err := io.ReadFull(r, w.V[:]); return err }
func (w *wide) ToData(wr io.Writer) error  { _, err := wr.Write(w.V[:]); return err }
func (w *wide) Size() int64                { return int64(len(w.V)) }

type fixture struct {
	t         *testing.T
	headerSt  storage.Storage
	bodySt    storage.Storage
	h         *head.Head
	mgr       *recordmgr.Manager
	m         *Map
	headerPth string
	bodyPth   string
}

func newFixture(t *testing.T, width, buckets, keyLen int, stride int64) *fixture {
	t.Helper()

	hf, err := os.CreateTemp("", "hashmap-header-*.bin")
	require.NoError(t, err)
	headerPath := hf.Name()
	require.NoError(t, hf.Close())
	require.NoError(t, os.Remove(headerPath))
	t.Cleanup(func() { _ = os.Remove(headerPath) })

	bf, err := os.CreateTemp("", "hashmap-body-*.bin")
	require.NoError(t, err)
	bodyPath := bf.Name()
	require.NoError(t, bf.Close())
	require.NoError(t, os.Remove(bodyPath))
	t.Cleanup(func() { _ = os.Remove(bodyPath) })

	headerSt, err := storage.New(storage.Config{Path: headerPath, MinimumCapacity: 1})
	require.NoError(t, err)
	_, err = headerSt.Map()
	require.NoError(t, err)
	t.Cleanup(func() { _ = headerSt.Unmap() })

	bodySt, err := storage.New(storage.Config{Path: bodyPath, MinimumCapacity: 1, ExpansionPercent: 50})
	require.NoError(t, err)
	_, err = bodySt.Map()
	require.NoError(t, err)
	t.Cleanup(func() { _ = bodySt.Unmap() })

	w, err := link.NewWidth(width)
	require.NoError(t, err)

	h := head.New(headerSt, w, int64(buckets), hashfunc.NewPrefix(width))
	mgr := recordmgr.New(bodySt, w, stride)
	m := New(h, mgr, keyLen, nil)

	return &fixture{t: t, headerSt: headerSt, bodySt: bodySt, h: h, mgr: mgr, m: m, headerPth: headerPath, bodyPth: bodyPath}
}

func key32(b byte) []byte {
	k := make([]byte, 32)
	k[0] = b
	return k
}

func TestCreateInitializesBothFilesEmpty(t *testing.T) {
	f := newFixture(t, 3, 10, 32, 43)
	require.NoError(t, f.m.Create())

	assert.Equal(t, link.Link(0), f.mgr.Count())
	bc, err := f.h.BodyCount()
	require.NoError(t, err)
	assert.Equal(t, link.Link(0), bc)
}

func TestPutThenFirstRoundTrips(t *testing.T) {
	f := newFixture(t, 3, 10, 32, 43)
	require.NoError(t, f.m.Create())

	key := key32(0x85)
	require.NoError(t, f.m.Put(key, &payload{V: 0xdeadbeef}))

	l, err := f.m.First(key)
	require.NoError(t, err)
	assert.NotEqual(t, f.mgr.Width().Terminal(), l)

	var out payload
	require.NoError(t, f.m.Get(l, &out))
	assert.Equal(t, uint64(0xdeadbeef), out.V)
}

func TestDuplicateKeysLIFOOrder(t *testing.T) {
	f := newFixture(t, 3, 10, 32, 43)
	require.NoError(t, f.m.Create())

	key := key32(0x11)
	require.NoError(t, f.m.Put(key, &payload{V: 1}))
	require.NoError(t, f.m.Put(key, &payload{V: 2}))

	first, err := f.m.First(key)
	require.NoError(t, err)
	var out payload
	require.NoError(t, f.m.Get(first, &out))
	assert.Equal(t, uint64(2), out.V, "first() returns the most recent insertion")

	it, err := f.m.Iterate(key)
	require.NoError(t, err)

	ok, err := it.Advance()
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, f.m.GetIter(it, &out))
	assert.Equal(t, uint64(2), out.V)

	ok, err = it.Advance()
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, f.m.GetIter(it, &out))
	assert.Equal(t, uint64(1), out.V)

	ok, err = it.Advance()
	require.NoError(t, err)
	assert.False(t, ok, "chain exhausted after both duplicates")
}

func TestExistsReflectsPresence(t *testing.T) {
	f := newFixture(t, 3, 10, 32, 43)
	require.NoError(t, f.m.Create())

	key := key32(0x42)
	ok, err := f.m.Exists(key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, f.m.Put(key, &payload{V: 1}))
	ok, err = f.m.Exists(key)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSetOverwritesPayloadInPlace(t *testing.T) {
	f := newFixture(t, 3, 10, 32, 43)
	require.NoError(t, f.m.Create())

	key := key32(0x99)
	l, err := f.m.PutLink(key, &payload{V: 1})
	require.NoError(t, err)

	require.NoError(t, f.m.Set(l, &payload{V: 99}))

	var out payload
	require.NoError(t, f.m.Get(l, &out))
	assert.Equal(t, uint64(99), out.V)

	// The index is untouched by Set.
	first, err := f.m.First(key)
	require.NoError(t, err)
	assert.Equal(t, l, first)
}

func TestAllocateSetLinkCommitTwoStepProtocol(t *testing.T) {
	f := newFixture(t, 3, 10, 32, 43)
	require.NoError(t, f.m.Create())

	key := key32(0x55)
	l, err := f.m.SetLink(&payload{V: 77})
	require.NoError(t, err)

	// Unindexed: allocated but not yet reachable from any bucket.
	ok, err := f.m.Exists(key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, f.m.Commit(l, key))

	ok, err = f.m.Exists(key)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMultiRecordElementSpansContiguousRecords(t *testing.T) {
	// header is 3+32=35 bytes, stride 43 leaves 8 bytes of payload
	// capacity per record; a 40-byte payload needs 5 records.
	f := newFixture(t, 3, 10, 32, 43)
	require.NoError(t, f.m.Create())

	key := key32(0x77)
	var in wide
	for i := range in.V {
		in.V[i] = byte(i)
	}
	require.NoError(t, f.m.Put(key, &in))

	l, err := f.m.First(key)
	require.NoError(t, err)

	var out wide
	require.NoError(t, f.m.Get(l, &out))
	assert.Equal(t, in.V, out.V)

	assert.Equal(t, link.Link(5), f.mgr.Count(), "5 records allocated for a 40-byte payload over 8 bytes/record")
}

func TestPresenceRecordHasZeroPayload(t *testing.T) {
	f := newFixture(t, 3, 10, 32, 43)
	require.NoError(t, f.m.Create())

	key := key32(0x33)
	require.NoError(t, f.m.Put(key, examples.PresenceRecord{}))

	ok, err := f.m.Exists(key)
	require.NoError(t, err)
	assert.True(t, ok)

	l, err := f.m.First(key)
	require.NoError(t, err)
	var out examples.PresenceRecord
	require.NoError(t, f.m.Get(l, &out))
}

func TestCloseThenRestoreRoundTrip(t *testing.T) {
	f := newFixture(t, 3, 10, 32, 43)
	require.NoError(t, f.m.Create())

	key := key32(0x21)
	require.NoError(t, f.m.Put(key, &payload{V: 5}))
	require.NoError(t, f.m.Close())

	require.NoError(t, f.m.Open())
	ok, err := f.m.Verify()
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, f.m.Restore())
	assert.Equal(t, link.Link(1), f.mgr.Count())
}

func TestRestoreTruncatesUnindexedCrashTail(t *testing.T) {
	f := newFixture(t, 3, 10, 32, 43)
	require.NoError(t, f.m.Create())

	key := key32(0x21)
	require.NoError(t, f.m.Put(key, &payload{V: 5}))
	require.NoError(t, f.m.Backup()) // body_count persisted as 1

	// Simulate a crash mid-write: allocate and write an element's payload
	// but never Commit it, so it is never spliced into any bucket.
	_, err := f.m.SetLink(&payload{V: 999})
	require.NoError(t, err)
	assert.Equal(t, link.Link(2), f.mgr.Count(), "the orphaned element is allocated but unindexed")

	require.NoError(t, f.m.Restore())
	assert.Equal(t, link.Link(1), f.mgr.Count(), "restore discards the trailing unindexed element")

	l, err := f.m.First(key)
	require.NoError(t, err)
	var out payload
	require.NoError(t, f.m.Get(l, &out))
	assert.Equal(t, uint64(5), out.V)
}

func TestOperationsRejectedWhenNotOpen(t *testing.T) {
	f := newFixture(t, 3, 10, 32, 43)
	require.NoError(t, f.m.Create())
	require.NoError(t, f.m.Close())

	_, err := f.m.First(key32(1))
	assert.Error(t, err)
}

func TestChainWalkTerminatesWithoutCycles(t *testing.T) {
	// Regression for testable property #2: every bucket's chain must
	// terminate within count() steps.
	f := newFixture(t, 3, 4, 32, 43)
	require.NoError(t, f.m.Create())

	for i := byte(0); i < 20; i++ {
		require.NoError(t, f.m.Put(key32(i), &payload{V: uint64(i)}))
	}

	for b := int64(0); b < 4; b++ {
		cur, err := f.h.Top(b)
		require.NoError(t, err)
		steps := link.Link(0)
		for !f.mgr.Width().IsTerminal(cur) {
			steps++
			require.LessOrEqual(t, int64(steps), int64(f.mgr.Count()), "chain walk exceeded body size: cycle?")
			acc, err := f.mgr.GetLink(cur)
			require.NoError(t, err)
			next := f.mgr.Width().Decode(acc.Bytes()[:3])
			acc.Release()
			cur = next
		}
	}
}
