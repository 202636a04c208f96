//go:build unit

package recordmgr

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stonefire-chain/filehashmap/link"
	"github.com/stonefire-chain/filehashmap/storage"
)

func newTestManager(t *testing.T, stride int64, minimum int64) (*Manager, storage.Storage) {
	t.Helper()
	f, err := os.CreateTemp("", "recordmgr-unittest-*.bin")
	require.NoError(t, err)
	name := f.Name()
	_ = f.Close()
	require.NoError(t, os.Remove(name))
	t.Cleanup(func() { _ = os.Remove(name) })

	st, err := storage.New(storage.Config{Path: name, MinimumCapacity: minimum, ExpansionPercent: 50})
	require.NoError(t, err)
	_, err = st.Map()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Unmap() })

	w, err := link.NewWidth(4)
	require.NoError(t, err)

	return New(st, w, stride), st
}

func TestAllocateRecordModeReturnsIncreasingLinks(t *testing.T) {
	m, _ := newTestManager(t, 16, 16)

	l0, err := m.Allocate(1)
	require.NoError(t, err)
	l1, err := m.Allocate(1)
	require.NoError(t, err)
	l2, err := m.Allocate(3)
	require.NoError(t, err)

	assert.Equal(t, link.Link(0), l0)
	assert.Equal(t, link.Link(1), l1)
	assert.Equal(t, link.Link(2), l2)
	assert.Equal(t, link.Link(5), m.Count())
}

func TestAllocateSlabModeCountsBytes(t *testing.T) {
	m, _ := newTestManager(t, 0, 1)

	l0, err := m.Allocate(42)
	require.NoError(t, err)
	assert.Equal(t, link.Link(0), l0)
	assert.Equal(t, link.Link(42), m.Count())

	l1, err := m.Allocate(8)
	require.NoError(t, err)
	assert.Equal(t, link.Link(42), l1)
	assert.Equal(t, link.Link(50), m.Count())
}

func TestGetLinkResolvesToAllocatedBytes(t *testing.T) {
	m, _ := newTestManager(t, 8, 8)

	l, err := m.Allocate(1)
	require.NoError(t, err)

	acc, err := m.GetLink(l)
	require.NoError(t, err)
	defer acc.Release()

	buf := acc.Bytes()
	require.GreaterOrEqual(t, len(buf), 8)
	copy(buf[:8], []byte("AAAAAAAA"))

	acc2, err := m.GetLink(l)
	require.NoError(t, err)
	defer acc2.Release()
	assert.Equal(t, []byte("AAAAAAAA"), acc2.Bytes()[:8])
}

func TestGetLinkOnTerminalOrOutOfRangeFails(t *testing.T) {
	m, _ := newTestManager(t, 8, 8)
	w := m.Width()

	_, err := m.GetLink(w.Terminal())
	assert.Error(t, err)

	_, err = m.GetLink(999)
	assert.Error(t, err)
}

func TestTruncateDiscardsTrailingElements(t *testing.T) {
	m, _ := newTestManager(t, 8, 8)

	_, err := m.Allocate(5)
	require.NoError(t, err)
	require.Equal(t, link.Link(5), m.Count())

	err = m.Truncate(2)
	require.NoError(t, err)
	assert.Equal(t, link.Link(2), m.Count())
}

func TestAllocateOnTerminalIsNoOp(t *testing.T) {
	m, _ := newTestManager(t, 8, 8)
	w := m.Width()

	got, err := m.Allocate(w.Terminal())
	require.NoError(t, err)
	assert.Equal(t, w.Terminal(), got)
	assert.Equal(t, link.Link(0), m.Count(), "no-op allocate does not grow the body")
}

func TestArrayMapSlabRoundTrip(t *testing.T) {
	// Mirrors spec S6: allocate(42) from empty returns link 0 and grows
	// logical to 42; truncate(0) resets logical to 0.
	m, _ := newTestManager(t, 0, 1)

	l, err := m.Allocate(42)
	require.NoError(t, err)
	assert.Equal(t, link.Link(0), l)
	assert.Equal(t, link.Link(42), m.Count())

	acc, err := m.GetLink(l)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(acc.Bytes()), 42)
	acc.Release()

	require.NoError(t, m.Truncate(0))
	assert.Equal(t, link.Link(0), m.Count())
}
