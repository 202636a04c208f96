package hashfunc

import "github.com/spaolacci/murmur3"

// Murmur3 is an alternative bucket algorithm built on
// github.com/spaolacci/murmur3.Sum32WithSeed, the same function
// grailbio/bigslice uses directly to hash frame columns. It spreads
// non-uniform keys (e.g. sequential block heights) far better than the
// Prefix fingerprint, at the cost of not being a pure function of the key's
// leading bytes.
type Murmur3 struct {
	table int64
	seed  uint32
}

// NewMurmur3 returns a Murmur3 fingerprint with the given seed.
func NewMurmur3(seed uint32) *Murmur3 {
	return &Murmur3{seed: seed}
}

func (m *Murmur3) SetTableSize(buckets int64) { m.table = buckets }
func (m *Murmur3) GetTableSize() int64        { return m.table }

func (m *Murmur3) Index(key []byte) int64 {
	if m.table <= 0 {
		return 0
	}
	h := murmur3.Sum32WithSeed(key, m.seed)
	return int64(h) % m.table
}
