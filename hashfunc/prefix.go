package hashfunc

import "encoding/binary"

// Prefix is the default fingerprint algorithm described in spec §9: the
// leading Width bytes of the key, interpreted as a little-endian integer,
// modulo the table size. It is deterministic and stable across runs, but
// acceptable only for cryptographically uniform keys (spec's own caveat) -
// it must not be substituted for non-uniform key distributions.
type Prefix struct {
	Width int
	table int64
}

// NewPrefix returns a Prefix fingerprint reducing the leading width bytes of
// each key.
func NewPrefix(width int) *Prefix {
	return &Prefix{Width: width}
}

func (p *Prefix) SetTableSize(buckets int64) { p.table = buckets }
func (p *Prefix) GetTableSize() int64        { return p.table }

func (p *Prefix) Index(key []byte) int64 {
	n := p.Width
	if n > len(key) {
		n = len(key)
	}
	var buf [8]byte
	copy(buf[:n], key[:n])
	v := int64(binary.LittleEndian.Uint64(buf[:]))
	if v < 0 {
		v = -v
	}
	if p.table <= 0 {
		return 0
	}
	return v % p.table
}
