// Package hashfunc provides the pluggable bucket-selection algorithms used
// by head.Head to turn a key into a bucket index.
package hashfunc

// HashAlgorithm permits a caller of hashmap.Map to supply a custom bucket
// selection algorithm suited to its particular key distribution, following
// the same shape as the teacher's own interface: a table size is set once
// at create/open time and Index is then called per key.
type HashAlgorithm interface {
	// SetTableSize sets the number of buckets the algorithm distributes
	// over. Called once, both when creating a new hash map and when
	// reopening an existing one.
	SetTableSize(buckets int64)

	// GetTableSize returns the table size currently in effect.
	GetTableSize() int64

	// Index returns a bucket number in [0, GetTableSize()). Any value
	// returned outside that range is a programming error in the
	// algorithm and results in an error downstream.
	Index(key []byte) int64
}
