package hashmap

import "io"

// Record is a caller-defined payload codec for one hash-map element, mirroring
// arraymap.Record: FromData/ToData must not call back into any map operation
// while the accessor backing r or w is live (spec §5's "Critical rule").
//
// Size governs how many bytes ToData is allowed to write. When it fits in
// the manager's fixed stride minus the element header (next link + key) the
// element takes one record; when it is larger, Put, PutLink and SetLink
// allocate a contiguous run of ceil(Size / (stride - header)) records to
// hold it as one multi-record element. A Size of 0 is the zero-payload
// presence element (see hashmap/examples), which still takes one record.
type Record interface {
	FromData(r io.Reader) error
	ToData(w io.Writer) error
	Size() int64
}
