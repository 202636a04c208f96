// Package examples holds concrete record types exercising hashmap.Map that
// don't belong to any particular blockchain table schema - the primitive-
// layer behaviors spec.md names but the teacher never demonstrates.
package examples

import "io"

// PresenceRecord is the supplemented zero-payload element named in spec §9:
// "the strong_bk record type is defined with no payload ... it functions as
// a presence-bit keyed by block hash. Treat it as a zero-byte payload by
// design, not an oversight." Inserting one records only that its key
// exists; FromData/ToData both read and write nothing.
type PresenceRecord struct{}

func (PresenceRecord) FromData(io.Reader) error { return nil }
func (PresenceRecord) ToData(io.Writer) error   { return nil }
func (PresenceRecord) Size() int64              { return 0 }
