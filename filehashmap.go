// Package filehashmap is the public facade over the engine: it wires one
// config.Table into a pair of storage.Storage instances, a head.Head, a
// recordmgr.Manager and a hashmap.Map, and exposes the teacher's own
// NewFileHashMap / NewFromExistingFiles constructor pair plus CloseFiles /
// RemoveFiles lifecycle helpers over the new chained-bucket engine.
package filehashmap

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/stonefire-chain/filehashmap/config"
	"github.com/stonefire-chain/filehashmap/ferr"
	"github.com/stonefire-chain/filehashmap/hashfunc"
	"github.com/stonefire-chain/filehashmap/hashmap"
	"github.com/stonefire-chain/filehashmap/head"
	"github.com/stonefire-chain/filehashmap/link"
	"github.com/stonefire-chain/filehashmap/recordmgr"
	"github.com/stonefire-chain/filehashmap/storage"
)

// HashMapInfo carries static sizing information about a created hash map,
// mirroring the teacher's own HashMapInfo.
type HashMapInfo struct {
	Buckets    int64
	LinkWidth  int
	KeyLength  int
	Stride     int64
	HeaderSize int64
}

// FileHashMap is the main facade type: one table's header+body pair, open
// for use. Use CloseFiles preferably in a defer directly after
// NewFileHashMap or NewFromExistingFiles.
type FileHashMap struct {
	table  config.Table
	headSt storage.Storage
	bodySt storage.Storage
	h      *head.Head
	mgr    *recordmgr.Manager
	m      *hashmap.Map
	valLen int64
}

func newAlgorithm(table config.Table) (hashfunc.HashAlgorithm, error) {
	switch table.HashAlgorithm {
	case "", "prefix":
		return hashfunc.NewPrefix(table.LinkWidth), nil
	case "crc32":
		return hashfunc.NewCRC32(), nil
	case "murmur3":
		return hashfunc.NewMurmur3(table.MurmurSeed), nil
	default:
		return nil, fmt.Errorf("unknown hash algorithm %q", table.HashAlgorithm)
	}
}

func build(table config.Table, logger *slog.Logger) (*FileHashMap, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}

	w, err := link.NewWidth(table.LinkWidth)
	if err != nil {
		return nil, err
	}

	headSt, err := storage.New(storage.Config{
		Path:            table.HeaderPath,
		MinimumCapacity: int64(table.LinkWidth) * (table.Buckets + 1),
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}

	bodySt, err := storage.New(storage.Config{
		Path:             table.BodyPath,
		MinimumCapacity:  table.MinimumCapacity,
		ExpansionPercent: table.ExpansionPercent,
		Logger:           logger,
	})
	if err != nil {
		return nil, err
	}

	alg, err := newAlgorithm(table)
	if err != nil {
		return nil, err
	}

	h := head.New(headSt, w, table.Buckets, alg)
	mgr := recordmgr.New(bodySt, w, table.Stride)
	m := hashmap.New(h, mgr, table.KeyLength, logger)

	valLen := table.ValueLength
	if valLen == 0 && table.Stride > 0 {
		valLen = table.Stride - int64(table.LinkWidth) - int64(table.KeyLength)
	}

	return &FileHashMap{table: table, headSt: headSt, bodySt: bodySt, h: h, mgr: mgr, m: m, valLen: valLen}, nil
}

// NewFileHashMap creates a brand-new hash map from table, mapping and
// initializing both the header and body files.
func NewFileHashMap(table config.Table, logger *slog.Logger) (*FileHashMap, HashMapInfo, error) {
	fhm, err := build(table, logger)
	if err != nil {
		return nil, HashMapInfo{}, err
	}

	if _, err := fhm.headSt.Map(); err != nil {
		return nil, HashMapInfo{}, err
	}
	if _, err := fhm.bodySt.Map(); err != nil {
		_ = fhm.headSt.Unmap()
		return nil, HashMapInfo{}, err
	}
	if err := fhm.m.Create(); err != nil {
		_ = fhm.headSt.Unmap()
		_ = fhm.bodySt.Unmap()
		return nil, HashMapInfo{}, err
	}

	return fhm, fhm.Info(), nil
}

// NewFromExistingFiles opens a previously created hash map. It fails with a
// ferr.Corrupt error if the header file size does not match its bucket
// count. A body count mismatch is not checked here: if Verify later
// reports false, it is the caller's decision whether to Restore (recovery
// path documented in spec §4.6) or reinitialize.
func NewFromExistingFiles(table config.Table, logger *slog.Logger) (*FileHashMap, HashMapInfo, error) {
	fhm, err := build(table, logger)
	if err != nil {
		return nil, HashMapInfo{}, err
	}

	if _, err := fhm.headSt.Map(); err != nil {
		return nil, HashMapInfo{}, err
	}
	if _, err := fhm.bodySt.Map(); err != nil {
		_ = fhm.headSt.Unmap()
		return nil, HashMapInfo{}, err
	}
	if err := fhm.m.Open(); err != nil {
		_ = fhm.headSt.Unmap()
		_ = fhm.bodySt.Unmap()
		return nil, HashMapInfo{}, err
	}

	return fhm, fhm.Info(), nil
}

// Info reports static sizing information about the map.
func (F *FileHashMap) Info() HashMapInfo {
	w, _ := link.NewWidth(F.table.LinkWidth)
	return HashMapInfo{
		Buckets:    F.table.Buckets,
		LinkWidth:  F.table.LinkWidth,
		KeyLength:  F.table.KeyLength,
		Stride:     F.table.Stride,
		HeaderSize: int64(w.Bytes) + F.table.Buckets*int64(w.Bytes),
	}
}

// CloseFiles persists manager.Count() into head.BodyCount and unmaps both
// files. Use this preferably in a defer directly after NewFileHashMap or
// NewFromExistingFiles.
func (F *FileHashMap) CloseFiles() error {
	if err := F.m.Close(); err != nil && !isNotOpen(err) {
		return err
	}
	if err := F.headSt.Unmap(); err != nil {
		return err
	}
	if err := F.bodySt.Unmap(); err != nil {
		return err
	}
	return nil
}

// RemoveFiles closes the files (ignoring a not-open map) and removes the
// header and body files from disk.
func (F *FileHashMap) RemoveFiles() error {
	_ = F.CloseFiles()
	if err := os.Remove(F.table.HeaderPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Remove(F.table.BodyPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Backup persists manager.Count() into head.BodyCount without leaving the
// Open state (spec §4.6's idempotent snapshot).
func (F *FileHashMap) Backup() error { return F.m.Backup() }

// Restore truncates the body to head.BodyCount, discarding any elements
// allocated but never indexed before a crash.
func (F *FileHashMap) Restore() error { return F.m.Restore() }

// Verify reports head.Verify() && head.BodyCount() == manager.Count().
func (F *FileHashMap) Verify() (bool, error) { return F.m.Verify() }

// bytesRecord adapts a fixed-length []byte value to hashmap.Record, backing
// the byte-slice convenience API below - the shape of value the teacher's
// own Get/Set/Put(key, value []byte) signature exposes, grafted onto the
// new generic Record codec.
type bytesRecord struct {
	data []byte
	size int64
}

func (r *bytesRecord) FromData(src io.Reader) error {
	buf := make([]byte, r.size)
	n, err := io.ReadFull(src, buf)
	r.data = buf[:n]
	return err
}

func (r *bytesRecord) ToData(dst io.Writer) error {
	if int64(len(r.data)) != r.size {
		return fmt.Errorf("value length %d does not match table value_length %d", len(r.data), r.size)
	}
	_, err := dst.Write(r.data)
	return err
}

func (r *bytesRecord) Size() int64 { return r.size }

// NoRecordFound reports that no record was found at the public API
// boundary, separate from ferr.NotFound used internally - the same root-
// vs-internal duplication the teacher carries between its own root
// NoRecordFound and crt.NoRecordFound.
type NoRecordFound struct {
	msg string
}

func (E NoRecordFound) Error() string {
	if E.msg == "" {
		return "no record found"
	}
	return E.msg
}

func (F *FileHashMap) requireValueLength() error {
	if F.valLen <= 0 {
		return fmt.Errorf("table %q does not declare a value_length for the byte-slice API", F.table.Name)
	}
	return nil
}

// Put writes value under key, adding a new duplicate if key already
// exists - spec §4.6 put(key, e).
func (F *FileHashMap) Put(key, value []byte) error {
	if err := F.requireValueLength(); err != nil {
		return err
	}
	if int64(len(value)) != F.valLen {
		return fmt.Errorf("value length %d does not match table value_length %d", len(value), F.valLen)
	}
	return F.m.Put(key, &bytesRecord{data: value, size: F.valLen})
}

// Get returns the most recently inserted value for key, or NoRecordFound if
// key is absent.
func (F *FileHashMap) Get(key []byte) ([]byte, error) {
	if err := F.requireValueLength(); err != nil {
		return nil, err
	}
	l, err := F.m.First(key)
	if err != nil {
		return nil, err
	}
	w, _ := link.NewWidth(F.table.LinkWidth)
	if w.IsTerminal(l) {
		return nil, NoRecordFound{}
	}

	var out bytesRecord
	out.size = F.valLen
	if err := F.m.Get(l, &out); err != nil {
		return nil, err
	}
	return out.data, nil
}

// Exists reports whether key has at least one element indexed.
func (F *FileHashMap) Exists(key []byte) (bool, error) { return F.m.Exists(key) }

// Values returns every value stored under key, most recently inserted
// first (spec §4.6's LIFO iteration order).
func (F *FileHashMap) Values(key []byte) ([][]byte, error) {
	if err := F.requireValueLength(); err != nil {
		return nil, err
	}
	it, err := F.m.Iterate(key)
	if err != nil {
		return nil, err
	}
	defer it.Release()

	var out [][]byte
	for {
		ok, err := it.Advance()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		var rec bytesRecord
		rec.size = F.valLen
		if err := F.m.GetIter(it, &rec); err != nil {
			return nil, err
		}
		out = append(out, rec.data)
	}
	return out, nil
}

// Delete is intentionally unimplemented: spec.md's Non-goals explicitly
// exclude in-place element deletion. The teacher's own Delete existed
// because its open-addressing layout required tombstoning probe slots; the
// chained-bucket design this engine implements has no analogous need.

func isNotOpen(err error) bool {
	_, ok := err.(ferr.NotOpen)
	return ok
}
