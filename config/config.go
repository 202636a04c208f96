// Package config loads the per-table configuration surface described in
// spec §6: link width, stride, key length, bucket count, minimum capacity,
// expansion percentage, and the header/body file paths. Mirrors the
// teacher's own NewFileHashMap direct-parameters constructor by also
// offering a literal Table value for callers that don't load from a file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Table is one table's worth of hashmap.Map construction parameters.
type Table struct {
	// Name identifies the table in logs and in the YAML file.
	Name string `yaml:"name"`

	// LinkWidth is W, the on-disk byte width of a link (3-5 in practice).
	LinkWidth int `yaml:"link_width"`
	// Stride is S, the fixed per-record payload size in bytes. 0 selects
	// slab (variable-length) mode.
	Stride int64 `yaml:"stride"`
	// KeyLength is the fixed key length in bytes every element carries.
	KeyLength int `yaml:"key_length"`
	// ValueLength is the fixed payload length in bytes for the byte-slice
	// convenience API (FileHashMap.Put/Get). Zero means "derive it from
	// Stride minus the element header", the single-record case.
	ValueLength int64 `yaml:"value_length"`
	// Buckets is N, the bucket count fixed at Create and immutable after.
	Buckets int64 `yaml:"buckets"`

	// MinimumCapacity is the capacity floor for the body storage. The
	// header storage's floor is its own fixed size, LinkWidth*(Buckets+1).
	MinimumCapacity int64 `yaml:"minimum"`
	// ExpansionPercent is the percentage overshoot Reserve applies when it
	// has to grow the body storage.
	ExpansionPercent int64 `yaml:"expansion"`

	// HeaderPath and BodyPath are the filesystem paths of the header and
	// body files respectively.
	HeaderPath string `yaml:"header_path"`
	BodyPath   string `yaml:"body_path"`

	// HashAlgorithm selects the bucket-selection algorithm: "prefix"
	// (default), "crc32", or "murmur3".
	HashAlgorithm string `yaml:"hash_algorithm"`
	// MurmurSeed is the seed used when HashAlgorithm is "murmur3".
	MurmurSeed uint32 `yaml:"murmur_seed"`
}

// File is the top-level shape of a YAML config file: a named set of tables,
// mirroring the teacher's per-table CRTConf but as data rather than an
// in-code literal.
type File struct {
	Tables []Table `yaml:"tables"`
}

// Load reads and parses a YAML config file at path.
func Load(path string) (File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read config %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(b, &f); err != nil {
		return File{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	for i := range f.Tables {
		if err := f.Tables[i].Validate(); err != nil {
			return File{}, fmt.Errorf("table %q: %w", f.Tables[i].Name, err)
		}
	}
	return f, nil
}

// Table looks up a table by name, returning false if absent.
func (f File) Table(name string) (Table, bool) {
	for _, t := range f.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

// Validate checks that the table's configuration is internally consistent
// before it is used to construct storages.
func (t *Table) Validate() error {
	if t.LinkWidth < 1 || t.LinkWidth > 7 {
		return fmt.Errorf("link_width must be between 1 and 7, got %d", t.LinkWidth)
	}
	if t.KeyLength < 1 {
		return fmt.Errorf("key_length must be positive, got %d", t.KeyLength)
	}
	if t.Buckets < 1 {
		return fmt.Errorf("buckets must be positive, got %d", t.Buckets)
	}
	if t.Stride < 0 {
		return fmt.Errorf("stride must be >= 0 (0 selects slab mode), got %d", t.Stride)
	}
	if t.HeaderPath == "" || t.BodyPath == "" {
		return fmt.Errorf("header_path and body_path must both be set")
	}
	if t.MinimumCapacity < 1 {
		t.MinimumCapacity = 1
	}
	switch t.HashAlgorithm {
	case "", "prefix", "crc32", "murmur3":
	default:
		return fmt.Errorf("unknown hash_algorithm %q", t.HashAlgorithm)
	}
	return nil
}
