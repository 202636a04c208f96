//go:build unit

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "tables.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadParsesTablesAndValidates(t *testing.T) {
	path := writeTemp(t, `
tables:
  - name: block_hash
    link_width: 4
    stride: 128
    key_length: 32
    buckets: 1024
    minimum: 4096
    expansion: 50
    header_path: /tmp/block_hash.hdr
    body_path: /tmp/block_hash.dat
    hash_algorithm: murmur3
    murmur_seed: 7
`)

	f, err := Load(path)
	require.NoError(t, err)
	require.Len(t, f.Tables, 1)

	tbl, ok := f.Table("block_hash")
	require.True(t, ok)
	assert.Equal(t, 4, tbl.LinkWidth)
	assert.Equal(t, int64(128), tbl.Stride)
	assert.Equal(t, int64(1024), tbl.Buckets)
	assert.Equal(t, "murmur3", tbl.HashAlgorithm)

	_, ok = f.Table("missing")
	assert.False(t, ok)
}

func TestValidateRejectsBadLinkWidth(t *testing.T) {
	tbl := Table{LinkWidth: 0, KeyLength: 32, Buckets: 10, HeaderPath: "a", BodyPath: "b"}
	assert.Error(t, tbl.Validate())
}

func TestValidateRejectsUnknownHashAlgorithm(t *testing.T) {
	tbl := Table{LinkWidth: 4, KeyLength: 32, Buckets: 10, HeaderPath: "a", BodyPath: "b", HashAlgorithm: "sha256"}
	assert.Error(t, tbl.Validate())
}

func TestValidateAcceptsSlabStride(t *testing.T) {
	tbl := Table{LinkWidth: 4, KeyLength: 4, Buckets: 10, HeaderPath: "a", BodyPath: "b", Stride: 0}
	assert.NoError(t, tbl.Validate())
}
