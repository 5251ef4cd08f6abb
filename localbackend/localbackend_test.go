package localbackend

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/bridgefs/bridgefs/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func call(t *testing.T, b *Backend, verb, path string, x, y int32, data []byte) []byte {
	t.Helper()
	var reqBuf bytes.Buffer
	require.NoError(t, wire.EncodeRequest(&reqBuf, verb, path, x, y, data))
	req, err := wire.DecodeRequest(bufio.NewReader(&reqBuf))
	require.NoError(t, err)
	return b.dispatch(req)
}

func TestEntityTypeAndExists(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f"), []byte("hello"), 0o644))
	b := New(dir, nil)

	assert.Equal(t, "1", string(call(t, b, "entity_type", "/f", 0, 0, nil)))
	assert.Equal(t, "0", string(call(t, b, "entity_type", "/missing", 0, 0, nil)))
	assert.Equal(t, "1", string(call(t, b, "exists", "/f", 0, 0, nil)))
	assert.Equal(t, "0", string(call(t, b, "exists", "/missing", 0, 0, nil)))
}

func TestFileSizeAndReadFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f"), []byte("0123456789"), 0o644))
	b := New(dir, nil)

	assert.Equal(t, "10", string(call(t, b, "file_size", "/f", 0, 0, nil)))
	got := call(t, b, "read_file", "/f", 0, 16, nil)
	assert.Equal(t, "0123456789", string(got))
}

func TestWriteFileAtOffset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o644))
	b := New(dir, nil)

	reply := call(t, b, "write_file", "/f", 2, 0, []byte("XY"))
	assert.Equal(t, "1", string(reply))

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "01XY456789", string(contents))
}

func TestWritableReflectsPermissions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o444))
	b := New(dir, nil)

	assert.Equal(t, "0", string(call(t, b, "file_writable", "/f", 0, 0, nil)))
	require.NoError(t, os.Chmod(path, 0o644))
	assert.Equal(t, "1", string(call(t, b, "file_writable", "/f", 0, 0, nil)))
}

func TestReadDirSorted(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "d"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "d", "b"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "d", "a"), nil, 0o644))
	b := New(dir, nil)

	assert.Equal(t, "a\nb", string(call(t, b, "read_dir", "/d", 0, 0, nil)))
}

func TestMkdirCreateUnlinkRmdir(t *testing.T) {
	dir := t.TempDir()
	b := New(dir, nil)

	assert.Equal(t, "1", string(call(t, b, "mkdir", "/d", 0, 0, nil)))
	assert.Equal(t, "1", string(call(t, b, "create_file", "/d/f", 0, 0, nil)))
	assert.Equal(t, "1", string(call(t, b, "unlink", "/d/f", 0, 0, nil)))
	assert.Equal(t, "1", string(call(t, b, "rmdir", "/d", 0, 0, nil)))
}

func TestTruncate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o644))
	b := New(dir, nil)

	assert.Equal(t, "1", string(call(t, b, "truncate", "/f", 4, 0, nil)))
	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "0123", string(contents))
}

func TestRenameAndExchange(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a"), []byte("A"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b"), []byte("B"), 0o644))
	b := New(dir, nil)

	assert.Equal(t, "1", string(call(t, b, "rename_exchange", "/a", 0, 0, []byte("/b"))))
	got, err := os.ReadFile(filepath.Join(dir, "a"))
	require.NoError(t, err)
	assert.Equal(t, "B", string(got))
	got, err = os.ReadFile(filepath.Join(dir, "b"))
	require.NoError(t, err)
	assert.Equal(t, "A", string(got))
}

func TestServeRoundTrip(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f"), []byte("hi"), 0o644))
	b := New(dir, nil)

	var reqBuf, respBuf bytes.Buffer
	require.NoError(t, wire.EncodeRequest(&reqBuf, "file_size", "/f", 0, 0, nil))

	// reqBuf holds exactly one frame; Serve processes it, then hits EOF
	// on the next read and returns cleanly.
	require.NoError(t, b.Serve(&reqBuf, &respBuf))

	got, err := wire.DecodeResponse(bufio.NewReader(&respBuf))
	require.NoError(t, err)
	assert.Equal(t, "2", string(got))
}
