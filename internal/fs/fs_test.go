package fs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFS(t *testing.T) {
	tmp := t.TempDir()
	lfs := LocalFS{}

	dir := filepath.Join(tmp, "subdir")
	assert.NoError(t, lfs.MkdirAll(dir, 0755))

	fpath := filepath.Join(dir, "test.txt")
	f, err := lfs.OpenFile(fpath, os.O_CREATE|os.O_RDWR, 0644)
	require.NoError(t, err)

	_, err = f.Write([]byte("hello"))
	assert.NoError(t, err)
	assert.NoError(t, f.Sync())

	info, err := f.Stat()
	assert.NoError(t, err)
	assert.Equal(t, int64(5), info.Size())
	assert.NoError(t, f.Close())

	entries, err := lfs.ReadDir(dir)
	assert.NoError(t, err)
	assert.Len(t, entries, 1)

	newPath := filepath.Join(dir, "renamed.txt")
	assert.NoError(t, lfs.Rename(fpath, newPath))

	assert.NoError(t, lfs.Truncate(newPath, 3))
	info, err = lfs.Stat(newPath)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), info.Size())

	assert.NoError(t, lfs.Remove(newPath))
	ok, err := Exists(lfs, newPath)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strings.json")

	require.NoError(t, WriteFileAtomic(Default, path, []byte("v1"), 0600))
	require.NoError(t, WriteFileAtomic(Default, path, []byte("v2"), 0600))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))

	ok, err := Exists(Default, path+".tmp")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWriteFileAtomic_KeepsOldOnFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strings.json")
	require.NoError(t, WriteFileAtomic(Default, path, []byte("old"), 0600))

	ffs := NewFaultyFS(nil)
	ffs.AddRule(".tmp", Fault{FailAfterBytes: 1})

	err := WriteFileAtomic(ffs, path, []byte("new"), 0600)
	assert.ErrorIs(t, err, ErrInjected)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))
}

func TestFaultyFS_CleanFailure(t *testing.T) {
	ffs := NewFaultyFS(LocalFS{})
	ffs.AddRule("faulty", Fault{FailAfterBytes: 5})

	fpath := filepath.Join(t.TempDir(), "faulty.txt")
	f, err := ffs.OpenFile(fpath, os.O_CREATE|os.O_RDWR, 0644)
	require.NoError(t, err)
	defer f.Close()

	n, err := f.Write([]byte("hello"))
	assert.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = f.Write([]byte("!"))
	assert.ErrorIs(t, err, ErrInjected)
	assert.Equal(t, 0, n)

	info, err := ffs.Stat(fpath)
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size())
}

func TestFaultyFS_TornWrite(t *testing.T) {
	boom := errors.New("disk full")
	ffs := NewFaultyFS(nil)
	ffs.AddRule("torn", Fault{FailAfterBytes: 3, Torn: true, Err: boom})

	fpath := filepath.Join(t.TempDir(), "torn.bin")
	f, err := ffs.OpenFile(fpath, os.O_CREATE|os.O_RDWR, 0644)
	require.NoError(t, err)
	defer f.Close()

	n, err := f.Write([]byte("abcdef"))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, n)

	data, err := os.ReadFile(fpath)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))
}

func TestFaultyFS_SyncCloseTruncate(t *testing.T) {
	ffs := NewFaultyFS(nil)
	ffs.AddRule("x.bin", Fault{FailAfterBytes: -1, FailOnSync: true, FailOnClose: true, FailOnTruncate: true})

	fpath := filepath.Join(t.TempDir(), "x.bin")
	f, err := ffs.OpenFile(fpath, os.O_CREATE|os.O_RDWR, 0644)
	require.NoError(t, err)

	assert.ErrorIs(t, f.Sync(), ErrInjected)
	assert.ErrorIs(t, ffs.Truncate(fpath, 0), ErrInjected)
	assert.ErrorIs(t, f.Close(), ErrInjected)

	ffs.ClearRules()
	assert.NoError(t, ffs.Truncate(fpath, 0))
}

func TestFaultyFS_Delegation(t *testing.T) {
	tmp := t.TempDir()
	ffs := NewFaultyFS(LocalFS{})

	dir := filepath.Join(tmp, "subdir")
	assert.NoError(t, ffs.MkdirAll(dir, 0755))

	fpath := filepath.Join(dir, "test.txt")
	f, err := ffs.OpenFile(fpath, os.O_CREATE|os.O_WRONLY, 0644)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	assert.NoError(t, ffs.Rename(fpath, fpath+".renamed"))
	_, err = ffs.Stat(fpath + ".renamed")
	assert.NoError(t, err)

	entries, err := ffs.ReadDir(dir)
	assert.NoError(t, err)
	assert.Len(t, entries, 1)

	assert.NoError(t, ffs.Remove(fpath+".renamed"))
}
