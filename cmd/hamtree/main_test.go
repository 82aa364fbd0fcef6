package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runHamtree(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(append([]string{"hamtree"}, args...), &stdout, &stderr)
	return strings.TrimSpace(stdout.String()), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := runHamtree(t, args...)
	require.NoError(t, err, "hamtree %v", args)
	return out
}

func TestCLI_IntegerForest(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "forest")

	mustRun(t, "--dir", dir, "create")
	r1 := mustRun(t, "--dir", dir, "push", "0", "7", "70")
	r2 := mustRun(t, "--dir", dir, "push", r1, "3", "30")

	assert.Equal(t, "70", mustRun(t, "--dir", dir, "find", r2, "7"))
	assert.Equal(t, "2", mustRun(t, "--dir", dir, "size", r2))
	assert.Equal(t, "1", mustRun(t, "--dir", dir, "size", r1))
	assert.Equal(t, "3\t30\n7\t70", mustRun(t, "--dir", dir, "dump", r2))
	assert.Equal(t, `{"key":"3","value":30}`+"\n"+`{"key":"7","value":70}`, mustRun(t, "--dir", dir, "dump", "--json", r2))

	_, err := runHamtree(t, "--dir", dir, "find", r1, "3")
	assert.ErrorIs(t, err, errKeyNotFound)

	out := mustRun(t, "--dir", dir, "inspect", r1, r2)
	assert.Contains(t, out, "key type:    uint32")
	assert.Contains(t, out, "unreachable:")
}

func TestCLI_StringForest(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "forest")

	mustRun(t, "--dir", dir, "create", "--strings")
	r1 := mustRun(t, "--dir", dir, "push", "0", "size", "42")
	r2 := mustRun(t, "--dir", dir, "push", r1, "lot", "10")

	assert.Equal(t, "42", mustRun(t, "--dir", dir, "find", r2, "size"))
	assert.Equal(t, "lot\t10\nsize\t42", mustRun(t, "--dir", dir, "dump", r2))
}

func TestCLI_Errors(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "forest")

	_, err := runHamtree(t, "create")
	assert.ErrorContains(t, err, "forest directory")

	mustRun(t, "--dir", dir, "create")
	_, err = runHamtree(t, "--dir", dir, "create")
	assert.Error(t, err)

	_, err = runHamtree(t, "--dir", dir, "push", "0", "7")
	assert.ErrorContains(t, err, "root, key and value")

	_, err = runHamtree(t, "--dir", dir, "push", "0", "x", "1")
	assert.ErrorContains(t, err, "invalid integer key")

	_, err = runHamtree(t, "--dir", dir, "push", "zero", "1", "1")
	assert.ErrorContains(t, err, "invalid root")

	_, err = runHamtree(t, "--dir", dir, "size", "99")
	assert.Error(t, err)
}

func TestCLI_ExportImport(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "src")
	dst := filepath.Join(base, "dst")
	store := filepath.Join(base, "archives")

	mustRun(t, "--dir", src, "create", "--strings")
	root := mustRun(t, "--dir", src, "push", "0", "größe", "5")

	out := mustRun(t, "--dir", src, "export", "--store", store, "--compression", "lz4", "nightly")
	assert.Contains(t, out, "exported nightly")

	assert.Equal(t, "nightly", mustRun(t, "archives", "list", "--store", store))

	out = mustRun(t, "--dir", dst, "import", "--store", store, "nightly")
	assert.Contains(t, out, "string keys")
	assert.Equal(t, "5", mustRun(t, "--dir", dst, "find", root, "größe"))

	_, err := runHamtree(t, "--dir", dst, "import", "--store", store, "nightly")
	assert.Error(t, err)

	mustRun(t, "archives", "delete", "--store", store, "nightly")
	assert.Equal(t, "", mustRun(t, "archives", "list", "--store", store))
}

func TestCLI_UnknownStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "forest")
	mustRun(t, "--dir", dir, "create")

	_, err := runHamtree(t, "--dir", dir, "export", "--store", "ftp://host/x", "a")
	assert.ErrorContains(t, err, "unknown scheme")

	_, err = runHamtree(t, "--dir", dir, "export", "--store", "minio://host", "a")
	assert.ErrorContains(t, err, "missing bucket")
}
