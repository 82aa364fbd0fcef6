package hamtree

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/hamtree/internal/fs"
	"github.com/hupe1980/hamtree/testutil"
)

func newForest[K Key](t *testing.T, opts ...Option) (*Forest[K], string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "forest")
	require.NoError(t, Create[K](dir, opts...))
	f, err := Open[K](dir, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f, dir
}

func reopen[K Key](t *testing.T, f *Forest[K], opts ...Option) *Forest[K] {
	t.Helper()
	require.NoError(t, f.Close())
	g, err := Open[K](f.Dir(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { g.Close() })
	return g
}

func pushOK[K Key](t *testing.T, f *Forest[K], root RootIndex, key K, value uint32) RootIndex {
	t.Helper()
	next, err := f.Push(root, key, value)
	require.NoError(t, err)
	return next
}

func findOK[K Key](t *testing.T, f *Forest[K], root RootIndex, key K) (uint32, bool) {
	t.Helper()
	v, ok, err := f.Find(root, key)
	require.NoError(t, err)
	return v, ok
}

func sizeOK[K Key](t *testing.T, f *Forest[K], root RootIndex) int {
	t.Helper()
	n, err := f.Size(root)
	require.NoError(t, err)
	return n
}

func TestCreate_AlreadyExists(t *testing.T) {
	dir := t.TempDir()
	err := Create[uint32](dir)
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestOpen_NotFound(t *testing.T) {
	_, err := Open[uint32](filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, ErrNotFound)

	// Directory without a stash.
	_, err = Open[uint32](t.TempDir())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpen_KeyTypeMismatch(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "strings")
	require.NoError(t, Create[string](dir))

	_, err := Open[uint32](dir)
	assert.ErrorIs(t, err, ErrKeyTypeMismatch)

	intDir := filepath.Join(t.TempDir(), "ints")
	require.NoError(t, Create[uint32](intDir))
	_, err = Open[string](intDir)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreate_Layout(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "forest")
	require.NoError(t, Create[string](dir))

	data, err := os.ReadFile(filepath.Join(dir, ElementsFile))
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 8), data)

	info, err := os.Stat(filepath.Join(dir, KeysFile))
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.Size())
}

func TestOpenOrCreate(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "forest")
	f, err := OpenOrCreate[uint32](dir)
	require.NoError(t, err)
	root := pushOK(t, f, EmptyRoot, 1, 1)
	require.NoError(t, f.Close())

	g, err := OpenOrCreate[uint32](dir)
	require.NoError(t, err)
	defer g.Close()
	v, ok := findOK(t, g, root, 1)
	assert.True(t, ok)
	assert.Equal(t, uint32(1), v)
}

func TestForest_PersistEmpty(t *testing.T) {
	f, _ := newForest[uint32](t)
	root, err := f.AddRoot()
	require.NoError(t, err)
	assert.Equal(t, EmptyRoot, root)

	f = reopen(t, f)
	assert.Equal(t, 0, sizeOK(t, f, root))
	_, ok := findOK(t, f, root, 0)
	assert.False(t, ok)
}

func TestForest_PersistOne(t *testing.T) {
	f, _ := newForest[uint32](t)
	root := pushOK(t, f, EmptyRoot, 3, 3)

	f = reopen(t, f)
	v, ok := findOK(t, f, root, 3)
	assert.True(t, ok)
	assert.Equal(t, uint32(3), v)
	assert.Equal(t, 1, sizeOK(t, f, root))
}

func TestForest_FourKeys(t *testing.T) {
	f, _ := newForest[uint32](t)
	keys := []uint32{0b000000000100000, 0b000000001000000, 0b000000001000001, 0b000000001000010}

	root := EmptyRoot
	for i, k := range keys {
		root = pushOK(t, f, root, k, uint32(i+1))
	}
	assert.Equal(t, 4, sizeOK(t, f, root))
	for i, k := range keys {
		v, ok := findOK(t, f, root, k)
		assert.True(t, ok)
		assert.Equal(t, uint32(i+1), v)
	}
	_, ok := findOK(t, f, root, 0)
	assert.False(t, ok)
}

func TestForest_LastWriteWins(t *testing.T) {
	f, _ := newForest[uint32](t)
	key := uint32(0b000010000000000)

	r1 := pushOK(t, f, EmptyRoot, key, 1)
	r2 := pushOK(t, f, r1, key, 2)
	assert.Equal(t, 1, sizeOK(t, f, r2))

	v, _ := findOK(t, f, r2, key)
	assert.Equal(t, uint32(2), v)
	v, _ = findOK(t, f, r1, key)
	assert.Equal(t, uint32(1), v)

	// Re-pushing the current value writes nothing.
	before := f.Len()
	r3 := pushOK(t, f, r2, key, 2)
	assert.Equal(t, r2, r3)
	assert.Equal(t, before, f.Len())
}

func TestForest_Persist1000(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
	}{
		{"default", nil},
		{"sync", []Option{WithDurability(DurabilitySync)}},
		{"mmap", []Option{WithMmap(true)}},
		{"no-cache-no-dedup", []Option{WithCacheSize(0), WithDeduplication(false)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, _ := newForest[uint32](t, tt.opts...)
			root := EmptyRoot
			for i := uint32(0); i < 1000; i++ {
				root = pushOK(t, f, root, i*71, i+1)
			}

			f = reopen(t, f, tt.opts...)
			assert.Equal(t, 1000, sizeOK(t, f, root))
			for i := uint32(0); i < 1000; i++ {
				v, ok := findOK(t, f, root, i*71)
				require.True(t, ok, "key %d", i*71)
				require.Equal(t, i+1, v)
			}
		})
	}
}

func checkModel[K Key](t *testing.T, f *Forest[K], root RootIndex, m *testutil.Model[K]) {
	t.Helper()
	want := m.Entries()
	var got []testutil.Entry[K]
	require.NoError(t, f.Each(root, func(k K, v uint32) error {
		got = append(got, testutil.Entry[K]{Key: k, Value: v})
		return nil
	}))
	require.Equal(t, want, got)
	for _, e := range want {
		v, ok := findOK(t, f, root, e.Key)
		require.True(t, ok, "key %v", e.Key)
		require.Equal(t, e.Value, v)
	}
}

func TestForest_RandomWorkload(t *testing.T) {
	rng := testutil.NewRNG(42)

	t.Run("uint32", func(t *testing.T) {
		f, _ := newForest[uint32](t)
		keys := rng.Uint32Keys(300, testutil.MaxKey)
		m := testutil.NewModel[uint32]()
		root := EmptyRoot
		var versions []RootIndex
		var snaps []*testutil.Model[uint32]
		for i := 0; i < 1500; i++ {
			k := keys[rng.Intn(len(keys))]
			v := rng.Uint32()
			root = pushOK(t, f, root, k, v)
			m.Set(k, v)
			if i%250 == 0 {
				versions = append(versions, root)
				snaps = append(snaps, m.Clone())
			}
		}

		f = reopen(t, f)
		checkModel(t, f, root, m)
		for i, r := range versions {
			checkModel(t, f, r, snaps[i])
		}
	})

	t.Run("string", func(t *testing.T) {
		f, _ := newForest[string](t)
		keys := rng.StringKeys(200)
		testutil.Shuffle(rng, keys)
		m := testutil.NewModel[string]()
		root := EmptyRoot
		for i, k := range keys {
			root = pushOK(t, f, root, k, uint32(i))
			m.Set(k, uint32(i))
		}

		f = reopen(t, f)
		checkModel(t, f, root, m)
		assert.Equal(t, m.Len(), sizeOK(t, f, root))
	})
}

func TestForest_VersionsStayValid(t *testing.T) {
	f, _ := newForest[uint32](t)
	var roots []RootIndex
	root := EmptyRoot
	for i := uint32(0); i < 50; i++ {
		root = pushOK(t, f, root, i, i*10)
		roots = append(roots, root)
	}

	f = reopen(t, f)
	for i, r := range roots {
		assert.Equal(t, i+1, sizeOK(t, f, r))
		_, ok := findOK(t, f, r, uint32(i+1))
		assert.False(t, ok)
		v, ok := findOK(t, f, r, uint32(i))
		assert.True(t, ok)
		assert.Equal(t, uint32(i*10), v)
	}
}

func TestForest_Each(t *testing.T) {
	f, _ := newForest[uint32](t)
	root := EmptyRoot
	for _, k := range []uint32{500, 3, 1 << 30, 71, 0} {
		root = pushOK(t, f, root, k, k+1)
	}

	var keys []uint32
	require.NoError(t, f.Each(root, func(k, v uint32) error {
		assert.Equal(t, k+1, v)
		keys = append(keys, k)
		return nil
	}))
	assert.Equal(t, []uint32{0, 3, 71, 500, 1 << 30}, keys)

	stop := errors.New("stop")
	n := 0
	err := f.Each(root, func(uint32, uint32) error {
		n++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, n)
}

func TestForest_StringKeys(t *testing.T) {
	f, dir := newForest[string](t)

	r := pushOK(t, f, EmptyRoot, "lot", 10)
	r = pushOK(t, f, r, "size", 10)
	r = pushOK(t, f, r, "Hello!", 1)
	r = pushOK(t, f, r, "größe", 2)
	r = pushOK(t, f, r, "a", 3)
	r = pushOK(t, f, r, "ab", 4)
	r = pushOK(t, f, r, "", 5)

	f = reopen(t, f, WithKeyCacheSize(0))
	assert.Equal(t, 7, sizeOK(t, f, r))
	for k, want := range map[string]uint32{"lot": 10, "size": 10, "Hello!": 1, "größe": 2, "a": 3, "ab": 4, "": 5} {
		v, ok := findOK(t, f, r, k)
		require.True(t, ok, k)
		assert.Equal(t, want, v, k)
	}
	_, ok := findOK(t, f, r, "abc")
	assert.False(t, ok)

	var keys []string
	require.NoError(t, f.Each(r, func(k string, _ uint32) error {
		keys = append(keys, k)
		return nil
	}))
	assert.Equal(t, []string{"", "Hello!", "a", "ab", "größe", "lot", "size"}, keys)

	_, err := os.Stat(filepath.Join(dir, KeysFile))
	require.NoError(t, err)
}

func TestForest_KeyValidation(t *testing.T) {
	ints, _ := newForest[uint32](t)
	_, err := ints.Push(EmptyRoot, 1<<31, 1)
	assert.ErrorIs(t, err, ErrKeyOutOfRange)

	strs, _ := newForest[string](t)
	_, err = strs.Push(EmptyRoot, strings.Repeat("k", 1<<16), 1)
	assert.ErrorIs(t, err, ErrKeyTooLong)
	_, err = strs.Push(EmptyRoot, "\xff", 1)
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestForest_InvalidRoot(t *testing.T) {
	f, _ := newForest[uint32](t)
	root := pushOK(t, f, EmptyRoot, 3, 3)

	_, _, err := f.Find(RootIndex(f.Len()), 3)
	assert.ErrorIs(t, err, ErrInvalidRoot)

	// Record 1 is the leaf written for key 3.
	_, _, err = f.Find(root-1, 3)
	assert.ErrorIs(t, err, ErrInvalidRoot)

	_, err = f.Push(RootIndex(1000), 1, 1)
	assert.ErrorIs(t, err, ErrInvalidRoot)
}

func TestForest_ReadOnly(t *testing.T) {
	w, dir := newForest[uint32](t)
	r1 := pushOK(t, w, EmptyRoot, 1, 1)

	r, err := Open[uint32](dir, WithReadOnly())
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Push(r1, 2, 2)
	assert.ErrorIs(t, err, ErrReadOnly)

	v, ok := findOK(t, r, r1, 1)
	assert.True(t, ok)
	assert.Equal(t, uint32(1), v)

	// A root written after the reader opened is found on demand.
	r2 := pushOK(t, w, r1, 2, 2)
	v, ok = findOK(t, r, r2, 2)
	assert.True(t, ok)
	assert.Equal(t, uint32(2), v)
}

func TestForest_Closed(t *testing.T) {
	f, _ := newForest[uint32](t)
	require.NoError(t, f.Close())
	require.NoError(t, f.Close())

	_, err := f.AddRoot()
	assert.ErrorIs(t, err, ErrClosed)
	_, _, err = f.Find(EmptyRoot, 1)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = f.Push(EmptyRoot, 1, 1)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = f.Size(EmptyRoot)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestForest_FailedPushLeavesNoTrace(t *testing.T) {
	boom := errors.New("disk full")
	ffs := fs.NewFaultyFS(nil)
	// The writer handle takes two records, then tears the third.
	ffs.AddRule(ElementsFile, fs.Fault{FailAfterBytes: 20, Torn: true, Err: boom})

	dir := filepath.Join(t.TempDir(), "forest")
	require.NoError(t, Create[uint32](dir))
	f, err := Open[uint32](dir, withFileSystem(ffs))
	require.NoError(t, err)
	defer f.Close()

	root := pushOK(t, f, EmptyRoot, 3, 3)
	before := f.Len()

	_, err = f.Push(root, 4, 4)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, before, f.Len())

	info, err := os.Stat(filepath.Join(dir, ElementsFile))
	require.NoError(t, err)
	assert.Equal(t, before*8, info.Size())

	v, ok := findOK(t, f, root, 3)
	assert.True(t, ok)
	assert.Equal(t, uint32(3), v)
}

func TestOpen_Corrupt(t *testing.T) {
	f, dir := newForest[uint32](t)
	require.NoError(t, f.Close())
	path := filepath.Join(dir, ElementsFile)

	require.NoError(t, os.WriteFile(path, []byte{0, 0, 0, 0, 0, 0, 0, 0, 1}, 0600))
	_, err := Open[uint32](dir)
	assert.ErrorIs(t, err, ErrCorrupt)

	require.NoError(t, os.WriteFile(path, []byte{0, 0, 0, 1, 0, 0, 0, 0}, 0600))
	_, err = Open[uint32](dir)
	assert.ErrorIs(t, err, ErrCorrupt)
	var ce *CorruptError
	assert.ErrorAs(t, err, &ce)
}

func TestForest_CorruptStringKey(t *testing.T) {
	f, dir := newForest[string](t)
	root := pushOK(t, f, EmptyRoot, "ok", 1)
	require.NoError(t, f.Close())

	// Turn "ok" into an invalid UTF-8 sequence.
	require.NoError(t, os.WriteFile(filepath.Join(dir, KeysFile), []byte{0, 2, 0xc3, 0x28}, 0600))

	g, err := Open[string](dir, WithKeyCacheSize(0))
	require.NoError(t, err)
	defer g.Close()

	_, _, err = g.Find(root, "ok")
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestForest_Inspect(t *testing.T) {
	f, _ := newForest[uint32](t)
	// Keys 0 and 1 share every shard but the last, so they sit in a deep
	// subtree that later versions reuse.
	r1 := pushOK(t, f, EmptyRoot, 0, 1)
	r1 = pushOK(t, f, r1, 1, 1)
	r1 = pushOK(t, f, r1, 1<<30, 2)
	r2 := pushOK(t, f, r1, 1<<30, 3)

	ins, err := f.Inspect(r1, r2)
	require.NoError(t, err)
	assert.Equal(t, f.Len(), ins.Records)
	assert.True(t, ins.PerRoot[r1].Contains(uint32(r1)))
	assert.True(t, ins.PerRoot[r2].Contains(uint32(r2)))
	assert.False(t, ins.PerRoot[r1].Contains(uint32(r2)))
	assert.Equal(t, uint64(4), ins.Leaves.GetCardinality())
	assert.False(t, ins.Shared.IsEmpty())
	assert.False(t, ins.Shared.Contains(uint32(r1)))

	// Only r2 is kept: the earlier versions are dead weight.
	only, err := f.Inspect(r2)
	require.NoError(t, err)
	dead := only.Unreachable()
	assert.False(t, dead.IsEmpty())
	assert.False(t, dead.Contains(0))
	assert.True(t, dead.Contains(uint32(r1)))
	assert.False(t, dead.Contains(uint32(r2)))
}

func TestForest_MetricsAndLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	metrics := &BasicMetricsCollector{}

	f, _ := newForest[uint32](t, WithLogger(logger), WithMetricsCollector(metrics))
	root := pushOK(t, f, EmptyRoot, 1, 1)
	findOK(t, f, root, 1)
	findOK(t, f, root, 2)
	_, err := f.Push(root, 1<<31, 1)
	require.Error(t, err)

	stats := metrics.GetStats()
	assert.Equal(t, int64(2), stats.PushCount)
	assert.Equal(t, int64(1), stats.PushErrors)
	assert.Equal(t, int64(2), stats.FindCount)
	assert.Equal(t, int64(1), stats.FindHits)
	assert.Equal(t, int64(1), stats.SaveCount)
	assert.Equal(t, int64(2), stats.RecordsAppended)

	out := buf.String()
	assert.Contains(t, out, "forest created")
	assert.Contains(t, out, "push completed")
	assert.Contains(t, out, "push failed")
	assert.Contains(t, out, "save completed")
}

func TestForest_ConcurrentReaders(t *testing.T) {
	f, _ := newForest[uint32](t)
	root := EmptyRoot
	for i := uint32(0); i < 200; i++ {
		root = pushOK(t, f, root, i*7, i)
	}
	stable := root

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := uint32(0); i < 200; i++ {
				v, ok, err := f.Find(stable, i*7)
				if err != nil {
					errs <- err
					return
				}
				if !ok || v != i {
					errs <- errors.New("wrong value")
					return
				}
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		r := stable
		for i := uint32(0); i < 100; i++ {
			var err error
			if r, err = f.Push(r, 10_000+i, i); err != nil {
				errs <- err
				return
			}
		}
	}()
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}
