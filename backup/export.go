package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/hupe1980/hamtree"
	"github.com/hupe1980/hamtree/blobstore"
	"github.com/hupe1980/hamtree/internal/element"
	"github.com/hupe1980/hamtree/internal/fs"
)

// ErrShrunk is returned when a forest file got shorter while it was being
// copied. Forest files only grow, so this means something else rewrote it.
var ErrShrunk = errors.New("backup: file shrank during export")

// Export archives the forest in dir as name. It fails with
// hamtree.ErrAlreadyExists if store already holds blobs under name.
func Export(ctx context.Context, dir string, store blobstore.BlobStore, name string, opts ...Option) (*Manifest, error) {
	o := applyOptions(opts)
	start := time.Now()

	existing, err := store.List(ctx, name+"/")
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, fmt.Errorf("%w: archive %q", hamtree.ErrAlreadyExists, name)
	}

	files, keyType, err := snapshot(dir)
	if err != nil {
		return nil, err
	}

	lim := newLimiter(o.bytesPerSec)
	g, gctx := errgroup.WithContext(ctx)
	for i := range files {
		fi := &files[i]
		fi.Blob = fi.Name + o.compression.ext()
		g.Go(func() error {
			sum, err := exportFile(gctx, filepath.Join(dir, fi.Name), fi.Size, store, path.Join(name, fi.Blob), o.compression, lim)
			if err != nil {
				return fmt.Errorf("backup: %s: %w", fi.Name, err)
			}
			fi.Checksum = sum
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		o.logger.Error("export failed", "dir", dir, "archive", name, "error", err)
		return nil, err
	}

	m := &Manifest{
		KeyType:     keyType,
		Compression: o.compression.String(),
		Records:     files[0].Size / element.Size,
		CreatedAt:   time.Now().UTC(),
		Files:       files,
	}
	if err := writeManifest(ctx, store, name, m); err != nil {
		return nil, err
	}

	o.logger.Info("export completed",
		"dir", dir,
		"archive", name,
		"records", m.Records,
		"compression", m.Compression,
		"duration", time.Since(start),
	)
	return m, nil
}

// snapshot fixes the lengths to copy. The element stash is measured before
// the key file, and a trailing partial record is left out.
func snapshot(dir string) ([]FileInfo, string, error) {
	elems := filepath.Join(dir, hamtree.ElementsFile)
	info, err := fs.Default.Stat(elems)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", fmt.Errorf("%w: %s", hamtree.ErrNotFound, elems)
		}
		return nil, "", err
	}
	size := info.Size() - info.Size()%element.Size
	if size == 0 {
		return nil, "", fmt.Errorf("%w: %s holds no sentinel record", hamtree.ErrCorrupt, elems)
	}
	files := []FileInfo{{Name: hamtree.ElementsFile, Size: size}}

	keys := filepath.Join(dir, hamtree.KeysFile)
	info, err = fs.Default.Stat(keys)
	switch {
	case err == nil:
		files = append(files, FileInfo{Name: hamtree.KeysFile, Size: info.Size()})
		return files, "string", nil
	case errors.Is(err, os.ErrNotExist):
		return files, "uint32", nil
	default:
		return nil, "", err
	}
}

func exportFile(ctx context.Context, src string, size int64, store blobstore.BlobStore, blob string, c Compression, lim *rate.Limiter) (uint64, error) {
	if size == 0 {
		return xxhash.Sum64(nil), store.Put(ctx, blob, nil)
	}

	f, err := fs.Default.OpenFile(src, os.O_RDONLY, 0)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	w, err := store.Create(ctx, blob)
	if err != nil {
		return 0, err
	}

	h := xxhash.New()
	r := io.TeeReader(throttle(ctx, io.LimitReader(f, size), lim), h)

	cw, err := c.compressor(w)
	if err != nil {
		blobstore.Abort(w)
		return 0, err
	}
	n, err := io.Copy(cw, r)
	if err == nil && n < size {
		err = fmt.Errorf("%w: copied %d of %d bytes", ErrShrunk, n, size)
	}
	if err == nil {
		err = cw.Close()
	}
	if err != nil {
		blobstore.Abort(w)
		return 0, err
	}
	if err := w.Close(); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}
