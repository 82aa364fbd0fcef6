package backup

import (
	"context"
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

// Import restores archive name into dir. It fails with
// hamtree.ErrAlreadyExists if dir exists. Files are restored into a
// sibling directory and renamed into place once every size and checksum
// matches and the forest opens.
func Import(ctx context.Context, store blobstore.BlobStore, name, dir string, opts ...Option) (*Manifest, error) {
	o := applyOptions(opts)
	start := time.Now()

	for _, p := range []string{dir, dir + ".importing"} {
		ok, err := fs.Exists(fs.Default, p)
		if err != nil {
			return nil, err
		}
		if ok {
			return nil, fmt.Errorf("%w: %s", hamtree.ErrAlreadyExists, p)
		}
	}

	m, err := ReadManifest(ctx, store, name)
	if err != nil {
		return nil, err
	}
	c, err := ParseCompression(m.Compression)
	if err != nil {
		return nil, err
	}
	if err := validate(m); err != nil {
		return nil, fmt.Errorf("%w: archive %q: %v", hamtree.ErrCorrupt, name, err)
	}

	tmp := dir + ".importing"
	if err := fs.Default.MkdirAll(tmp, 0755); err != nil {
		return nil, err
	}
	if err := restore(ctx, store, name, tmp, m, c, newLimiter(o.bytesPerSec)); err != nil {
		os.RemoveAll(tmp)
		o.logger.Error("import failed", "archive", name, "dir", dir, "error", err)
		return nil, err
	}

	if err := fs.Default.Rename(tmp, dir); err != nil {
		os.RemoveAll(tmp)
		return nil, err
	}
	if err := fs.SyncDir(fs.Default, filepath.Dir(dir)); err != nil {
		return nil, err
	}

	o.logger.Info("import completed",
		"archive", name,
		"dir", dir,
		"records", m.Records,
		"duration", time.Since(start),
	)
	return m, nil
}

func validate(m *Manifest) error {
	var hasElems, hasKeys bool
	for _, f := range m.Files {
		switch f.Name {
		case hamtree.ElementsFile:
			if f.Size == 0 || f.Size%element.Size != 0 {
				return fmt.Errorf("%s size %d is not a positive multiple of %d", f.Name, f.Size, element.Size)
			}
			if f.Size/element.Size != m.Records {
				return fmt.Errorf("%s holds %d records, manifest says %d", f.Name, f.Size/element.Size, m.Records)
			}
			hasElems = true
		case hamtree.KeysFile:
			hasKeys = true
		default:
			return fmt.Errorf("unexpected file %q", f.Name)
		}
		if f.Blob != path.Base(f.Blob) {
			return fmt.Errorf("blob name %q leaves the archive", f.Blob)
		}
	}
	if !hasElems {
		return fmt.Errorf("missing %s", hamtree.ElementsFile)
	}
	if want := m.KeyType == "string"; hasKeys != want {
		return fmt.Errorf("key type %q does not match files", m.KeyType)
	}
	return nil
}

func restore(ctx context.Context, store blobstore.BlobStore, name, tmp string, m *Manifest, c Compression, lim *rate.Limiter) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, f := range m.Files {
		g.Go(func() error {
			if err := importFile(gctx, store, path.Join(name, f.Blob), filepath.Join(tmp, f.Name), f, c, lim); err != nil {
				return fmt.Errorf("backup: %s: %w", f.Name, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := fs.SyncDir(fs.Default, tmp); err != nil {
		return err
	}

	// Opening checks the sentinel record and the key file.
	if m.KeyType == "string" {
		f, err := hamtree.Open[string](tmp, hamtree.WithReadOnly())
		if err != nil {
			return err
		}
		return f.Close()
	}
	f, err := hamtree.Open[uint32](tmp, hamtree.WithReadOnly())
	if err != nil {
		return err
	}
	return f.Close()
}

func importFile(ctx context.Context, store blobstore.BlobStore, blob, dst string, info FileInfo, c Compression, lim *rate.Limiter) error {
	if info.Size == 0 {
		if info.Checksum != xxhash.Sum64(nil) {
			return fmt.Errorf("%w: checksum mismatch", hamtree.ErrCorrupt)
		}
		return fs.WriteFileAtomic(fs.Default, dst, nil, 0600)
	}

	b, err := store.Open(ctx, blob)
	if err != nil {
		return err
	}
	defer b.Close()

	rc, err := blobstore.NewReader(ctx, b)
	if err != nil {
		return err
	}
	defer rc.Close()

	dr, err := c.decompressor(rc)
	if err != nil {
		return err
	}
	defer dr.Close()

	out, err := fs.Default.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return err
	}

	h := xxhash.New()
	// One byte past the recorded size is enough to tell a longer blob.
	n, err := io.Copy(io.MultiWriter(out, h), throttle(ctx, io.LimitReader(dr, info.Size+1), lim))
	if err == nil {
		switch {
		case n != info.Size:
			err = fmt.Errorf("%w: restored %d bytes, manifest says %d", hamtree.ErrCorrupt, n, info.Size)
		case h.Sum64() != info.Checksum:
			err = fmt.Errorf("%w: checksum mismatch", hamtree.ErrCorrupt)
		}
	}
	if err == nil {
		err = out.Sync()
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return err
}
