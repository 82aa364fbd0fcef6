package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/hupe1980/hamtree"
	"github.com/hupe1980/hamtree/blobstore"
	"github.com/hupe1980/hamtree/codec"
)

const (
	// ManifestName is the manifest blob inside an archive.
	ManifestName = "MANIFEST"
	// CurrentVersion is the manifest format written by Export.
	CurrentVersion = 1
)

// Manifest describes one archive.
type Manifest struct {
	Version     int        `json:"version"`
	Codec       string     `json:"codec"`
	KeyType     string     `json:"key_type"`
	Compression string     `json:"compression"`
	Records     int64      `json:"records"`
	CreatedAt   time.Time  `json:"created_at"`
	Files       []FileInfo `json:"files"`
}

// FileInfo describes one archived forest file.
type FileInfo struct {
	// Name is the file name inside the forest directory.
	Name string `json:"name"`
	// Blob is the blob name relative to the archive.
	Blob string `json:"blob"`
	// Size is the uncompressed length in bytes.
	Size int64 `json:"size"`
	// Checksum is the xxhash64 of the uncompressed bytes.
	Checksum uint64 `json:"checksum"`
}

func manifestBlob(name string) string { return path.Join(name, ManifestName) }

func writeManifest(ctx context.Context, store blobstore.BlobStore, name string, m *Manifest) error {
	c := codec.Default
	m.Version = CurrentVersion
	m.Codec = c.Name()

	var (
		data []byte
		err  error
	)
	if gj, ok := c.(codec.GoJSON); ok {
		data, err = gj.MarshalIndent(m)
	} else {
		data, err = c.Marshal(m)
	}
	if err != nil {
		return err
	}
	return store.Put(ctx, manifestBlob(name), data)
}

// ReadManifest loads the manifest of archive name.
func ReadManifest(ctx context.Context, store blobstore.BlobStore, name string) (*Manifest, error) {
	b, err := store.Open(ctx, manifestBlob(name))
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: archive %q: %w", hamtree.ErrNotFound, name, err)
		}
		return nil, err
	}
	defer b.Close()

	rc, err := blobstore.NewReader(ctx, b)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}

	// Every built-in codec reads plain JSON, so the codec field can be
	// decoded before the codec is chosen.
	var m Manifest
	if err := codec.Default.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: manifest of %q: %v", hamtree.ErrCorrupt, name, err)
	}
	if m.Codec != "" && m.Codec != codec.Default.Name() {
		c, err := codec.Lookup(m.Codec)
		if err != nil {
			return nil, err
		}
		m = Manifest{}
		if err := c.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: manifest of %q: %v", hamtree.ErrCorrupt, name, err)
		}
	}
	if m.Version != CurrentVersion {
		return nil, fmt.Errorf("backup: unsupported manifest version: %d (expected %d)", m.Version, CurrentVersion)
	}
	return &m, nil
}

// List returns the names of all complete archives in store.
func List(ctx context.Context, store blobstore.BlobStore) ([]string, error) {
	blobs, err := store.List(ctx, "")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, b := range blobs {
		if dir, file := path.Split(b); file == ManifestName && dir != "" {
			names = append(names, strings.TrimSuffix(dir, "/"))
		}
	}
	return names, nil
}

// Delete removes every blob of archive name. The manifest goes first so a
// partly deleted archive is never mistaken for a complete one.
func Delete(ctx context.Context, store blobstore.BlobStore, name string) error {
	if err := store.Delete(ctx, manifestBlob(name)); err != nil {
		return err
	}
	blobs, err := store.List(ctx, name+"/")
	if err != nil {
		return err
	}
	for _, b := range blobs {
		if err := store.Delete(ctx, b); err != nil {
			return err
		}
	}
	return nil
}
