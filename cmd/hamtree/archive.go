package main

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/hupe1980/hamtree/backup"
	"github.com/hupe1980/hamtree/blobstore"
	"github.com/hupe1980/hamtree/blobstore/minio"
	"github.com/hupe1980/hamtree/blobstore/s3"
)

var storeFlags = []cli.Flag{
	&cli.StringFlag{
		Name:     "store",
		Usage:    "archive location: a local path, s3://bucket/prefix or minio://host/bucket/prefix",
		EnvVars:  []string{"HAMTREE_STORE"},
		Required: true,
	},
	&cli.StringFlag{
		Name:    "minio-access-key",
		EnvVars: []string{"MINIO_ACCESS_KEY"},
	},
	&cli.StringFlag{
		Name:    "minio-secret-key",
		EnvVars: []string{"MINIO_SECRET_KEY"},
	},
	&cli.BoolFlag{
		Name:  "minio-insecure",
		Usage: "connect to MinIO over plain HTTP",
	},
	&cli.StringFlag{
		Name:    "region",
		EnvVars: []string{"AWS_REGION"},
	},
}

var transferFlags = []cli.Flag{
	&cli.IntFlag{
		Name:  "rate-limit",
		Usage: "maximum transfer rate in bytes per second (0 is unlimited)",
	},
}

// openStore resolves the --store location.
func openStore(ctx context.Context, cctx *cli.Context) (blobstore.BlobStore, error) {
	loc := cctx.String("store")
	if !strings.Contains(loc, "://") {
		return blobstore.NewLocalStore(loc), nil
	}
	u, err := url.Parse(loc)
	if err != nil {
		return nil, fmt.Errorf("invalid store %q: %w", loc, err)
	}
	prefix := strings.TrimPrefix(u.Path, "/")

	switch u.Scheme {
	case "file":
		return blobstore.NewLocalStore(u.Path), nil
	case "s3":
		opts := []s3.Option{s3.WithPrefix(prefix)}
		if r := cctx.String("region"); r != "" {
			opts = append(opts, s3.WithRegion(r))
		}
		return s3.New(ctx, u.Host, opts...)
	case "minio":
		bucket, rest, _ := strings.Cut(prefix, "/")
		if bucket == "" {
			return nil, fmt.Errorf("invalid store %q: missing bucket", loc)
		}
		return minio.Dial(ctx, minio.Config{
			Endpoint:  u.Host,
			AccessKey: cctx.String("minio-access-key"),
			SecretKey: cctx.String("minio-secret-key"),
			Secure:    !cctx.Bool("minio-insecure"),
			Region:    cctx.String("region"),
		}, bucket, rest)
	default:
		return nil, fmt.Errorf("invalid store %q: unknown scheme %q", loc, u.Scheme)
	}
}

var cmdExport = &cli.Command{
	Name:      "export",
	Usage:     "copy the forest directory into a named archive",
	ArgsUsage: "<name>",
	Flags: append(append([]cli.Flag{
		&cli.StringFlag{
			Name:  "compression",
			Usage: "zstd, lz4 or none",
			Value: backup.CompressionZstd.String(),
		},
	}, storeFlags...), transferFlags...),
	Action: runExport,
}

func runExport(cctx *cli.Context) error {
	ctx := cctx.Context
	name := cctx.Args().First()
	if name == "" {
		return fmt.Errorf("need to provide an archive name")
	}
	dir, err := forestDir(cctx)
	if err != nil {
		return err
	}
	c, err := backup.ParseCompression(cctx.String("compression"))
	if err != nil {
		return err
	}
	store, err := openStore(ctx, cctx)
	if err != nil {
		return err
	}

	m, err := backup.Export(ctx, dir, store, name,
		backup.WithCompression(c),
		backup.WithRateLimit(cctx.Int("rate-limit")),
		backup.WithLogger(configLogger(cctx)),
	)
	if err != nil {
		return err
	}
	fmt.Fprintf(cctx.App.Writer, "exported %s: %d records, %s keys\n", name, m.Records, m.KeyType)
	return nil
}

var cmdImport = &cli.Command{
	Name:      "import",
	Usage:     "restore a named archive into a new forest directory",
	ArgsUsage: "<name>",
	Flags:     append(append([]cli.Flag{}, storeFlags...), transferFlags...),
	Action:    runImport,
}

func runImport(cctx *cli.Context) error {
	ctx := cctx.Context
	name := cctx.Args().First()
	if name == "" {
		return fmt.Errorf("need to provide an archive name")
	}
	dir, err := forestDir(cctx)
	if err != nil {
		return err
	}
	store, err := openStore(ctx, cctx)
	if err != nil {
		return err
	}

	m, err := backup.Import(ctx, store, name, dir,
		backup.WithRateLimit(cctx.Int("rate-limit")),
		backup.WithLogger(configLogger(cctx)),
	)
	if err != nil {
		return err
	}
	fmt.Fprintf(cctx.App.Writer, "imported %s: %d records, %s keys\n", name, m.Records, m.KeyType)
	return nil
}

var cmdArchives = &cli.Command{
	Name:  "archives",
	Usage: "list or delete archives",
	Subcommands: []*cli.Command{
		{
			Name:   "list",
			Usage:  "print the name of every archive",
			Flags:  storeFlags,
			Action: runArchivesList,
		},
		{
			Name:      "delete",
			Usage:     "remove an archive",
			ArgsUsage: "<name>",
			Flags:     storeFlags,
			Action:    runArchivesDelete,
		},
	},
}

func runArchivesList(cctx *cli.Context) error {
	store, err := openStore(cctx.Context, cctx)
	if err != nil {
		return err
	}
	names, err := backup.List(cctx.Context, store)
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Fprintln(cctx.App.Writer, n)
	}
	return nil
}

func runArchivesDelete(cctx *cli.Context) error {
	name := cctx.Args().First()
	if name == "" {
		return fmt.Errorf("need to provide an archive name")
	}
	store, err := openStore(cctx.Context, cctx)
	if err != nil {
		return err
	}
	if err := backup.Delete(cctx.Context, store, name); err != nil {
		return err
	}
	fmt.Fprintf(cctx.App.Writer, "deleted %s\n", name)
	return nil
}
