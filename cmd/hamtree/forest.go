package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/hupe1980/hamtree"
	"github.com/hupe1980/hamtree/codec"
)

// forest hides the key type of an opened directory from the commands.
type forest interface {
	KeyType() string
	Len() int64
	Push(root hamtree.RootIndex, key string, value uint32) (hamtree.RootIndex, error)
	Find(root hamtree.RootIndex, key string) (uint32, bool, error)
	Size(root hamtree.RootIndex) (int, error)
	Each(root hamtree.RootIndex, fn func(key string, value uint32) error) error
	Inspect(roots ...hamtree.RootIndex) (hamtree.Inspection, error)
	Close() error
}

type typedForest[K hamtree.Key] struct {
	*hamtree.Forest[K]
	keyType string
	parse   func(string) (K, error)
	format  func(K) string
}

func (t *typedForest[K]) KeyType() string { return t.keyType }

func (t *typedForest[K]) Push(root hamtree.RootIndex, key string, value uint32) (hamtree.RootIndex, error) {
	k, err := t.parse(key)
	if err != nil {
		return 0, err
	}
	return t.Forest.Push(root, k, value)
}

func (t *typedForest[K]) Find(root hamtree.RootIndex, key string) (uint32, bool, error) {
	k, err := t.parse(key)
	if err != nil {
		return 0, false, err
	}
	return t.Forest.Find(root, k)
}

func (t *typedForest[K]) Each(root hamtree.RootIndex, fn func(key string, value uint32) error) error {
	return t.Forest.Each(root, func(k K, v uint32) error { return fn(t.format(k), v) })
}

var errKeyNotFound = errors.New("key not found")

func parseUint32Key(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid integer key %q: %w", s, err)
	}
	return uint32(v), nil
}

func isStringForest(dir string) (bool, error) {
	_, err := os.Stat(filepath.Join(dir, hamtree.KeysFile))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// openForest opens the directory named by --dir with the key type found on
// disk.
func openForest(cctx *cli.Context, readOnly bool) (forest, error) {
	dir, err := forestDir(cctx)
	if err != nil {
		return nil, err
	}
	opts := []hamtree.Option{hamtree.WithLogger(configLogger(cctx))}
	if readOnly {
		opts = append(opts, hamtree.WithReadOnly())
	}

	strs, err := isStringForest(dir)
	if err != nil {
		return nil, err
	}
	if strs {
		f, err := hamtree.Open[string](dir, opts...)
		if err != nil {
			return nil, err
		}
		return &typedForest[string]{
			Forest:  f,
			keyType: "string",
			parse:   func(s string) (string, error) { return s, nil },
			format:  func(s string) string { return s },
		}, nil
	}
	f, err := hamtree.Open[uint32](dir, opts...)
	if err != nil {
		return nil, err
	}
	return &typedForest[uint32]{
		Forest:  f,
		keyType: "uint32",
		parse:   parseUint32Key,
		format:  func(k uint32) string { return strconv.FormatUint(uint64(k), 10) },
	}, nil
}

func parseRoot(s string) (hamtree.RootIndex, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid root %q: %w", s, err)
	}
	return hamtree.RootIndex(v), nil
}

func parseValue(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q: %w", s, err)
	}
	return uint32(v), nil
}

var cmdCreate = &cli.Command{
	Name:  "create",
	Usage: "initialize an empty forest directory",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "strings",
			Usage: "use string keys instead of integer keys",
		},
	},
	Action: runCreate,
}

func runCreate(cctx *cli.Context) error {
	dir, err := forestDir(cctx)
	if err != nil {
		return err
	}
	opt := hamtree.WithLogger(configLogger(cctx))
	if cctx.Bool("strings") {
		return hamtree.Create[string](dir, opt)
	}
	return hamtree.Create[uint32](dir, opt)
}

var cmdPush = &cli.Command{
	Name:      "push",
	Usage:     "store a value under a key and print the new root",
	ArgsUsage: "<root> <key> <value>",
	Action:    runPush,
}

func runPush(cctx *cli.Context) error {
	if cctx.Args().Len() != 3 {
		return fmt.Errorf("need to provide root, key and value")
	}
	root, err := parseRoot(cctx.Args().Get(0))
	if err != nil {
		return err
	}
	value, err := parseValue(cctx.Args().Get(2))
	if err != nil {
		return err
	}

	f, err := openForest(cctx, false)
	if err != nil {
		return err
	}
	defer f.Close()

	next, err := f.Push(root, cctx.Args().Get(1), value)
	if err != nil {
		return err
	}
	fmt.Fprintln(cctx.App.Writer, next)
	return nil
}

var cmdFind = &cli.Command{
	Name:      "find",
	Usage:     "print the value stored under a key",
	ArgsUsage: "<root> <key>",
	Action:    runFind,
}

func runFind(cctx *cli.Context) error {
	if cctx.Args().Len() != 2 {
		return fmt.Errorf("need to provide root and key")
	}
	root, err := parseRoot(cctx.Args().Get(0))
	if err != nil {
		return err
	}

	f, err := openForest(cctx, true)
	if err != nil {
		return err
	}
	defer f.Close()

	v, ok, err := f.Find(root, cctx.Args().Get(1))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %q at root %d", errKeyNotFound, cctx.Args().Get(1), root)
	}
	fmt.Fprintln(cctx.App.Writer, v)
	return nil
}

var cmdSize = &cli.Command{
	Name:      "size",
	Usage:     "print the number of keys in a version",
	ArgsUsage: "<root>",
	Action:    runSize,
}

func runSize(cctx *cli.Context) error {
	root, err := parseRoot(cctx.Args().First())
	if err != nil {
		return err
	}

	f, err := openForest(cctx, true)
	if err != nil {
		return err
	}
	defer f.Close()

	n, err := f.Size(root)
	if err != nil {
		return err
	}
	fmt.Fprintln(cctx.App.Writer, n)
	return nil
}

var cmdDump = &cli.Command{
	Name:      "dump",
	Usage:     "print every key and value of a version in key order",
	ArgsUsage: "<root>",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "print one JSON object per line",
		},
	},
	Action: runDump,
}

type dumpLine struct {
	Key   string `json:"key"`
	Value uint32 `json:"value"`
}

func runDump(cctx *cli.Context) error {
	root, err := parseRoot(cctx.Args().First())
	if err != nil {
		return err
	}

	f, err := openForest(cctx, true)
	if err != nil {
		return err
	}
	defer f.Close()

	asJSON := cctx.Bool("json")
	w := cctx.App.Writer
	return f.Each(root, func(key string, value uint32) error {
		if !asJSON {
			_, err := fmt.Fprintf(w, "%s\t%d\n", key, value)
			return err
		}
		b, err := codec.Default.Marshal(dumpLine{Key: key, Value: value})
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "%s\n", b)
		return err
	})
}

var cmdInspect = &cli.Command{
	Name:      "inspect",
	Usage:     "report stash usage of one or more versions",
	ArgsUsage: "<root>...",
	Action:    runInspect,
}

func runInspect(cctx *cli.Context) error {
	if cctx.Args().Len() == 0 {
		return fmt.Errorf("need to provide at least one root")
	}
	roots := make([]hamtree.RootIndex, 0, cctx.Args().Len())
	for _, a := range cctx.Args().Slice() {
		r, err := parseRoot(a)
		if err != nil {
			return err
		}
		roots = append(roots, r)
	}

	f, err := openForest(cctx, true)
	if err != nil {
		return err
	}
	defer f.Close()

	in, err := f.Inspect(roots...)
	if err != nil {
		return err
	}
	w := cctx.App.Writer
	fmt.Fprintf(w, "key type:    %s\n", f.KeyType())
	fmt.Fprintf(w, "records:     %d\n", in.Records)
	fmt.Fprintf(w, "reachable:   %d\n", in.Reachable.GetCardinality())
	fmt.Fprintf(w, "shared:      %d\n", in.Shared.GetCardinality())
	fmt.Fprintf(w, "leaves:      %d\n", in.Leaves.GetCardinality())
	fmt.Fprintf(w, "nodes:       %d\n", in.Nodes.GetCardinality())
	fmt.Fprintf(w, "unreachable: %d\n", in.Unreachable().GetCardinality())
	return nil
}
