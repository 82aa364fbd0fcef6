// Command hamtree inspects and edits forest directories and moves them to
// and from blob storage.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/carlmjohnson/versioninfo"
	"github.com/urfave/cli/v2"

	"github.com/hupe1980/hamtree"
)

func main() {
	if err := run(os.Args, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	app := cli.App{
		Name:      "hamtree",
		Usage:     "tool for append-only HAMT forests",
		Version:   versioninfo.Short(),
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "dir",
				Aliases: []string{"d"},
				Usage:   "forest directory",
				EnvVars: []string{"HAMTREE_DIR"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "log verbosity level (eg: warn, info, debug)",
				Value:   "warn",
				EnvVars: []string{"HAMTREE_LOG_LEVEL", "GO_LOG_LEVEL", "LOG_LEVEL"},
			},
		},
		Commands: []*cli.Command{
			cmdCreate,
			cmdPush,
			cmdFind,
			cmdSize,
			cmdDump,
			cmdInspect,
			cmdExport,
			cmdImport,
			cmdArchives,
		},
	}
	return app.Run(args)
}

func configLogger(cctx *cli.Context) *hamtree.Logger {
	var level slog.Level
	switch strings.ToLower(cctx.String("log-level")) {
	case "error":
		level = slog.LevelError
	case "warn":
		level = slog.LevelWarn
	case "info":
		level = slog.LevelInfo
	case "debug":
		level = slog.LevelDebug
	default:
		level = slog.LevelInfo
	}
	return hamtree.NewLogger(slog.NewJSONHandler(cctx.App.ErrWriter, &slog.HandlerOptions{
		Level: level,
	}))
}

func forestDir(cctx *cli.Context) (string, error) {
	dir := cctx.String("dir")
	if dir == "" {
		return "", fmt.Errorf("need to provide a forest directory (--dir or HAMTREE_DIR)")
	}
	return dir, nil
}
