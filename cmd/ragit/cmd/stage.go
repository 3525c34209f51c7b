package cmd

import (
	"context"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ragit-kb/ragit/internal/index"
	"github.com/ragit-kb/ragit/internal/scanner"
	"github.com/ragit-kb/ragit/internal/store"
)

func newStageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stage [paths...]",
		Short: "Stage files for the next build; with no arguments, scans the whole tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := findRoot(".")
			if err != nil {
				return exitOnError(err)
			}
			return exitOnError(runStage(cmd.Context(), root, args))
		},
	}
	return cmd
}

func runStage(ctx context.Context, root string, paths []string) error {
	blobs := store.New(root)
	meta, err := index.Load(blobs.DataDir())
	if err != nil {
		return err
	}

	w := newOutputWriter()

	if len(paths) == 0 {
		s, err := scanner.New()
		if err != nil {
			return err
		}
		results, err := s.Scan(ctx, &scanner.ScanOptions{RootDir: root, RespectGitignore: true})
		if err != nil {
			return err
		}
		for r := range results {
			if r.Error != nil {
				w.Warningf("skip %s: %s", r.File.Path, r.Error)
				continue
			}
			meta.Stage(r.File.Path)
			w.Statusf("+", "staged %s", r.File.Path)
		}
	} else {
		for _, p := range paths {
			rel, err := filepath.Rel(root, mustAbs(p))
			if err != nil {
				return err
			}
			meta.Stage(rel)
			w.Statusf("+", "staged %s", rel)
		}
	}

	if err := index.Save(blobs.DataDir(), meta); err != nil {
		return err
	}
	w.Successf("%d files staged", len(meta.StagedFiles))
	return nil
}

func mustAbs(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	return abs
}
